package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/knadh/smtppool"
)

// SMTPConfig describes one outbound SMTP server.
type SMTPConfig struct {
	Host        string
	Port        string
	Username    string
	Password    string
	From        string
	Connections int
	SendTimeout time.Duration
}

// SMTPSender delivers mail over a pooled SMTP connection.
type SMTPSender struct {
	cfg  SMTPConfig
	pool *smtppool.Pool
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Connections <= 0 {
		cfg.Connections = 2
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}

	var auth smtp.Auth
	if cfg.Username != "" || cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("invalid smtp port %q: %w", cfg.Port, err)
	}

	pool, err := smtppool.New(smtppool.Opt{
		Host:            cfg.Host,
		Port:            port,
		MaxConns:        cfg.Connections,
		IdleTimeout:     cfg.SendTimeout,
		PoolWaitTimeout: cfg.SendTimeout,
		TLSConfig:       &tls.Config{ServerName: cfg.Host},
		Auth:            auth,
	})
	if err != nil {
		return nil, fmt.Errorf("smtp pool setup failed: %w", err)
	}
	return &SMTPSender{cfg: cfg, pool: pool}, nil
}

// buildInvitation assembles the pool's message value for one recipient.
func buildInvitation(from, to, subject, html string) smtppool.Email {
	return smtppool.Email{
		To:      []string{to},
		From:    fmt.Sprintf("Heartbeat <%s>", from),
		Subject: subject,
		HTML:    []byte(html),
		Headers: textproto.MIMEHeader{},
	}
}

func (s *SMTPSender) Send(_ context.Context, to, subject, html string) (string, error) {
	if err := s.pool.Send(buildInvitation(s.cfg.From, to, subject, html)); err != nil {
		return "", fmt.Errorf("smtp send failed: %w", err)
	}
	return fmt.Sprintf("smtp_%d", time.Now().UnixNano()), nil
}
