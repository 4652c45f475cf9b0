package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heartbeathq/heartbeat/internal/analysis"
	"github.com/heartbeathq/heartbeat/internal/api"
	"github.com/heartbeathq/heartbeat/internal/config"
	"github.com/heartbeathq/heartbeat/internal/db"
	"github.com/heartbeathq/heartbeat/internal/email"
	"github.com/heartbeathq/heartbeat/internal/logger"
	"github.com/heartbeathq/heartbeat/internal/middleware"
	"github.com/heartbeathq/heartbeat/internal/scheduler"
	"github.com/heartbeathq/heartbeat/internal/services"
	"github.com/heartbeathq/heartbeat/internal/store"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("configuration load failed")
	}
	logger.Init(cfg)
	log := logger.Component("server")

	st := buildStore(cfg)
	sender := buildSender(cfg)
	summarizer := buildSummarizer(cfg)

	pulses := services.NewPulseService(st)
	dispatch := services.NewDispatchService(st, sender, cfg.BaseURL, cfg.EmailTimeout)
	responses := services.NewResponseService(st)
	analyzer := services.NewAnalysisService(st, summarizer)
	export := services.NewExportService()

	limiter := middleware.NewRateLimiter()

	sched := scheduler.New()
	if err := sched.AddSweepJob(limiter); err != nil {
		log.WithError(err).Fatal("sweep job registration failed")
	}
	if cfg.AutoDrainSpec != "" {
		if err := sched.AddDrainJob(cfg.AutoDrainSpec, dispatch); err != nil {
			log.WithError(err).Fatal("drain job registration failed")
		}
	}
	sched.Start()
	defer sched.Stop()

	router := api.NewRouter(api.RouterConfig{
		Store:        st,
		Pulses:       pulses,
		Dispatch:     dispatch,
		Responses:    responses,
		Analysis:     analyzer,
		Export:       export,
		AuthRequired: cfg.JWTSecret != "",
	})

	mux := http.NewServeMux()
	router.Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"version": version})
	})

	handler := middleware.NoStore(
		middleware.SecureHeaders(
			middleware.CORS(
				middleware.WithAuth(
					limiter.Middleware(mux)))))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Addr).Info("heartbeat server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

// buildStore selects persistence from configuration: hosted Postgres wrapped
// in a local fallback when available, a durable SQLite file when a data dir
// is set, in-memory otherwise.
func buildStore(cfg *config.Config) store.Store {
	log := logger.Component("startup")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var local store.Store
	if cfg.DataDir != "" {
		conn, err := db.NewSQLiteConnection(cfg.DataDir)
		if err != nil {
			log.WithError(err).Warn("sqlite open failed, using in-memory store")
		} else if sq, err := db.NewSQLiteStore(conn); err != nil {
			log.WithError(err).Warn("sqlite init failed, using in-memory store")
		} else if err := sq.EnsureSchema(ctx); err != nil {
			log.WithError(err).Warn("sqlite schema failed, using in-memory store")
		} else {
			local = sq
		}
	}
	if local == nil {
		local = store.NewMemoryStore()
	}

	if !cfg.HasDatabase() {
		log.Info("no DATABASE_URL set, using local store only")
		return local
	}

	conn, err := db.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Warn("postgres unavailable, using local store only")
		return local
	}
	pg := db.NewPostgresStore(conn)
	if err := pg.EnsureSchema(ctx); err != nil {
		log.WithError(err).Warn("postgres schema check failed, continuing with fallback armed")
	}
	return db.NewFallbackStore(pg, local)
}

func buildSender(cfg *config.Config) email.Sender {
	log := logger.Component("startup")
	if cfg.ResendAPIKey != "" {
		log.Info("email dispatch via Resend")
		return email.NewResendSender(cfg.ResendAPIKey, cfg.ResendFromEmail)
	}
	if cfg.SMTPHost != "" {
		s, err := email.NewSMTPSender(email.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUsername,
			Password:    cfg.SMTPPassword,
			From:        cfg.SMTPFrom,
			Connections: 4,
			SendTimeout: cfg.EmailTimeout,
		})
		if err != nil {
			log.WithError(err).Warn("smtp setup failed, using mock sender")
			return email.NewMockSender()
		}
		log.Info("email dispatch via SMTP")
		return s
	}
	log.Info("no email provider configured, using mock sender")
	return email.NewMockSender()
}

func buildSummarizer(cfg *config.Config) analysis.Summarizer {
	log := logger.Component("startup")
	if cfg.AnthropicAPIKey != "" {
		log.WithField("model", cfg.AnthropicModel).Info("summarization via Anthropic")
		return analysis.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnalysisTimeout)
	}
	if cfg.OpenAIAPIKey != "" {
		log.Info("summarization via OpenAI")
		return analysis.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.AnalysisTimeout)
	}
	log.Info("no summarization provider configured, using mock summarizer")
	return analysis.NewMockSummarizer()
}
