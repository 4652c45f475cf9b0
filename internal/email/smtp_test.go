package email

import (
	"strings"
	"testing"
)

func TestBuildInvitation(t *testing.T) {
	e := buildInvitation("team@heartbeat.dev", "a@x.com", "Hello", "<p>hi</p>")

	if len(e.To) != 1 || e.To[0] != "a@x.com" {
		t.Fatalf("to = %v", e.To)
	}
	if !strings.Contains(e.From, "team@heartbeat.dev") {
		t.Fatalf("from = %q", e.From)
	}
	if e.Subject != "Hello" {
		t.Fatalf("subject = %q", e.Subject)
	}
	if string(e.HTML) != "<p>hi</p>" {
		t.Fatalf("html = %q", e.HTML)
	}
}

func TestNewSMTPSenderRejectsBadPort(t *testing.T) {
	if _, err := NewSMTPSender(SMTPConfig{Host: "mail.x.com", Port: "not-a-port"}); err == nil {
		t.Fatal("expected an error for a non-numeric port")
	}
}
