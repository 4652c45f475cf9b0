package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/heartbeathq/heartbeat/internal/models"
	"github.com/heartbeathq/heartbeat/internal/store"
)

type stubSender struct {
	sent    []string
	failFor string
	calls   int
}

func (s *stubSender) Send(_ context.Context, to, subject, html string) (string, error) {
	s.calls++
	if s.failFor != "" && to == s.failFor {
		return "", errors.New("smtp connection refused")
	}
	s.sent = append(s.sent, to)
	return "msg_" + to, nil
}

func newDispatchFixture(t *testing.T, emails []string) (*DispatchService, *stubSender, *store.MemoryStore, string) {
	t.Helper()
	st := store.NewMemoryStore()
	pulses := NewPulseService(st)
	p, err := pulses.Create(context.Background(), "1", "Q3 check-in", emails, nil)
	if err != nil {
		t.Fatalf("create pulse: %v", err)
	}
	sender := &stubSender{}
	svc := NewDispatchService(st, sender, "http://localhost:3000", 5*time.Second)
	svc.retry.Sleep = func(context.Context, time.Duration) error { return nil }
	return svc, sender, st, p.ID
}

func TestSurveyTokenDeterministic(t *testing.T) {
	a := SurveyToken("alice@example.com")
	b := SurveyToken("alice@example.com")
	if a != b {
		t.Fatalf("token not stable: %q vs %q", a, b)
	}
	if a == SurveyToken("bob@example.com") {
		t.Fatal("different recipients produced the same token")
	}
	if strings.ContainsAny(a, "+/=") {
		t.Fatalf("token %q is not URL-safe", a)
	}
}

func TestSendNextAdvancesPartition(t *testing.T) {
	svc, sender, st, id := newDispatchFixture(t, []string{"a@x.com", "b@x.com", "c@x.com"})

	res, err := svc.SendNext(context.Background(), id)
	if err != nil {
		t.Fatalf("send next: %v", err)
	}
	if res.Sent != "a@x.com" || res.Remaining != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "a@x.com" {
		t.Fatalf("sender saw %v", sender.sent)
	}

	p, err := st.GetPulse(context.Background(), id)
	if err != nil {
		t.Fatalf("get pulse: %v", err)
	}
	if len(p.SentEmails) != 1 || len(p.PendingEmails) != 2 {
		t.Fatalf("partition sent=%v pending=%v", p.SentEmails, p.PendingEmails)
	}
	if len(p.SentEmails)+len(p.PendingEmails) != len(p.RecipientEmails) {
		t.Fatal("sent and pending no longer cover the recipient list")
	}
	for _, s := range p.SentEmails {
		for _, q := range p.PendingEmails {
			if s == q {
				t.Fatalf("%s is both sent and pending", s)
			}
		}
	}
}

func TestSendNextFailureStillMarksSent(t *testing.T) {
	svc, sender, st, id := newDispatchFixture(t, []string{"a@x.com", "b@x.com"})
	sender.failFor = "a@x.com"

	res, err := svc.SendNext(context.Background(), id)
	if err != nil {
		t.Fatalf("send next should not fail: %v", err)
	}
	if res.Warning == "" {
		t.Fatal("expected a delivery warning")
	}
	if res.Sent != "a@x.com" {
		t.Fatalf("unexpected recipient %q", res.Sent)
	}

	p, _ := st.GetPulse(context.Background(), id)
	if len(p.SentEmails) != 1 || p.SentEmails[0] != "a@x.com" {
		t.Fatalf("recipient not marked sent: %v", p.SentEmails)
	}
}

func TestSendNextRetriesTransportErrors(t *testing.T) {
	svc, sender, _, id := newDispatchFixture(t, []string{"a@x.com"})
	sender.failFor = "a@x.com"

	if _, err := svc.SendNext(context.Background(), id); err != nil {
		t.Fatalf("send next: %v", err)
	}
	if sender.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", sender.calls)
	}
}

func TestSendNextClearsPendingOnLastRecipient(t *testing.T) {
	svc, _, st, id := newDispatchFixture(t, []string{"a@x.com"})

	res, err := svc.SendNext(context.Background(), id)
	if err != nil {
		t.Fatalf("send next: %v", err)
	}
	if res.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", res.Remaining)
	}

	p, err := st.GetPulse(context.Background(), id)
	if err != nil {
		t.Fatalf("get pulse: %v", err)
	}
	if len(p.PendingEmails) != 0 {
		t.Fatalf("last recipient still pending: %v", p.PendingEmails)
	}
	if len(p.SentEmails) != 1 || p.SentEmails[0] != "a@x.com" {
		t.Fatalf("sent list = %v", p.SentEmails)
	}
	if got := p.State(); got != models.StateAwaitingResponses {
		t.Fatalf("state = %q, want %q", got, models.StateAwaitingResponses)
	}
}

func TestSendNextNoPending(t *testing.T) {
	svc, _, _, id := newDispatchFixture(t, []string{"a@x.com"})
	if _, err := svc.SendNext(context.Background(), id); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if _, err := svc.SendNext(context.Background(), id); !errors.Is(err, ErrNoPending) {
		t.Fatalf("expected ErrNoPending, got %v", err)
	}
}

func TestSendAllDrains(t *testing.T) {
	svc, sender, st, id := newDispatchFixture(t, []string{"a@x.com", "b@x.com", "c@x.com"})

	report, err := svc.SendAll(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("send all: %v", err)
	}
	if !report.Success || report.SentCount != 3 || report.Remaining != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(sender.sent) != 3 {
		t.Fatalf("sender saw %v", sender.sent)
	}
	p, _ := st.GetPulse(context.Background(), id)
	if len(p.PendingEmails) != 0 || len(p.SentEmails) != 3 {
		t.Fatalf("partition sent=%v pending=%v", p.SentEmails, p.PendingEmails)
	}
}

func TestSendAllSeedsPlaceholderRecipients(t *testing.T) {
	st := store.NewMemoryStore()
	responses := NewResponseService(st)
	// A response against an unknown pulse creates a placeholder without
	// recipients.
	if _, err := responses.Submit(context.Background(), "orphan1", "tok", "doing fine"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	sender := &stubSender{}
	svc := NewDispatchService(st, sender, "http://localhost:3000", 5*time.Second)
	report, err := svc.SendAll(context.Background(), "orphan1", []string{"a@x.com", "b@x.com"})
	if err != nil {
		t.Fatalf("send all: %v", err)
	}
	if report.SentCount != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	p, _ := st.GetPulse(context.Background(), "orphan1")
	if len(p.RecipientEmails) != 2 {
		t.Fatalf("recipients not seeded: %v", p.RecipientEmails)
	}
}

func TestDrainPendingAdvancesEveryPulse(t *testing.T) {
	st := store.NewMemoryStore()
	pulses := NewPulseService(st)
	ctx := context.Background()
	p1, _ := pulses.Create(ctx, "1", "one", []string{"a@x.com", "b@x.com"}, nil)
	p2, _ := pulses.Create(ctx, "1", "two", []string{"c@x.com"}, nil)

	sender := &stubSender{}
	svc := NewDispatchService(st, sender, "http://localhost:3000", 5*time.Second)
	if err := svc.DrainPending(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	q1, _ := st.GetPulse(ctx, p1.ID)
	q2, _ := st.GetPulse(ctx, p2.ID)
	if len(q1.SentEmails) != 1 || len(q2.SentEmails) != 1 {
		t.Fatalf("drain advanced sent=%v / %v", q1.SentEmails, q2.SentEmails)
	}
}
