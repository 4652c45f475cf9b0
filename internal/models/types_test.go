package models

import "testing"

func TestPulseState(t *testing.T) {
	cases := []struct {
		name  string
		pulse Pulse
		want  PulseState
	}{
		{"fresh", Pulse{RecipientEmails: []string{"a"}}, StateCreated},
		{"sending", Pulse{RecipientEmails: []string{"a", "b"}, SentEmails: []string{"a"}, PendingEmails: []string{"b"}}, StateSending},
		{"awaiting", Pulse{RecipientEmails: []string{"a", "b"}, SentEmails: []string{"a", "b"}, ResponseCount: 1}, StateAwaitingResponses},
		{"ready", Pulse{RecipientEmails: []string{"a", "b"}, SentEmails: []string{"a", "b"}, ResponseCount: 2}, StateReadyForAnalysis},
		{"analyzed", Pulse{RecipientEmails: []string{"a"}, ResponseCount: 1, HasAnalysis: true}, StateAnalyzed},
		// Analysis wins even while sends are outstanding.
		{"analyzed overrides pending", Pulse{RecipientEmails: []string{"a", "b"}, PendingEmails: []string{"b"}, HasAnalysis: true}, StateAnalyzed},
	}
	for _, tc := range cases {
		if got := tc.pulse.State(); got != tc.want {
			t.Errorf("%s: state = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestPulseResponded(t *testing.T) {
	p := Pulse{RecipientEmails: []string{"a", "b"}, ResponseCount: 1}
	if p.Responded() {
		t.Fatal("partial pulse reported responded")
	}
	p.ResponseCount = 2
	if !p.Responded() {
		t.Fatal("complete pulse not reported responded")
	}
	empty := Pulse{}
	if empty.Responded() {
		t.Fatal("pulse without recipients reported responded")
	}
}

func TestPulseUpdateApply(t *testing.T) {
	p := Pulse{Name: "old", ResponseCount: 1, PendingEmails: []string{"a"}}
	name := "new"
	count := 5
	upd := PulseUpdate{Name: &name, ResponseCount: &count, PendingEmails: []string{}}
	upd.Apply(&p)

	if p.Name != "new" || p.ResponseCount != 5 {
		t.Fatalf("apply missed fields: %+v", p)
	}
	if len(p.PendingEmails) != 0 {
		t.Fatalf("empty slice should overwrite: %v", p.PendingEmails)
	}

	// Nil fields leave the pulse untouched.
	PulseUpdate{}.Apply(&p)
	if p.Name != "new" || p.ResponseCount != 5 {
		t.Fatalf("zero update mutated the pulse: %+v", p)
	}
}
