package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestResendSend(t *testing.T) {
	var got struct {
		From    string   `json:"from"`
		To      []string `json:"to"`
		Subject string   `json:"subject"`
		HTML    string   `json:"html"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer re_test" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"id":"email_123"}`))
	}))
	defer srv.Close()

	s := NewResendSender("re_test", "team@heartbeat.dev")
	s.baseURL = srv.URL

	id, err := s.Send(context.Background(), "a@x.com", "Hello", "<p>hi</p>")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "email_123" {
		t.Fatalf("id = %q", id)
	}
	if len(got.To) != 1 || got.To[0] != "a@x.com" {
		t.Fatalf("to = %v", got.To)
	}
	if !strings.Contains(got.From, "team@heartbeat.dev") {
		t.Fatalf("from = %q", got.From)
	}
}

func TestResendSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"invalid to address"}`))
	}))
	defer srv.Close()

	s := NewResendSender("re_test", "team@heartbeat.dev")
	s.baseURL = srv.URL

	if _, err := s.Send(context.Background(), "bad", "Hello", "<p>hi</p>"); err == nil {
		t.Fatal("expected an error on 422")
	} else if !strings.Contains(err.Error(), "422") {
		t.Fatalf("error lacks status: %v", err)
	}
}
