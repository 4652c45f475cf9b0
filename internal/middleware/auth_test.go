package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWithAuthRoundTrip(t *testing.T) {
	tok, err := SignToken("ops-7", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	var uid string
	var ok bool
	h := WithAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok = OwnerFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/pulses", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !ok || uid != "ops-7" {
		t.Fatalf("claims not attached: uid=%q ok=%v", uid, ok)
	}
}

func TestWithAuthIgnoresBadToken(t *testing.T) {
	var ok bool
	h := WithAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = OwnerFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/pulses", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	// Invalid tokens pass through without claims; route-level checks decide
	// whether that matters.
	if ok {
		t.Fatal("claims attached from an invalid token")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("request blocked: %d", rec.Code)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	tok, err := SignToken("ops-7", -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := parseToken(tok); err == nil {
		t.Fatal("expired token parsed")
	}
}
