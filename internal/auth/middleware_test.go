package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMiddlewareInjectsUserID(t *testing.T) {
	tm := newTestManager(t)
	pair, err := tm.Issue("u1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	var gotUserID string
	handler := Middleware(tm, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUserID != "u1" {
		t.Fatalf("UserID() = %q, want u1", gotUserID)
	}
}

func TestMiddlewareAcceptsQueryToken(t *testing.T) {
	tm := newTestManager(t)
	pair, err := tm.Issue("u1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	var gotUserID string
	handler := Middleware(tm, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws?access_token="+pair.AccessToken, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if gotUserID != "u1" {
		t.Fatalf("UserID() = %q, want u1", gotUserID)
	}
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	tm := newTestManager(t)
	handler := Middleware(tm, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler reached without valid token")
	}))

	cases := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"no header", func(r *http.Request) {}},
		{"garbage token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }},
		{"refresh token", func(r *http.Request) {
			pair, err := tm.Issue("u1")
			if err != nil {
				t.Fatalf("Issue() error = %v", err)
			}
			r.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
		}},
		{"expired token", func(r *http.Request) {
			short, err := NewTokenManager("test-secret", time.Nanosecond, time.Hour)
			if err != nil {
				t.Fatalf("NewTokenManager() error = %v", err)
			}
			pair, err := short.Issue("u1")
			if err != nil {
				t.Fatalf("Issue() error = %v", err)
			}
			time.Sleep(time.Millisecond)
			r.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}
