package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"stencil/internal/ims"
	"stencil/internal/pkg/errors"
	"stencil/internal/pkg/logger"
)

type stubVerifier struct {
	claims *ims.Claims
	err    error
	calls  int
}

func (v *stubVerifier) Verify(_ context.Context, token string) (*ims.Claims, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return v.claims, nil
}

func testLog() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "json", Output: io.Discard})
}

func TestAuth(t *testing.T) {
	t.Run("rejects missing token", func(t *testing.T) {
		verifier := &stubVerifier{}
		handler := Auth(testLog(), verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not be reached")
		}))

		req := httptest.NewRequest("POST", "/templates", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rec.Code)
		}
		if verifier.calls != 0 {
			t.Errorf("expected verifier not to be called, got %d calls", verifier.calls)
		}
	})

	t.Run("rejects invalid token", func(t *testing.T) {
		verifier := &stubVerifier{err: errors.New(errors.CodeUnauthorized, "invalid token")}
		handler := Auth(testLog(), verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not be reached")
		}))

		req := httptest.NewRequest("POST", "/templates", nil)
		req.Header.Set("Authorization", "Bearer bad-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rec.Code)
		}
	})

	t.Run("stores claims and token on context", func(t *testing.T) {
		verifier := &stubVerifier{claims: &ims.Claims{UserID: "usr-1", ClientID: "cli"}}

		var gotClaims *ims.Claims
		var gotToken string
		handler := Auth(testLog(), verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotClaims, _ = ims.ClaimsFromContext(r.Context())
			gotToken = ims.TokenFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("POST", "/templates", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
		if gotClaims == nil || gotClaims.UserID != "usr-1" {
			t.Errorf("expected claims in context, got %+v", gotClaims)
		}
		if gotToken != "good-token" {
			t.Errorf("expected raw token in context, got %q", gotToken)
		}
	})
}

func TestOptionalAuth(t *testing.T) {
	t.Run("lets anonymous requests through", func(t *testing.T) {
		verifier := &stubVerifier{}
		handler := OptionalAuth(testLog(), verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := ims.ClaimsFromContext(r.Context()); ok {
				t.Error("expected no claims for anonymous request")
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("GET", "/templates", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
		if verifier.calls != 0 {
			t.Errorf("expected verifier not to be called, got %d calls", verifier.calls)
		}
	})

	t.Run("still rejects bad tokens", func(t *testing.T) {
		verifier := &stubVerifier{err: errors.New(errors.CodeUnauthorized, "invalid token")}
		handler := OptionalAuth(testLog(), verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not be reached")
		}))

		req := httptest.NewRequest("GET", "/templates", nil)
		req.Header.Set("Authorization", "Bearer bad-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rec.Code)
		}
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{"no header", "", ""},
		{"bearer token", "Bearer abc123", "abc123"},
		{"case insensitive scheme", "bearer abc123", "abc123"},
		{"wrong scheme", "Basic abc123", ""},
		{"scheme only", "Bearer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := bearerToken(req); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
