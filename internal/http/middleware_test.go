package http

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequireAdminToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		configured     string
		header         string
		authorization  string
		expectedStatus int
	}{
		{name: "missing token", configured: "secret", expectedStatus: http.StatusUnauthorized},
		{name: "wrong token", configured: "secret", header: "nope", expectedStatus: http.StatusForbidden},
		{name: "header token", configured: "secret", header: "secret", expectedStatus: http.StatusOK},
		{name: "bearer token", configured: "secret", authorization: "Bearer secret", expectedStatus: http.StatusOK},
		{name: "check disabled", configured: "", expectedStatus: http.StatusOK},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			called := false
			handler := RequireAdminToken(tc.configured, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/windows", nil)
			if tc.header != "" {
				req.Header.Set(AdminTokenHeader, tc.header)
			}
			if tc.authorization != "" {
				req.Header.Set("Authorization", tc.authorization)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.expectedStatus {
				t.Fatalf("expected status %d, got %d", tc.expectedStatus, rec.Code)
			}
			if called != (tc.expectedStatus == http.StatusOK) {
				t.Fatalf("next handler called = %v for status %d", called, rec.Code)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	t.Run("propagates the caller's request id", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		var seen string
		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = RequestIDFromContext(r.Context())
			if LoggerFromContext(r.Context()) == nil {
				t.Fatal("expected request logger in context")
			}
			w.WriteHeader(http.StatusTeapot)
		}))

		req := httptest.NewRequest(http.MethodGet, "/access/team-a", nil)
		req.Header.Set("X-Request-ID", "req-42")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if seen != "req-42" {
			t.Fatalf("expected request id req-42 in context, got %q", seen)
		}
		if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
			t.Fatalf("expected response header req-42, got %q", got)
		}
		out := buf.String()
		if !strings.Contains(out, "request completed") || !strings.Contains(out, "status=418") {
			t.Fatalf("expected completion log with status, got %q", out)
		}
	})

	t.Run("generates a request id when absent", func(t *testing.T) {
		t.Parallel()

		handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		if id := rec.Header().Get("X-Request-ID"); len(id) != 36 {
			t.Fatalf("expected generated uuid request id, got %q", id)
		}
	})
}
