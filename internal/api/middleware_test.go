package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hyperengineering/fieldops/internal/store"
	"github.com/hyperengineering/fieldops/internal/types"
)

// okHandler records whether it was reached.
func okHandler() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}), &called
}

// captureLogs routes slog to a JSON buffer for the rest of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(old) })
	return &buf
}

// --- AuthMiddleware ---

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{"valid token", "Bearer " + testAPIKey, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer wrong-token", http.StatusUnauthorized},
		{"no bearer prefix", testAPIKey, http.StatusUnauthorized},
		{"lowercase bearer", "bearer " + testAPIKey, http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"whitespace token", "Bearer    ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, called := okHandler()
			req := httptest.NewRequest(http.MethodGet, "/api/contracts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			AuthMiddleware(testAPIKey)(handler).ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if *called != (tt.wantCode == http.StatusOK) {
				t.Errorf("handler called = %v", *called)
			}
		})
	}
}

func TestAuthMiddleware_ResponseFormat_RFC7807(t *testing.T) {
	handler, _ := okHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	w := httptest.NewRecorder()

	AuthMiddleware(testAPIKey)(handler).ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %v, want application/problem+json", ct)
	}
	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal response as RFC 7807: %v", err)
	}
	if p.Type != "https://fieldops.dev/errors/unauthorized" || p.Status != 401 || p.Instance != "/api/jobs" {
		t.Errorf("unexpected problem %+v", p)
	}
	if strings.Contains(w.Body.String(), testAPIKey) {
		t.Error("response body contains the expected API key")
	}
}

func TestAuthMiddleware_EmptyKeyNeverMatches(t *testing.T) {
	handler, called := okHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer ")
	w := httptest.NewRecorder()

	AuthMiddleware("")(handler).ServeHTTP(w, req)

	if *called || w.Code != http.StatusUnauthorized {
		t.Errorf("empty key must reject, got %d", w.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{"valid token", "Bearer abc123", "abc123"},
		{"missing header", "", ""},
		{"no bearer prefix", "abc123", ""},
		{"empty after bearer", "Bearer ", ""},
		{"basic auth", "Basic abc123", ""},
		{"token trimmed", "Bearer  abc123 ", "abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := extractBearerToken(req); got != tt.expected {
				t.Errorf("extractBearerToken() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestConstantTimeEqual(t *testing.T) {
	tests := []struct {
		a, b     string
		expected bool
	}{
		{"abc123", "abc123", true},
		{"abc123", "xyz789", false},
		{"abc", "abcdef", false},
		{"abc", "", false},
	}
	for _, tt := range tests {
		if got := constantTimeEqual(tt.a, tt.b); got != tt.expected {
			t.Errorf("constantTimeEqual(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.expected)
		}
	}
}

// --- CronAuthMiddleware ---

func TestCronAuthMiddleware(t *testing.T) {
	handler, called := okHandler()
	mw := CronAuthMiddleware(testCronSecret)(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/contracts/check-status", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()
	mw.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized || *called {
		t.Fatalf("API key must not open the cron endpoint, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if !strings.Contains(w.Body.String(), `"error"`) {
		t.Errorf("body = %s, want {error}", w.Body.String())
	}

	req.Header.Set("Authorization", "Bearer "+testCronSecret)
	w = httptest.NewRecorder()
	mw.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !*called {
		t.Errorf("valid secret rejected: %d", w.Code)
	}
}

// --- UserMiddleware and RequireRole ---

type userMap map[string]*types.User

func (m userMap) GetUser(ctx context.Context, id string) (*types.User, error) {
	if id == "broken" {
		return nil, errors.New("disk I/O error")
	}
	u, ok := m[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func TestUserMiddleware(t *testing.T) {
	users := userMap{"u1": {ID: "u1", OrganizationID: "org-1", Role: types.RoleTechnician}}

	var seen *types.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = MustUserFromContext(r.Context())
	})
	mw := UserMiddleware(users)(next)

	tests := []struct {
		name     string
		userID   string
		wantCode int
	}{
		{"known user", "u1", http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"unknown user", "u2", http.StatusUnauthorized},
		{"lookup failure", "broken", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
			if tt.userID != "" {
				req.Header.Set(UserHeader, tt.userID)
			}
			w := httptest.NewRecorder()
			mw.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if (seen != nil) != (tt.wantCode == http.StatusOK) {
				t.Errorf("user in context = %v", seen)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	handler, called := okHandler()
	mw := RequireRole(types.RoleManager, types.RoleOffice)(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", nil)
	req = req.WithContext(WithUser(req.Context(), &types.User{ID: "t", Role: types.RoleTechnician}))
	w := httptest.NewRecorder()
	mw.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden || *called {
		t.Errorf("technician allowed: %d", w.Code)
	}

	req = req.WithContext(WithUser(req.Context(), &types.User{ID: "o", Role: types.RoleOffice}))
	w = httptest.NewRecorder()
	mw.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !*called {
		t.Errorf("office user rejected: %d", w.Code)
	}
}

func TestUserContext(t *testing.T) {
	if _, err := UserFromContext(context.Background()); !errors.Is(err, ErrNoUserInContext) {
		t.Errorf("expected ErrNoUserInContext, got %v", err)
	}
	if _, err := UserFromContext(WithUser(context.Background(), nil)); !errors.Is(err, ErrNoUserInContext) {
		t.Errorf("nil user must not count, got %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("MustUserFromContext should panic without a user")
		}
	}()
	MustUserFromContext(context.Background())
}

// --- Routing ---

func TestRouter_PublicAndProtectedGroups(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(testAPIKey))
			r.Get("/contracts", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health without auth: %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/contracts", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("protected route without auth: %d", w.Code)
	}
}

// --- Logging ---

func TestGetRequestID(t *testing.T) {
	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetRequestID(r.Context())))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	if w.Body.String() == "" {
		t.Error("expected a chi-generated request id")
	}

	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("GetRequestID without middleware = %q, want empty", id)
	}
}

func TestLogLevelForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   slog.Level
	}{
		{200, slog.LevelInfo},
		{204, slog.LevelInfo},
		{304, slog.LevelInfo},
		{400, slog.LevelWarn},
		{422, slog.LevelWarn},
		{499, slog.LevelWarn},
		{500, slog.LevelError},
		{503, slog.LevelError},
	}
	for _, tt := range tests {
		if got := logLevelForStatus(tt.status); got != tt.want {
			t.Errorf("logLevelForStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestLoggingMiddleware_Fields(t *testing.T) {
	logBuf := captureLogs(t)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(LoggingMiddleware)
	router.Get("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.RemoteAddr = "192.168.1.100:54321"
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	router.ServeHTTP(httptest.NewRecorder(), req)

	if strings.Contains(logBuf.String(), testAPIKey) {
		t.Fatal("log output contains the API key")
	}

	var entry map[string]any
	if err := json.Unmarshal(logBuf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log as JSON: %v", err)
	}
	if entry["msg"] != "request completed" || entry["level"] != "WARN" {
		t.Errorf("msg/level = %v/%v", entry["msg"], entry["level"])
	}
	for _, field := range []string{"request_id", "method", "path", "status", "duration_ms", "remote_addr"} {
		if _, ok := entry[field]; !ok {
			t.Errorf("missing field %s", field)
		}
	}
	if entry["remote_addr"] != "192.168.1.100:54321" {
		t.Errorf("remote_addr = %v", entry["remote_addr"])
	}
}

// --- RecoveryMiddleware ---

func TestRecoveryMiddleware_NoPanic(t *testing.T) {
	handler, _ := okHandler()
	w := httptest.NewRecorder()
	RecoveryMiddleware(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestRecoveryMiddleware_PanicNoLeak(t *testing.T) {
	logBuf := captureLogs(t)
	secret := "super-secret-database-password-12345"
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(secret)
	})

	w := httptest.NewRecorder()
	RecoveryMiddleware(panicHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if p.Detail != "Internal Server Error" || strings.Contains(w.Body.String(), secret) {
		t.Errorf("panic detail leaked: %s", w.Body.String())
	}
	if !strings.Contains(logBuf.String(), "panic recovered") || !strings.Contains(logBuf.String(), secret) {
		t.Error("expected the panic to be logged")
	}
}
