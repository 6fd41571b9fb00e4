package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Elizabethomito/gymdesk/backend/internal/auth"
)

const testSecret = "middleware-test-secret"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS_SetsHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	CORS(okHandler()).ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("ACAO header: got %q, want *", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PUT") {
		t.Errorf("allow methods %q should include PUT for checkout", got)
	}
}

func TestCORS_PreflightReturns204(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	rec := httptest.NewRecorder()
	CORS(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status: got %d, want 204", rec.Code)
	}
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	Authenticate(testSecret)(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAuthenticate_ValidToken(t *testing.T) {
	branch := int64(3)
	token, err := auth.GenerateToken("user-1", "receptionist", &branch, testSecret)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	var (
		capturedID, capturedRole string
		capturedBranch           *int64
	)
	handler := Authenticate(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID = GetUserID(r.Context())
		capturedRole = GetRole(r.Context())
		capturedBranch, _ = r.Context().Value(ContextBranchID).(*int64)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if capturedID != "user-1" {
		t.Errorf("user_id: got %q, want user-1", capturedID)
	}
	if capturedRole != "RECEPTIONIST" {
		t.Errorf("role: got %q, want RECEPTIONIST (normalised)", capturedRole)
	}
	if capturedBranch == nil || *capturedBranch != 3 {
		t.Errorf("branch: got %v, want 3", capturedBranch)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	token, _ := auth.GenerateToken("user-2", "MEMBER", nil, testSecret)

	handler := Authenticate(testSecret)(RequireRole("ADMIN")(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestRequireRole_IgnoresCase(t *testing.T) {
	token, _ := auth.GenerateToken("user-3", "admin", nil, testSecret)

	handler := Authenticate(testSecret)(RequireRole("Admin", "SUPERADMIN")(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestGuard(t *testing.T) {
	manager, _ := auth.GenerateToken("u-m", "MANAGER", nil, testSecret)
	admin, _ := auth.GenerateToken("u-a", "ADMIN", nil, testSecret)
	expired, _ := auth.GenerateTokenWithExpiry("u-a", "ADMIN", nil, testSecret,
		time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))

	tests := []struct {
		name         string
		header       string
		cookie       string
		wantCode     int
		wantLocation string
	}{
		{"anonymous", "", "", http.StatusSeeOther, "/login?redirect=%2Fadmin%2Fdashboard"},
		{"expired token is anonymous", "Bearer " + expired, "", http.StatusSeeOther, "/login?redirect=%2Fadmin%2Fdashboard"},
		{"wrong role lands on own dashboard", "Bearer " + manager, "", http.StatusSeeOther, "/manager/dashboard"},
		{"admin via header", "Bearer " + admin, "", http.StatusOK, ""},
		{"admin via cookie", "", admin, http.StatusOK, ""},
	}

	h := Guard(testSecret, true, "ADMIN", "SUPERADMIN")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			t.Error("guard allowed a request without putting the user in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status: got %d, want %d", rec.Code, tt.wantCode)
			}
			if got := rec.Header().Get("Location"); got != tt.wantLocation {
				t.Errorf("location: got %q, want %q", got, tt.wantLocation)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var seen string
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/qrcode/global", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen == "" || rec.Header().Get("X-Request-ID") != seen {
		t.Errorf("request id: context %q, header %q", seen, rec.Header().Get("X-Request-ID"))
	}
	out := buf.String()
	for _, want := range []string{"path=/qrcode/global", "status=418", "request_id=" + seen} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %q missing %q", out, want)
		}
	}

	// A caller-supplied id is kept.
	buf.Reset()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc" {
		t.Errorf("request id: got %q, want abc", seen)
	}
}
