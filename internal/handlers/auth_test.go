package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Elizabethomito/gymdesk/backend/internal/auth"
	"github.com/Elizabethomito/gymdesk/backend/internal/db"
	"github.com/Elizabethomito/gymdesk/backend/internal/middleware"
	"github.com/Elizabethomito/gymdesk/backend/internal/models"
)

const testSecret = "handler-test-secret"

var testDBCounter uint64

// newTestServer creates a Server backed by a unique in-memory SQLite database.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	// Each test gets its own named shared-cache memory DB so connections
	// in the pool all see the same tables without interfering across tests.
	id := atomic.AddUint64(&testDBCounter, 1)
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared&_foreign_keys=on", id)
	testDB, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("newTestServer: open db: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })
	return &Server{DB: testDB, Secret: testSecret}
}

// jsonBody encodes v to JSON and returns a bytes.Buffer.
func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("jsonBody: %v", err)
	}
	return buf
}

// ctxWithUser attaches a user_id and role to a request's context (simulates Authenticate middleware).
func ctxWithUser(r *http.Request, userID string, role models.UserRole) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.ContextUserID, userID)
	ctx = context.WithValue(ctx, middleware.ContextRole, string(role))
	return r.WithContext(ctx)
}

// ---- Auth handler tests ----

func TestRegister_Success(t *testing.T) {
	srv := newTestServer(t)
	body := jsonBody(t, models.RegisterRequest{
		Email:    "Alice@Example.com ",
		Password: "password123",
		Name:     "Alice",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", body)
	rec := httptest.NewRecorder()
	srv.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected non-empty token")
	}
	if resp.User.Email != "alice@example.com" {
		t.Errorf("email: got %q", resp.User.Email)
	}
	if resp.User.Role != models.RoleMember {
		t.Errorf("role: got %q, want MEMBER by default", resp.User.Role)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	srv := newTestServer(t)
	payload := models.RegisterRequest{
		Email:    "bob@example.com",
		Password: "password123",
		Name:     "Bob",
	}
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, payload))
		rec := httptest.NewRecorder()
		srv.Register(rec, req)
		if i == 1 && rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rec.Code)
		}
	}
}

func TestRegister_Validation(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"unknown role", map[string]string{"email": "x@x.com", "password": "password123", "name": "X", "role": "janitor"}, http.StatusBadRequest},
		{"short password", map[string]string{"email": "x@x.com", "password": "short", "name": "X"}, http.StatusBadRequest},
		{"bad email", map[string]string{"email": "not-an-email", "password": "password123", "name": "X"}, http.StatusBadRequest},
		{"missing name", map[string]string{"email": "x@x.com", "password": "password123"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, tt.body))
			rec := httptest.NewRecorder()
			srv.Register(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRegister_StaffNeedsAdmin(t *testing.T) {
	srv := newTestServer(t)
	staff := models.RegisterRequest{
		Email: "desk@example.com", Password: "password123", Name: "Desk", Role: "receptionist",
	}

	// Anonymous: forbidden.
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, staff))
	rec := httptest.NewRecorder()
	srv.Register(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("anonymous staff signup: expected 403, got %d", rec.Code)
	}

	// With an admin token: created, role normalised.
	adminToken, _ := auth.GenerateToken("admin-1", "ADMIN", nil, testSecret)
	req = httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, staff))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	srv.Register(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin-created staff: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.LoginResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.User.Role != models.RoleReceptionist {
		t.Errorf("role: got %q, want RECEPTIONIST", resp.User.Role)
	}
}

func TestLogin_Success(t *testing.T) {
	srv := newTestServer(t)
	branch := seedBranch(t, srv, "Downtown")
	regBody := jsonBody(t, models.RegisterRequest{
		Email:    "carol@example.com",
		Password: "securepass",
		Name:     "Carol",
		BranchID: &branch,
	})
	srv.Register(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", regBody))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		jsonBody(t, models.LoginRequest{Email: "carol@example.com", Password: "securepass"}))
	rec := httptest.NewRecorder()
	srv.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.LoginResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	claims, err := auth.ParseToken(resp.Token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.BranchID == nil || *claims.BranchID != branch {
		t.Errorf("token branch: got %v, want %d", claims.BranchID, branch)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	srv := newTestServer(t)
	regBody := jsonBody(t, models.RegisterRequest{
		Email:    "dave@example.com",
		Password: "correctpass",
		Name:     "Dave",
	})
	srv.Register(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", regBody))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		jsonBody(t, models.LoginRequest{Email: "dave@example.com", Password: "wrongpass"}))
	rec := httptest.NewRecorder()
	srv.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMe(t *testing.T) {
	srv := newTestServer(t)
	userID := seedUser(t, srv, models.RoleMember, nil)

	req := ctxWithUser(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), userID, models.RoleMember)
	rec := httptest.NewRecorder()
	srv.Me(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var u models.User
	json.NewDecoder(rec.Body).Decode(&u)
	if u.ID != userID {
		t.Errorf("id: got %q, want %q", u.ID, userID)
	}

	req = ctxWithUser(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), "ghost", models.RoleMember)
	rec = httptest.NewRecorder()
	srv.Me(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown user: expected 404, got %d", rec.Code)
	}
}
