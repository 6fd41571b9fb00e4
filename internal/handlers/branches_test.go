package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/Elizabethomito/gymdesk/backend/internal/models"
)

// seedUser inserts a user with the given role and returns their ID.
func seedUser(t *testing.T, srv *Server, role models.UserRole, branch *int64) string {
	t.Helper()
	id := uuid.NewString()
	_, err := srv.DB.Exec(
		`INSERT INTO users (id, email, password_hash, name, role, branch_id) VALUES (?, ?, ?, ?, ?, ?)`,
		id, fmt.Sprintf("%s-%s@test.com", role, id), "hash", "Test "+string(role), role, branch,
	)
	if err != nil {
		t.Fatalf("seedUser: %v", err)
	}
	return id
}

// seedBranch inserts a branch and returns its ID.
func seedBranch(t *testing.T, srv *Server, name string) int64 {
	t.Helper()
	res, err := srv.DB.Exec(`INSERT INTO branches (name) VALUES (?)`, name)
	if err != nil {
		t.Fatalf("seedBranch: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func TestCreateBranch_Success(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/branches",
		jsonBody(t, models.CreateBranchRequest{Name: " Riverside ", Address: "3 Riverside Drive"}))
	rec := httptest.NewRecorder()
	srv.CreateBranch(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var b models.Branch
	json.NewDecoder(rec.Body).Decode(&b)
	if b.ID == 0 || b.Name != "Riverside" {
		t.Errorf("branch: got %+v", b)
	}
}

func TestCreateBranch_Duplicate(t *testing.T) {
	srv := newTestServer(t)
	seedBranch(t, srv, "Downtown")

	req := httptest.NewRequest(http.MethodPost, "/api/branches",
		jsonBody(t, models.CreateBranchRequest{Name: "Downtown"}))
	rec := httptest.NewRecorder()
	srv.CreateBranch(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestCreateBranch_MissingName(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/branches", jsonBody(t, map[string]string{"address": "x"}))
	rec := httptest.NewRecorder()
	srv.CreateBranch(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestListAndGetBranch(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ListBranches(rec, httptest.NewRequest(http.MethodGet, "/api/branches", nil))
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("empty list: got %q, want []", body)
	}

	id := seedBranch(t, srv, "Downtown")
	seedBranch(t, srv, "Riverside")

	rec = httptest.NewRecorder()
	srv.ListBranches(rec, httptest.NewRequest(http.MethodGet, "/api/branches", nil))
	var list []models.Branch
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list) != 2 || list[0].Name != "Downtown" {
		t.Errorf("list: got %+v", list)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/branches/x", nil)
	req.SetPathValue("id", fmt.Sprint(id))
	rec = httptest.NewRecorder()
	srv.GetBranch(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("get: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/branches/x", nil)
	req.SetPathValue("id", "999")
	rec = httptest.NewRecorder()
	srv.GetBranch(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing: expected 404, got %d", rec.Code)
	}
}

func TestEnsureBranch_Idempotent(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < 2; i++ {
		if err := srv.EnsureBranch(context.Background(), 7, ""); err != nil {
			t.Fatalf("EnsureBranch: %v", err)
		}
	}
	var name string
	if err := srv.DB.QueryRow(`SELECT name FROM branches WHERE id = 7`).Scan(&name); err != nil {
		t.Fatalf("query: %v", err)
	}
	if name != "Branch 7" {
		t.Errorf("name: got %q", name)
	}
}
