package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Elizabethomito/gymdesk/backend/internal/models"
)

// CreateBranch handles POST /api/branches  (ADMIN / SUPERADMIN)
//
// Branch IDs are small integers because they are printed inside QR payloads
// and typed in by hand on the front-desk scanners.
func (s *Server) CreateBranch(w http.ResponseWriter, r *http.Request) {
	var req models.CreateBranchRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	b := models.Branch{Name: req.Name, Address: req.Address, CreatedAt: s.clock()}
	res, err := s.DB.ExecContext(r.Context(),
		`INSERT INTO branches (name, address, created_at) VALUES (?, ?, ?)`,
		b.Name, b.Address, b.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			respondError(w, http.StatusConflict, "branch already exists")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not create branch")
		return
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		respondError(w, http.StatusInternalServerError, "could not create branch")
		return
	}

	respond(w, http.StatusCreated, b)
}

// ListBranches handles GET /api/branches
func (s *Server) ListBranches(w http.ResponseWriter, r *http.Request) {
	rows, err := s.DB.QueryContext(r.Context(),
		`SELECT id, name, address, created_at FROM branches ORDER BY id ASC`)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer rows.Close()

	// Empty slice so JSON encodes as [] not null.
	branches := []models.Branch{}
	for rows.Next() {
		var b models.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Address, &b.CreatedAt); err != nil {
			respondError(w, http.StatusInternalServerError, "scan error")
			return
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		respondError(w, http.StatusInternalServerError, "rows error")
		return
	}
	respond(w, http.StatusOK, branches)
}

// GetBranch handles GET /api/branches/{id}
func (s *Server) GetBranch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid branch id")
		return
	}

	var b models.Branch
	err = s.DB.QueryRowContext(r.Context(),
		`SELECT id, name, address, created_at FROM branches WHERE id = ?`, id,
	).Scan(&b.ID, &b.Name, &b.Address, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "branch not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	respond(w, http.StatusOK, b)
}

// EnsureBranch creates branch id with the given name unless it exists.
// The server calls it at startup for the branch its QR issuer advertises.
func (s *Server) EnsureBranch(ctx context.Context, id int64, name string) error {
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("Branch %d", id)
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO branches (id, name, created_at) VALUES (?, ?, ?)`,
		id, name, s.clock())
	if err != nil {
		return fmt.Errorf("ensure branch %d: %w", id, err)
	}
	return nil
}

func (s *Server) branchExists(r *http.Request, id int64) bool {
	var one int
	err := s.DB.QueryRowContext(r.Context(), `SELECT 1 FROM branches WHERE id = ?`, id).Scan(&one)
	return err == nil
}
