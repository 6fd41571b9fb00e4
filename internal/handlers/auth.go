package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Elizabethomito/gymdesk/backend/internal/auth"
	"github.com/Elizabethomito/gymdesk/backend/internal/middleware"
	"github.com/Elizabethomito/gymdesk/backend/internal/models"
)

// Register handles POST /api/auth/register
//
// Anyone may sign up as a MEMBER. Staff accounts (every other role) are
// created by an ADMIN or SUPERADMIN, who sends their own bearer token
// along with the request.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Role == "" {
		req.Role = models.RoleMember
	}
	req.Role = models.NormalizeRole(string(req.Role))

	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if !req.Role.Valid() {
		respondError(w, http.StatusBadRequest, "unknown role "+string(req.Role))
		return
	}
	if req.Role != models.RoleMember && !s.callerIsAdmin(r) {
		respondError(w, http.StatusForbidden, "only an admin can create staff accounts")
		return
	}
	if req.BranchID != nil && !s.branchExists(r, *req.BranchID) {
		respondError(w, http.StatusBadRequest, "branch not found")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	now := s.clock()
	user := models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		Name:         req.Name,
		Role:         req.Role,
		BranchID:     req.BranchID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = s.DB.ExecContext(r.Context(),
		`INSERT INTO users (id, email, password_hash, name, role, branch_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.Name, user.Role, user.BranchID, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			respondError(w, http.StatusConflict, "email already registered")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not create user")
		return
	}

	token, err := auth.GenerateToken(user.ID, string(user.Role), user.BranchID, s.Secret)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not generate token")
		return
	}

	s.log().Info("user registered", "user_id", user.ID, "role", user.Role)
	respond(w, http.StatusCreated, models.LoginResponse{Token: token, User: user})
}

// callerIsAdmin checks an optional bearer token on an otherwise public route.
func (s *Server) callerIsAdmin(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return false
	}
	claims, err := auth.ParseToken(strings.TrimPrefix(header, "Bearer "), s.Secret)
	if err != nil {
		return false
	}
	role := models.NormalizeRole(claims.Role)
	return role == models.RoleAdmin || role == models.RoleSuperAdmin
}

// Login handles POST /api/auth/login
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	user, err := s.loadUser(r, "email", req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.GenerateToken(user.ID, string(user.Role), user.BranchID, s.Secret)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not generate token")
		return
	}

	respond(w, http.StatusOK, models.LoginResponse{Token: token, User: user})
}

// Me handles GET /api/auth/me
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	user, err := s.loadUser(r, "id", middleware.GetUserID(r.Context()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	respond(w, http.StatusOK, user)
}

// loadUser reads one user by "id" or "email".
func (s *Server) loadUser(r *http.Request, column, value string) (models.User, error) {
	var (
		user   models.User
		branch sql.NullInt64
	)
	query := `SELECT id, email, password_hash, name, role, branch_id, created_at, updated_at
	          FROM users WHERE ` + column + ` = ?`
	err := s.DB.QueryRowContext(r.Context(), query, value).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.Role, &branch,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return models.User{}, err
	}
	if branch.Valid {
		user.BranchID = &branch.Int64
	}
	return user, nil
}
