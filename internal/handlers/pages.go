package handlers

import (
	"net/http"
	"time"

	"github.com/Elizabethomito/gymdesk/backend/internal/authz"
	"github.com/Elizabethomito/gymdesk/backend/internal/middleware"
	"github.com/Elizabethomito/gymdesk/backend/internal/models"
)

// DashboardView is the data behind a role's landing page. The front end
// renders it; charts and styling are its business.
type DashboardView struct {
	Role    models.UserRole `json:"role"`
	Landing string          `json:"landing"`
	User    models.User     `json:"user"`

	// Staff views.
	OpenSessions  *int `json:"openSessions,omitempty"`
	CheckInsToday *int `json:"checkInsToday,omitempty"`
	// Seconds until the venue-wide QR code rotates, for the front desk.
	QRExpiresIn *int `json:"qrExpiresIn,omitempty"`

	// Member view.
	Open   []models.AttendanceRecord `json:"open,omitempty"`
	Recent []models.AttendanceRecord `json:"recent,omitempty"`
}

// Dashboard returns the handler for role's landing page. It runs behind
// middleware.Guard, which has already redirected anyone who may not see it.
func (s *Server) Dashboard(role models.UserRole) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.loadUser(r, "id", middleware.GetUserID(r.Context()))
		if err != nil {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}

		view := DashboardView{Role: role, Landing: authz.LandingPath(string(role)), User: user}

		if role == models.RoleMember {
			if view.Open, err = s.listAttendance(r,
				`WHERE member_id = ? AND check_out IS NULL ORDER BY check_in DESC`, user.ID); err != nil {
				respondError(w, http.StatusInternalServerError, "database error")
				return
			}
			if view.Recent, err = s.listAttendance(r,
				`WHERE member_id = ? ORDER BY check_in DESC, id DESC LIMIT 5`, user.ID); err != nil {
				respondError(w, http.StatusInternalServerError, "database error")
				return
			}
			respond(w, http.StatusOK, view)
			return
		}

		// Staff with a home branch see that branch; the rest see every branch.
		scope, args := "", []any{}
		if user.BranchID != nil {
			scope, args = " AND branch_id = ?", []any{*user.BranchID}
		}

		var open, today int
		if err := s.DB.QueryRowContext(r.Context(),
			`SELECT COUNT(*) FROM member_attendance WHERE check_out IS NULL`+scope, args...,
		).Scan(&open); err != nil {
			respondError(w, http.StatusInternalServerError, "database error")
			return
		}
		midnight := s.clock().Truncate(24 * time.Hour)
		if err := s.DB.QueryRowContext(r.Context(),
			`SELECT COUNT(*) FROM member_attendance WHERE check_in >= ?`+scope, append([]any{midnight}, args...)...,
		).Scan(&today); err != nil {
			respondError(w, http.StatusInternalServerError, "database error")
			return
		}
		view.OpenSessions, view.CheckInsToday = &open, &today

		if s.Issuer != nil {
			if _, ok := s.Issuer.Current(); ok {
				secs := int(s.Issuer.Remaining() / time.Second)
				view.QRExpiresIn = &secs
			}
		}
		respond(w, http.StatusOK, view)
	}
}

// LoginPage handles GET /login, the target of Guard's redirects. The
// dashboard front end owns the actual form; this tells it where to go back.
func (s *Server) LoginPage(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{
		"message":  "sign in with POST /api/auth/login",
		"redirect": r.URL.Query().Get("redirect"),
	})
}

// Home handles GET /, the landing page for roles without a dashboard.
func (s *Server) Home(w http.ResponseWriter, r *http.Request) {
	landings := make(map[string]string, len(models.AllRoles))
	for _, role := range models.AllRoles {
		landings[string(role)] = authz.LandingPath(string(role))
	}
	respond(w, http.StatusOK, map[string]any{
		"service":    "gymdesk",
		"dashboards": landings,
	})
}
