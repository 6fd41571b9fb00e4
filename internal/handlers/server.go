// Package handlers contains the HTTP handler logic for the GymDesk API.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — package structure
// ────────────────────────────────────────────────────────────────────
// All handler files share the same "handlers" package so they can call
// each other's helpers freely without exporting them. The files are
// split by domain (auth, attendance, qrcode, branches, pages, seed)
// purely for readability.
//
// The central type is Server. It holds what every handler needs: a
// database connection, the JWT secret, the venue-wide QR issuer and a
// logger. Each test creates its own Server with its own in-memory
// database, so no test pollutes another.
//
// Two response shapes coexist. Auth, branch and QR routes answer
// {"error": "..."} on failure like any JSON API. The attendance routes
// keep the envelope existing front-desk clients already parse:
// {"success": bool, "message": "...", "attendance": ...}.
package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Elizabethomito/gymdesk/backend/internal/middleware"
	"github.com/Elizabethomito/gymdesk/backend/internal/models"
	"github.com/Elizabethomito/gymdesk/backend/internal/qr"
)

// respond writes v as JSON with the given HTTP status code.
// Content-Type must be set before WriteHeader flushes the headers.
func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// A client that disconnected mid-write is not worth a log line.
	_ = json.NewEncoder(w).Encode(body)
}

// respondError sends a JSON object with a single "error" key,
// e.g. {"error": "branch not found"}.
func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}

// respondAttendance sends the attendance envelope.
func respondAttendance(w http.ResponseWriter, status int, msg string, rec *models.AttendanceRecord) {
	respond(w, status, models.AttendanceResponse{
		Success:    status < 300,
		Message:    msg,
		Attendance: rec,
	})
}

// attendanceError sends a failed attendance envelope with no record.
func attendanceError(w http.ResponseWriter, status int, msg string) {
	respondAttendance(w, status, msg, nil)
}

// decode reads and parses a JSON request body into v.
func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// validate checks request DTOs against their `validate` struct tags.
var validate = validator.New()

// validationMessage turns a validator error into "field is required"
// style text for the client.
func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return "invalid input"
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "email":
			msgs = append(msgs, field+" must be a valid email")
		case "min":
			msgs = append(msgs, field+" must be at least "+fe.Param()+" characters")
		case "gt":
			msgs = append(msgs, field+" must be greater than "+fe.Param())
		default:
			msgs = append(msgs, field+" is invalid ("+fe.Tag()+")")
		}
	}
	return strings.Join(msgs, "; ")
}

// isUniqueViolation reports whether err came from a UNIQUE constraint
// (including the partial open-session index).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE")
}

// Server holds shared dependencies for all handlers.
type Server struct {
	// DB is the SQLite connection pool. database/sql is safe for
	// concurrent use.
	DB *sql.DB
	// Secret is the HMAC key used to sign and verify JWTs.
	Secret string
	// Issuer owns the venue-wide QR code. Nil disables the /qrcode/global routes.
	Issuer *qr.Issuer
	// Logger defaults to slog.Default() when nil.
	Logger *slog.Logger

	// now is replaced in tests.
	now func() time.Time
}

func (s *Server) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// reqLog tags s.log() with the request ID RequestLogger assigned, so
// audit lines can be matched to their access-log line.
func (s *Server) reqLog(r *http.Request) *slog.Logger {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		return s.log().With("request_id", id)
	}
	return s.log()
}

func (s *Server) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}
