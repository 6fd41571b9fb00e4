// Package middleware provides HTTP middleware for the GymDesk server.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — two kinds of "no"
// ────────────────────────────────────────────────────────────────────
// JSON API routes answer a missing token with 401 and a wrong role with
// 403; a program on the other end decides what to do next.
//
// Dashboard routes are opened by people, so Guard answers the same two
// situations with a redirect instead: to the login page (remembering
// where the person was going), or to the dashboard of the role they
// actually hold. The decision itself lives in package authz.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Elizabethomito/gymdesk/backend/internal/auth"
	"github.com/Elizabethomito/gymdesk/backend/internal/authz"
)

// contextKey is a private type for context keys in this package.
type contextKey string

const (
	// ContextUserID is the key under which the authenticated user's ID
	// is stored in the request context after Authenticate runs.
	ContextUserID contextKey = "user_id"
	// ContextRole is the key for the user's normalised role ("ADMIN", "MEMBER", ...).
	ContextRole contextKey = "role"
	// ContextBranchID is the key for the branch the user is assigned to, if any.
	ContextBranchID contextKey = "branch_id"
	// ContextRequestID is the key for the per-request id set by RequestLogger.
	ContextRequestID contextKey = "request_id"
)

// SessionCookie is the cookie Guard reads when no Authorization header is sent.
const SessionCookie = "authToken"

// Authenticate is a middleware factory configured with the JWT secret.
//
// Flow:
//  1. Read the "Authorization: Bearer <token>" header.
//  2. Parse and validate the JWT.
//  3. Store user_id, role and branch_id in the request context.
//  4. Call the next handler.
//
// If the token is missing or invalid, it responds with 401 and stops.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearer(r)
			if !ok {
				jsonError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
				return
			}

			claims, err := auth.ParseToken(tokenStr, secret)
			if err != nil {
				jsonError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// RequireRole returns a middleware that only allows requests whose context
// role matches one of the given roles, ignoring case. Must be used after
// Authenticate.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[authz.Normalize(r)] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed[GetRole(r.Context())] {
				jsonError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Guard protects a page route with authz.Authorize. The session comes from
// the bearer header or, failing that, the authToken cookie. A token that
// does not verify counts as no token. Redirects use 303 so a POST never
// gets replayed against the landing page.
func Guard(secret string, requiredAuth bool, allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				sess   authz.Session
				claims *auth.Claims
			)
			if tokenStr := sessionToken(r); tokenStr != "" {
				if c, err := auth.ParseToken(tokenStr, secret); err == nil {
					claims = c
					sess = authz.Session{Token: tokenStr, Role: c.Role}
				}
			}

			d := authz.Authorize(sess, r.URL.RequestURI(), requiredAuth, allowedRoles...)
			if !d.Allow {
				http.Redirect(w, r, d.RedirectTo, http.StatusSeeOther)
				return
			}
			if claims != nil {
				r = r.WithContext(withClaims(r.Context(), claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORS adds permissive CORS headers so the browser dashboard can call the
// API from a different origin. The OPTIONS preflight gets 204.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder remembers the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs one line per request and tags it with an
// X-Request-ID (the caller's, or a fresh UUID).
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			ctx := context.WithValue(r.Context(), ContextRequestID, id)
			next.ServeHTTP(rec, r.WithContext(ctx))

			level := slog.LevelInfo
			if rec.status >= 500 {
				level = slog.LevelError
			}
			logger.Log(ctx, level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
				"request_id", id,
			)
		})
	}
}

// GetUserID retrieves the authenticated user's ID from the context.
// Returns an empty string if Authenticate has not run.
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(ContextUserID).(string)
	return id
}

// GetRole retrieves the authenticated user's normalised role from the context.
func GetRole(ctx context.Context) string {
	role, _ := ctx.Value(ContextRole).(string)
	return role
}

// GetRequestID returns the id RequestLogger assigned, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ContextRequestID).(string)
	return id
}

func withClaims(ctx context.Context, c *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, ContextUserID, c.UserID)
	ctx = context.WithValue(ctx, ContextRole, authz.Normalize(c.Role))
	return context.WithValue(ctx, ContextBranchID, c.BranchID)
}

func bearer(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(header, "Bearer "), true
}

func sessionToken(r *http.Request) string {
	if t, ok := bearer(r); ok {
		return t
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
