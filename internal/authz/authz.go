// Package authz decides whether a session may view a protected page.
//
// Every dashboard route runs the same decision: no token → login page;
// wrong role → the caller's own landing page; otherwise render. Keeping
// it a pure function over an explicit Session means the rule lives in one
// place and is tested without HTTP, cookies or a database.
package authz

import (
	"net/url"
	"strings"
)

// LoginPath is where unauthenticated callers are sent.
const LoginPath = "/login"

// DefaultLandingPath is used for roles missing from the landing table.
const DefaultLandingPath = "/"

// landing maps a normalised role to the page it lands on.
var landing = map[string]string{
	"ADMIN":           "/admin/dashboard",
	"SUPERADMIN":      "/superadmin/dashboard",
	"MANAGER":         "/manager/dashboard",
	"RECEPTIONIST":    "/receptionist/dashboard",
	"PERSONALTRAINER": "/personaltrainer/dashboard",
	"GENERALTRAINER":  "/generaltrainer/dashboard",
	"HOUSEKEEPING":    "/housekeeping/dashboard",
	"MEMBER":          "/member/dashboard",
}

// Session is what the caller knows about the current login.
// The zero value is an anonymous session.
type Session struct {
	Token string
	Role  string
}

// Authenticated reports whether the session carries a token.
func (s Session) Authenticated() bool { return s.Token != "" }

// Decision is the result of Authorize: either Allow, or a redirect target.
type Decision struct {
	Allow      bool
	RedirectTo string
}

// Allowed is the decision that renders the protected content.
var Allowed = Decision{Allow: true}

// Redirect builds a redirect decision.
func Redirect(path string) Decision { return Decision{RedirectTo: path} }

// Normalize canonicalises a role for comparison.
func Normalize(role string) string {
	return strings.ToUpper(strings.TrimSpace(role))
}

// LandingPath returns the landing page of role, or DefaultLandingPath.
func LandingPath(role string) string {
	if p, ok := landing[Normalize(role)]; ok {
		return p
	}
	return DefaultLandingPath
}

// LoginRedirect returns the login path carrying from as the post-login target.
func LoginRedirect(from string) string {
	if from == "" || from == LoginPath {
		return LoginPath
	}
	return LoginPath + "?redirect=" + url.QueryEscape(from)
}

// Authorize evaluates, in order:
//
//  1. requiredAuth and no token      → redirect to login, keeping from
//  2. allowedRoles given, role absent → redirect to the role's own landing page
//  3. otherwise                       → allow
//
// An empty allowedRoles means any authenticated role may enter.
func Authorize(sess Session, from string, requiredAuth bool, allowedRoles ...string) Decision {
	if requiredAuth && !sess.Authenticated() {
		return Redirect(LoginRedirect(from))
	}

	if len(allowedRoles) > 0 {
		role := Normalize(sess.Role)
		permitted := false
		for _, r := range allowedRoles {
			if Normalize(r) == role {
				permitted = true
				break
			}
		}
		if !permitted {
			return Redirect(LandingPath(role))
		}
	}

	return Allowed
}
