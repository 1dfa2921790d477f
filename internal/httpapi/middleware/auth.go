// Package middleware holds the echo middleware for the execution HTTP
// boundary: authentication (RequireAuth). Rate-limit admission is not
// middleware; the execute handler performs it. Grounded on the teacher's
// cmd/orchestrator/middleware/auth.go (ContextKey + extraction pattern).
package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ContextKey namespaces values this package sets on the echo context,
// mirroring the teacher's own ContextKey convention.
type ContextKey string

const (
	UserIDKey ContextKey = "user_id"
	// APIKeyHeader is the header carrying a caller's API key when no
	// session cookie is present.
	APIKeyHeader = "x-api-key"
	// SessionCookie is the cookie name carrying an authenticated session.
	SessionCookie = "sim_session"
)

// SessionVerifier resolves a session cookie value to a user id. A database-
// backed session store is an external collaborator the core never
// implements directly; the HTTP boundary only needs this narrow contract.
type SessionVerifier interface {
	VerifySession(cookieValue string) (userID string, ok bool)
}

// APIKeyVerifier resolves an API key to a user id, mirroring SessionVerifier
// for the header-based auth path.
type APIKeyVerifier interface {
	VerifyAPIKey(key string) (userID string, ok bool)
}

// RequireAuth authenticates via session cookie OR x-api-key header, per
// spec §6: "Auth: session cookie OR x-api-key header; 401 on neither."
// Either verifier may be nil, in which case that path is skipped.
func RequireAuth(sessions SessionVerifier, apiKeys APIKeyVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if key := c.Request().Header.Get(APIKeyHeader); key != "" && apiKeys != nil {
				if userID, ok := apiKeys.VerifyAPIKey(key); ok {
					c.Set(string(UserIDKey), userID)
					return next(c)
				}
			}
			if cookie, err := c.Cookie(SessionCookie); err == nil && sessions != nil {
				if userID, ok := sessions.VerifySession(cookie.Value); ok {
					c.Set(string(UserIDKey), userID)
					return next(c)
				}
			}
			return c.JSON(http.StatusUnauthorized, map[string]any{
				"error": "unauthorized",
			})
		}
	}
}

// UserID reads the user id RequireAuth attached to the context.
func UserID(c echo.Context) string {
	v, _ := c.Get(string(UserIDKey)).(string)
	return v
}
