package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// SessionChecker reports the current token_version for a user. Implemented by
// the identity repository; a token whose embedded version trails the stored
// counter is a revoked session (global logout, password change, re-login).
type SessionChecker interface {
	TokenVersion(ctx context.Context, userID uuid.UUID) (int, error)
}

// Skipper reports whether a request should bypass authentication.
type Skipper func(c echo.Context) bool

// PublicPathSkipper skips authentication for the given path prefixes.
func PublicPathSkipper(prefixes ...string) Skipper {
	return func(c echo.Context) bool {
		path := c.Request().URL.Path
		for _, p := range prefixes {
			if strings.HasPrefix(path, p) {
				return true
			}
		}
		return false
	}
}

// Middleware authenticates Bearer tokens, enforces the token_version check,
// and stores the Principal on the request context. Skipped paths stay
// reachable without a token, but a valid bearer token on one still attaches
// the principal so public endpoints (QR scans) can attribute the caller.
func Middleware(issuer *TokenIssuer, sessions SessionChecker, skipper Skipper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				if p, err := authenticate(c, issuer, sessions); err == nil {
					c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
				}
				return next(c)
			}

			p, err := authenticate(c, issuer, sessions)
			if err != nil {
				return err
			}
			c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
			return next(c)
		}
	}
}

func authenticate(c echo.Context, issuer *TokenIssuer, sessions SessionChecker) (Principal, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}

	claims, err := issuer.Parse(parts[1])
	if err != nil {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
	}

	current, err := sessions.TokenVersion(c.Request().Context(), userID)
	if err != nil {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
	}
	if claims.Version != current {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "session expired")
	}

	return Principal{UserID: userID, Role: claims.Role, Email: claims.Email}, nil
}
