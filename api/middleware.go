package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"company-tasks-api/identity"
)

const userIDKey = "user_id"

// ContentTypeGate rejects mutating requests that declare a non-JSON body.
// A missing Content-Type is accepted.
func ContentTypeGate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			switch req.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
				ct := req.Header.Get(echo.HeaderContentType)
				if ct != "" && !strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
					return echo.NewHTTPError(http.StatusUnprocessableEntity, "Content-Type must be application/json")
				}
			}
			return next(c)
		}
	}
}

// RequireAuth resolves the bearer token to a user id and stores it on the
// context. Nothing behind it runs for unauthenticated requests.
func RequireAuth(auth Authenticator, logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if strings.TrimSpace(header) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
			}
			userID, err := auth.Verify(c.Request().Context(), header)
			if err != nil {
				if logger != nil {
					logger.WithError(err).Debug("token rejected")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, authFailureDetail(err)).SetInternal(err)
			}
			c.Set(userIDKey, userID)
			return next(c)
		}
	}
}

func authFailureDetail(err error) string {
	switch {
	case errors.Is(err, identity.ErrMissingToken):
		return "Authorization header required"
	case errors.Is(err, identity.ErrTokenExpired):
		return "Token expired"
	case strings.Contains(strings.ToLower(err.Error()), "revoked"):
		return "Token revoked"
	case errors.Is(err, identity.ErrInvalidToken):
		return "Invalid token"
	default:
		return "Authentication failed"
	}
}

func userID(c echo.Context) string {
	uid, _ := c.Get(userIDKey).(string)
	return uid
}

// PathGuard answers 404 for path parameters carrying traversal or script
// fragments. When the router matched on the raw path the values are still
// escaped; they are unescaped here and handed on decoded.
func PathGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			escaped := c.Request().URL.RawPath != ""
			values := c.ParamValues()
			decoded := make([]string, len(values))
			for i, v := range values {
				if escaped {
					u, err := url.PathUnescape(v)
					if err != nil {
						return echo.NewHTTPError(http.StatusNotFound, "Not found")
					}
					v = u
				}
				if suspiciousParam(v) {
					return echo.NewHTTPError(http.StatusNotFound, "Not found")
				}
				decoded[i] = v
			}
			if escaped {
				c.SetParamValues(decoded...)
			}
			return next(c)
		}
	}
}

func suspiciousParam(v string) bool {
	return strings.Contains(v, "../") ||
		strings.Contains(v, `..\`) ||
		strings.Contains(strings.ToLower(v), "<script>")
}

// RateLimit applies the per-user limiter. It must run after RequireAuth.
func RateLimit(limiter *RateLimiter, logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limiter == nil {
				return next(c)
			}
			uid := userID(c)
			if !limiter.Allow(uid) {
				if logger != nil {
					logger.WithField("user_id", uid).Warn("rate limit exceeded")
				}
				c.Response().Header().Set("Retry-After", limiter.retryAfter())
				return echo.NewHTTPError(http.StatusTooManyRequests, "Rate limit exceeded")
			}
			return next(c)
		}
	}
}
