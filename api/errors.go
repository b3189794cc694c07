package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"company-tasks-api/domain"
)

const internalErrorDetail = "Internal server error"

type errorClass struct {
	status int
	detail string
}

// trigger maps a lower-cased message substring to a response class.
type trigger struct {
	substr string
	errorClass
}

// endpointRules adds endpoint-specific cases in front of the shared table.
type endpointRules struct {
	triggers []trigger
	kinds    map[domain.Kind]errorClass
}

var kindClasses = map[domain.Kind]errorClass{
	domain.KindInternal:        {http.StatusInternalServerError, internalErrorDetail},
	domain.KindUnavailable:     {http.StatusServiceUnavailable, "Service unavailable"},
	domain.KindNetwork:         {http.StatusBadGateway, "Network error"},
	domain.KindTimeout:         {http.StatusInternalServerError, "Request timeout"},
	domain.KindGatewayTimeout:  {http.StatusGatewayTimeout, "Gateway timeout"},
	domain.KindForbidden:       {http.StatusForbidden, "Forbidden"},
	domain.KindConflict:        {http.StatusConflict, "Conflict"},
	domain.KindRateLimited:     {http.StatusTooManyRequests, "Rate limit exceeded"},
	domain.KindPaymentRequired: {http.StatusPaymentRequired, "Payment required"},
	domain.KindNotImplemented:  {http.StatusNotImplemented, "Not implemented"},
	domain.KindUnauthenticated: {http.StatusUnauthorized, "Authentication failed"},
	domain.KindNotFound:        {http.StatusNotFound, "Not found"},
	domain.KindValidation:      {http.StatusUnprocessableEntity, "Validation error"},
}

// messageTriggers classifies errors that carry no kind. Order matters:
// "gateway timeout" must win over "timeout".
var messageTriggers = []trigger{
	{"insufficient permissions", errorClass{http.StatusForbidden, "Insufficient permissions"}},
	{"permission denied", errorClass{http.StatusForbidden, "Permission denied"}},
	{"database connection failed", errorClass{http.StatusInternalServerError, "Database connection failed"}},
	{"database error", errorClass{http.StatusInternalServerError, "Database error"}},
	{"service unavailable", errorClass{http.StatusServiceUnavailable, "Service unavailable"}},
	{"service temporarily unavailable", errorClass{http.StatusServiceUnavailable, "Service unavailable"}},
	{"network error", errorClass{http.StatusBadGateway, "Network error"}},
	{"gateway timeout", errorClass{http.StatusGatewayTimeout, "Gateway timeout"}},
	{"timeout", errorClass{http.StatusInternalServerError, "Request timeout"}},
	{"not implemented", errorClass{http.StatusNotImplemented, "Not implemented"}},
	{"payment required", errorClass{http.StatusPaymentRequired, "Payment required"}},
	{"forbidden", errorClass{http.StatusForbidden, "Forbidden"}},
	{"concurrent modification detected", errorClass{http.StatusConflict, "Concurrent modification detected"}},
	{"conflict", errorClass{http.StatusConflict, "Conflict"}},
	{"rate limit exceeded", errorClass{http.StatusTooManyRequests, "Rate limit exceeded"}},
}

var deleteCompanyRules = endpointRules{
	triggers: []trigger{
		{"already deleted", errorClass{http.StatusConflict, "Company already deleted"}},
		{"foreign key constraint violation", errorClass{http.StatusConflict, "Foreign key constraint violation"}},
	},
}

var createUserRules = endpointRules{
	triggers: []trigger{
		{"email already exists", errorClass{http.StatusConflict, "Email already exists"}},
	},
	kinds: map[domain.Kind]errorClass{
		domain.KindTimeout:  {http.StatusRequestTimeout, "Request timeout"},
		domain.KindInternal: {http.StatusInternalServerError, "Identity provider error"},
	},
}

// classify maps an error to the response class reported to the client.
// Endpoint triggers are checked first, then the error kind, then the shared
// message table. Anything unmatched is an internal error.
func classify(err error, rules ...endpointRules) errorClass {
	if err == nil {
		return errorClass{http.StatusInternalServerError, internalErrorDetail}
	}
	msg := strings.ToLower(err.Error())
	for _, r := range rules {
		if cls, ok := matchTriggers(msg, r.triggers); ok {
			return cls
		}
	}

	if kind, ok := domain.KindOf(err); ok {
		for _, r := range rules {
			if cls, ok := r.kinds[kind]; ok {
				return cls
			}
		}
		if kind == domain.KindValidation {
			var de *domain.Error
			if errors.As(err, &de) && de.Message != "" {
				return errorClass{http.StatusUnprocessableEntity, de.Message}
			}
		}
		if cls, ok := kindClasses[kind]; ok {
			return cls
		}
	}

	if cls, ok := matchTriggers(msg, messageTriggers); ok {
		return cls
	}
	return errorClass{http.StatusInternalServerError, internalErrorDetail}
}

func matchTriggers(msg string, triggers []trigger) (errorClass, bool) {
	for _, t := range triggers {
		if strings.Contains(msg, t.substr) {
			return t.errorClass, true
		}
	}
	return errorClass{}, false
}

// remoteError converts a failed remote call into the HTTP error echo renders.
func remoteError(err error, rules ...endpointRules) *echo.HTTPError {
	cls := classify(err, rules...)
	return echo.NewHTTPError(cls.status, cls.detail).SetInternal(err)
}

type detailResponse struct {
	Detail string `json:"detail"`
}

type messageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// NewHTTPErrorHandler renders every error as {"detail": "..."}.
func NewHTTPErrorHandler(deps Deps) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		detail := internalErrorDetail
		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			status = he.Code
			if msg, ok := he.Message.(string); ok {
				detail = msg
			} else if he.Message != nil {
				detail = fmt.Sprint(he.Message)
			}
		default:
			cls := classify(err)
			status, detail = cls.status, cls.detail
		}

		if status >= http.StatusInternalServerError && deps.Logger != nil {
			deps.Logger.WithError(err).WithField("route", c.Path()).Error("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, detailResponse{Detail: detail})
		}
		if werr != nil && deps.Logger != nil {
			deps.Logger.WithError(werr).Warn("write error response")
		}
	}
}
