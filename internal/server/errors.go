package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	activitylogdomain "github.com/smallbiznis/licenseboard/internal/activitylog/domain"
	auditdomain "github.com/smallbiznis/licenseboard/internal/audit/domain"
	authdomain "github.com/smallbiznis/licenseboard/internal/auth/domain"
	"github.com/smallbiznis/licenseboard/internal/authorization"
	"github.com/smallbiznis/licenseboard/internal/dashboard"
	licensedomain "github.com/smallbiznis/licenseboard/internal/license/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{{Field: field, Code: code, Message: message}},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var columnsErr *licensedomain.ImportColumnsError
	if errors.As(err, &columnsErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: columnsErr.Error(),
			Errors: []ValidationError{{
				Field:   "file",
				Code:    "missing_columns",
				Message: columnsErr.Error(),
			}},
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{{
				Field:   validationErrorField(code),
				Code:    code,
				Message: validationErrorMessage(code),
			}},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrUnauthenticated),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionExpired):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "unauthorized"}
	case errors.Is(err, authdomain.ErrTooManyAttempts):
		return http.StatusTooManyRequests, errorPayload{Type: "too_many_requests", Message: "too many login attempts"}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "forbidden"}
	case errors.Is(err, ErrConflict),
		errors.Is(err, licensedomain.ErrConflict),
		errors.Is(err, licensedomain.ErrImportInProgress):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: conflictMessage(err)}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "not found"}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, dashboard.ErrReportUnavailable):
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "service unavailable"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, licensedomain.ErrConflict):
		return "license was modified by someone else"
	case errors.Is(err, licensedomain.ErrImportInProgress):
		return "another import is running"
	default:
		return "conflict"
	}
}

// classifyErrorForLog feeds the request logger the same type and code the client sees.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError {
		return "server", code
	}
	return "client", code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, dashboard.ErrInvalidMode),
		errors.Is(err, dashboard.ErrInvalidDateRange),
		errors.Is(err, activitylogdomain.ErrInvalidDateRange),
		errors.Is(err, activitylogdomain.ErrInvalidLogType),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	case isLicenseValidationError(err):
		return true
	default:
		return false
	}
}

func isLicenseValidationError(err error) bool {
	switch {
	case errors.Is(err, licensedomain.ErrInvalidID),
		errors.Is(err, licensedomain.ErrInvalidOwner),
		errors.Is(err, licensedomain.ErrUnknownCompany),
		errors.Is(err, licensedomain.ErrUnknownPartner),
		errors.Is(err, licensedomain.ErrUnknownProductCode),
		errors.Is(err, licensedomain.ErrInvalidDate),
		errors.Is(err, licensedomain.ErrInvalidDateRange),
		errors.Is(err, licensedomain.ErrInvalidCount),
		errors.Is(err, licensedomain.ErrInvalidCost),
		errors.Is(err, licensedomain.ErrInvalidCurrency),
		errors.Is(err, licensedomain.ErrInvalidStatus),
		errors.Is(err, licensedomain.ErrImmutableField),
		errors.Is(err, licensedomain.ErrEmptyImport):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, licensedomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// validationErrorCode unwraps to the sentinel so wrapped detail does not leak into codes.
func validationErrorCode(err error) string {
	for _, sentinel := range []error{
		ErrInvalidRequest,
		dashboard.ErrInvalidMode,
		dashboard.ErrInvalidDateRange,
		activitylogdomain.ErrInvalidDateRange,
		activitylogdomain.ErrInvalidLogType,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	for unwrapped := errors.Unwrap(err); unwrapped != nil; unwrapped = errors.Unwrap(unwrapped) {
		err = unwrapped
	}
	return err.Error()
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_date_range":
		return "end_date"
	case "exactly_one_of_company_or_partner_required":
		return "owner"
	case "immutable_field", "stale_update":
		return "license"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if strings.HasPrefix(code, "unknown_") {
		return strings.TrimPrefix(code, "unknown_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_date_range":
		return "start date must not be after end date"
	case "exactly_one_of_company_or_partner_required":
		return "exactly one of company or partner is required"
	case "immutable_field":
		return "owner and product code cannot change"
	case "empty_import":
		return "the uploaded file has no rows"
	default:
		return "invalid value"
	}
}
