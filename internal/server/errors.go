package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	activitydomain "github.com/smallbiznis/fidelio/internal/activity/domain"
	auditdomain "github.com/smallbiznis/fidelio/internal/audit/domain"
	loyaltydomain "github.com/smallbiznis/fidelio/internal/loyalty/domain"
	membershipdomain "github.com/smallbiznis/fidelio/internal/membership/domain"
	pointsdomain "github.com/smallbiznis/fidelio/internal/points/domain"
	programdomain "github.com/smallbiznis/fidelio/internal/program/domain"
	reversaldomain "github.com/smallbiznis/fidelio/internal/reversal/domain"
	tierdomain "github.com/smallbiznis/fidelio/internal/tier/domain"
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
	ErrNotFound       = errors.New("not_found")
	ErrConflict       = errors.New("conflict")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInternal       = errors.New("internal_error")
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
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isUnprocessableError(err):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
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
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isPointsValidationError(err),
		isActivityValidationError(err),
		isMembershipValidationError(err),
		isTierValidationError(err),
		isProgramValidationError(err),
		isReversalValidationError(err),
		isLoyaltyValidationError(err),
		isAuditValidationError(err):
		return true
	default:
		return false
	}
}

func isPointsValidationError(err error) bool {
	return errors.Is(err, pointsdomain.ErrInvalidCustomer) ||
		errors.Is(err, pointsdomain.ErrInvalidType) ||
		errors.Is(err, pointsdomain.ErrInvalidAmount) ||
		errors.Is(err, pointsdomain.ErrMissingOrderRef) ||
		errors.Is(err, pointsdomain.ErrMissingReturnRef)
}

func isActivityValidationError(err error) bool {
	return errors.Is(err, activitydomain.ErrInvalidCustomer) ||
		errors.Is(err, activitydomain.ErrInvalidOrder) ||
		errors.Is(err, activitydomain.ErrInvalidAmount) ||
		errors.Is(err, activitydomain.ErrInvalidWindow)
}

func isMembershipValidationError(err error) bool {
	return errors.Is(err, membershipdomain.ErrInvalidCustomer)
}

func isTierValidationError(err error) bool {
	return errors.Is(err, tierdomain.ErrInvalidSlug) ||
		errors.Is(err, tierdomain.ErrInvalidName) ||
		errors.Is(err, tierdomain.ErrInvalidRank) ||
		errors.Is(err, tierdomain.ErrInvalidThreshold) ||
		errors.Is(err, tierdomain.ErrInvalidMultiplier) ||
		errors.Is(err, tierdomain.ErrInvalidDiscount)
}

func isProgramValidationError(err error) bool {
	return errors.Is(err, programdomain.ErrInvalidProgramType) ||
		errors.Is(err, programdomain.ErrInvalidPrice) ||
		errors.Is(err, programdomain.ErrInvalidDuration) ||
		errors.Is(err, programdomain.ErrInvalidEvaluationPeriod) ||
		errors.Is(err, programdomain.ErrInvalidEvaluationTrigger) ||
		errors.Is(err, programdomain.ErrInvalidEarningType) ||
		errors.Is(err, programdomain.ErrInvalidEarningRate) ||
		errors.Is(err, programdomain.ErrInvalidRedemptionRate)
}

func isReversalValidationError(err error) bool {
	return errors.Is(err, reversaldomain.ErrInvalidOrder) ||
		errors.Is(err, reversaldomain.ErrInvalidReturn) ||
		errors.Is(err, reversaldomain.ErrInvalidAmount)
}

func isLoyaltyValidationError(err error) bool {
	return errors.Is(err, loyaltydomain.ErrInvalidPoints)
}

func isAuditValidationError(err error) bool {
	return errors.Is(err, auditdomain.ErrInvalidAction) ||
		errors.Is(err, auditdomain.ErrInvalidTimeRange)
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, membershipdomain.ErrNotEnrolled),
		errors.Is(err, tierdomain.ErrNotFound),
		errors.Is(err, activitydomain.ErrOrderNotFound),
		errors.Is(err, reversaldomain.ErrUnknownOrder),
		errors.Is(err, reversaldomain.ErrUnknownReturn),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, pointsdomain.ErrDuplicateTransaction),
		errors.Is(err, activitydomain.ErrDuplicateOrder),
		errors.Is(err, tierdomain.ErrDuplicateSlug),
		errors.Is(err, tierdomain.ErrDuplicateRank),
		errors.Is(err, tierdomain.ErrDefaultTierExists),
		errors.Is(err, tierdomain.ErrDefaultTierLocked),
		errors.Is(err, tierdomain.ErrNoDefaultTier):
		return true
	default:
		return false
	}
}

// Unprocessable covers requests that are well formed but that the program
// state refuses: overdrawing the ledger, discounts past the subtotal, or
// redeeming without an active membership.
func isUnprocessableError(err error) bool {
	switch {
	case errors.Is(err, pointsdomain.ErrInsufficientBalance),
		errors.Is(err, loyaltydomain.ErrDiscountExceedsSubtotal),
		errors.Is(err, loyaltydomain.ErrNotAMember),
		errors.Is(err, loyaltydomain.ErrProgramDisabled):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if strings.HasPrefix(code, "missing_") {
		return strings.TrimPrefix(code, "missing_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
