package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/pricebook/pkg/errs"
)

type ValidationError struct {
	Field   string `json:"field,omitempty"`
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
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrOrgRequired = errs.New(errs.KindValidation, "organization_required")
	ErrInvalidOrg  = errs.New(errs.KindValidation, "invalid_organization")
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
	return newValidationError("", "invalid_request", "invalid request")
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

// bindError turns a binding failure into field errors when the validator
// produced them. Malformed bodies become a generic invalid request.
func bindError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return fromFieldErrors(fieldErrs)
	}
	return invalidRequestError()
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    string(errs.KindValidation),
			Code:    "invalid_request",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	kind := errs.KindOf(err)
	payload := errorPayload{Type: string(kind), Code: errorCode(err)}
	switch kind {
	case errs.KindValidation:
		payload.Message = "validation error"
		return http.StatusBadRequest, payload
	case errs.KindNotFound:
		payload.Message = "not found"
		return http.StatusNotFound, payload
	case errs.KindInvalidState:
		payload.Message = "invalid state"
		return http.StatusConflict, payload
	case errs.KindNoUsageToInvoice:
		payload.Message = "no usage to invoice"
		return http.StatusUnprocessableEntity, payload
	case errs.KindRateLimited:
		payload.Message = "rate limited"
		return http.StatusTooManyRequests, payload
	case errs.KindExternalProcessor:
		payload.Message = "payment processor error"
		return http.StatusBadGateway, payload
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func errorCode(err error) string {
	var typed *errs.Error
	if errors.As(err, &typed) {
		if typed.Code != "" {
			return typed.Code
		}
		return string(typed.Kind)
	}
	return ""
}

func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	var vErr *ValidationErrors
	if errors.As(err, &vErr) {
		return string(errs.KindValidation), "invalid_request"
	}
	return string(errs.KindOf(err)), errorCode(err)
}
