package handlers

import (
	"net/http"

	"transitpay/internal/domain"
	"transitpay/internal/http/middleware"

	"github.com/gin-gonic/gin"
)

// ErrorResponse standardizes error payloads.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string, details any) {
	if code == "" {
		code = http.StatusText(status)
	}
	c.JSON(status, ErrorResponse{
		Error:     message,
		Code:      code,
		Details:   details,
		RequestID: middleware.GetRequestID(c),
	})
}

// RespondDomainError maps domain errors to HTTP responses.
func RespondDomainError(c *gin.Context, err error) {
	respondDomainError(c, err, nil)
}

func respondDomainError(c *gin.Context, err error, details any) {
	switch {
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "validation_error", err.Error(), details)
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "not_found", err.Error(), details)
	case domain.IsConfiguration(err):
		respondError(c, http.StatusServiceUnavailable, "configuration_error", err.Error(), details)
	case domain.IsRateLimited(err):
		respondError(c, http.StatusTooManyRequests, "gateway_rate_limited", err.Error(), details)
	case domain.IsGateway(err):
		respondError(c, http.StatusBadGateway, "gateway_error", err.Error(), details)
	default:
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "internal_error", "something went wrong", details)
	}
}
