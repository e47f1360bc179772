package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/config"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/pagesource"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/store"
)

// APIResponse is the standard envelope for all API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError holds error details in the response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RespondOK sends a 200 success response.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: msg},
	})
}

// mapError translates errors to HTTP status codes and error codes.
func mapError(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, config.ErrUnknownFormat):
		return http.StatusBadRequest, "UNKNOWN_FORMAT", err.Error()
	case errors.Is(err, store.ErrRunNotFound):
		return http.StatusNotFound, "RUN_NOT_FOUND", "run not found"
	case errors.Is(err, pagesource.ErrSourceUnavailable):
		return http.StatusUnprocessableEntity, "SOURCE_UNAVAILABLE", err.Error()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "CANCELLED", "request was cancelled before reconstruction finished"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}
}

// handleError maps err and sends the matching error response.
func (s *Server) handleError(c *gin.Context, err error) {
	status, code, msg := mapError(err)
	if status >= 500 {
		requestID, _ := c.Get("request_id")
		s.logger.Error("internal error", "request_id", requestID, "error", err)
	}
	RespondError(c, status, code, msg)
}
