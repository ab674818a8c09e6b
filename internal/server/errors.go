package server

import (
	"errors"
	"net/http"

	"p2p-coin-desk-go/internal/store"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classify maps domain errors to a status and a stable error code.
func classify(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code, codeForStatus(he.Code)
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, store.ErrUnauthorized):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, store.ErrUpstream):
		return http.StatusBadGateway, "upstream_failure"
	}
	return http.StatusInternalServerError, "internal_error"
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	}
	if status >= 500 {
		return "internal_error"
	}
	return "bad_request"
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, code := classify(err)
	message := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(he.Code)
		}
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("Unhandled request error", zap.String("uri", c.Request().RequestURI), zap.Error(err))
		message = "internal error"
	}

	if err := c.JSON(status, errorResponse{Code: code, Message: message}); err != nil {
		zap.L().Warn("Failed to write error response", zap.Error(err))
	}
}
