// internal/handler/errors.go
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"focuser-service/internal/protocol/robofocus"
	"focuser-service/internal/service"
	"focuser-service/internal/utils"
)

// classifyError maps focuser failures to an HTTP status and error code
func classifyError(err error) (int, string) {
	var protoErr *robofocus.ProtocolError

	switch {
	case errors.Is(err, robofocus.ErrOutOfBounds):
		return http.StatusBadRequest, "OUT_OF_RANGE"
	case errors.Is(err, service.ErrNoPort):
		return http.StatusBadRequest, "NO_PORT"
	case errors.Is(err, robofocus.ErrNotReady):
		return http.StatusConflict, "NOT_CONNECTED"
	case errors.Is(err, service.ErrNoFocuser):
		return http.StatusNotFound, "NO_FOCUSER"
	case errors.Is(err, robofocus.ErrOpenFailed):
		return http.StatusBadGateway, "OPEN_FAILED"
	case errors.Is(err, robofocus.ErrProbeFailed):
		return http.StatusBadGateway, "PROBE_FAILED"
	case errors.As(err, &protoErr):
		if protoErr.Timeout() {
			return http.StatusGatewayTimeout, "DEVICE_TIMEOUT"
		}
		return http.StatusBadGateway, "PROTOCOL_ERROR"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "CANCELLED"
	default:
		return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"
	}
}

func focuserError(c *gin.Context, message string, err error) {
	status, code := classifyError(err)
	utils.CodedErrorResponse(c, status, code, message, err)
}
