package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ai-gateway/chat-gateway/internal/gateway"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// envelope is the body of every API response.
type envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Status: statusSuccess, Data: data})
}

func successMessage(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, envelope{Status: statusSuccess, Message: message, Data: data})
}

// fail writes err as an error envelope. Validation errors are the caller's
// fault; everything else is reported as an internal error.
func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), envelope{Status: statusError, Message: err.Error()})
}

func statusFor(err error) int {
	var verr *gateway.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
