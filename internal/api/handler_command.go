package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Taufiq-1904/WeighBridge-IoT/internal/broker"
	"github.com/Taufiq-1904/WeighBridge-IoT/internal/command"
)

type commandRequest struct {
	Command string `json:"command" binding:"required"`
}

// PostCommand handles POST /api/command: validates and forwards an operator
// command, answering {success, error?} like the original control panel API.
func (h *Handler) PostCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	err := h.dispatcher.Dispatch(command.Request{
		Command:     req.Command,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		c.JSON(commandStatusCode(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func commandStatusCode(err error) int {
	switch {
	case errors.Is(err, command.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, broker.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, broker.ErrAckTimeout):
		// Delivery is unconfirmed, not necessarily undelivered.
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
