package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetStatus handles GET /api/status: the current device snapshot including
// broker connectivity.
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.states.Snapshot())
}
