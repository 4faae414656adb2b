package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Taufiq-1904/WeighBridge-IoT/internal/model"
)

const defaultHistoryLimit = 100

// GetHistory handles GET /api/history?limit=N: the most recent weight
// records, newest first.
func (h *Handler) GetHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	var records []model.WeightRecord
	if err := h.db.Order("observed_at DESC").Limit(limit).Find(&records).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
		return
	}

	c.JSON(http.StatusOK, records)
}

// DeleteHistory handles DELETE /api/history/:id.
func (h *Handler) DeleteHistory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid record ID"})
		return
	}

	result := h.db.Delete(&model.WeightRecord{}, id)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": result.RowsAffected > 0})
}

// ExportCSV handles GET /api/export/csv: the full weight history as a CSV
// download.
func (h *Handler) ExportCSV(c *gin.Context) {
	var records []model.WeightRecord
	if err := h.db.Order("observed_at ASC").Find(&records).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=weight-history.csv")

	c.Writer.WriteString("id,weight,observed_at\n")
	for _, r := range records {
		c.Writer.WriteString(fmt.Sprintf("%d,%.2f,%s\n", r.ID, r.Weight, r.ObservedAt.Format(time.RFC3339)))
	}
}
