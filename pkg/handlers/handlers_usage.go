package handlers

import (
	"net/http"

	"github.com/arnavshah/workload-api-go/pkg/auth"
	"github.com/arnavshah/workload-api-go/pkg/database"
	"github.com/gin-gonic/gin"
)

// GenerateKey creates a new integration key using the HMAC strategy
func (h *Handler) GenerateKey(c *gin.Context) {
	var req struct {
		Name      string `json:"name" binding:"required"`
		RateLimit int    `json:"rate_limit" binding:"omitempty,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if req.RateLimit == 0 {
		req.RateLimit = 10000
	}

	key := h.Signer.GenerateHMACKey(req.Name)
	ik := &database.IntegrationKey{
		Key:        key,
		Name:       req.Name,
		KeyPreview: auth.KeyPreview(key),
		RateLimit:  req.RateLimit,
	}
	if err := h.Store.CreateIntegrationKey(c.Request.Context(), ik); err != nil {
		respondError(c, err)
		return
	}

	audit(c, "generated integration key %s", req.Name)
	c.JSON(http.StatusCreated, gin.H{
		"id":   ik.ID,
		"name": req.Name,
		"key":  key,
	})
}

// ListKeys returns all integration keys, masked
func (h *Handler) ListKeys(c *gin.Context) {
	keys, err := h.Store.ListIntegrationKeys(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// RevokeKey deletes an integration key
func (h *Handler) RevokeKey(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Store.RevokeIntegrationKey(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	audit(c, "revoked integration key %d", id)
	c.JSON(http.StatusOK, gin.H{"message": "Key revoked"})
}

// UpdateKeyLimit updates the daily request limit for a key
func (h *Handler) UpdateKeyLimit(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		RateLimit int `json:"rate_limit" form:"rate_limit"`
	}

	// Try JSON first, then Form/Query
	if err := c.ShouldBindJSON(&req); err != nil {
		if err := c.ShouldBindQuery(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rate_limit is required"})
			return
		}
	}
	if req.RateLimit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rate limit"})
		return
	}

	if err := h.Store.UpdateKeyLimit(c.Request.Context(), id, req.RateLimit); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rate limit updated successfully"})
}

// GetUsage returns usage stats for a key
func (h *Handler) GetUsage(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	usage, err := h.Store.Usage(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": usage})
}

// GetMyUsage returns usage stats for the calling integration key
func (h *Handler) GetMyUsage(c *gin.Context) {
	ik := integrationKeyFrom(c)
	if ik == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Integration key context missing"})
		return
	}

	usage, err := h.Store.Usage(c.Request.Context(), ik.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch usage details"})
		return
	}

	var totalRequests, totalImported, totalRejected int64
	for _, u := range usage {
		totalRequests += int64(u.RequestCount)
		totalImported += int64(u.RowsImported)
		totalRejected += int64(u.RowsRejected)
	}

	c.JSON(http.StatusOK, gin.H{
		"key_name":      ik.Name,
		"rate_limit":    ik.RateLimit,
		"usage_history": usage,
		"totals": gin.H{
			"requests":      totalRequests,
			"rows_imported": totalImported,
			"rows_rejected": totalRejected,
		},
	})
}
