package handlers

import (
	"net/http"
	"time"

	"github.com/arnavshah/workload-api-go/pkg/auth"
	"github.com/arnavshah/workload-api-go/pkg/models"
	"github.com/gin-gonic/gin"
)

// Index returns the service banner
func (h *Handler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Manufacturing Workload API",
		"version": "1.0.0",
	})
}

// Health reports liveness and whether the database answers
func (h *Handler) Health(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	if sqlDB, err := h.Store.DB().DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

// Login exchanges credentials for a bearer token
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	emp, err := h.Store.EmployeeByUsername(c.Request.Context(), req.Username)
	if err != nil || !emp.Active || !auth.CheckPasswordHash(req.Password, emp.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := h.Signer.CreateToken(emp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create token"})
		return
	}

	audit(c, "login %s (%s)", emp.Username, emp.Role)
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   int(auth.TokenLifetime.Seconds()),
		"role":         emp.Role,
		"employee_id":  emp.ID,
	})
}

// ChangePassword replaces the caller's password after checking the current one
func (h *Handler) ChangePassword(c *gin.Context) {
	var req struct {
		OldPassword string `json:"old_password" binding:"required"`
		NewPassword string `json:"new_password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx := c.Request.Context()
	emp, err := h.Store.GetEmployee(ctx, claimsFrom(c).EmployeeID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !auth.CheckPasswordHash(req.OldPassword, emp.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Current password is incorrect"})
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.Store.SetPassword(ctx, emp.ID, hash); err != nil {
		respondError(c, err)
		return
	}
	audit(c, "changed password")
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// HoldReasons lists the suggested reasons for putting work on hold
func (h *Handler) HoldReasons(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"reasons": models.HoldReasons})
}
