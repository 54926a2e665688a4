package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) DashboardStats(c *gin.Context) {
	d, err := h.Stats.Dashboard(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) TeamWorkload(c *gin.Context) {
	teams, err := h.Stats.TeamWorkload(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teams": teams})
}

func (h *Handler) SkillsSummary(c *gin.Context) {
	skills, err := h.Stats.SkillsSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"skills": skills})
}

// EmployeeWorkload shows one employee's open work to an admin
func (h *Handler) EmployeeWorkload(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.Store.GetEmployee(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	w, open, err := h.Stats.EmployeeWorkload(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workload": w, "assignments": open})
}

// Reports returns the daily operations summary
func (h *Handler) Reports(c *gin.Context) {
	r, err := h.Stats.Reports(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
