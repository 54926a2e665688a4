package handlers

import (
	"net/http"

	"github.com/arnavshah/workload-api-go/pkg/apperr"
	"github.com/arnavshah/workload-api-go/pkg/models"
	"github.com/gin-gonic/gin"
)

// MyAssignments lists the caller's assignments, optionally filtered by ?status=
func (h *Handler) MyAssignments(c *gin.Context) {
	var statuses []models.AssignmentStatus
	if s := models.AssignmentStatus(c.Query("status")); s != "" {
		if !s.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
		statuses = append(statuses, s)
	}
	list, err := h.Store.AssignmentsFor(c.Request.Context(), claimsFrom(c).EmployeeID, statuses...)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": list})
}

// MyAssignment returns one of the caller's assignments with the hours spent so far
func (h *Handler) MyAssignment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	a, err := h.Store.GetAssignment(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	actor := actorFrom(c)
	if !actor.Admin && a.EmployeeID != actor.EmployeeID {
		respondError(c, apperr.Forbidden("assignment %d belongs to another employee", id))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"assignment":  a,
		"hours_spent": a.OriginalHours - a.HoursRemaining,
	})
}

// MyWorkload summarizes the caller's open work
func (h *Handler) MyWorkload(c *gin.Context) {
	claims := claimsFrom(c)
	ctx := c.Request.Context()
	w, open, err := h.Stats.EmployeeWorkload(ctx, claims.EmployeeID)
	if err != nil {
		respondError(c, err)
		return
	}
	emp, err := h.Store.GetEmployee(ctx, claims.EmployeeID)
	if err != nil {
		respondError(c, err)
		return
	}
	committed, err := h.Store.CommittedHours(ctx, []uint{emp.ID})
	if err != nil {
		respondError(c, err)
		return
	}
	available := emp.HoursPerWeek - committed[emp.ID]
	if available < 0 {
		available = 0
	}
	c.JSON(http.StatusOK, gin.H{
		"workload":        w,
		"assignments":     open,
		"hours_per_week":  emp.HoursPerWeek,
		"available_hours": available,
	})
}

// UpdateStatus moves one of the caller's assignments to a new status
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status     string `json:"status" binding:"required"`
		HoldReason string `json:"hold_reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	a, err := h.Assignments.Transition(c.Request.Context(), actorFrom(c), id, models.AssignmentStatus(req.Status), req.HoldReason)
	if err != nil {
		respondError(c, err)
		return
	}
	h.Stats.Invalidate(c.Request.Context())
	audit(c, "assignment %d is now %s", id, a.Status)
	c.JSON(http.StatusOK, a)
}

// UpdateHours records the hours left on one of the caller's assignments
func (h *Handler) UpdateHours(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		HoursRemaining *float64 `json:"hours_remaining" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	a, err := h.Assignments.UpdateHours(c.Request.Context(), actorFrom(c), id, *req.HoursRemaining)
	if err != nil {
		respondError(c, err)
		return
	}
	h.Stats.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"hours_remaining": a.HoursRemaining, "message": "Hours updated successfully"})
}

// CancelAssignment cancels an assignment and its project
func (h *Handler) CancelAssignment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	a, err := h.Assignments.Transition(c.Request.Context(), actorFrom(c), id, models.AssignmentCancelled, "")
	if err != nil {
		respondError(c, err)
		return
	}
	h.Stats.Invalidate(c.Request.Context())
	audit(c, "cancelled assignment %d", id)
	c.JSON(http.StatusOK, a)
}
