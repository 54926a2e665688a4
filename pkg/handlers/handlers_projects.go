package handlers

import (
	"net/http"
	"strings"

	"github.com/arnavshah/workload-api-go/pkg/apperr"
	"github.com/arnavshah/workload-api-go/pkg/database"
	"github.com/arnavshah/workload-api-go/pkg/importer"
	"github.com/arnavshah/workload-api-go/pkg/matching"
	"github.com/arnavshah/workload-api-go/pkg/models"
	"github.com/gin-gonic/gin"
)

type projectRequest struct {
	ProjectNumber     string  `json:"project_number" binding:"required,max=50"`
	ModelType         string  `json:"model_type" binding:"required"`
	CustomerCountry   string  `json:"customer_country" binding:"required,max=50"`
	DifficultyLevel   int     `json:"difficulty_level" binding:"omitempty,min=1,max=5"`
	EstimatedHours    float64 `json:"estimated_hours" binding:"required,gt=0"`
	AssemblyStartDate string  `json:"assembly_start_date" binding:"required"`
	Deadline          string  `json:"deadline" binding:"required"`
	Priority          string  `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
}

// toProject converts the request, checking what binding tags cannot
func (r *projectRequest) toProject() (*database.Project, error) {
	machine, ok := models.ParseMachineType(r.ModelType)
	if !ok {
		return nil, apperr.Validation("invalid project", apperr.FieldError{Field: "model_type", Message: "must be one of PAH PPH REF APS PSC"})
	}
	start, err := importer.ParseDate(r.AssemblyStartDate)
	if err != nil {
		return nil, apperr.Validation("invalid project", apperr.FieldError{Field: "assembly_start_date", Message: err.Error()})
	}
	deadline, err := importer.ParseDate(r.Deadline)
	if err != nil {
		return nil, apperr.Validation("invalid project", apperr.FieldError{Field: "deadline", Message: err.Error()})
	}
	if deadline.Before(start) {
		return nil, apperr.Validation("invalid project", apperr.FieldError{Field: "deadline", Message: "must not be before the assembly start date"})
	}

	p := &database.Project{
		ProjectNumber:     strings.TrimSpace(r.ProjectNumber),
		ModelType:         machine,
		CustomerCountry:   strings.TrimSpace(r.CustomerCountry),
		DifficultyLevel:   r.DifficultyLevel,
		EstimatedHours:    r.EstimatedHours,
		AssemblyStartDate: start,
		Deadline:          deadline,
		Status:            models.ProjectUnassigned,
		Priority:          models.Priority(r.Priority),
		RequiresRefFirst:  matching.RequiresRefFirst(machine, r.CustomerCountry),
	}
	if p.DifficultyLevel == 0 {
		p.DifficultyLevel = 3
	}
	if p.Priority == "" {
		p.Priority = models.PriorityNormal
	}
	return p, nil
}

// ListProjects returns projects, optionally filtered by ?status=
func (h *Handler) ListProjects(c *gin.Context) {
	status := models.ProjectStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}
	projects, err := h.Store.ListProjects(c.Request.Context(), status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects, "count": len(projects)})
}

// CreateProject adds a single unassigned project
func (h *Handler) CreateProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	p, err := req.toProject()
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.Store.CreateProject(c.Request.Context(), p); err != nil {
		respondError(c, err)
		return
	}
	h.Stats.Invalidate(c.Request.Context())
	audit(c, "created project %s", p.ProjectNumber)
	c.JSON(http.StatusCreated, p)
}

// GetProject returns one project and its assignment, if any
func (h *Handler) GetProject(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	p, err := h.Store.GetProject(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	a, err := h.Store.AssignmentForProject(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": p, "assignment": a})
}

// Candidates lists every employee the matcher considered for a project
func (h *Handler) Candidates(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	p, ev, err := h.Assignments.Candidates(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	body := gin.H{
		"project":        p,
		"eligible_teams": ev.EligibleTeams,
		"tier":           ev.Tier,
		"candidates":     ev.Candidates,
	}
	if len(ev.Available()) == 0 {
		body["reasons"] = ev.Reasons()
	}
	c.JSON(http.StatusOK, body)
}

// AssignProject assigns a project to an employee chosen by the admin
func (h *Handler) AssignProject(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		EmployeeID uint `json:"employee_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.Assignments.Manual(c.Request.Context(), id, req.EmployeeID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.Stats.Invalidate(c.Request.Context())
	audit(c, "assigned project %d to employee %d", id, req.EmployeeID)
	c.JSON(http.StatusCreated, res)
}

// AutoAssignProject assigns a project to the best ranked available employee
func (h *Handler) AutoAssignProject(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	res, err := h.Assignments.Auto(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	h.Stats.Invalidate(c.Request.Context())
	audit(c, "auto-assigned project %d to employee %d", id, res.Assignment.EmployeeID)
	c.JSON(http.StatusCreated, res)
}

// PrioritizedProjects lists unassigned projects, most pressing first
func (h *Handler) PrioritizedProjects(c *gin.Context) {
	projects, err := h.Stats.PrioritizedUnassigned(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// ProjectsAtRisk lists unfinished projects due within a week
func (h *Handler) ProjectsAtRisk(c *gin.Context) {
	projects, err := h.Stats.ProjectsAtRisk(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}
