package handlers

import (
	"net/http"
	"strings"

	"github.com/arnavshah/workload-api-go/pkg/apperr"
	"github.com/arnavshah/workload-api-go/pkg/auth"
	"github.com/arnavshah/workload-api-go/pkg/database"
	"github.com/arnavshah/workload-api-go/pkg/importer"
	"github.com/arnavshah/workload-api-go/pkg/models"
	"github.com/arnavshah/workload-api-go/pkg/store"
	"github.com/gin-gonic/gin"
)

// ListEmployees returns active and inactive employees with skills and committed hours
func (h *Handler) ListEmployees(c *gin.Context) {
	ctx := c.Request.Context()
	emps, err := h.Store.ListEmployees(ctx, models.Role(c.Query("role")))
	if err != nil {
		respondError(c, err)
		return
	}
	ids := make([]uint, len(emps))
	for i, e := range emps {
		ids[i] = e.ID
	}
	committed, err := h.Store.CommittedHours(ctx, ids)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(emps))
	for _, e := range emps {
		available := e.HoursPerWeek - committed[e.ID]
		if available < 0 {
			available = 0
		}
		out = append(out, gin.H{
			"employee":         e,
			"current_workload": committed[e.ID],
			"available_hours":  available,
		})
	}
	c.JSON(http.StatusOK, gin.H{"employees": out})
}

// CreateEmployee registers a new user
func (h *Handler) CreateEmployee(c *gin.Context) {
	var req struct {
		Username     string  `json:"username" binding:"required,min=3,max=80"`
		Email        string  `json:"email" binding:"required,email,max=120"`
		Password     string  `json:"password" binding:"required,min=8"`
		Role         string  `json:"role" binding:"omitempty,oneof=admin employee"`
		DepartmentID int     `json:"department_id"`
		TeamID       int     `json:"team_id" binding:"required,min=1"`
		HoursPerWeek float64 `json:"hours_per_week" binding:"omitempty,gt=0,lte=80"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	emp := &database.Employee{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         models.Role(req.Role),
		DepartmentID: req.DepartmentID,
		TeamID:       req.TeamID,
		HoursPerWeek: req.HoursPerWeek,
		Active:       true,
	}
	if emp.Role == "" {
		emp.Role = models.RoleEmployee
	}
	if emp.HoursPerWeek == 0 {
		emp.HoursPerWeek = 40
	}

	if err := h.Store.CreateEmployee(c.Request.Context(), emp); err != nil {
		respondError(c, err)
		return
	}
	h.Stats.Invalidate(c.Request.Context())
	audit(c, "created employee %s on team %d", emp.Username, emp.TeamID)
	c.JSON(http.StatusCreated, emp)
}

// SetEmployeeActive activates or deactivates an employee
func (h *Handler) SetEmployeeActive(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.Store.SetEmployeeActive(c.Request.Context(), id, *req.Active); err != nil {
		respondError(c, err)
		return
	}
	h.Stats.Invalidate(c.Request.Context())
	audit(c, "employee %d active=%t", id, *req.Active)
	c.JSON(http.StatusOK, gin.H{"id": id, "active": *req.Active})
}

type profileRequest struct {
	Email        *string  `json:"email" binding:"omitempty,email,max=120"`
	HoursPerWeek *float64 `json:"hours_per_week" binding:"omitempty,gt=0,lte=80"`
}

func (r profileRequest) update() store.EmployeeUpdate {
	if r.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*r.Email))
		r.Email = &email
	}
	return store.EmployeeUpdate{Email: r.Email, HoursPerWeek: r.HoursPerWeek}
}

// UpdateProfile lets an employee change their email and weekly hours
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	emp, err := h.Store.UpdateEmployee(c.Request.Context(), claimsFrom(c).EmployeeID, req.update())
	if err != nil {
		respondError(c, err)
		return
	}
	h.Stats.Invalidate(c.Request.Context())
	audit(c, "updated own profile")
	c.JSON(http.StatusOK, emp)
}

// UpdateEmployee changes an employee's profile, team, department or role
func (h *Handler) UpdateEmployee(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		profileRequest
		TeamID       *int    `json:"team_id" binding:"omitempty,min=1"`
		DepartmentID *int    `json:"department_id" binding:"omitempty,min=0"`
		Role         *string `json:"role" binding:"omitempty,oneof=admin employee"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	u := req.update()
	u.TeamID = req.TeamID
	u.DepartmentID = req.DepartmentID
	if req.Role != nil {
		role := models.Role(*req.Role)
		u.Role = &role
	}
	emp, err := h.Store.UpdateEmployee(c.Request.Context(), id, u)
	if err != nil {
		respondError(c, err)
		return
	}
	h.Stats.Invalidate(c.Request.Context())
	audit(c, "updated employee %d", id)
	c.JSON(http.StatusOK, emp)
}

// UpsertSkill sets an employee's skill for one machine type
func (h *Handler) UpsertSkill(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		MachineType      string  `json:"machine_type" binding:"required"`
		SkillLevel       string  `json:"skill_level" binding:"required,oneof=primary secondary"`
		EfficiencyFactor float64 `json:"efficiency_factor" binding:"omitempty,gt=0,lte=2"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	machine, valid := models.ParseMachineType(req.MachineType)
	if !valid {
		respondError(c, apperr.Validation("invalid skill", apperr.FieldError{Field: "machine_type", Message: "must be one of PAH PPH REF APS PSC"}))
		return
	}

	ctx := c.Request.Context()
	if _, err := h.Store.GetEmployee(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	sk := &database.Skill{
		EmployeeID:       id,
		MachineType:      machine,
		Level:            models.SkillLevel(req.SkillLevel),
		EfficiencyFactor: req.EfficiencyFactor,
	}
	if sk.EfficiencyFactor == 0 {
		sk.EfficiencyFactor = 1
	}
	if err := h.Store.UpsertSkill(ctx, sk); err != nil {
		respondError(c, err)
		return
	}
	h.Stats.Invalidate(ctx)
	c.JSON(http.StatusOK, sk)
}

// CreateVacation records a vacation and lists committed work it overlaps
func (h *Handler) CreateVacation(c *gin.Context) {
	var req struct {
		EmployeeID uint   `json:"employee_id" binding:"required"`
		StartDate  string `json:"start_date" binding:"required"`
		EndDate    string `json:"end_date" binding:"required"`
		Approved   *bool  `json:"approved"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	start, err := importer.ParseDate(req.StartDate)
	if err != nil {
		respondError(c, apperr.Validation("invalid vacation", apperr.FieldError{Field: "start_date", Message: err.Error()}))
		return
	}
	end, err := importer.ParseDate(req.EndDate)
	if err != nil {
		respondError(c, apperr.Validation("invalid vacation", apperr.FieldError{Field: "end_date", Message: err.Error()}))
		return
	}
	if end.Before(start) {
		respondError(c, apperr.Validation("invalid vacation", apperr.FieldError{Field: "end_date", Message: "must not be before the start date"}))
		return
	}

	ctx := c.Request.Context()
	if _, err := h.Store.GetEmployee(ctx, req.EmployeeID); err != nil {
		respondError(c, err)
		return
	}
	v := &database.Vacation{EmployeeID: req.EmployeeID, StartDate: start, EndDate: end, Approved: true}
	if req.Approved != nil {
		v.Approved = *req.Approved
	}
	if err := h.Store.CreateVacation(ctx, v); err != nil {
		respondError(c, err)
		return
	}
	conflicts, err := h.Stats.VacationConflicts(ctx, v.EmployeeID, start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	audit(c, "vacation for employee %d from %s to %s", v.EmployeeID, start.Format("2006-01-02"), end.Format("2006-01-02"))
	c.JSON(http.StatusCreated, gin.H{"vacation": v, "conflicts": conflicts})
}

// ApproveVacation marks a pending vacation approved
func (h *Handler) ApproveVacation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	v, err := h.Store.ApproveVacation(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
