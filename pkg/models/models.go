package models

import (
	"strings"
	"time"
)

// MachineType is the equipment category a project is built for
type MachineType string

const (
	MachinePAH MachineType = "PAH"
	MachinePPH MachineType = "PPH"
	MachineREF MachineType = "REF"
	MachineAPS MachineType = "APS"
	MachinePSC MachineType = "PSC"
)

// MachineTypes lists every machine type the shop builds
var MachineTypes = []MachineType{MachinePAH, MachinePPH, MachineREF, MachineAPS, MachinePSC}

// ParseMachineType normalizes user input into a MachineType
func ParseMachineType(s string) (MachineType, bool) {
	mt := MachineType(strings.ToUpper(strings.TrimSpace(s)))
	return mt, mt.Valid()
}

func (m MachineType) Valid() bool {
	for _, t := range MachineTypes {
		if m == t {
			return true
		}
	}
	return false
}

// SkillLevel is how proficient an employee is on a machine type
type SkillLevel string

const (
	SkillPrimary   SkillLevel = "primary"
	SkillSecondary SkillLevel = "secondary"
)

func (l SkillLevel) Valid() bool {
	return l == SkillPrimary || l == SkillSecondary
}

// Role separates administrators from shop floor employees
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// ProjectStatus tracks where a project is in its lifecycle
type ProjectStatus string

const (
	ProjectUnassigned ProjectStatus = "unassigned"
	ProjectAssigned   ProjectStatus = "assigned"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectOnHold     ProjectStatus = "on_hold"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectCancelled  ProjectStatus = "cancelled"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectUnassigned, ProjectAssigned, ProjectInProgress, ProjectOnHold, ProjectCompleted, ProjectCancelled:
		return true
	}
	return false
}

// AssignmentStatus mirrors work progress on an assignment
type AssignmentStatus string

const (
	AssignmentNotStarted AssignmentStatus = "not_started"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentOnHold     AssignmentStatus = "on_hold"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentCancelled  AssignmentStatus = "cancelled"
)

// Active reports whether work on the assignment can still change
func (s AssignmentStatus) Active() bool {
	return s == AssignmentNotStarted || s == AssignmentInProgress || s == AssignmentOnHold
}

func (s AssignmentStatus) Valid() bool {
	return s.Active() || s == AssignmentCompleted || s == AssignmentCancelled
}

// CommittedStatuses are the statuses whose remaining hours count against capacity
var CommittedStatuses = []AssignmentStatus{AssignmentNotStarted, AssignmentInProgress}

// Priority is the business priority of a project
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// HoldReasons are the suggested reasons offered when putting work on hold
var HoldReasons = []string{
	"Waiting for REF team feedback",
	"Waiting for electrical team feedback",
	"Moving to work on urgent project",
	"Waiting for parts/materials",
	"Technical issue needs resolution",
	"Waiting for customer clarification",
	"Other",
}

// Candidate is an employee considered for a project
type Candidate struct {
	EmployeeID           uint       `json:"employee_id"`
	Username             string     `json:"username"`
	TeamID               int        `json:"team_id"`
	SkillLevel           SkillLevel `json:"skill_level"`
	EfficiencyFactor     float64    `json:"efficiency_factor"`
	CommittedHours       float64    `json:"current_workload"`
	AvailableHours       float64    `json:"available_hours"`
	InsufficientCapacity bool       `json:"insufficient_capacity"`
}

// RowError describes why a single import row was rejected
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ImportResult is the outcome of a bulk import
type ImportResult struct {
	Imported int        `json:"imported"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors"`
}

// DashboardStats summarizes project counts for the admin dashboard
type DashboardStats struct {
	TotalProjects      int64     `json:"total_projects"`
	UnassignedProjects int64     `json:"unassigned_projects"`
	ActiveProjects     int64     `json:"active_projects"`
	CompletedProjects  int64     `json:"completed_projects"`
	OverdueProjects    int64     `json:"overdue_projects"`
	UrgentProjects     int64     `json:"urgent_projects"`
	LastUpdated        time.Time `json:"last_updated"`
}

// TeamWorkload is the committed work of one team
type TeamWorkload struct {
	TeamID            int     `json:"team_id"`
	TeamSize          int64   `json:"team_size"`
	ActiveAssignments int64   `json:"active_assignments"`
	TotalHours        float64 `json:"total_hours"`
}

// SkillSummary counts skills per machine type and level
type SkillSummary struct {
	MachineType   MachineType `json:"machine_type"`
	SkillLevel    SkillLevel  `json:"skill_level"`
	Count         int64       `json:"count"`
	AvgEfficiency float64     `json:"avg_efficiency"`
}

// EmployeeWorkload is the open work of one employee
type EmployeeWorkload struct {
	EmployeeID       uint                     `json:"employee_id"`
	TotalAssignments int                      `json:"total_assignments"`
	TotalHours       float64                  `json:"total_hours"`
	ByStatus         map[AssignmentStatus]int `json:"assignments_by_status"`
}

// TeamCompletions counts assignments one team completed in a period
type TeamCompletions struct {
	TeamID      int   `json:"team_id"`
	Completions int64 `json:"completions"`
}

// Reports is the daily operations summary for admins
type Reports struct {
	CompletedYesterday int64             `json:"completed_yesterday"`
	BehindSchedule     int64             `json:"behind_schedule"`
	WeekStart          time.Time         `json:"week_start"`
	WeeklyCompletions  []TeamCompletions `json:"weekly_completions"`
}

// Day truncates t to midnight UTC so dates compare the same in every store
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
