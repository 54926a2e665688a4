// Package stats computes dashboard figures and workload reports.
package stats

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"time"

	"github.com/arnavshah/workload-api-go/pkg/database"
	"github.com/arnavshah/workload-api-go/pkg/models"
	"github.com/arnavshah/workload-api-go/pkg/store"
	"gorm.io/gorm"
)

const (
	keyDashboard = "stats:dashboard"
	keyTeams     = "stats:teams"
	keySkills    = "stats:skills"
)

// AtRiskWindow is how close a deadline must be for a project to count as at risk
const AtRiskWindow = 7 * 24 * time.Hour

var finished = []models.ProjectStatus{models.ProjectCompleted, models.ProjectCancelled}

// Service answers report queries, caching the shop-wide aggregates
type Service struct {
	store *store.Store
	cache Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewService creates a Service. A nil cache disables caching.
func NewService(st *store.Store, cache Cache, ttl time.Duration) *Service {
	return &Service{store: st, cache: cache, ttl: ttl, now: time.Now}
}

func (s *Service) db(ctx context.Context) *gorm.DB {
	return s.store.DB().WithContext(ctx)
}

// cached serves key from the cache or computes and stores it. Cache failures
// are logged and the value is computed directly.
func cached[T any](ctx context.Context, s *Service, key string, compute func(context.Context) (T, error)) (T, error) {
	if s.cache != nil && s.ttl > 0 {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			log.Printf("stats cache get %s: %v", key, err)
		} else if ok {
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				return v, nil
			}
		}
	}

	v, err := compute(ctx)
	if err != nil {
		return v, err
	}
	if s.cache != nil && s.ttl > 0 {
		if raw, err := json.Marshal(v); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
				log.Printf("stats cache set %s: %v", key, err)
			}
		}
	}
	return v, nil
}

// Invalidate drops every cached aggregate
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, keyDashboard, keyTeams, keySkills); err != nil {
		log.Printf("stats cache invalidate: %v", err)
	}
}

// Dashboard counts projects by state
func (s *Service) Dashboard(ctx context.Context) (*models.DashboardStats, error) {
	return cached(ctx, s, keyDashboard, s.dashboard)
}

func (s *Service) dashboard(ctx context.Context) (*models.DashboardStats, error) {
	today := models.Day(s.now())
	out := &models.DashboardStats{LastUpdated: s.now().UTC()}

	counts := []struct {
		dst   *int64
		query string
		args  []any
	}{
		{&out.TotalProjects, "1 = 1", nil},
		{&out.UnassignedProjects, "status = ?", []any{models.ProjectUnassigned}},
		{&out.ActiveProjects, "status IN ?", []any{[]models.ProjectStatus{models.ProjectAssigned, models.ProjectInProgress}}},
		{&out.CompletedProjects, "status = ?", []any{models.ProjectCompleted}},
		{&out.OverdueProjects, "deadline < ? AND status NOT IN ?", []any{today, finished}},
		{&out.UrgentProjects, "priority = ?", []any{models.PriorityUrgent}},
	}
	for _, c := range counts {
		if err := s.db(ctx).Model(&database.Project{}).Where(c.query, c.args...).Count(c.dst).Error; err != nil {
			return nil, err
		}
	}
	return out, nil
}

// TeamWorkload sums open work per team of active employees
func (s *Service) TeamWorkload(ctx context.Context) ([]models.TeamWorkload, error) {
	return cached(ctx, s, keyTeams, func(ctx context.Context) ([]models.TeamWorkload, error) {
		var rows []models.TeamWorkload
		err := s.db(ctx).Table("employees").
			Select("employees.team_id AS team_id, COUNT(DISTINCT employees.id) AS team_size, "+
				"COUNT(assignments.id) AS active_assignments, COALESCE(SUM(assignments.hours_remaining), 0) AS total_hours").
			Joins("LEFT JOIN assignments ON assignments.employee_id = employees.id AND assignments.status IN ?", models.CommittedStatuses).
			Where("employees.active = ? AND employees.role = ?", true, models.RoleEmployee).
			Group("employees.team_id").
			Order("employees.team_id").
			Scan(&rows).Error
		return rows, err
	})
}

// SkillsSummary counts skills of active employees per machine type and level
func (s *Service) SkillsSummary(ctx context.Context) ([]models.SkillSummary, error) {
	return cached(ctx, s, keySkills, func(ctx context.Context) ([]models.SkillSummary, error) {
		var rows []models.SkillSummary
		err := s.db(ctx).Table("skills").
			Select("skills.machine_type AS machine_type, skills.level AS skill_level, "+
				"COUNT(skills.id) AS count, AVG(skills.efficiency_factor) AS avg_efficiency").
			Joins("JOIN employees ON employees.id = skills.employee_id").
			Where("employees.active = ?", true).
			Group("skills.machine_type, skills.level").
			Order("skills.machine_type, skills.level").
			Scan(&rows).Error
		return rows, err
	})
}

// EmployeeWorkload summarizes the open assignments of one employee
func (s *Service) EmployeeWorkload(ctx context.Context, employeeID uint) (*models.EmployeeWorkload, []database.Assignment, error) {
	open, err := s.store.AssignmentsFor(ctx, employeeID,
		models.AssignmentNotStarted, models.AssignmentInProgress, models.AssignmentOnHold)
	if err != nil {
		return nil, nil, err
	}
	w := &models.EmployeeWorkload{
		EmployeeID: employeeID,
		ByStatus: map[models.AssignmentStatus]int{
			models.AssignmentNotStarted: 0,
			models.AssignmentInProgress: 0,
			models.AssignmentOnHold:     0,
		},
	}
	for _, a := range open {
		w.TotalAssignments++
		w.TotalHours += a.HoursRemaining
		w.ByStatus[a.Status]++
	}
	return w, open, nil
}

// Reports summarizes yesterday's completions, overdue work and this week's
// completions per team. Weeks start on Monday.
func (s *Service) Reports(ctx context.Context) (*models.Reports, error) {
	today := models.Day(s.now())
	yesterday := today.AddDate(0, 0, -1)
	weekStart := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))
	out := &models.Reports{WeekStart: weekStart, WeeklyCompletions: []models.TeamCompletions{}}

	err := s.db(ctx).Model(&database.Assignment{}).
		Where("status = ? AND completed_at >= ? AND completed_at < ?", models.AssignmentCompleted, yesterday, today).
		Count(&out.CompletedYesterday).Error
	if err != nil {
		return nil, err
	}
	err = s.db(ctx).Model(&database.Project{}).
		Where("deadline < ? AND status NOT IN ?", today, finished).
		Count(&out.BehindSchedule).Error
	if err != nil {
		return nil, err
	}
	err = s.db(ctx).Table("assignments").
		Select("employees.team_id AS team_id, COUNT(assignments.id) AS completions").
		Joins("JOIN employees ON employees.id = assignments.employee_id").
		Where("assignments.status = ? AND assignments.completed_at >= ?", models.AssignmentCompleted, weekStart).
		Group("employees.team_id").
		Order("employees.team_id").
		Scan(&out.WeeklyCompletions).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ProjectsAtRisk lists unfinished projects due within AtRiskWindow, soonest first
func (s *Service) ProjectsAtRisk(ctx context.Context) ([]database.Project, error) {
	cutoff := models.Day(s.now().Add(AtRiskWindow))
	var out []database.Project
	err := s.db(ctx).
		Where("deadline <= ? AND status NOT IN ?", cutoff, finished).
		Order("deadline, id").
		Find(&out).Error
	return out, err
}

// ScoredProject is a project with its assignment priority score
type ScoredProject struct {
	database.Project
	PriorityScore int `json:"priority_score"`
}

// PriorityScore ranks how pressing a project is to assign: business priority,
// closeness of the deadline and difficulty all raise it.
func PriorityScore(p *database.Project, today time.Time) int {
	score := 50
	switch p.Priority {
	case models.PriorityUrgent:
		score = 100
	case models.PriorityHigh:
		score = 75
	case models.PriorityLow:
		score = 25
	}

	days := int(models.Day(p.Deadline).Sub(models.Day(today)).Hours() / 24)
	switch {
	case days <= 3:
		score += 30
	case days <= 7:
		score += 20
	case days <= 14:
		score += 10
	}

	return score + p.DifficultyLevel*5
}

// PrioritizedUnassigned lists unassigned projects, most pressing first
func (s *Service) PrioritizedUnassigned(ctx context.Context) ([]ScoredProject, error) {
	projects, err := s.store.ListProjects(ctx, models.ProjectUnassigned)
	if err != nil {
		return nil, err
	}
	today := s.now()
	out := make([]ScoredProject, len(projects))
	for i := range projects {
		out[i] = ScoredProject{Project: projects[i], PriorityScore: PriorityScore(&projects[i], today)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PriorityScore > out[j].PriorityScore
	})
	return out, nil
}

// VacationConflicts lists committed assignments whose project window overlaps
// the given dates.
func (s *Service) VacationConflicts(ctx context.Context, employeeID uint, start, end time.Time) ([]database.Assignment, error) {
	var out []database.Assignment
	err := s.db(ctx).
		Preload("Project").
		Joins("JOIN projects ON projects.id = assignments.project_id").
		Where("assignments.employee_id = ? AND assignments.status IN ?", employeeID, models.CommittedStatuses).
		Where("projects.deadline >= ? AND projects.assembly_start_date <= ?", models.Day(start), models.Day(end)).
		Order("projects.deadline").
		Find(&out).Error
	return out, err
}
