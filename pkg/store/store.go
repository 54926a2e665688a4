// Package store is the gorm-backed persistence layer.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/arnavshah/workload-api-go/pkg/apperr"
	"github.com/arnavshah/workload-api-go/pkg/database"
	"github.com/arnavshah/workload-api-go/pkg/matching"
	"github.com/arnavshah/workload-api-go/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps a gorm handle, which may be a transaction
type Store struct {
	db *gorm.DB
}

var _ matching.Repository = (*Store)(nil)

// New creates a Store
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for reporting queries
func (s *Store) DB() *gorm.DB { return s.db }

// Transaction runs fn inside one database transaction. On a Store that is
// already a transaction, fn runs under a savepoint instead.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// IsConflict reports whether err is a uniqueness or serialization failure
// that a retry or a conflict response should handle.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 40001") ||
		strings.Contains(msg, "could not serialize")
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(format, args...)
	}
	return err
}

// Employees

func (s *Store) GetEmployee(ctx context.Context, id uint) (*database.Employee, error) {
	var e database.Employee
	if err := s.db.WithContext(ctx).First(&e, id).Error; err != nil {
		return nil, notFound(err, "employee %d not found", id)
	}
	return &e, nil
}

func (s *Store) EmployeeByUsername(ctx context.Context, username string) (*database.Employee, error) {
	var e database.Employee
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&e).Error; err != nil {
		return nil, notFound(err, "employee %s not found", username)
	}
	return &e, nil
}

// ListEmployees returns employees with their skills, optionally only one role
func (s *Store) ListEmployees(ctx context.Context, role models.Role) ([]database.Employee, error) {
	q := s.db.WithContext(ctx).Preload("Skills").Order("id")
	if role != "" {
		q = q.Where("role = ?", role)
	}
	var out []database.Employee
	return out, q.Find(&out).Error
}

func (s *Store) CreateEmployee(ctx context.Context, e *database.Employee) error {
	err := s.db.WithContext(ctx).Create(e).Error
	if IsConflict(err) {
		return apperr.Conflict("username or email %s already exists", e.Username)
	}
	return err
}

func (s *Store) SetPassword(ctx context.Context, id uint, hash string) error {
	res := s.db.WithContext(ctx).Model(&database.Employee{}).Where("id = ?", id).Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("employee %d not found", id)
	}
	return nil
}

// SetEmployeeActive activates or deactivates an employee
func (s *Store) SetEmployeeActive(ctx context.Context, id uint, active bool) error {
	res := s.db.WithContext(ctx).Model(&database.Employee{}).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("employee %d not found", id)
	}
	return nil
}

// EmployeeUpdate lists the profile fields to change; nil fields are kept
type EmployeeUpdate struct {
	Email        *string
	HoursPerWeek *float64
	TeamID       *int
	DepartmentID *int
	Role         *models.Role
}

// UpdateEmployee applies u and returns the updated row
func (s *Store) UpdateEmployee(ctx context.Context, id uint, u EmployeeUpdate) (*database.Employee, error) {
	fields := map[string]any{}
	if u.Email != nil {
		fields["email"] = *u.Email
	}
	if u.HoursPerWeek != nil {
		fields["hours_per_week"] = *u.HoursPerWeek
	}
	if u.TeamID != nil {
		fields["team_id"] = *u.TeamID
	}
	if u.DepartmentID != nil {
		fields["department_id"] = *u.DepartmentID
	}
	if u.Role != nil {
		fields["role"] = *u.Role
	}

	if len(fields) > 0 {
		res := s.db.WithContext(ctx).Model(&database.Employee{}).Where("id = ?", id).Updates(fields)
		if IsConflict(res.Error) {
			return nil, apperr.Conflict("email %s is already in use", *u.Email)
		}
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, apperr.NotFound("employee %d not found", id)
		}
	}
	return s.GetEmployee(ctx, id)
}

// Projects

func (s *Store) GetProject(ctx context.Context, id uint) (*database.Project, error) {
	var p database.Project
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err, "project %d not found", id)
	}
	return &p, nil
}

// ListProjects returns projects ordered by deadline, optionally filtered by status
func (s *Store) ListProjects(ctx context.Context, status models.ProjectStatus) ([]database.Project, error) {
	q := s.db.WithContext(ctx).Order("deadline, id")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []database.Project
	return out, q.Find(&out).Error
}

func (s *Store) ProjectNumberExists(ctx context.Context, number string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&database.Project{}).Where("project_number = ?", number).Count(&count).Error
	return count > 0, err
}

func (s *Store) CreateProject(ctx context.Context, p *database.Project) error {
	err := s.db.WithContext(ctx).Create(p).Error
	if IsConflict(err) {
		return apperr.Conflict("project %s already exists", p.ProjectNumber)
	}
	return err
}

// MarkProjectAssigned flips an unassigned project to assigned. It reports
// false when the project was no longer unassigned.
func (s *Store) MarkProjectAssigned(ctx context.Context, id uint) (bool, error) {
	res := s.db.WithContext(ctx).Model(&database.Project{}).
		Where("id = ? AND status = ?", id, models.ProjectUnassigned).
		Updates(map[string]any{"status": models.ProjectAssigned, "updated_at": time.Now()})
	return res.RowsAffected == 1, res.Error
}

func (s *Store) SetProjectStatus(ctx context.Context, id uint, status models.ProjectStatus) error {
	return s.db.WithContext(ctx).Model(&database.Project{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now()}).Error
}

// Skills

// UpsertSkill creates or replaces the skill of an employee for a machine type
func (s *Store) UpsertSkill(ctx context.Context, sk *database.Skill) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "employee_id"}, {Name: "machine_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"level", "efficiency_factor"}),
	}).Create(sk).Error
}

func (s *Store) SkillFor(ctx context.Context, employeeID uint, machine models.MachineType) (*database.Skill, error) {
	var sk database.Skill
	err := s.db.WithContext(ctx).Where("employee_id = ? AND machine_type = ?", employeeID, machine).First(&sk).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sk, nil
}

func (s *Store) SkilledEmployees(ctx context.Context, machine models.MachineType, level models.SkillLevel, teams []int) ([]matching.SkilledEmployee, error) {
	q := s.db.WithContext(ctx).
		Joins("JOIN skills ON skills.employee_id = employees.id AND skills.machine_type = ? AND skills.level = ?", machine, level).
		Where("employees.active = ? AND employees.role = ?", true, models.RoleEmployee)
	if len(teams) > 0 {
		q = q.Where("employees.team_id IN ?", teams)
	}

	var emps []database.Employee
	if err := q.Order("employees.id").Find(&emps).Error; err != nil {
		return nil, err
	}
	if len(emps) == 0 {
		return nil, nil
	}

	ids := make([]uint, len(emps))
	for i, e := range emps {
		ids[i] = e.ID
	}
	var skills []database.Skill
	if err := s.db.WithContext(ctx).Where("machine_type = ? AND employee_id IN ?", machine, ids).Find(&skills).Error; err != nil {
		return nil, err
	}
	byEmployee := make(map[uint]database.Skill, len(skills))
	for _, sk := range skills {
		byEmployee[sk.EmployeeID] = sk
	}

	out := make([]matching.SkilledEmployee, 0, len(emps))
	for _, e := range emps {
		sk := byEmployee[e.ID]
		out = append(out, matching.SkilledEmployee{Employee: e, Level: sk.Level, EfficiencyFactor: sk.EfficiencyFactor})
	}
	return out, nil
}

// Vacations

func (s *Store) CreateVacation(ctx context.Context, v *database.Vacation) error {
	return s.db.WithContext(ctx).Create(v).Error
}

func (s *Store) VacationExists(ctx context.Context, employeeID uint, start, end time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&database.Vacation{}).
		Where("employee_id = ? AND start_date = ? AND end_date = ?", employeeID, start, end).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) ApproveVacation(ctx context.Context, id uint) (*database.Vacation, error) {
	var v database.Vacation
	if err := s.db.WithContext(ctx).First(&v, id).Error; err != nil {
		return nil, notFound(err, "vacation %d not found", id)
	}
	v.Approved = true
	return &v, s.db.WithContext(ctx).Model(&v).Update("approved", true).Error
}

func (s *Store) ApprovedVacations(ctx context.Context, employeeIDs []uint, day time.Time) ([]database.Vacation, error) {
	if len(employeeIDs) == 0 {
		return nil, nil
	}
	d := models.Day(day)
	var out []database.Vacation
	err := s.db.WithContext(ctx).
		Where("employee_id IN ? AND approved = ? AND start_date <= ? AND end_date >= ?", employeeIDs, true, d, d).
		Find(&out).Error
	return out, err
}

// Assignments

func (s *Store) CommittedHours(ctx context.Context, employeeIDs []uint) (map[uint]float64, error) {
	out := make(map[uint]float64, len(employeeIDs))
	if len(employeeIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		EmployeeID uint
		Total      float64
	}
	err := s.db.WithContext(ctx).Model(&database.Assignment{}).
		Select("employee_id, COALESCE(SUM(hours_remaining), 0) AS total").
		Where("employee_id IN ? AND status IN ?", employeeIDs, models.CommittedStatuses).
		Group("employee_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.EmployeeID] = r.Total
	}
	return out, nil
}

func (s *Store) GetAssignment(ctx context.Context, id uint) (*database.Assignment, error) {
	var a database.Assignment
	if err := s.db.WithContext(ctx).Preload("Project").First(&a, id).Error; err != nil {
		return nil, notFound(err, "assignment %d not found", id)
	}
	return &a, nil
}

func (s *Store) AssignmentForProject(ctx context.Context, projectID uint) (*database.Assignment, error) {
	var a database.Assignment
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AssignmentsFor lists an employee's assignments with their projects, newest first
func (s *Store) AssignmentsFor(ctx context.Context, employeeID uint, statuses ...models.AssignmentStatus) ([]database.Assignment, error) {
	q := s.db.WithContext(ctx).Preload("Project").Where("employee_id = ?", employeeID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var out []database.Assignment
	return out, q.Order("last_status_change DESC, id DESC").Find(&out).Error
}

func (s *Store) CreateAssignment(ctx context.Context, a *database.Assignment) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(a).Error
}

// SaveAssignment writes every column of an existing assignment
func (s *Store) SaveAssignment(ctx context.Context, a *database.Assignment) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Save(a).Error
}

// Integration keys

func (s *Store) CreateIntegrationKey(ctx context.Context, k *database.IntegrationKey) error {
	err := s.db.WithContext(ctx).Create(k).Error
	if IsConflict(err) {
		return apperr.Conflict("integration key %s already exists", k.Name)
	}
	return err
}

func (s *Store) ListIntegrationKeys(ctx context.Context) ([]database.IntegrationKey, error) {
	var keys []database.IntegrationKey
	return keys, s.db.WithContext(ctx).Order("id").Find(&keys).Error
}

func (s *Store) RevokeIntegrationKey(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&database.IntegrationKey{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("integration key %d not found", id)
	}
	return nil
}

func (s *Store) UpdateKeyLimit(ctx context.Context, id uint, limit int) error {
	res := s.db.WithContext(ctx).Model(&database.IntegrationKey{}).Where("id = ?", id).Update("rate_limit", limit)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("integration key %d not found", id)
	}
	return nil
}

// TouchIntegrationKey fetches a registered key and stamps its last use. Keys
// that were never registered or have been revoked are not found.
func (s *Store) TouchIntegrationKey(ctx context.Context, key string) (*database.IntegrationKey, error) {
	var k database.IntegrationKey
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&k).Error; err != nil {
		return nil, notFound(err, "integration key not registered")
	}
	now := time.Now()
	k.LastUsed = &now
	return &k, s.db.WithContext(ctx).Model(&k).Update("last_used", now).Error
}

// RecordUsage adds one request and its row counts to today's usage row
func (s *Store) RecordUsage(ctx context.Context, keyID uint, imported, rejected int) error {
	today := time.Now().Format("2006-01-02")
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"request_count": gorm.Expr("request_count + ?", 1),
			"rows_imported": gorm.Expr("rows_imported + ?", imported),
			"rows_rejected": gorm.Expr("rows_rejected + ?", rejected),
		}),
	}).Create(&database.IntegrationUsage{
		KeyID:        keyID,
		Date:         today,
		RequestCount: 1,
		RowsImported: imported,
		RowsRejected: rejected,
	}).Error
}

// RequestsToday returns how many requests a key has made today
func (s *Store) RequestsToday(ctx context.Context, keyID uint) (int, error) {
	var u database.IntegrationUsage
	err := s.db.WithContext(ctx).Where("key_id = ? AND date = ?", keyID, time.Now().Format("2006-01-02")).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return u.RequestCount, err
}

// Usage returns the last 30 days of usage for a key
func (s *Store) Usage(ctx context.Context, keyID uint) ([]database.IntegrationUsage, error) {
	var usage []database.IntegrationUsage
	err := s.db.WithContext(ctx).Where("key_id = ?", keyID).Order("date desc").Limit(30).Find(&usage).Error
	return usage, err
}
