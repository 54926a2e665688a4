package database

import (
	"fmt"
	"log"
	"time"

	"github.com/arnavshah/workload-api-go/pkg/config"
	"github.com/arnavshah/workload-api-go/pkg/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Employee represents the employees table
type Employee struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Username     string      `gorm:"type:varchar(80);uniqueIndex;not null" json:"username"`
	Email        string      `gorm:"type:varchar(120);uniqueIndex;not null" json:"email"`
	PasswordHash string      `gorm:"type:varchar(255)" json:"-"`
	Role         models.Role `gorm:"type:varchar(20);not null;check:chk_employees_role,role IN ('admin','employee')" json:"role"`
	DepartmentID int         `gorm:"not null" json:"department_id"`
	TeamID       int         `gorm:"not null;index" json:"team_id"`
	HoursPerWeek float64     `gorm:"not null;check:chk_employees_hours,hours_per_week > 0" json:"hours_per_week"`
	Active       bool        `gorm:"not null;index" json:"active"`
	CreatedAt    time.Time   `json:"created_at"`

	Skills    []Skill    `gorm:"foreignKey:EmployeeID" json:"skills,omitempty"`
	Vacations []Vacation `gorm:"foreignKey:EmployeeID" json:"vacations,omitempty"`
}

// IsAdmin reports whether the employee may use admin-only operations
func (e *Employee) IsAdmin() bool { return e.Role == models.RoleAdmin }

// Project represents the projects table
type Project struct {
	ID                uint                 `gorm:"primaryKey" json:"id"`
	ProjectNumber     string               `gorm:"type:varchar(50);uniqueIndex;not null" json:"project_number"`
	ModelType         models.MachineType   `gorm:"type:varchar(20);not null;index;check:chk_projects_model,model_type IN ('PAH','PPH','REF','APS','PSC')" json:"model_type"`
	CustomerCountry   string               `gorm:"type:varchar(50);not null" json:"customer_country"`
	DifficultyLevel   int                  `gorm:"not null;default:3;check:chk_projects_difficulty,difficulty_level BETWEEN 1 AND 5" json:"difficulty_level"`
	EstimatedHours    float64              `gorm:"not null;check:chk_projects_hours,estimated_hours > 0" json:"estimated_hours"`
	AssemblyStartDate time.Time            `gorm:"type:date;not null" json:"assembly_start_date"`
	Deadline          time.Time            `gorm:"type:date;not null;check:chk_projects_deadline,deadline >= assembly_start_date" json:"deadline"`
	Status            models.ProjectStatus `gorm:"type:varchar(20);not null;default:'unassigned';index;check:chk_projects_status,status IN ('unassigned','assigned','in_progress','on_hold','completed','cancelled')" json:"status"`
	Priority          models.Priority      `gorm:"type:varchar(20);not null;default:'normal';check:chk_projects_priority,priority IN ('low','normal','high','urgent')" json:"priority"`
	RequiresRefFirst  bool                 `gorm:"not null" json:"requires_ref_first"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// Skill represents the skills table, one row per employee and machine type
type Skill struct {
	ID               uint               `gorm:"primaryKey" json:"id"`
	EmployeeID       uint               `gorm:"not null;uniqueIndex:idx_skill_employee_machine" json:"employee_id"`
	MachineType      models.MachineType `gorm:"type:varchar(20);not null;uniqueIndex:idx_skill_employee_machine;check:chk_skills_machine,machine_type IN ('PAH','PPH','REF','APS','PSC')" json:"machine_type"`
	Level            models.SkillLevel  `gorm:"type:varchar(20);not null;check:chk_skills_level,level IN ('primary','secondary')" json:"skill_level"`
	EfficiencyFactor float64            `gorm:"not null;default:1;check:chk_skills_efficiency,efficiency_factor > 0 AND efficiency_factor <= 2.0" json:"efficiency_factor"`
}

// Vacation represents the vacations table
type Vacation struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EmployeeID uint      `gorm:"not null;index:idx_vacation_employee_dates" json:"employee_id"`
	StartDate  time.Time `gorm:"type:date;not null;index:idx_vacation_employee_dates" json:"start_date"`
	EndDate    time.Time `gorm:"type:date;not null;index:idx_vacation_employee_dates;check:chk_vacations_dates,end_date >= start_date" json:"end_date"`
	Approved   bool      `gorm:"not null" json:"approved"`
	CreatedAt  time.Time `json:"created_at"`
}

// Covers reports whether an approved vacation includes the given day
func (v *Vacation) Covers(day time.Time) bool {
	d := models.Day(day)
	return v.Approved && !d.Before(models.Day(v.StartDate)) && !d.After(models.Day(v.EndDate))
}

// Assignment represents the assignments table; a project has at most one
type Assignment struct {
	ID               uint                    `gorm:"primaryKey" json:"id"`
	ProjectID        uint                    `gorm:"not null;uniqueIndex" json:"project_id"`
	EmployeeID       uint                    `gorm:"not null;index" json:"employee_id"`
	Status           models.AssignmentStatus `gorm:"type:varchar(20);not null;index;check:chk_assignments_status,status IN ('not_started','in_progress','on_hold','completed','cancelled')" json:"status"`
	OriginalHours    float64                 `gorm:"not null" json:"original_hours"`
	HoursRemaining   float64                 `gorm:"not null;check:chk_assignments_remaining,hours_remaining >= 0" json:"hours_remaining"`
	HoldReason       string                  `gorm:"type:varchar(100)" json:"hold_reason,omitempty"`
	AssignedAt       time.Time               `gorm:"not null" json:"assigned_at"`
	StartedAt        *time.Time              `json:"started_at"`
	CompletedAt      *time.Time              `json:"completed_at"`
	LastStatusChange time.Time               `gorm:"not null" json:"last_status_change"`

	Project  *Project  `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Employee *Employee `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`
}

// IntegrationKey represents the integration_keys table
type IntegrationKey struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Key        string     `gorm:"unique;not null" json:"-"`
	Name       string     `gorm:"not null" json:"name"`
	KeyPreview string     `json:"key_preview"`
	RateLimit  int        `gorm:"default:10000" json:"rate_limit"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsed   *time.Time `json:"last_used"`
}

// IntegrationUsage represents the integration_usage table
type IntegrationUsage struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	KeyID        uint   `gorm:"uniqueIndex:idx_key_date;not null" json:"key_id"`
	Date         string `gorm:"uniqueIndex:idx_key_date;not null" json:"date"`
	RequestCount int    `gorm:"default:0" json:"request_count"`
	RowsImported int    `gorm:"default:0" json:"rows_imported"`
	RowsRejected int    `gorm:"default:0" json:"rows_rejected"`
}

func (IntegrationUsage) TableName() string { return "integration_usage" }

// Tables lists every model managed by AutoMigrate
func Tables() []any {
	return []any{
		&Employee{}, &Project{}, &Skill{}, &Vacation{}, &Assignment{},
		&IntegrationKey{}, &IntegrationUsage{},
	}
}

// InitDB opens the configured database and migrates the schema, exiting on failure
func InitDB(cfg *config.Config) *gorm.DB {
	var dialector gorm.Dialector
	gormCfg := &gorm.Config{}

	if cfg.DatabaseURL != "" {
		dialector = postgres.New(postgres.Config{
			DSN:                  cfg.DatabaseURL,
			PreferSimpleProtocol: true,
		})
		gormCfg.PrepareStmt = false
	} else {
		dialector = sqlite.Open(cfg.DataPath + "?_foreign_keys=on")
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	if cfg.DatabaseURL == "" {
		// sqlite serializes writers anyway; one connection avoids "database is locked"
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if err := Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

// Migrate creates or updates every table
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Tables()...)
}

// OpenMemory opens a private in-memory SQLite database with the schema applied.
// Each name gets its own database.
func OpenMemory(name string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
