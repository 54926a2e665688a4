package database

import (
	"testing"
	"time"

	"github.com/arnavshah/workload-api-go/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMemoryMigrates(t *testing.T) {
	db, err := OpenMemory("TestOpenMemoryMigrates")
	require.NoError(t, err)

	for _, table := range Tables() {
		assert.True(t, db.Migrator().HasTable(table), "%T", table)
	}

	emp := Employee{Username: "a", Email: "a@x.test", Role: models.RoleEmployee, TeamID: 1, HoursPerWeek: 40, Active: true}
	require.NoError(t, db.Create(&emp).Error)
	p := Project{
		ProjectNumber: "P-1", ModelType: models.MachinePAH, CustomerCountry: "USA",
		DifficultyLevel: 3, EstimatedHours: 5, Status: models.ProjectUnassigned, Priority: models.PriorityNormal,
		AssemblyStartDate: time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		Deadline:          time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Create(&p).Error)

	now := time.Now()
	first := Assignment{ProjectID: p.ID, EmployeeID: emp.ID, Status: models.AssignmentNotStarted, OriginalHours: 5, HoursRemaining: 5, AssignedAt: now, LastStatusChange: now}
	require.NoError(t, db.Create(&first).Error)
	second := first
	second.ID = 0
	assert.Error(t, db.Create(&second).Error, "a project holds one assignment")
}

func TestVacationCovers(t *testing.T) {
	v := Vacation{
		StartDate: time.Date(2026, 12, 21, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		Approved:  true,
	}
	assert.True(t, v.Covers(time.Date(2026, 12, 21, 15, 0, 0, 0, time.UTC)))
	assert.True(t, v.Covers(time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC)))
	assert.False(t, v.Covers(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)))

	v.Approved = false
	assert.False(t, v.Covers(time.Date(2026, 12, 24, 0, 0, 0, 0, time.UTC)))
}

func TestInitRedisFallsBack(t *testing.T) {
	assert.Nil(t, InitRedis(""))
	assert.Nil(t, InitRedis("not a url"))
	assert.Nil(t, InitRedis("redis://127.0.0.1:1/0"))
}
