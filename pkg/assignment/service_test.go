package assignment

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arnavshah/workload-api-go/pkg/apperr"
	"github.com/arnavshah/workload-api-go/pkg/database"
	"github.com/arnavshah/workload-api-go/pkg/matching"
	"github.com/arnavshah/workload-api-go/pkg/models"
	"github.com/arnavshah/workload-api-go/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db  *gorm.DB
	st  *store.Store
	svc *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenMemory(strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	st := store.New(db)
	svc := NewService(st, matching.Options{StrictGeography: true, Now: func() time.Time { return now }})
	return &fixture{db: db, st: st, svc: svc}
}

func (f *fixture) employee(t *testing.T, name string, team int, hours float64) *database.Employee {
	t.Helper()
	e := &database.Employee{
		Username: name, Email: name + "@shop.test", Role: models.RoleEmployee,
		DepartmentID: 1, TeamID: team, HoursPerWeek: hours, Active: true,
	}
	require.NoError(t, f.db.Create(e).Error)
	return e
}

func (f *fixture) skill(t *testing.T, emp *database.Employee, machine models.MachineType, level models.SkillLevel) {
	t.Helper()
	require.NoError(t, f.st.UpsertSkill(context.Background(), &database.Skill{
		EmployeeID: emp.ID, MachineType: machine, Level: level, EfficiencyFactor: 1,
	}))
}

func (f *fixture) project(t *testing.T, number string, machine models.MachineType, country string, hours float64) *database.Project {
	t.Helper()
	p := &database.Project{
		ProjectNumber: number, ModelType: machine, CustomerCountry: country,
		DifficultyLevel: 3, EstimatedHours: hours,
		AssemblyStartDate: models.Day(now), Deadline: models.Day(now).AddDate(0, 1, 0),
		Status: models.ProjectUnassigned, Priority: models.PriorityNormal,
	}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func (f *fixture) reload(t *testing.T, p *database.Project) *database.Project {
	t.Helper()
	got, err := f.st.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	return got
}

func TestAutoAssignPicksPrimaryOverSecondary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	primary := f.employee(t, "pia", 1, 40)
	secondary := f.employee(t, "sam", 1, 40)
	f.skill(t, primary, models.MachinePAH, models.SkillPrimary)
	f.skill(t, secondary, models.MachinePAH, models.SkillSecondary)

	busy := f.project(t, "P-BUSY", models.MachinePAH, "USA", 35)
	_, err := f.svc.Manual(ctx, busy.ID, primary.ID)
	require.NoError(t, err)

	p := f.project(t, "P-100", models.MachinePAH, "Germany", 5)
	res, err := f.svc.Auto(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, primary.ID, res.Assignment.EmployeeID)
	assert.Equal(t, 5.0, res.Candidate.AvailableHours)
	assert.Equal(t, 5.0, res.Assignment.OriginalHours)
	assert.Equal(t, 5.0, res.Assignment.HoursRemaining)
	assert.Equal(t, models.AssignmentNotStarted, res.Assignment.Status)
	assert.Equal(t, models.ProjectAssigned, f.reload(t, p).Status)
}

func TestAutoAssignSkipsInsufficientCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.employee(t, "ana", 2, 10)
	f.skill(t, e, models.MachinePPH, models.SkillPrimary)

	p := f.project(t, "P-200", models.MachinePPH, "USA", 20)
	_, err := f.svc.Auto(ctx, p.ID)
	assert.ErrorIs(t, err, apperr.ErrCapacity)
	assert.Equal(t, models.ProjectUnassigned, f.reload(t, p).Status)

	_, ev, err := f.svc.Candidates(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, ev.Candidates, 1)
	assert.True(t, ev.Candidates[0].InsufficientCapacity)
}

func TestAutoAssignUnknownMachineLeavesProjectUnassigned(t *testing.T) {
	f := newFixture(t)
	p := f.project(t, "P-APS", models.MachineAPS, "USA", 10)
	// no team-1 employee holds APS, so nobody qualifies
	_, err := f.svc.Auto(context.Background(), p.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindCapacity, apperr.KindOf(err))
	assert.Equal(t, models.ProjectUnassigned, f.reload(t, p).Status)
}

func TestAutoAssignExcludesVacation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.employee(t, "vic", 4, 40)
	f.skill(t, e, models.MachineREF, models.SkillPrimary)
	require.NoError(t, f.st.CreateVacation(ctx, &database.Vacation{
		EmployeeID: e.ID, StartDate: models.Day(now).AddDate(0, 0, -2), EndDate: models.Day(now).AddDate(0, 0, 2), Approved: true,
	}))

	p := f.project(t, "P-REF", models.MachineREF, "USA", 8)
	_, err := f.svc.Auto(ctx, p.ID)
	assert.ErrorIs(t, err, apperr.ErrCapacity)
}

func TestManualAssignConflictLeavesExistingUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.employee(t, "amy", 3, 40)
	b := f.employee(t, "ben", 3, 40)
	f.skill(t, a, models.MachinePPH, models.SkillPrimary)
	f.skill(t, b, models.MachinePPH, models.SkillPrimary)
	p := f.project(t, "P-300", models.MachinePPH, "Canada", 12)

	first, err := f.svc.Manual(ctx, p.ID, a.ID)
	require.NoError(t, err)

	_, err = f.svc.Manual(ctx, p.ID, b.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	existing, err := f.st.AssignmentForProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Assignment.ID, existing.ID)
	assert.Equal(t, a.ID, existing.EmployeeID)
}

func TestManualAssignRejectsIneligibleEmployee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wrongTeam := f.employee(t, "wes", 2, 40)
	f.skill(t, wrongTeam, models.MachineREF, models.SkillPrimary)
	p := f.project(t, "P-400", models.MachineREF, "USA", 12)

	_, err := f.svc.Manual(ctx, p.ID, wrongTeam.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, models.ProjectUnassigned, f.reload(t, p).Status)

	_, err = f.svc.Manual(ctx, p.ID, 9999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.Manual(ctx, 9999, wrongTeam.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConcurrentManualAssignOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.employee(t, "ann", 1, 40)
	b := f.employee(t, "bob", 1, 40)
	f.skill(t, a, models.MachinePAH, models.SkillPrimary)
	f.skill(t, b, models.MachinePAH, models.SkillPrimary)
	p := f.project(t, "P-500", models.MachinePAH, "USA", 8)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, emp := range []*database.Employee{a, b} {
		wg.Add(1)
		go func(i int, id uint) {
			defer wg.Done()
			_, errs[i] = f.svc.Manual(ctx, p.ID, id)
		}(i, emp.ID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, apperr.ErrConflict)
		}
	}
	assert.Equal(t, 1, succeeded)

	var count int64
	require.NoError(t, f.db.Model(&database.Assignment{}).Where("project_id = ?", p.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestTransitionLifecycleCascadesToProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.employee(t, "eve", 1, 40)
	f.skill(t, e, models.MachinePAH, models.SkillPrimary)
	p := f.project(t, "P-600", models.MachinePAH, "USA", 16)
	res, err := f.svc.Manual(ctx, p.ID, e.ID)
	require.NoError(t, err)
	id := res.Assignment.ID
	self := Actor{EmployeeID: e.ID}

	a, err := f.svc.Transition(ctx, self, id, models.AssignmentInProgress, "")
	require.NoError(t, err)
	assert.NotNil(t, a.StartedAt)
	assert.Equal(t, models.ProjectInProgress, f.reload(t, p).Status)

	_, err = f.svc.Transition(ctx, self, id, models.AssignmentOnHold, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Transition(ctx, self, id, models.AssignmentOnHold, "Waiting for REF team feedback")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectOnHold, f.reload(t, p).Status)

	a, err = f.svc.Transition(ctx, self, id, models.AssignmentCompleted, "")
	require.NoError(t, err)
	assert.Zero(t, a.HoursRemaining)
	assert.NotNil(t, a.CompletedAt)
	assert.Equal(t, models.ProjectCompleted, f.reload(t, p).Status)

	_, err = f.svc.Transition(ctx, self, id, models.AssignmentInProgress, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestTransitionIsSelfScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.employee(t, "own", 1, 40)
	other := f.employee(t, "oth", 1, 40)
	f.skill(t, owner, models.MachinePAH, models.SkillPrimary)
	p := f.project(t, "P-700", models.MachinePAH, "USA", 4)
	res, err := f.svc.Manual(ctx, p.ID, owner.ID)
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, Actor{EmployeeID: other.ID}, res.Assignment.ID, models.AssignmentInProgress, "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.Transition(ctx, Actor{EmployeeID: owner.ID}, res.Assignment.ID, models.AssignmentCancelled, "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.Transition(ctx, Actor{EmployeeID: 1, Admin: true}, res.Assignment.ID, models.AssignmentCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectCancelled, f.reload(t, p).Status)
}

func TestUpdateHours(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.employee(t, "hal", 1, 40)
	f.skill(t, e, models.MachinePAH, models.SkillPrimary)
	p := f.project(t, "P-800", models.MachinePAH, "USA", 10)
	res, err := f.svc.Manual(ctx, p.ID, e.ID)
	require.NoError(t, err)
	self := Actor{EmployeeID: e.ID}

	_, err = f.svc.UpdateHours(ctx, self, res.Assignment.ID, -1)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	a, err := f.svc.UpdateHours(ctx, self, res.Assignment.ID, 6.5)
	require.NoError(t, err)
	assert.Equal(t, 6.5, a.HoursRemaining)
	assert.Equal(t, 10.0, a.OriginalHours)

	committed, err := f.st.CommittedHours(ctx, []uint{e.ID})
	require.NoError(t, err)
	assert.Equal(t, 6.5, committed[e.ID])
}
