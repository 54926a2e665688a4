// Package importer loads projects, skills and vacations from CSV or XLSX files.
//
// Every row is parsed and validated before it is written. Rows that fail are
// reported with their spreadsheet row number and never persisted; the rest of
// the file is written in one transaction. Each row is written under its own
// savepoint, so a row the database refuses is rolled back and reported alone.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/arnavshah/workload-api-go/pkg/apperr"
	"github.com/arnavshah/workload-api-go/pkg/database"
	"github.com/arnavshah/workload-api-go/pkg/matching"
	"github.com/arnavshah/workload-api-go/pkg/models"
	"github.com/arnavshah/workload-api-go/pkg/store"
)

// Entity names what a file contains
type Entity string

const (
	Projects  Entity = "projects"
	Skills    Entity = "skills"
	Vacations Entity = "vacations"
)

// Entities lists every importable entity
var Entities = []Entity{Projects, Skills, Vacations}

// ParseEntity validates an entity name from a route or flag
func ParseEntity(s string) (Entity, error) {
	for _, e := range Entities {
		if string(e) == s {
			return e, nil
		}
	}
	return "", apperr.Validation(fmt.Sprintf("unknown import type %q, use projects, skills or vacations", s))
}

var requiredColumns = map[Entity][]string{
	Projects:  {"project_number", "model_type", "customer_country", "estimated_hours", "assembly_start_date", "deadline"},
	Skills:    {"username", "machine_type", "skill_level"},
	Vacations: {"username", "start_date", "end_date"},
}

// Importer writes parsed rows through the store
type Importer struct {
	store *store.Store
}

// New creates an Importer
func New(st *store.Store) *Importer {
	return &Importer{store: st}
}

// errDryRun rolls back a validation-only run
var errDryRun = errors.New("dry run")

// Import reads a file and loads it as the given entity
func (im *Importer) Import(ctx context.Context, entity Entity, filename string, r io.Reader) (*models.ImportResult, error) {
	t, err := ReadTable(filename, r)
	if err != nil {
		return nil, err
	}
	return im.run(ctx, entity, t, false)
}

// Validate reports what Import would do with a file without writing anything
func (im *Importer) Validate(ctx context.Context, entity Entity, filename string, r io.Reader) (*models.ImportResult, error) {
	t, err := ReadTable(filename, r)
	if err != nil {
		return nil, err
	}
	return im.run(ctx, entity, t, true)
}

func (im *Importer) run(ctx context.Context, entity Entity, t *Table, dryRun bool) (*models.ImportResult, error) {
	cols, ok := requiredColumns[entity]
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("unknown import type %q", entity))
	}
	if err := t.Require(cols...); err != nil {
		return nil, err
	}

	res := &models.ImportResult{Errors: []models.RowError{}}
	err := im.store.Transaction(ctx, func(tx *store.Store) error {
		var err error
		switch entity {
		case Projects:
			err = importProjects(ctx, tx, t, res)
		case Skills:
			err = importSkills(ctx, tx, t, res)
		default:
			err = importVacations(ctx, tx, t, res)
		}
		if err == nil && dryRun {
			return errDryRun
		}
		return err
	})
	if dryRun && errors.Is(err, errDryRun) {
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	log.Printf("imported %s: %d imported, %d skipped, %d rejected", entity, res.Imported, res.Skipped, len(res.Errors))
	return res, nil
}

func importProjects(ctx context.Context, tx *store.Store, t *Table, res *models.ImportResult) error {
	seen := make(map[string]bool)
	for i, row := range t.Rows {
		n := firstDataRow + i
		if blank(row) {
			continue
		}
		pr, err := parseProject(t, row)
		if err != nil {
			res.Errors = append(res.Errors, rowError(n, err))
			continue
		}

		if seen[pr.ProjectNumber] {
			res.Skipped++
			continue
		}
		seen[pr.ProjectNumber] = true
		exists, err := tx.ProjectNumberExists(ctx, pr.ProjectNumber)
		if err != nil {
			return err
		}
		if exists {
			res.Skipped++
			continue
		}

		machine := models.MachineType(pr.ModelType)
		p := &database.Project{
			ProjectNumber:     pr.ProjectNumber,
			ModelType:         machine,
			CustomerCountry:   pr.CustomerCountry,
			DifficultyLevel:   pr.DifficultyLevel,
			EstimatedHours:    pr.EstimatedHours,
			AssemblyStartDate: pr.AssemblyStartDate,
			Deadline:          pr.Deadline,
			Status:            models.ProjectUnassigned,
			Priority:          models.Priority(pr.Priority),
			RequiresRefFirst:  matching.RequiresRefFirst(machine, pr.CustomerCountry),
		}
		err = writeRow(ctx, tx, n, res, func(row *store.Store) error {
			return row.CreateProject(ctx, p)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func importSkills(ctx context.Context, tx *store.Store, t *Table, res *models.ImportResult) error {
	for i, row := range t.Rows {
		n := firstDataRow + i
		if blank(row) {
			continue
		}
		sr, err := parseSkill(t, row)
		if err != nil {
			res.Errors = append(res.Errors, rowError(n, err))
			continue
		}
		emp, ok, err := lookupEmployee(ctx, tx, sr.Username, n, res)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		sk := &database.Skill{
			EmployeeID:       emp.ID,
			MachineType:      models.MachineType(sr.MachineType),
			Level:            models.SkillLevel(sr.SkillLevel),
			EfficiencyFactor: sr.EfficiencyFactor,
		}
		err = writeRow(ctx, tx, n, res, func(row *store.Store) error {
			return row.UpsertSkill(ctx, sk)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func importVacations(ctx context.Context, tx *store.Store, t *Table, res *models.ImportResult) error {
	for i, row := range t.Rows {
		n := firstDataRow + i
		if blank(row) {
			continue
		}
		vr, err := parseVacation(t, row)
		if err != nil {
			res.Errors = append(res.Errors, rowError(n, err))
			continue
		}
		emp, ok, err := lookupEmployee(ctx, tx, vr.Username, n, res)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		exists, err := tx.VacationExists(ctx, emp.ID, vr.StartDate, vr.EndDate)
		if err != nil {
			return err
		}
		if exists {
			res.Skipped++
			continue
		}
		v := &database.Vacation{
			EmployeeID: emp.ID,
			StartDate:  vr.StartDate,
			EndDate:    vr.EndDate,
			Approved:   vr.Approved,
		}
		err = writeRow(ctx, tx, n, res, func(row *store.Store) error {
			return row.CreateVacation(ctx, v)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// writeRow runs one row's writes inside a savepoint of the import transaction.
// A refused row is rolled back to the savepoint and recorded in res; only a
// cancelled context stops the import.
func writeRow(ctx context.Context, tx *store.Store, n int, res *models.ImportResult, write func(row *store.Store) error) error {
	err := tx.Transaction(ctx, write)
	if err == nil {
		res.Imported++
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		res.Errors = append(res.Errors, models.RowError{Row: n, Message: ae.Error()})
		return nil
	}
	log.Printf("import row %d: %v", n, err)
	res.Errors = append(res.Errors, models.RowError{Row: n, Message: "could not be saved"})
	return nil
}

// lookupEmployee resolves a username, recording a row error when it is unknown
func lookupEmployee(ctx context.Context, tx *store.Store, username string, row int, res *models.ImportResult) (*database.Employee, bool, error) {
	emp, err := tx.EmployeeByUsername(ctx, username)
	if apperr.KindOf(err) == apperr.KindNotFound {
		res.Errors = append(res.Errors, models.RowError{Row: row, Field: "username", Message: "unknown employee " + username})
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return emp, true, nil
}
