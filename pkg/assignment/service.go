// Package assignment writes assignments and moves them through their lifecycle.
package assignment

import (
	"context"
	"log"
	"time"

	"github.com/arnavshah/workload-api-go/pkg/apperr"
	"github.com/arnavshah/workload-api-go/pkg/database"
	"github.com/arnavshah/workload-api-go/pkg/matching"
	"github.com/arnavshah/workload-api-go/pkg/models"
	"github.com/arnavshah/workload-api-go/pkg/store"
)

// Actor is the authenticated user performing an operation
type Actor struct {
	EmployeeID uint
	Admin      bool
}

// Result is a created assignment and the candidate data that justified it
type Result struct {
	Assignment *database.Assignment `json:"assignment"`
	Candidate  models.Candidate     `json:"candidate"`
}

// Service creates assignments and applies status changes
type Service struct {
	store *store.Store
	opts  matching.Options
}

// NewService creates a Service
func NewService(st *store.Store, opts matching.Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: st, opts: opts}
}

// Matcher returns a matcher reading from the service's store
func (s *Service) Matcher() *matching.Matcher {
	return matching.New(s.store, s.opts)
}

// Candidates evaluates every candidate for a project, including those short on capacity
func (s *Service) Candidates(ctx context.Context, projectID uint) (*database.Project, *matching.Evaluation, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	ev, err := s.Matcher().Evaluate(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	return p, ev, nil
}

// Manual assigns a project to an employee picked by an admin
func (s *Service) Manual(ctx context.Context, projectID, employeeID uint) (*Result, error) {
	p, err := s.openProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	emp, err := s.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	cand, err := s.Matcher().CheckEligible(ctx, p, emp)
	if err != nil {
		return nil, err
	}
	return s.write(ctx, p, cand)
}

// Auto assigns a project to the best ranked employee with enough capacity
func (s *Service) Auto(ctx context.Context, projectID uint) (*Result, error) {
	p, err := s.openProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	cand, err := s.Matcher().Best(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.write(ctx, p, cand)
}

func (s *Service) openProject(ctx context.Context, projectID uint) (*database.Project, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.ProjectUnassigned {
		return nil, apperr.Conflict("project %s is already %s", p.ProjectNumber, p.Status)
	}
	return p, nil
}

// write persists the assignment and flips the project to assigned in one
// transaction. A storage-level conflict is retried once; the retry then sees
// the winner's row and reports a conflict.
func (s *Service) write(ctx context.Context, p *database.Project, cand models.Candidate) (*Result, error) {
	var created *database.Assignment
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		created, err = s.writeOnce(ctx, p, cand)
		if err == nil {
			log.Printf("project %s assigned to %s (%s, %.1fh available)",
				p.ProjectNumber, cand.Username, cand.SkillLevel, cand.AvailableHours)
			return &Result{Assignment: created, Candidate: cand}, nil
		}
		if !store.IsConflict(err) {
			return nil, err
		}
		log.Printf("assignment of project %s hit a write conflict (attempt %d): %v", p.ProjectNumber, attempt+1, err)
	}
	return nil, apperr.Conflict("project %s was assigned concurrently", p.ProjectNumber)
}

func (s *Service) writeOnce(ctx context.Context, p *database.Project, cand models.Candidate) (*database.Assignment, error) {
	now := s.opts.Now()
	a := &database.Assignment{
		ProjectID:        p.ID,
		EmployeeID:       cand.EmployeeID,
		Status:           models.AssignmentNotStarted,
		OriginalHours:    p.EstimatedHours,
		HoursRemaining:   p.EstimatedHours,
		AssignedAt:       now,
		LastStatusChange: now,
	}

	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		existing, err := tx.AssignmentForProject(ctx, p.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict("project %s already has an assignment", p.ProjectNumber)
		}
		if err := tx.CreateAssignment(ctx, a); err != nil {
			return err
		}
		ok, err := tx.MarkProjectAssigned(ctx, p.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("project %s is no longer unassigned", p.ProjectNumber)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Transition changes the status of an assignment and cascades to its project
func (s *Service) Transition(ctx context.Context, actor Actor, assignmentID uint, to models.AssignmentStatus, reason string) (*database.Assignment, error) {
	if to == models.AssignmentCancelled && !actor.Admin {
		return nil, apperr.Forbidden("only admins can cancel assignments")
	}

	var a *database.Assignment
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		var err error
		a, err = tx.GetAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		if !actor.Admin && a.EmployeeID != actor.EmployeeID {
			return apperr.Forbidden("assignment %d belongs to another employee", assignmentID)
		}

		from := a.Status
		projectStatus, err := Apply(a, to, reason, s.opts.Now())
		if err != nil {
			return err
		}
		if err := tx.SaveAssignment(ctx, a); err != nil {
			return err
		}
		if err := tx.SetProjectStatus(ctx, a.ProjectID, projectStatus); err != nil {
			return err
		}
		if a.Project != nil {
			a.Project.Status = projectStatus
		}
		log.Printf("assignment %d: %s -> %s by employee %d", a.ID, from, to, actor.EmployeeID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateHours records the work left on an active assignment
func (s *Service) UpdateHours(ctx context.Context, actor Actor, assignmentID uint, hours float64) (*database.Assignment, error) {
	if hours < 0 {
		return nil, apperr.Validation("hours remaining cannot be negative",
			apperr.FieldError{Field: "hours_remaining", Message: "must be >= 0"})
	}

	var a *database.Assignment
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		var err error
		a, err = tx.GetAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		if !actor.Admin && a.EmployeeID != actor.EmployeeID {
			return apperr.Forbidden("assignment %d belongs to another employee", assignmentID)
		}
		if !a.Status.Active() {
			return apperr.InvalidTransition("assignment %d is %s", assignmentID, a.Status)
		}
		a.HoursRemaining = hours
		a.LastStatusChange = s.opts.Now()
		return tx.SaveAssignment(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}
