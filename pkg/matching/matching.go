// Package matching decides which employees can take a project and who should.
//
// The pipeline is Eligibility Filter -> Skill Lookup -> Availability Filter ->
// Candidate Ranker. Everything it reads comes through Repository so the rules
// can be exercised without a database.
package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/arnavshah/workload-api-go/pkg/apperr"
	"github.com/arnavshah/workload-api-go/pkg/database"
	"github.com/arnavshah/workload-api-go/pkg/models"
)

// SkilledEmployee is an employee together with the skill that matched
type SkilledEmployee struct {
	Employee         database.Employee
	Level            models.SkillLevel
	EfficiencyFactor float64
}

// Repository is the read side the matcher needs
type Repository interface {
	// SkilledEmployees returns active employees with role employee holding a
	// skill of the given level for the machine type. An empty teams slice
	// means any team.
	SkilledEmployees(ctx context.Context, machine models.MachineType, level models.SkillLevel, teams []int) ([]SkilledEmployee, error)
	// SkillFor returns the employee's skill for a machine type, or nil.
	SkillFor(ctx context.Context, employeeID uint, machine models.MachineType) (*database.Skill, error)
	// ApprovedVacations returns approved vacations of the employees covering day.
	ApprovedVacations(ctx context.Context, employeeIDs []uint, day time.Time) ([]database.Vacation, error)
	// CommittedHours sums hours_remaining of not_started and in_progress assignments per employee.
	CommittedHours(ctx context.Context, employeeIDs []uint) (map[uint]float64, error)
}

// Options tune the matcher
type Options struct {
	// StrictGeography drops candidates whose team the routing table does not
	// allow, including secondary-skill fallbacks from other teams.
	StrictGeography bool
	Now             func() time.Time
}

// Matcher runs the candidate pipeline for one project at a time
type Matcher struct {
	repo Repository
	opts Options
}

// New creates a Matcher
func New(repo Repository, opts Options) *Matcher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Matcher{repo: repo, opts: opts}
}

// Evaluation is the outcome of running the pipeline for a project
type Evaluation struct {
	EligibleTeams []int              `json:"eligible_teams"`
	Tier          models.SkillLevel  `json:"tier,omitempty"`
	Matched       int                `json:"matched"`
	OnVacation    int                `json:"on_vacation"`
	Candidates    []models.Candidate `json:"candidates"`
}

// Available returns the candidates with enough capacity for the project
func (e *Evaluation) Available() []models.Candidate {
	var out []models.Candidate
	for _, c := range e.Candidates {
		if !c.InsufficientCapacity {
			out = append(out, c)
		}
	}
	return out
}

// Reasons explains why no candidate could take the project
func (e *Evaluation) Reasons() []string {
	var reasons []string
	if len(e.EligibleTeams) == 0 {
		return []string{"no team handles this machine type"}
	}
	if e.Matched == 0 {
		return []string{"no employee holds a matching skill"}
	}
	if e.OnVacation > 0 {
		reasons = append(reasons, fmt.Sprintf("%d employees were on vacation", e.OnVacation))
	}
	if short := len(e.Candidates) - len(e.Available()); short > 0 {
		reasons = append(reasons, fmt.Sprintf("%d employees lacked capacity", short))
	}
	return reasons
}

// Evaluate runs the full pipeline and keeps candidates short on capacity,
// flagged, for manual selection screens.
func (m *Matcher) Evaluate(ctx context.Context, p *database.Project) (*Evaluation, error) {
	ev := &Evaluation{EligibleTeams: EligibleTeams(p.ModelType, p.CustomerCountry)}
	if len(ev.EligibleTeams) == 0 {
		return ev, nil
	}

	skilled, tier, err := m.lookup(ctx, p.ModelType, ev.EligibleTeams)
	if err != nil {
		return nil, err
	}
	ev.Tier = tier
	ev.Matched = len(skilled)

	cands, onVacation, err := m.availability(ctx, skilled, p.EstimatedHours)
	if err != nil {
		return nil, err
	}
	ev.OnVacation = onVacation
	ev.Candidates = Rank(cands)
	return ev, nil
}

// Best picks the top ranked candidate with enough capacity for the project
func (m *Matcher) Best(ctx context.Context, p *database.Project) (models.Candidate, error) {
	ev, err := m.Evaluate(ctx, p)
	if err != nil {
		return models.Candidate{}, err
	}
	available := ev.Available()
	if len(available) == 0 {
		return models.Candidate{}, apperr.Capacity("no suitable employee for project %s: %s",
			p.ProjectNumber, strings.Join(ev.Reasons(), "; "))
	}
	return available[0], nil
}

// CheckEligible validates an explicit employee choice for a project and
// returns the employee as a candidate. Capacity is reported, not enforced.
func (m *Matcher) CheckEligible(ctx context.Context, p *database.Project, emp *database.Employee) (models.Candidate, error) {
	if !emp.Active {
		return models.Candidate{}, apperr.Validation(fmt.Sprintf("employee %s is not active", emp.Username))
	}
	if emp.Role != models.RoleEmployee {
		return models.Candidate{}, apperr.Validation(fmt.Sprintf("%s is not an employee account", emp.Username))
	}
	teams := EligibleTeams(p.ModelType, p.CustomerCountry)
	if len(teams) == 0 {
		return models.Candidate{}, apperr.Validation(fmt.Sprintf("no team handles %s projects", p.ModelType))
	}
	if m.opts.StrictGeography && !containsTeam(teams, emp.TeamID) {
		return models.Candidate{}, apperr.Validation(fmt.Sprintf("team %d cannot work %s projects for %s",
			emp.TeamID, p.ModelType, p.CustomerCountry))
	}

	skill, err := m.repo.SkillFor(ctx, emp.ID, p.ModelType)
	if err != nil {
		return models.Candidate{}, err
	}
	if skill == nil {
		return models.Candidate{}, apperr.Validation(fmt.Sprintf("employee %s has no %s skill", emp.Username, p.ModelType))
	}

	cands, onVacation, err := m.availability(ctx, []SkilledEmployee{{
		Employee:         *emp,
		Level:            skill.Level,
		EfficiencyFactor: skill.EfficiencyFactor,
	}}, p.EstimatedHours)
	if err != nil {
		return models.Candidate{}, err
	}
	if onVacation > 0 {
		return models.Candidate{}, apperr.Validation(fmt.Sprintf("employee %s is on vacation", emp.Username))
	}
	return cands[0], nil
}

// lookup finds primary-skilled employees on an eligible team, falling back
// once to secondary-skilled employees from any team.
func (m *Matcher) lookup(ctx context.Context, machine models.MachineType, teams []int) ([]SkilledEmployee, models.SkillLevel, error) {
	tier := models.SkillPrimary
	found, err := m.repo.SkilledEmployees(ctx, machine, models.SkillPrimary, teams)
	if err != nil {
		return nil, "", err
	}
	if len(found) == 0 {
		tier = models.SkillSecondary
		found, err = m.repo.SkilledEmployees(ctx, machine, models.SkillSecondary, nil)
		if err != nil {
			return nil, "", err
		}
	}

	if m.opts.StrictGeography {
		kept := found[:0]
		for _, se := range found {
			if containsTeam(teams, se.Employee.TeamID) {
				kept = append(kept, se)
			}
		}
		found = kept
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Employee.ID < found[j].Employee.ID })
	return found, tier, nil
}

// availability drops employees on approved vacation today and computes the
// hours each one has left this week.
func (m *Matcher) availability(ctx context.Context, skilled []SkilledEmployee, needed float64) ([]models.Candidate, int, error) {
	if len(skilled) == 0 {
		return nil, 0, nil
	}
	ids := make([]uint, len(skilled))
	for i, se := range skilled {
		ids[i] = se.Employee.ID
	}

	today := models.Day(m.opts.Now())
	vacations, err := m.repo.ApprovedVacations(ctx, ids, today)
	if err != nil {
		return nil, 0, err
	}
	away := make(map[uint]bool, len(vacations))
	for i := range vacations {
		if vacations[i].Covers(today) {
			away[vacations[i].EmployeeID] = true
		}
	}

	committed, err := m.repo.CommittedHours(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	var out []models.Candidate
	onVacation := 0
	for _, se := range skilled {
		if away[se.Employee.ID] {
			onVacation++
			continue
		}
		used := committed[se.Employee.ID]
		available := se.Employee.HoursPerWeek - used
		if available < 0 {
			available = 0
		}
		out = append(out, models.Candidate{
			EmployeeID:           se.Employee.ID,
			Username:             se.Employee.Username,
			TeamID:               se.Employee.TeamID,
			SkillLevel:           se.Level,
			EfficiencyFactor:     se.EfficiencyFactor,
			CommittedHours:       used,
			AvailableHours:       available,
			InsufficientCapacity: available < needed,
		})
	}
	return out, onVacation, nil
}

// Rank orders candidates: primary skill first, then most available hours,
// then lowest employee id.
func Rank(cands []models.Candidate) []models.Candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.SkillLevel != b.SkillLevel {
			return a.SkillLevel == models.SkillPrimary
		}
		if a.AvailableHours != b.AvailableHours {
			return a.AvailableHours > b.AvailableHours
		}
		return a.EmployeeID < b.EmployeeID
	})
	return cands
}
