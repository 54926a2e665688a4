package matching

import (
	"strings"

	"github.com/arnavshah/workload-api-go/pkg/models"
)

// CountryScope restricts a team to a set of customer countries
type CountryScope int

const (
	AnyCountry CountryScope = iota
	USAOnly
	NonUSA
)

// Matches reports whether a customer country falls inside the scope
func (s CountryScope) Matches(country string) bool {
	isUSA := strings.EqualFold(strings.TrimSpace(country), "USA")
	switch s {
	case USAOnly:
		return isUSA
	case NonUSA:
		return !isUSA
	}
	return true
}

// TeamRule routes projects of one machine type and country scope to a team
type TeamRule struct {
	Machine models.MachineType
	Scope   CountryScope
	Team    int
}

// TeamRules is the fixed routing table. APS and PSC have no dedicated team
// and go to team 1 until one exists.
var TeamRules = []TeamRule{
	{Machine: models.MachinePAH, Scope: AnyCountry, Team: 1},
	{Machine: models.MachinePPH, Scope: USAOnly, Team: 2},
	{Machine: models.MachinePPH, Scope: NonUSA, Team: 3},
	{Machine: models.MachineREF, Scope: USAOnly, Team: 4},
	{Machine: models.MachineREF, Scope: NonUSA, Team: 5},
	{Machine: models.MachineAPS, Scope: AnyCountry, Team: 1},
	{Machine: models.MachinePSC, Scope: AnyCountry, Team: 1},
}

// EligibleTeams returns the teams allowed to work a project, in table order.
// An unknown machine type yields no team.
func EligibleTeams(machine models.MachineType, country string) []int {
	var teams []int
	for _, r := range TeamRules {
		if r.Machine == machine && r.Scope.Matches(country) {
			teams = append(teams, r.Team)
		}
	}
	return teams
}

// TeamEligible reports whether a team may work the given project
func TeamEligible(team int, machine models.MachineType, country string) bool {
	return containsTeam(EligibleTeams(machine, country), team)
}

// RequiresRefFirst reports whether the REF team must finish before assembly starts
func RequiresRefFirst(machine models.MachineType, country string) bool {
	switch machine {
	case models.MachineAPS, models.MachinePSC:
		return true
	case models.MachinePPH:
		return USAOnly.Matches(country)
	}
	return false
}

func containsTeam(teams []int, team int) bool {
	for _, t := range teams {
		if t == team {
			return true
		}
	}
	return false
}
