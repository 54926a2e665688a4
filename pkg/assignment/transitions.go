package assignment

import (
	"strings"
	"time"

	"github.com/arnavshah/workload-api-go/pkg/apperr"
	"github.com/arnavshah/workload-api-go/pkg/database"
	"github.com/arnavshah/workload-api-go/pkg/models"
)

// maxHoldReason is in characters, matching the varchar(100) column
const maxHoldReason = 100

// allowed lists, per target status, the statuses an assignment may come from
var allowed = map[models.AssignmentStatus][]models.AssignmentStatus{
	models.AssignmentInProgress: {models.AssignmentNotStarted, models.AssignmentOnHold},
	models.AssignmentOnHold:     {models.AssignmentInProgress},
	models.AssignmentCompleted:  {models.AssignmentNotStarted, models.AssignmentInProgress, models.AssignmentOnHold},
	models.AssignmentCancelled:  {models.AssignmentNotStarted, models.AssignmentInProgress, models.AssignmentOnHold},
}

// projectStatusFor is the project status each assignment status cascades to
var projectStatusFor = map[models.AssignmentStatus]models.ProjectStatus{
	models.AssignmentInProgress: models.ProjectInProgress,
	models.AssignmentOnHold:     models.ProjectOnHold,
	models.AssignmentCompleted:  models.ProjectCompleted,
	models.AssignmentCancelled:  models.ProjectCancelled,
}

// Apply moves an assignment to a new status in place and returns the status
// its project must take. Nothing is changed when an error is returned.
func Apply(a *database.Assignment, to models.AssignmentStatus, reason string, now time.Time) (models.ProjectStatus, error) {
	if !to.Valid() {
		return "", apperr.Validation("unknown status " + string(to))
	}
	reason = strings.TrimSpace(reason)
	if to == models.AssignmentOnHold && reason == "" {
		return "", apperr.Validation("a hold reason is required",
			apperr.FieldError{Field: "hold_reason", Message: "required when putting work on hold"})
	}

	from := a.Status
	if !permitted(from, to) {
		return "", apperr.InvalidTransition("cannot move assignment from %s to %s", from, to)
	}

	switch to {
	case models.AssignmentInProgress:
		if from == models.AssignmentNotStarted && a.StartedAt == nil {
			started := now
			a.StartedAt = &started
		}
		a.HoldReason = ""
	case models.AssignmentOnHold:
		if r := []rune(reason); len(r) > maxHoldReason {
			reason = string(r[:maxHoldReason])
		}
		a.HoldReason = reason
	case models.AssignmentCompleted:
		completed := now
		a.CompletedAt = &completed
		a.HoursRemaining = 0
		a.HoldReason = ""
	case models.AssignmentCancelled:
		a.HoldReason = ""
	}

	a.Status = to
	a.LastStatusChange = now
	return projectStatusFor[to], nil
}

func permitted(from, to models.AssignmentStatus) bool {
	for _, s := range allowed[to] {
		if s == from {
			return true
		}
	}
	return false
}
