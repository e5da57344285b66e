// Package wizard sequences the registration form steps of an event.
package wizard

import (
	"slices"

	"github.com/parish-camps/camp-api/internal/models"
)

type Step string

const (
	StepParticipant Step = "participant"
	StepSpouse      Step = "spouse"
	StepHealth      Step = "health"
	StepGuardian    Step = "guardian"
	StepEmergency   Step = "emergency"
	StepReview      Step = "review"
)

const adultAge = 18

// Steps returns the ordered steps that apply to the participant at the event.
// Couples events ask for the spouse; minors at the start of the event must
// name a guardian.
func Steps(event models.Event, participant models.Participant) []Step {
	steps := []Step{StepParticipant}
	if event.Pairable() {
		steps = append(steps, StepSpouse)
	}
	steps = append(steps, StepHealth)
	if participant.AgeAt(event.StartsAt) < adultAge {
		steps = append(steps, StepGuardian)
	}
	return append(steps, StepEmergency, StepReview)
}

// Next returns the step following the last completed one.
func Next(steps []Step, completed Step) Step {
	i := slices.Index(steps, completed)
	if i < 0 {
		return steps[0]
	}
	if i+1 >= len(steps) {
		return StepReview
	}
	return steps[i+1]
}

// CanSave reports whether step may be saved now: it must apply and must not
// skip ahead of the next pending step. Completed steps may be revisited.
func CanSave(steps []Step, completed Step, step Step) bool {
	i := slices.Index(steps, step)
	if i < 0 {
		return false
	}
	return i <= slices.Index(steps, Next(steps, completed))
}

// Advance returns the furthest of the completed step and the newly saved one.
func Advance(steps []Step, completed Step, saved Step) Step {
	if slices.Index(steps, saved) > slices.Index(steps, completed) {
		return saved
	}
	return completed
}

// ReadyForReview reports whether every step before review was completed.
func ReadyForReview(steps []Step, completed Step) bool {
	return Next(steps, completed) == StepReview
}
