// Package lifecycle holds the registration stage machine.
//
// A registration moves strictly forward through
// draft → submitted → selected → payment_pending → payment_confirmed.
// "Completed" is not stored: it is derived from payment_confirmed, so the
// combination completed-without-payment cannot be represented.
package lifecycle

import (
	"errors"
	"fmt"
	"slices"
)

type Stage string

const (
	StageDraft            Stage = "draft"
	StageSubmitted        Stage = "submitted"
	StageSelected         Stage = "selected"
	StagePaymentPending   Stage = "payment_pending"
	StagePaymentConfirmed Stage = "payment_confirmed"
)

var order = []Stage{
	StageDraft,
	StageSubmitted,
	StageSelected,
	StagePaymentPending,
	StagePaymentConfirmed,
}

// Rank is the position of s in the progression, or -1 for unknown stages.
func (s Stage) Rank() int {
	return slices.Index(order, s)
}

func (s Stage) Valid() bool {
	return s.Rank() >= 0
}

// AtLeast reports whether s is at or beyond other.
func (s Stage) AtLeast(other Stage) bool {
	return s.Valid() && s.Rank() >= other.Rank()
}

type Trigger string

const (
	TriggerSubmit         Trigger = "submit"
	TriggerSelect         Trigger = "select"
	TriggerAwaitPayment   Trigger = "await_payment"
	TriggerConfirmPayment Trigger = "confirm_payment"
)

// Notice is the participant-facing message fired on a transition edge.
type Notice string

const (
	NoticeNone      Notice = ""
	NoticeReceived  Notice = "received"
	NoticeSelected  Notice = "selected"
	NoticeConfirmed Notice = "confirmed"
)

type transition struct {
	from   []Stage
	to     Stage
	notice Notice
}

var table = map[Trigger]transition{
	TriggerSubmit:         {from: []Stage{StageDraft}, to: StageSubmitted, notice: NoticeReceived},
	TriggerSelect:         {from: []Stage{StageSubmitted}, to: StageSelected, notice: NoticeSelected},
	TriggerAwaitPayment:   {from: []Stage{StageSelected}, to: StagePaymentPending},
	TriggerConfirmPayment: {from: []Stage{StageSelected, StagePaymentPending}, to: StagePaymentConfirmed, notice: NoticeConfirmed},
}

var (
	ErrUnknownTrigger    = errors.New("unknown trigger")
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrAlreadyApplied means the registration already reached the target
	// stage (or beyond); re-applying the trigger is a no-op.
	ErrAlreadyApplied = errors.New("transition already applied")
)

// Apply returns the stage reached by firing trigger from the given stage.
func Apply(from Stage, trigger Trigger) (Stage, error) {
	t, ok := table[trigger]
	if !ok {
		return from, fmt.Errorf("%w: %s", ErrUnknownTrigger, trigger)
	}
	if slices.Contains(t.from, from) {
		return t.to, nil
	}
	if from.AtLeast(t.to) {
		return from, ErrAlreadyApplied
	}
	return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, trigger, from)
}

// Sources lists the stages from which trigger may fire.
func Sources(trigger Trigger) []Stage {
	return slices.Clone(table[trigger].from)
}

// Target is the stage trigger leads to.
func Target(trigger Trigger) Stage {
	return table[trigger].to
}

// NoticeFor is the notification fired on the 0→1 edge of trigger.
func NoticeFor(trigger Trigger) Notice {
	return table[trigger].notice
}

// Flags is the boolean view of a stage exposed to clients.
type Flags struct {
	Submitted        bool `json:"submitted"`
	Selected         bool `json:"selected"`
	PaymentConfirmed bool `json:"payment_confirmed"`
	Completed        bool `json:"completed"`
}

func (s Stage) Flags() Flags {
	confirmed := s.AtLeast(StagePaymentConfirmed)
	return Flags{
		Submitted:        s.AtLeast(StageSubmitted),
		Selected:         s.AtLeast(StageSelected),
		PaymentConfirmed: confirmed,
		Completed:        confirmed && s.AtLeast(StageSelected),
	}
}
