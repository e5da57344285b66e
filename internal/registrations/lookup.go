package registrations

import (
	"context"
	"errors"

	"github.com/parish-camps/camp-api/internal/models"
	"gorm.io/gorm"
)

type SelectionStatus string

const (
	StatusSelected       SelectionStatus = "true"
	StatusNotSelected    SelectionStatus = "false"
	StatusNotFound       SelectionStatus = "not found"
	StatusNoRegistration SelectionStatus = "no registration"
)

// Value renders the status the way the public lookup answers: a boolean for
// known registrations, a string otherwise.
func (s SelectionStatus) Value() any {
	switch s {
	case StatusSelected:
		return true
	case StatusNotSelected:
		return false
	}
	return string(s)
}

// Lookup reports whether the holder of nationalID was selected for the event.
// It is read-only and works regardless of the registration window.
func (s *Service) Lookup(ctx context.Context, nationalID string, eventID uint) (SelectionStatus, error) {
	var participant models.Participant
	err := s.db.WithContext(ctx).Where("national_id = ?", nationalID).First(&participant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return StatusNotFound, nil
	}
	if err != nil {
		return "", err
	}

	var reg models.Registration
	err = s.db.WithContext(ctx).Select("id", "stage").
		Where("participant_id = ? AND event_id = ?", participant.ID, eventID).
		First(&reg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return StatusNoRegistration, nil
	}
	if err != nil {
		return "", err
	}

	if reg.Stage.Flags().Selected {
		return StatusSelected, nil
	}
	return StatusNotSelected, nil
}
