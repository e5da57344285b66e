package registrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/parish-camps/camp-api/internal/apperr"
	"github.com/parish-camps/camp-api/internal/lifecycle"
	"github.com/parish-camps/camp-api/internal/models"
	"github.com/parish-camps/camp-api/internal/wizard"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// saveStep validates and persists one wizard step of a draft registration.
func (s *Service) saveStep(ctx context.Context, token string, step wizard.Step, form any, apply func(tx *gorm.DB, reg *models.Registration) error) (*models.Registration, error) {
	if err := wizard.Validate(form); err != nil {
		return nil, err
	}
	reg, err := s.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if reg.Stage != lifecycle.StageDraft {
		return nil, apperr.ErrWizardFinished
	}

	steps := s.Steps(reg)
	completed := wizard.Step(reg.WizardStep)
	if !wizard.CanSave(steps, completed, step) {
		return nil, apperr.NewValidationError("step", fmt.Sprintf("step %s is not available, next step is %s", step, wizard.Next(steps, completed)))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := apply(tx, reg); err != nil {
			return err
		}
		reg.WizardStep = string(wizard.Advance(steps, completed, step))
		return tx.Model(&models.Registration{}).
			Where("id = ? AND stage = ?", reg.ID, lifecycle.StageDraft).
			Update("wizard_step", reg.WizardStep).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, reg.ID)
}

// SaveSpouse records the spouse of a couples registration and pairs both
// registrations once the spouse has registered for the same event.
func (s *Service) SaveSpouse(ctx context.Context, token string, form wizard.SpouseForm) (*models.Registration, error) {
	return s.saveStep(ctx, token, wizard.StepSpouse, form, func(tx *gorm.DB, reg *models.Registration) error {
		if form.SpouseNationalID == reg.Participant.NationalID {
			return apperr.NewValidationError("spouse_national_id", "must differ from your own")
		}
		if err := tx.Model(&models.Registration{}).Where("id = ?", reg.ID).
			Update("spouse_national_id", form.SpouseNationalID).Error; err != nil {
			return err
		}

		var spouse models.Registration
		err := tx.Joins("JOIN participants ON participants.id = registrations.participant_id").
			Where("participants.national_id = ? AND registrations.event_id = ?", form.SpouseNationalID, reg.EventID).
			First(&spouse).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return pairTx(tx, reg.ID, spouse.ID)
	})
}

func (s *Service) SaveHealth(ctx context.Context, token string, form wizard.HealthForm) (*models.Registration, error) {
	return s.saveStep(ctx, token, wizard.StepHealth, form, func(tx *gorm.DB, reg *models.Registration) error {
		answers, err := json.Marshal(form.Answers)
		if err != nil {
			return err
		}
		profile := models.HealthProfile{
			RegistrationID: reg.ID,
			Allergies:      form.Allergies,
			Medications:    form.Medications,
			Conditions:     form.Conditions,
			Dietary:        form.Dietary,
			Answers:        datatypes.JSON(answers),
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "registration_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"allergies", "medications", "conditions", "dietary", "answers", "updated_at"}),
		}).Create(&profile).Error
	})
}

func (s *Service) SaveGuardian(ctx context.Context, token string, form wizard.GuardianForm) (*models.Registration, error) {
	return s.saveStep(ctx, token, wizard.StepGuardian, form, func(tx *gorm.DB, reg *models.Registration) error {
		return tx.Model(&models.Registration{}).Where("id = ?", reg.ID).Updates(map[string]any{
			"guardian_name":         form.Name,
			"guardian_phone":        form.Phone,
			"guardian_relationship": form.Relationship,
		}).Error
	})
}

func (s *Service) SaveEmergency(ctx context.Context, token string, form wizard.EmergencyForm) (*models.Registration, error) {
	return s.saveStep(ctx, token, wizard.StepEmergency, form, func(tx *gorm.DB, reg *models.Registration) error {
		return tx.Model(&models.Registration{}).Where("id = ?", reg.ID).Updates(map[string]any{
			"emergency_name":  form.Name,
			"emergency_phone": form.Phone,
		}).Error
	})
}

// HealthProfile returns the saved questionnaire of a registration, if any.
func (s *Service) HealthProfile(ctx context.Context, registrationID uint) (*models.HealthProfile, error) {
	var profile models.HealthProfile
	err := s.db.WithContext(ctx).Where("registration_id = ?", registrationID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
