// Package registrations owns the registration lifecycle: creation through the
// wizard, stage transitions with their notifications, pairing and lookups.
package registrations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parish-camps/camp-api/internal/apperr"
	"github.com/parish-camps/camp-api/internal/lifecycle"
	"github.com/parish-camps/camp-api/internal/metrics"
	"github.com/parish-camps/camp-api/internal/models"
	"github.com/parish-camps/camp-api/internal/notifier"
	"github.com/parish-camps/camp-api/internal/wizard"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db       *gorm.DB
	notifier notifier.Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	baseURL  string
	now      func() time.Time
}

func NewService(db *gorm.DB, n notifier.Notifier, m *metrics.Metrics, logger *zap.Logger, baseURL string) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, notifier: n, metrics: m, logger: logger, baseURL: baseURL, now: time.Now}
}

// Edge describes the outcome of a transition attempt. Applied is true only
// for the caller whose update moved the stage.
type Edge struct {
	RegistrationID uint
	Trigger        lifecycle.Trigger
	From           lifecycle.Stage
	To             lifecycle.Stage
	Applied        bool
}

// DetailURL is the participant-facing page of a registration.
func (s *Service) DetailURL(reg *models.Registration) string {
	return fmt.Sprintf("%s/registrations/%s", s.baseURL, reg.PublicToken)
}

// CheckoutURL starts the gateway checkout for a registration.
func (s *Service) CheckoutURL(reg *models.Registration) string {
	return s.DetailURL(reg) + "/checkout"
}

// Get loads a registration with its participant and event.
func (s *Service) Get(ctx context.Context, id uint) (*models.Registration, error) {
	var reg models.Registration
	err := s.db.WithContext(ctx).Preload("Participant").Preload("Event").First(&reg, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// GetByToken loads a registration by its public token.
func (s *Service) GetByToken(ctx context.Context, token string) (*models.Registration, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, apperr.ErrNotFound
	}
	var reg models.Registration
	err := s.db.WithContext(ctx).Preload("Participant").Preload("Event").
		Where("public_token = ?", token).First(&reg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// StartOrGet returns the registration of the participant for the event,
// creating participant and registration when missing. A second attempt for
// the same (participant, event) pair returns the existing registration, but
// only when the email matches the one on file.
func (s *Service) StartOrGet(ctx context.Context, eventSlug string, form wizard.ParticipantForm) (*models.Registration, bool, error) {
	if err := wizard.Validate(form); err != nil {
		return nil, false, err
	}

	var event models.Event
	if err := s.db.WithContext(ctx).Where("slug = ?", eventSlug).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, apperr.ErrNotFound
		}
		return nil, false, err
	}

	var reg models.Registration
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		participant := models.Participant{
			Name:       form.Name,
			NationalID: form.NationalID,
			Email:      form.Email,
			Phone:      form.Phone,
			BirthDate:  form.BirthDate,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "national_id"}},
			DoNothing: true,
		}).Create(&participant).Error; err != nil {
			return fmt.Errorf("create participant: %w", err)
		}
		if err := tx.Where("national_id = ?", form.NationalID).First(&participant).Error; err != nil {
			return err
		}
		// Contact data on file is never overwritten from this public form,
		// and the token is only handed out to the owner of that address.
		if !sameEmail(participant.Email, form.Email) {
			return apperr.NewValidationError("email", "does not match the email on file for this national id")
		}

		err := tx.Where("participant_id = ? AND event_id = ?", participant.ID, event.ID).First(&reg).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// Only new registrations are bound by the window.
		if event.WindowState(s.now()) != models.WindowOpen {
			return apperr.ErrRegistrationClosed
		}

		reg = models.Registration{
			ParticipantID: participant.ID,
			EventID:       event.ID,
			PublicToken:   uuid.NewString(),
			Stage:         lifecycle.StageDraft,
			WizardStep:    string(wizard.StepParticipant),
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&reg)
		if res.Error != nil {
			return fmt.Errorf("create registration: %w", res.Error)
		}
		created = res.RowsAffected == 1
		return tx.Where("participant_id = ? AND event_id = ?", participant.ID, event.ID).First(&reg).Error
	})
	if err != nil {
		return nil, false, err
	}

	full, err := s.Get(ctx, reg.ID)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.logger.Info("registration started",
			zap.Uint("registration_id", full.ID),
			zap.Uint("event_id", event.ID),
		)
	}
	return full, created, nil
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Steps returns the wizard steps applying to the registration.
func (s *Service) Steps(reg *models.Registration) []wizard.Step {
	return wizard.Steps(reg.Event, reg.Participant)
}

// TransitionTx applies trigger inside tx with a compare-and-set on the stage
// column, so concurrent callers cannot both observe the old stage. Only the
// winning caller gets an applied Edge.
func (s *Service) TransitionTx(tx *gorm.DB, id uint, trigger lifecycle.Trigger, actor string) (Edge, error) {
	edge := Edge{RegistrationID: id, Trigger: trigger}

	var reg models.Registration
	if err := tx.Select("id", "stage").First(&reg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return edge, apperr.ErrNotFound
		}
		return edge, err
	}
	edge.From, edge.To = reg.Stage, reg.Stage

	to, err := lifecycle.Apply(reg.Stage, trigger)
	if errors.Is(err, lifecycle.ErrAlreadyApplied) {
		return edge, nil
	}
	if err != nil {
		return edge, err
	}

	now := s.now()
	updates := map[string]any{"stage": to, "updated_at": now}
	switch trigger {
	case lifecycle.TriggerSubmit:
		updates["submitted_at"] = now
	case lifecycle.TriggerSelect:
		updates["selected_at"] = now
	case lifecycle.TriggerConfirmPayment:
		updates["confirmed_at"] = now
	}

	res := tx.Model(&models.Registration{}).
		Where("id = ? AND stage IN ?", id, lifecycle.Sources(trigger)).
		Updates(updates)
	if res.Error != nil {
		return edge, fmt.Errorf("update stage: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Another request moved the stage first.
		return edge, nil
	}

	history := models.RegistrationHistory{
		RegistrationID: id,
		Trigger:        trigger,
		FromStage:      reg.Stage,
		ToStage:        to,
		Actor:          actor,
	}
	if err := tx.Create(&history).Error; err != nil {
		return edge, fmt.Errorf("record history: %w", err)
	}

	edge.To = to
	edge.Applied = true
	return edge, nil
}

// Transition applies trigger in its own transaction and announces the edge.
func (s *Service) Transition(ctx context.Context, id uint, trigger lifecycle.Trigger, actor string) (Edge, error) {
	var edge Edge
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		edge, err = s.TransitionTx(tx, id, trigger, actor)
		return err
	})
	if err != nil {
		return edge, err
	}
	s.Announce(ctx, edge)
	return edge, nil
}

// Announce sends the notification of an applied edge. It must run after the
// transition committed; delivery failures are logged and never returned.
func (s *Service) Announce(ctx context.Context, edge Edge) {
	if !edge.Applied {
		return
	}
	s.metrics.TransitionApplied(string(edge.Trigger))
	s.logger.Info("registration transition applied",
		zap.Uint("registration_id", edge.RegistrationID),
		zap.String("trigger", string(edge.Trigger)),
		zap.String("from", string(edge.From)),
		zap.String("to", string(edge.To)),
	)

	notice := lifecycle.NoticeFor(edge.Trigger)
	if notice == lifecycle.NoticeNone || s.notifier == nil {
		return
	}

	reg, err := s.Get(ctx, edge.RegistrationID)
	if err != nil {
		s.logger.Error("failed to load registration for notification", zap.Error(err), zap.Uint("registration_id", edge.RegistrationID))
		s.metrics.NotificationFailed(string(notice))
		return
	}
	msg := notifier.Message{
		Participant:  reg.Participant,
		Event:        reg.Event,
		Registration: *reg,
		DetailURL:    s.DetailURL(reg),
		CheckoutURL:  s.CheckoutURL(reg),
	}
	if err := notifier.Dispatch(ctx, s.notifier, notice, msg); err != nil {
		s.logger.Warn("notification failed",
			zap.Error(err),
			zap.String("notice", string(notice)),
			zap.Uint("registration_id", reg.ID),
		)
		s.metrics.NotificationFailed(string(notice))
	}
}

// Submit finishes the wizard: every applicable step must have been saved.
func (s *Service) Submit(ctx context.Context, token string) (*models.Registration, error) {
	reg, err := s.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if reg.Stage.AtLeast(lifecycle.StageSubmitted) {
		return reg, nil
	}
	steps := s.Steps(reg)
	if !wizard.ReadyForReview(steps, wizard.Step(reg.WizardStep)) {
		return nil, apperr.NewValidationError("wizard_step", "step "+string(wizard.Next(steps, wizard.Step(reg.WizardStep)))+" is not completed")
	}

	if _, err := s.Transition(ctx, reg.ID, lifecycle.TriggerSubmit, "participant"); err != nil {
		return nil, err
	}
	return s.Get(ctx, reg.ID)
}

// Select marks a submitted registration as selected by staff.
func (s *Service) Select(ctx context.Context, id uint, actor string) (*models.Registration, error) {
	if _, err := s.Transition(ctx, id, lifecycle.TriggerSelect, actor); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// ListByEvent returns the registrations of an event, oldest first.
func (s *Service) ListByEvent(ctx context.Context, eventID uint) ([]models.Registration, error) {
	var regs []models.Registration
	err := s.db.WithContext(ctx).Preload("Participant").
		Where("event_id = ?", eventID).
		Order("id asc").
		Find(&regs).Error
	return regs, err
}

// Delete removes a registration and everything hanging off it. The partner
// of a paired registration is unpaired.
func (s *Service) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reg models.Registration
		if err := tx.First(&reg, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.ErrNotFound
			}
			return err
		}
		if err := tx.Model(&models.Registration{}).
			Where("paired_with_id = ?", id).
			Update("paired_with_id", nil).Error; err != nil {
			return err
		}
		for _, dependent := range []any{&models.Payment{}, &models.HealthProfile{}, &models.RegistrationHistory{}} {
			if err := tx.Unscoped().Where("registration_id = ?", id).Delete(dependent).Error; err != nil {
				return err
			}
		}
		return tx.Unscoped().Delete(&reg).Error
	})
}
