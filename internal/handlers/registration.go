package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/parish-camps/camp-api/internal/apperr"
	"github.com/parish-camps/camp-api/internal/lifecycle"
	"github.com/parish-camps/camp-api/internal/models"
	"github.com/parish-camps/camp-api/internal/payments"
	"github.com/parish-camps/camp-api/internal/registrations"
	"github.com/parish-camps/camp-api/internal/wizard"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RegistrationHandler serves the participant-facing registration flow.
type RegistrationHandler struct {
	db            *gorm.DB
	registrations *registrations.Service
	checkout      *payments.CheckoutService
	logger        *zap.Logger
	now           func() time.Time
}

func NewRegistrationHandler(db *gorm.DB, regs *registrations.Service, checkout *payments.CheckoutService, logger *zap.Logger) *RegistrationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationHandler{db: db, registrations: regs, checkout: checkout, logger: logger, now: time.Now}
}

type EventResponse struct {
	ID                   uint                 `json:"id"`
	Name                 string               `json:"name"`
	Slug                 string               `json:"slug"`
	Category             models.EventCategory `json:"category"`
	RegistrationOpensAt  time.Time            `json:"registration_opens_at"`
	RegistrationClosesAt time.Time            `json:"registration_closes_at"`
	StartsAt             time.Time            `json:"starts_at"`
	Fee                  decimal.Decimal      `json:"fee"`
	Window               models.WindowState   `json:"window"`
}

type GetEventInput struct {
	Slug string `path:"slug" maxLength:"120"`
}

type GetEventOutput struct {
	Body EventResponse
}

func (h *RegistrationHandler) HandleGetEvent(ctx context.Context, input *GetEventInput) (*GetEventOutput, error) {
	var event models.Event
	err := h.db.WithContext(ctx).Where("slug = ?", input.Slug).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, huma.Error404NotFound("Event not found")
	}
	if err != nil {
		return nil, httpError(h.logger, "get event", err)
	}
	return &GetEventOutput{Body: eventResponse(&event, h.now())}, nil
}

func eventResponse(e *models.Event, now time.Time) EventResponse {
	return EventResponse{
		ID:                   e.ID,
		Name:                 e.Name,
		Slug:                 e.Slug,
		Category:             e.Category,
		RegistrationOpensAt:  e.RegistrationOpensAt,
		RegistrationClosesAt: e.RegistrationClosesAt,
		StartsAt:             e.StartsAt,
		Fee:                  e.Fee,
		Window:               e.WindowState(now),
	}
}

// RegistrationView is what a participant sees of their registration.
type RegistrationView struct {
	Token       string          `json:"token"`
	Event       string          `json:"event"`
	Participant string          `json:"participant"`
	Stage       lifecycle.Stage `json:"stage"`
	Flags       lifecycle.Flags `json:"flags"`
	Steps       []wizard.Step   `json:"steps"`
	NextStep    wizard.Step     `json:"next_step,omitempty"`
	Paired      bool            `json:"paired"`
	CheckoutURL string          `json:"checkout_url,omitempty"`
	SubmittedAt *time.Time      `json:"submitted_at,omitempty"`
	SelectedAt  *time.Time      `json:"selected_at,omitempty"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
}

func (h *RegistrationHandler) view(reg *models.Registration) RegistrationView {
	steps := h.registrations.Steps(reg)
	flags := reg.Stage.Flags()
	v := RegistrationView{
		Token:       reg.PublicToken,
		Event:       reg.Event.Slug,
		Participant: reg.Participant.Name,
		Stage:       reg.Stage,
		Flags:       flags,
		Steps:       steps,
		Paired:      reg.PairedWithID != nil,
		SubmittedAt: reg.SubmittedAt,
		SelectedAt:  reg.SelectedAt,
		ConfirmedAt: reg.ConfirmedAt,
	}
	if reg.Stage == lifecycle.StageDraft {
		v.NextStep = wizard.Next(steps, wizard.Step(reg.WizardStep))
	}
	if flags.Selected && !flags.PaymentConfirmed {
		v.CheckoutURL = h.registrations.CheckoutURL(reg)
	}
	return v
}

type StartRegistrationInput struct {
	Slug string `path:"slug" maxLength:"120"`
	Body wizard.ParticipantForm
}

type RegistrationOutput struct {
	Status int
	Body   RegistrationView
}

// HandleStart saves the participant step. Repeating it for an already
// registered participant returns the existing registration.
func (h *RegistrationHandler) HandleStart(ctx context.Context, input *StartRegistrationInput) (*RegistrationOutput, error) {
	reg, created, err := h.registrations.StartOrGet(ctx, input.Slug, input.Body)
	if err != nil {
		return nil, httpError(h.logger, "start registration", err)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return &RegistrationOutput{Status: status, Body: h.view(reg)}, nil
}

type TokenInput struct {
	Token string `path:"token" maxLength:"64"`
}

func (h *RegistrationHandler) HandleGet(ctx context.Context, input *TokenInput) (*RegistrationOutput, error) {
	reg, err := h.registrations.GetByToken(ctx, input.Token)
	if err != nil {
		return nil, httpError(h.logger, "get registration", err)
	}
	return &RegistrationOutput{Status: http.StatusOK, Body: h.view(reg)}, nil
}

type SpouseInput struct {
	TokenInput
	Body wizard.SpouseForm
}

func (h *RegistrationHandler) HandleSaveSpouse(ctx context.Context, input *SpouseInput) (*RegistrationOutput, error) {
	return h.step(h.registrations.SaveSpouse(ctx, input.Token, input.Body))
}

type HealthInput struct {
	TokenInput
	Body wizard.HealthForm
}

func (h *RegistrationHandler) HandleSaveHealth(ctx context.Context, input *HealthInput) (*RegistrationOutput, error) {
	return h.step(h.registrations.SaveHealth(ctx, input.Token, input.Body))
}

type GuardianInput struct {
	TokenInput
	Body wizard.GuardianForm
}

func (h *RegistrationHandler) HandleSaveGuardian(ctx context.Context, input *GuardianInput) (*RegistrationOutput, error) {
	return h.step(h.registrations.SaveGuardian(ctx, input.Token, input.Body))
}

type EmergencyInput struct {
	TokenInput
	Body wizard.EmergencyForm
}

func (h *RegistrationHandler) HandleSaveEmergency(ctx context.Context, input *EmergencyInput) (*RegistrationOutput, error) {
	return h.step(h.registrations.SaveEmergency(ctx, input.Token, input.Body))
}

func (h *RegistrationHandler) step(reg *models.Registration, err error) (*RegistrationOutput, error) {
	if err != nil {
		return nil, httpError(h.logger, "save step", err)
	}
	return &RegistrationOutput{Status: http.StatusOK, Body: h.view(reg)}, nil
}

func (h *RegistrationHandler) HandleSubmit(ctx context.Context, input *TokenInput) (*RegistrationOutput, error) {
	reg, err := h.registrations.Submit(ctx, input.Token)
	if err != nil {
		return nil, httpError(h.logger, "submit registration", err)
	}
	return &RegistrationOutput{Status: http.StatusOK, Body: h.view(reg)}, nil
}

type RedirectOutput struct {
	Status   int
	Location string `header:"Location"`
}

// Checkout error codes appended to the detail page URL.
const (
	checkoutNotConfigured = "payment_not_configured"
	checkoutUnavailable   = "gateway_unavailable"
	checkoutNotSelected   = "not_selected"
	checkoutAlreadyPaid   = "already_paid"
	checkoutFailed        = "checkout_failed"
)

// HandleCheckout sends the participant to the gateway checkout page. When no
// checkout can be created the participant goes back to the detail page with
// an error code.
func (h *RegistrationHandler) HandleCheckout(ctx context.Context, input *TokenInput) (*RedirectOutput, error) {
	checkoutURL, err := h.checkout.Create(ctx, input.Token)
	if err == nil {
		return &RedirectOutput{Status: http.StatusFound, Location: checkoutURL}, nil
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, huma.Error404NotFound("Registration not found")
	}

	code := checkoutFailed
	switch {
	case errors.Is(err, payments.ErrAlreadyPaid):
		code = checkoutAlreadyPaid
	case errors.Is(err, payments.ErrNotSelected):
		code = checkoutNotSelected
	case apperr.IsConfiguration(err):
		code = checkoutNotConfigured
	case apperr.IsTransient(err):
		code = checkoutUnavailable
	}
	h.logger.Warn("checkout not created", zap.String("code", code), zap.Error(err))

	detail := h.registrations.DetailURL(&models.Registration{PublicToken: input.Token})
	return &RedirectOutput{Status: http.StatusSeeOther, Location: detail + "?error=" + url.QueryEscape(code)}, nil
}

type LookupInput struct {
	NationalID string `query:"national_id" required:"true" minLength:"5" maxLength:"20"`
	EventID    uint   `query:"event_id" required:"true"`
}

type LookupOutput struct {
	Body struct {
		Selected any `json:"selected" doc:"true or false for known registrations, otherwise \"not found\" or \"no registration\""`
	}
}

func (h *RegistrationHandler) HandleLookup(ctx context.Context, input *LookupInput) (*LookupOutput, error) {
	status, err := h.registrations.Lookup(ctx, input.NationalID, input.EventID)
	if err != nil {
		return nil, httpError(h.logger, "lookup", err)
	}
	out := &LookupOutput{}
	out.Body.Selected = status.Value()
	return out, nil
}
