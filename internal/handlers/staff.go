package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gosimple/slug"
	"github.com/parish-camps/camp-api/internal/auth"
	"github.com/parish-camps/camp-api/internal/finance"
	"github.com/parish-camps/camp-api/internal/lifecycle"
	"github.com/parish-camps/camp-api/internal/models"
	"github.com/parish-camps/camp-api/internal/payments"
	"github.com/parish-camps/camp-api/internal/registrations"
	"github.com/parish-camps/camp-api/internal/reports"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StaffHandler serves the parish staff operations. Every operation checks
// that the caller manages the parish owning the data.
type StaffHandler struct {
	db            *gorm.DB
	authHandler   *auth.AuthHandler
	registrations *registrations.Service
	manual        *payments.ManualPayments
	finance       *finance.Service
	reports       *reports.Builder
	archive       reports.Archive
	logger        *zap.Logger
}

func NewStaffHandler(
	db *gorm.DB,
	authHandler *auth.AuthHandler,
	regs *registrations.Service,
	manual *payments.ManualPayments,
	fin *finance.Service,
	builder *reports.Builder,
	archive reports.Archive,
	logger *zap.Logger,
) *StaffHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaffHandler{
		db:            db,
		authHandler:   authHandler,
		registrations: regs,
		manual:        manual,
		finance:       fin,
		reports:       builder,
		archive:       archive,
		logger:        logger,
	}
}

func actor(staff *models.Staff) string {
	return "staff:" + staff.Email
}

// registration authorizes the caller against the parish of a registration.
func (h *StaffHandler) registration(ctx context.Context, in auth.AuthInput, id uint) (*models.Staff, *models.Registration, error) {
	staff, err := h.authHandler.Authorize(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	reg, err := h.registrations.Get(ctx, id)
	if err != nil {
		return nil, nil, httpError(h.logger, "load registration", err)
	}
	if !staff.CanManage(reg.Event.ParishID) {
		return nil, nil, huma.Error403Forbidden("Registration belongs to another parish")
	}
	return staff, reg, nil
}

// event authorizes the caller against the parish of an event.
func (h *StaffHandler) event(ctx context.Context, in auth.AuthInput, id uint) (*models.Staff, *models.Event, error) {
	staff, err := h.authHandler.Authorize(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	var event models.Event
	err = h.db.WithContext(ctx).First(&event, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, huma.Error404NotFound("Event not found")
	}
	if err != nil {
		return nil, nil, httpError(h.logger, "load event", err)
	}
	if !staff.CanManage(event.ParishID) {
		return nil, nil, huma.Error403Forbidden("Event belongs to another parish")
	}
	return staff, &event, nil
}

// parishFor picks the parish a staff write applies to. Only admins may name
// a parish other than their own.
func parishFor(staff *models.Staff, requested uint) (uint, error) {
	if requested == 0 || requested == staff.ParishID {
		if staff.ParishID == 0 {
			return 0, huma.Error400BadRequest("parish_id is required")
		}
		return staff.ParishID, nil
	}
	if !staff.Admin {
		return 0, huma.Error403Forbidden("Only admins may manage other parishes")
	}
	return requested, nil
}

// StaffRegistration is the staff view of a registration.
type StaffRegistration struct {
	ID           uint            `json:"id"`
	Token        string          `json:"token"`
	Participant  string          `json:"participant"`
	NationalID   string          `json:"national_id"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone"`
	Stage        lifecycle.Stage `json:"stage"`
	Flags        lifecycle.Flags `json:"flags"`
	PairedWithID *uint           `json:"paired_with_id"`
	SubmittedAt  *time.Time      `json:"submitted_at"`
	SelectedAt   *time.Time      `json:"selected_at"`
	ConfirmedAt  *time.Time      `json:"confirmed_at"`
}

func staffRegistration(reg *models.Registration) StaffRegistration {
	return StaffRegistration{
		ID:           reg.ID,
		Token:        reg.PublicToken,
		Participant:  reg.Participant.Name,
		NationalID:   reg.Participant.NationalID,
		Email:        reg.Participant.Email,
		Phone:        reg.Participant.Phone,
		Stage:        reg.Stage,
		Flags:        reg.Stage.Flags(),
		PairedWithID: reg.PairedWithID,
		SubmittedAt:  reg.SubmittedAt,
		SelectedAt:   reg.SelectedAt,
		ConfirmedAt:  reg.ConfirmedAt,
	}
}

type RegistrationIDInput struct {
	auth.AuthInput
	ID uint `path:"id"`
}

type StaffRegistrationOutput struct {
	Body StaffRegistration
}

func (h *StaffHandler) HandleSelect(ctx context.Context, input *RegistrationIDInput) (*StaffRegistrationOutput, error) {
	staff, reg, err := h.registration(ctx, input.AuthInput, input.ID)
	if err != nil {
		return nil, err
	}
	reg, err = h.registrations.Select(ctx, reg.ID, actor(staff))
	if err != nil {
		return nil, httpError(h.logger, "select registration", err)
	}
	return &StaffRegistrationOutput{Body: staffRegistration(reg)}, nil
}

type ManualPaymentInput struct {
	auth.AuthInput
	ID   uint `path:"id"`
	Body payments.ManualPayment
}

type PaymentOutput struct {
	Body *models.Payment
}

// HandleRecordPayment records a payment taken outside the gateway.
func (h *StaffHandler) HandleRecordPayment(ctx context.Context, input *ManualPaymentInput) (*PaymentOutput, error) {
	staff, reg, err := h.registration(ctx, input.AuthInput, input.ID)
	if err != nil {
		return nil, err
	}
	payment, err := h.manual.Record(ctx, reg.ID, input.Body, actor(staff))
	if err != nil {
		return nil, httpError(h.logger, "record payment", err)
	}
	return &PaymentOutput{Body: payment}, nil
}

type PairInput struct {
	auth.AuthInput
	ID   uint `path:"id"`
	Body struct {
		PartnerID uint `json:"partner_id" minimum:"1"`
	}
}

func (h *StaffHandler) HandlePair(ctx context.Context, input *PairInput) (*StaffRegistrationOutput, error) {
	_, reg, err := h.registration(ctx, input.AuthInput, input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.registrations.Pair(ctx, reg.ID, input.Body.PartnerID); err != nil {
		return nil, httpError(h.logger, "pair registrations", err)
	}
	reg, err = h.registrations.Get(ctx, reg.ID)
	if err != nil {
		return nil, httpError(h.logger, "load registration", err)
	}
	return &StaffRegistrationOutput{Body: staffRegistration(reg)}, nil
}

func (h *StaffHandler) HandleUnpair(ctx context.Context, input *RegistrationIDInput) (*StaffRegistrationOutput, error) {
	_, reg, err := h.registration(ctx, input.AuthInput, input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.registrations.Unpair(ctx, reg.ID); err != nil {
		return nil, httpError(h.logger, "unpair registration", err)
	}
	reg, err = h.registrations.Get(ctx, reg.ID)
	if err != nil {
		return nil, httpError(h.logger, "load registration", err)
	}
	return &StaffRegistrationOutput{Body: staffRegistration(reg)}, nil
}

func (h *StaffHandler) HandleDelete(ctx context.Context, input *RegistrationIDInput) (*struct{}, error) {
	staff, reg, err := h.registration(ctx, input.AuthInput, input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.registrations.Delete(ctx, reg.ID); err != nil {
		return nil, httpError(h.logger, "delete registration", err)
	}
	h.logger.Info("registration deleted", zap.Uint("registration_id", reg.ID), zap.String("actor", actor(staff)))
	return nil, nil
}

type EventIDInput struct {
	auth.AuthInput
	ID uint `path:"id"`
}

type ListRegistrationsOutput struct {
	Body []StaffRegistration
}

func (h *StaffHandler) HandleListRegistrations(ctx context.Context, input *EventIDInput) (*ListRegistrationsOutput, error) {
	_, event, err := h.event(ctx, input.AuthInput, input.ID)
	if err != nil {
		return nil, err
	}
	regs, err := h.registrations.ListByEvent(ctx, event.ID)
	if err != nil {
		return nil, httpError(h.logger, "list registrations", err)
	}
	out := &ListRegistrationsOutput{Body: make([]StaffRegistration, 0, len(regs))}
	for i := range regs {
		out.Body = append(out.Body, staffRegistration(&regs[i]))
	}
	return out, nil
}

type FinanceOutput struct {
	Body *finance.Summary
}

func (h *StaffHandler) HandleFinance(ctx context.Context, input *EventIDInput) (*FinanceOutput, error) {
	_, event, err := h.event(ctx, input.AuthInput, input.ID)
	if err != nil {
		return nil, err
	}
	summary, err := h.finance.EventSummary(ctx, event.ID)
	if err != nil {
		return nil, httpError(h.logger, "event finance", err)
	}
	return &FinanceOutput{Body: summary}, nil
}

type ReportInput struct {
	auth.AuthInput
	ID   uint   `path:"id"`
	Kind string `path:"kind" enum:"financial,roster,lottery"`
	Seed uint64 `query:"seed" doc:"Lottery seed; a random one is drawn when omitted"`
}

type ReportOutput struct {
	Status             int
	Location           string `header:"Location"`
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Seed               string `header:"X-Lottery-Seed"`
	Body               []byte
}

// HandleReport builds a CSV report. With an archive configured the report is
// stored and the caller is redirected to a presigned link; otherwise the CSV
// is returned inline.
func (h *StaffHandler) HandleReport(ctx context.Context, input *ReportInput) (*ReportOutput, error) {
	staff, event, err := h.event(ctx, input.AuthInput, input.ID)
	if err != nil {
		return nil, err
	}
	kind := reports.Kind(input.Kind)
	seed := input.Seed
	if kind == reports.KindLottery && seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	report, err := h.reports.Build(ctx, event.ID, kind, seed)
	if err != nil {
		return nil, httpError(h.logger, "build report", err)
	}
	h.logger.Info("report built",
		zap.Uint("event_id", event.ID),
		zap.String("kind", input.Kind),
		zap.String("actor", actor(staff)),
	)

	out := &ReportOutput{}
	if kind == reports.KindLottery {
		out.Seed = fmt.Sprint(seed)
	}
	if h.archive != nil {
		link, err := h.archive.Store(ctx, reports.Key(event.ID, report), report)
		if err != nil {
			return nil, httpError(h.logger, "archive report", err)
		}
		out.Status = http.StatusSeeOther
		out.Location = link
		return out, nil
	}
	out.Status = http.StatusOK
	out.ContentType = report.ContentType
	out.ContentDisposition = fmt.Sprintf("attachment; filename=%q", report.Name)
	out.Body = report.Data
	return out, nil
}

type CreateEventInput struct {
	auth.AuthInput
	Body struct {
		ParishID             uint                 `json:"parish_id,omitempty" doc:"Admins only; defaults to the caller's parish"`
		Name                 string               `json:"name" minLength:"3" maxLength:"120"`
		Category             models.EventCategory `json:"category" enum:"senior,youth,child,staff,couples,family"`
		RegistrationOpensAt  time.Time            `json:"registration_opens_at"`
		RegistrationClosesAt time.Time            `json:"registration_closes_at"`
		StartsAt             time.Time            `json:"starts_at"`
		Fee                  decimal.Decimal      `json:"fee"`
	}
}

type EventOutput struct {
	Body EventResponse
}

func (h *StaffHandler) HandleCreateEvent(ctx context.Context, input *CreateEventInput) (*EventOutput, error) {
	staff, err := h.authHandler.Authorize(ctx, input.AuthInput)
	if err != nil {
		return nil, err
	}
	parishID, err := parishFor(staff, input.Body.ParishID)
	if err != nil {
		return nil, err
	}
	body := input.Body
	if !body.RegistrationClosesAt.IsZero() && !body.RegistrationClosesAt.After(body.RegistrationOpensAt) {
		return nil, huma.Error422UnprocessableEntity("Registration must close after it opens")
	}
	if body.StartsAt.IsZero() {
		return nil, huma.Error422UnprocessableEntity("starts_at is required")
	}
	if body.Fee.IsNegative() {
		return nil, huma.Error422UnprocessableEntity("fee must not be negative")
	}

	event := models.Event{
		ParishID:             parishID,
		Name:                 strings.TrimSpace(body.Name),
		Slug:                 slug.Make(fmt.Sprintf("%s %d", body.Name, body.StartsAt.Year())),
		Category:             body.Category,
		RegistrationOpensAt:  body.RegistrationOpensAt,
		RegistrationClosesAt: body.RegistrationClosesAt,
		StartsAt:             body.StartsAt,
		Fee:                  body.Fee.Round(2),
	}
	res := h.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&event)
	if res.Error != nil {
		return nil, httpError(h.logger, "create event", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, huma.Error409Conflict(fmt.Sprintf("An event with slug %s already exists", event.Slug))
	}
	h.logger.Info("event created", zap.Uint("event_id", event.ID), zap.String("slug", event.Slug), zap.String("actor", actor(staff)))
	return &EventOutput{Body: eventResponse(&event, time.Now())}, nil
}

type GatewayInput struct {
	auth.AuthInput
	Body struct {
		ParishID   uint            `json:"parish_id,omitempty" doc:"Admins only; defaults to the caller's parish"`
		Provider   string          `json:"provider" enum:"midtrans"`
		ServerKey  string          `json:"server_key" minLength:"1"`
		ClientKey  string          `json:"client_key,omitempty"`
		Production bool            `json:"production,omitempty"`
		Active     bool            `json:"active"`
		FeePercent decimal.Decimal `json:"fee_percent,omitempty" doc:"Fallback provider fee when the gateway reports none"`
	}
}

type GatewayOutput struct {
	Body models.GatewayConfig
}

// HandleSaveGateway creates or replaces the gateway account of a parish.
func (h *StaffHandler) HandleSaveGateway(ctx context.Context, input *GatewayInput) (*GatewayOutput, error) {
	staff, err := h.authHandler.Authorize(ctx, input.AuthInput)
	if err != nil {
		return nil, err
	}
	parishID, err := parishFor(staff, input.Body.ParishID)
	if err != nil {
		return nil, err
	}
	if input.Body.FeePercent.IsNegative() {
		return nil, huma.Error422UnprocessableEntity("fee_percent must not be negative")
	}

	cfg := models.GatewayConfig{
		ParishID:   parishID,
		Provider:   input.Body.Provider,
		ServerKey:  input.Body.ServerKey,
		ClientKey:  input.Body.ClientKey,
		Production: input.Body.Production,
		Active:     input.Body.Active,
		FeePercent: input.Body.FeePercent,
	}
	err = h.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "parish_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"provider", "server_key", "client_key", "production", "active", "fee_percent", "updated_at"}),
	}).Create(&cfg).Error
	if err != nil {
		return nil, httpError(h.logger, "save gateway", err)
	}
	if err := h.db.WithContext(ctx).Where("parish_id = ?", parishID).First(&cfg).Error; err != nil {
		return nil, httpError(h.logger, "load gateway", err)
	}
	h.logger.Info("gateway configured",
		zap.Uint("parish_id", parishID),
		zap.Bool("active", cfg.Active),
		zap.String("actor", actor(staff)),
	)
	return &GatewayOutput{Body: cfg}, nil
}

type CreateStaffInput struct {
	auth.AuthInput
	Body struct {
		Email    string `json:"email" format:"email"`
		Name     string `json:"name,omitempty"`
		ParishID uint   `json:"parish_id"`
		Admin    bool   `json:"admin,omitempty"`
	}
}

type StaffOutput struct {
	Body models.Staff
}

// HandleCreateStaff provisions a staff account; only provisioned emails may
// log in.
func (h *StaffHandler) HandleCreateStaff(ctx context.Context, input *CreateStaffInput) (*StaffOutput, error) {
	caller, err := h.authHandler.Authorize(ctx, input.AuthInput)
	if err != nil {
		return nil, err
	}
	if !caller.Admin {
		return nil, huma.Error403Forbidden("Only admins may provision staff")
	}
	var parish models.Parish
	if err := h.db.WithContext(ctx).First(&parish, input.Body.ParishID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, huma.Error422UnprocessableEntity("Unknown parish")
		}
		return nil, httpError(h.logger, "load parish", err)
	}

	staff := models.Staff{
		Email:    strings.ToLower(strings.TrimSpace(input.Body.Email)),
		Name:     input.Body.Name,
		ParishID: parish.ID,
		Admin:    input.Body.Admin,
	}
	res := h.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&staff)
	if res.Error != nil {
		return nil, httpError(h.logger, "create staff", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, huma.Error409Conflict("Staff member already exists")
	}
	return &StaffOutput{Body: staff}, nil
}

type CreateParishInput struct {
	auth.AuthInput
	Body struct {
		Name              string          `json:"name" minLength:"3" maxLength:"120"`
		ServiceFeePercent decimal.Decimal `json:"service_fee_percent"`
	}
}

type ParishOutput struct {
	Body models.Parish
}

func (h *StaffHandler) HandleCreateParish(ctx context.Context, input *CreateParishInput) (*ParishOutput, error) {
	caller, err := h.authHandler.Authorize(ctx, input.AuthInput)
	if err != nil {
		return nil, err
	}
	if !caller.Admin {
		return nil, huma.Error403Forbidden("Only admins may create parishes")
	}
	pct := input.Body.ServiceFeePercent
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return nil, huma.Error422UnprocessableEntity("service_fee_percent must be between 0 and 100")
	}

	parish := models.Parish{
		Name:              strings.TrimSpace(input.Body.Name),
		Slug:              slug.Make(input.Body.Name),
		ServiceFeePercent: pct,
	}
	res := h.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&parish)
	if res.Error != nil {
		return nil, httpError(h.logger, "create parish", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, huma.Error409Conflict(fmt.Sprintf("A parish with slug %s already exists", parish.Slug))
	}
	return &ParishOutput{Body: parish}, nil
}
