package payments

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/parish-camps/camp-api/internal/apperr"
	"github.com/parish-camps/camp-api/internal/lifecycle"
	"github.com/parish-camps/camp-api/internal/metrics"
	"github.com/parish-camps/camp-api/internal/models"
	"github.com/parish-camps/camp-api/internal/registrations"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Reconciler applies webhook deliveries to the payment ledger.
type Reconciler struct {
	db            *gorm.DB
	configs       ConfigResolver
	factory       GatewayFactory
	registrations *registrations.Service
	metrics       *metrics.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

func NewReconciler(db *gorm.DB, configs ConfigResolver, factory GatewayFactory, regs *registrations.Service, m *metrics.Metrics, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		db:            db,
		configs:       configs,
		factory:       factory,
		registrations: regs,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

type Result struct {
	Outcome        models.GatewayEventOutcome `json:"outcome"`
	RegistrationID uint                       `json:"registration_id,omitempty"`
	PaymentStatus  models.PaymentStatus       `json:"payment_status,omitempty"`
	Changed        bool                       `json:"changed"`
}

// Reconcile fetches the payment from the parish gateway and applies it.
// The callback body is never trusted beyond the payment id. Errors are
// classified through apperr so the caller can pick a definite response.
func (r *Reconciler) Reconcile(ctx context.Context, parishID uint, paymentID string) (Result, error) {
	result, details, err := r.reconcile(ctx, parishID, paymentID)
	if err != nil {
		result.Outcome = outcomeFor(err)
	}
	r.metrics.WebhookDelivered(string(result.Outcome))
	r.record(ctx, parishID, paymentID, result, details, err)

	fields := []zap.Field{
		zap.Uint("parish_id", parishID),
		zap.String("payment_id", paymentID),
		zap.String("outcome", string(result.Outcome)),
	}
	switch {
	case err == nil:
		r.logger.Info("payment webhook reconciled", append(fields,
			zap.Uint("registration_id", result.RegistrationID),
			zap.String("payment_status", string(result.PaymentStatus)),
			zap.Bool("changed", result.Changed),
		)...)
	case apperr.IsUnresolvable(err):
		r.logger.Warn("payment webhook dropped", append(fields, zap.Error(err))...)
	default:
		r.logger.Error("payment webhook failed", append(fields, zap.Error(err))...)
	}
	return result, err
}

func (r *Reconciler) reconcile(ctx context.Context, parishID uint, paymentID string) (Result, *PaymentDetails, error) {
	var result Result

	cfg, err := r.configs.Resolve(ctx, parishID)
	if err != nil {
		return result, nil, err
	}
	gateway, err := r.factory(cfg)
	if err != nil {
		return result, nil, err
	}

	details, err := gateway.FetchPayment(ctx, paymentID)
	if err != nil {
		return result, nil, err
	}
	if details.Reference == "" {
		return result, details, &apperr.UnresolvableReference{}
	}
	regID, err := ParseReference(details.Reference)
	if err != nil {
		return result, details, err
	}

	var reg models.Registration
	err = r.db.WithContext(ctx).Preload("Event").First(&reg, regID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return result, details, &apperr.UnresolvableReference{Reference: details.Reference}
	}
	if err != nil {
		return result, details, err
	}
	if reg.Event.ParishID != parishID {
		return result, details, &apperr.UnresolvableReference{Reference: details.Reference}
	}
	result.RegistrationID = reg.ID

	externalID := details.ID
	if externalID == "" {
		externalID = paymentID
	}
	e := entry{
		Method:     models.MethodGateway,
		Amount:     details.Amount,
		Status:     details.Status.Internal(),
		ExternalID: &externalID,
		PaidAt:     details.PaidAt,
		Fee:        ProviderFee(details, cfg),
	}

	var edge registrations.Edge
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := applyEntry(tx, reg.ID, e, r.now())
		if err != nil {
			return err
		}
		result.PaymentStatus = applied.Payment.Status
		result.Changed = applied.Changed
		if !applied.Confirmed {
			return nil
		}
		edge, err = r.registrations.TransitionTx(tx, reg.ID, lifecycle.TriggerConfirmPayment, "gateway")
		return err
	})
	if err != nil {
		return result, details, err
	}

	r.registrations.Announce(ctx, edge)
	result.Outcome = models.OutcomeProcessed
	return result, details, nil
}

func outcomeFor(err error) models.GatewayEventOutcome {
	switch {
	case apperr.IsUnresolvable(err):
		return models.OutcomeIgnored
	case apperr.IsConfiguration(err):
		return models.OutcomeMisconfigure
	}
	return models.OutcomeFailed
}

// record logs the delivery. Failures to log never affect the response.
func (r *Reconciler) record(ctx context.Context, parishID uint, paymentID string, result Result, details *PaymentDetails, cause error) {
	var payload any = map[string]string{"id": paymentID}
	if details != nil {
		payload = details
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	ev := models.GatewayEvent{
		ParishID:   parishID,
		Provider:   models.GatewayProviderMidtrans,
		ExternalID: paymentID,
		Outcome:    result.Outcome,
		Payload:    datatypes.JSON(raw),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	if err := r.db.WithContext(ctx).Create(&ev).Error; err != nil {
		r.logger.Warn("failed to record gateway event", zap.Error(err), zap.String("payment_id", paymentID))
	}
}
