package payments

import (
	"context"
	"time"

	"github.com/parish-camps/camp-api/internal/apperr"
	"github.com/parish-camps/camp-api/internal/lifecycle"
	"github.com/parish-camps/camp-api/internal/models"
	"github.com/parish-camps/camp-api/internal/registrations"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ManualPayment is a payment entered by staff, e.g. cash at the parish office.
type ManualPayment struct {
	Method     models.PaymentMethod `json:"method"`
	Status     models.PaymentStatus `json:"status"`
	Amount     *decimal.Decimal     `json:"amount,omitempty"`
	Fee        *decimal.Decimal     `json:"fee,omitempty"`
	ExternalID string               `json:"external_id,omitempty"`
	PaidAt     *time.Time           `json:"paid_at,omitempty"`
}

func (p ManualPayment) validate() error {
	fields := map[string]string{}
	if !p.Method.Valid() {
		fields["method"] = "must be one of pix, credit, debit, cash, gateway"
	}
	if !p.Status.Valid() {
		fields["status"] = "must be one of pending, confirmed, canceled"
	}
	if p.Amount != nil && p.Amount.IsNegative() {
		fields["amount"] = "must not be negative"
	}
	if p.Fee != nil && p.Fee.IsNegative() {
		fields["fee"] = "must not be negative"
	}
	if len(fields) > 0 {
		return &apperr.ValidationError{Fields: fields}
	}
	return nil
}

type ManualPayments struct {
	db            *gorm.DB
	registrations *registrations.Service
	logger        *zap.Logger
	now           func() time.Time
}

func NewManualPayments(db *gorm.DB, regs *registrations.Service, logger *zap.Logger) *ManualPayments {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManualPayments{db: db, registrations: regs, logger: logger, now: time.Now}
}

// Record applies a staff payment entry through the same ledger path as the
// webhook, so racing a gateway confirmation yields a single confirmation.
func (m *ManualPayments) Record(ctx context.Context, registrationID uint, in ManualPayment, actor string) (*models.Payment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	reg, err := m.registrations.Get(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if in.Status == models.PaymentConfirmed && !reg.Stage.Flags().Selected {
		return nil, ErrNotSelected
	}

	e := entry{
		Method: in.Method,
		Amount: reg.Event.Fee,
		Status: in.Status,
		PaidAt: in.PaidAt,
	}
	if in.Amount != nil {
		e.Amount = *in.Amount
	}
	if in.Fee != nil {
		e.Fee = *in.Fee
	}
	if in.ExternalID != "" {
		e.ExternalID = &in.ExternalID
	}

	var (
		payment models.Payment
		edge    registrations.Edge
	)
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := applyEntry(tx, reg.ID, e, m.now())
		if err != nil {
			return err
		}
		payment = applied.Payment
		if !applied.Confirmed {
			return nil
		}
		edge, err = m.registrations.TransitionTx(tx, reg.ID, lifecycle.TriggerConfirmPayment, actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.registrations.Announce(ctx, edge)
	m.logger.Info("manual payment recorded",
		zap.Uint("registration_id", reg.ID),
		zap.String("status", string(payment.Status)),
		zap.String("actor", actor),
	)
	return &payment, nil
}
