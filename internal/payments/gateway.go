// Package payments connects registrations to the payment gateway: checkout
// links, webhook reconciliation and manual payment entry.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parish-camps/camp-api/internal/apperr"
	"github.com/parish-camps/camp-api/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Status is the gateway-neutral state of a payment.
type Status string

const (
	StatusApproved Status = "approved"
	StatusPending  Status = "pending"
	StatusRejected Status = "rejected"
)

// Internal maps a gateway status onto the payment ledger status.
func (s Status) Internal() models.PaymentStatus {
	switch s {
	case StatusApproved:
		return models.PaymentConfirmed
	case StatusPending:
		return models.PaymentPending
	}
	return models.PaymentCanceled
}

// ReturnURLs are where the payer lands after the hosted checkout. Gateways
// with a single finish redirect use Approved for every outcome and report
// the actual status on that URL.
type ReturnURLs struct {
	Approved string
	Rejected string
	Pending  string
}

type CheckoutRequest struct {
	Reference   string
	Description string
	Amount      decimal.Decimal
	PayerName   string
	PayerEmail  string
	PayerPhone  string
	ReturnURLs  ReturnURLs
}

type Checkout struct {
	URL   string
	Token string
}

// PaymentDetails is the authoritative view of a payment fetched from the
// gateway. Fee is nil when the gateway does not report it.
type PaymentDetails struct {
	ID        string           `json:"id"`
	Reference string           `json:"reference"`
	Status    Status           `json:"status"`
	RawStatus string           `json:"raw_status"`
	Amount    decimal.Decimal  `json:"amount"`
	Fee       *decimal.Decimal `json:"fee,omitempty"`
	PaidAt    *time.Time       `json:"paid_at,omitempty"`
	Method    string           `json:"method"`
}

type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	FetchPayment(ctx context.Context, id string) (*PaymentDetails, error)
}

// GatewayFactory builds a client for one parish configuration.
type GatewayFactory func(cfg *models.GatewayConfig) (Gateway, error)

// ConfigResolver finds the gateway configuration of a parish.
type ConfigResolver interface {
	Resolve(ctx context.Context, parishID uint) (*models.GatewayConfig, error)
}

type DBConfigResolver struct {
	db *gorm.DB
}

func NewDBConfigResolver(db *gorm.DB) *DBConfigResolver {
	return &DBConfigResolver{db: db}
}

// Resolve returns the usable configuration of the parish or a
// ConfigurationError.
func (r *DBConfigResolver) Resolve(ctx context.Context, parishID uint) (*models.GatewayConfig, error) {
	var cfg models.GatewayConfig
	err := r.db.WithContext(ctx).Where("parish_id = ?", parishID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperr.ConfigurationError{ParishID: parishID, Reason: "no gateway configured"}
	}
	if err != nil {
		return nil, err
	}
	if !cfg.Active {
		return nil, &apperr.ConfigurationError{ParishID: parishID, Reason: "gateway is inactive"}
	}
	if !cfg.Usable() {
		return nil, &apperr.ConfigurationError{ParishID: parishID, Reason: "gateway credentials are incomplete"}
	}
	return &cfg, nil
}

// DefaultFactory builds gateways for the providers this service supports.
func DefaultFactory(cfg *models.GatewayConfig) (Gateway, error) {
	switch cfg.Provider {
	case models.GatewayProviderMidtrans, "":
		return NewMidtransGateway(cfg), nil
	}
	return nil, &apperr.ConfigurationError{ParishID: cfg.ParishID, Reason: "unsupported provider " + cfg.Provider}
}

const referencePrefix = "REG-"

// NewReference builds the correlation id sent to the gateway. The random
// suffix keeps order ids unique across checkout attempts.
func NewReference(registrationID uint) string {
	return fmt.Sprintf("%s%d-%s", referencePrefix, registrationID, uuid.NewString()[:8])
}

// ParseReference extracts the registration id from a correlation id.
func ParseReference(ref string) (uint, error) {
	rest, ok := strings.CutPrefix(ref, referencePrefix)
	if !ok {
		return 0, &apperr.UnresolvableReference{Reference: ref}
	}
	idPart, _, _ := strings.Cut(rest, "-")
	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil || id == 0 {
		return 0, &apperr.UnresolvableReference{Reference: ref}
	}
	return uint(id), nil
}

// ProviderFee is the fee retained by the gateway: the reported one when
// known, otherwise the configured rate applied to amount.
func ProviderFee(details *PaymentDetails, cfg *models.GatewayConfig) decimal.Decimal {
	if details.Fee != nil {
		return details.Fee.Round(2)
	}
	if cfg == nil || cfg.FeePercent.IsZero() {
		return decimal.Zero
	}
	return details.Amount.Mul(cfg.FeePercent).Div(decimal.NewFromInt(100)).Round(2)
}
