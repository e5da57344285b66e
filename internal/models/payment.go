package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentMethod string

const (
	MethodPix     PaymentMethod = "pix"
	MethodCredit  PaymentMethod = "credit"
	MethodDebit   PaymentMethod = "debit"
	MethodCash    PaymentMethod = "cash"
	MethodGateway PaymentMethod = "gateway"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodPix, MethodCredit, MethodDebit, MethodCash, MethodGateway:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentCanceled  PaymentStatus = "canceled"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentPending || s == PaymentConfirmed || s == PaymentCanceled
}

// Payment is the single payment record of a registration. ExternalID is the
// gateway transaction id; NULL for manual entries without a reference.
type Payment struct {
	gorm.Model
	RegistrationID uint            `json:"registration_id" gorm:"uniqueIndex"`
	Method         PaymentMethod   `json:"method"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:decimal(12,2)"`
	Status         PaymentStatus   `json:"status" gorm:"index"`
	ExternalID     *string         `json:"external_id" gorm:"uniqueIndex"`
	PaidAt         *time.Time      `json:"paid_at"`
	FeeAmount      decimal.Decimal `json:"fee_amount" gorm:"type:decimal(12,2)"`
	NetAmount      decimal.Decimal `json:"net_amount" gorm:"type:decimal(12,2)"`
}

type GatewayEventOutcome string

const (
	OutcomeProcessed    GatewayEventOutcome = "processed"
	OutcomeIgnored      GatewayEventOutcome = "ignored"
	OutcomeFailed       GatewayEventOutcome = "failed"
	OutcomeMisconfigure GatewayEventOutcome = "misconfigured"
)

// GatewayEvent logs one webhook delivery.
type GatewayEvent struct {
	gorm.Model
	ParishID   uint                `json:"parish_id" gorm:"index"`
	Provider   string              `json:"provider"`
	ExternalID string              `json:"external_id" gorm:"index"`
	Outcome    GatewayEventOutcome `json:"outcome"`
	Error      string              `json:"error"`
	Payload    datatypes.JSON      `json:"payload"`
}
