package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Parish struct {
	gorm.Model
	Name              string          `json:"name"`
	Slug              string          `json:"slug" gorm:"uniqueIndex"`
	ServiceFeePercent decimal.Decimal `json:"service_fee_percent" gorm:"type:decimal(5,2)"`
	GatewayConfig     *GatewayConfig  `json:"-"`
}

const GatewayProviderMidtrans = "midtrans"

// GatewayConfig is the payment gateway account owned by a parish.
type GatewayConfig struct {
	gorm.Model
	ParishID   uint            `json:"parish_id" gorm:"uniqueIndex"`
	Provider   string          `json:"provider"`
	ServerKey  string          `json:"-"`
	ClientKey  string          `json:"client_key"`
	Production bool            `json:"production"`
	Active     bool            `json:"active"`
	FeePercent decimal.Decimal `json:"fee_percent" gorm:"type:decimal(5,2)"`
}

// Usable reports whether payments can be routed through this configuration.
func (c *GatewayConfig) Usable() bool {
	return c != nil && c.Active && c.ServerKey != ""
}
