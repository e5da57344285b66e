// Package finance summarizes the confirmed payments of an event.
package finance

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/parish-camps/camp-api/internal/apperr"
	"github.com/parish-camps/camp-api/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type MethodTotal struct {
	Method models.PaymentMethod `json:"method"`
	Count  int                  `json:"count"`
	Gross  decimal.Decimal      `json:"gross"`
	Fees   decimal.Decimal      `json:"fees"`
}

// Summary holds the event totals. Every field is rounded half-up to cents
// where it is computed, and later figures derive from the rounded ones.
type Summary struct {
	Count          int             `json:"count"`
	Gross          decimal.Decimal `json:"gross"`
	ProviderFees   decimal.Decimal `json:"provider_fees"`
	Base           decimal.Decimal `json:"base"`
	ServicePercent decimal.Decimal `json:"service_percent"`
	ServiceFee     decimal.Decimal `json:"service_fee"`
	NetPayable     decimal.Decimal `json:"net_payable"`
	ByMethod       []MethodTotal   `json:"by_method"`
}

// Summarize aggregates confirmed payments. Payments in any other status are
// skipped; a payment without a recorded fee contributes zero fee.
func Summarize(payments []models.Payment, servicePercent decimal.Decimal) Summary {
	s := Summary{
		Gross:          decimal.Zero,
		ProviderFees:   decimal.Zero,
		ServicePercent: servicePercent,
	}
	byMethod := map[models.PaymentMethod]*MethodTotal{}

	for _, p := range payments {
		if p.Status != models.PaymentConfirmed {
			continue
		}
		s.Count++
		s.Gross = s.Gross.Add(p.Amount)
		s.ProviderFees = s.ProviderFees.Add(p.FeeAmount)

		mt, ok := byMethod[p.Method]
		if !ok {
			mt = &MethodTotal{Method: p.Method}
			byMethod[p.Method] = mt
		}
		mt.Count++
		mt.Gross = mt.Gross.Add(p.Amount)
		mt.Fees = mt.Fees.Add(p.FeeAmount)
	}

	s.Gross = s.Gross.Round(2)
	s.ProviderFees = s.ProviderFees.Round(2)
	s.Base = s.Gross.Sub(s.ProviderFees).Round(2)
	s.ServiceFee = s.Base.Mul(servicePercent).Div(hundred).Round(2)
	s.NetPayable = s.Base.Sub(s.ServiceFee).Round(2)

	s.ByMethod = make([]MethodTotal, 0, len(byMethod))
	for _, mt := range byMethod {
		mt.Gross = mt.Gross.Round(2)
		mt.Fees = mt.Fees.Round(2)
		s.ByMethod = append(s.ByMethod, *mt)
	}
	slices.SortFunc(s.ByMethod, func(a, b MethodTotal) int {
		return cmp.Compare(a.Method, b.Method)
	})
	return s
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// EventSummary loads the confirmed payments of an event and summarizes them
// with the service percentage of the owning parish.
func (s *Service) EventSummary(ctx context.Context, eventID uint) (*Summary, error) {
	var event models.Event
	err := s.db.WithContext(ctx).Preload("Parish").First(&event, eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var payments []models.Payment
	err = s.db.WithContext(ctx).
		Joins("JOIN registrations ON registrations.id = payments.registration_id").
		Where("registrations.event_id = ? AND registrations.deleted_at IS NULL AND payments.status = ?", eventID, models.PaymentConfirmed).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}

	summary := Summarize(payments, event.Parish.ServiceFeePercent)
	return &summary, nil
}
