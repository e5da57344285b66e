package payments

import (
	"errors"
	"fmt"
	"time"

	"github.com/parish-camps/camp-api/internal/apperr"
	"github.com/parish-camps/camp-api/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// entry is one observation of a registration's payment, from the gateway or
// from staff.
type entry struct {
	Method     models.PaymentMethod
	Amount     decimal.Decimal
	Status     models.PaymentStatus
	ExternalID *string
	PaidAt     *time.Time
	Fee        decimal.Decimal
}

// ledgerResult tells what applying an entry did to the payment row.
type ledgerResult struct {
	Payment   models.Payment
	Changed   bool
	Confirmed bool
}

// applyEntry upserts the payment of a registration inside tx. The row is
// keyed by registration; a confirmed payment is never modified again, which
// makes replays of the same entry no-ops. Confirmed is true only for the
// caller that moved the row into confirmed.
func applyEntry(tx *gorm.DB, registrationID uint, e entry, now time.Time) (ledgerResult, error) {
	var res ledgerResult

	seed := models.Payment{
		RegistrationID: registrationID,
		Method:         e.Method,
		Amount:         e.Amount,
		Status:         models.PaymentPending,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "registration_id"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return res, fmt.Errorf("create payment: %w", err)
	}

	if err := tx.Where("registration_id = ?", registrationID).First(&res.Payment).Error; err != nil {
		return res, fmt.Errorf("load payment: %w", err)
	}
	if res.Payment.Status == models.PaymentConfirmed || unchanged(res.Payment, e) {
		return res, nil
	}

	if e.ExternalID != nil {
		if err := externalIDFree(tx, *e.ExternalID, res.Payment.ID); err != nil {
			return res, err
		}
	}

	fee := e.Fee.Round(2)
	updates := map[string]any{
		"method":     e.Method,
		"amount":     e.Amount.Round(2),
		"status":     e.Status,
		"fee_amount": fee,
		"net_amount": e.Amount.Sub(fee).Round(2),
		"updated_at": now,
	}
	if e.ExternalID != nil {
		updates["external_id"] = *e.ExternalID
	}
	if e.Status == models.PaymentConfirmed {
		paidAt := now
		if e.PaidAt != nil {
			paidAt = *e.PaidAt
		}
		updates["paid_at"] = paidAt
	}

	upd := tx.Model(&models.Payment{}).
		Where("id = ? AND status <> ?", res.Payment.ID, models.PaymentConfirmed).
		Updates(updates)
	if errors.Is(upd.Error, gorm.ErrDuplicatedKey) {
		return res, externalIDTaken()
	}
	if upd.Error != nil {
		return res, fmt.Errorf("update payment: %w", upd.Error)
	}
	if upd.RowsAffected == 0 {
		return res, nil
	}

	if err := tx.First(&res.Payment, res.Payment.ID).Error; err != nil {
		return res, err
	}
	res.Changed = true
	res.Confirmed = e.Status == models.PaymentConfirmed
	return res, nil
}

// unchanged reports whether a non-confirmed row already holds e, so replayed
// pending or canceled deliveries leave the row untouched.
func unchanged(p models.Payment, e entry) bool {
	if p.Status != e.Status || p.Method != e.Method || !p.Amount.Equal(e.Amount.Round(2)) {
		return false
	}
	if e.ExternalID == nil {
		return true
	}
	return p.ExternalID != nil && *p.ExternalID == *e.ExternalID
}

// externalIDFree fails when another payment already carries externalID.
func externalIDFree(tx *gorm.DB, externalID string, paymentID uint) error {
	var owner models.Payment
	err := tx.Select("id", "registration_id").
		Where("external_id = ? AND id <> ?", externalID, paymentID).
		Take(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check external id: %w", err)
	}
	return externalIDTaken()
}

func externalIDTaken() error {
	return apperr.NewValidationError("external_id", "already recorded for another registration")
}
