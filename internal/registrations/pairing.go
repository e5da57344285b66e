package registrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/parish-camps/camp-api/internal/apperr"
	"github.com/parish-camps/camp-api/internal/models"
	"gorm.io/gorm"
)

// Pair links two registrations of the same event in both directions.
func (s *Service) Pair(ctx context.Context, a, b uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return pairTx(tx, a, b)
	})
}

// Unpair clears the link on both sides.
func (s *Service) Unpair(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reg models.Registration
		if err := tx.First(&reg, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.ErrNotFound
			}
			return err
		}
		return tx.Model(&models.Registration{}).
			Where("id = ? OR paired_with_id = ?", id, id).
			Update("paired_with_id", nil).Error
	})
}

// Partner returns the registration paired with id, or nil.
func (s *Service) Partner(ctx context.Context, id uint) (*models.Registration, error) {
	reg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.PairedWithID == nil {
		return nil, nil
	}
	return s.Get(ctx, *reg.PairedWithID)
}

func pairTx(tx *gorm.DB, a, b uint) error {
	if a == b {
		return fmt.Errorf("%w: a registration cannot pair with itself", apperr.ErrPairing)
	}

	var regs []models.Registration
	if err := tx.Where("id IN ?", []uint{a, b}).Find(&regs).Error; err != nil {
		return err
	}
	if len(regs) != 2 {
		return apperr.ErrNotFound
	}
	first, second := regs[0], regs[1]
	if first.EventID != second.EventID {
		return fmt.Errorf("%w: registrations belong to different events", apperr.ErrPairing)
	}
	if pairedWith(first, second.ID) && pairedWith(second, first.ID) {
		return nil
	}
	for _, r := range regs {
		if r.PairedWithID != nil {
			return fmt.Errorf("%w: registration %d is already paired", apperr.ErrPairing, r.ID)
		}
	}

	if err := linkTx(tx, first.ID, second.ID); err != nil {
		return err
	}
	return linkTx(tx, second.ID, first.ID)
}

// linkTx points id at partner only while id is still unpaired, so two
// concurrent pairings of the same registration cannot both commit.
func linkTx(tx *gorm.DB, id, partner uint) error {
	res := tx.Model(&models.Registration{}).
		Where("id = ? AND (paired_with_id IS NULL OR paired_with_id = ?)", id, partner).
		Update("paired_with_id", partner)
	if res.Error != nil {
		return fmt.Errorf("link registration %d: %w", id, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: registration %d is already paired", apperr.ErrPairing, id)
	}
	return nil
}

func pairedWith(r models.Registration, id uint) bool {
	return r.PairedWithID != nil && *r.PairedWithID == id
}
