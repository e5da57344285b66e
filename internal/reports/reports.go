// Package reports renders the operational CSV sheets of an event.
package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/gosimple/slug"
	"github.com/parish-camps/camp-api/internal/apperr"
	"github.com/parish-camps/camp-api/internal/finance"
	"github.com/parish-camps/camp-api/internal/lifecycle"
	"github.com/parish-camps/camp-api/internal/models"
	"gorm.io/gorm"
)

type Kind string

const (
	KindFinancial Kind = "financial"
	KindRoster    Kind = "roster"
	KindLottery   Kind = "lottery"
)

func (k Kind) Valid() bool {
	return k == KindFinancial || k == KindRoster || k == KindLottery
}

var ErrUnknownKind = errors.New("unknown report kind")

type Report struct {
	Name        string
	ContentType string
	Data        []byte
}

type Builder struct {
	db      *gorm.DB
	finance *finance.Service
	now     func() time.Time
}

func NewBuilder(db *gorm.DB, fin *finance.Service) *Builder {
	return &Builder{db: db, finance: fin, now: time.Now}
}

// Build renders one report of the event. seed orders the lottery sheet; the
// same seed yields the same draw.
func (b *Builder) Build(ctx context.Context, eventID uint, kind Kind, seed uint64) (*Report, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	var event models.Event
	err := b.db.WithContext(ctx).Preload("Parish").First(&event, eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rows [][]string
	switch kind {
	case KindFinancial:
		rows, err = b.financial(ctx, event)
	case KindRoster:
		rows, err = b.roster(ctx, event)
	case KindLottery:
		rows, err = b.lottery(ctx, event, seed)
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return &Report{
		Name:        fmt.Sprintf("%s-%s-%s.csv", slug.Make(event.Name), kind, b.now().Format("20060102-150405")),
		ContentType: "text/csv",
		Data:        buf.Bytes(),
	}, nil
}

func (b *Builder) financial(ctx context.Context, event models.Event) ([][]string, error) {
	s, err := b.finance.EventSummary(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	rows := [][]string{
		{"field", "value"},
		{"event", event.Name},
		{"parish", event.Parish.Name},
		{"confirmed_payments", strconv.Itoa(s.Count)},
		{"gross", s.Gross.StringFixed(2)},
		{"provider_fees", s.ProviderFees.StringFixed(2)},
		{"base", s.Base.StringFixed(2)},
		{"service_percent", s.ServicePercent.StringFixed(2)},
		{"service_fee", s.ServiceFee.StringFixed(2)},
		{"net_payable", s.NetPayable.StringFixed(2)},
		{},
		{"method", "count", "gross", "fees"},
	}
	for _, m := range s.ByMethod {
		rows = append(rows, []string{string(m.Method), strconv.Itoa(m.Count), m.Gross.StringFixed(2), m.Fees.StringFixed(2)})
	}
	return rows, nil
}

// roster lists confirmed participants with what badges and the camp
// infirmary need.
func (b *Builder) roster(ctx context.Context, event models.Event) ([][]string, error) {
	regs, err := b.registrations(ctx, event.ID, lifecycle.StagePaymentConfirmed)
	if err != nil {
		return nil, err
	}
	names := partnerNames(regs)

	var profiles []models.HealthProfile
	if err := b.db.WithContext(ctx).
		Where("registration_id IN (?)", b.db.Model(&models.Registration{}).Select("id").Where("event_id = ?", event.ID)).
		Find(&profiles).Error; err != nil {
		return nil, err
	}
	health := make(map[uint]models.HealthProfile, len(profiles))
	for _, p := range profiles {
		health[p.RegistrationID] = p
	}

	rows := [][]string{{
		"badge_name", "national_id", "age", "phone", "partner",
		"guardian_name", "guardian_phone", "emergency_name", "emergency_phone",
		"allergies", "medications", "conditions", "dietary",
	}}
	for _, r := range regs {
		h := health[r.ID]
		rows = append(rows, []string{
			r.Participant.Name,
			r.Participant.NationalID,
			strconv.Itoa(r.Participant.AgeAt(event.StartsAt)),
			r.Participant.Phone,
			names[r.ID],
			r.GuardianName,
			r.GuardianPhone,
			r.EmergencyName,
			r.EmergencyPhone,
			h.Allergies,
			h.Medications,
			h.Conditions,
			h.Dietary,
		})
	}
	return rows, nil
}

// lottery lists submitted, not yet selected registrations in a seeded random
// order. Paired registrations share one ticket.
func (b *Builder) lottery(ctx context.Context, event models.Event, seed uint64) ([][]string, error) {
	regs, err := b.registrations(ctx, event.ID, lifecycle.StageSubmitted)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	rng.Shuffle(len(regs), func(i, j int) { regs[i], regs[j] = regs[j], regs[i] })

	byID := make(map[uint]models.Registration, len(regs))
	for _, r := range regs {
		byID[r.ID] = r
	}
	seen := make(map[uint]bool, len(regs))

	rows := [][]string{{"ticket", "registration_ids", "names", "phones"}}
	ticket := 0
	for _, r := range regs {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		ticket++
		ids, names, phones := strconv.FormatUint(uint64(r.ID), 10), r.Participant.Name, r.Participant.Phone
		if r.PairedWithID != nil {
			if p, ok := byID[*r.PairedWithID]; ok {
				seen[p.ID] = true
				ids += " " + strconv.FormatUint(uint64(p.ID), 10)
				names += " & " + p.Participant.Name
				phones += " / " + p.Participant.Phone
			}
		}
		rows = append(rows, []string{strconv.Itoa(ticket), ids, names, phones})
	}
	return rows, nil
}

func (b *Builder) registrations(ctx context.Context, eventID uint, stage lifecycle.Stage) ([]models.Registration, error) {
	var regs []models.Registration
	err := b.db.WithContext(ctx).Preload("Participant").
		Where("event_id = ? AND stage = ?", eventID, stage).
		Order("id asc").
		Find(&regs).Error
	return regs, err
}

func partnerNames(regs []models.Registration) map[uint]string {
	byID := make(map[uint]string, len(regs))
	for _, r := range regs {
		byID[r.ID] = r.Participant.Name
	}
	names := make(map[uint]string, len(regs))
	for _, r := range regs {
		if r.PairedWithID != nil {
			names[r.ID] = byID[*r.PairedWithID]
		}
	}
	return names
}
