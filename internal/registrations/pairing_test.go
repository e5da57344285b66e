package registrations

import (
	"context"
	"errors"
	"testing"

	"github.com/parish-camps/camp-api/internal/apperr"
	"github.com/parish-camps/camp-api/internal/models"
	"github.com/parish-camps/camp-api/internal/wizard"
	"gorm.io/gorm"
)

func TestPairing(t *testing.T) {
	svc, db, _ := newTestService(t)
	seedEvent(t, db, "couples-2026", models.CategoryCouples)
	other := seedEvent(t, db, "youth-2026", models.CategoryYouth)
	ctx := context.Background()

	a, _, _ := svc.StartOrGet(ctx, "couples-2026", adultForm("11111111"))
	b, _, _ := svc.StartOrGet(ctx, "couples-2026", adultForm("22222222"))
	c, _, _ := svc.StartOrGet(ctx, "couples-2026", adultForm("33333333"))
	d, _, _ := svc.StartOrGet(ctx, "youth-2026", adultForm("44444444"))

	t.Run("self pairing is rejected", func(t *testing.T) {
		if err := svc.Pair(ctx, a.ID, a.ID); !errors.Is(err, apperr.ErrPairing) {
			t.Errorf("expected ErrPairing, got %v", err)
		}
	})

	t.Run("different events are rejected", func(t *testing.T) {
		if d.EventID != other.ID {
			t.Fatalf("expected registration on event %d, got %d", other.ID, d.EventID)
		}
		if err := svc.Pair(ctx, a.ID, d.ID); !errors.Is(err, apperr.ErrPairing) {
			t.Errorf("expected ErrPairing, got %v", err)
		}
	})

	t.Run("pairing is symmetric", func(t *testing.T) {
		if err := svc.Pair(ctx, a.ID, b.ID); err != nil {
			t.Fatalf("Pair returned error: %v", err)
		}
		partner, err := svc.Partner(ctx, b.ID)
		if err != nil {
			t.Fatalf("Partner returned error: %v", err)
		}
		if partner == nil || partner.ID != a.ID {
			t.Fatalf("expected partner %d, got %+v", a.ID, partner)
		}
		partner, _ = svc.Partner(ctx, a.ID)
		if partner == nil || partner.ID != b.ID {
			t.Fatalf("expected partner %d, got %+v", b.ID, partner)
		}
	})

	t.Run("repeating the same pair is a no-op", func(t *testing.T) {
		if err := svc.Pair(ctx, b.ID, a.ID); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("a paired registration cannot pair again", func(t *testing.T) {
		if err := svc.Pair(ctx, a.ID, c.ID); !errors.Is(err, apperr.ErrPairing) {
			t.Errorf("expected ErrPairing, got %v", err)
		}
	})

	t.Run("unpair clears both sides", func(t *testing.T) {
		if err := svc.Unpair(ctx, b.ID); err != nil {
			t.Fatalf("Unpair returned error: %v", err)
		}
		for _, id := range []uint{a.ID, b.ID} {
			reg, _ := svc.Get(ctx, id)
			if reg.PairedWithID != nil {
				t.Errorf("expected registration %d to be unpaired, got %d", id, *reg.PairedWithID)
			}
		}
	})
}

func TestPairing_StaleReadCannotRelink(t *testing.T) {
	svc, db, _ := newTestService(t)
	seedEvent(t, db, "couples-2026", models.CategoryCouples)
	ctx := context.Background()

	a, _, _ := svc.StartOrGet(ctx, "couples-2026", adultForm("11111111"))
	b, _, _ := svc.StartOrGet(ctx, "couples-2026", adultForm("22222222"))
	c, _, _ := svc.StartOrGet(ctx, "couples-2026", adultForm("33333333"))

	if err := svc.Pair(ctx, a.ID, c.ID); err != nil {
		t.Fatalf("Pair returned error: %v", err)
	}

	// A concurrent Pair(a, b) that read a as unpaired reaches the writes.
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := linkTx(tx, b.ID, a.ID); err != nil {
			return err
		}
		return linkTx(tx, a.ID, b.ID)
	})
	if !errors.Is(err, apperr.ErrPairing) {
		t.Fatalf("expected ErrPairing, got %v", err)
	}

	for id, want := range map[uint]uint{a.ID: c.ID, c.ID: a.ID} {
		reg, _ := svc.Get(ctx, id)
		if reg.PairedWithID == nil || *reg.PairedWithID != want {
			t.Errorf("expected registration %d paired with %d, got %v", id, want, reg.PairedWithID)
		}
	}
	reg, _ := svc.Get(ctx, b.ID)
	if reg.PairedWithID != nil {
		t.Errorf("expected registration %d to stay unpaired, got %d", b.ID, *reg.PairedWithID)
	}
}

func TestSaveSpouse_PairsWhenSpouseRegistered(t *testing.T) {
	svc, db, _ := newTestService(t)
	seedEvent(t, db, "couples-2026", models.CategoryCouples)
	ctx := context.Background()

	husband, _, _ := svc.StartOrGet(ctx, "couples-2026", adultForm("11111111"))

	saved, err := svc.SaveSpouse(ctx, husband.PublicToken, wizard.SpouseForm{SpouseNationalID: "22222222"})
	if err != nil {
		t.Fatalf("SaveSpouse returned error: %v", err)
	}
	if saved.PairedWithID != nil {
		t.Fatal("expected no pairing before the spouse registers")
	}

	wife, _, _ := svc.StartOrGet(ctx, "couples-2026", adultForm("22222222"))
	if _, err := svc.SaveSpouse(ctx, wife.PublicToken, wizard.SpouseForm{SpouseNationalID: "11111111"}); err != nil {
		t.Fatalf("SaveSpouse returned error: %v", err)
	}

	partner, err := svc.Partner(ctx, husband.ID)
	if err != nil {
		t.Fatalf("Partner returned error: %v", err)
	}
	if partner == nil || partner.ID != wife.ID {
		t.Fatalf("expected husband to be paired with %d, got %+v", wife.ID, partner)
	}

	if _, err := svc.SaveSpouse(ctx, wife.PublicToken, wizard.SpouseForm{SpouseNationalID: "22222222"}); err == nil {
		t.Error("expected own national id to be rejected as spouse")
	}
}

func TestLookup(t *testing.T) {
	svc, db, _ := newTestService(t)
	event := seedEvent(t, db, "youth-2026", models.CategoryYouth)
	other := seedEvent(t, db, "senior-2026", models.CategorySenior)
	ctx := context.Background()

	reg, _, _ := svc.StartOrGet(ctx, "youth-2026", adultForm("12345678"))

	tests := []struct {
		name       string
		nationalID string
		eventID    uint
		prepare    func()
		want       SelectionStatus
	}{
		{name: "unknown participant", nationalID: "99999999", eventID: event.ID, want: StatusNotFound},
		{name: "no registration for event", nationalID: "12345678", eventID: other.ID, want: StatusNoRegistration},
		{name: "registered but not selected", nationalID: "12345678", eventID: event.ID, want: StatusNotSelected},
		{
			name:       "selected",
			nationalID: "12345678",
			eventID:    event.ID,
			prepare: func() {
				db.Model(&models.Registration{}).Where("id = ?", reg.ID).Update("stage", "payment_pending")
			},
			want: StatusSelected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.prepare != nil {
				tt.prepare()
			}
			got, err := svc.Lookup(ctx, tt.nationalID, tt.eventID)
			if err != nil {
				t.Fatalf("Lookup returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	if StatusSelected.Value() != true || StatusNotFound.Value() != "not found" {
		t.Error("unexpected rendered lookup values")
	}
}
