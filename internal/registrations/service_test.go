package registrations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/parish-camps/camp-api/internal/apperr"
	"github.com/parish-camps/camp-api/internal/lifecycle"
	"github.com/parish-camps/camp-api/internal/models"
	"github.com/parish-camps/camp-api/internal/notifier"
	"github.com/parish-camps/camp-api/internal/wizard"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
	last  notifier.Message
	err   error
}

func (f *fakeNotifier) record(kind string, msg notifier.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind)
	f.last = msg
	return f.err
}

func (f *fakeNotifier) RegistrationReceived(ctx context.Context, msg notifier.Message) error {
	return f.record("received", msg)
}

func (f *fakeNotifier) RegistrationSelected(ctx context.Context, msg notifier.Message) error {
	return f.record("selected", msg)
}

func (f *fakeNotifier) PaymentConfirmed(ctx context.Context, msg notifier.Message) error {
	return f.record("confirmed", msg)
}

func (f *fakeNotifier) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == kind {
			n++
		}
	}
	return n
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

var testNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func seedEvent(t *testing.T, db *gorm.DB, slug string, category models.EventCategory) models.Event {
	t.Helper()
	parish := models.Parish{Name: "São José " + slug, Slug: "sao-jose-" + slug}
	if err := db.Create(&parish).Error; err != nil {
		t.Fatalf("failed to create parish: %v", err)
	}
	event := models.Event{
		ParishID:             parish.ID,
		Name:                 "Camp " + slug,
		Slug:                 slug,
		Category:             category,
		RegistrationOpensAt:  testNow.Add(-24 * time.Hour),
		RegistrationClosesAt: testNow.Add(24 * time.Hour),
		StartsAt:             testNow.Add(30 * 24 * time.Hour),
		Fee:                  decimal.RequireFromString("150.00"),
	}
	if err := db.Create(&event).Error; err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	return event
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *fakeNotifier) {
	t.Helper()
	db := newTestDB(t)
	n := &fakeNotifier{}
	svc := NewService(db, n, nil, nil, "https://camp.example")
	svc.now = func() time.Time { return testNow }
	return svc, db, n
}

func adultForm(nationalID string) wizard.ParticipantForm {
	return wizard.ParticipantForm{
		Name:       "Participant " + nationalID,
		NationalID: nationalID,
		Email:      nationalID + "@example.com",
		Phone:      "11999990000",
		BirthDate:  time.Date(1990, 5, 20, 0, 0, 0, 0, time.UTC),
	}
}

// completeWizard walks every applicable step of a non-couples adult registration.
func completeWizard(t *testing.T, svc *Service, token string) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.SaveHealth(ctx, token, wizard.HealthForm{Allergies: "none"}); err != nil {
		t.Fatalf("SaveHealth returned error: %v", err)
	}
	if _, err := svc.SaveEmergency(ctx, token, wizard.EmergencyForm{Name: "Ana", Phone: "11988887777"}); err != nil {
		t.Fatalf("SaveEmergency returned error: %v", err)
	}
}

func TestStartOrGet(t *testing.T) {
	svc, db, _ := newTestService(t)
	seedEvent(t, db, "youth-2026", models.CategoryYouth)
	ctx := context.Background()

	first, created, err := svc.StartOrGet(ctx, "youth-2026", adultForm("12345678"))
	if err != nil {
		t.Fatalf("first StartOrGet returned error: %v", err)
	}
	if !created {
		t.Error("expected first call to create the registration")
	}
	if first.Stage != lifecycle.StageDraft {
		t.Errorf("expected draft stage, got %s", first.Stage)
	}

	form := adultForm("12345678")
	form.Phone = "11911112222"
	second, created, err := svc.StartOrGet(ctx, "youth-2026", form)
	if err != nil {
		t.Fatalf("second StartOrGet returned error: %v", err)
	}
	if created {
		t.Error("expected second call to return the existing registration")
	}
	if second.ID != first.ID {
		t.Errorf("expected registration %d, got %d", first.ID, second.ID)
	}
	if second.Participant.Phone != "11999990000" {
		t.Errorf("expected stored contact data to be kept, got %s", second.Participant.Phone)
	}

	var count int64
	db.Model(&models.Registration{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 registration in DB, got %d", count)
	}
}

func TestStartOrGet_OtherEmailIsRefused(t *testing.T) {
	svc, db, n := newTestService(t)
	seedEvent(t, db, "youth-2026", models.CategoryYouth)
	ctx := context.Background()

	owner, _, err := svc.StartOrGet(ctx, "youth-2026", adultForm("12345678"))
	if err != nil {
		t.Fatalf("StartOrGet returned error: %v", err)
	}
	completeWizard(t, svc, owner.PublicToken)
	if _, err := svc.Submit(ctx, owner.PublicToken); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	form := adultForm("12345678")
	form.Name = "Someone Else"
	form.Email = "someone@elsewhere.example"
	reg, _, err := svc.StartOrGet(ctx, "youth-2026", form)
	verr, ok := apperr.AsValidation(err)
	if !ok || verr.Fields["email"] == "" {
		t.Fatalf("expected email validation error, got %v", err)
	}
	if reg != nil {
		t.Fatal("expected no registration to be returned")
	}

	var participant models.Participant
	db.Where("national_id = ?", "12345678").First(&participant)
	if participant.Email != "12345678@example.com" || participant.Name != "Participant 12345678" {
		t.Errorf("expected contact data on file to be kept, got %q %q", participant.Name, participant.Email)
	}

	if _, err := svc.Select(ctx, owner.ID, "staff:test"); err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	if n.count("selected") != 1 || n.last.Participant.Email != "12345678@example.com" {
		t.Errorf("expected selection notice for the email on file, got %q", n.last.Participant.Email)
	}

	t.Run("email matching is case insensitive", func(t *testing.T) {
		form := adultForm("12345678")
		form.Email = "12345678@EXAMPLE.com"
		again, created, err := svc.StartOrGet(ctx, "youth-2026", form)
		if err != nil {
			t.Fatalf("StartOrGet returned error: %v", err)
		}
		if created || again.ID != owner.ID {
			t.Errorf("expected existing registration %d, got %d", owner.ID, again.ID)
		}
	})
}

func TestStartOrGet_Validation(t *testing.T) {
	svc, db, _ := newTestService(t)
	seedEvent(t, db, "youth-2026", models.CategoryYouth)

	form := adultForm("12345678")
	form.Email = "broken"
	_, _, err := svc.StartOrGet(context.Background(), "youth-2026", form)
	if _, ok := apperr.AsValidation(err); !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStartOrGet_ClosedWindow(t *testing.T) {
	svc, db, _ := newTestService(t)
	event := seedEvent(t, db, "youth-2026", models.CategoryYouth)
	ctx := context.Background()

	existing, _, err := svc.StartOrGet(ctx, "youth-2026", adultForm("11111111"))
	if err != nil {
		t.Fatalf("StartOrGet returned error: %v", err)
	}

	svc.now = func() time.Time { return event.RegistrationClosesAt.Add(time.Hour) }

	_, _, err = svc.StartOrGet(ctx, "youth-2026", adultForm("22222222"))
	if !errors.Is(err, apperr.ErrRegistrationClosed) {
		t.Fatalf("expected ErrRegistrationClosed, got %v", err)
	}

	again, created, err := svc.StartOrGet(ctx, "youth-2026", adultForm("11111111"))
	if err != nil {
		t.Fatalf("expected existing registration to remain reachable, got %v", err)
	}
	if created || again.ID != existing.ID {
		t.Errorf("expected existing registration %d, got %d (created=%v)", existing.ID, again.ID, created)
	}

	status, err := svc.Lookup(ctx, "11111111", event.ID)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if status != StatusNotSelected {
		t.Errorf("expected %q, got %q", StatusNotSelected, status)
	}
}

func TestSubmitAndSelect(t *testing.T) {
	svc, db, n := newTestService(t)
	seedEvent(t, db, "youth-2026", models.CategoryYouth)
	ctx := context.Background()

	reg, _, err := svc.StartOrGet(ctx, "youth-2026", adultForm("12345678"))
	if err != nil {
		t.Fatalf("StartOrGet returned error: %v", err)
	}

	if _, err := svc.Submit(ctx, reg.PublicToken); err == nil {
		t.Fatal("expected submit to fail before the wizard is complete")
	}

	completeWizard(t, svc, reg.PublicToken)

	submitted, err := svc.Submit(ctx, reg.PublicToken)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if !submitted.Stage.Flags().Submitted || submitted.SubmittedAt == nil {
		t.Errorf("expected submitted registration, got stage %s", submitted.Stage)
	}

	// Re-saving a submitted registration is a no-op.
	if _, err := svc.Submit(ctx, reg.PublicToken); err != nil {
		t.Fatalf("second Submit returned error: %v", err)
	}
	if got := n.count("received"); got != 1 {
		t.Errorf("expected 1 received notification, got %d", got)
	}

	if _, err := svc.SaveHealth(ctx, reg.PublicToken, wizard.HealthForm{}); !errors.Is(err, apperr.ErrWizardFinished) {
		t.Errorf("expected ErrWizardFinished after submit, got %v", err)
	}

	selected, err := svc.Select(ctx, reg.ID, "staff@example.com")
	if err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	if selected.Stage != lifecycle.StageSelected {
		t.Errorf("expected selected stage, got %s", selected.Stage)
	}
	if _, err := svc.Select(ctx, reg.ID, "staff@example.com"); err != nil {
		t.Fatalf("second Select returned error: %v", err)
	}
	if got := n.count("selected"); got != 1 {
		t.Errorf("expected 1 selected notification, got %d", got)
	}
	want := "https://camp.example/registrations/" + reg.PublicToken + "/checkout"
	if n.last.CheckoutURL != want {
		t.Errorf("expected checkout link %s, got %s", want, n.last.CheckoutURL)
	}

	var history []models.RegistrationHistory
	db.Where("registration_id = ?", reg.ID).Order("id asc").Find(&history)
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[1].FromStage != lifecycle.StageSubmitted || history[1].ToStage != lifecycle.StageSelected {
		t.Errorf("unexpected history entry: %+v", history[1])
	}
	if history[1].Actor != "staff@example.com" {
		t.Errorf("expected actor to be recorded, got %s", history[1].Actor)
	}
}

func TestSelect_InvalidFromDraft(t *testing.T) {
	svc, db, n := newTestService(t)
	seedEvent(t, db, "youth-2026", models.CategoryYouth)
	ctx := context.Background()

	reg, _, _ := svc.StartOrGet(ctx, "youth-2026", adultForm("12345678"))

	_, err := svc.Select(ctx, reg.ID, "staff")
	if !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if len(n.calls) != 0 {
		t.Errorf("expected no notification, got %v", n.calls)
	}
}

func TestTransition_NeverResetsFlags(t *testing.T) {
	svc, db, n := newTestService(t)
	seedEvent(t, db, "youth-2026", models.CategoryYouth)
	ctx := context.Background()

	reg, _, _ := svc.StartOrGet(ctx, "youth-2026", adultForm("12345678"))
	db.Model(&models.Registration{}).Where("id = ?", reg.ID).Update("stage", lifecycle.StagePaymentConfirmed)

	for _, trig := range []lifecycle.Trigger{lifecycle.TriggerSubmit, lifecycle.TriggerSelect, lifecycle.TriggerAwaitPayment, lifecycle.TriggerConfirmPayment} {
		edge, err := svc.Transition(ctx, reg.ID, trig, "test")
		if err != nil {
			t.Fatalf("%s returned error: %v", trig, err)
		}
		if edge.Applied {
			t.Errorf("%s must not apply on a confirmed registration", trig)
		}
	}

	got, _ := svc.Get(ctx, reg.ID)
	if got.Stage != lifecycle.StagePaymentConfirmed {
		t.Errorf("expected stage to stay payment_confirmed, got %s", got.Stage)
	}
	if len(n.calls) != 0 {
		t.Errorf("expected no notifications, got %v", n.calls)
	}
}

func TestTransitionTx_LosingRaceDoesNotApply(t *testing.T) {
	svc, db, _ := newTestService(t)
	seedEvent(t, db, "youth-2026", models.CategoryYouth)
	ctx := context.Background()

	reg, _, _ := svc.StartOrGet(ctx, "youth-2026", adultForm("12345678"))
	db.Model(&models.Registration{}).Where("id = ?", reg.ID).Update("stage", lifecycle.StageSelected)

	var first, second Edge
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		if first, err = svc.TransitionTx(tx, reg.ID, lifecycle.TriggerConfirmPayment, "webhook"); err != nil {
			return err
		}
		second, err = svc.TransitionTx(tx, reg.ID, lifecycle.TriggerConfirmPayment, "staff")
		return err
	})
	if err != nil {
		t.Fatalf("transaction returned error: %v", err)
	}
	if !first.Applied {
		t.Error("expected first confirmation to apply")
	}
	if second.Applied {
		t.Error("expected replayed confirmation not to apply")
	}
}

func TestNotificationFailureKeepsTransition(t *testing.T) {
	svc, db, n := newTestService(t)
	seedEvent(t, db, "youth-2026", models.CategoryYouth)
	ctx := context.Background()
	n.err = errors.New("smtp down")

	reg, _, _ := svc.StartOrGet(ctx, "youth-2026", adultForm("12345678"))
	completeWizard(t, svc, reg.PublicToken)

	got, err := svc.Submit(ctx, reg.PublicToken)
	if err != nil {
		t.Fatalf("expected notification failure to be swallowed, got %v", err)
	}
	if got.Stage != lifecycle.StageSubmitted {
		t.Errorf("expected submitted stage to be committed, got %s", got.Stage)
	}
}

func TestDelete(t *testing.T) {
	svc, db, _ := newTestService(t)
	seedEvent(t, db, "couples-2026", models.CategoryCouples)
	ctx := context.Background()

	a, _, _ := svc.StartOrGet(ctx, "couples-2026", adultForm("11111111"))
	b, _, _ := svc.StartOrGet(ctx, "couples-2026", adultForm("22222222"))
	if err := svc.Pair(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("Pair returned error: %v", err)
	}
	db.Create(&models.Payment{RegistrationID: a.ID, Status: models.PaymentPending, Method: models.MethodCash})

	if err := svc.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	var count int64
	db.Unscoped().Model(&models.Payment{}).Where("registration_id = ?", a.ID).Count(&count)
	if count != 0 {
		t.Errorf("expected payment to be deleted, got %d", count)
	}
	partner, _ := svc.Get(ctx, b.ID)
	if partner.PairedWithID != nil {
		t.Errorf("expected partner to be unpaired, got %v", *partner.PairedWithID)
	}
	if err := svc.Delete(ctx, a.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}
