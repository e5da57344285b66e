package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/parish-camps/camp-api/internal/apperr"
	"github.com/parish-camps/camp-api/internal/auth"
	"github.com/parish-camps/camp-api/internal/config"
	"github.com/parish-camps/camp-api/internal/finance"
	"github.com/parish-camps/camp-api/internal/models"
	"github.com/parish-camps/camp-api/internal/payments"
	"github.com/parish-camps/camp-api/internal/registrations"
	"github.com/parish-camps/camp-api/internal/reports"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeGateway struct {
	mu        sync.Mutex
	checkouts []payments.CheckoutRequest
	url       string
	err       error
	payments  map[string]*payments.PaymentDetails
}

func (g *fakeGateway) CreateCheckout(ctx context.Context, req payments.CheckoutRequest) (*payments.Checkout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkouts = append(g.checkouts, req)
	if g.err != nil {
		return nil, g.err
	}
	return &payments.Checkout{URL: g.url, Token: "snap-token"}, nil
}

func (g *fakeGateway) FetchPayment(ctx context.Context, id string) (*payments.PaymentDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	details, ok := g.payments[id]
	if !ok {
		return nil, &apperr.UnresolvableReference{Reference: id}
	}
	copied := *details
	return &copied, nil
}

func (g *fakeGateway) lastReference() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.checkouts) == 0 {
		return ""
	}
	return g.checkouts[len(g.checkouts)-1].Reference
}

type testEnv struct {
	db          *gorm.DB
	gateway     *fakeGateway
	auth        *auth.AuthHandler
	public      *RegistrationHandler
	webhooks    *WebhookHandler
	staff       *StaffHandler
	apiKeys     *APIKeyHandler
	parish      models.Parish
	event       models.Event
	coordinator models.Staff
	creds       auth.AuthInput
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
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

	env := &testEnv{db: db, gateway: &fakeGateway{url: "https://pay.example/checkout/abc", payments: map[string]*payments.PaymentDetails{}}}
	factory := func(cfg *models.GatewayConfig) (payments.Gateway, error) {
		return env.gateway, nil
	}

	regs := registrations.NewService(db, nil, nil, nil, "https://camp.example")
	configs := payments.NewDBConfigResolver(db)
	fin := finance.NewService(db)
	env.auth = auth.NewAuthHandler(&config.Config{JWTSecret: "test-secret"}, db, nil)
	env.public = NewRegistrationHandler(db, regs, payments.NewCheckoutService(configs, factory, regs, nil), nil)
	env.webhooks = NewWebhookHandler(payments.NewReconciler(db, configs, factory, regs, nil, nil), nil)
	env.staff = NewStaffHandler(db, env.auth, regs, payments.NewManualPayments(db, regs, nil), fin, reports.NewBuilder(db, fin), nil, nil)
	env.apiKeys = NewAPIKeyHandler(db, env.auth, nil)

	env.parish = models.Parish{Name: "Santa Rita", Slug: "santa-rita", ServiceFeePercent: decimal.RequireFromString("5")}
	db.Create(&env.parish)
	db.Create(&models.GatewayConfig{
		ParishID:   env.parish.ID,
		Provider:   models.GatewayProviderMidtrans,
		ServerKey:  "SB-Mid-server-test",
		Active:     true,
		FeePercent: decimal.RequireFromString("2"),
	})

	now := time.Now()
	env.event = models.Event{
		ParishID:             env.parish.ID,
		Name:                 "Youth Camp",
		Slug:                 "youth-camp-2026",
		Category:             models.CategoryYouth,
		RegistrationOpensAt:  now.Add(-time.Hour),
		RegistrationClosesAt: now.Add(24 * time.Hour),
		StartsAt:             now.Add(720 * time.Hour),
		Fee:                  decimal.RequireFromString("150"),
	}
	db.Create(&env.event)

	env.coordinator = models.Staff{Email: "coord@santa-rita.example", Name: "Coordinator", ParishID: env.parish.ID}
	db.Create(&env.coordinator)
	db.Create(&models.APIKey{StaffID: env.coordinator.ID, Key: "coord-key", Name: "tests"})
	env.creds = auth.AuthInput{APIKey: "coord-key"}
	return env
}

// start registers a participant and walks the wizard up to submission.
func (e *testEnv) start(t *testing.T, nationalID string) RegistrationView {
	t.Helper()
	ctx := context.Background()
	in := &StartRegistrationInput{Slug: e.event.Slug}
	in.Body.Name = "Participant " + nationalID
	in.Body.NationalID = nationalID
	in.Body.Email = nationalID + "@example.com"
	in.Body.Phone = "11999990000"
	in.Body.BirthDate = time.Date(1995, 3, 10, 0, 0, 0, 0, time.UTC)
	out, err := e.public.HandleStart(ctx, in)
	if err != nil {
		t.Fatalf("HandleStart returned error: %v", err)
	}
	token := out.Body.Token

	if _, err := e.public.HandleSaveHealth(ctx, &HealthInput{TokenInput: TokenInput{Token: token}}); err != nil {
		t.Fatalf("HandleSaveHealth returned error: %v", err)
	}
	emergency := &EmergencyInput{TokenInput: TokenInput{Token: token}}
	emergency.Body.Name = "Contact"
	emergency.Body.Phone = "11988887777"
	if _, err := e.public.HandleSaveEmergency(ctx, emergency); err != nil {
		t.Fatalf("HandleSaveEmergency returned error: %v", err)
	}
	submitted, err := e.public.HandleSubmit(ctx, &TokenInput{Token: token})
	if err != nil {
		t.Fatalf("HandleSubmit returned error: %v", err)
	}
	return submitted.Body
}

func (e *testEnv) registrationID(t *testing.T, token string) uint {
	t.Helper()
	var reg models.Registration
	if err := e.db.Where("public_token = ?", token).First(&reg).Error; err != nil {
		t.Fatalf("failed to load registration: %v", err)
	}
	return reg.ID
}

func statusOf(err error) int {
	if se, ok := err.(huma.StatusError); ok {
		return se.GetStatus()
	}
	return 0
}
