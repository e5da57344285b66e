package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/parish-camps/camp-api/internal/auth"
	"github.com/parish-camps/camp-api/internal/metrics"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth          *auth.AuthHandler
	Registrations *RegistrationHandler
	Webhooks      *WebhookHandler
	Staff         *StaffHandler
	APIKeys       *APIKeyHandler
	Metrics       *metrics.Metrics
}

func RegisterRoutes(r *chi.Mux, h Handlers, logger *zap.Logger) huma.API {
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	// Initialize Huma API
	config := huma.DefaultConfig("Parish Camp API", "1.0.0")
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"cookieAuth": {
			Type: "apiKey",
			In:   "cookie",
			Name: auth.TokenCookieName,
		},
		"apiKeyAuth": {
			Type: "apiKey",
			In:   "header",
			Name: "X-API-KEY",
		},
	}
	api := humachi.New(r, config)

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	huma.Get(api, "/events/{slug}", h.Registrations.HandleGetEvent)
	huma.Post(api, "/events/{slug}/registrations", h.Registrations.HandleStart)
	huma.Get(api, "/registrations/{token}", h.Registrations.HandleGet)
	huma.Put(api, "/registrations/{token}/spouse", h.Registrations.HandleSaveSpouse)
	huma.Put(api, "/registrations/{token}/health", h.Registrations.HandleSaveHealth)
	huma.Put(api, "/registrations/{token}/guardian", h.Registrations.HandleSaveGuardian)
	huma.Put(api, "/registrations/{token}/emergency", h.Registrations.HandleSaveEmergency)
	huma.Post(api, "/registrations/{token}/submit", h.Registrations.HandleSubmit)
	huma.Get(api, "/registrations/{token}/checkout", h.Registrations.HandleCheckout)
	huma.Get(api, "/lookup", h.Registrations.HandleLookup)
	huma.Post(api, "/webhooks/payments/{parish_id}", h.Webhooks.HandlePayment)

	// Auth routes
	huma.Get(api, "/auth/login", h.Auth.HandleLogin)
	huma.Get(api, "/auth/callback", h.Auth.HandleCallback)

	// Staff routes authorize inside each handler.
	secured := func(o *huma.Operation) {
		o.Security = []map[string][]string{{"cookieAuth": {}}, {"apiKeyAuth": {}}}
		o.Tags = append(o.Tags, "staff")
	}
	huma.Get(api, "/me", h.Auth.HandleMe, secured)
	huma.Post(api, "/staff/registrations/{id}/select", h.Staff.HandleSelect, secured)
	huma.Post(api, "/staff/registrations/{id}/payment", h.Staff.HandleRecordPayment, secured)
	huma.Post(api, "/staff/registrations/{id}/pair", h.Staff.HandlePair, secured)
	huma.Delete(api, "/staff/registrations/{id}/pair", h.Staff.HandleUnpair, secured)
	huma.Delete(api, "/staff/registrations/{id}", h.Staff.HandleDelete, secured)
	huma.Get(api, "/staff/events/{id}/registrations", h.Staff.HandleListRegistrations, secured)
	huma.Get(api, "/staff/events/{id}/finance", h.Staff.HandleFinance, secured)
	huma.Post(api, "/staff/events/{id}/reports/{kind}", h.Staff.HandleReport, secured)
	huma.Post(api, "/staff/events", h.Staff.HandleCreateEvent, secured)
	huma.Put(api, "/staff/gateway", h.Staff.HandleSaveGateway, secured)
	huma.Post(api, "/staff/members", h.Staff.HandleCreateStaff, secured)
	huma.Post(api, "/staff/parishes", h.Staff.HandleCreateParish, secured)
	huma.Post(api, "/staff/api-keys", h.APIKeys.HandleCreate, secured)
	huma.Get(api, "/staff/api-keys", h.APIKeys.HandleList, secured)
	huma.Delete(api, "/staff/api-keys/{id}", h.APIKeys.HandleDelete, secured)

	if h.Metrics != nil {
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.JWTMiddleware)
			r.Handle("/metrics", h.Metrics.Handler())
		})
	}
	return api
}
