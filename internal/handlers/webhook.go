package handlers

import (
	"context"
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"
	"github.com/parish-camps/camp-api/internal/apperr"
	"github.com/parish-camps/camp-api/internal/payments"
	"go.uber.org/zap"
)

type WebhookHandler struct {
	reconciler *payments.Reconciler
	logger     *zap.Logger
}

func NewWebhookHandler(reconciler *payments.Reconciler, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{reconciler: reconciler, logger: logger}
}

type WebhookInput struct {
	ParishID uint `path:"parish_id"`
	RawBody  []byte
}

type WebhookOutput struct {
	Body struct {
		Status string `json:"status" enum:"ok,ignored"`
		payments.Result
	}
}

// paymentID extracts the gateway payment id from a notification. Only the id
// is trusted: status and amount are always fetched back from the gateway.
func paymentID(body []byte) (string, bool) {
	var notification struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
		TransactionID string `json:"transaction_id"`
		OrderID       string `json:"order_id"`
	}
	if err := json.Unmarshal(body, &notification); err != nil {
		return "", false
	}
	for _, id := range []string{notification.Data.ID, notification.TransactionID, notification.OrderID} {
		if id != "" {
			return id, true
		}
	}
	return "", false
}

// HandlePayment reconciles one gateway notification. Unknown payments are
// acknowledged so the gateway stops retrying; transient and configuration
// failures answer 5xx so it retries later.
func (h *WebhookHandler) HandlePayment(ctx context.Context, input *WebhookInput) (*WebhookOutput, error) {
	id, ok := paymentID(input.RawBody)
	if !ok {
		h.logger.Warn("malformed payment webhook", zap.Uint("parish_id", input.ParishID), zap.Int("size", len(input.RawBody)))
		return nil, huma.Error400BadRequest("Malformed notification: payment id not found")
	}

	result, err := h.reconciler.Reconcile(ctx, input.ParishID, id)
	out := &WebhookOutput{}
	switch {
	case err == nil:
		out.Body.Status = "ok"
	case apperr.IsUnresolvable(err):
		out.Body.Status = "ignored"
	case apperr.IsTransient(err):
		return nil, huma.Error502BadGateway("Payment gateway unavailable")
	case apperr.IsConfiguration(err):
		return nil, huma.Error503ServiceUnavailable("Payments are not configured for this parish")
	default:
		return nil, huma.Error500InternalServerError("Failed to reconcile payment")
	}
	out.Body.Result = result
	return out, nil
}
