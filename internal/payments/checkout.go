package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/parish-camps/camp-api/internal/apperr"
	"github.com/parish-camps/camp-api/internal/lifecycle"
	"github.com/parish-camps/camp-api/internal/registrations"
	"go.uber.org/zap"
)

var (
	ErrNotSelected = errors.New("registration was not selected")
	ErrAlreadyPaid = errors.New("registration is already paid")
)

type CheckoutService struct {
	configs       ConfigResolver
	factory       GatewayFactory
	registrations *registrations.Service
	logger        *zap.Logger
}

func NewCheckoutService(configs ConfigResolver, factory GatewayFactory, regs *registrations.Service, logger *zap.Logger) *CheckoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckoutService{configs: configs, factory: factory, registrations: regs, logger: logger}
}

// Create asks the parish gateway for a hosted checkout of the registration
// fee and returns its URL. Configuration is checked before any outbound call.
func (s *CheckoutService) Create(ctx context.Context, token string) (string, error) {
	reg, err := s.registrations.GetByToken(ctx, token)
	if err != nil {
		return "", err
	}
	flags := reg.Stage.Flags()
	if flags.PaymentConfirmed {
		return "", ErrAlreadyPaid
	}
	if !flags.Selected {
		return "", ErrNotSelected
	}

	cfg, err := s.configs.Resolve(ctx, reg.Event.ParishID)
	if err != nil {
		return "", err
	}
	gateway, err := s.factory(cfg)
	if err != nil {
		return "", err
	}

	detail := s.registrations.DetailURL(reg)
	req := CheckoutRequest{
		Reference:   NewReference(reg.ID),
		Description: fmt.Sprintf("%s - %s", reg.Event.Name, reg.Participant.Name),
		Amount:      reg.Event.Fee,
		PayerName:   reg.Participant.Name,
		PayerEmail:  reg.Participant.Email,
		PayerPhone:  reg.Participant.Phone,
		ReturnURLs: ReturnURLs{
			Approved: detail + "?payment=approved",
			Rejected: detail + "?payment=rejected",
			Pending:  detail + "?payment=pending",
		},
	}
	checkout, err := gateway.CreateCheckout(ctx, req)
	if err != nil {
		return "", err
	}
	if checkout == nil || checkout.URL == "" {
		return "", &apperr.TransientGatewayError{Op: "create checkout", Err: errors.New("gateway returned no checkout url")}
	}

	if _, err := s.registrations.Transition(ctx, reg.ID, lifecycle.TriggerAwaitPayment, "participant"); err != nil {
		return "", err
	}
	s.logger.Info("checkout created",
		zap.Uint("registration_id", reg.ID),
		zap.String("reference", req.Reference),
	)
	return checkout.URL, nil
}
