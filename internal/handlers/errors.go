package handlers

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/parish-camps/camp-api/internal/apperr"
	"github.com/parish-camps/camp-api/internal/lifecycle"
	"github.com/parish-camps/camp-api/internal/payments"
	"github.com/parish-camps/camp-api/internal/reports"
	"go.uber.org/zap"
)

// httpError translates service errors into huma errors. Unclassified errors
// are logged and surface as a bare 500.
func httpError(logger *zap.Logger, op string, err error) error {
	if v, ok := apperr.AsValidation(err); ok {
		details := make([]error, 0, len(v.Fields))
		for field, msg := range v.Fields {
			details = append(details, &huma.ErrorDetail{Message: msg, Location: "body." + field})
		}
		return huma.Error422UnprocessableEntity("Validation failed", details...)
	}

	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return huma.Error404NotFound("Not found")
	case errors.Is(err, apperr.ErrRegistrationClosed):
		return huma.Error409Conflict("Registration window is closed")
	case errors.Is(err, apperr.ErrWizardFinished):
		return huma.Error409Conflict("Registration was already submitted")
	case errors.Is(err, apperr.ErrPairing):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, payments.ErrNotSelected):
		return huma.Error409Conflict("Registration was not selected")
	case errors.Is(err, payments.ErrAlreadyPaid):
		return huma.Error409Conflict("Registration is already paid")
	case errors.Is(err, reports.ErrUnknownKind):
		return huma.Error400BadRequest(err.Error())
	case apperr.IsConfiguration(err):
		return huma.Error503ServiceUnavailable("Payments are not configured for this parish")
	case apperr.IsTransient(err):
		return huma.Error502BadGateway("Payment gateway unavailable")
	}

	logger.Error("request failed", zap.String("op", op), zap.Error(err))
	return huma.Error500InternalServerError("Internal error")
}
