package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/parish-camps/camp-api/internal/lifecycle"
	"github.com/parish-camps/camp-api/internal/models"
)

// Message carries what every channel needs to render a lifecycle notice.
type Message struct {
	Participant  models.Participant
	Event        models.Event
	Registration models.Registration
	DetailURL    string
	CheckoutURL  string
}

type Notifier interface {
	RegistrationReceived(ctx context.Context, msg Message) error
	RegistrationSelected(ctx context.Context, msg Message) error
	PaymentConfirmed(ctx context.Context, msg Message) error
}

// Dispatch routes a lifecycle notice to the matching Notifier method.
func Dispatch(ctx context.Context, n Notifier, notice lifecycle.Notice, msg Message) error {
	if n == nil {
		return nil
	}
	switch notice {
	case lifecycle.NoticeNone:
		return nil
	case lifecycle.NoticeReceived:
		return n.RegistrationReceived(ctx, msg)
	case lifecycle.NoticeSelected:
		return n.RegistrationSelected(ctx, msg)
	case lifecycle.NoticeConfirmed:
		return n.PaymentConfirmed(ctx, msg)
	}
	return fmt.Errorf("unknown notice %q", notice)
}

// Multi sends through every channel and joins their errors.
type Multi []Notifier

func (m Multi) RegistrationReceived(ctx context.Context, msg Message) error {
	return m.each(func(n Notifier) error { return n.RegistrationReceived(ctx, msg) })
}

func (m Multi) RegistrationSelected(ctx context.Context, msg Message) error {
	return m.each(func(n Notifier) error { return n.RegistrationSelected(ctx, msg) })
}

func (m Multi) PaymentConfirmed(ctx context.Context, msg Message) error {
	return m.each(func(n Notifier) error { return n.PaymentConfirmed(ctx, msg) })
}

func (m Multi) each(send func(Notifier) error) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := send(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
