package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"busline/internal/domain"
	"busline/internal/events"
	"busline/internal/models"

	"github.com/rs/zerolog"
)

const sendTimeout = 2 * time.Minute

type bookingReader interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
}

// Notifier turns booking events into customer emails. Delivery runs off the
// publishing goroutine so a slow SMTP server never delays a confirmation.
type Notifier struct {
	repo   bookingReader
	mailer domain.Mailer
	logger *zerolog.Logger
	wg     sync.WaitGroup
}

func NewNotifier(repo bookingReader, mailer domain.Mailer, logger *zerolog.Logger) *Notifier {
	return &Notifier{repo: repo, mailer: mailer, logger: logger}
}

// Subscribe attaches the notifier to the bus.
func (n *Notifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventBookingConfirmed, n.handleConfirmed)
}

func (n *Notifier) handleConfirmed(e *events.Event) error {
	var payload events.BookingEventPayload
	if err := e.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		n.sendConfirmation(ctx, payload)
	}()
	return nil
}

func (n *Notifier) sendConfirmation(ctx context.Context, payload events.BookingEventPayload) {
	booking, err := n.repo.GetBooking(ctx, payload.BookingID)
	if err != nil {
		n.logger.Error().Err(err).Int64("booking_id", payload.BookingID).Msg("failed to load booking for confirmation email")
		return
	}

	recipient := payload.Email
	if recipient == "" {
		recipient = booking.PassengerEmail
	}
	if err := n.mailer.SendConfirmation(ctx, booking, recipient); err != nil {
		n.logger.Error().Err(err).Int64("booking_id", booking.ID).Str("code", booking.Code).Msg("confirmation email failed")
	}
}

// Wait blocks until in-flight deliveries finish. Used on shutdown.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
