package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"busline/internal/config"
	"busline/internal/models"
	"busline/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "gopkg.in/gomail.v2"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

type fakeSender struct {
	mu       sync.Mutex
	failures int
	sent     []*gomail.Message
	calls    int
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("421 service not available")
	}
	f.sent = append(f.sent, m...)
	return nil
}

func sampleBooking() *models.Booking {
	return &models.Booking{
		Code:           "BUS1A2B3C4D",
		PassengerName:  "Ivan",
		PassengerEmail: "ivan@example.com",
		TotalPrice:     3000,
		PickupPoint:    "Central station",
		Tickets:        []models.Ticket{{SeatCode: "A1"}, {SeatCode: "A2"}},
	}
}

var fastRetry = worker.RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

func TestSMTPMailer_SendConfirmation(t *testing.T) {
	s := &fakeSender{}
	m := newSMTPMailer("noreply@busline.local", s, fastRetry, testLogger())

	require.NoError(t, m.SendConfirmation(context.Background(), sampleBooking(), "ivan@example.com"))
	require.Len(t, s.sent, 1)

	msg := s.sent[0]
	assert.Equal(t, []string{"ivan@example.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"noreply@busline.local"}, msg.GetHeader("From"))
	assert.Contains(t, msg.GetHeader("Subject")[0], "BUS1A2B3C4D")

	var raw bytes.Buffer
	_, err := msg.WriteTo(&raw)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), "BUS1A2B3C4D")
}

func TestSMTPMailer_Retries(t *testing.T) {
	s := &fakeSender{failures: 2}
	m := newSMTPMailer("noreply@busline.local", s, fastRetry, testLogger())

	require.NoError(t, m.SendReminder(context.Background(), sampleBooking(), "ivan@example.com"))
	assert.Equal(t, 3, s.calls)
	assert.Len(t, s.sent, 1)
}

func TestSMTPMailer_GivesUp(t *testing.T) {
	s := &fakeSender{failures: 10}
	m := newSMTPMailer("noreply@busline.local", s, fastRetry, testLogger())

	err := m.SendReminder(context.Background(), sampleBooking(), "ivan@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, s.calls)
}

func TestSMTPMailer_ContextCancelled(t *testing.T) {
	s := &fakeSender{failures: 10}
	slow := worker.RetryPolicy{MaxRetries: 5, InitialDelay: time.Hour}
	m := newSMTPMailer("noreply@busline.local", s, slow, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.SendReminder(ctx, sampleBooking(), "ivan@example.com")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, s.calls)
}

func TestSMTPMailer_NoRecipient(t *testing.T) {
	s := &fakeSender{}
	m := newSMTPMailer("noreply@busline.local", s, fastRetry, testLogger())

	assert.Error(t, m.SendConfirmation(context.Background(), sampleBooking(), ""))
	assert.Zero(t, s.calls)
}

func TestNewMailer(t *testing.T) {
	_, isLog := NewMailer(config.EmailConfig{}, testLogger()).(*LogMailer)
	assert.True(t, isLog)

	cfg := config.EmailConfig{SMTPHost: "smtp.example.com", SMTPPort: 587, From: "noreply@example.com", MaxRetries: 2}
	_, isSMTP := NewMailer(cfg, testLogger()).(*SMTPMailer)
	assert.True(t, isSMTP)

	lm := NewLogMailer(testLogger())
	assert.NoError(t, lm.SendConfirmation(context.Background(), sampleBooking(), "x@example.com"))
	assert.NoError(t, lm.SendReminder(context.Background(), sampleBooking(), "x@example.com"))
}
