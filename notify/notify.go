// Package notify formats client intake records into supervisor emails and
// hands them to a mail transport.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AVVKavvk/voz-balance/metrics"
	"github.com/AVVKavvk/voz-balance/models"
)

var ErrRecipientNotConfigured = errors.New("email del supervisor no configurado")

// Message is a rendered email ready for delivery.
type Message struct {
	From    string
	To      string
	Cc      string
	Subject string
	Text    string
	HTML    string
}

// Transport delivers a message and returns the delivery identifier.
type Transport interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// Result is what callers of Send get back instead of an error.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

type SenderConfig struct {
	From       string
	Supervisor string
	CC         string
	Location   *time.Location
}

// Sender is stateless apart from its configuration and is safe for
// concurrent use as long as the Transport is.
type Sender struct {
	transport Transport
	cfg       SenderConfig
	now       func() time.Time
}

func NewSender(transport Transport, cfg SenderConfig) *Sender {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Sender{transport: transport, cfg: cfg, now: time.Now}
}

// LoadLocation resolves an IANA zone name, falling back to UTC.
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn().Err(err).Str("tz", name).Msg("unknown email timezone, using UTC")
		return time.UTC
	}
	return loc
}

// Send renders the intake record and delivers it. It never returns an error;
// failures are reported in the Result.
func (s *Sender) Send(ctx context.Context, rec models.IntakeRecord) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Success: false, Error: fmt.Sprint(r)}
		}
		outcome := "sent"
		if !res.Success {
			outcome = "failed"
		}
		metrics.Notifications.WithLabelValues(outcome).Inc()
	}()

	if s.cfg.Supervisor == "" {
		log.Error().Msg("SUPERVISOR_EMAIL is not configured")
		return Result{Success: false, Error: ErrRecipientNotConfigured.Error()}
	}
	if s.transport == nil {
		return Result{Success: false, Error: "mail transport not configured"}
	}

	msg, err := s.render(rec)
	if err != nil {
		log.Error().Err(err).Msg("render notification")
		return Result{Success: false, Error: err.Error()}
	}

	ev := log.Info().Str("nombre", rec.Name).Str("telefono", rec.Phone)
	if msg.Cc != "" {
		ev = ev.Str("cc", msg.Cc)
	}
	ev.Msg("sending client data notification")

	id, err := s.transport.Send(ctx, msg)
	if err != nil {
		log.Error().Err(err).Msg("email delivery failed")
		return Result{Success: false, Error: err.Error()}
	}
	log.Info().Str("message_id", id).Msg("email sent")
	return Result{Success: true, MessageID: id}
}

func (s *Sender) render(rec models.IntakeRecord) (*Message, error) {
	data := newEmailData(rec, s.now().In(s.cfg.Location))
	text, html, err := renderBodies(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		From:    s.cfg.From,
		To:      s.cfg.Supervisor,
		Cc:      s.cfg.CC,
		Subject: fmt.Sprintf("🦷 Nueva Cita Dental - %s (%s)", rec.Name, rec.Phone),
		Text:    text,
		HTML:    html,
	}, nil
}
