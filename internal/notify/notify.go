// Package notify delivers scheduler messages to participants and, optionally,
// mirrors them to a public channel.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"podium-bot/internal/apperr"
	"podium-bot/internal/metrics"
	"podium-bot/internal/models"
)

// Sender delivers text to one participant, addressed by handle.
type Sender interface {
	Send(ctx context.Context, handle int64, text string) error
}

// Announcer posts text to a shared channel.
type Announcer interface {
	Announce(ctx context.Context, text string) error
}

type Message struct {
	Handle int64
	Text   string
}

type Dispatcher struct {
	sender    Sender
	announcer Announcer
	timeout   time.Duration
	log       zerolog.Logger
}

// NewDispatcher wraps sender. announcer may be nil.
func NewDispatcher(sender Sender, announcer Announcer, timeout time.Duration, log zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		sender:    sender,
		announcer: announcer,
		timeout:   timeout,
		log:       log.With().Str("component", "notify").Logger(),
	}
}

// Broadcast sends each message with its own timeout. A failed recipient is
// logged and skipped. Returns the number delivered.
func (d *Dispatcher) Broadcast(ctx context.Context, kind models.NotificationKind, msgs []Message) int {
	sent := 0
	for _, m := range msgs {
		if err := d.sendOne(ctx, m); err != nil {
			metrics.NotificationsSent.WithLabelValues(string(kind), "error").Inc()
			d.log.Warn().Err(err).Str("kind", string(kind)).Int64("handle", m.Handle).Msg("send failed")
			continue
		}
		metrics.NotificationsSent.WithLabelValues(string(kind), "ok").Inc()
		sent++
	}
	return sent
}

func (d *Dispatcher) sendOne(ctx context.Context, m Message) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.sender.Send(ctx, m.Handle, m.Text); err != nil {
		if ctx.Err() != nil {
			return apperr.ErrTransient.Wrap(err)
		}
		return err
	}
	return nil
}

// Announce mirrors text to the channel when one is configured.
func (d *Dispatcher) Announce(ctx context.Context, kind models.NotificationKind, text string) {
	if d.announcer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.announcer.Announce(ctx, text); err != nil {
		d.log.Warn().Err(err).Str("kind", string(kind)).Msg("announce failed")
	}
}

// LogSender writes messages to the log instead of delivering them. Used when
// no bot token is configured.
type LogSender struct {
	Log zerolog.Logger
}

func (s LogSender) Send(_ context.Context, handle int64, text string) error {
	s.Log.Info().Int64("handle", handle).Str("text", text).Msg("notification")
	return nil
}
