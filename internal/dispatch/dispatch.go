// Package dispatch sends outbound notification batches.
//
// Dispatch is sequential and best-effort: a failed send is logged and counted and the
// batch moves on. Every attempted send increments the owner's per-type interaction
// counter and the global sent total, whether or not the transport accepted it.
// Messages without an owner id are dropped before sending and never counted.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/BTreeMap/JogPipe/internal/metrics"
	"github.com/BTreeMap/JogPipe/internal/models"
	"github.com/BTreeMap/JogPipe/internal/push"
	"github.com/BTreeMap/JogPipe/internal/store"
)

// Result summarizes one dispatched batch.
type Result struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Dropped int `json:"dropped"`
}

// Attempted is the number of messages handed to the transport.
func (r Result) Attempted() int { return r.Sent + r.Failed }

// Add merges o into r.
func (r *Result) Add(o Result) {
	r.Sent += o.Sent
	r.Failed += o.Failed
	r.Dropped += o.Dropped
}

// Dispatcher sends messages through a push.Sender and records every attempt.
type Dispatcher struct {
	sender  push.Sender
	log     store.NotificationLog
	limiter *rate.Limiter
	now     func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRateLimit paces sends to perSecond with the given burst. Zero disables pacing.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(d *Dispatcher) {
		if perSecond <= 0 {
			d.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithClock overrides the clock used to timestamp attempts.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a Dispatcher.
func New(sender push.Sender, log store.NotificationLog, opts ...Option) *Dispatcher {
	d := &Dispatcher{sender: sender, log: log, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends msgs in order. It stops early only when ctx is cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, msgs []models.Message) Result {
	var res Result
	for i, msg := range msgs {
		typ := msg.Type()
		userID := msg.UserID()

		if userID == "" {
			slog.Warn("Dispatcher.Dispatch: dropping malformed message without owner id", "type", typ, "title", msg.Title)
			res.Dropped++
			metrics.NotificationsTotal.WithLabelValues(string(typ), string(models.AttemptDropped)).Inc()
			d.record(ctx, msg, models.AttemptDropped, nil, false)
			continue
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				slog.Warn("Dispatcher.Dispatch: stopping, context done", "remaining", len(msgs)-i, "error", err)
				return res
			}
		}

		receipt, err := d.sender.Send(ctx, msg)
		status := models.AttemptSent
		if err != nil {
			status = models.AttemptFailed
			res.Failed++
			slog.Error("Dispatcher.Dispatch: send failed", "userID", userID, "type", typ, "error", err)
		} else {
			res.Sent++
			slog.Debug("Dispatcher.Dispatch: sent", "userID", userID, "type", typ, "receipt", receipt)
		}
		metrics.NotificationsTotal.WithLabelValues(string(typ), string(status)).Inc()
		d.record(ctx, msg, status, err, true)
	}
	if len(msgs) > 0 {
		slog.Info("Dispatcher.Dispatch: batch done", "sent", res.Sent, "failed", res.Failed, "dropped", res.Dropped)
	}
	return res
}

func (d *Dispatcher) record(ctx context.Context, msg models.Message, status models.AttemptStatus, sendErr error, counted bool) {
	a := models.NotificationAttempt{
		UserID:    msg.UserID(),
		Type:      msg.Type(),
		Title:     msg.Title,
		Body:      msg.Body,
		Status:    status,
		CreatedAt: d.now(),
	}
	if sendErr != nil {
		a.Error = sendErr.Error()
	}
	if err := d.log.RecordAttempt(ctx, a, counted); err != nil {
		slog.Error("Dispatcher.record: failed to record attempt", "userID", a.UserID, "type", a.Type, "error", err)
	}
}
