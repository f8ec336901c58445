// Package notify delivers best-effort notifications to institutes and students.
//
// A failed send is logged and counted; it never fails the operation that
// triggered it.
package notify

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pavelanni/examvault/internal/metrics"
)

// Kind identifies the type of a notification.
type Kind string

const (
	KindExamApproved    Kind = "exam_approved"
	KindExamRejected    Kind = "exam_rejected"
	KindResultsReleased Kind = "results_released"
	KindAttemptReceived Kind = "attempt_received"
)

// Message is a single notification to one recipient.
type Message struct {
	Kind    Kind   `json:"kind"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, m Message) error

// Send calls f(ctx, m).
func (f SenderFunc) Send(ctx context.Context, m Message) error { return f(ctx, m) }

// Options tunes fan-out.
type Options struct {
	// BatchSize is the number of messages handled before waiting for the batch to drain.
	BatchSize int
	// Concurrency bounds in-flight sends within a batch.
	Concurrency int
	// Rate limits sends per second across the dispatcher. Zero disables pacing.
	Rate  float64
	Burst int
	// SendTimeout bounds a single send.
	SendTimeout time.Duration
}

// DefaultOptions returns batches of 50 with 8 concurrent sends and no pacing.
func DefaultOptions() Options {
	return Options{
		BatchSize:   50,
		Concurrency: 8,
		SendTimeout: 10 * time.Second,
	}
}

// FanoutReport summarizes a fan-out.
type FanoutReport struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Dispatcher sends notifications through a Sender.
type Dispatcher struct {
	sender  Sender
	opts    Options
	limiter *rate.Limiter
}

// NewDispatcher creates a dispatcher. Non-positive option values fall back to the defaults.
func NewDispatcher(s Sender, opts Options) *Dispatcher {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = def.SendTimeout
	}
	d := &Dispatcher{sender: s, opts: opts}
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}
	return d
}

// Notify sends a single message. Failures are logged only.
func (d *Dispatcher) Notify(ctx context.Context, m Message) {
	d.send(ctx, m)
}

// Fanout sends msgs in batches of BatchSize with at most Concurrency sends in
// flight. A failed recipient is logged and counted and the fan-out continues.
func (d *Dispatcher) Fanout(ctx context.Context, msgs []Message) FanoutReport {
	report := FanoutReport{Total: len(msgs)}
	var sent, failed, skipped atomic.Int64

	for start := 0; start < len(msgs); start += d.opts.BatchSize {
		end := min(start+d.opts.BatchSize, len(msgs))

		var g errgroup.Group
		g.SetLimit(d.opts.Concurrency)
		for _, m := range msgs[start:end] {
			g.Go(func() error {
				switch d.send(ctx, m) {
				case outcomeSent:
					sent.Add(1)
				case outcomeSkipped:
					skipped.Add(1)
				default:
					failed.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()
		slog.Debug("notification batch done", "from", start, "to", end, "total", len(msgs))
	}

	report.Sent = int(sent.Load())
	report.Failed = int(failed.Load())
	report.Skipped = int(skipped.Load())
	slog.Info("notification fan-out finished",
		"total", report.Total, "sent", report.Sent, "failed", report.Failed, "skipped", report.Skipped)
	return report
}

type outcome string

const (
	outcomeSent    outcome = "sent"
	outcomeFailed  outcome = "failed"
	outcomeSkipped outcome = "skipped"
)

func (d *Dispatcher) send(ctx context.Context, m Message) outcome {
	o := d.deliver(ctx, m)
	metrics.Notifications.WithLabelValues(string(m.Kind), string(o)).Inc()
	return o
}

func (d *Dispatcher) deliver(ctx context.Context, m Message) outcome {
	if m.To == "" {
		slog.Warn("notification has no recipient", "kind", m.Kind)
		return outcomeSkipped
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			slog.Warn("notification not sent", "kind", m.Kind, "to", m.To, "error", err)
			return outcomeFailed
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	defer cancel()
	if err := d.sender.Send(ctx, m); err != nil {
		slog.Warn("notification not sent", "kind", m.Kind, "to", m.To, "error", err)
		return outcomeFailed
	}
	return outcomeSent
}
