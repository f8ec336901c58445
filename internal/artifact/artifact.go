// Package artifact publishes sealed exams to, and fetches them from, an
// external content-addressed store.
//
// Everything placed in the store is ciphertext. The Adapter bounds every call
// with a timeout, retries transport failures with exponential backoff, and
// checks that fetched documents have the envelope shape before anyone tries
// to open them.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/pavelanni/examvault/internal/envelope"
	"github.com/pavelanni/examvault/internal/metrics"
)

// Address is an opaque content address returned by the store.
type Address string

// Backend is a raw content-addressed byte store.
type Backend interface {
	Put(ctx context.Context, data []byte) (Address, error)
	Get(ctx context.Context, addr Address) ([]byte, error)
}

// ContentAddress is the hex SHA-256 of data, used by backends that name objects themselves.
func ContentAddress(data []byte) Address {
	sum := sha256.Sum256(data)
	return Address(hex.EncodeToString(sum[:]))
}

// Options tunes the Adapter.
type Options struct {
	// Timeout bounds a whole call including retries.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint64
	// RetryBase is the first backoff interval; it doubles on every retry.
	RetryBase time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryBase:  200 * time.Millisecond,
	}
}

// Adapter wraps a Backend with timeouts, retries and envelope validation.
type Adapter struct {
	backend Backend
	opts    Options
}

// NewAdapter creates an Adapter. Zero option fields take their defaults.
func NewAdapter(b Backend, opts Options) *Adapter {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = def.RetryBase
	}
	return &Adapter{backend: b, opts: opts}
}

// Publish stores a sealed envelope and returns its address.
func (a *Adapter) Publish(ctx context.Context, env *envelope.Envelope) (Address, error) {
	data, err := env.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	var addr Address
	err = a.do(ctx, "publish", func(ctx context.Context) error {
		var err error
		addr, err = a.backend.Put(ctx, data)
		if err != nil {
			return err
		}
		if addr == "" {
			return NewMalformedResponseError(nil, "publish response carries no address")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	slog.Info("published artifact", "address", addr, "bytes", len(data))
	return addr, nil
}

// Fetch retrieves the envelope stored at addr.
func (a *Adapter) Fetch(ctx context.Context, addr Address) (*envelope.Envelope, error) {
	if addr == "" {
		return nil, NewNotFoundError("empty address")
	}

	var env *envelope.Envelope
	err := a.do(ctx, "fetch", func(ctx context.Context) error {
		data, err := a.backend.Get(ctx, addr)
		if err != nil {
			return err
		}
		env, err = envelope.Parse(data)
		if err != nil {
			return NewMalformedResponseError(nil, fmt.Sprintf("document at %s is not an envelope: %v", addr, err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return env, nil
}

func (a *Adapter) do(ctx context.Context, op string, f func(context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	attempt := 0
	backoff := retry.WithMaxRetries(a.opts.MaxRetries, retry.NewExponential(a.opts.RetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := f(ctx)
		if err == nil {
			return nil
		}
		if IsUnreachable(err) {
			slog.Warn("artifact store call failed, retrying", "op", op, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})

	if err != nil {
		var se *StoreError
		if !errors.As(err, &se) && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
			err = NewUnreachableError(err, op+" timed out")
		}
	}

	metrics.ArtifactDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.ArtifactRequests.WithLabelValues(op, outcome(err)).Inc()
	if err != nil {
		slog.Error("artifact store call failed", "op", op, "attempts", attempt, "error", err)
	}
	return err
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var se *StoreError
	if errors.As(err, &se) {
		return string(se.Kind())
	}
	return "error"
}
