// Package refresh calls the credential refresh endpoint with a single-flight
// guard: while one call is outstanding every other attempt returns
// ErrRefreshInFlight immediately instead of queueing behind it.
package refresh

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-session-keeper/expiry"
	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/jrsteele09/go-session-keeper/refresh"

// Refresher guards an Endpoint so at most one refresh is outstanding.
type Refresher struct {
	endpoint Endpoint
	clock    expiry.Clock
	timeout  time.Duration
	tracer   trace.Tracer
	logger   zerolog.Logger
	inFlight atomic.Bool
}

type RefresherOption func(*Refresher)

// WithClock sets the clock used to turn lifetimes into expiry instants.
func WithClock(clock expiry.Clock) RefresherOption {
	return func(r *Refresher) {
		r.clock = clock
	}
}

// WithTimeout bounds each endpoint call. Zero means no bound beyond the
// caller's context.
func WithTimeout(timeout time.Duration) RefresherOption {
	return func(r *Refresher) {
		r.timeout = timeout
	}
}

func WithTracer(tracer trace.Tracer) RefresherOption {
	return func(r *Refresher) {
		r.tracer = tracer
	}
}

func WithLogger(logger zerolog.Logger) RefresherOption {
	return func(r *Refresher) {
		r.logger = logger
	}
}

func NewRefresher(endpoint Endpoint, options ...RefresherOption) *Refresher {
	r := &Refresher{
		endpoint: endpoint,
		tracer:   noop.NewTracerProvider().Tracer(tracerName),
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(r)
	}
	r.logger = r.logger.With().Str("component", "refresh").Logger()
	return r
}

// InFlight reports whether a refresh call is outstanding.
func (r *Refresher) InFlight() bool {
	return r.inFlight.Load()
}

// Refresh renews the credential and returns its new absolute expiry, which
// is always strictly after previous when previous is set. It returns
// ErrRefreshInFlight without contacting the endpoint if another call is
// outstanding. The in-flight flag is cleared on every return path, panics
// included.
func (r *Refresher) Refresh(ctx context.Context, previous time.Time) (next time.Time, err error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return time.Time{}, ErrRefreshInFlight
	}
	defer r.inFlight.Store(false)

	ctx, span := r.tracer.Start(ctx, "session.refresh")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.logger.Warn().Err(err).Msg("refresh failed")
			return
		}
		span.SetAttributes(attribute.Int64("session.expiry_ms", next.UnixMilli()))
		r.logger.Info().Time("expiry", next).Msg("refreshed")
	}()
	defer func() {
		if p := recover(); p != nil {
			next, err = time.Time{}, fmt.Errorf("%w: %v", ErrRefreshPanicked, p)
		}
	}()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	r.logger.Debug().Time("previous", previous).Msg("refreshing")
	lifetime, err := r.endpoint.Refresh(ctx)
	if err != nil {
		if errors.Is(err, ErrCredentialRejected) || errors.Is(err, ErrRefreshFailed) || errors.Is(err, ErrMissingLifetime) {
			return time.Time{}, err
		}
		return time.Time{}, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if lifetime <= 0 {
		return time.Time{}, errors.Wrapf(ErrMissingLifetime, "lifetime %s", lifetime)
	}

	next = r.clock.Expiry(lifetime)
	if !previous.IsZero() && !next.After(previous) {
		return time.Time{}, errors.Wrapf(ErrExpiryNotAdvanced, "new expiry %s, previous %s", next, previous)
	}
	return next, nil
}
