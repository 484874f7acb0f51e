package state

import (
	"context"
	"time"

	"github.com/AnatoleLucet/sigtree/internal"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ThunkMiddleware calls thunk actions with the dispatching store instead of
// routing them. It is installed on every store unless WithoutDefaultMiddleware.
func ThunkMiddleware(s *Store, action any, payload []any, next Next) (any, error) {
	switch fn := action.(type) {
	case Thunk:
		return fn(s, payload...)
	case func(*Store, ...any) (any, error):
		return fn(s, payload...)
	}

	return next(nil)
}

// ProtectorMiddleware forbids async scheduling (NewPromise, FrameDriver.Post)
// for the rest of the dispatch. Offenders panic with an *AsyncBlockedError.
// Actions must stay deterministic to be replayed.
func ProtectorMiddleware(_ *Store, _ any, _ []any, next Next) (any, error) {
	return internal.GetRuntime().BlockAsync(func() (any, error) {
		return next(nil)
	})
}

// LoggingMiddleware logs every dispatch reaching the root at debug level.
func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(s *Store, action any, payload []any, next Next) (any, error) {
		start := time.Now()
		result, err := next(nil)

		event := logger.Debug()
		if err != nil {
			event = logger.Warn().Err(err)
		}
		event.
			Str("action", ActionName(action)).
			Str("store", s.ID().String()).
			Int("payload", len(payload)).
			Dur("elapsed", time.Since(start)).
			Msg("dispatch")

		return result, err
	}
}

const defaultTracerName = "sigtree"

type tracingConfig struct {
	tracerName string
	provider   trace.TracerProvider
}

type TracingOption func(*tracingConfig)

func WithTracerName(name string) TracingOption {
	return func(c *tracingConfig) { c.tracerName = name }
}

// WithTracerProvider overrides the global otel provider.
func WithTracerProvider(tp trace.TracerProvider) TracingOption {
	return func(c *tracingConfig) { c.provider = tp }
}

// TracingMiddleware opens one span per dispatch reaching the root.
func TracingMiddleware(opts ...TracingOption) Middleware {
	cfg := tracingConfig{tracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&cfg)
	}

	provider := cfg.provider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	tracer := provider.Tracer(cfg.tracerName)

	return func(s *Store, action any, payload []any, next Next) (any, error) {
		name := ActionName(action)

		_, span := tracer.Start(
			context.Background(),
			"sigtree.dispatch "+name,
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("sigtree.action", name),
				attribute.String("sigtree.store_id", s.ID().String()),
				attribute.Int("sigtree.payload_len", len(payload)),
			),
		)
		defer span.End()

		result, err := next(nil)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return result, err
		}

		span.SetStatus(codes.Ok, "")
		return result, nil
	}
}
