package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the name used for OTEL instrumentation.
const InstrumentationName = "github.com/fyrsmithlabs/actiond/internal/llm"

// Instruments holds the tracer and metrics recorded around each call.
type Instruments struct {
	tracer   trace.Tracer
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewInstruments creates instruments from the given providers. Nil
// providers fall back to the global ones.
func NewInstruments(tp trace.TracerProvider, mp metric.MeterProvider) (*Instruments, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(InstrumentationName)

	calls, err := meter.Int64Counter(
		"llm.calls.total",
		metric.WithDescription("Text generation calls by stage and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"llm.call.duration",
		metric.WithDescription("Text generation call latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Instruments{
		tracer:   tp.Tracer(InstrumentationName),
		calls:    calls,
		duration: duration,
	}, nil
}

// WithInstrumentation wraps each call in a span and records call metrics
// tagged with stage. Instruments that fail to initialize are skipped.
func WithInstrumentation(stage string) Middleware {
	inst, err := NewInstruments(nil, nil)
	if err != nil {
		return func(next Client) Client { return next }
	}
	return inst.Middleware(stage)
}

// Middleware returns a Middleware recording with these instruments.
func (in *Instruments) Middleware(stage string) Middleware {
	stageAttr := attribute.String("stage", stage)
	return func(next Client) Client {
		return ClientFunc(func(ctx context.Context, prompt string) (string, error) {
			ctx, span := in.tracer.Start(ctx, "llm.complete",
				trace.WithAttributes(stageAttr, attribute.Int("prompt.length", len(prompt))),
			)
			defer span.End()

			start := time.Now()
			out, err := next.Complete(ctx, prompt)
			elapsed := time.Since(start).Seconds()

			status := "ok"
			if err != nil {
				status = "error"
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetAttributes(attribute.Int("response.length", len(out)))
			}

			attrs := metric.WithAttributes(stageAttr, attribute.String("status", status))
			in.calls.Add(ctx, 1, attrs)
			in.duration.Record(ctx, elapsed, metric.WithAttributes(stageAttr))
			return out, err
		})
	}
}
