// Package telemetry wires the actor Kernel to an OpenTelemetry
// TracerProvider/MeterProvider pair; the pool Supervisor does not record
// through it. A nil *Telemetry is valid everywhere it
// is accepted: every recording method is a no-op on a nil receiver, so a
// pool process that never configured a provider pays no cost and needs no
// guard at call sites.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/luweizheng/xoscar"

// Telemetry holds the counters this runtime reports: actors created and
// destroyed, messages delivered locally, and sub-pool restarts, mirroring
// the signals a pool operator needs to answer "is this pool process
// healthy" without reading logs.
type Telemetry struct {
	TracerProvider trace.TracerProvider
	Tracer         trace.Tracer

	MeterProvider metric.MeterProvider
	Meter         metric.Meter

	actorsCreated    metric.Int64Counter
	actorsDestroyed  metric.Int64Counter
	messagesHandled  metric.Int64Counter
	actorsQuarantined metric.Int64Counter
	subPoolRestarts  metric.Int64Counter
}

// New builds a Telemetry against the globally registered providers (set by
// the host process via otel.SetTracerProvider/SetMeterProvider before
// xoscpool starts; an unconfigured process gets otel's no-op providers,
// making every recording call here cheap and harmless).
func New() *Telemetry {
	t := &Telemetry{
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),
	}
	t.Tracer = t.TracerProvider.Tracer(instrumentationName)
	t.Meter = t.MeterProvider.Meter(instrumentationName)

	var err error
	if t.actorsCreated, err = t.Meter.Int64Counter(
		"xoscar_actors_created_total",
		metric.WithDescription("Actors created by a kernel"),
	); err != nil {
		otel.Handle(err)
	}
	if t.actorsDestroyed, err = t.Meter.Int64Counter(
		"xoscar_actors_destroyed_total",
		metric.WithDescription("Actors destroyed by a kernel"),
	); err != nil {
		otel.Handle(err)
	}
	if t.messagesHandled, err = t.Meter.Int64Counter(
		"xoscar_messages_handled_total",
		metric.WithDescription("Messages delivered to a local actor mailbox"),
	); err != nil {
		otel.Handle(err)
	}
	if t.actorsQuarantined, err = t.Meter.Int64Counter(
		"xoscar_actors_quarantined_total",
		metric.WithDescription("Actors quarantined after exceeding the crash-loop threshold"),
	); err != nil {
		otel.Handle(err)
	}
	if t.subPoolRestarts, err = t.Meter.Int64Counter(
		"xoscar_subpool_restarts_total",
		metric.WithDescription("Sub-pool restarts performed by the pool supervisor's health probe"),
	); err != nil {
		otel.Handle(err)
	}
	return t
}

func (t *Telemetry) ActorCreated(ctx context.Context, classID string) {
	if t == nil || t.actorsCreated == nil {
		return
	}
	t.actorsCreated.Add(ctx, 1, metric.WithAttributes(classAttr(classID)))
}

func (t *Telemetry) ActorDestroyed(ctx context.Context, classID string) {
	if t == nil || t.actorsDestroyed == nil {
		return
	}
	t.actorsDestroyed.Add(ctx, 1, metric.WithAttributes(classAttr(classID)))
}

func (t *Telemetry) MessageHandled(ctx context.Context, classID string) {
	if t == nil || t.messagesHandled == nil {
		return
	}
	t.messagesHandled.Add(ctx, 1, metric.WithAttributes(classAttr(classID)))
}

func (t *Telemetry) ActorQuarantined(ctx context.Context, classID string) {
	if t == nil || t.actorsQuarantined == nil {
		return
	}
	t.actorsQuarantined.Add(ctx, 1, metric.WithAttributes(classAttr(classID)))
}

func (t *Telemetry) SubPoolRestarted(ctx context.Context, index int) {
	if t == nil || t.subPoolRestarts == nil {
		return
	}
	t.subPoolRestarts.Add(ctx, 1)
}

// StartSpan is a no-op-safe wrapper around Tracer.Start for call sites that
// may run before a Telemetry is configured.
func (t *Telemetry) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if t == nil || t.Tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.Tracer.Start(ctx, name)
}
