package session

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metric names.
const (
	MetricWrites           = "sessionstore.writes"
	MetricRekeys           = "sessionstore.rekeys"
	MetricLockAcquisitions = "sessionstore.lock_acquisitions"
)

// Write modes recorded on MetricWrites.
const (
	modeInsert = "insert"
	modeMerge  = "merge"
)

type instruments struct {
	writes metric.Int64Counter
	rekeys metric.Int64Counter
	locks  metric.Int64Counter
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}

	writes, err := meter.Int64Counter(MetricWrites,
		metric.WithDescription("Session writes by outcome and mode."))
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", MetricWrites, err)
	}
	rekeys, err := meter.Int64Counter(MetricRekeys,
		metric.WithDescription("Session id rotations by outcome."))
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", MetricRekeys, err)
	}
	locks, err := meter.Int64Counter(MetricLockAcquisitions,
		metric.WithDescription("Exclusive row fetches that took the write lock."))
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", MetricLockAcquisitions, err)
	}

	return &instruments{writes: writes, rekeys: rekeys, locks: locks}, nil
}

func outcome(ok bool) attribute.KeyValue {
	if ok {
		return attribute.String("outcome", "ok")
	}
	return attribute.String("outcome", "error")
}

func (m *instruments) recordWrite(ctx context.Context, mode string, ok bool) {
	m.writes.Add(ctx, 1, metric.WithAttributes(outcome(ok), attribute.String("mode", mode)))
}

func (m *instruments) recordRekey(ctx context.Context, ok bool) {
	m.rekeys.Add(ctx, 1, metric.WithAttributes(outcome(ok)))
}

func (m *instruments) recordLock(ctx context.Context) {
	m.locks.Add(ctx, 1)
}
