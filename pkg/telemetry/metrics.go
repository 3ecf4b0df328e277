package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the per-tick instruments. A nil *Metrics records nothing.
type Metrics struct {
	ticks      metric.Int64Counter
	failures   metric.Int64Counter
	decoyHits  metric.Int64Counter
	episodes   metric.Int64Counter
	reward     metric.Float64Histogram
	stepTime   metric.Float64Histogram
	episodeSum metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.ticks, err = meter.Int64Counter("decoyrange.ticks.total",
		metric.WithDescription("Completed environment ticks"),
		metric.WithUnit("{tick}"),
	); err != nil {
		return nil, fmt.Errorf("ticks counter: %w", err)
	}
	if m.failures, err = meter.Int64Counter("decoyrange.tick.errors.total",
		metric.WithDescription("Ticks aborted by an error"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, fmt.Errorf("failures counter: %w", err)
	}
	if m.decoyHits, err = meter.Int64Counter("decoyrange.red.decoy_hits.total",
		metric.WithDescription("Red actions that targeted a decoy"),
		metric.WithUnit("{action}"),
	); err != nil {
		return nil, fmt.Errorf("decoy hits counter: %w", err)
	}
	if m.episodes, err = meter.Int64Counter("decoyrange.episodes.total",
		metric.WithDescription("Completed episodes"),
		metric.WithUnit("{episode}"),
	); err != nil {
		return nil, fmt.Errorf("episodes counter: %w", err)
	}
	if m.reward, err = meter.Float64Histogram("decoyrange.tick.reward",
		metric.WithDescription("Scalar reward per tick"),
	); err != nil {
		return nil, fmt.Errorf("reward histogram: %w", err)
	}
	if m.stepTime, err = meter.Float64Histogram("decoyrange.tick.duration",
		metric.WithDescription("Wall time of one tick"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1),
	); err != nil {
		return nil, fmt.Errorf("duration histogram: %w", err)
	}
	if m.episodeSum, err = meter.Float64Histogram("decoyrange.episode.reward",
		metric.WithDescription("Total reward per episode"),
	); err != nil {
		return nil, fmt.Errorf("episode histogram: %w", err)
	}
	return m, nil
}

// Tick describes one completed tick.
type Tick struct {
	BlueAction string
	RedAction  string
	Reward     float64
	DecoyHit   bool
	Duration   time.Duration
}

func (m *Metrics) RecordTick(ctx context.Context, t Tick) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("blue.action", t.BlueAction),
		attribute.String("red.action", t.RedAction),
	)
	m.ticks.Add(ctx, 1, attrs)
	m.reward.Record(ctx, t.Reward, attrs)
	m.stepTime.Record(ctx, t.Duration.Seconds())
	if t.DecoyHit {
		m.decoyHits.Add(ctx, 1, metric.WithAttributes(attribute.String("red.action", t.RedAction)))
	}
}

// RecordFailure counts an aborted tick. stage names where it failed.
func (m *Metrics) RecordFailure(ctx context.Context, stage string, err error) {
	if m == nil || err == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("error.type", fmt.Sprintf("%T", err)),
	))
}

func (m *Metrics) RecordEpisode(ctx context.Context, totalReward float64) {
	if m == nil {
		return
	}
	m.episodes.Add(ctx, 1)
	m.episodeSum.Record(ctx, totalReward)
}
