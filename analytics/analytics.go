// Package analytics computes per-user task counters. Two interchangeable
// strategies exist: Fold loads whole boards and reduces them in the process,
// Pipeline asks the store to reduce them and only receives the counters.
package analytics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"workboard-api/domain"
)

const (
	StrategyFold     = "fold"
	StrategyPipeline = "pipeline"

	tracerName = "workboard-api/analytics"
)

// Aggregator produces the analytics of one user.
type Aggregator interface {
	Summarize(ctx context.Context, userID string) (domain.Analytics, error)
}

// BoardLoader returns every board owned by the user with its lists.
type BoardLoader interface {
	LoadBoards(ctx context.Context, userID string) ([]domain.Board, error)
}

// PipelineStore reduces the user's boards inside the storage engine.
type PipelineStore interface {
	AggregateAnalytics(ctx context.Context, userID string, now time.Time) (domain.Analytics, error)
}

// Fold is the in-process strategy.
type Fold struct {
	boards BoardLoader
	now    func() time.Time
}

func NewFold(boards BoardLoader) *Fold {
	return &Fold{boards: boards, now: time.Now}
}

func (f *Fold) Summarize(ctx context.Context, userID string) (domain.Analytics, error) {
	ctx, span := startSpan(ctx, StrategyFold)
	defer span.End()

	now := f.now()
	boards, err := f.boards.LoadBoards(ctx, userID)
	if err != nil {
		return domain.Analytics{}, failSpan(span, err)
	}
	span.SetAttributes(attribute.Int("analytics.boards", len(boards)))
	return finishSpan(span, domain.Tally(boards, now)), nil
}

// Pipeline is the store-side strategy.
type Pipeline struct {
	store PipelineStore
	now   func() time.Time
}

func NewPipeline(store PipelineStore) *Pipeline {
	return &Pipeline{store: store, now: time.Now}
}

func (p *Pipeline) Summarize(ctx context.Context, userID string) (domain.Analytics, error) {
	ctx, span := startSpan(ctx, StrategyPipeline)
	defer span.End()

	a, err := p.store.AggregateAnalytics(ctx, userID, p.now())
	if err != nil {
		return domain.Analytics{}, failSpan(span, err)
	}
	return finishSpan(span, a), nil
}

// New selects a strategy by name. The pipeline strategy needs a store that
// implements PipelineStore.
func New(strategy string, boards BoardLoader) (Aggregator, error) {
	switch strategy {
	case "", StrategyFold:
		return NewFold(boards), nil
	case StrategyPipeline:
		ps, ok := boards.(PipelineStore)
		if !ok {
			return nil, fmt.Errorf("analytics: store %T cannot run the pipeline strategy", boards)
		}
		return NewPipeline(ps), nil
	default:
		return nil, fmt.Errorf("analytics: unknown strategy %q", strategy)
	}
}

func startSpan(ctx context.Context, strategy string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "analytics.summarize",
		trace.WithAttributes(attribute.String("analytics.strategy", strategy)))
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func finishSpan(span trace.Span, a domain.Analytics) domain.Analytics {
	span.SetAttributes(
		attribute.Int("analytics.total_tasks", a.TotalTasks),
		attribute.Int("analytics.completed_tasks", a.CompletedTasks),
		attribute.Int("analytics.overdue_tasks", a.OverdueTasks),
	)
	span.SetStatus(codes.Ok, "")
	return a
}
