package synthesis

import (
	"context"
	"time"

	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Summarizer dispatches light summaries for a result set, spacing requests apart.
type Summarizer struct {
	store   *Store
	stagger time.Duration
	logger  *zap.Logger
}

// NewSummarizer creates a Summarizer. Request i of a batch is sent after i*stagger.
func NewSummarizer(store *Store, stagger time.Duration, logger *zap.Logger) *Summarizer {
	return &Summarizer{store: store, stagger: stagger, logger: utils.OrNop(logger)}
}

type pending struct {
	key Key
	job Job
}

// SummarizeFocusGroups requests a light summary for every focus group that does not have
// one yet and waits until all of them are complete or failed.
func (s *Summarizer) SummarizeFocusGroups(ctx context.Context, query string, results []models.GroupedResult) error {
	var batch []pending
	for _, g := range results {
		batch = append(batch, pending{
			key: Key{Kind: FocusGroupSummary, ID: g.FocusGroupID},
			job: FocusGroupSummaryJob(query, g),
		})
	}
	return s.dispatch(ctx, batch)
}

// SummarizeRaces requests a light summary for every race that does not have one yet and
// waits until all of them are complete or failed.
func (s *Summarizer) SummarizeRaces(ctx context.Context, query string, lessons []models.StrategyGroupedResult) error {
	var batch []pending
	for _, l := range lessons {
		batch = append(batch, pending{
			key: Key{Kind: StrategySummary, ID: l.RaceID},
			job: StrategySummaryJob(query, l),
		})
	}
	return s.dispatch(ctx, batch)
}

// dispatch starts the idle keys of batch. Requests still waiting for their slot when the
// store is reset are dropped.
func (s *Summarizer) dispatch(ctx context.Context, batch []pending) error {
	epoch := s.store.Epoch()
	var todo []pending
	for _, p := range batch {
		if s.store.Get(p.key).Status == StatusIdle {
			todo = append(todo, p)
		}
	}
	if len(todo) == 0 {
		return nil
	}
	s.logger.Debug("dispatching summaries", zap.Int("count", len(todo)), zap.Duration("stagger", s.stagger))

	var g errgroup.Group
	for i, p := range todo {
		delay := time.Duration(i) * s.stagger
		g.Go(func() error {
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				}
			}
			if !s.store.StartIn(ctx, epoch, p.key, p.job) && s.store.Epoch() != epoch {
				return nil
			}
			_, err := s.store.Wait(ctx, p.key)
			return err
		})
	}
	return g.Wait()
}
