package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"anniversary_server/apperrors"
	"anniversary_server/clock"
	"anniversary_server/logger"
)

// RoundSummary aggregates one pass of ticks.
type RoundSummary struct {
	Relationships int                 `json:"relationships"`
	Outcomes      map[TickOutcome]int `json:"outcomes"`
	Delivered     int                 `json:"delivered"`
	// Retry lists relationships whose tick failed with a retryable error.
	Retry []string `json:"retry,omitempty"`
	// Failed lists relationships whose tick failed terminally.
	Failed []string `json:"failed,omitempty"`
}

// TickRunner is the recurring trigger for DeliveryScheduler. It runs one
// round at start so a restart recovers whatever the downtime left due.
type TickRunner struct {
	Scheduler     *DeliveryScheduler
	Pairing       *PairingService
	Clock         clock.Clock
	Interval      time.Duration
	RetryInterval time.Duration
	Workers       int
}

func NewTickRunner(scheduler *DeliveryScheduler, pairing *PairingService, clk clock.Clock, interval, retry time.Duration, workers int) *TickRunner {
	if clk == nil {
		clk = clock.System()
	}
	return &TickRunner{
		Scheduler:     scheduler,
		Pairing:       pairing,
		Clock:         clk,
		Interval:      interval,
		RetryInterval: retry,
		Workers:       workers,
	}
}

// Run ticks every active relationship each Interval until ctx is done.
// Relationships whose tick failed retryably are ticked again every
// RetryInterval in between; a full round still starts once Interval has
// elapsed, whatever is pending.
func (r *TickRunner) Run(ctx context.Context) error {
	log := logger.Get()
	log.Info().Dur("interval", r.Interval).Dur("retryInterval", r.RetryInterval).Int("workers", r.Workers).Msg("⏰ tick runner started")

	var (
		pending  []string
		nextFull time.Time
	)
	for {
		var (
			summary RoundSummary
			err     error
		)
		if len(pending) == 0 || !time.Now().Before(nextFull) {
			nextFull = time.Now().Add(r.Interval)
			summary, err = r.RunOnce(ctx, r.Clock.Now())
		} else {
			summary = r.TickAll(ctx, pending, r.Clock.Now())
		}

		wait := time.Until(nextFull)
		switch {
		case ctx.Err() != nil:
			log.Info().Msg("tick runner stopped")
			return nil
		case err != nil:
			log.Error().Err(err).Msg("❌ tick round failed to list relationships")
			pending = nil
			if apperrors.Retryable(err) && r.RetryInterval < wait {
				wait = r.RetryInterval
			}
		default:
			pending = summary.Retry
			if len(pending) > 0 && r.RetryInterval < wait {
				wait = r.RetryInterval
			}
		}
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("tick runner stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce ticks every active relationship at now.
func (r *TickRunner) RunOnce(ctx context.Context, now time.Time) (RoundSummary, error) {
	rels, err := r.Pairing.ListActive(ctx)
	if err != nil {
		return RoundSummary{}, err
	}
	ids := make([]string, 0, len(rels))
	for _, rel := range rels {
		ids = append(ids, rel.ID)
	}
	return r.TickAll(ctx, ids, now), nil
}

// TickAll ticks the given relationships in parallel, at most Workers at a time.
func (r *TickRunner) TickAll(ctx context.Context, ids []string, now time.Time) RoundSummary {
	summary := RoundSummary{Relationships: len(ids), Outcomes: make(map[TickOutcome]int)}
	workers := r.Workers
	if workers < 1 {
		workers = 1
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, workers)
	)
	for _, id := range ids {
		select {
		case <-ctx.Done():
			wg.Wait()
			return summary
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := r.Scheduler.Tick(ctx, id, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.WithRelationship(id).Warn().Err(err).Bool("retryable", apperrors.Retryable(err)).Msg("⚠️ tick failed")
				if apperrors.Retryable(err) {
					summary.Retry = append(summary.Retry, id)
				} else {
					summary.Failed = append(summary.Failed, id)
				}
				if result == nil {
					return
				}
			}
			if result.Outcome != "" {
				summary.Outcomes[result.Outcome]++
			}
			summary.Delivered += len(result.Delivered)
		}(id)
	}
	wg.Wait()

	sort.Strings(summary.Retry)
	sort.Strings(summary.Failed)
	logger.Get().Info().
		Int("relationships", summary.Relationships).
		Int("delivered", summary.Delivered).
		Int("retry", len(summary.Retry)).
		Int("failed", len(summary.Failed)).
		Msg("tick round finished")
	return summary
}
