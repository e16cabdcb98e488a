package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anithp/buddi-chain/internal/ingest"
	"github.com/anithp/buddi-chain/internal/metrics"
)

// runCycle is the single entry point for both the timer and manual trigger
// paths. It acquires the at-most-one-cycle guard, executes the cycle with
// panic containment, and finalizes counters, history and metrics. ran is
// false when another cycle holds the guard or the scheduler is not running.
func (s *Scheduler) runCycle(trigger ingest.CycleTrigger) (res ingest.CycleResult, ran bool) {
	if !s.beginCycle() {
		return ingest.CycleResult{}, false
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("cycle panicked", zap.Any("panic", r))
			res.Outcome = ingest.OutcomeFailed
			res.Err = fmt.Sprintf("cycle panic: %v", r)
			res.FailureKind = ingest.FailureUnknown
			if res.FinishedAt.IsZero() {
				res.FinishedAt = s.deps.Clock.Now()
			}
		}
		s.finishCycle(res)
		ran = true
	}()

	res = s.cycle(trigger)
	return res, true
}

// beginCycle is the check-and-set guard enforcing at most one concurrent
// cycle. It also resets the in-flight counters the cycle will publish to.
func (s *Scheduler) beginCycle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != ingest.PhaseRunning || s.cycleActive {
		return false
	}
	s.cycleActive = true
	s.inFlight = cycleCounters{}
	s.cycleDone = make(chan struct{})
	return true
}

// finishCycle records the result, updates the error counters and releases
// the cycle guard. It also promotes stopping to stopped when a stop raced
// past the grace period while this cycle was still draining.
func (s *Scheduler) finishCycle(res ingest.CycleResult) {
	s.mu.Lock()

	s.history = append(s.history, res)
	if limit := s.cfg.HistoryLimit; limit > 0 && len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}

	switch {
	case res.Outcome == ingest.OutcomeFailed:
		s.consecutiveErrors++
		s.lastError = res.Err
	case res.Outcome == ingest.OutcomeCompleted && res.Failed > 0:
		s.consecutiveErrors++
	case res.Outcome == ingest.OutcomeCompleted:
		s.consecutiveErrors = 0
		s.lastError = ""
	}

	s.cycleActive = false
	s.inFlight = cycleCounters{}
	close(s.cycleDone)

	promoted := false
	if s.phase == ingest.PhaseStopping {
		s.phase = ingest.PhaseStopped
		promoted = true
	}
	errs := s.consecutiveErrors
	s.mu.Unlock()

	metrics.ObserveCycle(string(res.Trigger), string(res.Outcome), res.FinishedAt.Sub(res.StartedAt))
	metrics.ObserveConversations(res.Processed, res.Skipped, res.Failed)
	metrics.SetConsecutiveErrors(errs)
	if promoted {
		metrics.SetSchedulerRunning(false)
	}

	s.log.Info("cycle finished",
		zap.String("trigger", string(res.Trigger)),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("seen", res.Seen),
		zap.Int("processed", res.Processed),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.String("error", res.Err),
	)
}

// cycle executes one fetch cycle: gap guard, source fetch for the window
// (lastSuccess, now], then sequential dedupe, enrich, anchor and persist for
// each record. Per-record failures never abort the batch.
func (s *Scheduler) cycle(trigger ingest.CycleTrigger) ingest.CycleResult {
	start := s.deps.Clock.Now()
	res := ingest.CycleResult{Trigger: trigger, StartedAt: start}

	s.mu.Lock()
	gap := s.cfg.MinFetchGap
	limit := s.cfg.MaxPerFetch
	since := s.lastSuccess
	last := s.lastAttempted
	s.mu.Unlock()

	if !last.IsZero() {
		if elapsed := start.Sub(last); elapsed < gap {
			s.log.Info("cycle skipped, minimum fetch gap not elapsed",
				zap.Duration("elapsed", elapsed),
				zap.Duration("min_gap", gap),
			)
			res.Outcome = ingest.OutcomeSkipped
			res.FinishedAt = s.deps.Clock.Now()
			return res
		}
	}

	s.mu.Lock()
	s.lastAttempted = start
	s.mu.Unlock()

	ctx, cancel := s.callContext()
	raws, err := s.deps.Source.Fetch(ctx, since, limit)
	cancel()
	if err != nil {
		res.Outcome = ingest.OutcomeFailed
		res.Err = err.Error()
		res.FailureKind = ingest.FailureKind(err)
		res.FinishedAt = s.deps.Clock.Now()
		s.log.Warn("source fetch failed",
			zap.String("failure_kind", res.FailureKind),
			zap.Error(err),
		)
		return res
	}

	// Source call succeeded: advance the fetch window regardless of how
	// individual records fare below. Re-fetching individually failed
	// records is deliberately traded away; the dedupe gate absorbs any
	// overlap.
	s.mu.Lock()
	s.lastSuccess = start
	s.mu.Unlock()

	res.Seen = len(raws)
	s.checkpoint(res)

	s.archiveBatch(start, raws)

	for _, raw := range raws {
		if s.halting() {
			s.log.Info("cycle draining early, stop requested")
			break
		}
		switch s.processRecord(raw) {
		case recordProcessed:
			res.Processed++
		case recordSkipped:
			res.Skipped++
		case recordFailed:
			res.Failed++
		}
		s.checkpoint(res)
	}

	res.Outcome = ingest.OutcomeCompleted
	res.FinishedAt = s.deps.Clock.Now()
	return res
}

type recordOutcome int

const (
	recordProcessed recordOutcome = iota
	recordSkipped
	recordFailed
)

// processRecord takes one conversation through dedupe, enrich, anchor and
// persist. Each external call carries its own bounded timeout detached from
// loop cancellation so a stop never interrupts an anchor or write mid-call.
func (s *Scheduler) processRecord(raw ingest.RawConversation) recordOutcome {
	ctx, cancel := s.callContext()
	exists, err := s.deps.Store.Exists(ctx, raw.ExternalID)
	cancel()
	if err != nil {
		s.log.Warn("dedupe check failed",
			zap.String("external_id", raw.ExternalID),
			zap.Error(err),
		)
		return recordFailed
	}
	if exists {
		return recordSkipped
	}

	enriched := s.deps.Enricher.Enrich(raw)

	ctx, cancel = s.callContext()
	anchor, err := s.deps.Anchorer.Anchor(ctx, enriched)
	cancel()
	if err != nil {
		s.log.Warn("anchoring failed",
			zap.String("external_id", raw.ExternalID),
			zap.String("failure_kind", ingest.FailureKind(err)),
			zap.Error(err),
		)
		return recordFailed
	}

	ctx, cancel = s.callContext()
	err = s.deps.Store.Save(ctx, enriched, anchor)
	cancel()
	if err != nil {
		s.log.Warn("persist failed",
			zap.String("external_id", raw.ExternalID),
			zap.Error(err),
		)
		return recordFailed
	}

	s.publishIngested(enriched, anchor)
	return recordProcessed
}

// checkpoint publishes cycle progress so Status snapshots taken mid-cycle
// reflect partial progress instead of stale pre-cycle data.
func (s *Scheduler) checkpoint(res ingest.CycleResult) {
	s.mu.Lock()
	s.inFlight = cycleCounters{
		seen:      res.Seen,
		processed: res.Processed,
		skipped:   res.Skipped,
		failed:    res.Failed,
	}
	s.mu.Unlock()
}

// halting reports whether a stop was requested; checked at record
// boundaries only.
func (s *Scheduler) halting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == ingest.PhaseStopping || s.phase == ingest.PhaseStopped
}

// archiveBatch writes the raw batch for auditing. Best effort: a failure is
// logged and never counted against the cycle.
func (s *Scheduler) archiveBatch(at time.Time, raws []ingest.RawConversation) {
	if s.deps.Archive == nil || len(raws) == 0 {
		return
	}
	data, err := json.Marshal(raws)
	if err != nil {
		s.log.Warn("marshal raw batch for archive failed", zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/batch-%s.json", at.UTC().Format("2006/01/02"), uuid.NewString())

	ctx, cancel := s.callContext()
	defer cancel()
	uri, err := s.deps.Archive.Put(ctx, path, data)
	if err != nil {
		s.log.Warn("archive raw batch failed", zap.String("path", path), zap.Error(err))
		return
	}
	if uri != "" {
		s.log.Debug("raw batch archived", zap.String("uri", uri))
	}
}

// publishIngested emits a conversation.ingested event. Best effort.
func (s *Scheduler) publishIngested(conv ingest.EnrichedConversation, anchor ingest.AnchorMetadata) {
	if s.deps.Publisher == nil {
		return
	}
	payload := map[string]any{
		"external_id": conv.ExternalID,
		"user_id":     conv.UserID,
		"anchor_id":   anchor.AnchorID,
		"token_id":    anchor.TokenID,
		"merkle_root": anchor.MerkleRoot,
		"fetched_at":  conv.FetchedAt,
	}

	ctx, cancel := s.callContext()
	defer cancel()
	if _, err := s.deps.Publisher.Publish(ctx, "conversation.ingested", payload); err != nil {
		s.log.Warn("publish ingestion event failed",
			zap.String("external_id", conv.ExternalID),
			zap.Error(err),
		)
	}
}

// callContext bounds one external call. The parent is context.Background()
// rather than the loop context: loop cancellation must not interrupt an
// anchor or persist call already in flight.
func (s *Scheduler) callContext() (context.Context, context.CancelFunc) {
	s.mu.Lock()
	timeout := s.cfg.CallTimeout
	s.mu.Unlock()
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}
