// Package scheduler runs the recurring ingestion loop: it periodically
// fetches conversation summaries from the configured source, deduplicates
// them against the store, enriches and anchors each new one, and persists
// the result. A control surface exposes start/stop, manual triggering,
// live configuration updates and status snapshots.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anithp/buddi-chain/internal/clock/system"
	"github.com/anithp/buddi-chain/internal/ingest"
	"github.com/anithp/buddi-chain/internal/metrics"
)

// Deps are the collaborators a Scheduler drives. Source, Store, Enricher and
// Anchorer are required; Archive and Publisher are optional side channels.
type Deps struct {
	Source    ingest.Source
	Store     ingest.ConversationStore
	Enricher  ingest.Enricher
	Anchorer  ingest.Anchorer
	Archive   ingest.Archive
	Publisher ingest.Publisher
	Clock     ingest.Clock
	Logger    *zap.Logger
}

// Scheduler owns all ingestion control-plane state. Every mutation goes
// through mu, so status reads are always consistent snapshots. At most one
// cycle runs at a time, enforced by the cycleActive check-and-set in
// beginCycle; the timer and manual-trigger paths both funnel through it.
type Scheduler struct {
	deps Deps
	log  *zap.Logger

	mu          sync.Mutex
	cfg         ingest.SchedulerConfig
	phase       ingest.Phase
	cycleActive bool

	lastSuccess   time.Time
	lastAttempted time.Time

	consecutiveErrors int
	lastError         string
	history           []ingest.CycleResult
	inFlight          cycleCounters

	loopCancel context.CancelFunc
	loopDone   chan struct{}
	cycleDone  chan struct{}
	reschedule chan time.Duration
}

type cycleCounters struct {
	seen, processed, skipped, failed int
}

// New constructs a stopped Scheduler. The configuration is assumed to have
// been validated by the caller; subsequent updates go through UpdateConfig.
func New(cfg ingest.SchedulerConfig, deps Deps) (*Scheduler, error) {
	if deps.Source == nil || deps.Store == nil || deps.Enricher == nil || deps.Anchorer == nil {
		return nil, fmt.Errorf("scheduler requires source, store, enricher and anchorer")
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	metrics.Init()
	return &Scheduler{
		deps:       deps,
		log:        deps.Logger.Named("scheduler"),
		cfg:        cfg,
		phase:      ingest.PhaseStopped,
		reschedule: make(chan time.Duration, 1),
	}, nil
}

// Start launches the timer loop. It is idempotent: calling it while already
// running reports the current phase without creating a second loop. The
// first cycle fires after max(0, minGap-sinceLastAttempt).
func (s *Scheduler) Start() ingest.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == ingest.PhaseRunning || s.phase == ingest.PhaseStarting || s.phase == ingest.PhaseStopping {
		return s.phase
	}

	s.phase = ingest.PhaseStarting

	// Drop any reschedule left over from a previous run.
	select {
	case <-s.reschedule:
	default:
	}

	initial := time.Duration(0)
	if !s.lastAttempted.IsZero() {
		if remaining := s.cfg.MinFetchGap - s.deps.Clock.Now().Sub(s.lastAttempted); remaining > 0 {
			initial = remaining
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.loopCancel = cancel
	s.loopDone = make(chan struct{})
	s.phase = ingest.PhaseRunning
	metrics.SetSchedulerRunning(true)

	go s.loop(ctx, s.loopDone, initial)

	s.log.Info("scheduler started", zap.Duration("first_cycle_in", initial))
	return s.phase
}

// Stop cancels the timer loop and waits up to the configured grace period
// for an in-flight cycle to reach its next record boundary. On timeout it
// returns with the phase still stopping; the cycle promotes the phase to
// stopped when it finishes. Stop is idempotent.
func (s *Scheduler) Stop() ingest.Phase {
	s.mu.Lock()
	if s.phase == ingest.PhaseStopped || s.phase == ingest.PhaseStopping {
		phase := s.phase
		s.mu.Unlock()
		return phase
	}
	s.phase = ingest.PhaseStopping
	cancel := s.loopCancel
	loopDone := s.loopDone
	var cycleDone chan struct{}
	if s.cycleActive {
		cycleDone = s.cycleDone
	}
	grace := s.cfg.StopGracePeriod
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	deadline := time.NewTimer(grace)
	defer deadline.Stop()

	if loopDone != nil {
		select {
		case <-loopDone:
		case <-deadline.C:
			s.log.Warn("stop grace period exceeded waiting for timer loop")
			return ingest.PhaseStopping
		}
	}
	if cycleDone != nil {
		select {
		case <-cycleDone:
		case <-deadline.C:
			s.log.Warn("stop grace period exceeded waiting for in-flight cycle")
			return ingest.PhaseStopping
		}
	}

	s.mu.Lock()
	s.phase = ingest.PhaseStopped
	s.mu.Unlock()
	metrics.SetSchedulerRunning(false)

	s.log.Info("scheduler stopped")
	return ingest.PhaseStopped
}

// TriggerFetch runs a cycle immediately. If a cycle is already in flight
// (or the scheduler is not running) it reports busy without starting a
// second one. A successful manual run reschedules the next timer-driven
// cycle relative to its own completion.
func (s *Scheduler) TriggerFetch() (ingest.CycleResult, bool) {
	res, ran := s.runCycle(ingest.TriggerManual)
	if !ran {
		return ingest.CycleResult{}, true
	}
	s.requestReschedule(s.nextDelay(res))
	return res, false
}

// UpdateConfig applies a partial configuration change atomically. Invalid
// updates are rejected with a ValidationError and leave state untouched.
// When running, the pending timer is rescheduled to the new interval
// without interrupting an in-flight cycle.
func (s *Scheduler) UpdateConfig(update ingest.SchedulerConfigUpdate) (ingest.SchedulerConfig, error) {
	s.mu.Lock()
	next, err := update.Apply(s.cfg)
	if err != nil {
		s.mu.Unlock()
		return ingest.SchedulerConfig{}, err
	}
	s.cfg = next
	running := s.phase == ingest.PhaseRunning
	delay := next.EffectiveInterval()
	s.mu.Unlock()

	if running {
		s.requestReschedule(delay)
	}
	s.log.Info("scheduler config updated",
		zap.Duration("fetch_interval", next.FetchInterval),
		zap.Int("max_per_fetch", next.MaxPerFetch),
	)
	return next, nil
}

// Status returns a snapshot of scheduler state. It never blocks behind an
// in-flight cycle: the cycle publishes progress to the in-flight counters
// at record boundaries, and the snapshot merges those.
func (s *Scheduler) Status() ingest.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]ingest.CycleResult, len(s.history))
	copy(history, s.history)

	return ingest.SchedulerStatus{
		Phase:               s.phase,
		Config:              s.cfg,
		LastSuccessfulFetch: s.lastSuccess,
		LastAttemptedFetch:  s.lastAttempted,
		ConsecutiveErrors:   s.consecutiveErrors,
		LastError:           s.lastError,
		CycleInFlight:       s.cycleActive,
		InFlightSeen:        s.inFlight.seen,
		InFlightProcessed:   s.inFlight.processed,
		InFlightSkipped:     s.inFlight.skipped,
		InFlightFailed:      s.inFlight.failed,
		History:             history,
	}
}

// loop is the single timer-driven goroutine. Reschedule requests reset the
// pending timer; cancellation exits without touching an in-flight manual
// cycle (Stop waits for that separately).
func (s *Scheduler) loop(ctx context.Context, done chan struct{}, initial time.Duration) {
	defer close(done)

	timer := time.NewTimer(initial)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-s.reschedule:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d)
		case <-timer.C:
			res, ran := s.runCycle(ingest.TriggerTimer)
			if !ran {
				// A manual cycle is in flight; it reschedules on completion.
				timer.Reset(s.effectiveInterval())
				continue
			}
			timer.Reset(s.nextDelay(res))
		}
	}
}

func (s *Scheduler) requestReschedule(d time.Duration) {
	select {
	case s.reschedule <- d:
	default:
	}
}

func (s *Scheduler) effectiveInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.EffectiveInterval()
}

// nextDelay picks the wait before the next timer-driven cycle: the fixed
// recovery delay after a source failure, the remaining minimum gap after a
// skip, and the effective interval otherwise.
func (s *Scheduler) nextDelay(res ingest.CycleResult) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch res.Outcome {
	case ingest.OutcomeFailed:
		return s.cfg.RecoveryDelay
	case ingest.OutcomeSkipped:
		if !s.lastAttempted.IsZero() {
			if remaining := s.cfg.MinFetchGap - s.deps.Clock.Now().Sub(s.lastAttempted); remaining > 0 {
				return remaining
			}
		}
		return s.cfg.EffectiveInterval()
	default:
		return s.cfg.EffectiveInterval()
	}
}
