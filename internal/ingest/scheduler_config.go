package ingest

import (
	"fmt"
	"time"
)

// Scheduler configuration bounds and defaults.
const (
	MinFetchInterval = 1 * time.Hour
	MaxFetchInterval = 24 * time.Hour
	MinFetchLimit    = 1
	MaxFetchLimit    = 1000

	DefaultFetchInterval = 2 * time.Hour
	DefaultMaxPerFetch   = 50
	DefaultMinFetchGap   = 1 * time.Hour
	DefaultRecoveryDelay = 5 * time.Minute
	DefaultHistoryLimit  = 100
	DefaultStopGrace     = 30 * time.Second
	DefaultCallTimeout   = 30 * time.Second
)

// SchedulerConfig holds the scheduler's runtime knobs. The first four are
// mutable via the control surface; the rest are fixed at startup.
type SchedulerConfig struct {
	FetchInterval   time.Duration `json:"fetch_interval"`
	MaxPerFetch     int           `json:"max_per_fetch"`
	MinFetchGap     time.Duration `json:"min_fetch_gap"`
	RecoveryDelay   time.Duration `json:"recovery_delay"`
	HistoryLimit    int           `json:"history_limit"`
	StopGracePeriod time.Duration `json:"stop_grace_period"`
	CallTimeout     time.Duration `json:"call_timeout"`
}

// DefaultSchedulerConfig returns the configuration used when nothing is set.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		FetchInterval:   DefaultFetchInterval,
		MaxPerFetch:     DefaultMaxPerFetch,
		MinFetchGap:     DefaultMinFetchGap,
		RecoveryDelay:   DefaultRecoveryDelay,
		HistoryLimit:    DefaultHistoryLimit,
		StopGracePeriod: DefaultStopGrace,
		CallTimeout:     DefaultCallTimeout,
	}
}

// ValidationError reports a rejected control-plane input. The receiving
// component's state is unchanged when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate enforces the configuration bounds.
func (c SchedulerConfig) Validate() error {
	if c.FetchInterval < MinFetchInterval || c.FetchInterval > MaxFetchInterval {
		return &ValidationError{
			Field:  "fetch_interval",
			Reason: fmt.Sprintf("must be between %s and %s", MinFetchInterval, MaxFetchInterval),
		}
	}
	if c.MaxPerFetch < MinFetchLimit || c.MaxPerFetch > MaxFetchLimit {
		return &ValidationError{
			Field:  "max_per_fetch",
			Reason: fmt.Sprintf("must be between %d and %d", MinFetchLimit, MaxFetchLimit),
		}
	}
	if c.MinFetchGap < 0 {
		return &ValidationError{Field: "min_fetch_gap", Reason: "must not be negative"}
	}
	if c.RecoveryDelay <= 0 {
		return &ValidationError{Field: "recovery_delay", Reason: "must be positive"}
	}
	if c.HistoryLimit <= 0 {
		return &ValidationError{Field: "history_limit", Reason: "must be positive"}
	}
	return nil
}

// EffectiveInterval is the fetch interval actually used for scheduling: the
// configured interval, never less than the minimum inter-fetch gap.
func (c SchedulerConfig) EffectiveInterval() time.Duration {
	if c.FetchInterval < c.MinFetchGap {
		return c.MinFetchGap
	}
	return c.FetchInterval
}

// SchedulerConfigUpdate is a partial configuration change; nil fields retain
// their current values.
type SchedulerConfigUpdate struct {
	FetchIntervalHours *int `json:"fetch_interval_hours,omitempty"`
	MaxPerFetch        *int `json:"max_per_fetch,omitempty"`
}

// Apply returns a copy of c with the update applied and validated.
func (u SchedulerConfigUpdate) Apply(c SchedulerConfig) (SchedulerConfig, error) {
	next := c
	if u.FetchIntervalHours != nil {
		next.FetchInterval = time.Duration(*u.FetchIntervalHours) * time.Hour
	}
	if u.MaxPerFetch != nil {
		next.MaxPerFetch = *u.MaxPerFetch
	}
	if err := next.Validate(); err != nil {
		return SchedulerConfig{}, err
	}
	return next, nil
}
