// Package ingest defines core types shared across subsystems.
package ingest

import (
	"encoding/json"
	"time"
)

// RawConversation is a conversation summary as returned by the Buddi API.
// It is immutable once fetched and owned by a single fetch cycle.
type RawConversation struct {
	ExternalID  string          `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	Title       string          `json:"title"`
	Overview    string          `json:"overview"`
	Category    string          `json:"category"`
	Emoji       string          `json:"emoji"`
	Language    string          `json:"language"`
	Source      string          `json:"source"`
	ActionItems []string        `json:"action_items"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Analytics holds the derived fields produced by the enrichment step.
type Analytics struct {
	Sentiment       float64  `json:"sentiment"`
	SentimentLabel  string   `json:"sentiment_label"`
	Topics          []string `json:"topics"`
	Keywords        []string `json:"keywords"`
	QualityScore    float64  `json:"quality_score"`
	EngagementScore float64  `json:"engagement_score"`
}

// EnrichedConversation is a RawConversation plus analytics, ready to anchor.
type EnrichedConversation struct {
	RawConversation
	Analytics Analytics `json:"analytics"`
	UserID    string    `json:"user_id"`
	FetchedAt time.Time `json:"fetched_at"`
}

// AnchorMetadata is the result of anchoring a conversation on the ledger.
// It is produced by the Anchorer and consumed once by the store.
type AnchorMetadata struct {
	AnchorID         string    `json:"anchor_id"`
	TokenID          string    `json:"token_id"`
	MerkleRoot       string    `json:"merkle_root"`
	TokenURI         string    `json:"token_uri"`
	RegistryContract string    `json:"registry_contract"`
	NFTContract      string    `json:"nft_contract"`
	AnchoredAt       time.Time `json:"anchored_at"`
}

// StoredConversation is a persisted conversation row returned by list queries.
type StoredConversation struct {
	ExternalID      string    `json:"external_id"`
	UserID          string    `json:"user_id"`
	AnchorID        string    `json:"anchor_id"`
	TokenID         string    `json:"token_id"`
	Summary         string    `json:"summary"`
	Sentiment       float64   `json:"sentiment"`
	SentimentLabel  string    `json:"sentiment_label"`
	QualityScore    float64   `json:"quality_score"`
	EngagementScore float64   `json:"engagement_score"`
	MerkleRoot      string    `json:"merkle_root"`
	CreatedAt       time.Time `json:"created_at"`
}

// CycleTrigger identifies what started a fetch cycle.
type CycleTrigger string

// Cycle trigger values surfaced in cycle results.
const (
	TriggerTimer  CycleTrigger = "timer"
	TriggerManual CycleTrigger = "manual"
)

// CycleOutcome is the terminal classification of a fetch cycle.
type CycleOutcome string

// Cycle outcome values.
const (
	// OutcomeCompleted means the source call succeeded; individual
	// conversations may still have failed.
	OutcomeCompleted CycleOutcome = "completed"
	// OutcomeSkipped means the cycle ended before fetching, either because
	// the minimum inter-fetch gap had not elapsed or a stop was requested.
	OutcomeSkipped CycleOutcome = "skipped"
	// OutcomeFailed means the source call itself failed.
	OutcomeFailed CycleOutcome = "failed"
)

// CycleResult summarizes one fetch cycle. The scheduler retains a bounded
// history of these for status reporting.
type CycleResult struct {
	Trigger     CycleTrigger `json:"trigger"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Seen        int          `json:"seen"`
	Skipped     int          `json:"skipped"`
	Processed   int          `json:"processed"`
	Failed      int          `json:"failed"`
	Outcome     CycleOutcome `json:"outcome"`
	Err         string       `json:"error,omitempty"`
	FailureKind string       `json:"failure_kind,omitempty"`
}

// Phase is the scheduler lifecycle state.
type Phase string

// Scheduler phases.
const (
	PhaseStopped  Phase = "stopped"
	PhaseStarting Phase = "starting"
	PhaseRunning  Phase = "running"
	PhaseStopping Phase = "stopping"
)

// SchedulerStatus is a consistent snapshot of scheduler state. When a cycle
// is in flight the In* counters reflect its progress as of the last
// per-conversation checkpoint.
type SchedulerStatus struct {
	Phase               Phase           `json:"phase"`
	Config              SchedulerConfig `json:"config"`
	LastSuccessfulFetch time.Time       `json:"last_successful_fetch"`
	LastAttemptedFetch  time.Time       `json:"last_attempted_fetch"`
	ConsecutiveErrors   int             `json:"consecutive_errors"`
	LastError           string          `json:"last_error,omitempty"`
	CycleInFlight       bool            `json:"cycle_in_flight"`
	InFlightSeen        int             `json:"in_flight_seen,omitempty"`
	InFlightProcessed   int             `json:"in_flight_processed,omitempty"`
	InFlightSkipped     int             `json:"in_flight_skipped,omitempty"`
	InFlightFailed      int             `json:"in_flight_failed,omitempty"`
	History             []CycleResult   `json:"history"`
}
