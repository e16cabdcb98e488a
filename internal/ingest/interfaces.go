package ingest

import (
	"context"
	"time"
)

// Source fetches conversation summaries created after since, newest batch
// first as returned by the remote API. Implementations must return at most
// limit conversations and classify failures with the sentinel errors in this
// package.
type Source interface {
	Fetch(ctx context.Context, since time.Time, limit int) ([]RawConversation, error)
}

// ConversationStore persists enriched conversations together with their
// anchoring metadata and acts as the deduplication gate.
type ConversationStore interface {
	// Exists reports whether a conversation with the given external ID has
	// already been ingested.
	Exists(ctx context.Context, externalID string) (bool, error)
	Save(ctx context.Context, conv EnrichedConversation, anchor AnchorMetadata) error
	// Get returns the persisted conversation for the external ID, or
	// ErrNotFound.
	Get(ctx context.Context, externalID string) (StoredConversation, error)
	ListRecent(ctx context.Context, limit int) ([]StoredConversation, error)
	Close() error
}

// Enricher derives analytics for a raw conversation. It is a pure function
// and must not fail for conversations that passed source validation.
type Enricher interface {
	Enrich(raw RawConversation) EnrichedConversation
}

// Anchorer records a conversation's content hash on the ledger and mints an
// access token for it.
type Anchorer interface {
	Anchor(ctx context.Context, conv EnrichedConversation) (AnchorMetadata, error)
}

// AnchorVerifier checks a previously recorded anchor against the ledger.
// Both anchorer implementations satisfy it.
type AnchorVerifier interface {
	VerifyAnchor(ctx context.Context, anchorID, merkleRoot string) (bool, error)
}

// Publisher pushes ingestion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
	Close() error
}

// Archive writes raw API payloads for later auditing and returns a URI.
type Archive interface {
	Put(ctx context.Context, path string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
