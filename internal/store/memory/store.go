// Package memory provides an in-memory conversation store for
// development/testing.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/anithp/buddi-chain/internal/ingest"
)

type row struct {
	conv   ingest.EnrichedConversation
	anchor ingest.AnchorMetadata
}

// Store implements ingest.ConversationStore with a map behind an RWMutex.
type Store struct {
	mu    sync.RWMutex
	rows  map[string]row
	order []string
}

// New constructs a Store.
func New() *Store {
	return &Store{rows: make(map[string]row)}
}

// Exists reports whether the external ID has been saved.
func (s *Store) Exists(_ context.Context, externalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rows[externalID]
	return ok, nil
}

// Save stores the conversation; saving the same external ID twice keeps the
// first write, matching the unique constraint of the relational stores.
func (s *Store) Save(_ context.Context, conv ingest.EnrichedConversation, anchor ingest.AnchorMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[conv.ExternalID]; ok {
		return nil
	}
	s.rows[conv.ExternalID] = row{conv: conv, anchor: anchor}
	s.order = append(s.order, conv.ExternalID)
	return nil
}

// Get returns the saved conversation or ingest.ErrNotFound.
func (s *Store) Get(_ context.Context, externalID string) (ingest.StoredConversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[externalID]
	if !ok {
		return ingest.StoredConversation{}, ingest.ErrNotFound
	}
	return toStored(r.conv, r.anchor), nil
}

// ListRecent returns up to limit conversations, newest first.
func (s *Store) ListRecent(_ context.Context, limit int) ([]ingest.StoredConversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ingest.StoredConversation, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.rows[s.order[i]]
		out = append(out, toStored(r.conv, r.anchor))
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// ExternalIDs returns all saved IDs; test helper.
func (s *Store) ExternalIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func toStored(r ingest.EnrichedConversation, anchor ingest.AnchorMetadata) ingest.StoredConversation {
	summary, _ := json.Marshal(map[string]string{
		"title": r.Title,
		"text":  r.Overview,
	})
	return ingest.StoredConversation{
		ExternalID:      r.ExternalID,
		UserID:          r.UserID,
		AnchorID:        anchor.AnchorID,
		TokenID:         anchor.TokenID,
		Summary:         string(summary),
		Sentiment:       r.Analytics.Sentiment,
		SentimentLabel:  r.Analytics.SentimentLabel,
		QualityScore:    r.Analytics.QualityScore,
		EngagementScore: r.Analytics.EngagementScore,
		MerkleRoot:      anchor.MerkleRoot,
		CreatedAt:       r.FetchedAt,
	}
}
