// Package mock provides a canned conversation source for development and
// demos, selected with source.provider = mock.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anithp/buddi-chain/internal/ingest"
)

// Source implements ingest.Source by generating a deterministic stream of
// conversations. Each Fetch produces a small fresh batch stamped after
// since, so repeated cycles always have something new to ingest.
type Source struct {
	mu      sync.Mutex
	clock   ingest.Clock
	seq     int
	perCall int
}

// New constructs a Source emitting perCall conversations per fetch.
func New(clock ingest.Clock, perCall int) *Source {
	if perCall <= 0 {
		perCall = 3
	}
	return &Source{clock: clock, perCall: perCall}
}

var samples = []struct {
	title    string
	overview string
	category string
}{
	{"Sprint planning", "Great session, the team agreed on the release scope and everyone left happy", "work"},
	{"Budget sync", "Reviewed the invoice backlog, payment issues remain a problem", "finance"},
	{"Trip ideas", "Brainstormed vacation plans, excited about the flight options", "travel"},
	{"Morning standup", "Quick status round, one blocked ticket needs help", "work"},
	{"Product review", "Customer feedback on the new feature was excellent", "product"},
}

// Fetch returns the next batch of canned conversations, capped at limit.
func (s *Source) Fetch(_ context.Context, _ time.Time, limit int) ([]ingest.RawConversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.perCall
	if n > limit {
		n = limit
	}
	now := s.clock.Now()
	out := make([]ingest.RawConversation, 0, n)
	for i := 0; i < n; i++ {
		s.seq++
		sample := samples[(s.seq-1)%len(samples)]
		out = append(out, ingest.RawConversation{
			ExternalID:  fmt.Sprintf("mock-%06d", s.seq),
			CreatedAt:   now.Add(-time.Duration(n-i) * time.Minute),
			Title:       sample.title,
			Overview:    sample.overview,
			Category:    sample.category,
			Language:    "en",
			Source:      "mock",
			ActionItems: []string{"follow up"},
		})
	}
	return out, nil
}
