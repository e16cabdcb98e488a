// Package enrich derives analytics fields for fetched conversations.
package enrich

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/anithp/buddi-chain/internal/ingest"
)

const (
	maxKeywords = 10
	maxTopics   = 5

	// Sentiment scores within this band of zero are labeled neutral.
	neutralBand = 0.1
)

var nonWord = regexp.MustCompile(`[^a-z0-9\s]+`)

// Analyzer implements ingest.Enricher with lexicon-based sentiment,
// frequency keywords and simple topic grouping. It never fails: empty or
// degenerate input yields neutral analytics.
type Analyzer struct {
	userID string
	clock  ingest.Clock
}

// New constructs an Analyzer. Conversations are attributed to userID.
func New(userID string, clock ingest.Clock) *Analyzer {
	return &Analyzer{userID: userID, clock: clock}
}

// Enrich derives analytics for raw and stamps ownership and fetch time.
func (a *Analyzer) Enrich(raw ingest.RawConversation) ingest.EnrichedConversation {
	text := strings.TrimSpace(raw.Title + " " + raw.Overview)
	score, label := sentiment(text)
	words := tokenize(text)
	keywords := topKeywords(words, maxKeywords)

	return ingest.EnrichedConversation{
		RawConversation: raw,
		UserID:          a.userID,
		FetchedAt:       a.clock.Now(),
		Analytics: ingest.Analytics{
			Sentiment:       score,
			SentimentLabel:  label,
			Keywords:        keywords,
			Topics:          topics(raw.Category, keywords),
			QualityScore:    qualityScore(text, raw),
			EngagementScore: engagementScore(raw),
		},
	}
}

func sentiment(text string) (float64, string) {
	words := tokenize(text)
	if len(words) == 0 {
		return 0, "neutral"
	}
	var score float64
	for _, w := range words {
		if v, ok := sentimentLexicon[w]; ok {
			score += v
		}
	}
	// Normalize into [-1, 1] by the word count so long transcripts do not
	// saturate the scale.
	score /= float64(len(words))
	score = clamp(score*8, -1, 1)

	switch {
	case score > neutralBand:
		return score, "positive"
	case score < -neutralBand:
		return score, "negative"
	default:
		return score, "neutral"
	}
}

func tokenize(text string) []string {
	cleaned := nonWord.ReplaceAllString(strings.ToLower(text), " ")
	fields := strings.Fields(cleaned)
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 2 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

func topKeywords(words []string, limit int) []string {
	if len(words) == 0 {
		return nil
	}
	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}
	unique := make([]string, 0, len(counts))
	for w := range counts {
		unique = append(unique, w)
	}
	sort.Slice(unique, func(i, j int) bool {
		if counts[unique[i]] != counts[unique[j]] {
			return counts[unique[i]] > counts[unique[j]]
		}
		return unique[i] < unique[j]
	})
	if len(unique) > limit {
		unique = unique[:limit]
	}
	return unique
}

// topics groups the conversation under its declared category plus the
// strongest keyword clusters.
func topics(category string, keywords []string) []string {
	var out []string
	if category != "" {
		out = append(out, strings.ToLower(category))
	}
	for _, kw := range keywords {
		if len(out) >= maxTopics {
			break
		}
		if topicLexicon[kw] != "" && !contains(out, topicLexicon[kw]) {
			out = append(out, topicLexicon[kw])
		}
	}
	return out
}

// qualityScore rewards substance: longer overviews with titles and recent
// timestamps score higher. Range [0, 1].
func qualityScore(text string, raw ingest.RawConversation) float64 {
	var score float64
	words := len(strings.Fields(text))
	switch {
	case words >= 100:
		score += 0.5
	case words >= 30:
		score += 0.35
	case words > 0:
		score += 0.15
	}
	if raw.Title != "" {
		score += 0.2
	}
	if raw.Category != "" {
		score += 0.1
	}
	if !raw.CreatedAt.IsZero() && time.Since(raw.CreatedAt) < 30*24*time.Hour {
		score += 0.2
	}
	return clamp(score, 0, 1)
}

// engagementScore reflects actionable content. Range [0, 1].
func engagementScore(raw ingest.RawConversation) float64 {
	score := float64(len(raw.ActionItems)) * 0.2
	if len(raw.Payload) > 0 {
		score += 0.2
	}
	return clamp(score, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
