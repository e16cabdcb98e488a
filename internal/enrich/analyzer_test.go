package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anithp/buddi-chain/internal/ingest"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func TestEnrichPositiveSentiment(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	a := New("buddi_user", clock)

	enriched := a.Enrich(ingest.RawConversation{
		ExternalID: "conv-1",
		Title:      "Great launch planning",
		Overview:   "Amazing progress, the team is excited and happy with the excellent results",
		Category:   "Work",
		CreatedAt:  clock.now.Add(-time.Hour),
	})

	require.Equal(t, "positive", enriched.Analytics.SentimentLabel)
	require.Greater(t, enriched.Analytics.Sentiment, 0.1)
	require.Equal(t, "buddi_user", enriched.UserID)
	require.Equal(t, clock.now, enriched.FetchedAt)
	require.Contains(t, enriched.Analytics.Topics, "work")
}

func TestEnrichNegativeSentiment(t *testing.T) {
	t.Parallel()

	a := New("u", &fakeClock{now: time.Now()})
	enriched := a.Enrich(ingest.RawConversation{
		ExternalID: "conv-2",
		Overview:   "Terrible meeting, everyone frustrated and angry, the launch failed badly",
	})

	require.Equal(t, "negative", enriched.Analytics.SentimentLabel)
	require.Less(t, enriched.Analytics.Sentiment, -0.1)
}

func TestEnrichEmptyInputIsNeutral(t *testing.T) {
	t.Parallel()

	a := New("u", &fakeClock{now: time.Now()})
	enriched := a.Enrich(ingest.RawConversation{ExternalID: "conv-3"})

	require.Equal(t, "neutral", enriched.Analytics.SentimentLabel)
	require.Zero(t, enriched.Analytics.Sentiment)
	require.Empty(t, enriched.Analytics.Keywords)
}

func TestEnrichIsDeterministic(t *testing.T) {
	t.Parallel()

	a := New("u", &fakeClock{now: time.Unix(42, 0)})
	raw := ingest.RawConversation{
		ExternalID:  "conv-4",
		Title:       "Quarterly budget review",
		Overview:    "Budget discussion with the finance team about invoice payment schedules",
		ActionItems: []string{"send invoice", "update budget sheet"},
	}

	first := a.Enrich(raw)
	second := a.Enrich(raw)
	require.Equal(t, first.Analytics, second.Analytics)
}

func TestKeywordsAreBoundedAndRanked(t *testing.T) {
	t.Parallel()

	words := []string{"alpha", "alpha", "alpha", "beta", "beta", "gamma"}
	top := topKeywords(words, 2)
	require.Equal(t, []string{"alpha", "beta"}, top)
}

func TestQualityScoreRange(t *testing.T) {
	t.Parallel()

	a := New("u", &fakeClock{now: time.Now()})
	raw := ingest.RawConversation{
		ExternalID: "conv-5",
		Title:      "t",
		Category:   "c",
		CreatedAt:  time.Now(),
		Overview:   "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen nineteen twenty one two three four five six seven eight nine ten",
	}
	enriched := a.Enrich(raw)
	require.GreaterOrEqual(t, enriched.Analytics.QualityScore, 0.0)
	require.LessOrEqual(t, enriched.Analytics.QualityScore, 1.0)
	require.Greater(t, enriched.Analytics.QualityScore, 0.5)
}
