package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anithp/buddi-chain/internal/ingest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "conversations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func conv(id, anchorID string, fetchedAt time.Time) (ingest.EnrichedConversation, ingest.AnchorMetadata) {
	c := ingest.EnrichedConversation{
		RawConversation: ingest.RawConversation{
			ExternalID: id,
			Title:      "Sprint planning",
			Overview:   "Agreed on scope",
			Category:   "work",
		},
		Analytics: ingest.Analytics{
			Sentiment:      0.4,
			SentimentLabel: "positive",
			Topics:         []string{"work"},
			Keywords:       []string{"scope"},
			QualityScore:   0.7,
		},
		UserID:    "user-1",
		FetchedAt: fetchedAt,
	}
	a := ingest.AnchorMetadata{
		AnchorID:   anchorID,
		TokenID:    "t-" + anchorID,
		MerkleRoot: "root-" + id,
		TokenURI:   "https://buddi.ai/memory/" + id,
	}
	return c, a
}

func TestSaveThenExists(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ok, err := s.Exists(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)

	c, a := conv("a", "1", now)
	require.NoError(t, s.Save(ctx, c, a))

	ok, err = s.Exists(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSaveDuplicateKeepsFirst(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c1, a1 := conv("a", "1", now)
	require.NoError(t, s.Save(ctx, c1, a1))

	c2, a2 := conv("a", "2", now.Add(time.Minute))
	require.NoError(t, s.Save(ctx, c2, a2))

	rows, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "1", rows[0].AnchorID)
}

func TestListRecentNewestFirstAndBounded(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"a", "b", "c"} {
		c, a := conv(id, id, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.Save(ctx, c, a))
	}

	rows, err := s.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "c", rows[0].ExternalID)
	require.Equal(t, "b", rows[1].ExternalID)
	require.Equal(t, "positive", rows[0].SentimentLabel)
	require.InDelta(t, 0.7, rows[0].QualityScore, 1e-9)
}

func TestGetReturnsSavedRow(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c, a := conv("a", "1", now)
	require.NoError(t, s.Save(ctx, c, a))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "1", got.AnchorID)
	require.Equal(t, "root-a", got.MerkleRoot)
	require.InDelta(t, 0.4, got.Sentiment, 1e-9)
	require.Equal(t, "positive", got.SentimentLabel)
}

func TestGetMissingRowIsNotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ingest.ErrNotFound)
}

func TestSchemaSurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "conversations.db")
	ctx := context.Background()

	s, err := New(ctx, path)
	require.NoError(t, err)
	c, a := conv("a", "1", time.Now().UTC())
	require.NoError(t, s.Save(ctx, c, a))
	require.NoError(t, s.Close())

	s2, err := New(ctx, path)
	require.NoError(t, err)
	defer s2.Close()

	ok, err := s2.Exists(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNewRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "")
	require.Error(t, err)
}
