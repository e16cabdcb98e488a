package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anithp/buddi-chain/internal/ingest"
)

func conv(id string) ingest.EnrichedConversation {
	return ingest.EnrichedConversation{
		RawConversation: ingest.RawConversation{ExternalID: id, Title: "t"},
		UserID:          "u",
		FetchedAt:       time.Unix(1700000000, 0).UTC(),
	}
}

func TestSaveThenExists(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	ok, err := s.Exists(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Save(ctx, conv("a"), ingest.AnchorMetadata{AnchorID: "1"}))

	ok, err = s.Exists(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSaveDuplicateKeepsFirst(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, conv("a"), ingest.AnchorMetadata{AnchorID: "1"}))
	require.NoError(t, s.Save(ctx, conv("a"), ingest.AnchorMetadata{AnchorID: "2"}))

	rows, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "1", rows[0].AnchorID)
}

func TestGetReturnsSavedRow(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, conv("a"), ingest.AnchorMetadata{AnchorID: "1", MerkleRoot: "root-a"}))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "1", got.AnchorID)
	require.Equal(t, "root-a", got.MerkleRoot)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ingest.ErrNotFound)
}

func TestListRecentNewestFirstAndBounded(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, conv(id), ingest.AnchorMetadata{}))
	}

	rows, err := s.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "c", rows[0].ExternalID)
	require.Equal(t, "b", rows[1].ExternalID)
}
