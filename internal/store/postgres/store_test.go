package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/anithp/buddi-chain/internal/ingest"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewWithPool(mock)
	require.NoError(t, err)
	return mock, s
}

func sampleConversation() (ingest.EnrichedConversation, ingest.AnchorMetadata) {
	conv := ingest.EnrichedConversation{
		RawConversation: ingest.RawConversation{
			ExternalID: "buddi-42",
			Title:      "Sprint planning",
			Overview:   "Agreed on scope",
			Category:   "work",
			Language:   "en",
			Source:     "buddi",
		},
		Analytics: ingest.Analytics{
			Sentiment:      0.4,
			SentimentLabel: "positive",
			Topics:         []string{"work"},
			Keywords:       []string{"scope"},
			QualityScore:   0.7,
		},
		UserID:    "user-1",
		FetchedAt: time.Unix(1700000000, 0).UTC(),
	}
	anchor := ingest.AnchorMetadata{
		AnchorID:    "1001",
		TokenID:     "2001",
		MerkleRoot:  "abcd",
		TokenURI:    "https://buddi.ai/memory/buddi-42",
		NFTContract: "ct_nft",
	}
	return conv, anchor
}

func TestExists(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM conversations WHERE external_id = \$1\)`).
		WithArgs("buddi-42").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.Exists(context.Background(), "buddi-42")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveInsertsRow(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	conv, anchor := sampleConversation()

	mock.ExpectExec(`INSERT INTO conversations`).
		WithArgs(
			conv.ExternalID,
			conv.UserID,
			anchor.AnchorID,
			anchor.TokenID,
			pgxmock.AnyArg(), // summary
			pgxmock.AnyArg(), // actions
			pgxmock.AnyArg(), // metadata
			conv.Analytics.Sentiment,
			conv.Analytics.SentimentLabel,
			pgxmock.AnyArg(), // topics
			pgxmock.AnyArg(), // keywords
			conv.Analytics.QualityScore,
			conv.Analytics.EngagementScore,
			anchor.MerkleRoot,
			anchor.TokenURI,
			anchor.NFTContract,
			true,
			conv.FetchedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Save(context.Background(), conv, anchor))
	require.NoError(t, mock.ExpectationsWereMet())
}

func conversationColumns() []string {
	return []string{
		"external_id", "user_id", "anchor_id", "token_id", "summary",
		"sentiment", "sentiment_label", "quality_score", "engagement_score",
		"merkle_root", "created_at",
	}
}

func TestListRecent(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	created := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows(conversationColumns()).
		AddRow("b", "u", "2", "20", "{}", 0.1, "neutral", 0.5, 0.3, "root-b", created).
		AddRow("a", "u", "1", "10", "{}", 0.6, "positive", 0.7, 0.4, "root-a", created.Add(-time.Hour))

	mock.ExpectQuery(`SELECT external_id, user_id, anchor_id, token_id, summary`).
		WithArgs(2).
		WillReturnRows(rows)

	out, err := s.ListRecent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "b", out[0].ExternalID)
	require.Equal(t, 0.1, out[0].Sentiment)
	require.Equal(t, "root-a", out[1].MerkleRoot)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReturnsRow(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	created := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows(conversationColumns()).
		AddRow("buddi-42", "u", "1001", "2001", "{}", 0.4, "positive", 0.7, 0.2, "abcd", created)

	mock.ExpectQuery(`SELECT external_id, user_id, anchor_id, token_id, summary`).
		WithArgs("buddi-42").
		WillReturnRows(rows)

	got, err := s.Get(context.Background(), "buddi-42")
	require.NoError(t, err)
	require.Equal(t, "1001", got.AnchorID)
	require.Equal(t, "abcd", got.MerkleRoot)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingRowIsNotFound(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	mock.ExpectQuery(`SELECT external_id, user_id, anchor_id, token_id, summary`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(conversationColumns()))

	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ingest.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil)
	require.Error(t, err)
}
