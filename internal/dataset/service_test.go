package dataset

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anithp/buddi-chain/internal/ingest"
	"github.com/anithp/buddi-chain/internal/store/memory"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func conv(id, userID, label string, quality, sentiment float64) (ingest.EnrichedConversation, ingest.AnchorMetadata) {
	c := ingest.EnrichedConversation{
		RawConversation: ingest.RawConversation{ExternalID: id, Title: "t-" + id},
		Analytics: ingest.Analytics{
			Sentiment:      sentiment,
			SentimentLabel: label,
			QualityScore:   quality,
		},
		UserID:    userID,
		FetchedAt: time.Unix(1700000000, 0).UTC(),
	}
	a := ingest.AnchorMetadata{AnchorID: "a-" + id, TokenID: "t-" + id, MerkleRoot: "root-" + id}
	return c, a
}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := New(store, &fakeClock{now: time.Unix(1700000000, 0).UTC()}, nil, t.TempDir())
	return svc, store
}

func seed(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	for _, row := range []struct {
		id, user, label    string
		quality, sentiment float64
	}{
		{"a", "u1", "positive", 0.9, 0.6},
		{"b", "u1", "negative", 0.7, -0.4},
		{"c", "u2", "positive", 0.3, 0.2},
	} {
		c, a := conv(row.id, row.user, row.label, row.quality, row.sentiment)
		require.NoError(t, store.Save(ctx, c, a))
	}
}

func TestCreateAppliesThresholdAndComputesStats(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	seed(t, store)

	// Default threshold 0.5 drops "c" (quality 0.3).
	ds, err := svc.Create(context.Background(), CreateRequest{Name: "training set"})
	require.NoError(t, err)
	require.Equal(t, 1, ds.ID)
	require.Equal(t, 2, ds.TotalConversations)
	require.ElementsMatch(t, []string{"a", "b"}, ds.ExternalIDs)
	require.InDelta(t, 0.1, ds.AvgSentiment, 1e-9)
	require.InDelta(t, 0.8, ds.AvgQualityScore, 1e-9)
	require.True(t, ds.IsReady)
	require.NotEmpty(t, ds.FilePath)
	require.Positive(t, ds.FileSize)
}

func TestCreateFiltersByUserAndSentiment(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	seed(t, store)

	zero := 0.0
	ds, err := svc.Create(context.Background(), CreateRequest{
		Name:             "u1 positive",
		Filters:          Filters{UserID: "u1", SentimentLabel: "positive"},
		QualityThreshold: &zero,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, ds.ExternalIDs)
}

func TestCreateRestrictsToRequestedIDs(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	seed(t, store)

	zero := 0.0
	ds, err := svc.Create(context.Background(), CreateRequest{
		Name:             "picked",
		ExternalIDs:      []string{"b", "c"},
		QualityThreshold: &zero,
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"b", "c"}, ds.ExternalIDs)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateRequest{})
	var verr *ingest.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "name", verr.Field)

	_, err = svc.Create(context.Background(), CreateRequest{Name: "x", ExportFormat: "parquet"})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "export_format", verr.Field)

	bad := 1.5
	_, err = svc.Create(context.Background(), CreateRequest{Name: "x", QualityThreshold: &bad})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "quality_threshold", verr.Field)
}

func TestJSONExportRoundTrips(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	seed(t, store)

	ds, err := svc.Create(context.Background(), CreateRequest{Name: "export me"})
	require.NoError(t, err)

	data, err := os.ReadFile(ds.FilePath)
	require.NoError(t, err)

	var rows []ingest.StoredConversation
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, ds.TotalConversations)
	require.NotEmpty(t, rows[0].MerkleRoot)
}

func TestCSVExportHasHeaderAndRows(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	seed(t, store)

	ds, err := svc.Create(context.Background(), CreateRequest{Name: "csv set", ExportFormat: FormatCSV})
	require.NoError(t, err)

	f, err := os.Open(ds.FilePath)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, ds.TotalConversations+1)
	require.Equal(t, "external_id", records[0][0])
	require.Equal(t, "created_at", records[0][len(records[0])-1])
}

func TestExportSwitchesFormat(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	seed(t, store)

	ds, err := svc.Create(context.Background(), CreateRequest{Name: "reformat"})
	require.NoError(t, err)
	require.Equal(t, FormatJSON, ds.ExportFormat)

	again, err := svc.Export(context.Background(), ds.ID, FormatCSV)
	require.NoError(t, err)
	require.Equal(t, FormatCSV, again.ExportFormat)
	require.Contains(t, again.FilePath, ".csv")
}

func TestListAndGet(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	seed(t, store)

	first, err := svc.Create(context.Background(), CreateRequest{Name: "one"})
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), CreateRequest{Name: "two"})
	require.NoError(t, err)

	all := svc.List(nil, 0, 0)
	require.Len(t, all, 2)
	require.Equal(t, first.ID, all[0].ID)
	require.Equal(t, second.ID, all[1].ID)

	page := svc.List(nil, 1, 10)
	require.Len(t, page, 1)
	require.Equal(t, second.ID, page[0].ID)

	got, err := svc.Get(first.ID)
	require.NoError(t, err)
	require.Equal(t, "one", got.Name)

	_, err = svc.Get(999)
	require.ErrorIs(t, err, ingest.ErrNotFound)
}

func TestDownloadRequiresReadyDataset(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	seed(t, store)

	ds, err := svc.Create(context.Background(), CreateRequest{Name: "dl"})
	require.NoError(t, err)

	path, size, err := svc.Download(ds.ID)
	require.NoError(t, err)
	require.Equal(t, ds.FilePath, path)
	require.Equal(t, ds.FileSize, size)

	_, _, err = svc.Download(999)
	require.ErrorIs(t, err, ingest.ErrNotFound)
}

func TestFileNameIsSanitized(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	seed(t, store)

	ds, err := svc.Create(context.Background(), CreateRequest{Name: "my set / ../evil"})
	require.NoError(t, err)
	require.NotContains(t, ds.FilePath, "..")
	require.Contains(t, ds.FilePath, "my_set")
}
