package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/anithp/buddi-chain/internal/config"
	"github.com/anithp/buddi-chain/internal/dataset"
	"github.com/anithp/buddi-chain/internal/ingest"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Store.Provider = "memory"
	cfg.Source.Provider = "mock"
	cfg.Anchor.Provider = "mock"
	cfg.Publisher.Provider = "memory"
	cfg.Dataset.ExportDir = t.TempDir()
	return cfg
}

func TestNewWiresMockProviders(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), baseConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Scheduler())
	require.NotNil(t, a.Store())
	require.NotNil(t, a.Datasets())
	require.NotNil(t, a.Verifier())
	require.Equal(t, ingest.PhaseStopped, a.Scheduler().Status().Phase)
}

func TestNewWiresSQLiteStoreAndLocalArchive(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Store.Provider = "sqlite"
	cfg.Store.SQLite.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Scheduler.ArchiveRawResponses = true
	cfg.Archive.Provider = "local"
	cfg.Archive.LocalDir = t.TempDir()

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, a.Close())
}

func TestNewRejectsUnknownProviders(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Store.Provider = "etcd"
	_, err := New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)

	cfg = baseConfig(t)
	cfg.Source.Provider = "rss"
	_, err = New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)

	cfg = baseConfig(t)
	cfg.Anchor.Provider = "ethereum"
	_, err = New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestSchedulerRunsEndToEndWithMocks(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), baseConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	sched := a.Scheduler()
	require.Equal(t, ingest.PhaseRunning, sched.Start())
	defer sched.Stop()

	// The startup cycle pulls the first mock batch through enrichment,
	// anchoring and persistence.
	require.Eventually(t, func() bool {
		st := sched.Status()
		if len(st.History) == 0 {
			return false
		}
		last := st.History[len(st.History)-1]
		return last.Outcome == ingest.OutcomeCompleted && last.Processed > 0
	}, 5*time.Second, 10*time.Millisecond)

	rows, err := a.Store().ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	require.NotEmpty(t, rows[0].AnchorID)
	require.NotEmpty(t, rows[0].MerkleRoot)

	// The mock ledger must confirm what it anchored.
	verified, err := a.Verifier().VerifyAnchor(context.Background(), rows[0].AnchorID, rows[0].MerkleRoot)
	require.NoError(t, err)
	require.True(t, verified)

	// And the ingested rows are exportable as a dataset.
	zero := 0.0
	ds, err := a.Datasets().Create(context.Background(), dataset.CreateRequest{
		Name:             "smoke",
		QualityThreshold: &zero,
	})
	require.NoError(t, err)
	require.True(t, ds.IsReady)
	require.GreaterOrEqual(t, ds.TotalConversations, len(rows))
}
