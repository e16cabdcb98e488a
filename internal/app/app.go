// Package app initializes and holds the long-lived services of the
// ingestion process, acting as the composition root: it reads the provider
// switches from configuration and instantiates the matching store, source,
// anchorer, archive and publisher implementations, failing fast when a
// critical one cannot be built.
package app

import (
	"context"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/anithp/buddi-chain/internal/anchor/aeternity"
	anchormock "github.com/anithp/buddi-chain/internal/anchor/mock"
	archivegcs "github.com/anithp/buddi-chain/internal/archive/gcs"
	archivelocal "github.com/anithp/buddi-chain/internal/archive/local"
	archivenoop "github.com/anithp/buddi-chain/internal/archive/noop"
	"github.com/anithp/buddi-chain/internal/clock/system"
	"github.com/anithp/buddi-chain/internal/config"
	"github.com/anithp/buddi-chain/internal/dataset"
	"github.com/anithp/buddi-chain/internal/enrich"
	"github.com/anithp/buddi-chain/internal/ingest"
	pubmemory "github.com/anithp/buddi-chain/internal/publisher/memory"
	pubnoop "github.com/anithp/buddi-chain/internal/publisher/noop"
	"github.com/anithp/buddi-chain/internal/publisher/pubsub"
	"github.com/anithp/buddi-chain/internal/scheduler"
	"github.com/anithp/buddi-chain/internal/source/buddi"
	sourcemock "github.com/anithp/buddi-chain/internal/source/mock"
	storememory "github.com/anithp/buddi-chain/internal/store/memory"
	"github.com/anithp/buddi-chain/internal/store/postgres"
	"github.com/anithp/buddi-chain/internal/store/sqlite"
)

// App holds the shared, long-lived services of the ingestion process.
type App struct {
	cfg config.Config
	log *zap.Logger

	store     ingest.ConversationStore
	anchorer  ingest.Anchorer
	datasets  *dataset.Service
	scheduler *scheduler.Scheduler

	closers []func() error
}

// New builds all services from configuration.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{cfg: cfg, log: log}
	clock := system.New()

	store, err := a.buildStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	source, err := a.buildSource(clock)
	if err != nil {
		a.close()
		return nil, err
	}

	anchorer, err := a.buildAnchorer(clock)
	if err != nil {
		a.close()
		return nil, err
	}
	a.anchorer = anchorer

	a.datasets = dataset.New(store, clock, log, cfg.Dataset.ExportDir)

	archive, err := a.buildArchive(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, publisher.Close)

	sched, err := scheduler.New(cfg.SchedulerConfig(), scheduler.Deps{
		Source:    source,
		Store:     store,
		Enricher:  enrich.New(cfg.Scheduler.DefaultUserID, clock),
		Anchorer:  anchorer,
		Archive:   archive,
		Publisher: publisher,
		Clock:     clock,
		Logger:    log,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.scheduler = sched

	return a, nil
}

// Scheduler returns the ingestion scheduler.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

// Store returns the conversation store.
func (a *App) Store() ingest.ConversationStore {
	return a.store
}

// Datasets returns the dataset service.
func (a *App) Datasets() *dataset.Service {
	return a.datasets
}

// Verifier returns the configured anchorer's verification surface, or nil
// when it cannot answer verification queries.
func (a *App) Verifier() ingest.AnchorVerifier {
	if v, ok := a.anchorer.(ingest.AnchorVerifier); ok {
		return v
	}
	return nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.log
}

// Close tears down services in reverse construction order.
func (a *App) Close() error {
	return a.close()
}

func (a *App) close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func (a *App) buildStore(ctx context.Context) (ingest.ConversationStore, error) {
	switch a.cfg.Store.Provider {
	case "memory":
		a.log.Info("using in-memory conversation store")
		return storememory.New(), nil
	case "sqlite":
		a.log.Info("using sqlite conversation store", zap.String("path", a.cfg.Store.SQLite.Path))
		return sqlite.New(ctx, a.cfg.Store.SQLite.Path)
	case "postgres":
		a.log.Info("using postgres conversation store")
		return postgres.New(ctx, postgres.Config{
			DSN:      a.cfg.Store.Postgres.DSN,
			MaxConns: a.cfg.Store.Postgres.MaxConns,
			MinConns: a.cfg.Store.Postgres.MinConns,
		})
	default:
		return nil, fmt.Errorf("unknown store provider: %s", a.cfg.Store.Provider)
	}
}

func (a *App) buildSource(clock ingest.Clock) (ingest.Source, error) {
	switch a.cfg.Source.Provider {
	case "mock":
		a.log.Info("using mock conversation source")
		return sourcemock.New(clock, 3), nil
	case "buddi":
		a.log.Info("using buddi conversation source", zap.String("base_url", a.cfg.Source.Buddi.BaseURL))
		return buddi.New(buddi.Config{
			BaseURL:        a.cfg.Source.Buddi.BaseURL,
			APIKey:         a.cfg.Source.Buddi.APIKey,
			Timeout:        a.cfg.SourceTimeout(),
			RequestsPerSec: a.cfg.Source.Buddi.RequestsPerSec,
		}, a.log)
	default:
		return nil, fmt.Errorf("unknown source provider: %s", a.cfg.Source.Provider)
	}
}

func (a *App) buildAnchorer(clock ingest.Clock) (ingest.Anchorer, error) {
	switch a.cfg.Anchor.Provider {
	case "mock":
		ledger := anchormock.New(clock)
		registry, nft := ledger.Contracts()
		a.log.Info("using mock anchoring ledger",
			zap.String("registry_contract", registry),
			zap.String("nft_contract", nft),
		)
		return ledger, nil
	case "aeternity":
		a.log.Info("using aeternity anchoring client",
			zap.String("node_url", a.cfg.Anchor.Aeternity.NodeURL),
			zap.String("network_id", a.cfg.Anchor.Aeternity.NetworkID),
		)
		return aeternity.New(aeternity.Config{
			NodeURL:          a.cfg.Anchor.Aeternity.NodeURL,
			NetworkID:        a.cfg.Anchor.Aeternity.NetworkID,
			PrivateKey:       a.cfg.Anchor.Aeternity.PrivateKey,
			RegistryContract: a.cfg.Anchor.Aeternity.RegistryContract,
			NFTContract:      a.cfg.Anchor.Aeternity.NFTContract,
			Timeout:          time.Duration(a.cfg.Anchor.Aeternity.TimeoutSeconds) * time.Second,
		}, clock, a.log)
	default:
		return nil, fmt.Errorf("unknown anchor provider: %s", a.cfg.Anchor.Provider)
	}
}

func (a *App) buildArchive(ctx context.Context) (ingest.Archive, error) {
	if !a.cfg.Scheduler.ArchiveRawResponses {
		return archivenoop.New(), nil
	}
	switch a.cfg.Archive.Provider {
	case "noop":
		return archivenoop.New(), nil
	case "local":
		a.log.Info("archiving raw payloads to local filesystem", zap.String("dir", a.cfg.Archive.LocalDir))
		inner, err := archivelocal.New(archivelocal.Config{BaseDir: a.cfg.Archive.LocalDir})
		if err != nil {
			return nil, err
		}
		return prefixedArchive{prefix: a.cfg.Archive.Prefix, inner: inner}, nil
	case "gcs":
		a.log.Info("archiving raw payloads to gcs", zap.String("bucket", a.cfg.Archive.Bucket))
		inner, err := archivegcs.New(ctx, archivegcs.Config{Bucket: a.cfg.Archive.Bucket}, a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, inner.Close)
		return prefixedArchive{prefix: a.cfg.Archive.Prefix, inner: inner}, nil
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", a.cfg.Archive.Provider)
	}
}

func (a *App) buildPublisher(ctx context.Context) (ingest.Publisher, error) {
	switch a.cfg.Publisher.Provider {
	case "noop":
		return pubnoop.New(), nil
	case "memory":
		a.log.Info("using in-memory event publisher")
		return pubmemory.New(), nil
	case "pubsub":
		a.log.Info("publishing ingestion events to pubsub",
			zap.String("project_id", a.cfg.Publisher.ProjectID),
			zap.String("topic_id", a.cfg.Publisher.TopicID),
		)
		return pubsub.New(ctx, pubsub.Config{
			ProjectID: a.cfg.Publisher.ProjectID,
			Topic:     a.cfg.Publisher.TopicID,
		})
	default:
		return nil, fmt.Errorf("unknown publisher provider: %s", a.cfg.Publisher.Provider)
	}
}

// prefixedArchive roots every object path under a configured prefix.
type prefixedArchive struct {
	prefix string
	inner  ingest.Archive
}

func (p prefixedArchive) Put(ctx context.Context, objectPath string, data []byte) (string, error) {
	if p.prefix != "" {
		objectPath = path.Join(p.prefix, objectPath)
	}
	return p.inner.Put(ctx, objectPath, data)
}
