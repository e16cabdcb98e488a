// Package postgres provides the Postgres-backed conversation store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anithp/buddi-chain/internal/ingest"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Store implements ingest.ConversationStore on top of pgxpool.
type Store struct {
	pool pgxPool
}

// New creates a Store and verifies connectivity via pool construction.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id BIGSERIAL PRIMARY KEY,
	external_id TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	anchor_id TEXT NOT NULL UNIQUE,
	token_id TEXT NOT NULL UNIQUE,
	summary TEXT NOT NULL,
	actions JSONB,
	conversation_metadata JSONB,
	sentiment DOUBLE PRECISION,
	sentiment_label TEXT,
	topics JSONB,
	keywords JSONB,
	quality_score DOUBLE PRECISION,
	engagement_score DOUBLE PRECISION,
	merkle_root TEXT NOT NULL,
	token_uri TEXT,
	contract_address TEXT,
	is_processed BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create conversations table: %w", err)
	}
	return nil
}

// Exists reports whether a conversation with the external ID was ingested.
func (s *Store) Exists(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM conversations WHERE external_id = $1)`,
		externalID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query exists: %w", err)
	}
	return exists, nil
}

// Save inserts the enriched conversation with its anchoring metadata.
func (s *Store) Save(ctx context.Context, conv ingest.EnrichedConversation, anchor ingest.AnchorMetadata) error {
	summary, actions, metadata, topics, keywords, err := encodeRow(conv)
	if err != nil {
		return err
	}

	query := `
INSERT INTO conversations (
	external_id,
	user_id,
	anchor_id,
	token_id,
	summary,
	actions,
	conversation_metadata,
	sentiment,
	sentiment_label,
	topics,
	keywords,
	quality_score,
	engagement_score,
	merkle_root,
	token_uri,
	contract_address,
	is_processed,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
) ON CONFLICT (external_id) DO NOTHING`

	args := []any{
		conv.ExternalID,
		conv.UserID,
		anchor.AnchorID,
		anchor.TokenID,
		summary,
		actions,
		metadata,
		conv.Analytics.Sentiment,
		conv.Analytics.SentimentLabel,
		topics,
		keywords,
		conv.Analytics.QualityScore,
		conv.Analytics.EngagementScore,
		anchor.MerkleRoot,
		anchor.TokenURI,
		anchor.NFTContract,
		true,
		conv.FetchedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

const selectColumns = `
SELECT external_id, user_id, anchor_id, token_id, summary,
       COALESCE(sentiment, 0), COALESCE(sentiment_label, ''),
       COALESCE(quality_score, 0), COALESCE(engagement_score, 0),
       merkle_root, created_at
FROM conversations`

// Get returns the persisted conversation or ingest.ErrNotFound.
func (s *Store) Get(ctx context.Context, externalID string) (ingest.StoredConversation, error) {
	row := s.pool.QueryRow(ctx, selectColumns+` WHERE external_id = $1`, externalID)
	c, err := scanConversation(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.StoredConversation{}, ingest.ErrNotFound
	}
	if err != nil {
		return ingest.StoredConversation{}, fmt.Errorf("query conversation: %w", err)
	}
	return c, nil
}

// ListRecent returns up to limit conversations ordered by creation time.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]ingest.StoredConversation, error) {
	rows, err := s.pool.Query(ctx, selectColumns+`
ORDER BY created_at DESC, id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []ingest.StoredConversation
	for rows.Next() {
		c, err := scanConversation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

func scanConversation(scan func(dest ...any) error) (ingest.StoredConversation, error) {
	var c ingest.StoredConversation
	err := scan(
		&c.ExternalID, &c.UserID, &c.AnchorID, &c.TokenID, &c.Summary,
		&c.Sentiment, &c.SentimentLabel, &c.QualityScore, &c.EngagementScore,
		&c.MerkleRoot, &c.CreatedAt,
	)
	if err != nil {
		return ingest.StoredConversation{}, err
	}
	return c, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func encodeRow(conv ingest.EnrichedConversation) (summary string, actions, metadata, topics, keywords []byte, err error) {
	summaryBytes, err := json.Marshal(map[string]string{
		"title":    conv.Title,
		"text":     conv.Overview,
		"content":  conv.Overview,
		"emoji":    conv.Emoji,
		"category": conv.Category,
	})
	if err != nil {
		return "", nil, nil, nil, nil, fmt.Errorf("marshal summary: %w", err)
	}
	if actions, err = json.Marshal(conv.ActionItems); err != nil {
		return "", nil, nil, nil, nil, fmt.Errorf("marshal actions: %w", err)
	}
	meta := map[string]any{
		"buddi_id":   conv.ExternalID,
		"user_id":    conv.UserID,
		"created_at": conv.CreatedAt,
		"language":   conv.Language,
		"source":     conv.Source,
	}
	if metadata, err = json.Marshal(meta); err != nil {
		return "", nil, nil, nil, nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if topics, err = json.Marshal(conv.Analytics.Topics); err != nil {
		return "", nil, nil, nil, nil, fmt.Errorf("marshal topics: %w", err)
	}
	if keywords, err = json.Marshal(conv.Analytics.Keywords); err != nil {
		return "", nil, nil, nil, nil, fmt.Errorf("marshal keywords: %w", err)
	}
	return string(summaryBytes), actions, metadata, topics, keywords, nil
}
