// Package sqlite provides the file-backed conversation store used as the
// default persistence layer.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/anithp/buddi-chain/internal/ingest"
)

// Store implements ingest.ConversationStore on a sqlite database file.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	anchor_id TEXT NOT NULL UNIQUE,
	token_id TEXT NOT NULL UNIQUE,
	summary TEXT NOT NULL,
	actions TEXT,
	conversation_metadata TEXT,
	sentiment REAL,
	sentiment_label TEXT,
	topics TEXT,
	keywords TEXT,
	quality_score REAL,
	engagement_score REAL,
	merkle_root TEXT NOT NULL,
	token_uri TEXT,
	contract_address TEXT,
	is_processed INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_created_at
	ON conversations (created_at)`

// New opens (creating if needed) the database at path and migrates the schema.
func New(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store.sqlite.path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Exists reports whether a conversation with the external ID was ingested.
func (s *Store) Exists(ctx context.Context, externalID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM conversations WHERE external_id = ? LIMIT 1`,
		externalID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query exists: %w", err)
	}
	return true, nil
}

// Save inserts the enriched conversation with its anchoring metadata. A
// duplicate external ID is ignored, keeping the first write.
func (s *Store) Save(ctx context.Context, conv ingest.EnrichedConversation, anchor ingest.AnchorMetadata) error {
	summary, err := json.Marshal(map[string]string{
		"title":    conv.Title,
		"text":     conv.Overview,
		"emoji":    conv.Emoji,
		"category": conv.Category,
	})
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	actions, err := json.Marshal(conv.ActionItems)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	metadata, err := json.Marshal(map[string]any{
		"buddi_id":   conv.ExternalID,
		"user_id":    conv.UserID,
		"created_at": conv.CreatedAt,
		"language":   conv.Language,
		"source":     conv.Source,
	})
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	topics, err := json.Marshal(conv.Analytics.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	keywords, err := json.Marshal(conv.Analytics.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO conversations (
	external_id, user_id, anchor_id, token_id, summary, actions,
	conversation_metadata, sentiment, sentiment_label, topics, keywords,
	quality_score, engagement_score, merkle_root, token_uri,
	contract_address, is_processed, created_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		conv.ExternalID,
		conv.UserID,
		anchor.AnchorID,
		anchor.TokenID,
		string(summary),
		string(actions),
		string(metadata),
		conv.Analytics.Sentiment,
		conv.Analytics.SentimentLabel,
		string(topics),
		string(keywords),
		conv.Analytics.QualityScore,
		conv.Analytics.EngagementScore,
		anchor.MerkleRoot,
		anchor.TokenURI,
		anchor.NFTContract,
		1,
		conv.FetchedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
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
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE external_id = ?`, externalID)
	c, err := scanConversation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return ingest.StoredConversation{}, ingest.ErrNotFound
	}
	if err != nil {
		return ingest.StoredConversation{}, fmt.Errorf("query conversation: %w", err)
	}
	return c, nil
}

// ListRecent returns up to limit conversations ordered by creation time.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]ingest.StoredConversation, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
ORDER BY created_at DESC, id DESC
LIMIT ?`, limit)
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
	var (
		c       ingest.StoredConversation
		created string
	)
	err := scan(
		&c.ExternalID, &c.UserID, &c.AnchorID, &c.TokenID, &c.Summary,
		&c.Sentiment, &c.SentimentLabel, &c.QualityScore, &c.EngagementScore,
		&c.MerkleRoot, &created,
	)
	if err != nil {
		return ingest.StoredConversation{}, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		c.CreatedAt = ts
	}
	return c, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
