// Package dataset builds exportable training datasets from ingested
// conversations. A dataset is a filtered snapshot of the store, written to a
// local file in the requested format and registered for later download.
package dataset

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anithp/buddi-chain/internal/ingest"
)

// Export formats accepted by Create and Export.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// selectionLimit caps how many recent conversations a dataset build scans.
const selectionLimit = 1000

// Filters narrows which conversations a dataset includes.
type Filters struct {
	UserID          string  `json:"user_id,omitempty"`
	SentimentLabel  string  `json:"sentiment_label,omitempty"`
	MinQualityScore float64 `json:"min_quality_score,omitempty"`
}

// CreateRequest describes a dataset to build.
type CreateRequest struct {
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	ExternalIDs      []string `json:"external_ids,omitempty"`
	Filters          Filters  `json:"filters"`
	QualityThreshold *float64 `json:"quality_threshold,omitempty"`
	ExportFormat     string   `json:"export_format,omitempty"`
}

// Dataset is a registered, exported selection of conversations.
type Dataset struct {
	ID                 int       `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description,omitempty"`
	ExternalIDs        []string  `json:"external_ids"`
	Filters            Filters   `json:"filters"`
	QualityThreshold   float64   `json:"quality_threshold"`
	ExportFormat       string    `json:"export_format"`
	TotalConversations int       `json:"total_conversations"`
	AvgSentiment       float64   `json:"avg_sentiment"`
	AvgQualityScore    float64   `json:"avg_quality_score"`
	FilePath           string    `json:"file_path,omitempty"`
	FileSize           int64     `json:"file_size,omitempty"`
	IsReady            bool      `json:"is_ready"`
	CreatedAt          time.Time `json:"created_at"`
	ExportedAt         time.Time `json:"exported_at,omitempty"`
}

// Service registers datasets in memory and writes their export files under a
// configured directory. The files are the durable artifact; the registry is
// rebuilt empty on restart.
type Service struct {
	store ingest.ConversationStore
	clock ingest.Clock
	log   *zap.Logger
	dir   string

	mu     sync.Mutex
	nextID int
	sets   map[int]Dataset
	order  []int
}

// New constructs a Service exporting into dir.
func New(store ingest.ConversationStore, clock ingest.Clock, logger *zap.Logger, dir string) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store: store,
		clock: clock,
		log:   logger.Named("dataset"),
		dir:   dir,
		sets:  make(map[int]Dataset),
	}
}

// Create selects conversations matching the request, computes aggregate
// statistics, exports the selection and registers the dataset.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Dataset, error) {
	if req.Name == "" {
		return Dataset{}, &ingest.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	format := req.ExportFormat
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatCSV {
		return Dataset{}, &ingest.ValidationError{Field: "export_format", Reason: "must be json or csv"}
	}
	threshold := 0.5
	if req.QualityThreshold != nil {
		threshold = *req.QualityThreshold
		if threshold < 0 || threshold > 1 {
			return Dataset{}, &ingest.ValidationError{Field: "quality_threshold", Reason: "must be within [0, 1]"}
		}
	}

	rows, err := s.selectRows(ctx, req, threshold)
	if err != nil {
		return Dataset{}, err
	}

	ids := make([]string, 0, len(rows))
	var sumSentiment, sumQuality float64
	for _, r := range rows {
		ids = append(ids, r.ExternalID)
		sumSentiment += r.Sentiment
		sumQuality += r.QualityScore
	}

	ds := Dataset{
		Name:               req.Name,
		Description:        req.Description,
		ExternalIDs:        ids,
		Filters:            req.Filters,
		QualityThreshold:   threshold,
		ExportFormat:       format,
		TotalConversations: len(rows),
		CreatedAt:          s.clock.Now(),
	}
	if len(rows) > 0 {
		ds.AvgSentiment = sumSentiment / float64(len(rows))
		ds.AvgQualityScore = sumQuality / float64(len(rows))
	}

	s.mu.Lock()
	s.nextID++
	ds.ID = s.nextID
	s.sets[ds.ID] = ds
	s.order = append(s.order, ds.ID)
	s.mu.Unlock()

	exported, err := s.export(ds, rows, format)
	if err != nil {
		s.log.Warn("dataset export failed", zap.Int("dataset_id", ds.ID), zap.Error(err))
		return ds, fmt.Errorf("export dataset %d: %w", ds.ID, err)
	}

	s.log.Info("dataset created",
		zap.Int("dataset_id", exported.ID),
		zap.String("name", exported.Name),
		zap.Int("conversations", exported.TotalConversations),
		zap.String("format", exported.ExportFormat),
	)
	return exported, nil
}

// List returns registered datasets in creation order, optionally filtered by
// readiness, bounded by offset/limit.
func (s *Service) List(isReady *bool, offset, limit int) []Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Dataset, 0, limit)
	skipped := 0
	for _, id := range s.order {
		ds := s.sets[id]
		if isReady != nil && ds.IsReady != *isReady {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, ds)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Get returns a dataset by ID or ingest.ErrNotFound.
func (s *Service) Get(id int) (Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.sets[id]
	if !ok {
		return Dataset{}, ingest.ErrNotFound
	}
	return ds, nil
}

// Export re-exports a registered dataset in the given format, re-reading its
// conversations from the store.
func (s *Service) Export(ctx context.Context, id int, format string) (Dataset, error) {
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatCSV {
		return Dataset{}, &ingest.ValidationError{Field: "format", Reason: "must be json or csv"}
	}

	ds, err := s.Get(id)
	if err != nil {
		return Dataset{}, err
	}

	rows := make([]ingest.StoredConversation, 0, len(ds.ExternalIDs))
	for _, externalID := range ds.ExternalIDs {
		row, err := s.store.Get(ctx, externalID)
		if err != nil {
			return Dataset{}, fmt.Errorf("load conversation %s: %w", externalID, err)
		}
		rows = append(rows, row)
	}
	return s.export(ds, rows, format)
}

// Download returns the export file location of a ready dataset.
func (s *Service) Download(id int) (path string, size int64, err error) {
	ds, err := s.Get(id)
	if err != nil {
		return "", 0, err
	}
	if !ds.IsReady || ds.FilePath == "" {
		return "", 0, fmt.Errorf("dataset %d is not ready for download", id)
	}
	return ds.FilePath, ds.FileSize, nil
}

func (s *Service) selectRows(ctx context.Context, req CreateRequest, threshold float64) ([]ingest.StoredConversation, error) {
	recent, err := s.store.ListRecent(ctx, selectionLimit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	var wanted map[string]bool
	if len(req.ExternalIDs) > 0 {
		wanted = make(map[string]bool, len(req.ExternalIDs))
		for _, id := range req.ExternalIDs {
			wanted[id] = true
		}
	}

	var out []ingest.StoredConversation
	for _, r := range recent {
		if wanted != nil && !wanted[r.ExternalID] {
			continue
		}
		if req.Filters.UserID != "" && r.UserID != req.Filters.UserID {
			continue
		}
		if req.Filters.SentimentLabel != "" && r.SentimentLabel != req.Filters.SentimentLabel {
			continue
		}
		if r.QualityScore < req.Filters.MinQualityScore {
			continue
		}
		if r.QualityScore < threshold {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// export writes rows to disk and updates the registry entry with the file
// location.
func (s *Service) export(ds Dataset, rows []ingest.StoredConversation, format string) (Dataset, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Dataset{}, fmt.Errorf("create export directory: %w", err)
	}

	name := fmt.Sprintf("dataset_%d_%s.%s", ds.ID, sanitizeName(ds.Name), format)
	path := filepath.Join(s.dir, name)

	var err error
	switch format {
	case FormatJSON:
		err = writeJSON(path, rows)
	case FormatCSV:
		err = writeCSV(path, rows)
	}
	if err != nil {
		return Dataset{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("stat export file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ds = s.sets[ds.ID]
	ds.ExportFormat = format
	ds.FilePath = path
	ds.FileSize = info.Size()
	ds.ExportedAt = s.clock.Now()
	ds.IsReady = true
	s.sets[ds.ID] = ds
	return ds, nil
}

func writeJSON(path string, rows []ingest.StoredConversation) error {
	if rows == nil {
		rows = []ingest.StoredConversation{}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dataset: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write dataset file: %w", err)
	}
	return nil
}

func writeCSV(path string, rows []ingest.StoredConversation) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset file: %w", err)
	}

	w := csv.NewWriter(f)
	header := []string{
		"external_id", "user_id", "anchor_id", "token_id", "summary",
		"sentiment", "sentiment_label", "quality_score", "engagement_score",
		"merkle_root", "created_at",
	}
	if err := w.Write(header); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.ExternalID,
			r.UserID,
			r.AnchorID,
			r.TokenID,
			r.Summary,
			strconv.FormatFloat(r.Sentiment, 'f', -1, 64),
			r.SentimentLabel,
			strconv.FormatFloat(r.QualityScore, 'f', -1, 64),
			strconv.FormatFloat(r.EngagementScore, 'f', -1, 64),
			r.MerkleRoot,
			r.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := w.Write(record); err != nil {
			f.Close() //nolint:errcheck
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("flush csv: %w", err)
	}
	return f.Close()
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func sanitizeName(name string) string {
	cleaned := unsafeNameChars.ReplaceAllString(name, "_")
	if cleaned == "" {
		return "dataset"
	}
	return cleaned
}
