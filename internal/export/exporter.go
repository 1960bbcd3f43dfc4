// Package export pushes successful domain records to Elasticsearch and flags
// them as exported.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"

	"github.com/jonesrussell/domain-profiler/internal/domain"
	"github.com/jonesrussell/domain-profiler/internal/logger"
)

// ErrPartialBatch is returned when Elasticsearch rejected some documents of a
// batch. The accepted ones are still flagged.
var ErrPartialBatch = errors.New("some documents were rejected")

const indexMapping = `{
  "mappings": {
    "properties": {
      "domain_name":           {"type": "keyword"},
      "content_type":          {"type": "keyword"},
      "primary_topic":         {"type": "keyword"},
      "keywords":              {"type": "keyword"},
      "language":              {"type": "keyword"},
      "communication_goal":    {"type": "keyword"},
      "author_type":           {"type": "keyword"},
      "audience_type":         {"type": "keyword"},
      "content_vibe":          {"type": "keyword"},
      "tone":                  {"type": "keyword"},
      "formality":             {"type": "keyword"},
      "vibe":                  {"type": "keyword"},
      "site_type":             {"type": "keyword"},
      "is_commercial":         {"type": "boolean"},
      "is_spammy":             {"type": "boolean"},
      "is_politically_loaded": {"type": "boolean"},
      "has_comments":          {"type": "boolean"},
      "has_about_page":        {"type": "boolean"},
      "quality_score":         {"type": "float"},
      "summary":               {"type": "text"},
      "status":                {"type": "keyword"},
      "processed_at":          {"type": "date"}
    }
  }
}`

// RecordSource lists records to export and flags them afterwards.
// *database.RecordRepository implements it.
type RecordSource interface {
	ListUnexported(ctx context.Context, limit int) ([]domain.DomainRecord, error)
	MarkExported(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// Report summarizes one export run.
type Report struct {
	Batches  int
	Indexed  int
	Rejected int
}

// Exporter copies records into one index in bulk batches.
type Exporter struct {
	source    RecordSource
	client    *es.Client
	index     string
	batchSize int
	log       logger.Logger
}

// NewExporter creates an exporter.
func NewExporter(source RecordSource, client *es.Client, index string, batchSize int, log logger.Logger) *Exporter {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Exporter{source: source, client: client, index: index, batchSize: batchSize, log: log}
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (e *Exporter) EnsureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.index}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", e.index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("unexpected status checking index %s: %s", e.index, res.Status())
	}

	res, err = e.client.Indices.Create(e.index,
		e.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", e.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("error creating index %s: %s", e.index, res.String())
	}
	e.log.Info("Created index", logger.String("index", e.index))
	return nil
}

// Run exports batches until no unexported record is left. A batch with
// rejected documents ends the run, so the same failures are not retried in a
// loop.
func (e *Exporter) Run(ctx context.Context) (Report, error) {
	var report Report
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		records, err := e.source.ListUnexported(ctx, e.batchSize)
		if err != nil {
			return report, err
		}
		if len(records) == 0 {
			return report, nil
		}

		indexed, rejected, err := e.bulkIndex(ctx, records)
		if err != nil {
			return report, err
		}
		report.Batches++
		report.Rejected += rejected

		if len(indexed) > 0 {
			if _, err := e.source.MarkExported(ctx, indexed); err != nil {
				return report, err
			}
			report.Indexed += len(indexed)
		}

		e.log.Info("Exported batch",
			logger.Int("batch", report.Batches),
			logger.Int("indexed", len(indexed)),
			logger.Int("rejected", rejected),
		)

		if rejected > 0 {
			return report, fmt.Errorf("batch %d: %d %w", report.Batches, rejected, ErrPartialBatch)
		}
		if len(records) < e.batchSize {
			return report, nil
		}
	}
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string          `json:"_id"`
		Status int             `json:"status"`
		Error  json.RawMessage `json:"error,omitempty"`
	} `json:"items"`
}

// bulkIndex sends one batch and returns the ids Elasticsearch accepted.
func (e *Exporter) bulkIndex(ctx context.Context, records []domain.DomainRecord) ([]uuid.UUID, int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		meta := map[string]any{
			"index": map[string]any{"_index": e.index, "_id": records[i].ID.String()},
		}
		if err := enc.Encode(meta); err != nil {
			return nil, 0, fmt.Errorf("failed to encode meta: %w", err)
		}
		if err := enc.Encode(&records[i]); err != nil {
			return nil, 0, fmt.Errorf("failed to encode %s: %w", records[i].Name, err)
		}
	}

	res, err := e.client.Bulk(bytes.NewReader(buf.Bytes()), e.client.Bulk.WithContext(ctx))
	if err != nil {
		return nil, 0, fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, 0, fmt.Errorf("bulk indexing error: %s", res.String())
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, 0, fmt.Errorf("failed to decode bulk response: %w", err)
	}

	indexed := make([]uuid.UUID, 0, len(parsed.Items))
	rejected := 0
	for _, item := range parsed.Items {
		for _, result := range item {
			id, parseErr := uuid.Parse(result.ID)
			if parseErr != nil || result.Status >= http.StatusBadRequest {
				rejected++
				e.log.Warn("Document rejected",
					logger.String("id", result.ID),
					logger.Int("status", result.Status),
					logger.String("error", string(result.Error)),
				)
				continue
			}
			indexed = append(indexed, id)
		}
	}
	return indexed, rejected, nil
}
