package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/domain-profiler/internal/domain"
)

const recordColumns = `domain_id_uuid, domain_name_text,
	semantic_content_type_text, semantic_primary_topic_text, semantic_keywords_text_array,
	semantic_language_primary_text, semantic_communication_goal_text, semantic_author_type_text,
	semantic_audience_type_text, semantic_content_vibe_text, semantic_tone_text,
	semantic_formality_text, semantic_vibe_text, semantic_site_type_text,
	semantic_is_commercial_bool, semantic_is_spammy_bool, semantic_is_politically_loaded_bool,
	semantic_has_comments_bool, semantic_quality_score_float, semantic_summary_text,
	crawl_status_text, crawl_first_seen_at_ts, crawl_last_attempt_at_ts, crawl_processed_at_ts,
	crawl_has_about_bool, crawl_error_text, semantic_exported_to_index_bool,
	audit_created_at_ts, audit_updated_at_ts`

// RecordRepository reads the result store and maintains the export flag.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository creates a new record repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Get returns the record of one domain.
func (r *RecordRepository) Get(ctx context.Context, domainName string) (*domain.DomainRecord, error) {
	var rec domain.DomainRecord
	query := `SELECT ` + recordColumns + ` FROM domain WHERE domain_name_text = $1`
	if err := r.db.GetContext(ctx, &rec, query, domainName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", domainName, ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to get record %s: %w", domainName, err)
	}
	return &rec, nil
}

// ListUnexported returns up to limit successful records that have not been
// pushed to the search index yet, least recently updated first.
func (r *RecordRepository) ListUnexported(ctx context.Context, limit int) ([]domain.DomainRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM domain
		WHERE crawl_status_text = 'success' AND NOT semantic_exported_to_index_bool
		ORDER BY audit_updated_at_ts
		LIMIT $1
	`

	var records []domain.DomainRecord
	if err := r.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list unexported records: %w", err)
	}
	return records, nil
}

// MarkExported sets the export flag on the given records.
func (r *RecordRepository) MarkExported(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	values := make([]string, len(ids))
	for i, id := range ids {
		values[i] = id.String()
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE domain
		SET semantic_exported_to_index_bool = true, audit_updated_at_ts = now()
		WHERE domain_id_uuid = ANY($1::uuid[])
	`, pq.StringArray(values))
	if err != nil {
		return 0, fmt.Errorf("failed to mark records exported: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read export result: %w", err)
	}
	return n, nil
}
