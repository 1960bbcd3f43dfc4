package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/domain-profiler/internal/domain"
)

const ingestionColumns = `domain_name_text, public_suffix_text, discovered_at_ts, locked_at_ts`

// upsertRecordQuery writes one record keyed by domain name. The WHERE on the
// conflict branch keeps terminal records immutable: a second finalize for the
// same domain affects zero rows.
const upsertRecordQuery = `
	INSERT INTO domain (
		domain_id_uuid, domain_name_text,
		semantic_content_type_text, semantic_primary_topic_text, semantic_keywords_text_array,
		semantic_language_primary_text, semantic_communication_goal_text, semantic_author_type_text,
		semantic_audience_type_text, semantic_content_vibe_text, semantic_tone_text,
		semantic_formality_text, semantic_vibe_text, semantic_site_type_text,
		semantic_is_commercial_bool, semantic_is_spammy_bool, semantic_is_politically_loaded_bool,
		semantic_has_comments_bool, semantic_quality_score_float, semantic_summary_text,
		crawl_status_text, crawl_first_seen_at_ts, crawl_last_attempt_at_ts,
		crawl_has_about_bool, crawl_error_text, crawl_processed_at_ts
	)
	VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
		$21, $22, $23, $24, $25,
		CASE WHEN $21 = 'processing' THEN NULL ELSE now() END
	)
	ON CONFLICT (domain_name_text) DO UPDATE SET
		semantic_content_type_text          = EXCLUDED.semantic_content_type_text,
		semantic_primary_topic_text         = EXCLUDED.semantic_primary_topic_text,
		semantic_keywords_text_array        = EXCLUDED.semantic_keywords_text_array,
		semantic_language_primary_text      = EXCLUDED.semantic_language_primary_text,
		semantic_communication_goal_text    = EXCLUDED.semantic_communication_goal_text,
		semantic_author_type_text           = EXCLUDED.semantic_author_type_text,
		semantic_audience_type_text         = EXCLUDED.semantic_audience_type_text,
		semantic_content_vibe_text          = EXCLUDED.semantic_content_vibe_text,
		semantic_tone_text                  = EXCLUDED.semantic_tone_text,
		semantic_formality_text             = EXCLUDED.semantic_formality_text,
		semantic_vibe_text                  = EXCLUDED.semantic_vibe_text,
		semantic_site_type_text             = EXCLUDED.semantic_site_type_text,
		semantic_is_commercial_bool         = EXCLUDED.semantic_is_commercial_bool,
		semantic_is_spammy_bool             = EXCLUDED.semantic_is_spammy_bool,
		semantic_is_politically_loaded_bool = EXCLUDED.semantic_is_politically_loaded_bool,
		semantic_has_comments_bool          = EXCLUDED.semantic_has_comments_bool,
		semantic_quality_score_float        = EXCLUDED.semantic_quality_score_float,
		semantic_summary_text               = EXCLUDED.semantic_summary_text,
		crawl_status_text                   = EXCLUDED.crawl_status_text,
		crawl_first_seen_at_ts              = COALESCE(domain.crawl_first_seen_at_ts, EXCLUDED.crawl_first_seen_at_ts),
		crawl_last_attempt_at_ts            = EXCLUDED.crawl_last_attempt_at_ts,
		crawl_has_about_bool                = EXCLUDED.crawl_has_about_bool,
		crawl_error_text                    = EXCLUDED.crawl_error_text,
		crawl_processed_at_ts               = EXCLUDED.crawl_processed_at_ts,
		audit_updated_at_ts                 = now()
	WHERE domain.crawl_status_text NOT IN ('success', 'failed', 'skipped')
`

// IngestionRepository is the queue manager: it hands out entries to workers
// and turns finished entries into records.
type IngestionRepository struct {
	db *sqlx.DB
}

// NewIngestionRepository creates a new ingestion repository.
func NewIngestionRepository(db *sqlx.DB) *IngestionRepository {
	return &IngestionRepository{db: db}
}

// ClaimOne locks the oldest unlocked entry in a single statement. Concurrent
// callers skip rows another transaction holds, so no two callers receive the
// same entry. The returned LockedAt is the claim token Finalize requires.
func (r *IngestionRepository) ClaimOne(ctx context.Context) (*domain.IngestionEntry, error) {
	query := `
		WITH next AS (
			SELECT domain_name_text
			FROM domain_ingestion
			WHERE locked_at_ts IS NULL
			ORDER BY discovered_at_ts
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE domain_ingestion di
		SET locked_at_ts = now()
		FROM next
		WHERE di.domain_name_text = next.domain_name_text
		RETURNING di.domain_name_text, di.public_suffix_text, di.discovered_at_ts, di.locked_at_ts
	`

	var entry domain.IngestionEntry
	if err := r.db.GetContext(ctx, &entry, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQueueEmpty
		}
		return nil, fmt.Errorf("failed to claim ingestion entry: %w", err)
	}

	return &entry, nil
}

// Finalize writes the outcome of a claimed entry and removes it from the
// queue in one transaction.
//
// The delete is fenced by the claim token: if the lock was cleared or
// re-claimed meanwhile, ErrLockLost is returned and nothing is written. If
// the record is already terminal, the delete still commits and
// ErrAlreadyFinalized is returned.
func (r *IngestionRepository) Finalize(ctx context.Context, entry *domain.IngestionEntry, outcome domain.Outcome) error {
	if err := outcome.Validate(); err != nil {
		return fmt.Errorf("invalid outcome for %s: %w", entry.DomainName, err)
	}
	if !entry.IsLocked() {
		return fmt.Errorf("finalize %s without claim: %w", entry.DomainName, ErrLockLost)
	}

	alreadyFinal := false
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		result, execErr := tx.ExecContext(ctx,
			`DELETE FROM domain_ingestion WHERE domain_name_text = $1 AND locked_at_ts = $2`,
			entry.DomainName, entry.ClaimToken(),
		)
		if err := execRequireRows(result, execErr, ErrLockLost); err != nil {
			if errors.Is(err, ErrLockLost) {
				return fmt.Errorf("finalize %s: %w", entry.DomainName, err)
			}
			return fmt.Errorf("failed to delete ingestion entry %s: %w", entry.DomainName, err)
		}

		result, execErr = tx.ExecContext(ctx, upsertRecordQuery, recordArgs(entry, outcome)...)
		if err := execRequireRows(result, execErr, ErrAlreadyFinalized); err != nil {
			if errors.Is(err, ErrAlreadyFinalized) {
				alreadyFinal = true
				return nil
			}
			return fmt.Errorf("failed to write record %s: %w", entry.DomainName, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if alreadyFinal {
		return fmt.Errorf("finalize %s: %w", entry.DomainName, ErrAlreadyFinalized)
	}
	return nil
}

// MarkProcessing records that a worker started on a claimed entry. It never
// touches a terminal record.
func (r *IngestionRepository) MarkProcessing(ctx context.Context, entry *domain.IngestionEntry) error {
	outcome := domain.Outcome{Status: domain.StatusProcessing, Semantics: domain.UnknownSemantics()}

	result, execErr := r.db.ExecContext(ctx, upsertRecordQuery, recordArgs(entry, outcome)...)
	if err := execRequireRows(result, execErr, ErrAlreadyFinalized); err != nil {
		if errors.Is(err, ErrAlreadyFinalized) {
			return fmt.Errorf("mark %s processing: %w", entry.DomainName, err)
		}
		return fmt.Errorf("failed to mark %s processing: %w", entry.DomainName, err)
	}
	return nil
}

func recordArgs(entry *domain.IngestionEntry, o domain.Outcome) []any {
	s := o.Semantics
	return []any{
		domain.NewRecordID(entry.DomainName),
		entry.DomainName,
		s.ContentType,
		s.PrimaryTopic,
		pq.StringArray(nonNil(s.Keywords)),
		s.Language,
		s.CommunicationGoal,
		s.AuthorType,
		s.AudienceType,
		s.ContentVibe,
		s.Tone,
		s.Formality,
		s.Vibe,
		s.SiteType,
		s.IsCommercial,
		s.IsSpammy,
		s.IsPoliticallyLoaded,
		s.HasComments,
		s.QualityScore,
		s.Summary,
		string(o.Status),
		entry.DiscoveredAt,
		entry.LockedAt,
		o.HasAboutPage,
		o.LastError(),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// EnqueueReport summarizes an Enqueue call.
type EnqueueReport struct {
	Added   int64
	Ignored int64
	Invalid []string
}

// Enqueue inserts new entries. Names that are already queued or already have
// a record are ignored, so the steady state of one location per domain holds.
func (r *IngestionRepository) Enqueue(ctx context.Context, names ...string) (EnqueueReport, error) {
	var report EnqueueReport

	seen := make(map[string]struct{}, len(names))
	valid := make([]string, 0, len(names))
	suffixes := make([]sql.NullString, 0, len(names))
	for _, raw := range names {
		name, err := domain.NormalizeName(raw)
		if err != nil {
			report.Invalid = append(report.Invalid, raw)
			continue
		}
		if _, dup := seen[name]; dup {
			report.Ignored++
			continue
		}
		seen[name] = struct{}{}
		valid = append(valid, name)

		suffix := sql.NullString{}
		if ps := domain.PublicSuffix(name); ps != nil {
			suffix = sql.NullString{String: *ps, Valid: true}
		}
		suffixes = append(suffixes, suffix)
	}

	if len(valid) == 0 {
		return report, nil
	}

	query := `
		INSERT INTO domain_ingestion (domain_name_text, public_suffix_text)
		SELECT n.name, n.suffix
		FROM unnest($1::text[], $2::text[]) AS n(name, suffix)
		WHERE NOT EXISTS (SELECT 1 FROM domain d WHERE d.domain_name_text = n.name)
		ON CONFLICT (domain_name_text) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query, pq.StringArray(valid), pq.Array(suffixes))
	if err != nil {
		return report, fmt.Errorf("failed to enqueue domains: %w", err)
	}
	added, err := result.RowsAffected()
	if err != nil {
		return report, fmt.Errorf("failed to read enqueue result: %w", err)
	}

	report.Added = added
	report.Ignored += int64(len(valid)) - added
	return report, nil
}

// ListLocked returns entries locked for at least olderThan, oldest lock first.
func (r *IngestionRepository) ListLocked(ctx context.Context, olderThan time.Duration) ([]domain.IngestionEntry, error) {
	query := `
		SELECT ` + ingestionColumns + `
		FROM domain_ingestion
		WHERE locked_at_ts IS NOT NULL
		  AND locked_at_ts <= now() - make_interval(secs => $1)
		ORDER BY locked_at_ts
	`

	var entries []domain.IngestionEntry
	if err := r.db.SelectContext(ctx, &entries, query, olderThan.Seconds()); err != nil {
		return nil, fmt.Errorf("failed to list locked entries: %w", err)
	}
	return entries, nil
}

// Unlock clears the lock of one entry so another worker can claim it. Only
// safe when the owning worker is known to be dead.
func (r *IngestionRepository) Unlock(ctx context.Context, domainName string) error {
	result, execErr := r.db.ExecContext(ctx,
		`UPDATE domain_ingestion SET locked_at_ts = NULL WHERE domain_name_text = $1 AND locked_at_ts IS NOT NULL`,
		domainName,
	)
	if err := execRequireRows(result, execErr, ErrEntryNotLocked); err != nil {
		return fmt.Errorf("unlock %s: %w", domainName, err)
	}
	return nil
}

// UnlockOlderThan clears every lock held for at least age and returns how
// many entries were released.
func (r *IngestionRepository) UnlockOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE domain_ingestion
		SET locked_at_ts = NULL
		WHERE locked_at_ts IS NOT NULL
		  AND locked_at_ts <= now() - make_interval(secs => $1)
	`, age.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to unlock entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read unlock result: %w", err)
	}
	return n, nil
}

// ReclaimExpired is the lease sweep: it releases entries locked longer than
// lease. A worker that still holds such an entry loses it at finalize time.
func (r *IngestionRepository) ReclaimExpired(ctx context.Context, lease time.Duration) (int64, error) {
	if lease <= 0 {
		return 0, errors.New("lock lease must be positive")
	}
	return r.UnlockOlderThan(ctx, lease)
}

// QueueStats is a point-in-time view of the queue and the result store.
type QueueStats struct {
	Unlocked   int64                        `db:"unlocked"    json:"unlocked"`
	Locked     int64                        `db:"locked"      json:"locked"`
	OldestLock *time.Time                   `db:"oldest_lock" json:"oldest_lock,omitempty"`
	Records    map[domain.CrawlStatus]int64 `db:"-"           json:"records"`
}

// Stats counts entries by lock state and records by status.
func (r *IngestionRepository) Stats(ctx context.Context) (*QueueStats, error) {
	stats := &QueueStats{Records: make(map[domain.CrawlStatus]int64)}

	queueQuery := `
		SELECT
			COUNT(*) FILTER (WHERE locked_at_ts IS NULL)     AS unlocked,
			COUNT(*) FILTER (WHERE locked_at_ts IS NOT NULL) AS locked,
			MIN(locked_at_ts)                                AS oldest_lock
		FROM domain_ingestion
	`
	if err := r.db.GetContext(ctx, stats, queueQuery); err != nil {
		return nil, fmt.Errorf("failed to count ingestion entries: %w", err)
	}

	var rows []struct {
		Status domain.CrawlStatus `db:"crawl_status_text"`
		Count  int64              `db:"count"`
	}
	recordQuery := `SELECT crawl_status_text, COUNT(*) AS count FROM domain GROUP BY crawl_status_text`
	if err := r.db.SelectContext(ctx, &rows, recordQuery); err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	for _, row := range rows {
		stats.Records[row.Status] = row.Count
	}

	return stats, nil
}
