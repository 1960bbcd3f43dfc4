package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/domain-profiler/internal/domain"
)

// RestoreAll selects every terminal record. Processing records may belong to
// a live worker, so they are only restored when asked for by status or name.
const RestoreAll = "all"

// ErrInvalidRestoreFilter is returned for an unsupported status or an empty filter.
var ErrInvalidRestoreFilter = errors.New("invalid restore filter")

// RestoreFilter selects the records to move back into the queue: either a
// status (or "all") or exactly one domain name.
type RestoreFilter struct {
	Status     string
	DomainName string
}

// NewRestoreFilter validates and normalizes the operator's selection.
func NewRestoreFilter(status, domainName string) (RestoreFilter, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	domainName = strings.TrimSpace(domainName)

	switch {
	case status != "" && domainName != "":
		return RestoreFilter{}, fmt.Errorf("%w: choose a status or a domain, not both", ErrInvalidRestoreFilter)
	case domainName != "":
		name, err := domain.NormalizeName(domainName)
		if err != nil {
			return RestoreFilter{}, fmt.Errorf("%w: %w", ErrInvalidRestoreFilter, err)
		}
		return RestoreFilter{DomainName: name}, nil
	case status == RestoreAll:
		return RestoreFilter{Status: RestoreAll}, nil
	case status != "":
		parsed, err := domain.ParseCrawlStatus(status)
		if err != nil || parsed == domain.StatusPending {
			return RestoreFilter{}, fmt.Errorf("%w: status %q", ErrInvalidRestoreFilter, status)
		}
		return RestoreFilter{Status: status}, nil
	default:
		return RestoreFilter{}, fmt.Errorf("%w: a status or a domain is required", ErrInvalidRestoreFilter)
	}
}

// String describes the filter for logs and reports.
func (f RestoreFilter) String() string {
	if f.DomainName != "" {
		return "domain=" + f.DomainName
	}
	return "status=" + f.Status
}

func (f RestoreFilter) where() (string, []any) {
	switch {
	case f.DomainName != "":
		return "domain_name_text = $1", []any{f.DomainName}
	case f.Status == RestoreAll:
		return "crawl_status_text = ANY($1)", []any{terminalStatuses()}
	default:
		return "crawl_status_text = $1", []any{f.Status}
	}
}

func terminalStatuses() pq.StringArray {
	statuses := domain.TerminalStatuses()
	out := make(pq.StringArray, len(statuses))
	for i, s := range statuses {
		out[i] = s.String()
	}
	return out
}

// RestoreReport is the result of one restoration.
type RestoreReport struct {
	Filter   string `json:"filter"`
	Restored int64  `json:"restored"`
	Deleted  int64  `json:"deleted"`
	DryRun   bool   `json:"dry_run"`
}

// RestoreRepository moves records back into the ingestion queue.
type RestoreRepository struct {
	db *sqlx.DB
}

// NewRestoreRepository creates a new restore repository.
func NewRestoreRepository(db *sqlx.DB) *RestoreRepository {
	return &RestoreRepository{db: db}
}

// Restore requeues the matching records and deletes them in one transaction.
// A matching entry that is already queued is reset to unlocked with a fresh
// discovery time. Any error rolls both statements back.
func (r *RestoreRepository) Restore(ctx context.Context, filter RestoreFilter) (RestoreReport, error) {
	report := RestoreReport{Filter: filter.String()}
	where, args := filter.where()

	insertQuery := `
		INSERT INTO domain_ingestion (domain_name_text, discovered_at_ts, locked_at_ts)
		SELECT domain_name_text, now(), NULL
		FROM domain
		WHERE ` + where + `
		ON CONFLICT (domain_name_text) DO UPDATE SET
			discovered_at_ts = now(),
			locked_at_ts = NULL
	`
	deleteQuery := `DELETE FROM domain WHERE ` + where

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, insertQuery, args...)
		if err != nil {
			return fmt.Errorf("failed to requeue records (%s): %w", filter, err)
		}
		if report.Restored, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to read requeue result: %w", err)
		}

		result, err = tx.ExecContext(ctx, deleteQuery, args...)
		if err != nil {
			return fmt.Errorf("failed to delete records (%s): %w", filter, err)
		}
		if report.Deleted, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to read delete result: %w", err)
		}
		return nil
	})
	if err != nil {
		return RestoreReport{Filter: filter.String()}, err
	}

	return report, nil
}

// Preview counts what Restore would do without writing.
func (r *RestoreRepository) Preview(ctx context.Context, filter RestoreFilter) (RestoreReport, error) {
	report := RestoreReport{Filter: filter.String(), DryRun: true}
	where, args := filter.where()

	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM domain WHERE `+where, args...); err != nil {
		return report, fmt.Errorf("failed to count records (%s): %w", filter, err)
	}

	report.Restored = count
	report.Deleted = count
	return report, nil
}
