package database_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/domain-profiler/internal/database"
	"github.com/jonesrussell/domain-profiler/internal/domain"
)

var ingestionColumns = []string{"domain_name_text", "public_suffix_text", "discovered_at_ts", "locked_at_ts"}

// terminalGuard is the predicate that keeps terminal records immutable.
var terminalGuard = regexp.QuoteMeta("WHERE domain.crawl_status_text NOT IN ('success', 'failed', 'skipped')")

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return sqlx.NewDb(mockDB, "postgres"), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func claimedEntry(name string) *domain.IngestionEntry {
	discovered := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	locked := discovered.Add(time.Hour)
	return &domain.IngestionEntry{DomainName: name, DiscoveredAt: discovered, LockedAt: &locked}
}

func TestIngestionRepository_ClaimOne(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewIngestionRepository(db)

	discovered := time.Now().Add(-time.Hour).UTC()
	locked := time.Now().UTC()

	mock.ExpectQuery(`WITH next AS .* FOR UPDATE SKIP LOCKED .* UPDATE domain_ingestion`).
		WillReturnRows(sqlmock.NewRows(ingestionColumns).AddRow("a.com", "com", discovered, locked))

	entry, err := repo.ClaimOne(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "a.com", entry.DomainName)
	require.NotNil(t, entry.PublicSuffix)
	assert.Equal(t, "com", *entry.PublicSuffix)
	assert.True(t, entry.IsLocked())
	assert.Equal(t, locked, entry.ClaimToken())
	expectationsMet(t, mock)
}

func TestIngestionRepository_ClaimOne_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewIngestionRepository(db)

	mock.ExpectQuery(`WITH next AS`).WillReturnRows(sqlmock.NewRows(ingestionColumns))

	entry, err := repo.ClaimOne(context.Background())
	require.ErrorIs(t, err, database.ErrQueueEmpty)
	assert.Nil(t, entry)
	expectationsMet(t, mock)
}

func TestIngestionRepository_ClaimOne_StoreError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewIngestionRepository(db)

	mock.ExpectQuery(`WITH next AS`).WillReturnError(errors.New("connection refused"))

	_, err := repo.ClaimOne(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, database.ErrQueueEmpty))
	expectationsMet(t, mock)
}

func TestIngestionRepository_Finalize_Success(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewIngestionRepository(db)
	entry := claimedEntry("a.com")

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM domain_ingestion WHERE domain_name_text = \$1 AND locked_at_ts = \$2`).
		WithArgs("a.com", *entry.LockedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO domain \(.*` + terminalGuard).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome := domain.SuccessOutcome(domain.Semantics{PrimaryTopic: "news"}, true)
	require.NoError(t, repo.Finalize(context.Background(), entry, outcome))
	expectationsMet(t, mock)
}

func TestIngestionRepository_Finalize_LockLost(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewIngestionRepository(db)
	entry := claimedEntry("a.com")

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM domain_ingestion`).
		WithArgs("a.com", *entry.LockedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Finalize(context.Background(), entry, domain.FailedOutcome("timeout", false))
	require.ErrorIs(t, err, database.ErrLockLost)
	expectationsMet(t, mock)
}

func TestIngestionRepository_Finalize_AlreadyTerminal(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewIngestionRepository(db)
	entry := claimedEntry("a.com")

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM domain_ingestion`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO domain \(.*` + terminalGuard).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.Finalize(context.Background(), entry, domain.SuccessOutcome(domain.Semantics{}, false))
	require.ErrorIs(t, err, database.ErrAlreadyFinalized)
	expectationsMet(t, mock)
}

func TestIngestionRepository_Finalize_WriteErrorRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewIngestionRepository(db)
	entry := claimedEntry("a.com")

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM domain_ingestion`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO domain \(`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.Finalize(context.Background(), entry, domain.FailedOutcome("blocked", false))
	require.Error(t, err)
	assert.False(t, errors.Is(err, database.ErrAlreadyFinalized))
	expectationsMet(t, mock)
}

func TestIngestionRepository_Finalize_RejectsBeforeWriting(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewIngestionRepository(db)

	err := repo.Finalize(context.Background(), claimedEntry("a.com"), domain.Outcome{Status: domain.StatusProcessing})
	require.ErrorIs(t, err, domain.ErrNotTerminal)

	err = repo.Finalize(context.Background(), claimedEntry("a.com"), domain.Outcome{Status: domain.StatusSkipped})
	require.ErrorIs(t, err, domain.ErrMissingReason)

	unclaimed := &domain.IngestionEntry{DomainName: "a.com"}
	err = repo.Finalize(context.Background(), unclaimed, domain.SuccessOutcome(domain.Semantics{}, false))
	require.ErrorIs(t, err, database.ErrLockLost)

	expectationsMet(t, mock)
}

func TestIngestionRepository_MarkProcessing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewIngestionRepository(db)

	mock.ExpectExec(`INSERT INTO domain \(.*` + terminalGuard).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkProcessing(context.Background(), claimedEntry("a.com")))

	mock.ExpectExec(`INSERT INTO domain \(`).WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.MarkProcessing(context.Background(), claimedEntry("b.com"))
	require.ErrorIs(t, err, database.ErrAlreadyFinalized)

	expectationsMet(t, mock)
}

func TestIngestionRepository_Enqueue(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewIngestionRepository(db)

	mock.ExpectExec(`INSERT INTO domain_ingestion .* NOT EXISTS .* ON CONFLICT \(domain_name_text\) DO NOTHING`).
		WithArgs(pq.StringArray{"a.com", "shop.example.co.uk"}, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	report, err := repo.Enqueue(context.Background(), "A.com", "a.com", "not a domain", "shop.example.co.uk")
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.Added)
	assert.Equal(t, int64(2), report.Ignored)
	assert.Equal(t, []string{"not a domain"}, report.Invalid)
	expectationsMet(t, mock)
}

func TestIngestionRepository_Enqueue_NothingValid(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewIngestionRepository(db)

	report, err := repo.Enqueue(context.Background(), "localhost")
	require.NoError(t, err)
	assert.Zero(t, report.Added)
	assert.Len(t, report.Invalid, 1)
	expectationsMet(t, mock)
}

func TestIngestionRepository_ListLocked(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewIngestionRepository(db)

	locked := time.Now().Add(-2 * time.Hour)
	mock.ExpectQuery(`SELECT .* FROM domain_ingestion\s+WHERE locked_at_ts IS NOT NULL`).
		WithArgs(float64(3600)).
		WillReturnRows(sqlmock.NewRows(ingestionColumns).AddRow("stuck.com", nil, locked.Add(-time.Hour), locked))

	entries, err := repo.ListLocked(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "stuck.com", entries[0].DomainName)
	assert.Nil(t, entries[0].PublicSuffix)
	expectationsMet(t, mock)
}

func TestIngestionRepository_Unlock(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewIngestionRepository(db)

	mock.ExpectExec(`UPDATE domain_ingestion SET locked_at_ts = NULL`).
		WithArgs("stuck.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Unlock(context.Background(), "stuck.com"))

	mock.ExpectExec(`UPDATE domain_ingestion SET locked_at_ts = NULL`).
		WithArgs("free.com").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Unlock(context.Background(), "free.com"), database.ErrEntryNotLocked)

	expectationsMet(t, mock)
}

func TestIngestionRepository_ReclaimExpired(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewIngestionRepository(db)

	mock.ExpectExec(`UPDATE domain_ingestion\s+SET locked_at_ts = NULL`).
		WithArgs(float64(1800)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.ReclaimExpired(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = repo.ReclaimExpired(context.Background(), 0)
	require.Error(t, err)

	expectationsMet(t, mock)
}

func TestIngestionRepository_Stats(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewIngestionRepository(db)

	oldest := time.Now().Add(-time.Minute)
	mock.ExpectQuery(`FROM domain_ingestion`).
		WillReturnRows(sqlmock.NewRows([]string{"unlocked", "locked", "oldest_lock"}).AddRow(7, 2, oldest))
	mock.ExpectQuery(`SELECT crawl_status_text, COUNT\(\*\) AS count FROM domain GROUP BY`).
		WillReturnRows(sqlmock.NewRows([]string{"crawl_status_text", "count"}).
			AddRow("success", 10).
			AddRow("failed", 3))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(7), stats.Unlocked)
	assert.Equal(t, int64(2), stats.Locked)
	require.NotNil(t, stats.OldestLock)
	assert.Equal(t, int64(10), stats.Records[domain.StatusSuccess])
	assert.Equal(t, int64(3), stats.Records[domain.StatusFailed])
	assert.Zero(t, stats.Records[domain.StatusSkipped])
	expectationsMet(t, mock)
}
