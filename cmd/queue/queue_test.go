package queue

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/domain-profiler/internal/database"
	"github.com/jonesrussell/domain-profiler/internal/domain"
)

func TestReadNames_SkipsBlanksAndComments(t *testing.T) {
	in := strings.NewReader("example.com\n\n# seed list\n  golang.org  \n")

	names, err := readNames(in, "-")
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com", "golang.org"}, names)
}

func TestReadNames_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "names.txt")
	require.NoError(t, os.WriteFile(path, []byte("a.com\nb.org\n"), 0o600))

	names, err := readNames(nil, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.com", "b.org"}, names)
}

func TestReadNames_MissingFile(t *testing.T) {
	_, err := readNames(nil, filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestRenderStats(t *testing.T) {
	oldest := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	stats := &database.QueueStats{
		Unlocked:   7,
		Locked:     2,
		OldestLock: &oldest,
		Records: map[domain.CrawlStatus]int64{
			domain.StatusSuccess: 10,
			domain.StatusFailed:    4,
		},
	}

	var buf bytes.Buffer
	RenderStats(&buf, stats)
	out := buf.String()

	assert.Contains(t, out, "unlocked")
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "2026-01-02T03:04:05Z")
	assert.Less(t, strings.Index(out, "failed"), strings.Index(out, "success"))
}

func TestRenderLocks(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	locked := now.Add(-90 * time.Minute)
	entries := []domain.IngestionEntry{
		{DomainName: "stuck.com", DiscoveredAt: now.Add(-24 * time.Hour), LockedAt: &locked},
	}

	var buf bytes.Buffer
	RenderLocks(&buf, entries, now)
	out := buf.String()

	assert.Contains(t, out, "stuck.com")
	assert.Contains(t, out, "1h30m0s")
}
