package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/domain-profiler/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("WORKER_MAX_CLAIMS", "")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)

	assert.Equal(t, config.EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, config.DefaultDevMaxClaims, cfg.Worker.MaxClaims)
	assert.Equal(t, 4, cfg.Worker.Count)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, []string{"/about", "/about-us", "/about.html"}, cfg.Fetch.AboutPaths)
	assert.Equal(t, 10*time.Second, cfg.Fetch.AboutTimeout)
	assert.Equal(t, 15*time.Second, cfg.Fetch.HomeTimeout)
	assert.Equal(t, config.ProviderHeuristic, cfg.Classifier.Provider)
	assert.Zero(t, cfg.Worker.LockLease)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ProductionIsUnbounded(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	path := writeConfig(t, "app:\n  environment: production\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.App.IsProduction())
	assert.Zero(t, cfg.Worker.MaxClaims)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("POSTGRES_URL", "postgres://u:p@db:5432/x?sslmode=disable")
	t.Setenv("WORKER_COUNT", "12")
	t.Setenv("WORKER_LOCK_LEASE", "30m")
	t.Setenv("ELASTICSEARCH_HOSTS", "http://a:9200, http://b:9200")

	path := writeConfig(t, `
worker:
  count: 2
  idle_delay: 2s
fetch:
  timeout: 45s
classifier:
  provider: heuristic
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Worker.Count)
	assert.Equal(t, 2*time.Second, cfg.Worker.IdleDelay)
	assert.Equal(t, 30*time.Minute, cfg.Worker.LockLease)
	assert.Equal(t, 45*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "postgres://u:p@db:5432/x?sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, []string{"http://a:9200", "http://b:9200"}, cfg.Elasticsearch.Addresses)
	require.NoError(t, cfg.ValidateExport())
}

func TestLoad_EnvFile(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("CLASSIFIER_MODEL=test-model\n"), 0o600))
	t.Setenv("ENV_FILE", envPath)
	t.Cleanup(func() { os.Unsetenv("CLASSIFIER_MODEL") })

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "test-model", cfg.Classifier.Model)
}

func TestDatabaseConfig_DSNFromFields(t *testing.T) {
	t.Parallel()

	db := config.DatabaseConfig{
		Host: "db", Port: 5433, User: "app", Password: "s3cret", DBName: "profiles", SSLMode: "require",
	}
	assert.Equal(t, "postgres://app:s3cret@db:5433/profiles?sslmode=require", db.DSN())
}

func TestConfig_Validate(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Classifier.Provider = config.ProviderAnthropic
	cfg.Classifier.APIKey = ""
	cfg.Worker.Count = 0
	cfg.Logging.Level = "loud"

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classifier.api_key")
	assert.Contains(t, err.Error(), "worker.count")
	assert.Contains(t, err.Error(), "logging.level")
}
