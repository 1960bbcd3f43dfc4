// Package config loads the domain-profiler configuration from a YAML file,
// .env files and environment variables.
//
// Environment variables always win over the file. Files are consulted in
// this order: $ENV_FILE (alone, when set), then .env.local, then .env.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jonesrussell/domain-profiler/internal/logger"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// DefaultDevMaxClaims bounds a crawl run outside production.
const DefaultDevMaxClaims = 10

// Classifier providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderHeuristic = "heuristic"
)

// Config is the full service configuration.
type Config struct {
	App           AppConfig           `yaml:"app"`
	Database      DatabaseConfig      `yaml:"database"`
	Worker        WorkerConfig        `yaml:"worker"`
	Fetch         FetchConfig         `yaml:"fetch"`
	Browser       BrowserConfig       `yaml:"browser"`
	Classifier    ClassifierConfig    `yaml:"classifier"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Server        ServerConfig        `yaml:"server"`
	Logging       logger.Config       `yaml:"logging"`
}

// AppConfig holds process-wide settings.
type AppConfig struct {
	Name        string `env:"APP_NAME"    yaml:"name"`
	Environment string `env:"APP_ENV"     yaml:"environment"`
	Debug       bool   `env:"APP_DEBUG"   yaml:"debug"`
}

// IsProduction reports whether the service runs unbounded.
func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

// DatabaseConfig describes the Postgres connection. URL takes precedence over
// the individual fields.
type DatabaseConfig struct {
	URL             string        `env:"POSTGRES_URL"                yaml:"url"`
	Host            string        `env:"POSTGRES_HOST"               yaml:"host"`
	Port            int           `env:"POSTGRES_PORT"               yaml:"port"`
	User            string        `env:"POSTGRES_USER"               yaml:"user"`
	Password        string        `env:"POSTGRES_PASSWORD"           yaml:"password"`
	DBName          string        `env:"POSTGRES_DB"                 yaml:"dbname"`
	SSLMode         string        `env:"POSTGRES_SSLMODE"            yaml:"sslmode"`
	MaxOpenConns    int           `env:"POSTGRES_MAX_OPEN_CONNS"     yaml:"max_open_conns"`
	MaxIdleConns    int           `env:"POSTGRES_MAX_IDLE_CONNS"     yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `env:"POSTGRES_CONN_MAX_LIFETIME"  yaml:"conn_max_lifetime"`
}

// DSN returns the connection string handed to lib/pq.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// WorkerConfig tunes the crawl worker pool.
type WorkerConfig struct {
	Count int `env:"WORKER_COUNT" yaml:"count"`
	// MaxClaims bounds the claims of one run across all workers; 0 is unbounded.
	MaxClaims int `env:"WORKER_MAX_CLAIMS" yaml:"max_claims"`
	// ExitWhenEmpty stops a worker the first time the queue is empty.
	ExitWhenEmpty   bool          `env:"WORKER_EXIT_WHEN_EMPTY"    yaml:"exit_when_empty"`
	MarkProcessing  bool          `env:"WORKER_MARK_PROCESSING"    yaml:"mark_processing"`
	IdleDelay       time.Duration `env:"WORKER_IDLE_DELAY"         yaml:"idle_delay"`
	ErrorDelay      time.Duration `env:"WORKER_ERROR_DELAY"        yaml:"error_delay"`
	FinalizeTimeout time.Duration `env:"WORKER_FINALIZE_TIMEOUT"   yaml:"finalize_timeout"`
	FinalizeRetries int           `env:"WORKER_FINALIZE_RETRIES"   yaml:"finalize_retries"`
	// LockLease enables the reaper when > 0: locks older than this are cleared.
	LockLease      time.Duration `env:"WORKER_LOCK_LEASE"      yaml:"lock_lease"`
	ReaperSchedule string        `env:"WORKER_REAPER_SCHEDULE" yaml:"reaper_schedule"`
	// Blocklist holds domain names and suffixes finalized as skipped without a fetch.
	Blocklist []string `env:"WORKER_BLOCKLIST" yaml:"blocklist"`
}

// FetchConfig controls the HTTP fetch and about-page probing. AboutTimeout
// bounds each about-page probe; HomeTimeout is the part of Timeout held back
// for the home page while probing (at most half of the time left).
type FetchConfig struct {
	Timeout       time.Duration `env:"FETCH_TIMEOUT"        yaml:"timeout"`
	UserAgent     string        `env:"FETCH_USER_AGENT"     yaml:"user_agent"`
	MaxBodyBytes  int64         `env:"FETCH_MAX_BODY_BYTES" yaml:"max_body_bytes"`
	AboutPaths    []string      `env:"FETCH_ABOUT_PATHS"    yaml:"about_paths"`
	AboutTimeout  time.Duration `env:"FETCH_ABOUT_TIMEOUT"  yaml:"about_timeout"`
	HomeTimeout   time.Duration `env:"FETCH_HOME_TIMEOUT"   yaml:"home_timeout"`
	MinBodyChars  int           `yaml:"min_body_chars"`
	MinAboutChars int           `yaml:"min_about_chars"`
	MaxTextChars  int           `yaml:"max_text_chars"`
	// Scheme is overridable for tests against plain HTTP servers.
	Scheme string `yaml:"scheme"`
}

// BrowserConfig controls the headless rendering fallback.
type BrowserConfig struct {
	Enabled bool          `env:"BROWSER_ENABLED" yaml:"enabled"`
	BinPath string        `env:"BROWSER_BIN"     yaml:"bin_path"`
	Timeout time.Duration `env:"BROWSER_TIMEOUT" yaml:"timeout"`
	// ShowWindow runs the browser non-headless for debugging.
	ShowWindow bool `yaml:"show_window"`
}

// ClassifierConfig selects and tunes the labelling step.
type ClassifierConfig struct {
	Provider          string        `env:"CLASSIFIER_PROVIDER"  yaml:"provider"`
	APIKey            string        `env:"ANTHROPIC_API_KEY"    yaml:"api_key"`
	Model             string        `env:"CLASSIFIER_MODEL"     yaml:"model"`
	MaxTokens         int64         `yaml:"max_tokens"`
	Timeout           time.Duration `env:"CLASSIFIER_TIMEOUT"   yaml:"timeout"`
	RequestsPerMinute int           `env:"CLASSIFIER_RPM"       yaml:"requests_per_minute"`
	MaxInputChars     int           `yaml:"max_input_chars"`
}

// ElasticsearchConfig is used by the export command only.
type ElasticsearchConfig struct {
	Addresses []string `env:"ELASTICSEARCH_HOSTS"    yaml:"addresses"`
	Username  string   `env:"ELASTICSEARCH_USERNAME" yaml:"username"`
	Password  string   `env:"ELASTICSEARCH_PASSWORD" yaml:"password"`
	APIKey    string   `env:"ELASTICSEARCH_API_KEY"  yaml:"api_key"`
	Index     string   `env:"ELASTICSEARCH_INDEX"    yaml:"index"`
	BatchSize int      `yaml:"batch_size"`
}

// ServerConfig is the ops HTTP server started alongside the crawl.
type ServerConfig struct {
	Enabled      bool          `env:"SERVER_ENABLED" yaml:"enabled"`
	Address      string        `env:"SERVER_ADDRESS" yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Default values.
const (
	defaultAppName            = "domain-profiler"
	defaultDBHost             = "localhost"
	defaultDBPort             = 5432
	defaultDBUser             = "postgres"
	defaultDBName             = "domain_profiler"
	defaultDBSSLMode          = "disable"
	defaultMaxOpenConns       = 25
	defaultMaxIdleConns       = 5
	defaultConnMaxLifetime    = 5 * time.Minute
	defaultWorkerCount        = 4
	defaultIdleDelay          = 5 * time.Second
	defaultErrorDelay         = 10 * time.Second
	defaultFinalizeTimeout    = 15 * time.Second
	defaultFinalizeRetries    = 5
	defaultReaperSchedule     = "@every 1m"
	defaultFetchTimeout       = 30 * time.Second
	defaultAboutTimeout       = 10 * time.Second
	defaultHomeTimeout        = 15 * time.Second
	defaultUserAgent          = "Mozilla/5.0 (compatible; domain-profiler/1.0)"
	defaultMaxBodyBytes       = 5 << 20
	defaultMinBodyChars       = 50
	defaultMinAboutChars      = 100
	defaultMaxTextChars       = 20000
	defaultBrowserTimeout     = 30 * time.Second
	defaultClassifierModel    = "claude-3-5-haiku-latest"
	defaultClassifierTokens   = 1024
	defaultClassifierTimeout  = 60 * time.Second
	defaultRequestsPerMinute  = 50
	defaultMaxInputChars      = 12000
	defaultESIndex            = "domains"
	defaultESBatchSize        = 500
	defaultServerAddress      = ":8080"
	defaultServerReadTimeout  = 10 * time.Second
	defaultServerWriteTimeout = 30 * time.Second
)

// Load reads the configuration at path (optional) and applies defaults.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile[Config](path, setDefaults)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.App.setDefaults()
	cfg.Database.setDefaults()
	cfg.Worker.setDefaults(cfg.App)
	cfg.Fetch.setDefaults()
	cfg.Browser.setDefaults()
	cfg.Classifier.setDefaults()
	cfg.Elasticsearch.setDefaults()
	cfg.Server.setDefaults()
	cfg.Logging.SetDefaults()
	if cfg.App.Debug {
		cfg.Logging.Level = "debug"
	}
}

func (c *AppConfig) setDefaults() {
	if c.Name == "" {
		c.Name = defaultAppName
	}
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}
}

func (c *DatabaseConfig) setDefaults() {
	if c.Host == "" {
		c.Host = defaultDBHost
	}
	if c.Port == 0 {
		c.Port = defaultDBPort
	}
	if c.User == "" {
		c.User = defaultDBUser
	}
	if c.DBName == "" {
		c.DBName = defaultDBName
	}
	if c.SSLMode == "" {
		c.SSLMode = defaultDBSSLMode
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = defaultMaxOpenConns
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = defaultMaxIdleConns
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = defaultConnMaxLifetime
	}
}

func (c *WorkerConfig) setDefaults(app AppConfig) {
	if c.Count == 0 {
		c.Count = defaultWorkerCount
	}
	if c.MaxClaims == 0 && !app.IsProduction() {
		c.MaxClaims = DefaultDevMaxClaims
	}
	if c.IdleDelay == 0 {
		c.IdleDelay = defaultIdleDelay
	}
	if c.ErrorDelay == 0 {
		c.ErrorDelay = defaultErrorDelay
	}
	if c.FinalizeTimeout == 0 {
		c.FinalizeTimeout = defaultFinalizeTimeout
	}
	if c.FinalizeRetries == 0 {
		c.FinalizeRetries = defaultFinalizeRetries
	}
	if c.ReaperSchedule == "" {
		c.ReaperSchedule = defaultReaperSchedule
	}
}

func (c *FetchConfig) setDefaults() {
	if c.Timeout == 0 {
		c.Timeout = defaultFetchTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.AboutTimeout == 0 {
		c.AboutTimeout = defaultAboutTimeout
	}
	if c.HomeTimeout == 0 {
		c.HomeTimeout = defaultHomeTimeout
	}
	if len(c.AboutPaths) == 0 {
		c.AboutPaths = []string{"/about", "/about-us", "/about.html"}
	}
	if c.MinBodyChars == 0 {
		c.MinBodyChars = defaultMinBodyChars
	}
	if c.MinAboutChars == 0 {
		c.MinAboutChars = defaultMinAboutChars
	}
	if c.MaxTextChars == 0 {
		c.MaxTextChars = defaultMaxTextChars
	}
	if c.Scheme == "" {
		c.Scheme = "https"
	}
}

func (c *BrowserConfig) setDefaults() {
	if c.Timeout == 0 {
		c.Timeout = defaultBrowserTimeout
	}
}

func (c *ClassifierConfig) setDefaults() {
	if c.Provider == "" {
		if c.APIKey != "" {
			c.Provider = ProviderAnthropic
		} else {
			c.Provider = ProviderHeuristic
		}
	}
	if c.Model == "" {
		c.Model = defaultClassifierModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaultClassifierTokens
	}
	if c.Timeout == 0 {
		c.Timeout = defaultClassifierTimeout
	}
	if c.RequestsPerMinute == 0 {
		c.RequestsPerMinute = defaultRequestsPerMinute
	}
	if c.MaxInputChars == 0 {
		c.MaxInputChars = defaultMaxInputChars
	}
}

func (c *ElasticsearchConfig) setDefaults() {
	if c.Index == "" {
		c.Index = defaultESIndex
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaultESBatchSize
	}
}

func (c *ServerConfig) setDefaults() {
	if c.Address == "" {
		c.Address = defaultServerAddress
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultServerReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultServerWriteTimeout
	}
}

// Validate checks the sections every command needs.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, required("database.host", c.Database.Host))
		errs = append(errs, validPort("database.port", c.Database.Port))
	}
	errs = append(errs,
		positive("worker.count", c.Worker.Count),
		validLogLevel(c.Logging.Level),
	)
	if c.Worker.MaxClaims < 0 {
		errs = append(errs, &ValidationError{Field: "worker.max_claims", Message: "must not be negative"})
	}
	if c.Worker.LockLease < 0 {
		errs = append(errs, &ValidationError{Field: "worker.lock_lease", Message: "must not be negative"})
	}
	switch c.Classifier.Provider {
	case ProviderHeuristic:
	case ProviderAnthropic:
		errs = append(errs, required("classifier.api_key", c.Classifier.APIKey))
	default:
		errs = append(errs, &ValidationError{Field: "classifier.provider", Message: "must be anthropic or heuristic"})
	}
	return errors.Join(errs...)
}

// ValidateExport checks the settings the export command needs on top of Validate.
func (c *Config) ValidateExport() error {
	if len(c.Elasticsearch.Addresses) == 0 {
		return &ValidationError{Field: "elasticsearch.addresses", Message: "is required"}
	}
	return required("elasticsearch.index", c.Elasticsearch.Index)
}
