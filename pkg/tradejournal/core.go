package tradejournal

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	defaultMaxAnalysisAttempts = 3
	defaultRetryDelay          = time.Second
	// analysisPersistSlack covers quota, trade load and the final write.
	analysisPersistSlack = 15 * time.Second
)

// Options controls Core initialization.
type Options struct {
	DBPath   string
	Logger   *slog.Logger
	Provider ModelProvider

	// MaxAnalysisAttempts bounds model calls per analysis (initial call included).
	MaxAnalysisAttempts int
	// RetryDelay is multiplied by the attempt number between attempts.
	RetryDelay time.Duration
	// ProviderTimeout is the per-call limit the provider was built with. It
	// sizes the default AnalysisTimeout.
	ProviderTimeout time.Duration
	// AnalysisTimeout bounds a whole analysis run. Zero derives it from the
	// attempts, the provider timeout and the backoff.
	AnalysisTimeout time.Duration

	// Now overrides the server clock; used for month rollover and timestamps.
	Now func() time.Time
}

// Core provides access to trade journal business logic and storage.
type Core struct {
	db       *sql.DB
	logger   *slog.Logger
	provider ModelProvider
	dbPath   string

	maxAttempts     int
	retryDelay      time.Duration
	analysisTimeout time.Duration
	now             func() time.Time
}

// Open initializes a Core using the provided database path.
func Open(dbPath string) (*Core, error) {
	return OpenWithOptions(Options{DBPath: dbPath})
}

// OpenWithOptions initializes a Core using the provided options.
func OpenWithOptions(opts Options) (*Core, error) {
	if opts.DBPath == "" {
		return nil, errors.New("db path is required")
	}
	cleanPath := filepath.Clean(opts.DBPath)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite performs best with a single writer; it also serializes quota transactions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrateDatabase(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}

	provider := opts.Provider
	if provider == nil {
		provider = unavailableProvider{name: "none", reason: "no model provider configured"}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	maxAttempts := defaultInt(opts.MaxAnalysisAttempts, defaultMaxAnalysisAttempts)
	retryDelay := defaultDuration(opts.RetryDelay, defaultRetryDelay)
	providerTimeout := defaultDuration(opts.ProviderTimeout, defaultProviderTimeout)

	return &Core{
		db:              db,
		logger:          logger,
		provider:        provider,
		dbPath:          cleanPath,
		maxAttempts:     maxAttempts,
		retryDelay:      retryDelay,
		analysisTimeout: defaultDuration(opts.AnalysisTimeout, analysisBudget(maxAttempts, retryDelay, providerTimeout)),
		now:             now,
	}, nil
}

// Close releases database resources.
func (c *Core) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// DBPath returns the underlying database path.
func (c *Core) DBPath() string {
	return c.dbPath
}

// Logger returns the logger the core writes to.
func (c *Core) Logger() *slog.Logger {
	return c.logger
}

// ProviderName reports which model provider analyses are sent to.
func (c *Core) ProviderName() string {
	return c.provider.Name()
}

// analysisBudget is the longest a run can legitimately take: every attempt
// hitting the provider timeout, the linear backoff between them, and the
// database work around them.
func analysisBudget(attempts int, retryDelay, providerTimeout time.Duration) time.Duration {
	backoff := time.Duration(attempts*(attempts-1)/2) * retryDelay
	return time.Duration(attempts)*providerTimeout + backoff + analysisPersistSlack
}

func defaultDuration(v time.Duration, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}

func defaultInt(v int, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
