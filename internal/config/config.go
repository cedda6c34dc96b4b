package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envDataDir     = "TRADE_JOURNAL_DATA_DIR"
	envDBPath      = "TRADE_JOURNAL_DB_PATH"
	envJWTSecret   = "TRADE_JOURNAL_JWT_SECRET"
	envTokenTTL    = "TRADE_JOURNAL_TOKEN_TTL"
	envCORSOrigins = "TRADE_JOURNAL_CORS_ORIGINS"
	envAnalyzeRPM  = "TRADE_JOURNAL_ANALYZE_PER_MINUTE"

	envLLMProvider     = "LLM_PROVIDER"
	envLLMModel        = "LLM_MODEL"
	envLLMBaseURL      = "LLM_BASE_URL"
	envLLMTimeout      = "LLM_TIMEOUT"
	envOpenAIKey       = "OPENAI_API_KEY"
	envAnthropicKey    = "ANTHROPIC_API_KEY"
	envGeminiKey       = "GEMINI_API_KEY"
	envAnalysisRetries = "ANALYSIS_MAX_ATTEMPTS"

	defaultDBName      = "tradejournal.db"
	defaultProvider    = "openai"
	defaultTokenTTL    = 24 * time.Hour
	defaultAnalyzeRPM  = 10
	defaultMaxAttempts = 3
)

var runtimeDataDir string

func IsMacOS() bool {
	return runtime.GOOS == "darwin"
}

func IsWindows() bool {
	return runtime.GOOS == "windows"
}

// SetRuntimeDataDir overrides the data directory for this process (the
// --data-dir flag). It wins over the environment.
func SetRuntimeDataDir(dir string) {
	runtimeDataDir = dir
}

// LoadDotEnv loads the given .env files (or ./.env when none are given)
// into the process environment. Variables already set are kept. Missing
// files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

func appConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if IsMacOS() {
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "TradeJournal"), nil
	}
	if IsWindows() {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			if err != nil {
				return "", err
			}
			appData = home
		}
		return filepath.Join(appData, "TradeJournal"), nil
	}
	configDir, cfgErr := os.UserConfigDir()
	if cfgErr != nil {
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "tradejournal"), nil
	}
	return filepath.Join(configDir, "tradejournal"), nil
}

// GetDataDir resolves the data directory: flag, then
// TRADE_JOURNAL_DATA_DIR, then the per-OS application directory. The
// directory is created when missing.
func GetDataDir() (string, error) {
	dir := runtimeDataDir
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv(envDataDir))
	}
	if dir == "" {
		defaultDir, err := appConfigDir()
		if err != nil {
			return "", err
		}
		dir = defaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// GetDBPath returns TRADE_JOURNAL_DB_PATH when set, otherwise the default
// database file inside the data directory.
func GetDBPath() (string, error) {
	if envPath := strings.TrimSpace(os.Getenv(envDBPath)); envPath != "" {
		return envPath, nil
	}
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, defaultDBName), nil
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxAttempts int
}

// LoadLLMConfig reads the provider settings from the environment. The API
// key comes from the variable that belongs to the selected provider.
func LoadLLMConfig() (LLMConfig, error) {
	provider := strings.ToLower(getEnv(envLLMProvider, defaultProvider))
	cfg := LLMConfig{
		Provider:    provider,
		Model:       getEnv(envLLMModel, ""),
		BaseURL:     getEnv(envLLMBaseURL, ""),
		MaxAttempts: defaultMaxAttempts,
	}
	switch provider {
	case "openai":
		cfg.APIKey = getEnv(envOpenAIKey, "")
	case "anthropic":
		cfg.APIKey = getEnv(envAnthropicKey, "")
	case "gemini":
		cfg.APIKey = getEnv(envGeminiKey, "")
	}

	timeout, err := getEnvAsDuration(envLLMTimeout, 0)
	if err != nil {
		return LLMConfig{}, err
	}
	cfg.Timeout = timeout

	attempts, err := getEnvAsInt(envAnalysisRetries, defaultMaxAttempts)
	if err != nil {
		return LLMConfig{}, err
	}
	if attempts < 1 {
		return LLMConfig{}, fmt.Errorf("%s must be at least 1", envAnalysisRetries)
	}
	cfg.MaxAttempts = attempts
	return cfg, nil
}

// AuthConfig holds the bearer token settings.
type AuthConfig struct {
	JWTSecret []byte
	TokenTTL  time.Duration
}

var ErrMissingJWTSecret = errors.New(envJWTSecret + " is not set")

// LoadAuthConfig reads the JWT signing secret. A missing secret is an error:
// the API refuses to start without a way to identify callers.
func LoadAuthConfig() (AuthConfig, error) {
	secret := getEnv(envJWTSecret, "")
	if secret == "" {
		return AuthConfig{}, ErrMissingJWTSecret
	}
	ttl, err := getEnvAsDuration(envTokenTTL, defaultTokenTTL)
	if err != nil {
		return AuthConfig{}, err
	}
	return AuthConfig{JWTSecret: []byte(secret), TokenTTL: ttl}, nil
}

// ServerConfig holds HTTP surface settings that are not flags.
type ServerConfig struct {
	CORSOrigins      []string
	AnalyzePerMinute int
}

func LoadServerConfig() (ServerConfig, error) {
	perMinute, err := getEnvAsInt(envAnalyzeRPM, defaultAnalyzeRPM)
	if err != nil {
		return ServerConfig{}, err
	}
	var origins []string
	for _, origin := range strings.Split(getEnv(envCORSOrigins, ""), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return ServerConfig{CORSOrigins: origins, AnalyzePerMinute: perMinute}, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := getEnv(key, "")
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := getEnv(key, "")
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
