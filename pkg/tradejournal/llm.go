package tradejournal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// Supported model providers.
const (
	ProviderOpenAI      = "openai"
	ProviderAnthropic   = "anthropic"
	ProviderGemini      = "gemini"
	ProviderPlaceholder = "placeholder"
)

const (
	defaultOpenAIModel    = "gpt-3.5-turbo"
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	defaultGeminiModel    = "gemini-2.0-flash"
	defaultGeminiBaseURL  = "https://generativelanguage.googleapis.com/v1beta"

	defaultProviderTimeout = 60 * time.Second
	maxLoggedBodyBytes     = 4096
)

// CompletionRequest is one prompt sent to a model.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
}

// ModelProvider sends a prompt to a language model and returns its raw text.
// Implementations make exactly one upstream attempt per call.
type ModelProvider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ProviderConfig selects and configures a ModelProvider.
type ProviderConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	Logger   *slog.Logger
}

// NewModelProvider builds the provider named in cfg. An unknown name is a
// configuration error. A known provider without credentials is still
// returned, but every call to it fails with PROVIDER_UNAVAILABLE.
func NewModelProvider(cfg ProviderConfig) (ModelProvider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = ProviderOpenAI
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Timeout = defaultDuration(cfg.Timeout, defaultProviderTimeout)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	switch name {
	case ProviderPlaceholder:
		return placeholderProvider{}, nil
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
	default:
		return nil, NewError(ErrCodeUnsupported, fmt.Sprintf("unknown model provider: %s", cfg.Provider))
	}

	if cfg.APIKey == "" {
		return unavailableProvider{name: name, reason: fmt.Sprintf("no API key configured for %s", name)}, nil
	}
	switch name {
	case ProviderAnthropic:
		return newAnthropicProvider(cfg), nil
	case ProviderGemini:
		return newGeminiProvider(cfg), nil
	default:
		return newOpenAIProvider(cfg), nil
	}
}

// unavailableProvider stands in for a provider that cannot be reached.
type unavailableProvider struct {
	name   string
	reason string
}

func (p unavailableProvider) Name() string { return p.name }

func (p unavailableProvider) Complete(context.Context, CompletionRequest) (string, error) {
	return "", NewError(ErrCodeProviderUnavailable, p.reason)
}

// providerStatusError classifies an upstream response with a non-success status.
func providerStatusError(provider string, statusCode int, body string) error {
	return WrapError(ErrCodeProviderError, fmt.Sprintf("%s request failed", provider), &ProviderStatusError{
		Provider:   provider,
		StatusCode: statusCode,
		Body:       truncateForLog(body),
	})
}

func providerTransportError(provider string, err error) error {
	return WrapError(ErrCodeProviderError, fmt.Sprintf("%s request failed", provider), err)
}

func emptyResponseError(provider string) error {
	return NewError(ErrCodeProviderError, fmt.Sprintf("%s returned an empty response", provider))
}

func logAIPromptDebug(logger *slog.Logger, provider, model string, req CompletionRequest) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("ai request prompt",
		"provider", provider,
		"model", model,
		"system_prompt", req.SystemPrompt,
		"user_prompt", req.UserPrompt,
	)
}

func logAIRawResponseDebug(logger *slog.Logger, provider, model, content string) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("ai raw response",
		"provider", provider,
		"model", model,
		"body_bytes", len(content),
		"raw_body", truncateForLog(content),
	)
}

func truncateForLog(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLoggedBodyBytes {
		return s
	}
	cut := maxLoggedBodyBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
