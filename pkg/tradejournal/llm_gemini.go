package tradejournal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"google.golang.org/genai"
)

type geminiProvider struct {
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

func newGeminiProvider(cfg ProviderConfig) *geminiProvider {
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &geminiProvider{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   model,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

func (p *geminiProvider) Name() string { return ProviderGemini }

func (p *geminiProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	logAIPromptDebug(p.logger, p.Name(), p.model, req)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	clientConfig, err := buildGeminiClientConfig(p.baseURL, p.apiKey)
	if err != nil {
		return "", NewError(ErrCodeProviderUnavailable, err.Error())
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return "", WrapError(ErrCodeProviderUnavailable, "create gemini client", err)
	}

	requestConfig := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		},
		ResponseMIMEType: "application/json",
	}
	if req.Temperature > 0 {
		requestConfig.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		requestConfig.MaxOutputTokens = int32(req.MaxTokens)
	}

	response, err := client.Models.GenerateContent(ctx, p.model, genai.Text(req.UserPrompt), requestConfig)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", providerStatusError(p.Name(), apiErr.Code, apiErr.Message)
		}
		return "", providerTransportError(p.Name(), err)
	}
	content := strings.TrimSpace(response.Text())
	logAIRawResponseDebug(p.logger, p.Name(), response.ModelVersion, content)
	if content == "" {
		return "", emptyResponseError(p.Name())
	}
	return content, nil
}

func buildGeminiClientConfig(endpoint, apiKey string) (*genai.ClientConfig, error) {
	baseURL, apiVersion, err := parseGeminiBaseURLAndVersion(endpoint)
	if err != nil {
		return nil, err
	}
	return &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL,
			APIVersion: apiVersion,
		},
	}, nil
}

// parseGeminiBaseURLAndVersion splits an endpoint such as
// https://host/prefix/v1beta into the client base URL and API version.
func parseGeminiBaseURLAndVersion(endpoint string) (string, string, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		trimmed = defaultGeminiBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", "", fmt.Errorf("invalid gemini endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", "", fmt.Errorf("invalid gemini endpoint scheme: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", "", fmt.Errorf("invalid gemini endpoint host")
	}

	var segments []string
	if path := strings.Trim(parsed.Path, "/"); path != "" {
		segments = strings.Split(path, "/")
	}

	apiVersion := "v1beta"
	prefix := segments
	for idx, segment := range segments {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(segment)), "v1") {
			apiVersion = segment
			prefix = segments[:idx]
			break
		}
	}

	baseURL := fmt.Sprintf("%s://%s/", parsed.Scheme, parsed.Host)
	if basePath := strings.Trim(strings.Join(prefix, "/"), "/"); basePath != "" {
		baseURL += basePath + "/"
	}
	return baseURL, apiVersion, nil
}
