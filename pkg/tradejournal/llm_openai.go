package tradejournal

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openAIProvider struct {
	client  openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

func newOpenAIProvider(cfg ProviderConfig) *openAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL+"/"))
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &openAIProvider{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

func (p *openAIProvider) Name() string { return ProviderOpenAI }

func (p *openAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	logAIPromptDebug(p.logger, p.Name(), p.model, req)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", providerStatusError(p.Name(), apiErr.StatusCode, apiErr.Error())
		}
		return "", providerTransportError(p.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return "", emptyResponseError(p.Name())
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	logAIRawResponseDebug(p.logger, p.Name(), resp.Model, content)
	if content == "" {
		return "", emptyResponseError(p.Name())
	}
	return content, nil
}
