package tradejournal

import "context"

// placeholderAnalysisJSON is a fixed sample used for local development
// without a model account.
const placeholderAnalysisJSON = `{
  "qualityScore": 65,
  "mistakes": ["No stop loss set", "Entered on emotion"],
  "emotionTags": [
    {"tag": "fear", "confidence": 0.7},
    {"tag": "hesitation", "confidence": 0.5}
  ],
  "suggestions": [
    "Always set a stop loss before entering",
    "Wait for confirmation signals",
    "Review your trading plan"
  ],
  "explainers": "This trade shows emotional decision-making. Consider following a systematic approach.",
  "confidence": 0.75
}`

type placeholderProvider struct{}

func (placeholderProvider) Name() string { return ProviderPlaceholder }

func (placeholderProvider) Complete(ctx context.Context, _ CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", providerTransportError(ProviderPlaceholder, err)
	}
	return placeholderAnalysisJSON, nil
}
