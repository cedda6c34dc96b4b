package tradejournal

import (
	"strconv"
	"strings"
)

const (
	maxPromptOCRRunes = 2000
	notAvailable      = "N/A"

	analysisTemperature = 0.7
	analysisMaxTokens   = 1000
)

const tradeAnalysisSystemPrompt = `You are an expert trading coach and educator. You will analyze a single trade's structured data and free-text notes. RETURN ONLY valid JSON and nothing else. This is educational content only. DO NOT give buy/sell signals or financial advice. Use concise tags and short suggestions.`

const tradeAnalysisResponseFormat = `Return JSON in this exact format (no markdown, no code blocks, just raw JSON):
{
  "qualityScore": <number 0-100>,
  "mistakes": [<string>, <string>, <string>],
  "emotionTags": [{"tag": "fear"|"greed"|"overconfidence"|"revenge"|"hesitation"|"neutral", "confidence": <number 0-1>}],
  "suggestions": [<string>, <string>, <string>],
  "explainers": "<1-2 sentence explanation>",
  "confidence": <number 0-1>
}`

// BuildTradePrompt renders the user prompt for one trade. OCR text beyond
// 2000 characters is dropped and missing fields render as N/A.
func BuildTradePrompt(trade Trade, ocrText string) string {
	var b strings.Builder
	b.WriteString("Analyze this trade and return ONLY valid JSON:\n\n")
	b.WriteString("Trade Data:\n")
	writePromptLine(&b, "Symbol", textOrNA(trade.Symbol))
	writePromptLine(&b, "Side", textOrNA(trade.Side))
	writePromptLine(&b, "Entry Price", priceOrNA(trade.EntryPrice))
	writePromptLine(&b, "Exit Price", priceOrNA(trade.ExitPrice))
	writePromptLine(&b, "Stop Loss", priceOrNA(trade.StopLoss))
	writePromptLine(&b, "Quantity", priceOrNA(trade.Qty))

	writePromptLine(&b, "P&L", pnlOrNA(trade.PnL, trade.PnLPercent))
	writePromptLine(&b, "Notes", textOrNA(trade.Notes))

	if ocr := truncateRunes(strings.TrimSpace(ocrText), maxPromptOCRRunes); ocr != "" {
		b.WriteString("\nOCR Text from screenshot:\n")
		b.WriteString(ocr)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(tradeAnalysisResponseFormat)
	return b.String()
}

func tradeAnalysisRequest(trade Trade) CompletionRequest {
	return CompletionRequest{
		SystemPrompt: tradeAnalysisSystemPrompt,
		UserPrompt:   BuildTradePrompt(trade, trade.OCRText),
		Temperature:  analysisTemperature,
		MaxTokens:    analysisMaxTokens,
	}
}

// pnlOrNA renders "pnl (pct%)", with N/A standing in for either absent half
// and a bare N/A when both are absent.
func pnlOrNA(pnl *Amount, pct *float64) string {
	if pnl == nil && pct == nil {
		return notAvailable
	}
	value := notAvailable
	if pnl != nil {
		value = pnl.String()
	}
	percent := notAvailable
	if pct != nil {
		percent = strconv.FormatFloat(*pct, 'f', -1, 64) + "%"
	}
	return value + " (" + percent + ")"
}

func writePromptLine(b *strings.Builder, label, value string) {
	b.WriteString("- ")
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}

func textOrNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return strings.TrimSpace(s)
}

// priceOrNA treats zero like absent, since a zero price or size is never
// a real fill.
func priceOrNA(a *Amount) string {
	if a == nil || a.IsZero() {
		return notAvailable
	}
	return a.String()
}
