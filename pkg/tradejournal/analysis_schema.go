package tradejournal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// ViolationKind classifies why a model response failed validation.
type ViolationKind string

const (
	ViolationMalformedJSON ViolationKind = "malformed_json"
	ViolationMissing       ViolationKind = "missing"
	ViolationWrongType     ViolationKind = "wrong_type"
	ViolationOutOfRange    ViolationKind = "out_of_range"
	ViolationInvalidValue  ViolationKind = "invalid_value"
)

// SchemaViolation names the first field of a model response that failed
// validation.
type SchemaViolation struct {
	Field  string
	Kind   ViolationKind
	Detail string
}

func (v *SchemaViolation) Error() string {
	msg := fmt.Sprintf("%s: %s", v.Kind, v.Field)
	if v.Field == "" {
		msg = string(v.Kind)
	}
	if v.Detail != "" {
		msg += ": " + v.Detail
	}
	return msg
}

type fieldKind int

const (
	fieldScore fieldKind = iota
	fieldStringList
	fieldEmotionList
	fieldText
	fieldUnit
)

type fieldDescriptor struct {
	name string
	kind fieldKind
}

// analysisFields is checked in order; the first failure is reported.
var analysisFields = []fieldDescriptor{
	{name: "qualityScore", kind: fieldScore},
	{name: "mistakes", kind: fieldStringList},
	{name: "emotionTags", kind: fieldEmotionList},
	{name: "suggestions", kind: fieldStringList},
	{name: "explainers", kind: fieldText},
	{name: "confidence", kind: fieldUnit},
}

// ParseAnalysis validates raw model output and converts it to an Analysis.
// Code fences and surrounding prose are tolerated; anything else that does
// not match the response format fails with SCHEMA_VIOLATION wrapping a
// *SchemaViolation.
func ParseAnalysis(raw string) (*Analysis, error) {
	body, ok := extractJSONObject(raw)
	if !ok {
		return nil, schemaError(&SchemaViolation{Kind: ViolationMalformedJSON, Detail: "no JSON object found"})
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, schemaError(&SchemaViolation{Kind: ViolationMalformedJSON, Detail: err.Error()})
	}

	analysis := &Analysis{}
	for _, field := range analysisFields {
		value, present := doc[field.name]
		if !present {
			return nil, schemaError(&SchemaViolation{Field: field.name, Kind: ViolationMissing})
		}
		if err := applyField(analysis, field, value); err != nil {
			return nil, schemaError(err)
		}
	}
	return analysis, nil
}

func schemaError(v *SchemaViolation) error {
	return WrapError(ErrCodeSchemaViolation, "model response failed validation", v)
}

func applyField(a *Analysis, field fieldDescriptor, value any) *SchemaViolation {
	switch field.kind {
	case fieldScore:
		n, v := numberInRange(field.name, value, 0, 100)
		if v != nil {
			return v
		}
		a.QualityScore = int(math.Round(n))
	case fieldUnit:
		n, v := numberInRange(field.name, value, 0, 1)
		if v != nil {
			return v
		}
		a.Confidence = n
	case fieldText:
		s, ok := value.(string)
		if !ok {
			return &SchemaViolation{Field: field.name, Kind: ViolationWrongType, Detail: "expected string"}
		}
		a.Explainers = s
	case fieldStringList:
		list, v := stringList(field.name, value)
		if v != nil {
			return v
		}
		if field.name == "mistakes" {
			a.Mistakes = list
		} else {
			a.Suggestions = list
		}
	case fieldEmotionList:
		tags, v := emotionList(field.name, value)
		if v != nil {
			return v
		}
		a.EmotionTags = tags
	default:
		return &SchemaViolation{Field: field.name, Kind: ViolationInvalidValue, Detail: "unknown field kind"}
	}
	return nil
}

func numberInRange(name string, value any, lo, hi float64) (float64, *SchemaViolation) {
	num, ok := value.(json.Number)
	if !ok {
		return 0, &SchemaViolation{Field: name, Kind: ViolationWrongType, Detail: "expected number"}
	}
	n, err := num.Float64()
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, &SchemaViolation{Field: name, Kind: ViolationWrongType, Detail: "expected number"}
	}
	if n < lo || n > hi {
		return 0, &SchemaViolation{Field: name, Kind: ViolationOutOfRange,
			Detail: fmt.Sprintf("%v not in [%v, %v]", n, lo, hi)}
	}
	return n, nil
}

func stringList(name string, value any) ([]string, *SchemaViolation) {
	items, ok := value.([]any)
	if !ok {
		return nil, &SchemaViolation{Field: name, Kind: ViolationWrongType, Detail: "expected array"}
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, &SchemaViolation{Field: fmt.Sprintf("%s[%d]", name, i), Kind: ViolationWrongType, Detail: "expected string"}
		}
		out = append(out, s)
	}
	return out, nil
}

func emotionList(name string, value any) ([]EmotionTag, *SchemaViolation) {
	items, ok := value.([]any)
	if !ok {
		return nil, &SchemaViolation{Field: name, Kind: ViolationWrongType, Detail: "expected array"}
	}
	out := make([]EmotionTag, 0, len(items))
	for i, item := range items {
		prefix := fmt.Sprintf("%s[%d]", name, i)
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, &SchemaViolation{Field: prefix, Kind: ViolationWrongType, Detail: "expected object"}
		}
		rawTag, present := obj["tag"]
		if !present {
			return nil, &SchemaViolation{Field: prefix + ".tag", Kind: ViolationMissing}
		}
		tag, ok := rawTag.(string)
		if !ok {
			return nil, &SchemaViolation{Field: prefix + ".tag", Kind: ViolationWrongType, Detail: "expected string"}
		}
		emotion := Emotion(strings.ToLower(strings.TrimSpace(tag)))
		if _, ok := validEmotions[emotion]; !ok {
			return nil, &SchemaViolation{Field: prefix + ".tag", Kind: ViolationInvalidValue, Detail: tag}
		}
		rawConfidence, present := obj["confidence"]
		if !present {
			return nil, &SchemaViolation{Field: prefix + ".confidence", Kind: ViolationMissing}
		}
		confidence, v := numberInRange(prefix+".confidence", rawConfidence, 0, 1)
		if v != nil {
			return nil, v
		}
		out = append(out, EmotionTag{Tag: emotion, Confidence: confidence})
	}
	return out, nil
}

// extractJSONObject strips markdown fences and, when the remainder is not a
// bare JSON object, falls back to the first balanced {...} span.
func extractJSONObject(raw string) (string, bool) {
	text := stripCodeFences(raw)
	if strings.HasPrefix(text, "{") && json.Valid([]byte(text)) {
		return text, true
	}
	return firstBalancedObject(text)
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return strings.TrimSpace(strings.Trim(trimmed, "`"))
	}
	lines = lines[1:]
	if last := strings.TrimSpace(lines[len(lines)-1]); strings.HasSuffix(last, "```") {
		lines[len(lines)-1] = strings.TrimSuffix(last, "```")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// firstBalancedObject returns the first {...} span whose braces balance and
// which parses as JSON. Braces inside JSON strings are ignored.
func firstBalancedObject(text string) (string, bool) {
	data := []byte(text)
	for start := bytes.IndexByte(data, '{'); start >= 0; {
		if end, ok := balancedSpanEnd(data, start); ok && json.Valid(data[start:end]) {
			return string(data[start:end]), true
		}
		next := bytes.IndexByte(data[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func balancedSpanEnd(data []byte, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(data); i++ {
		ch := data[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}
