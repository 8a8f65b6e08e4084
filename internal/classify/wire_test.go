package classify

import (
	"errors"
	"strings"
	"testing"
)

const validResponse = `{
  "results": [
    {
      "transaction_id": "1",
      "direction": "incoming",
      "classification": {"label": "OFFSHORE_YES", "confidence": 0.95},
      "reasoning_short_ru": "SWIFT-код банка указывает на Каймановы острова.",
      "sources": []
    },
    {
      "transaction_id": "2",
      "direction": "incoming",
      "classification": {"label": "OFFSHORE_NO", "confidence": 0.9},
      "reasoning_short_ru": "Признаков офшорной юрисдикции не обнаружено.",
      "sources": ["https://www.swift.com/", "Нет источников", "ftp://x"]
    }
  ]
}`

func TestParseBatchResponse(t *testing.T) {
	results, err := parseBatchResponse(validResponse)
	if err != nil {
		t.Fatalf("parseBatchResponse failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Label != LabelOffshoreYes || results[0].Confidence != 0.95 {
		t.Errorf("first result = %+v", results[0])
	}
	// Non-URL source entries are dropped.
	if len(results[1].Sources) != 1 || results[1].Sources[0] != "https://www.swift.com/" {
		t.Errorf("sources = %v, want only the https URL", results[1].Sources)
	}
}

func TestParseBatchResponseFenced(t *testing.T) {
	fenced := "Here is the result:\n```json\n" + validResponse + "\n```\nLet me know if you need anything else."

	results, err := parseBatchResponse(fenced)
	if err != nil {
		t.Fatalf("parseBatchResponse failed on fenced input: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestParseBatchResponseRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"garbage", "not json at all"},
		{"empty", ""},
		{"empty results", `{"results": []}`},
		{"missing id", `{"results": [{"direction": "incoming", "classification": {"label": "OFFSHORE_NO", "confidence": 0.5}, "reasoning_short_ru": "Достаточно длинное объяснение.", "sources": []}]}`},
		{"unknown label", `{"results": [{"transaction_id": "1", "classification": {"label": "MAYBE", "confidence": 0.5}, "reasoning_short_ru": "Достаточно длинное объяснение.", "sources": []}]}`},
		{"confidence above one", `{"results": [{"transaction_id": "1", "classification": {"label": "OFFSHORE_NO", "confidence": 1.5}, "reasoning_short_ru": "Достаточно длинное объяснение.", "sources": []}]}`},
		{"confidence negative", `{"results": [{"transaction_id": "1", "classification": {"label": "OFFSHORE_NO", "confidence": -0.1}, "reasoning_short_ru": "Достаточно длинное объяснение.", "sources": []}]}`},
		{"reasoning too short", `{"results": [{"transaction_id": "1", "classification": {"label": "OFFSHORE_NO", "confidence": 0.5}, "reasoning_short_ru": "Коротко", "sources": []}]}`},
		{"reasoning too long", `{"results": [{"transaction_id": "1", "classification": {"label": "OFFSHORE_NO", "confidence": 0.5}, "reasoning_short_ru": "` + strings.Repeat("а", 1001) + `", "sources": []}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseBatchResponse(tt.raw)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
		})
	}
}

func TestParseBatchResponseReasoningBounds(t *testing.T) {
	// Rune length counts, not byte length: 10 Cyrillic characters are
	// 20 bytes but must pass the minimum of 10.
	raw := `{"results": [{"transaction_id": "1", "classification": {"label": "OFFSHORE_NO", "confidence": 0.5}, "reasoning_short_ru": "` + strings.Repeat("а", 10) + `", "sources": []}]}`

	if _, err := parseBatchResponse(raw); err != nil {
		t.Errorf("10-rune reasoning rejected: %v", err)
	}

	atCap := `{"results": [{"transaction_id": "1", "classification": {"label": "OFFSHORE_NO", "confidence": 0.5}, "reasoning_short_ru": "` + strings.Repeat("а", 1000) + `", "sources": []}]}`

	if _, err := parseBatchResponse(atCap); err != nil {
		t.Errorf("1000-rune reasoning rejected: %v", err)
	}
}

func TestCleanOracleJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding prose", "Sure: {\"a\": 1} done", `{"a": 1}`},
		{"no braces", "hello", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanOracleJSON(tt.in); got != tt.want {
				t.Errorf("cleanOracleJSON = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLabelRussian(t *testing.T) {
	tests := []struct {
		label Label
		want  string
	}{
		{LabelOffshoreYes, "ОФШОР: ДА"},
		{LabelOffshoreSuspect, "ОФШОР: ПОДОЗРЕНИЕ"},
		{LabelOffshoreNo, "ОФШОР: НЕТ"},
		{Label("WEIRD"), "WEIRD"},
	}

	for _, tt := range tests {
		if got := tt.label.Russian(); got != tt.want {
			t.Errorf("Russian(%s) = %q, want %q", tt.label, got, tt.want)
		}
	}
}
