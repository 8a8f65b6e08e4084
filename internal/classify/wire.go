package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/offshore-radar/internal/txn"
)

// ValidationError reports an oracle response that decoded but failed the
// schema or consistency checks. It is retryable up to the attempt cap.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("oracle response validation: %s", e.Detail)
}

// TransportError reports a failure to reach the oracle at all. It is
// not retryable at the orchestrator level; the transport already did
// its own retries.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("oracle transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

const (
	minReasoningLen = 10
	maxReasoningLen = 1000
)

// Wire schema for one batch response. The oracle must return a JSON
// object with a results array; amounts deliberately have no place in
// the schema so the model cannot corrupt them.
type wireBatch struct {
	Results []wireResult `json:"results"`
}

type wireResult struct {
	TransactionID  string             `json:"transaction_id"`
	Direction      string             `json:"direction"`
	Classification wireClassification `json:"classification"`
	ReasoningRU    string             `json:"reasoning_short_ru"`
	Sources        []string           `json:"sources"`
	LLMError       string             `json:"llm_error,omitempty"`
}

type wireClassification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// parseBatchResponse decodes and validates one raw oracle response.
// Any schema violation in any element fails the whole batch with a
// *ValidationError, so a retry re-asks for everything.
func parseBatchResponse(raw string) ([]Result, error) {
	clean := cleanOracleJSON(raw)
	if clean == "" {
		return nil, &ValidationError{Detail: "empty response"}
	}

	var batch wireBatch
	if err := json.Unmarshal([]byte(clean), &batch); err != nil {
		return nil, &ValidationError{Detail: fmt.Sprintf("undecodable JSON: %v", err)}
	}
	if len(batch.Results) == 0 {
		return nil, &ValidationError{Detail: "results array is empty"}
	}

	out := make([]Result, 0, len(batch.Results))
	for i, w := range batch.Results {
		res, err := w.validate(i)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (w wireResult) validate(i int) (Result, error) {
	id := strings.TrimSpace(w.TransactionID)
	if id == "" {
		return Result{}, &ValidationError{Detail: fmt.Sprintf("element %d: missing transaction_id", i)}
	}

	label := Label(strings.TrimSpace(w.Classification.Label))
	if !label.Valid() {
		return Result{}, &ValidationError{Detail: fmt.Sprintf("element %d (%s): unknown label %q", i, id, w.Classification.Label)}
	}
	if w.Classification.Confidence < 0 || w.Classification.Confidence > 1 {
		return Result{}, &ValidationError{Detail: fmt.Sprintf("element %d (%s): confidence %g outside [0,1]", i, id, w.Classification.Confidence)}
	}

	reasoning := strings.TrimSpace(w.ReasoningRU)
	if n := len([]rune(reasoning)); n < minReasoningLen || n > maxReasoningLen {
		return Result{}, &ValidationError{Detail: fmt.Sprintf("element %d (%s): reasoning length %d outside [%d,%d]", i, id, n, minReasoningLen, maxReasoningLen)}
	}

	return Result{
		TransactionID: id,
		Direction:     txn.Direction(w.Direction),
		Label:         label,
		Confidence:    w.Classification.Confidence,
		Reasoning:     reasoning,
		Sources:       filterSources(w.Sources),
		Err:           strings.TrimSpace(w.LLMError),
	}, nil
}

// filterSources keeps only http(s) URLs. Models occasionally emit
// placeholder text like "Нет источников" in the sources array.
func filterSources(sources []string) []string {
	var out []string
	for _, s := range sources {
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
			out = append(out, s)
		}
	}
	return out
}

// cleanOracleJSON strips markdown fences and surrounding prose the
// model sometimes wraps around the JSON object.
func cleanOracleJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
