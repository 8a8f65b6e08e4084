package classify

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// RecordSummary is the oracle-facing view of one record: identifiers,
// free-text counterparty fields and the locally computed signals.
// Amounts are deliberately excluded.
type RecordSummary struct {
	TransactionID string      `json:"transaction_id"`
	Direction     string      `json:"direction"`
	Counterparty  string      `json:"counterparty"`
	Bank          string      `json:"bank"`
	BankAddress   string      `json:"bank_address,omitempty"`
	SwiftCode     string      `json:"swift_code"`
	City          string      `json:"city"`
	CountryCode   string      `json:"country_code"`
	CountryName   string      `json:"country_name"`
	Details       string      `json:"details,omitempty"`
	Signals       interface{} `json:"signals,omitempty"`
}

// BatchRequest is one oracle call. Policy is the full system prompt;
// EscalationNote is appended on validation retries and empty on the
// first attempt.
type BatchRequest struct {
	Policy         string
	EscalationNote string
	Records        []RecordSummary
	Temperature    float64
}

// Oracle classifies one batch and returns the raw response text. The
// orchestrator owns parsing and validation, so implementations only
// deal with transport. Transport failures come back as *TransportError.
type Oracle interface {
	ClassifyBatch(ctx context.Context, req BatchRequest) (string, error)
}

// GeminiOracle calls the Gemini API with JSON-mode output.
type GeminiOracle struct {
	client   *genai.Client
	model    string
	timeout  time.Duration
	attempts int
}

// NewGeminiOracle builds the production oracle. Credentials come from
// the environment, same as every other Google client in this codebase.
func NewGeminiOracle(ctx context.Context, model string, timeout time.Duration, attempts int) (*GeminiOracle, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiOracle: create genai client: %w", err)
	}
	if attempts < 1 {
		attempts = 1
	}
	return &GeminiOracle{client: client, model: model, timeout: timeout, attempts: attempts}, nil
}

// ClassifyBatch sends one batch to the model. Transient transport
// failures are retried with exponential backoff before giving up with a
// *TransportError; response content is returned as-is.
func (o *GeminiOracle) ClassifyBatch(ctx context.Context, req BatchRequest) (string, error) {
	prompt := req.Policy
	if req.EscalationNote != "" {
		prompt += "\n\n" + req.EscalationNote
	}

	userMessage, err := renderRecords(req.Records)
	if err != nil {
		return "", fmt.Errorf("ClassifyBatch: render records: %w", err)
	}

	temp := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: prompt}},
		},
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: userMessage}},
		},
	}

	backoff := 2 * time.Second
	var lastErr error
	for attempt := 1; attempt <= o.attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, o.timeout)
		resp, err := o.client.Models.GenerateContent(callCtx, o.model, contents, cfg)
		cancel()

		if err == nil {
			text := resp.Text()
			if text != "" {
				return text, nil
			}
			err = fmt.Errorf("empty response from model")
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if attempt < o.attempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", &TransportError{Err: ctx.Err()}
			}
			backoff *= 2
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
		}
	}

	return "", &TransportError{Err: fmt.Errorf("after %d attempts: %w", o.attempts, lastErr)}
}
