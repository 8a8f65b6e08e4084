package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/offshore-radar/internal/signals"
	"github.com/dvloznov/offshore-radar/internal/txn"
)

// stubOracle records every request and answers via the respond func,
// which receives the zero-based global call number.
type stubOracle struct {
	mu      sync.Mutex
	calls   []BatchRequest
	respond func(call int, req BatchRequest) (string, error)
}

func (s *stubOracle) ClassifyBatch(ctx context.Context, req BatchRequest) (string, error) {
	s.mu.Lock()
	call := len(s.calls)
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	return s.respond(call, req)
}

func (s *stubOracle) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// goodResponse builds a valid response answering every record in the
// request with the given label.
func goodResponse(t *testing.T, req BatchRequest, label Label) string {
	t.Helper()

	results := make([]map[string]interface{}, 0, len(req.Records))
	for _, r := range req.Records {
		results = append(results, map[string]interface{}{
			"transaction_id":     r.TransactionID,
			"direction":          r.Direction,
			"classification":     map[string]interface{}{"label": string(label), "confidence": 0.9},
			"reasoning_short_ru": "Оценка на основе SWIFT-кода и совпадений по списку.",
			"sources":            []string{},
		})
	}
	raw, err := json.Marshal(map[string]interface{}{"results": results})
	if err != nil {
		t.Fatalf("marshal stub response: %v", err)
	}
	return string(raw)
}

func makeRecords(n int) []txn.Record {
	records := make([]txn.Record, n)
	for i := range records {
		records[i] = txn.Record{
			ID:        strconv.Itoa(i + 1),
			Direction: txn.Incoming,
			AmountKZT: decimal.NewFromInt(int64(1_000_000 * (i + 1))),
		}
	}
	return records
}

func newTestOrchestrator(oracle Oracle, cfg Config) *Orchestrator {
	return NewOrchestrator(oracle, signals.DefaultList(), cfg, zerolog.New(io.Discard))
}

func TestClassifyAllCoverage(t *testing.T) {
	oracle := &stubOracle{
		respond: func(call int, req BatchRequest) (string, error) {
			return goodResponse(t, req, LabelOffshoreNo), nil
		},
	}
	o := newTestOrchestrator(oracle, Config{BatchSize: 10, Concurrency: 5, MaxAttempts: 3, Temperature: 0.1, RetryTemperature: 0.3})

	records := makeRecords(12)
	results := o.ClassifyAll(context.Background(), records)

	if len(results) != 12 {
		t.Fatalf("got %d results, want 12", len(results))
	}
	for i, r := range results {
		if r.TransactionID != records[i].ID {
			t.Errorf("result %d id = %q, want %q", i, r.TransactionID, records[i].ID)
		}
		if !r.AmountKZT.Equal(records[i].AmountKZT) {
			t.Errorf("result %d amount = %s, want local %s", i, r.AmountKZT, records[i].AmountKZT)
		}
		if r.Errored() {
			t.Errorf("result %d unexpectedly synthetic: %s", i, r.Err)
		}
	}
	// 12 records at batch size 10 is two oracle calls.
	if got := oracle.callCount(); got != 2 {
		t.Errorf("oracle called %d times, want 2", got)
	}
}

func TestClassifyAllEmpty(t *testing.T) {
	oracle := &stubOracle{respond: func(int, BatchRequest) (string, error) {
		return "", fmt.Errorf("must not be called")
	}}
	o := newTestOrchestrator(oracle, Config{BatchSize: 10, Concurrency: 1, MaxAttempts: 1})

	if got := o.ClassifyAll(context.Background(), nil); got != nil {
		t.Errorf("ClassifyAll(nil) = %v, want nil", got)
	}
	if oracle.callCount() != 0 {
		t.Error("oracle called for empty input")
	}
}

func TestClassifyAllZeroConfig(t *testing.T) {
	oracle := &stubOracle{
		respond: func(call int, req BatchRequest) (string, error) {
			return goodResponse(t, req, LabelOffshoreNo), nil
		},
	}
	// A zero-value Config must clamp to batch size 1, concurrency 1 and
	// one attempt instead of stalling the errgroup.
	o := newTestOrchestrator(oracle, Config{})

	records := makeRecords(3)
	results := o.ClassifyAll(context.Background(), records)

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, r := range results {
		if r.TransactionID != records[i].ID || r.Errored() {
			t.Errorf("result %d = %+v, want clean result for %q", i, r, records[i].ID)
		}
	}
	if got := oracle.callCount(); got != 3 {
		t.Errorf("oracle called %d times, want 3 single-record batches", got)
	}
}

func TestValidationRetryThenSuccess(t *testing.T) {
	oracle := &stubOracle{
		respond: func(call int, req BatchRequest) (string, error) {
			if call == 0 {
				return "definitely not json", nil
			}
			return goodResponse(t, req, LabelOffshoreYes), nil
		},
	}
	o := newTestOrchestrator(oracle, Config{BatchSize: 10, Concurrency: 1, MaxAttempts: 3, Temperature: 0.1, RetryTemperature: 0.3})

	results := o.ClassifyAll(context.Background(), makeRecords(3))

	if oracle.callCount() != 2 {
		t.Fatalf("oracle called %d times, want 2", oracle.callCount())
	}
	for _, r := range results {
		if r.Label != LabelOffshoreYes || r.Errored() {
			t.Errorf("result = %+v, want clean OFFSHORE_YES", r)
		}
	}

	// The retry must escalate: higher temperature plus an explanation of
	// the previous failure.
	retry := oracle.calls[1]
	if retry.Temperature != 0.3 {
		t.Errorf("retry temperature = %g, want 0.3", retry.Temperature)
	}
	if retry.EscalationNote == "" || !strings.Contains(retry.EscalationNote, "undecodable JSON") {
		t.Errorf("escalation note = %q, want previous error details", retry.EscalationNote)
	}
	if oracle.calls[0].EscalationNote != "" {
		t.Error("first attempt must not carry an escalation note")
	}
}

func TestValidationRetryExhaustion(t *testing.T) {
	oracle := &stubOracle{
		respond: func(int, BatchRequest) (string, error) {
			return `{"results": [{"transaction_id": "1", "classification": {"label": "MAYBE", "confidence": 0.5}, "reasoning_short_ru": "Достаточно длинное объяснение.", "sources": []}]}`, nil
		},
	}
	o := newTestOrchestrator(oracle, Config{BatchSize: 10, Concurrency: 1, MaxAttempts: 3, Temperature: 0.1, RetryTemperature: 0.3})

	records := makeRecords(2)
	results := o.ClassifyAll(context.Background(), records)

	if got := oracle.callCount(); got != 3 {
		t.Fatalf("oracle called %d times, want exactly the attempt cap of 3", got)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for i, r := range results {
		if r.Label != LabelOffshoreSuspect {
			t.Errorf("result %d label = %s, want OFFSHORE_SUSPECT", i, r.Label)
		}
		if r.Confidence != 0 {
			t.Errorf("result %d confidence = %g, want 0", i, r.Confidence)
		}
		if r.Reasoning != syntheticReasoning {
			t.Errorf("result %d reasoning = %q", i, r.Reasoning)
		}
		if !strings.Contains(r.Err, "after 3 attempts") {
			t.Errorf("result %d err = %q, want attempt count", i, r.Err)
		}
		if !r.AmountKZT.Equal(records[i].AmountKZT) {
			t.Errorf("result %d amount = %s, want local amount", i, r.AmountKZT)
		}
	}
}

func TestTransportFailureNoRetry(t *testing.T) {
	oracle := &stubOracle{
		respond: func(int, BatchRequest) (string, error) {
			return "", &TransportError{Err: fmt.Errorf("connection refused")}
		},
	}
	o := newTestOrchestrator(oracle, Config{BatchSize: 10, Concurrency: 1, MaxAttempts: 3, Temperature: 0.1, RetryTemperature: 0.3})

	results := o.ClassifyAll(context.Background(), makeRecords(4))

	if got := oracle.callCount(); got != 1 {
		t.Fatalf("oracle called %d times, want 1 (transport failures are not retried)", got)
	}
	for _, r := range results {
		if r.Label != LabelOffshoreSuspect || !r.Errored() {
			t.Errorf("result = %+v, want synthetic OFFSHORE_SUSPECT", r)
		}
	}
}

func TestContradictionTriggersRetry(t *testing.T) {
	contradictory := `{"results": [{"transaction_id": "1", "direction": "incoming", "classification": {"label": "OFFSHORE_NO", "confidence": 0.9}, "reasoning_short_ru": "Юрисдикция находится в списке офшоров.", "sources": []}]}`

	oracle := &stubOracle{
		respond: func(call int, req BatchRequest) (string, error) {
			if call == 0 {
				return contradictory, nil
			}
			return goodResponse(t, req, LabelOffshoreYes), nil
		},
	}
	o := newTestOrchestrator(oracle, Config{BatchSize: 10, Concurrency: 1, MaxAttempts: 3, Temperature: 0.1, RetryTemperature: 0.3})

	results := o.ClassifyAll(context.Background(), makeRecords(1))

	if oracle.callCount() != 2 {
		t.Fatalf("oracle called %d times, want 2 (contradiction must retry)", oracle.callCount())
	}
	if results[0].Label != LabelOffshoreYes || results[0].Errored() {
		t.Errorf("result = %+v, want clean retry outcome", results[0])
	}
}

func TestReconcileMissingAndUnknownIDs(t *testing.T) {
	oracle := &stubOracle{
		respond: func(call int, req BatchRequest) (string, error) {
			// Answers record 1, skips record 2, invents record 99.
			return `{"results": [
				{"transaction_id": "1", "direction": "incoming", "classification": {"label": "OFFSHORE_NO", "confidence": 0.8}, "reasoning_short_ru": "Признаков офшорной юрисдикции нет.", "sources": []},
				{"transaction_id": "99", "direction": "incoming", "classification": {"label": "OFFSHORE_YES", "confidence": 0.8}, "reasoning_short_ru": "Несуществующая запись из ответа модели.", "sources": []}
			]}`, nil
		},
	}
	o := newTestOrchestrator(oracle, Config{BatchSize: 10, Concurrency: 1, MaxAttempts: 3, Temperature: 0.1, RetryTemperature: 0.3})

	records := makeRecords(2)
	results := o.ClassifyAll(context.Background(), records)

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (no invented records)", len(results))
	}
	if results[0].Errored() || results[0].Label != LabelOffshoreNo {
		t.Errorf("result[0] = %+v, want real OFFSHORE_NO", results[0])
	}
	if !results[1].Errored() || results[1].Label != LabelOffshoreSuspect {
		t.Errorf("result[1] = %+v, want synthetic fallback for skipped record", results[1])
	}
	if !strings.Contains(results[1].Err, "no classification") {
		t.Errorf("result[1].Err = %q", results[1].Err)
	}
}

func TestReconcileOverridesDirectionAndAmount(t *testing.T) {
	oracle := &stubOracle{
		respond: func(call int, req BatchRequest) (string, error) {
			// Oracle reports the wrong direction; the local record wins.
			return `{"results": [{"transaction_id": "1", "direction": "outgoing", "classification": {"label": "OFFSHORE_NO", "confidence": 0.8}, "reasoning_short_ru": "Признаков офшорной юрисдикции нет.", "sources": []}]}`, nil
		},
	}
	o := newTestOrchestrator(oracle, Config{BatchSize: 10, Concurrency: 1, MaxAttempts: 3})

	records := makeRecords(1)
	results := o.ClassifyAll(context.Background(), records)

	if results[0].Direction != txn.Incoming {
		t.Errorf("direction = %q, want local incoming", results[0].Direction)
	}
	if !results[0].AmountKZT.Equal(records[0].AmountKZT) {
		t.Errorf("amount = %s, want local %s", results[0].AmountKZT, records[0].AmountKZT)
	}
}

func TestClassifyAllOrderUnderConcurrency(t *testing.T) {
	oracle := &stubOracle{
		respond: func(call int, req BatchRequest) (string, error) {
			// Early batches finish last to shuffle completion order.
			time.Sleep(time.Duration(10-call) * time.Millisecond)
			return goodResponse(t, req, LabelOffshoreNo), nil
		},
	}
	o := newTestOrchestrator(oracle, Config{BatchSize: 5, Concurrency: 5, MaxAttempts: 3, Temperature: 0.1, RetryTemperature: 0.3})

	records := makeRecords(25)
	results := o.ClassifyAll(context.Background(), records)

	if len(results) != 25 {
		t.Fatalf("got %d results, want 25", len(results))
	}
	for i, r := range results {
		if r.TransactionID != records[i].ID {
			t.Fatalf("result %d id = %q, want %q (order not preserved)", i, r.TransactionID, records[i].ID)
		}
	}
}

func TestClassifyAllMixedBatches(t *testing.T) {
	// Batch one answers cleanly; batch two is broken once, then clean.
	var batchTwoFailed sync.Once
	oracle := &stubOracle{
		respond: func(call int, req BatchRequest) (string, error) {
			if req.Records[0].TransactionID == "11" {
				failed := false
				batchTwoFailed.Do(func() {
					failed = true
				})
				if failed {
					return "broken", nil
				}
			}
			return goodResponse(t, req, LabelOffshoreNo), nil
		},
	}
	o := newTestOrchestrator(oracle, Config{BatchSize: 10, Concurrency: 2, MaxAttempts: 3, Temperature: 0.1, RetryTemperature: 0.3})

	records := makeRecords(12)
	results := o.ClassifyAll(context.Background(), records)

	if len(results) != 12 {
		t.Fatalf("got %d results, want 12", len(results))
	}
	for i, r := range results {
		if r.Errored() {
			t.Errorf("result %d synthetic after recoverable failure: %s", i, r.Err)
		}
	}
	// Two batches plus one retry for the second batch.
	if got := oracle.callCount(); got != 3 {
		t.Errorf("oracle called %d times, want 3", got)
	}
}
