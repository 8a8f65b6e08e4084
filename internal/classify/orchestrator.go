package classify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/offshore-radar/internal/signals"
	"github.com/dvloznov/offshore-radar/internal/txn"
)

// syntheticReasoning is the fixed Russian note on fallback results.
const syntheticReasoning = "Ошибка при обработке LLM. Требуется ручная проверка."

// BatchState tracks where a batch is in its lifecycle, for logging.
type BatchState string

const (
	StatePending          BatchState = "pending"
	StateDispatched       BatchState = "dispatched"
	StateValidationFailed BatchState = "validation_failed"
	StateTransportFailed  BatchState = "transport_failed"
	StateReconciled       BatchState = "reconciled"
	StateFailed           BatchState = "failed"
)

// Config bounds the orchestrator. Zero values are not usable; callers
// build it from config.Settings.
type Config struct {
	// BatchSize is how many records go into one oracle call.
	BatchSize int

	// Concurrency caps in-flight oracle calls across all batches.
	Concurrency int

	// MaxAttempts caps oracle calls per batch when responses keep
	// failing validation. The first call counts as attempt one.
	MaxAttempts int

	Temperature      float64
	RetryTemperature float64
}

// Orchestrator fans batches out to the oracle and guarantees exactly
// one result per input record, in input order. Oracle failures of any
// kind degrade to synthetic manual-review results, never to missing or
// duplicated records.
type Orchestrator struct {
	oracle     Oracle
	policy     string
	validators []Validator
	cfg        Config
	log        zerolog.Logger
}

// NewOrchestrator wires an orchestrator. The policy is rendered once
// from the jurisdiction list; validators run in order on every parsed
// batch. Non-positive bounds are clamped to 1 so a zero-value Config
// cannot stall ClassifyAll.
func NewOrchestrator(oracle Oracle, list *signals.List, cfg Config, log zerolog.Logger) *Orchestrator {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Orchestrator{
		oracle:     oracle,
		policy:     BuildPolicy(list),
		validators: []Validator{ContradictionCheck},
		cfg:        cfg,
		log:        log,
	}
}

// ClassifyAll classifies every record and returns one result per record
// in input order. It never drops records: batches that fail transport,
// validation retries or reconciliation produce synthetic results.
func (o *Orchestrator) ClassifyAll(ctx context.Context, records []txn.Record) []Result {
	if len(records) == 0 {
		return nil
	}

	out := make([]Result, len(records))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)

	for start := 0; start < len(records); start += o.cfg.BatchSize {
		end := start + o.cfg.BatchSize
		if end > len(records) {
			end = len(records)
		}

		g.Go(func() error {
			batch := o.classifyBatch(ctx, records[start:end])
			copy(out[start:end], batch)
			return nil
		})
	}

	// Goroutines never return errors; failures become synthetic results.
	_ = g.Wait()

	return out
}

// classifyBatch runs the retry state machine for one batch. The return
// always has exactly len(records) elements in record order.
func (o *Orchestrator) classifyBatch(ctx context.Context, records []txn.Record) []Result {
	summaries := make([]RecordSummary, len(records))
	for i := range records {
		summaries[i] = Summarize(&records[i])
	}

	log := o.log.With().Int("batch_size", len(records)).Logger()

	var lastValidation string
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		req := BatchRequest{
			Policy:      o.policy,
			Records:     summaries,
			Temperature: o.cfg.Temperature,
		}
		if attempt > 1 {
			req.Temperature = o.cfg.RetryTemperature
			req.EscalationNote = escalationNote(attempt-1, o.cfg.MaxAttempts-1, lastValidation)
		}

		log.Debug().Int("attempt", attempt).Str("state", string(StateDispatched)).Msg("dispatching batch")

		raw, err := o.oracle.ClassifyBatch(ctx, req)
		if err != nil {
			var te *TransportError
			if errors.As(err, &te) {
				log.Error().Err(err).Str("state", string(StateTransportFailed)).Msg("oracle unreachable, batch degraded to synthetic results")
			} else {
				log.Error().Err(err).Str("state", string(StateFailed)).Msg("unexpected oracle error, batch degraded to synthetic results")
			}
			return syntheticBatch(records, fmt.Sprintf("oracle call failed: %v", err))
		}

		parsed, err := parseBatchResponse(raw)
		if err == nil {
			for _, v := range o.validators {
				if verr := v(parsed); verr != nil {
					err = verr
					break
				}
			}
		}
		if err != nil {
			var ve *ValidationError
			if !errors.As(err, &ve) {
				log.Error().Err(err).Str("state", string(StateFailed)).Msg("unretryable response error")
				return syntheticBatch(records, fmt.Sprintf("oracle response rejected: %v", err))
			}
			lastValidation = ve.Detail
			log.Warn().
				Int("attempt", attempt).
				Int("max_attempts", o.cfg.MaxAttempts).
				Str("state", string(StateValidationFailed)).
				Str("detail", ve.Detail).
				Msg("oracle response failed validation")
			continue
		}

		log.Debug().Int("attempt", attempt).Str("state", string(StateReconciled)).Msg("batch classified")
		return o.reconcile(records, parsed)
	}

	log.Error().
		Int("max_attempts", o.cfg.MaxAttempts).
		Str("detail", lastValidation).
		Msg("validation attempts exhausted, batch degraded to synthetic results")
	return syntheticBatch(records, fmt.Sprintf("validation error after %d attempts: %s", o.cfg.MaxAttempts, lastValidation))
}

// reconcile maps parsed results back onto the input records by
// transaction id. Direction and amount always come from the local
// record; records the oracle skipped get a synthetic result. Extra ids
// in the response are dropped.
func (o *Orchestrator) reconcile(records []txn.Record, parsed []Result) []Result {
	byID := make(map[string]Result, len(parsed))
	for _, r := range parsed {
		if _, dup := byID[r.TransactionID]; !dup {
			byID[r.TransactionID] = r
		}
	}

	out := make([]Result, len(records))
	for i := range records {
		rec := &records[i]
		r, ok := byID[rec.ID]
		if !ok {
			o.log.Warn().Str("transaction_id", rec.ID).Msg("transaction missing from oracle response")
			out[i] = syntheticResult(rec, "oracle returned no classification for this transaction")
			continue
		}
		r.Direction = rec.Direction
		r.AmountKZT = rec.AmountKZT
		out[i] = r
	}
	return out
}

func syntheticBatch(records []txn.Record, msg string) []Result {
	out := make([]Result, len(records))
	for i := range records {
		out[i] = syntheticResult(&records[i], msg)
	}
	return out
}

func syntheticResult(rec *txn.Record, msg string) Result {
	return Result{
		TransactionID: rec.ID,
		Direction:     rec.Direction,
		AmountKZT:     rec.AmountKZT,
		Label:         LabelOffshoreSuspect,
		Confidence:    0,
		Reasoning:     syntheticReasoning,
		Err:           msg,
	}
}
