// Package service runs the screening pipeline end to end: parse,
// filter, extract signals, classify, export. The two input files of a
// run are processed independently so one failing never blocks the
// other.
package service

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/offshore-radar/internal/classify"
	"github.com/dvloznov/offshore-radar/internal/config"
	"github.com/dvloznov/offshore-radar/internal/export"
	"github.com/dvloznov/offshore-radar/internal/ingest"
	"github.com/dvloznov/offshore-radar/internal/normalize"
	"github.com/dvloznov/offshore-radar/internal/runs"
	"github.com/dvloznov/offshore-radar/internal/signals"
	"github.com/dvloznov/offshore-radar/internal/storage"
	"github.com/dvloznov/offshore-radar/internal/txn"
)

// Service wires the pipeline stages. Objects may be nil when no GCS
// access is configured; gs:// inputs then fail with an explicit error.
type Service struct {
	cfg          config.Settings
	list         *signals.List
	extractor    *signals.Extractor
	orchestrator *classify.Orchestrator
	store        runs.Store
	objects      storage.Service
	log          zerolog.Logger
}

// New builds the service. The orchestrator and extractor are
// constructed once and shared across runs.
func New(cfg config.Settings, oracle classify.Oracle, list *signals.List, store runs.Store, objects storage.Service, log zerolog.Logger) *Service {
	orchestrator := classify.NewOrchestrator(oracle, list, classify.Config{
		BatchSize:        cfg.BatchSize,
		Concurrency:      cfg.MaxConcurrentCalls,
		MaxAttempts:      cfg.MaxRetries,
		Temperature:      cfg.Temperature,
		RetryTemperature: cfg.RetryTemperature,
	}, log)

	return &Service{
		cfg:          cfg,
		list:         list,
		extractor:    signals.NewExtractor(list, cfg.FuzzyMatchThreshold, log),
		orchestrator: orchestrator,
		store:        store,
		objects:      objects,
		log:          log,
	}
}

// FileResult is the outcome of processing one input file.
type FileResult struct {
	Direction  txn.Direction
	InputPath  string
	OutputPath string
	Report     ingest.Report
	Summary    export.Summary
	Results    []classify.Result

	// Note is set instead of an error for benign outcomes, e.g. no
	// rows above the threshold.
	Note string
}

// ProcessFile runs the full pipeline for one file. NotFound, parse and
// export failures abort this file; oracle failures never do, they
// surface as synthetic results in the output.
func (s *Service) ProcessFile(ctx context.Context, inputPath string, direction txn.Direction) (*FileResult, error) {
	log := s.log.With().Str("direction", string(direction)).Str("input", inputPath).Logger()

	table, err := s.parse(ctx, inputPath, direction)
	if err != nil {
		return nil, err
	}

	report := table.Validate()
	if len(report.MissingColumns) > 0 {
		log.Warn().Strs("missing_columns", report.MissingColumns).Msg("source format drift, continuing with available columns")
	}
	log.Info().Int("rows", report.TotalRows).Int("empty_amounts", report.EmptyAmountCells).Msg("file parsed")

	filtered := normalize.FilterByThreshold(table, s.cfg.AmountThresholdKZT)
	filtered = normalize.FilterByPaymentStatus(filtered)

	res := &FileResult{
		Direction: direction,
		InputPath: inputPath,
		Report:    report,
	}

	if len(filtered.Rows) == 0 {
		log.Info().Str("threshold", s.cfg.AmountThresholdKZT.String()).Msg("no rows above threshold")
		res.Note = fmt.Sprintf("no transactions at or above %s KZT", s.cfg.AmountThresholdKZT)
		return res, nil
	}

	records := normalize.NormalizeTable(filtered)
	flagged := s.extractor.ExtractAll(records)
	log.Info().Int("records", len(records)).Int("flagged_locally", flagged).Msg("signals extracted")

	results := s.orchestrator.ClassifyAll(ctx, records)

	outputPath := export.OutputFilename(direction, s.cfg.TempStoragePath)
	if err := export.Write(filtered, results, outputPath); err != nil {
		return nil, fmt.Errorf("ProcessFile: %w", err)
	}

	res.OutputPath = outputPath
	res.Results = results
	res.Summary = export.Stats(results)
	log.Info().
		Str("output", outputPath).
		Int("total", res.Summary.Total).
		Int("errored", res.Summary.Errored).
		Msg("file processed")

	if s.cfg.ResultsBucket != "" && s.objects != nil {
		object := path.Base(outputPath)
		if err := s.objects.Upload(ctx, s.cfg.ResultsBucket, object, outputPath); err != nil {
			// The local export succeeded; a failed mirror upload is
			// worth a warning, not a failed file.
			log.Warn().Err(err).Str("bucket", s.cfg.ResultsBucket).Msg("result upload failed")
		}
	}

	return res, nil
}

func (s *Service) parse(ctx context.Context, inputPath string, direction txn.Direction) (*ingest.Table, error) {
	if !storage.IsURI(inputPath) {
		return ingest.ParseFile(inputPath, direction)
	}

	if s.objects == nil {
		return nil, fmt.Errorf("parse: %s: no object storage configured for gs:// inputs", inputPath)
	}
	data, err := s.objects.Download(ctx, inputPath)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return ingest.Parse(bytes.NewReader(data), direction)
}

// ProcessFiles screens an incoming and an outgoing file as one run.
// Either path may be empty to skip that direction. Per-direction
// failures are recorded on the run; the run itself fails only when
// every requested direction failed.
func (s *Service) ProcessFiles(ctx context.Context, incomingPath, outgoingPath string) (*runs.ScreeningRun, error) {
	if incomingPath == "" && outgoingPath == "" {
		return nil, fmt.Errorf("ProcessFiles: no input files given")
	}

	now := time.Now()
	run := &runs.ScreeningRun{
		RunID:     uuid.NewString(),
		Status:    runs.StatusRunning,
		CreatedAt: now,
		StartedAt: &now,
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("ProcessFiles: save run: %w", err)
	}

	if incomingPath != "" {
		run.Incoming = s.processDirection(ctx, incomingPath, txn.Incoming)
	}
	if outgoingPath != "" {
		run.Outgoing = s.processDirection(ctx, outgoingPath, txn.Outgoing)
	}

	done := time.Now()
	run.CompletedAt = &done
	if err := s.store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("ProcessFiles: save run: %w", err)
	}

	status := runs.StatusCompleted
	errMsg := ""
	if failed, total := s.tally(run); failed == total {
		status = runs.StatusFailed
		errMsg = "all input files failed"
	}
	run.Status = status
	run.Error = errMsg
	if err := s.store.UpdateStatus(ctx, run.RunID, status, errMsg); err != nil {
		return nil, fmt.Errorf("ProcessFiles: finish run: %w", err)
	}
	return run, nil
}

// ProcessBatch screens several report pairs as independent runs. The
// slices are paired by position; a missing counterpart leaves that
// direction empty. Per-file failures are recorded on the runs, never
// returned, so one bad pair does not stop the rest of the batch.
func (s *Service) ProcessBatch(ctx context.Context, incoming, outgoing []string) ([]*runs.ScreeningRun, error) {
	n := len(incoming)
	if len(outgoing) > n {
		n = len(outgoing)
	}
	if n == 0 {
		return nil, fmt.Errorf("ProcessBatch: no input files given")
	}

	out := make([]*runs.ScreeningRun, 0, n)
	for i := 0; i < n; i++ {
		var in, og string
		if i < len(incoming) {
			in = incoming[i]
		}
		if i < len(outgoing) {
			og = outgoing[i]
		}

		run, err := s.ProcessFiles(ctx, in, og)
		if err != nil {
			return out, fmt.Errorf("ProcessBatch: pair %d: %w", i+1, err)
		}
		out = append(out, run)
	}
	return out, nil
}

// History lists recorded screening runs from the run registry, newest
// first.
func (s *Service) History(ctx context.Context, filter runs.Filter) ([]*runs.ScreeningRun, error) {
	return s.store.ListRuns(ctx, filter)
}

func (s *Service) processDirection(ctx context.Context, inputPath string, direction txn.Direction) *runs.FileOutcome {
	outcome := &runs.FileOutcome{InputPath: inputPath}

	res, err := s.ProcessFile(ctx, inputPath, direction)
	if err != nil {
		s.log.Error().Err(err).Str("direction", string(direction)).Msg("file processing failed")
		outcome.Error = err.Error()
		return outcome
	}

	outcome.OutputPath = res.OutputPath
	outcome.Report = res.Report
	outcome.Summary = res.Summary
	outcome.Note = res.Note
	return outcome
}

func (s *Service) tally(run *runs.ScreeningRun) (failed, total int) {
	for _, o := range []*runs.FileOutcome{run.Incoming, run.Outgoing} {
		if o == nil {
			continue
		}
		total++
		if o.Error != "" {
			failed++
		}
	}
	return failed, total
}
