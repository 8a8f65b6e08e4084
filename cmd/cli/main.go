package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/offshore-radar/internal/classify"
	"github.com/dvloznov/offshore-radar/internal/config"
	"github.com/dvloznov/offshore-radar/internal/logger"
	"github.com/dvloznov/offshore-radar/internal/runs"
	"github.com/dvloznov/offshore-radar/internal/runs/inmemory"
	"github.com/dvloznov/offshore-radar/internal/service"
	"github.com/dvloznov/offshore-radar/internal/signals"
	"github.com/dvloznov/offshore-radar/internal/storage"
)

// version is stamped by the release build.
var version = "dev"

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "screen":
		runScreen(log)
	case "decode-swift":
		runDecodeSwift(log)
	case "match":
		runMatch(log)
	case "list-exports":
		runListExports(log)
	case "version":
		fmt.Printf("offshore-radar %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Offshore Radar CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  screen        Screen incoming/outgoing transaction reports for offshore risk")
	fmt.Println("  decode-swift  Decode the jurisdiction embedded in a SWIFT/BIC code")
	fmt.Println("  match         Fuzzy-match a country or city name against the offshore list")
	fmt.Println("  list-exports  List previously exported result files in the results bucket")
	fmt.Println("  version       Print the build version")
	fmt.Println("  help          Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func loadSettings(log zerolog.Logger) config.Settings {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	return cfg
}

func loadList(cfg config.Settings, log zerolog.Logger) *signals.List {
	if cfg.OffshoreListFile == "" {
		return signals.DefaultList()
	}
	list, err := signals.ParseListFile(cfg.OffshoreListFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.OffshoreListFile).Msg("Failed to load offshore list")
	}
	return list
}

func runScreen(log zerolog.Logger) {
	fs := flag.NewFlagSet("screen", flag.ExitOnError)
	incomingPath := fs.String("incoming", "", "Incoming report paths, comma-separated (local or gs:// URIs)")
	outgoingPath := fs.String("outgoing", "", "Outgoing report paths, comma-separated (local or gs:// URIs)")
	outDir := fs.String("out", "", "Output directory (defaults to configured temp storage)")
	threshold := fs.String("threshold", "", "Amount threshold in KZT (overrides AMOUNT_THRESHOLD_KZT)")
	uploadBucket := fs.String("upload-bucket", "", "GCS bucket to mirror result files to (overrides RESULTS_BUCKET)")
	fs.Parse(os.Args[2:])

	incomingFiles := splitPaths(*incomingPath)
	outgoingFiles := splitPaths(*outgoingPath)
	if len(incomingFiles) == 0 && len(outgoingFiles) == 0 {
		log.Fatal().Msg("Usage: cli screen -incoming PATH[,PATH...] and/or -outgoing PATH[,PATH...]")
	}

	cfg := loadSettings(log)
	if *outDir != "" {
		cfg.TempStoragePath = *outDir
	}
	if *threshold != "" {
		v, err := decimal.NewFromString(*threshold)
		if err != nil || v.IsNegative() {
			log.Fatal().Str("threshold", *threshold).Msg("Invalid -threshold value")
		}
		cfg.AmountThresholdKZT = v
	}
	if *uploadBucket != "" {
		cfg.ResultsBucket = *uploadBucket
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	oracle, err := classify.NewGeminiOracle(ctx, cfg.GeminiModel, cfg.OracleTimeout, cfg.MaxOracleAttempts)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create oracle client")
	}

	var objects storage.Service
	if anyURI(incomingFiles) || anyURI(outgoingFiles) || cfg.ResultsBucket != "" {
		gcs, err := storage.NewGCS(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		defer gcs.Close()
		objects = gcs
	}

	svc := service.New(cfg, oracle, loadList(cfg, log), inmemory.NewStore(), objects, log)

	batch, err := svc.ProcessBatch(ctx, incomingFiles, outgoingFiles)
	if err != nil {
		log.Fatal().Err(err).Msg("Screening failed")
	}

	for _, run := range batch {
		printOutcome("incoming", run.Incoming)
		printOutcome("outgoing", run.Outgoing)
	}

	printHistory(ctx, svc)

	failed := 0
	for _, run := range batch {
		if run.Status == runs.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		log.Fatal().Int("failed_runs", failed).Int("total_runs", len(batch)).Msg("Screening finished with failed runs")
	}
	fmt.Printf("%d run(s) completed.\n", len(batch))
}

func printOutcome(direction string, outcome *runs.FileOutcome) {
	if outcome == nil {
		return
	}
	raw, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return
	}
	fmt.Printf("%s:\n%s\n", direction, raw)
}

// printHistory shows the run registry for this screening session,
// newest first.
func printHistory(ctx context.Context, svc *service.Service) {
	history, err := svc.History(ctx, runs.Filter{})
	if err != nil {
		return
	}
	fmt.Println("Runs:")
	for _, run := range history {
		line := fmt.Sprintf("  %s  %-9s  %s", run.RunID, run.Status, run.CreatedAt.Format(time.RFC3339))
		if run.Error != "" {
			line += "  " + run.Error
		}
		fmt.Println(line)
	}
}

func splitPaths(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func anyURI(paths []string) bool {
	for _, p := range paths {
		if storage.IsURI(p) {
			return true
		}
	}
	return false
}

func runDecodeSwift(log zerolog.Logger) {
	fs := flag.NewFlagSet("decode-swift", flag.ExitOnError)
	code := fs.String("code", "", "SWIFT/BIC code to decode")
	fs.Parse(os.Args[2:])

	if *code == "" {
		log.Fatal().Msg("Error: -code is required")
	}

	cfg := loadSettings(log)
	list := loadList(cfg, log)

	info := signals.DecodeSwift(*code, list)
	if !info.Valid {
		fmt.Printf("%s: not a valid SWIFT/BIC code\n", *code)
		os.Exit(1)
	}

	fmt.Printf("%s: country %s (%s)", *code, info.CountryCode, info.CountryName)
	if list.Contains(info.CountryCode) {
		fmt.Print(" [offshore]")
	}
	fmt.Println()
}

func runMatch(log zerolog.Logger) {
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	text := fs.String("text", "", "Country or city name to match")
	threshold := fs.Float64("threshold", 0, "Similarity threshold override")
	fs.Parse(os.Args[2:])

	if *text == "" {
		log.Fatal().Msg("Error: -text is required")
	}

	cfg := loadSettings(log)
	if *threshold > 0 {
		cfg.FuzzyMatchThreshold = *threshold
	}
	list := loadList(cfg, log)
	matcher := signals.NewMatcher(list, cfg.FuzzyMatchThreshold)

	signal, matches := matcher.MatchCountryName(*text)
	if !signal.Offshore {
		fmt.Printf("%s: no offshore match at threshold %.2f\n", *text, cfg.FuzzyMatchThreshold)
		return
	}
	for _, m := range matches {
		fmt.Printf("%s (%s): %.2f\n", m.Name, m.Code, m.Score)
	}
}

func runListExports(log zerolog.Logger) {
	fs := flag.NewFlagSet("list-exports", flag.ExitOnError)
	bucket := fs.String("bucket", "", "Results bucket (defaults to configured bucket)")
	prefix := fs.String("prefix", "", "Object name prefix")
	fs.Parse(os.Args[2:])

	cfg := loadSettings(log)
	if *bucket == "" {
		*bucket = cfg.ResultsBucket
	}
	if *bucket == "" {
		log.Fatal().Msg("Error: -bucket is required when no results bucket is configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	gcs, err := storage.NewGCS(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer gcs.Close()

	names, err := gcs.ListExports(ctx, *bucket, *prefix)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list exports")
	}
	for _, name := range names {
		fmt.Println(name)
	}
	fmt.Printf("%d export(s) in gs://%s\n", len(names), *bucket)
}
