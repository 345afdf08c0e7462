package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-manga-bookmarks/config"
	"github.com/aluiziolira/go-manga-bookmarks/merge"
	"github.com/aluiziolira/go-manga-bookmarks/models"
	"github.com/aluiziolira/go-manga-bookmarks/pipeline"
	"github.com/aluiziolira/go-manga-bookmarks/romanize"
	"github.com/aluiziolira/go-manga-bookmarks/storage"
	"github.com/google/uuid"
	"golang.org/x/term"
)

func main() {
	defaults := config.DefaultConfig()

	configPath := flag.String("config", "", "YAML config file")
	inputFile := flag.String("i", "", "Bookmark export file (default stdin)")
	outputFile := flag.String("o", "", "Output file path (default stdout)")
	priorFile := flag.String("c", "", "Prior snapshot CSV to merge with")
	outputFormat := flag.String("format", defaults.OutputFormat, "Output format: csv, json, or dual")
	inputFormat := flag.String("input-format", defaults.InputFormat, "Input format: auto, json, or html")
	dbPath := flag.String("db", "", "SQLite database to load prior records from and save results to")
	metricsFile := flag.String("metrics", "", "Write Prometheus metrics to this textfile")
	workers := flag.Int("workers", defaults.Workers, "Concurrent romanization workers")
	romajiCache := flag.Int("romaji-cache", defaults.RomajiCacheSize, "Romanization cache entries")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i":
			cfg.InputFile = *inputFile
		case "o":
			cfg.OutputFile = *outputFile
		case "c":
			cfg.PriorFile = *priorFile
		case "format":
			cfg.OutputFormat = strings.ToLower(*outputFormat)
		case "input-format":
			cfg.InputFormat = strings.ToLower(*inputFormat)
		case "db":
			cfg.DBPath = *dbPath
		case "metrics":
			cfg.MetricsFile = *metricsFile
		case "workers":
			cfg.Workers = *workers
		case "romaji-cache":
			cfg.RomajiCacheSize = *romajiCache
		case "v":
			cfg.Verbose = *verbose
		}
	})

	runID := uuid.NewString()
	logger, level := newLogger(cfg.Verbose)
	logger = logger.With(slog.String("run_id", runID))
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, runID); err != nil {
		slog.Error("run failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, runID string) error {
	startTime := time.Now()

	kagome, err := romanize.NewKagome()
	if err != nil {
		return fmt.Errorf("initialising romanizer: %w", err)
	}
	rz, err := romanize.NewCached(kagome, cfg.RomajiCacheSize)
	if err != nil {
		return fmt.Errorf("initialising romanizer cache: %w", err)
	}

	metrics := merge.NewMetrics()
	p := pipeline.New(cfg, rz, metrics)

	src, err := openSource(cfg)
	if err != nil {
		return err
	}

	var store *storage.Store
	if cfg.DBPath != "" {
		store, err = storage.Open(ctx, storage.Config{Path: cfg.DBPath})
		if err != nil {
			return err
		}
		defer store.Close()
	}

	prior, err := loadPrior(ctx, cfg, p, store, rz)
	if err != nil {
		return err
	}

	slog.Info("starting merge",
		slog.String("input", displayName(cfg.InputFile, "stdin")),
		slog.String("output", displayName(cfg.OutputFile, "stdout")),
		slog.Int("prior", len(prior)),
		slog.Int("workers", cfg.Workers),
	)

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}

	res, err := p.Run(ctx, src, prior, writer)
	if err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}

	if store != nil {
		if err := store.SaveResult(ctx, runID, res); err != nil {
			return fmt.Errorf("save results: %w", err)
		}
		slog.Info("results saved", slog.String("db", cfg.DBPath))
	}

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			return err
		}
	}

	var stored *storeSummary
	if store != nil {
		stored, err = summarizeStore(ctx, store)
		if err != nil {
			return err
		}
	}

	printSummary(os.Stderr, res, time.Since(startTime), cfg, p.GetMetrics(), stored)
	return nil
}

// storeSummary is what the database holds after a run.
type storeSummary struct {
	byStatus map[string]int
	tags     []storage.TagCount
}

func summarizeStore(ctx context.Context, store *storage.Store) (*storeSummary, error) {
	byStatus, err := store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := store.Tags(ctx)
	if err != nil {
		return nil, err
	}
	return &storeSummary{byStatus: byStatus, tags: tags}, nil
}

func openSource(cfg *config.Config) (pipeline.Source, error) {
	if cfg.InputFile != "" {
		return pipeline.FileSource{Path: cfg.InputFile, Format: cfg.InputFormat}, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return pipeline.ExportSource{Format: cfg.InputFormat, Data: data}, nil
}

func loadPrior(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, store *storage.Store, rz romanize.Romanizer) ([]*models.Record, error) {
	var prior []*models.Record

	if cfg.PriorFile != "" {
		f, err := os.Open(cfg.PriorFile)
		if err != nil {
			return nil, fmt.Errorf("open prior snapshot: %w", err)
		}
		defer f.Close()

		snapshot, err := p.ReadSnapshot(f)
		if err != nil {
			return nil, err
		}
		if len(snapshot.Skipped) > 0 {
			slog.Warn("prior snapshot rows skipped", slog.Int("count", len(snapshot.Skipped)))
		}
		prior = append(prior, snapshot.Records...)
	}

	if store != nil {
		stored, err := store.LoadRecords(ctx, rz)
		if err != nil {
			return nil, err
		}
		slog.Debug("loaded stored records", slog.Int("count", len(stored)))
		prior = append(prior, stored...)
	}
	return prior, nil
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		if filename == "" {
			return pipeline.NewJSONStreamWriter(os.Stdout), nil
		}
		return pipeline.NewJSONWriter(filename)
	case "csv":
		if filename == "" {
			return pipeline.NewCSVStreamWriter(os.Stdout), nil
		}
		return pipeline.NewCSVWriter(filename)
	case "dual":
		return pipeline.NewDualWriter(filename, pipeline.JSONPath(filename))
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func displayName(path, fallback string) string {
	if path == "" {
		return fallback
	}
	return path
}

func printSummary(w io.Writer, res *merge.Result, duration time.Duration, cfg *config.Config, metrics map[string]interface{}, stored *storeSummary) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Merge complete")

	fmt.Fprintf(w, "  Fresh records:    %d\n", res.Stats.Fresh)
	fmt.Fprintf(w, "  Prior records:    %d\n", res.Stats.Prior)
	fmt.Fprintf(w, "  Exact duplicates: %d\n", res.Stats.ExactDuplicates)
	fmt.Fprintf(w, "  Unique:           %d\n", res.Stats.Unique)
	fmt.Fprintf(w, "  Duplicates:       %d in %d groups\n", res.Stats.Duplicates, res.Stats.Groups)
	if res.Stats.Residual > 0 {
		fmt.Fprintf(w, "  Residual:         %d\n", res.Stats.Residual)
	}
	if invalid, ok := metrics["invalid_leaves"].(int64); ok && invalid > 0 {
		fmt.Fprintf(w, "  Invalid leaves:   %d\n", invalid)
	}
	if skipped, ok := metrics["skipped_rows"].(map[string]int); ok && len(skipped) > 0 {
		fmt.Fprintf(w, "  Skipped rows:     %v\n", skipped)
	}
	if stored != nil {
		fmt.Fprintf(w, "  Stored:           %d unique, %d duplicate, %d residual\n",
			stored.byStatus[storage.StatusUnique],
			stored.byStatus[storage.StatusDuplicate],
			stored.byStatus[storage.StatusResidual],
		)
		if len(stored.tags) > 0 {
			parts := make([]string, 0, len(stored.tags))
			for _, tc := range stored.tags {
				parts = append(parts, fmt.Sprintf("%s (%d)", tc.Tag, tc.Count))
			}
			fmt.Fprintf(w, "  Tags:             %s\n", strings.Join(parts, ", "))
		}
	}
	fmt.Fprintf(w, "  Duration:         %v\n", duration)
	fmt.Fprintf(w, "  Output:           %s\n", displayName(cfg.OutputFile, "stdout"))
	fmt.Fprintln(w, separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	// stdout may carry the merged output.
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
