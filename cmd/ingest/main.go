package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/dshills/legalbrain/internal/app"
	"github.com/dshills/legalbrain/internal/config"
	"github.com/dshills/legalbrain/internal/ingest"
	"github.com/dshills/legalbrain/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to a YAML config file (default: $LEGALBRAIN_CONFIG or ./legalbrain.yaml)")
	dir := flag.String("dir", "", "Directory of documents to ingest")
	file := flag.String("file", "", "Single document to ingest")
	docID := flag.String("id", "", "Document ID for -file (default: the file path)")
	pattern := flag.String("pattern", "", "Glob selecting files under -dir (default: "+ingest.DefaultPattern+")")
	workers := flag.Int("workers", 0, "Documents ingested concurrently (default: from config)")
	query := flag.String("query", "", "Run a retrieval query after ingesting")
	topK := flag.Int("top-k", 0, "Results to return for -query (default: from config)")
	noProgress := flag.Bool("no-progress", false, "Disable the progress bar")
	flag.Parse()

	if *dir == "" && *file == "" && *query == "" {
		flag.Usage()
		return errors.New("one of -dir, -file or -query is required")
	}
	if *dir != "" && *file != "" {
		return errors.New("-dir and -file cannot be combined")
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	switch {
	case *dir != "":
		if err := ingestDirectory(ctx, a, log, *dir, *pattern, *workers, !*noProgress); err != nil {
			return err
		}
	case *file != "":
		res, err := a.Pipeline.IngestFile(ctx, *file, *docID)
		if err != nil {
			if res != nil {
				return fmt.Errorf("%w (stored %d of %d chunks, resume at %d)", err, res.Stored, res.Chunks, res.ResumeIndex)
			}
			return err
		}
		fmt.Printf("Ingested %s: %d chunks, %d tokens in %v\n", res.DocumentID, res.Stored, res.Tokens, res.Duration)
	}

	if *query != "" {
		return search(ctx, a, *query, *topK)
	}
	return nil
}

func ingestDirectory(ctx context.Context, a *app.App, log zerolog.Logger, dir, pattern string, workers int, progress bool) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if pattern == "" {
		pattern = a.Config.Ingest.Pattern
	}
	if workers <= 0 {
		workers = a.Config.Ingest.Workers
	}

	opts := ingest.Options{Pattern: pattern, Workers: workers}

	if progress && term.IsTerminal(int(os.Stderr.Fd())) {
		files, err := ingest.Discover(root, pattern)
		if err != nil {
			return err
		}
		bar := progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("ingesting"),
			progressbar.OptionSetWidth(32),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
		defer func() { _ = bar.Finish() }()
		opts.Progress = func(path string, err error) {
			_ = bar.Add(1)
		}
	}

	stats, err := a.Pipeline.IngestDirectory(ctx, root, opts)
	if stats != nil {
		fmt.Printf("Run %s: %d ingested, %d skipped, %d failed, %d chunks, %d tokens in %v\n",
			stats.RunID, stats.FilesIngested, stats.FilesSkipped, stats.FilesFailed,
			stats.ChunksStored, stats.TokensUsed, stats.Duration)
		for _, msg := range stats.ErrorMessages {
			log.Warn().Msg(msg)
		}
	}
	return err
}

func search(ctx context.Context, a *app.App, query string, topK int) error {
	results, err := a.Retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No results")
		return nil
	}
	for i, r := range results {
		page := "-"
		if r.Chunk.PageNumber != nil {
			page = fmt.Sprintf("%d", *r.Chunk.PageNumber)
		}
		fmt.Printf("%d. %s #%d (page %s, score %.4f)\n%s\n\n", i+1, r.DocumentID, r.Chunk.Index, page, r.Score, r.Chunk.Content)
	}
	return nil
}
