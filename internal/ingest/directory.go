package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/legalbrain/internal/extract"
	"github.com/dshills/legalbrain/pkg/types"
)

// DefaultPattern selects every file with a supported extension
const DefaultPattern = "**/*.{txt,text,md,markdown,pdf}"

// Options controls directory ingestion
type Options struct {
	Pattern string // doublestar pattern relative to the root (default: DefaultPattern)
	Workers int    // Documents ingested concurrently (default: runtime.NumCPU())

	// Progress is called once per selected file after it has been handled.
	// It may be called from several goroutines.
	Progress func(path string, err error)
}

// Statistics contains statistics about a directory ingestion
type Statistics struct {
	RunID         string
	FilesIngested int
	FilesSkipped  int
	FilesFailed   int
	ChunksStored  int
	TokensUsed    int
	Duration      time.Duration
	ErrorMessages []string
	IngestedFiles []string
}

// DocumentIDForPath derives a stable document ID from a path relative to an ingestion root
func DocumentIDForPath(rel string) string {
	return filepath.ToSlash(filepath.Clean(rel))
}

// IngestFile extracts and ingests one file
func (p *Pipeline) IngestFile(ctx context.Context, path, documentID string) (*Result, error) {
	text, err := extract.File(path)
	if err != nil {
		return nil, err
	}
	if documentID == "" {
		documentID = DocumentIDForPath(path)
	}
	return p.IngestDocument(ctx, documentID, text, WithSource(path))
}

// Discover lists the files under root matching pattern, sorted
func Discover(root, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to match %q: %w", pattern, err)
	}

	files := matches[:0]
	for _, m := range matches {
		// Skip hidden files and directories
		if hidden(m) {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}

func hidden(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// Busy reports whether a directory ingestion is running
func (p *Pipeline) Busy() bool {
	return p.running.Load()
}

// IngestDirectory ingests every matching file under root. Documents share no
// state, so they are ingested concurrently; a failing file is recorded in the
// statistics and does not stop the others.
func (p *Pipeline) IngestDirectory(ctx context.Context, root string, opts Options) (*Statistics, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrIngestInProgress
	}
	defer p.running.Store(false)

	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	startTime := time.Now()
	stats := &Statistics{
		RunID:         uuid.NewString(),
		ErrorMessages: make([]string, 0),
	}
	log := p.logger.With().Str("run_id", stats.RunID).Str("root", root).Logger()

	files, err := Discover(root, opts.Pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	log.Info().Int("files", len(files)).Msg("ingestion started")

	var (
		ingested, skipped, failed int32
		chunks, tokens            int64
		mu                        sync.Mutex // Protects ErrorMessages and IngestedFiles
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for _, rel := range files {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			path := filepath.Join(root, filepath.FromSlash(rel))
			res, err := p.IngestFile(gctx, path, DocumentIDForPath(rel))

			switch {
			case err == nil:
				atomic.AddInt32(&ingested, 1)
				atomic.AddInt64(&chunks, int64(res.Stored))
				atomic.AddInt64(&tokens, int64(res.Tokens))
				mu.Lock()
				stats.IngestedFiles = append(stats.IngestedFiles, rel)
				mu.Unlock()
			case errors.Is(err, types.ErrEmptyInput):
				atomic.AddInt32(&skipped, 1)
				log.Debug().Str("path", rel).Msg("skipped empty document")
			case errors.Is(err, context.Canceled) && ctx.Err() != nil:
				// Caller cancelled; stop quietly
				return ctx.Err()
			default:
				atomic.AddInt32(&failed, 1)
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", rel, err))
				mu.Unlock()
				log.Warn().Err(err).Str("path", rel).Msg("document failed")
			}

			if opts.Progress != nil {
				opts.Progress(rel, err)
			}
			// Continue with other files
			return nil
		})
	}

	waitErr := g.Wait()

	stats.FilesIngested = int(ingested)
	stats.FilesSkipped = int(skipped)
	stats.FilesFailed = int(failed)
	stats.ChunksStored = int(chunks)
	stats.TokensUsed = int(tokens)
	stats.Duration = time.Since(startTime)
	sort.Strings(stats.IngestedFiles)

	if waitErr == nil {
		waitErr = ctx.Err()
	}
	if waitErr != nil {
		return stats, fmt.Errorf("ingestion cancelled: %w", waitErr)
	}

	log.Info().Int("ingested", stats.FilesIngested).Int("skipped", stats.FilesSkipped).
		Int("failed", stats.FilesFailed).Int("chunks", stats.ChunksStored).
		Dur("duration", stats.Duration).Msg("ingestion finished")
	return stats, nil
}
