// Package pipeline orchestrates an export run: it walks the bookmark tree,
// decides per item whether the active mode wants it processed, drives the
// fetch/summarize/write sequence, and records every outcome in the
// checkpoint store.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/bookmark-summarizer/internal/bookmarks"
	"github.com/JakeFAU/bookmark-summarizer/internal/progress"
	"github.com/JakeFAU/bookmark-summarizer/internal/writer"
)

// Mode selects which bookmarks are eligible for processing in a run.
type Mode string

// Run modes.
const (
	// ModeFresh ignores any existing checkpoint and processes everything.
	ModeFresh Mode = "fresh"
	// ModeResume skips bookmarks with a clean success record; prior
	// failures are retried.
	ModeResume Mode = "resume"
	// ModeCheckError processes only bookmarks currently in the error state.
	ModeCheckError Mode = "check-error"
)

// Fetcher retrieves a page and extracts its readable text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	ExtractText(html string) string
}

// Summarizer produces a markdown summary for one page.
type Summarizer interface {
	Summarize(ctx context.Context, title, content string) (string, error)
}

// Writer persists one summarized page.
type Writer interface {
	PathFor(folderPath []string, title string) string
	WriteMarkdown(page writer.Page, path string) error
}

// Options control one run.
type Options struct {
	Mode       Mode
	DryRun     bool
	MaxWorkers int
}

// Result aggregates the outcome of a run.
type Result struct {
	Processed int
	Failed    int
	Skipped   int
}

// Pipeline wires the collaborators of an export run together.
type Pipeline struct {
	opts       Options
	fetcher    Fetcher
	summarizer Summarizer
	writer     Writer
	store      *progress.Store
	emitter    progress.Emitter
	logger     *zap.Logger

	runID     [16]byte
	processed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

// New builds a Pipeline. emitter may be nil when no progress stream is
// wanted; everything else is required.
func New(opts Options, f Fetcher, s Summarizer, w Writer, store *progress.Store, emitter progress.Emitter, logger *zap.Logger) *Pipeline {
	if opts.Mode == "" {
		opts.Mode = ModeFresh
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		opts:       opts,
		fetcher:    f,
		summarizer: s,
		writer:     w,
		store:      store,
		emitter:    emitter,
		logger:     logger,
		runID:      progress.UUIDToBytes(uuid.New()),
	}
}

// Run processes the tree rooted at root and returns the aggregated counts.
// Per-bookmark errors never abort the run; they become failure records. The
// returned error covers run-level problems only, such as cancellation or a
// failing final checkpoint save. Counts are valid even when err is non-nil.
func (p *Pipeline) Run(ctx context.Context, root *bookmarks.Folder) (Result, error) {
	start := time.Now()
	p.emit(progress.Event{Stage: progress.StageRunStart})
	p.logger.Info("run started",
		zap.String("run_id", uuid.UUID(p.runID).String()),
		zap.String("mode", string(p.opts.Mode)),
		zap.Bool("dry_run", p.opts.DryRun),
		zap.Int("total_bookmarks", root.Count()))

	if !p.opts.DryRun {
		p.store.InitStatistics(root.Count())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.MaxWorkers)

	walkErr := p.walkFolder(gctx, g, root, nil)
	if err := g.Wait(); err != nil && walkErr == nil {
		walkErr = err
	}

	result := Result{
		Processed: int(p.processed.Load()),
		Failed:    int(p.failed.Load()),
		Skipped:   int(p.skipped.Load()),
	}

	var saveErr error
	if !p.opts.DryRun {
		p.store.UpdateStatistics(result.Skipped)
		if _, err := p.store.Save(true); err != nil {
			// Surfaced but the counts still stand; partial progress up to
			// the last periodic save remains recoverable.
			p.logger.Error("final checkpoint save failed", zap.Error(err))
			saveErr = err
		}
	}

	dur := time.Since(start)
	if walkErr != nil {
		p.emit(progress.Event{Stage: progress.StageRunError, Dur: dur, Note: walkErr.Error()})
		p.logger.Warn("run aborted", zap.Error(walkErr),
			zap.Int("processed", result.Processed), zap.Int("failed", result.Failed))
		return result, walkErr
	}
	p.emit(progress.Event{Stage: progress.StageRunDone, Dur: dur})
	p.logger.Info("run finished",
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", dur))
	return result, saveErr
}

// walkFolder visits child folders before this folder's own bookmarks, in
// stable order, so the recorded cursor means the same thing on every run.
func (p *Pipeline) walkFolder(ctx context.Context, g *errgroup.Group, folder *bookmarks.Folder, parentPath []string) error {
	path := make([]string, 0, len(parentPath)+1)
	path = append(path, parentPath...)
	path = append(path, folder.Name)

	for _, child := range folder.Children {
		if err := p.walkFolder(ctx, g, child, path); err != nil {
			return err
		}
	}

	startIndex := 0
	if p.opts.Mode == ModeResume && !p.opts.DryRun {
		startIndex = p.store.StartIndex(path)
	}

	total := len(folder.Bookmarks)
	for i, bm := range folder.Bookmarks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.skipByCursor(i, startIndex, bm.URL) || p.skipByMembership(bm.URL) {
			p.skipped.Add(1)
			p.emit(progress.Event{
				Stage:  progress.StageBookmarkSkipped,
				URL:    bm.URL,
				Title:  bm.Title,
				Folder: strings.Join(path, "/"),
			})
			continue
		}

		if p.opts.DryRun {
			p.dryRunDecide(bm, path, i, total)
			continue
		}

		// The cursor points at the item about to be attempted. On crash the
		// recorded item may or may not have completed; resume tolerates
		// reprocessing it.
		p.store.UpdatePosition(path, i, total)

		bm := bm
		itemPath := path
		g.Go(func() error {
			p.process(ctx, bm, itemPath)
			return nil
		})
	}
	return nil
}

// skipByCursor fast-skips items below the recorded resume index. It is an
// optimization over the membership checks, never a substitute: an item in
// the error state is always handed on for a retry decision.
func (p *Pipeline) skipByCursor(i, startIndex int, url string) bool {
	return p.opts.Mode == ModeResume && !p.opts.DryRun &&
		i < startIndex && !p.store.IsError(url)
}

func (p *Pipeline) skipByMembership(url string) bool {
	switch p.opts.Mode {
	case ModeResume:
		return p.store.IsSuccess(url)
	case ModeCheckError:
		return !p.store.IsError(url)
	default:
		return false
	}
}

// dryRunDecide exercises the skip logic without touching the network or the
// checkpoint. Bookmarks with a prior failure are assumed to fail again.
func (p *Pipeline) dryRunDecide(bm bookmarks.Bookmark, path []string, i, total int) {
	if p.opts.Mode != ModeCheckError && p.store.IsError(bm.URL) {
		p.failed.Add(1)
		p.logger.Info("[dry-run] would retry previously failed bookmark",
			zap.String("url", bm.URL), zap.String("title", bm.Title))
		return
	}
	p.processed.Add(1)
	p.logger.Info("[dry-run] would process bookmark",
		zap.String("title", bm.Title),
		zap.String("url", bm.URL),
		zap.String("folder", strings.Join(path, "/")),
		zap.Int("index", i+1),
		zap.Int("total", total))
}

func (p *Pipeline) process(ctx context.Context, bm bookmarks.Bookmark, path []string) {
	start := time.Now()
	folder := strings.Join(path, "/")

	html, err := p.fetcher.Fetch(ctx, bm.URL)
	if err != nil {
		p.recordFailure(bm, path, folder, err, time.Since(start))
		return
	}

	text := p.fetcher.ExtractText(html)

	summary, sumErr := p.summarizer.Summarize(ctx, bm.Title, text)
	status := "success"
	summaryErrText := ""
	if sumErr != nil {
		// Summarizer trouble does not fail the bookmark: the error is
		// embedded in the output and the record stays retryable through
		// check-error runs.
		summaryErrText = sumErr.Error()
		summary = fmt.Sprintf("Summary generation failed: %v", sumErr)
		status = "degraded"
		p.logger.Warn("summary degraded", zap.String("url", bm.URL), zap.Error(sumErr))
	}

	filePath := p.writer.PathFor(path, bm.Title)
	page := writer.Page{
		URL:       bm.URL,
		Title:     bm.Title,
		Summary:   summary,
		FetchedAt: time.Now(),
		Status:    status,
	}
	if err := p.writer.WriteMarkdown(page, filePath); err != nil {
		p.recordFailure(bm, path, folder, err, time.Since(start))
		return
	}

	if p.opts.Mode == ModeCheckError {
		p.store.Promote(bm.URL, bm.Title, filePath, path, summaryErrText)
	} else {
		p.store.AddProcessed(bm.URL, bm.Title, filePath, path, summaryErrText)
	}
	p.processed.Add(1)
	p.store.UpdateStatistics(int(p.skipped.Load()))

	p.emit(progress.Event{
		Stage:  progress.StageBookmarkDone,
		URL:    bm.URL,
		Title:  bm.Title,
		Folder: folder,
		Bytes:  int64(len(html)),
		Dur:    time.Since(start),
		Note:   summaryErrText,
	})
	p.logger.Debug("bookmark processed",
		zap.String("title", bm.Title),
		zap.String("file", filePath),
		zap.String("status", status))
}

func (p *Pipeline) recordFailure(bm bookmarks.Bookmark, path []string, folder string, err error, dur time.Duration) {
	// In check-error mode the bookmark is already a failure record; a
	// repeat failure changes nothing.
	if p.opts.Mode != ModeCheckError {
		p.store.AddFailed(bm.URL, bm.Title, err.Error(), path)
		p.failed.Add(1)
		p.store.UpdateStatistics(int(p.skipped.Load()))
	}

	p.emit(progress.Event{
		Stage:  progress.StageBookmarkFailed,
		URL:    bm.URL,
		Title:  bm.Title,
		Folder: folder,
		Dur:    dur,
		Note:   err.Error(),
	})
	p.logger.Warn("bookmark failed",
		zap.String("url", bm.URL), zap.Error(err))
}

func (p *Pipeline) emit(evt progress.Event) {
	if p.emitter == nil {
		return
	}
	evt.RunID = p.runID
	evt.TS = time.Now().UTC()
	p.emitter.Emit(evt)
}
