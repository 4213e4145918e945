// Package engine implements the crawl orchestrator described in spec
// §4.10: the single state machine that owns a Frontier, a Fetcher, a
// PathRegistry and a Storage sandbox, drives the fetch/discover/store
// loop to completion, and runs the final HTML/CSS rewrite pass.
//
// Grounded on the teacher's StaticCrawler.Crawl in
// internal/crawlers/static.go for the overall run shape (start-of-run
// logging, a progress-ticker goroutine, a bounded-wait completion
// barrier, end-of-run stats log), generalized from Colly's own
// callback-driven dispatch to an explicit pop/dispatch/discover loop
// over internal/frontier, since nothing in the spec's domain calls for
// a scraping-framework dependency once SSRF guarding, robots, and
// per-host pacing already live in internal/fetch.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sitearchiver/sitearchiver/internal/cssutil"
	"github.com/sitearchiver/sitearchiver/internal/fetch"
	"github.com/sitearchiver/sitearchiver/internal/frontier"
	"github.com/sitearchiver/sitearchiver/internal/htmlextract"
	"github.com/sitearchiver/sitearchiver/internal/htmlrewrite"
	"github.com/sitearchiver/sitearchiver/internal/models"
	"github.com/sitearchiver/sitearchiver/internal/pathreg"
	"github.com/sitearchiver/sitearchiver/internal/robotsguard"
	"github.com/sitearchiver/sitearchiver/internal/ssrfguard"
	"github.com/sitearchiver/sitearchiver/internal/storage"
	"github.com/sitearchiver/sitearchiver/internal/utils"
)

// progressBuffer is the channel depth for the drop-oldest progress
// stream described in spec §9 ("Event emission").
const progressBuffer = 32

// Engine drives one crawl job from seed URL to finished, rewritten
// sandbox. The zero value is not usable; construct with New.
type Engine struct {
	jobID string
	cfg   models.CrawlConfig

	frontier *frontier.Frontier
	fetcher  *fetch.Fetcher
	paths    *pathreg.Registry
	store    *storage.Sandbox
	robots   *robotsguard.Guard

	mu         sync.Mutex
	status     models.EngineStatus
	startedAt  time.Time
	currentURL string
	crawlErrs  []models.CrawlError
	pages      int
	assets     int
	fatalErr   error

	aborted    atomicBool
	cancel     context.CancelFunc
	pauseMu    sync.Mutex
	paused     bool
	resumeGate chan struct{}

	progressCh chan models.Snapshot
}

// atomicBool is a tiny CAS-free flag; the engine's own mutex already
// serialises every other piece of mutable state, so a bool behind mu
// would work too, but Abort/Cancel must be callable without blocking
// on whatever the main loop currently holds.
type atomicBool struct {
	mu sync.Mutex
	v  bool
}

func (b *atomicBool) set(v bool) {
	b.mu.Lock()
	b.v = v
	b.mu.Unlock()
}

func (b *atomicBool) get() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.v
}

// New constructs an Engine for jobID against cfg. headers supplies the
// extra HTTP headers merged into every request (see models.HeaderProvider).
func New(jobID string, cfg models.CrawlConfig, headers models.HeaderProvider, root string) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid config: %w", err)
	}

	fetcher, err := fetch.New(cfg, headers)
	if err != nil {
		return nil, fmt.Errorf("engine: build fetcher: %w", err)
	}

	sandbox, err := storage.New(root, cfg.MaxTotalSize)
	if err != nil {
		return nil, fmt.Errorf("engine: build storage: %w", err)
	}

	resumeGate := make(chan struct{})
	close(resumeGate)

	return &Engine{
		jobID:      jobID,
		cfg:        cfg,
		frontier:   frontier.New(cfg),
		fetcher:    fetcher,
		paths:      pathreg.New(),
		store:      sandbox,
		robots:     robotsguard.AllowAll(cfg.UserAgent),
		status:     models.EngineStatusPending,
		resumeGate: resumeGate,
		progressCh: make(chan models.Snapshot, progressBuffer),
	}, nil
}

// Status returns the engine's current run state.
func (e *Engine) Status() models.EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Progress is the channel-based progress stream described in spec §9:
// bounded, drop-oldest, never blocking the main loop. Job subscribes to
// it; a snapshot is also always available on demand via Snapshot.
func (e *Engine) Progress() <-chan models.Snapshot {
	return e.progressCh
}

// Snapshot computes the on-demand progress view required by spec §6,
// from the frontier and storage's current statistics.
func (e *Engine) Snapshot() models.Snapshot {
	e.mu.Lock()
	status := e.status
	current := e.currentURL
	started := e.startedAt
	pages := e.pages
	assets := e.assets
	errCount := len(e.crawlErrs)
	e.mu.Unlock()

	qstats := e.frontier.Stats()
	sstats := e.store.Stats()

	var elapsed int64
	if !started.IsZero() {
		elapsed = time.Since(started).Milliseconds()
	}

	return models.Snapshot{
		Status:          status,
		PagesProcessed:  pages,
		TotalPages:      qstats.Total,
		AssetsProcessed: assets,
		BytesDownloaded: sstats.TotalBytes,
		CurrentURL:      current,
		Errors:          errCount,
		StartedAt:       started,
		ElapsedMs:       elapsed,
		QueueStats:      qstats,
		StorageStats: models.StorageStats{
			FilesWritten: sstats.FilesWritten,
			TotalBytes:   sstats.TotalBytes,
			Directories:  sstats.Directories,
		},
	}
}

// Errors returns the per-URL failure history accumulated so far.
func (e *Engine) Errors() []models.CrawlError {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.CrawlError, len(e.crawlErrs))
	copy(out, e.crawlErrs)
	return out
}

// Storage exposes the finished sandbox for the archive packager.
func (e *Engine) Storage() *storage.Sandbox {
	return e.store
}

// OverrideSSRFValidator replaces the SSRF guard the Engine's Fetcher
// consults before every request. It exists purely as a test seam for
// callers (internal/job and its tests) that only hold an Engine, not a
// *fetch.Fetcher directly; production code never calls it.
func (e *Engine) OverrideSSRFValidator(fn func(rawURL string, allowedProtocols []string) ssrfguard.Verdict) {
	e.fetcher.OverrideSSRFValidator(fn)
}

// Pause blocks the main loop from dispatching any new fetch until Resume
// is called; in-flight fetches are not interrupted, per spec §5.
func (e *Engine) Pause() {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()
	if e.paused {
		return
	}
	e.paused = true
	e.resumeGate = make(chan struct{})
	e.setStatus(models.EngineStatusPaused)
}

// Resume releases a prior Pause.
func (e *Engine) Resume() {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()
	if !e.paused {
		return
	}
	e.paused = false
	close(e.resumeGate)
	e.setStatus(models.EngineStatusRunning)
}

// Cancel aborts the run: sets the abort flag, cancels the fetcher and
// the run's context, and makes the main loop return on its next check.
func (e *Engine) Cancel() {
	e.aborted.set(true)
	e.fetcher.Abort()
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) setStatus(s models.EngineStatus) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

func (e *Engine) waitIfPaused(ctx context.Context) error {
	e.pauseMu.Lock()
	gate := e.resumeGate
	e.pauseMu.Unlock()

	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs the crawl to completion per spec §4.10: initialises
// storage (already done in New), optionally fetches robots.txt, seeds
// the frontier at depth 0, runs the dispatch loop under a bound of
// cfg.Concurrency concurrent fetches, and finishes with the rewrite
// pass over every stored HTML/CSS file. It blocks until the run reaches
// a terminal state.
func (e *Engine) Start(ctx context.Context) models.Result {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	defer cancel()

	e.mu.Lock()
	e.startedAt = time.Now()
	e.mu.Unlock()
	e.setStatus(models.EngineStatusRunning)

	if e.cfg.RespectRobotsTxt {
		e.fetchRobots(runCtx)
	}

	if !e.frontier.AddPage(e.cfg.SeedURL, "", 0) {
		e.setStatus(models.EngineStatusFailed)
		return e.buildResult(false)
	}

	utils.Infof("engine %s: starting crawl of %s", e.jobID, e.cfg.SeedURL)

	e.dispatchLoop(runCtx)

	if e.aborted.get() {
		e.setStatus(models.EngineStatusCancelled)
		utils.Infof("engine %s: cancelled", e.jobID)
		return e.buildResult(false)
	}

	if e.fatalErrSet() {
		e.setStatus(models.EngineStatusFailed)
		utils.Errorf("engine %s: fatal error: %v", e.jobID, e.fatalError())
		return e.buildResult(false)
	}

	e.rewriteAll()

	success := len(e.Errors()) == 0
	if success {
		e.setStatus(models.EngineStatusComplete)
	} else {
		e.setStatus(models.EngineStatusFailed)
	}

	utils.Infof("engine %s: finished, pages=%d assets=%d errors=%d", e.jobID, e.pagesCount(), e.assetsCount(), len(e.Errors()))

	return e.buildResult(success)
}

func (e *Engine) pagesCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pages
}

func (e *Engine) assetsCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.assets
}

func (e *Engine) fatalErrSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fatalErr != nil
}

func (e *Engine) fatalError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fatalErr
}

func (e *Engine) setFatal(err error) {
	e.mu.Lock()
	if e.fatalErr == nil {
		e.fatalErr = err
	}
	e.mu.Unlock()
	e.aborted.set(true)
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) buildResult(success bool) models.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	sstats := e.store.Stats()
	return models.Result{
		Success:  success && e.fatalErr == nil && !e.aborted.get(),
		Pages:    e.pages,
		Assets:   e.assets,
		Bytes:    sstats.TotalBytes,
		Errors:   append([]models.CrawlError(nil), e.crawlErrs...),
		Duration: time.Since(e.startedAt),
		Status:   e.status,
	}
}

// fetchRobots fetches and parses /robots.txt at the seed host, falling
// back to an allow-all guard on any failure, per spec §4.10/§4.11. The
// fetch uses a bare http.Client with FetchTimeout rather than the
// Fetcher's own client, since robots.txt requests are not subject to
// SSRF guarding, per-host pacing, or the retry/backoff policy.
func (e *Engine) fetchRobots(_ context.Context) {
	seed, err := url.Parse(e.cfg.SeedURL)
	if err != nil {
		return
	}
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", seed.Scheme, seed.Host)

	client := &http.Client{Timeout: robotsguard.FetchTimeout}
	e.robots = robotsguard.Fetch(client, robotsURL, e.fetcher.UserAgent())
}

// dispatchLoop is the main loop of spec §4.10: while the frontier has
// pending work and the run is not aborted, pop/robots-check/dispatch,
// bounded to cfg.Concurrency concurrent fetches.
func (e *Engine) dispatchLoop(ctx context.Context) {
	concurrency := e.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for e.frontier.HasPending() && !e.aborted.get() {
		if err := e.waitIfPaused(ctx); err != nil {
			break
		}

		entry, ok := e.frontier.Next()
		if !ok {
			// Pending work exists but every entry is currently
			// InProgress in another goroutine; yield briefly.
			select {
			case <-time.After(10 * time.Millisecond):
			case <-ctx.Done():
				e.aborted.set(true)
			}
			continue
		}

		if !e.robotsAllows(entry.CanonicalURL) {
			e.frontier.Skip(entry.CanonicalURL, fmt.Errorf("disallowed by robots.txt"))
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(entry *models.FrontierEntry) {
			defer wg.Done()
			defer func() { <-sem }()
			e.processEntry(ctx, entry)
			e.emitProgress()
		}(entry)
	}

	wg.Wait()
}

func (e *Engine) robotsAllows(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	return e.robots.Allowed(u.Path)
}

func (e *Engine) emitProgress() {
	snap := e.Snapshot()
	select {
	case e.progressCh <- snap:
	default:
		// Drop-oldest: make room for the freshest snapshot rather than
		// block the dispatch loop on a slow subscriber.
		select {
		case <-e.progressCh:
		default:
		}
		select {
		case e.progressCh <- snap:
		default:
		}
	}
}

// processEntry fetches one frontier entry and, on success, stores the
// body, discovers further URLs from it, and marks it Complete; on
// failure it records the error and marks it Failed. Per spec §4.10.
func (e *Engine) processEntry(ctx context.Context, entry *models.FrontierEntry) {
	e.mu.Lock()
	e.currentURL = entry.CanonicalURL
	e.mu.Unlock()

	result, ferr := e.fetcher.Fetch(ctx, entry.CanonicalURL, entry.ParentURL)
	if ferr != nil {
		e.recordError(entry.CanonicalURL, ferr)
		e.frontier.Fail(entry.CanonicalURL, ferr)
		return
	}

	localPath, err := e.paths.Register(result.FinalURL)
	if err != nil {
		e.recordError(entry.CanonicalURL, &fetch.Error{Code: models.ErrUnknown, Message: err.Error()})
		e.frontier.Fail(entry.CanonicalURL, err)
		return
	}
	if len(result.RedirectChain) > 0 {
		if _, err := e.paths.Register(result.OriginalURL); err != nil {
			utils.Debugf("engine %s: could not register original url %q: %v", e.jobID, result.OriginalURL, err)
		}
	}

	if err := e.store.Write(localPath, result.Body); err != nil {
		e.setFatal(fmt.Errorf("engine: storage failure writing %q: %w", localPath, err))
		e.frontier.Fail(entry.CanonicalURL, err)
		return
	}

	e.classifyAndDiscover(entry, result)

	e.frontier.Complete(entry.CanonicalURL)
}

// classifyAndDiscover implements spec §4.10's Content-Type dispatch:
// HTML runs the link extractor and enqueues pages/assets one depth
// deeper (for pages) or at the same depth (for assets); CSS runs the
// stylesheet extractor and enqueues assets; anything else is just
// counted.
func (e *Engine) classifyAndDiscover(entry *models.FrontierEntry, result *fetch.Result) {
	leading := strings.TrimSpace(strings.SplitN(result.ContentType, ";", 2)[0])

	switch {
	case strings.HasPrefix(leading, "text/html"):
		found, err := htmlextract.Extract(result.Body, result.FinalURL)
		if err != nil {
			utils.Debugf("engine %s: html extract failed for %s: %v", e.jobID, result.FinalURL, err)
		}
		for _, f := range found {
			if f.Kind == models.KindPage {
				e.frontier.AddPage(f.URL, result.FinalURL, entry.Depth+1)
			} else {
				e.frontier.AddAsset(f.URL, result.FinalURL, entry.Depth)
			}
		}
		e.mu.Lock()
		e.pages++
		e.mu.Unlock()

	case strings.HasPrefix(leading, "text/css"):
		base, _ := url.Parse(result.FinalURL)
		for _, ref := range cssutil.Extract(string(result.Body), base) {
			e.frontier.AddAsset(ref.URL, result.FinalURL, entry.Depth)
		}
		e.mu.Lock()
		e.assets++
		e.mu.Unlock()

	default:
		e.mu.Lock()
		e.assets++
		e.mu.Unlock()
	}
}

func (e *Engine) recordError(rawURL string, err error) {
	ce := models.CrawlError{URL: rawURL, Message: err.Error(), At: time.Now()}
	if ferr, ok := err.(*fetch.Error); ok {
		ce.Code = ferr.Code
		ce.Retryable = ferr.Retryable
	} else {
		ce.Code = models.ErrUnknown
	}
	e.mu.Lock()
	e.crawlErrs = append(e.crawlErrs, ce)
	e.mu.Unlock()
	utils.Warnf("engine %s: %s: %s", e.jobID, rawURL, err.Error())
}

// rewriteAll is spec §4.10's post-pass: every stored HTML file is
// rewritten via internal/htmlrewrite, every stored CSS file via
// internal/cssutil, using the PathRegistry's final mapping snapshot.
// Files with no mapping, or that fail to parse, are left on disk
// unchanged — a rewrite failure is a ParseError, never fatal (spec §7).
func (e *Engine) rewriteAll() {
	files, err := e.store.ListFiles()
	if err != nil {
		utils.Errorf("engine %s: could not list storage for rewrite pass: %v", e.jobID, err)
		return
	}
	mappings := e.paths.Mappings()

	for _, relPath := range files {
		switch {
		case strings.HasSuffix(relPath, ".html") || strings.HasSuffix(relPath, ".htm"):
			e.rewriteHTMLFile(relPath, mappings)
		case strings.HasSuffix(relPath, ".css"):
			e.rewriteCSSFile(relPath, mappings)
		}
	}
}

func (e *Engine) rewriteHTMLFile(relPath string, mappings map[string]string) {
	originalURL, ok := e.paths.URLFor(relPath)
	if !ok {
		return
	}
	body, err := e.store.Read(relPath)
	if err != nil {
		utils.Warnf("engine %s: could not read %q for rewrite: %v", e.jobID, relPath, err)
		return
	}
	rewritten, err := htmlrewrite.Rewrite(body, originalURL, relPath, mappings)
	if err != nil {
		utils.Debugf("engine %s: html rewrite parse failure for %q, leaving unchanged: %v", e.jobID, relPath, err)
		return
	}
	if err := e.store.Write(relPath, []byte(rewritten)); err != nil {
		utils.Warnf("engine %s: could not write rewritten %q: %v", e.jobID, relPath, err)
	}
}

func (e *Engine) rewriteCSSFile(relPath string, mappings map[string]string) {
	originalURL, ok := e.paths.URLFor(relPath)
	if !ok {
		return
	}
	body, err := e.store.Read(relPath)
	if err != nil {
		utils.Warnf("engine %s: could not read %q for rewrite: %v", e.jobID, relPath, err)
		return
	}
	base, _ := url.Parse(originalURL)
	toRoot := htmlrewrite.ToRootPrefix(relPath)
	rewritten := cssutil.Rewrite(string(body), base, toRoot, mappings)
	if err := e.store.Write(relPath, []byte(rewritten)); err != nil {
		utils.Warnf("engine %s: could not write rewritten %q: %v", e.jobID, relPath, err)
	}
}
