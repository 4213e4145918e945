// Package frontier implements the de-duplicated BFS work queue described
// in spec §4.5: distinct admission policies for pages (scope- and
// filter-checked) and assets (admitted regardless of host), FIFO
// ordering over enqueue time, and status transitions mutated only by
// the Engine.
//
// Grounded on the teacher's internal/crawlers/url_queue.go: a mutex
// guarding a map keyed by URL plus ordering state, generalized from a
// single visited-set/channel pair (push/pop/visited) to the richer
// per-entry status machine (Pending/InProgress/Complete/Failed/Skipped)
// and dual admission predicates the spec calls for.
package frontier

import (
	"sync"
	"time"

	"github.com/sitearchiver/sitearchiver/internal/models"
	"github.com/sitearchiver/sitearchiver/internal/urlutil"
)

// assetDepthCushion is the extra depth assets are allowed beyond
// maxDepth, per spec §4.5 step 2 ("a small cushion for @import chains").
const assetDepthCushion = 5

// Frontier is the engine's work queue. All methods are safe for
// concurrent use.
type Frontier struct {
	cfg models.CrawlConfig

	mu      sync.Mutex
	entries map[string]*models.FrontierEntry
	order   []string // FIFO of canonical URLs, oldest first
}

// New builds an empty Frontier bound to cfg's scope/filter/limit rules.
func New(cfg models.CrawlConfig) *Frontier {
	return &Frontier{
		cfg:     cfg,
		entries: make(map[string]*models.FrontierEntry),
	}
}

// AddPage applies spec §4.5's addPage admission sequence: canonicalise,
// reject duplicates, enforce depth/size ceilings (unless unlimitedMode),
// scope, include/exclude path filters, and the file-type gate.
func (f *Frontier) AddPage(rawURL, parent string, depth int) bool {
	canonical := urlutil.Canonicalise(rawURL, nil)
	if canonical == "" {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.entries[canonical]; exists {
		return false
	}

	if !f.cfg.UnlimitedMode {
		if depth > f.cfg.MaxDepth || len(f.entries) >= f.cfg.MaxPages {
			return false
		}
	}

	if !urlutil.InScope(canonical, f.cfg.SeedURL, f.cfg.Scope, f.cfg.CustomDomains) {
		return false
	}

	if len(f.cfg.IncludePaths) > 0 && !matchesAny(canonical, f.cfg.IncludePaths) {
		return false
	}
	if len(f.cfg.ExcludePaths) > 0 && matchesAny(canonical, f.cfg.ExcludePaths) {
		return false
	}

	if !f.cfg.FileTypeEnabled(urlutil.MimeCategory(urlutil.Extension(canonical))) {
		return false
	}

	f.append(canonical, rawURL, parent, depth, models.KindPage)
	return true
}

// AddAsset applies spec §4.5's addAsset sequence: canonicalise, reject
// duplicates, enforce depth (with the asset cushion)/size ceilings, and
// the file-type gate. No scope check — assets are admitted regardless
// of host, the design decision that lets CDN-hosted resources archive
// faithfully.
func (f *Frontier) AddAsset(rawURL, parent string, depth int) bool {
	canonical := urlutil.Canonicalise(rawURL, nil)
	if canonical == "" {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.entries[canonical]; exists {
		return false
	}

	if !f.cfg.UnlimitedMode {
		if depth > f.cfg.MaxDepth+assetDepthCushion || len(f.entries) >= f.cfg.MaxPages {
			return false
		}
	}

	if !f.cfg.FileTypeEnabled(urlutil.MimeCategory(urlutil.Extension(canonical))) {
		return false
	}

	f.append(canonical, rawURL, parent, depth, models.KindAsset)
	return true
}

// append records a new Pending entry. Caller must hold f.mu.
func (f *Frontier) append(canonical, original, parent string, depth int, kind models.Kind) {
	f.entries[canonical] = &models.FrontierEntry{
		OriginalURL:  original,
		CanonicalURL: canonical,
		Kind:         kind,
		Depth:        depth,
		ParentURL:    parent,
		Status:       models.StatusPending,
		EnqueuedAt:   time.Now(),
	}
	f.order = append(f.order, canonical)
}

// Next pops the oldest Pending entry, marks it InProgress, and returns
// it. Entries in f.order whose status has since moved past Pending
// (e.g. retried-and-already-reprocessed) are skipped rather than
// re-returned.
func (f *Frontier) Next() (*models.FrontierEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for len(f.order) > 0 {
		canonical := f.order[0]
		f.order = f.order[1:]

		entry, ok := f.entries[canonical]
		if !ok || entry.Status != models.StatusPending {
			continue
		}
		entry.Status = models.StatusInProgress
		return entry, true
	}
	return nil, false
}

// Complete marks canonical's entry Complete.
func (f *Frontier) Complete(canonical string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry, ok := f.entries[canonical]; ok {
		entry.Status = models.StatusComplete
		entry.ProcessedAt = time.Now()
	}
}

// Fail marks canonical's entry Failed, recording reason as the entry's
// terminal error.
func (f *Frontier) Fail(canonical string, reason error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry, ok := f.entries[canonical]; ok {
		entry.Status = models.StatusFailed
		entry.Error = reason
		entry.ProcessedAt = time.Now()
	}
}

// Skip marks canonical's entry Skipped, recording reason.
func (f *Frontier) Skip(canonical string, reason error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry, ok := f.entries[canonical]; ok {
		entry.Status = models.StatusSkipped
		entry.Error = reason
	}
}

// Retry re-enqueues canonical's entry as Pending iff its retry count is
// still under maxRetries, incrementing the count and reporting whether
// it re-entered the queue.
func (f *Frontier) Retry(canonical string, maxRetries int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[canonical]
	if !ok || entry.RetryCount >= maxRetries {
		return false
	}
	entry.RetryCount++
	entry.Status = models.StatusPending
	entry.Error = nil
	f.order = append(f.order, canonical)
	return true
}

// HasPending reports whether any entry is Pending or InProgress — the
// condition under which the engine's main loop keeps running.
func (f *Frontier) HasPending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range f.entries {
		if entry.Status == models.StatusPending || entry.Status == models.StatusInProgress {
			return true
		}
	}
	return false
}

// Stats returns a snapshot of entry counts by status, plus the total
// entry count, for Snapshot.QueueStats.
func (f *Frontier) Stats() models.QueueStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	var s models.QueueStats
	for _, entry := range f.entries {
		switch entry.Status {
		case models.StatusPending:
			s.Pending++
		case models.StatusInProgress:
			s.InProgress++
		case models.StatusComplete:
			s.Complete++
		case models.StatusFailed:
			s.Failed++
		case models.StatusSkipped:
			s.Skipped++
		}
	}
	s.Total = len(f.entries)
	return s
}

func matchesAny(rawURL string, globs []string) bool {
	for _, g := range globs {
		if urlutil.MatchesPattern(rawURL, g) {
			return true
		}
	}
	return false
}
