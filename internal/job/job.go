// Package job provides the thin façade spec §6 describes as "the
// surrounding job layer": it constructs an Engine, relays its progress
// channel into a bounded in-memory history, and re-exports Start,
// Pause, Resume, Cancel, Progress, Storage and Errors so a caller (the
// CLI, or eventually an API handler) never touches internal/engine
// directly.
//
// Grounded on the teacher's internal/core.Crawler: a coordinator that
// owns the actual crawler(s), exposes GetStats/GetAllFiles accessors,
// and is the one thing cmd/jsfindcrack's main.go calls. Job plays the
// same role here, generalized from "run one or two crawlers to
// completion and merge their stats" to "run one Engine and relay its
// live progress stream", since the engine itself — not Job — now owns
// the fetch/discover/store loop.
package job

import (
	"context"
	"sync"

	"github.com/sitearchiver/sitearchiver/internal/engine"
	"github.com/sitearchiver/sitearchiver/internal/models"
	"github.com/sitearchiver/sitearchiver/internal/ssrfguard"
	"github.com/sitearchiver/sitearchiver/internal/storage"
)

// historyLimit bounds the in-memory snapshot history so a long-running
// job can't grow it without bound.
const historyLimit = 256

// Job owns one Engine run end-to-end. The zero value is not usable;
// construct with New.
type Job struct {
	id  string
	eng *engine.Engine

	mu      sync.Mutex
	history []models.Snapshot
}

// New constructs a Job for jobID against cfg, rooted at root on disk.
// headers supplies the extra request headers merged into every fetch.
func New(jobID string, cfg models.CrawlConfig, headers models.HeaderProvider, root string) (*Job, error) {
	eng, err := engine.New(jobID, cfg, headers, root)
	if err != nil {
		return nil, err
	}
	return &Job{id: jobID, eng: eng}, nil
}

// ID returns the job identifier it was constructed with.
func (j *Job) ID() string {
	return j.id
}

// Start runs the crawl to completion, blocking until a terminal state is
// reached. While it runs, a second goroutine may legally call Pause,
// Resume, Cancel or Progress on the same Job.
func (j *Job) Start(ctx context.Context) models.Result {
	relayDone := make(chan struct{})
	go j.relayProgress(relayDone)
	defer close(relayDone)

	return j.eng.Start(ctx)
}

// relayProgress drains the engine's progress channel into j.history
// until told to stop. It never blocks the engine: the channel it reads
// from is itself bounded and drop-oldest.
func (j *Job) relayProgress(done chan struct{}) {
	for {
		select {
		case snap := <-j.eng.Progress():
			j.appendHistory(snap)
		case <-done:
			return
		}
	}
}

func (j *Job) appendHistory(s models.Snapshot) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.history = append(j.history, s)
	if len(j.history) > historyLimit {
		j.history = j.history[len(j.history)-historyLimit:]
	}
}

// History returns a copy of the snapshots relayed so far, oldest first.
func (j *Job) History() []models.Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]models.Snapshot, len(j.history))
	copy(out, j.history)
	return out
}

// Pause blocks new dispatch until Resume, per spec §6.
func (j *Job) Pause() {
	j.eng.Pause()
}

// Resume releases a prior Pause.
func (j *Job) Resume() {
	j.eng.Resume()
}

// Cancel aborts the run.
func (j *Job) Cancel() {
	j.eng.Cancel()
}

// Progress returns the on-demand snapshot spec §6 names `progress()`.
// For the live event stream, see History.
func (j *Job) Progress() models.Snapshot {
	return j.eng.Snapshot()
}

// Storage exposes the sandbox for the archive packager.
func (j *Job) Storage() *storage.Sandbox {
	return j.eng.Storage()
}

// Errors returns the per-URL failure history accumulated so far.
func (j *Job) Errors() []models.CrawlError {
	return j.eng.Errors()
}

// OverrideSSRFValidator replaces the SSRF guard consulted by the Job's
// underlying Engine. It exists purely as a test seam (mirroring
// Engine.OverrideSSRFValidator and fetch.Fetcher.OverrideSSRFValidator)
// for tests that drive a Job against an httptest.Server bound to
// loopback, which the real guard would otherwise reject unconditionally.
// Production code never calls it.
func (j *Job) OverrideSSRFValidator(fn func(rawURL string, allowedProtocols []string) ssrfguard.Verdict) {
	j.eng.OverrideSSRFValidator(fn)
}
