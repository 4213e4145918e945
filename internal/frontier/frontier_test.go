package frontier

import (
	"errors"
	"testing"

	"github.com/sitearchiver/sitearchiver/internal/models"
)

func testCfg() models.CrawlConfig {
	cfg := models.DefaultCrawlConfig()
	cfg.SeedURL = "https://example.com/"
	cfg.MaxDepth = 2
	cfg.MaxPages = 5
	return cfg
}

func TestAddPageRejectsDuplicate(t *testing.T) {
	f := New(testCfg())
	if !f.AddPage("https://example.com/a", "", 1) {
		t.Fatal("first AddPage should succeed")
	}
	if f.AddPage("https://example.com/a", "", 1) {
		t.Fatal("duplicate AddPage should be rejected")
	}
}

func TestAddPageRejectsOverDepth(t *testing.T) {
	f := New(testCfg())
	if f.AddPage("https://example.com/a", "", 3) {
		t.Fatal("depth beyond maxDepth should be rejected")
	}
}

func TestAddPageRejectsOutOfScope(t *testing.T) {
	f := New(testCfg())
	if f.AddPage("https://other.com/a", "", 1) {
		t.Fatal("out-of-scope page should be rejected")
	}
}

func TestAddPageRejectsWhenFrontierFull(t *testing.T) {
	cfg := testCfg()
	cfg.MaxPages = 1
	f := New(cfg)
	if !f.AddPage("https://example.com/a", "", 0) {
		t.Fatal("first page should be admitted")
	}
	if f.AddPage("https://example.com/b", "", 0) {
		t.Fatal("second page should be rejected once frontier is at maxPages")
	}
}

func TestAddPageRejectsExcludedPath(t *testing.T) {
	cfg := testCfg()
	cfg.ExcludePaths = []string{"*/admin/*"}
	f := New(cfg)
	if f.AddPage("https://example.com/admin/login", "", 0) {
		t.Fatal("excluded path should be rejected")
	}
}

func TestAddPageRequiresIncludedPath(t *testing.T) {
	cfg := testCfg()
	cfg.IncludePaths = []string{"*/blog/*"}
	f := New(cfg)
	if f.AddPage("https://example.com/about", "", 0) {
		t.Fatal("page outside includePaths should be rejected")
	}
	if !f.AddPage("https://example.com/blog/post", "", 0) {
		t.Fatal("page matching includePaths should be admitted")
	}
}

func TestAddPageRejectsDisabledFileType(t *testing.T) {
	cfg := testCfg()
	cfg.FileTypes = map[models.FileType]bool{models.FileTypeDocuments: false}
	f := New(cfg)
	if f.AddPage("https://example.com/report.pdf", "", 0) {
		t.Fatal("disabled file type should be rejected")
	}
}

func TestAddAssetIgnoresScopeButEnforcesDepthCushion(t *testing.T) {
	f := New(testCfg())
	if !f.AddAsset("https://cdn.other.com/logo.png", "https://example.com/", 0) {
		t.Fatal("off-host asset should be admitted")
	}
	if !f.AddAsset("https://cdn.other.com/deep.png", "https://example.com/", 7) {
		t.Fatal("asset within maxDepth+cushion should be admitted")
	}
	if f.AddAsset("https://cdn.other.com/toodeep.png", "https://example.com/", 8) {
		t.Fatal("asset beyond maxDepth+cushion should be rejected")
	}
}

func TestNextFIFOAndMarksInProgress(t *testing.T) {
	f := New(testCfg())
	f.AddPage("https://example.com/a", "", 0)
	f.AddPage("https://example.com/b", "", 0)

	first, ok := f.Next()
	if !ok || first.OriginalURL != "https://example.com/a" {
		t.Fatalf("expected a first, got %+v ok=%v", first, ok)
	}
	if first.Status != models.StatusInProgress {
		t.Errorf("Status = %v, want InProgress", first.Status)
	}

	second, ok := f.Next()
	if !ok || second.OriginalURL != "https://example.com/b" {
		t.Fatalf("expected b second, got %+v ok=%v", second, ok)
	}

	if _, ok := f.Next(); ok {
		t.Error("Next should return false once the queue is drained")
	}
}

func TestCompleteFailSkipTransitions(t *testing.T) {
	f := New(testCfg())
	f.AddPage("https://example.com/a", "", 0)
	f.AddPage("https://example.com/b", "", 0)
	f.AddPage("https://example.com/c", "", 0)
	f.Next()
	f.Next()
	f.Next()

	f.Complete("https://example.com/a")
	f.Fail("https://example.com/b", errors.New("boom"))
	f.Skip("https://example.com/c", errors.New("robots disallow"))

	stats := f.Stats()
	if stats.Complete != 1 || stats.Failed != 1 || stats.Skipped != 1 {
		t.Errorf("Stats = %+v, want one of each", stats)
	}
}

func TestRetryRespectsCeilingAndReenqueues(t *testing.T) {
	f := New(testCfg())
	f.AddPage("https://example.com/a", "", 0)
	f.Next()
	f.Fail("https://example.com/a", errors.New("timeout"))

	if !f.Retry("https://example.com/a", 2) {
		t.Fatal("first retry should re-enqueue")
	}
	entry, ok := f.Next()
	if !ok || entry.Status != models.StatusInProgress {
		t.Fatal("retried entry should be poppable again")
	}
	f.Fail("https://example.com/a", errors.New("timeout again"))

	if !f.Retry("https://example.com/a", 2) {
		t.Fatal("second retry should still be under ceiling")
	}
	f.Next()
	f.Fail("https://example.com/a", errors.New("timeout a third time"))

	if f.Retry("https://example.com/a", 2) {
		t.Fatal("retry beyond ceiling should be rejected")
	}
}

func TestHasPendingReflectsInProgressEntries(t *testing.T) {
	f := New(testCfg())
	if f.HasPending() {
		t.Fatal("empty frontier should report no pending work")
	}
	f.AddPage("https://example.com/a", "", 0)
	if !f.HasPending() {
		t.Fatal("frontier with a pending entry should report pending work")
	}
	entry, _ := f.Next()
	if !f.HasPending() {
		t.Fatal("an in-progress entry still counts as pending work")
	}
	f.Complete(entry.CanonicalURL)
	if f.HasPending() {
		t.Fatal("frontier with only complete entries should report no pending work")
	}
}
