package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/sitearchiver/sitearchiver/internal/models"
)

// Reporter writes a finished job's result to a JSON report on disk.
type Reporter struct {
	outputDir string
}

// NewReporter builds a Reporter writing under outputDir/reports.
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// crawlReport is the on-disk shape of a finished run's report.
type crawlReport struct {
	JobID     string             `json:"job_id"`
	SeedURL   string             `json:"seed_url"`
	StartTime time.Time          `json:"start_time"`
	EndTime   time.Time          `json:"end_time"`
	Result    models.Result      `json:"result"`
	Config    models.CrawlConfig `json:"config"`
}

// GenerateReport writes crawl_report.json describing one finished job.
func (r *Reporter) GenerateReport(jobID, seedURL string, result models.Result, cfg models.CrawlConfig) error {
	reportsDir := filepath.Join(r.outputDir, "reports")
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return fmt.Errorf("create reports dir: %w", err)
	}

	report := crawlReport{
		JobID:     jobID,
		SeedURL:   seedURL,
		StartTime: time.Now().Add(-result.Duration),
		EndTime:   time.Now(),
		Result:    result,
		Config:    cfg,
	}

	if err := r.saveJSONReport(reportsDir, "crawl_report.json", report); err != nil {
		return err
	}

	Infof("report written: %s", filepath.Join(reportsDir, "crawl_report.json"))
	return nil
}

func (r *Reporter) saveJSONReport(dir, filename string, data interface{}) error {
	path := filepath.Join(dir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}

	Debugf("saved report: %s", path)
	return nil
}

// NewProgressBar builds a terminal progress bar with the project's
// standard theme.
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
