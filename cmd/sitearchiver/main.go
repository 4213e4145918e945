// Command sitearchiver fetches a website into a self-contained local
// mirror: every in-scope page and its assets, rewritten so the mirror
// browses correctly with no network access, packaged as a single .zip.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitearchiver/sitearchiver/internal/archivepkg"
	"github.com/sitearchiver/sitearchiver/internal/config"
	"github.com/sitearchiver/sitearchiver/internal/core"
	"github.com/sitearchiver/sitearchiver/internal/job"
	"github.com/sitearchiver/sitearchiver/internal/models"
	"github.com/sitearchiver/sitearchiver/internal/utils"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
)

var (
	configFile string
	verbose    bool
	logLevel   string
	headers    []string

	seedURL          string
	outputDir        string
	archivePath      string
	maxDepth         int
	concurrency      int
	timeoutMs        int
	respectRobotsTxt bool
)

var rootCmd = &cobra.Command{
	Use:     "sitearchiver",
	Short:   "Archive a website into a self-contained local mirror",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logCfg := cfg.LogConfig()
		if logLevel != "" {
			logCfg.Level = logLevel
		}
		if err := utils.InitLogger(logCfg); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		if verbose {
			utils.Info("verbose mode enabled")
		}
		return nil
	},
	RunE: runArchive,
}

func runArchive(cmd *cobra.Command, args []string) error {
	if seedURL == "" {
		return cmd.Help()
	}
	if err := models.ValidateURL(seedURL); err != nil {
		return fmt.Errorf("invalid --url: %w", err)
	}

	appCfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	headerManager, err := core.NewHeaderManager(configFile, headers)
	if err != nil {
		return fmt.Errorf("build header manager: %w", err)
	}

	crawlCfg := appCfg.Crawl
	crawlCfg.SeedURL = seedURL
	if maxDepth >= 0 {
		crawlCfg.MaxDepth = maxDepth
	}
	if concurrency > 0 {
		crawlCfg.Concurrency = concurrency
	}
	if timeoutMs > 0 {
		crawlCfg.TimeoutMs = timeoutMs
	}
	crawlCfg.RespectRobotsTxt = respectRobotsTxt

	seedHost := "site"
	if parsed, err := url.Parse(seedURL); err == nil && parsed.Host != "" {
		seedHost = parsed.Host
	}
	baseDir := outputDir
	if baseDir == "" {
		baseDir = appCfg.Output.BaseDir
	}
	jobRoot := filepath.Join(baseDir, seedHost)

	jobID := models.NewJobID()
	j, err := job.New(jobID, crawlCfg, headerManager, jobRoot)
	if err != nil {
		return fmt.Errorf("build job: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		if _, ok := <-sigCh; ok {
			utils.Warn("interrupt received, cancelling run")
			j.Cancel()
		}
	}()
	defer signal.Stop(sigCh)

	barDone := make(chan struct{})
	go renderProgress(j, barDone)

	utils.Infof("starting archive of %s -> %s", seedURL, jobRoot)
	result := j.Start(ctx)
	close(barDone)

	fmt.Println()
	fmt.Printf("status:   %s\n", result.Status)
	fmt.Printf("pages:    %d\n", result.Pages)
	fmt.Printf("assets:   %d\n", result.Assets)
	fmt.Printf("bytes:    %d\n", result.Bytes)
	fmt.Printf("errors:   %d\n", len(result.Errors))
	fmt.Printf("duration: %s\n", result.Duration)

	if err := utils.NewReporter(jobRoot).GenerateReport(jobID, seedURL, result, crawlCfg); err != nil {
		utils.Warnf("could not write report: %v", err)
	}

	archiveDest := archivePath
	if archiveDest == "" {
		archiveDest = appCfg.Output.ArchivePath
	}
	if archiveDest == "" {
		archiveDest = filepath.Join(baseDir, seedHost+".zip")
	}
	if err := archivepkg.Write(j.Storage(), archiveDest); err != nil {
		return fmt.Errorf("package archive: %w", err)
	}
	utils.Infof("archive written: %s", archiveDest)

	if !result.Success {
		return fmt.Errorf("crawl finished with status %s (%d errors)", result.Status, len(result.Errors))
	}
	return nil
}

// renderProgress polls j.Progress() on a short interval and renders a
// textual progress bar until done is closed.
func renderProgress(j *job.Job, done chan struct{}) {
	bar := utils.NewProgressBar(-1, "crawling")
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snap := j.Progress()
			bar.Describe(fmt.Sprintf("crawling (pages=%d assets=%d errors=%d)",
				snap.PagesProcessed, snap.AssetsProcessed, snap.Errors))
			bar.Set(snap.PagesProcessed + snap.AssetsProcessed)
		case <-done:
			bar.Finish()
			return
		}
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sitearchiver %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "custom request header 'Name: Value', may be repeated")

	rootCmd.Flags().StringVarP(&seedURL, "url", "u", "", "seed URL to archive (required)")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output base directory (overrides config)")
	rootCmd.Flags().StringVar(&archivePath, "archive", "", "destination .zip path (default <output>/<host>.zip)")
	rootCmd.Flags().IntVarP(&maxDepth, "depth", "d", -1, "max crawl depth (-1 keeps the config default)")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 0, "concurrent fetches (0 keeps the config default)")
	rootCmd.Flags().IntVar(&timeoutMs, "timeout-ms", 0, "per-request timeout in ms (0 keeps the config default)")
	rootCmd.Flags().BoolVar(&respectRobotsTxt, "respect-robots", true, "honor robots.txt")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
