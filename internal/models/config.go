package models

import "fmt"

// Scope is the admission predicate for page URLs, evaluated relative to the
// seed URL's host.
type Scope string

const (
	ScopeSameHost   Scope = "same-host"
	ScopeSameDomain Scope = "same-domain"
	ScopeSubdomains Scope = "subdomains"
	ScopeCustom     Scope = "custom"
)

// FileType is a coarse asset category used to enable/disable whole classes
// of resources via CrawlConfig.FileTypes.
type FileType string

const (
	FileTypeHTML      FileType = "html"
	FileTypeCSS       FileType = "css"
	FileTypeJS        FileType = "js"
	FileTypeImages    FileType = "images"
	FileTypeFonts     FileType = "fonts"
	FileTypeMedia     FileType = "media"
	FileTypeDocuments FileType = "documents"
	FileTypeOther     FileType = "other"
)

// CrawlConfig is the frozen configuration an Engine is constructed with. It
// mirrors the options table in the specification: every field has a direct
// effect on frontier admission, fetch behavior, or storage ceilings.
type CrawlConfig struct {
	SeedURL string `mapstructure:"seed_url"`

	Scope          Scope    `mapstructure:"scope"`
	CustomDomains  []string `mapstructure:"custom_domains"`
	IncludePaths   []string `mapstructure:"include_paths"`
	ExcludePaths   []string `mapstructure:"exclude_paths"`

	UnlimitedMode bool `mapstructure:"unlimited_mode"`
	MaxDepth      int  `mapstructure:"max_depth"`
	MaxPages      int  `mapstructure:"max_pages"`

	MaxFileSize  int64 `mapstructure:"max_file_size"`
	MaxTotalSize int64 `mapstructure:"max_total_size"`

	FileTypes map[FileType]bool `mapstructure:"file_types"`

	Concurrency int `mapstructure:"concurrency"`
	DelayMs     int `mapstructure:"delay_ms"`
	TimeoutMs   int `mapstructure:"timeout_ms"`

	UserAgent string            `mapstructure:"user_agent"`
	Cookies   map[string]string `mapstructure:"cookies"`

	RespectRobotsTxt bool `mapstructure:"respect_robots_txt"`

	FollowRedirects bool `mapstructure:"follow_redirects"`
	MaxRedirects    int  `mapstructure:"max_redirects"`

	AllowedProtocols []string `mapstructure:"allowed_protocols"`
}

// DefaultCrawlConfig returns the configuration the CLI falls back to when a
// flag or config file does not set a value, following the defaults table the
// spec's option list implies.
func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		Scope:            ScopeSameHost,
		MaxDepth:         3,
		MaxPages:         500,
		MaxFileSize:      20 * 1024 * 1024,
		MaxTotalSize:     500 * 1024 * 1024,
		FileTypes:        nil, // nil means every category enabled
		Concurrency:      6,
		DelayMs:          250,
		TimeoutMs:        15000,
		RespectRobotsTxt: true,
		FollowRedirects:  true,
		MaxRedirects:     10,
		AllowedProtocols: []string{"http", "https"},
	}
}

// Validate checks the invariants the rest of the system assumes hold for the
// lifetime of a run; CrawlConfig is frozen at engine construction, so this is
// the only place these are enforced.
func (c *CrawlConfig) Validate() error {
	if c.SeedURL == "" {
		return fmt.Errorf("seed url is required")
	}
	switch c.Scope {
	case ScopeSameHost, ScopeSameDomain, ScopeSubdomains, ScopeCustom:
	default:
		return fmt.Errorf("invalid scope: %q", c.Scope)
	}
	if c.Scope == ScopeCustom && len(c.CustomDomains) == 0 {
		return fmt.Errorf("scope=custom requires at least one custom domain")
	}
	if !c.UnlimitedMode {
		if c.MaxDepth < 0 {
			return fmt.Errorf("max_depth must be >= 0")
		}
		if c.MaxPages < 1 {
			return fmt.Errorf("max_pages must be >= 1")
		}
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be > 0")
	}
	if c.MaxTotalSize <= 0 {
		return fmt.Errorf("max_total_size must be > 0")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1")
	}
	if c.FollowRedirects && c.MaxRedirects < 0 {
		return fmt.Errorf("max_redirects must be >= 0")
	}
	if len(c.AllowedProtocols) == 0 {
		return fmt.Errorf("allowed_protocols must not be empty")
	}
	return nil
}

// FileTypeEnabled reports whether category is admitted by FileTypes. A nil
// or empty FileTypes map means every category is enabled; a present map
// disables a category only if it is explicitly set to false.
func (c *CrawlConfig) FileTypeEnabled(category FileType) bool {
	if len(c.FileTypes) == 0 {
		return true
	}
	enabled, present := c.FileTypes[category]
	if !present {
		return true
	}
	return enabled
}
