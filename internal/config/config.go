package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/sitearchiver/sitearchiver/internal/models"
	"github.com/sitearchiver/sitearchiver/internal/utils"
)

// Config is the application's top-level configuration, loaded from a YAML
// file (if present) with CLI flags layered on top.
type Config struct {
	Crawl   models.CrawlConfig `mapstructure:"crawl"`
	Logging LoggingConfig      `mapstructure:"logging"`
	Output  OutputConfig       `mapstructure:"output"`
}

// LoggingConfig mirrors utils.LogConfig for the config file, since
// utils.LogConfig itself carries no mapstructure tags (it is built
// directly by the CLI, never unmarshalled).
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	LogDir     string `mapstructure:"log_dir"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// OutputConfig controls where a finished crawl's sandbox and archive land.
type OutputConfig struct {
	BaseDir     string `mapstructure:"base_dir"`
	ArchivePath string `mapstructure:"archive_path"`
}

// LoadConfig reads configPath (searching ./configs and . if configPath is
// empty), applies defaults for anything unset, and unmarshals into a Config.
// A missing file is not an error: the defaults alone are a valid Config.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".sitearchiver"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %q: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	crawl := models.DefaultCrawlConfig()
	v.SetDefault("crawl.scope", string(crawl.Scope))
	v.SetDefault("crawl.max_depth", crawl.MaxDepth)
	v.SetDefault("crawl.max_pages", crawl.MaxPages)
	v.SetDefault("crawl.max_file_size", crawl.MaxFileSize)
	v.SetDefault("crawl.max_total_size", crawl.MaxTotalSize)
	v.SetDefault("crawl.concurrency", crawl.Concurrency)
	v.SetDefault("crawl.delay_ms", crawl.DelayMs)
	v.SetDefault("crawl.timeout_ms", crawl.TimeoutMs)
	v.SetDefault("crawl.respect_robots_txt", crawl.RespectRobotsTxt)
	v.SetDefault("crawl.follow_redirects", crawl.FollowRedirects)
	v.SetDefault("crawl.max_redirects", crawl.MaxRedirects)
	v.SetDefault("crawl.allowed_protocols", crawl.AllowedProtocols)

	log := utils.DefaultLogConfig()
	v.SetDefault("logging.level", log.Level)
	v.SetDefault("logging.log_dir", log.LogDir)
	v.SetDefault("logging.max_size", log.MaxSize)
	v.SetDefault("logging.max_backups", log.MaxBackups)
	v.SetDefault("logging.max_age", log.MaxAge)
	v.SetDefault("logging.compress", log.Compress)

	v.SetDefault("output.base_dir", "output")
	v.SetDefault("output.archive_path", "")
}

// LogConfig converts the loaded LoggingConfig into utils.LogConfig.
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
		Compress:   c.Logging.Compress,
	}
}
