package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ModeValidate = "validate"
	ModePersist  = "persist"

	LedgerFile  = "file"
	LedgerRedis = "redis"

	// MaxSeeMoreClicks caps the "see more" loop whatever the configuration says
	MaxSeeMoreClicks = 10
)

// Config holds all configuration options for igfetch
type Config struct {
	// Browser launch options
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Target site entry point and selectors
	Site SiteConfig `yaml:"site" json:"site"`

	// Per-step wait budgets
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`

	Pagination PaginationConfig `yaml:"pagination" json:"pagination"`

	// Link probing
	Validation ValidationConfig `yaml:"validation" json:"validation"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Dedup ledger backend
	Ledger LedgerConfig `yaml:"ledger" json:"ledger"`

	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// BrowserConfig controls how the automation browser is launched
type BrowserConfig struct {
	Headless     bool          `yaml:"headless" json:"headless"`
	ExecPath     string        `yaml:"exec_path" json:"exec_path"`
	RemoteURL    string        `yaml:"remote_url" json:"remote_url"`
	UserAgent    string        `yaml:"user_agent" json:"user_agent"`
	WindowWidth  int           `yaml:"window_width" json:"window_width"`
	WindowHeight int           `yaml:"window_height" json:"window_height"`
	ReviewDelay  time.Duration `yaml:"review_delay" json:"review_delay"`
}

// SiteConfig describes the third-party front end being driven
type SiteConfig struct {
	EntryURL  string         `yaml:"entry_url" json:"entry_url"`
	Selectors SelectorConfig `yaml:"selectors" json:"selectors"`
}

// Selector is a locator definition; strategy is one of xpath, css or class
type Selector struct {
	Strategy string `yaml:"strategy" json:"strategy"`
	Value    string `yaml:"value" json:"value"`
}

// SelectorConfig lists every control the interaction sequence touches
type SelectorConfig struct {
	Consent       Selector `yaml:"consent" json:"consent"`
	Popup         Selector `yaml:"popup" json:"popup"`
	SearchInput   Selector `yaml:"search_input" json:"search_input"`
	SubmitButton  Selector `yaml:"submit_button" json:"submit_button"`
	StoriesTab    Selector `yaml:"stories_tab" json:"stories_tab"`
	SeeMore       Selector `yaml:"see_more" json:"see_more"`
	ResultAnchors Selector `yaml:"result_anchors" json:"result_anchors"`
}

// TimeoutConfig holds the wait budget of every protocol step
type TimeoutConfig struct {
	Navigation time.Duration `yaml:"navigation" json:"navigation"`
	Consent    time.Duration `yaml:"consent" json:"consent"`
	Popup      time.Duration `yaml:"popup" json:"popup"`
	Input      time.Duration `yaml:"input" json:"input"`
	Submit     time.Duration `yaml:"submit" json:"submit"`
	StoriesTab time.Duration `yaml:"stories_tab" json:"stories_tab"`
	SeeMore    time.Duration `yaml:"see_more" json:"see_more"`
	Settle     time.Duration `yaml:"settle" json:"settle"`
	Anchors    time.Duration `yaml:"anchors" json:"anchors"`
}

// PaginationConfig bounds the "see more" loop
type PaginationConfig struct {
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
}

// ValidationConfig holds link check settings
type ValidationConfig struct {
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	Concurrency       int           `yaml:"concurrency" json:"concurrency"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Mode            string        `yaml:"mode" json:"mode"`
	OutputDir       string        `yaml:"output_dir" json:"output_dir"`
	FileNamePattern string        `yaml:"file_name_pattern" json:"file_name_pattern"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	TaskLog         bool          `yaml:"task_log" json:"task_log"`
}

// LedgerConfig selects where previously downloaded keys are kept
type LedgerConfig struct {
	Backend       string `yaml:"backend" json:"backend"`
	Path          string `yaml:"path" json:"path"`
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"-"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	RedisKey      string `yaml:"redis_key" json:"redis_key"`
}

// MetricsConfig holds the optional prometheus endpoint
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	File    string `yaml:"file" json:"file"`
	NoColor bool   `yaml:"no_color" json:"no_color"`
}

// DefaultConfig returns a Config matching the behavior of the fastdl.app flow
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:     false,
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			WindowWidth:  1920,
			WindowHeight: 1080,
		},
		Site: SiteConfig{
			EntryURL: "https://fastdl.app/",
			Selectors: SelectorConfig{
				Consent:       Selector{Strategy: "xpath", Value: "//button[@aria-label='Consent']"},
				Popup:         Selector{Strategy: "class", Value: "ads-modal"},
				SearchInput:   Selector{Strategy: "xpath", Value: "//input[@id='search-form-input']"},
				SubmitButton:  Selector{Strategy: "xpath", Value: "//button[@class='search-form__button']"},
				StoriesTab:    Selector{Strategy: "xpath", Value: "//li[@class='tabs-component__item']/button[contains(text(), 'stories')]"},
				SeeMore:       Selector{Strategy: "xpath", Value: "//button[@class='button button--see-more profile-media-list__button--see-more']"},
				ResultAnchors: Selector{Strategy: "css", Value: "a.button--filled"},
			},
		},
		Timeouts: TimeoutConfig{
			Navigation: 30 * time.Second,
			Consent:    10 * time.Second,
			Popup:      3 * time.Second,
			Input:      20 * time.Second,
			Submit:     20 * time.Second,
			StoriesTab: 20 * time.Second,
			SeeMore:    5 * time.Second,
			Settle:     2 * time.Second,
			Anchors:    20 * time.Second,
		},
		Pagination: PaginationConfig{
			MaxAttempts: MaxSeeMoreClicks,
		},
		Validation: ValidationConfig{
			Timeout:           10 * time.Second,
			Concurrency:       1,
			RequestsPerMinute: 0,
		},
		Download: DownloadConfig{
			Mode:            ModeValidate,
			OutputDir:       "./downloads",
			FileNamePattern: "igfetch_{target}_{date}_{index}.{ext}",
			Timeout:         60 * time.Second,
			TaskLog:         true,
		},
		Ledger: LedgerConfig{
			Backend:  LedgerFile,
			RedisKey: "igfetch:ledger",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv("IGFETCH_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("IGFETCH_HEADLESS: %w", err))
		} else {
			c.Browser.Headless = b
		}
	}
	if v := os.Getenv("IGFETCH_BROWSER_PATH"); v != "" {
		c.Browser.ExecPath = v
	}
	if v := os.Getenv("IGFETCH_REMOTE_URL"); v != "" {
		c.Browser.RemoteURL = v
	}
	if v := os.Getenv("IGFETCH_USER_AGENT"); v != "" {
		c.Browser.UserAgent = v
	}
	if v := os.Getenv("IGFETCH_ENTRY_URL"); v != "" {
		c.Site.EntryURL = v
	}
	if v := os.Getenv("IGFETCH_DOWNLOAD_MODE"); v != "" {
		c.Download.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("IGFETCH_OUTPUT_DIR"); v != "" {
		c.Download.OutputDir = v
	}
	if v := os.Getenv("IGFETCH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("IGFETCH_CONCURRENCY: %w", err))
		} else {
			c.Validation.Concurrency = n
		}
	}
	if v := os.Getenv("IGFETCH_LEDGER_BACKEND"); v != "" {
		c.Ledger.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("IGFETCH_LEDGER_PATH"); v != "" {
		c.Ledger.Path = v
	}
	if v := os.Getenv("IGFETCH_REDIS_ADDR"); v != "" {
		c.Ledger.RedisAddr = v
	}
	if v := os.Getenv("IGFETCH_REDIS_PASSWORD"); v != "" {
		c.Ledger.RedisPassword = v
	}
	if v := os.Getenv("IGFETCH_METRICS_ADDR"); v != "" {
		c.Metrics.ListenAddr = v
	}
	if v := os.Getenv("IGFETCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("IGFETCH_LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".igfetch.yaml",
		".igfetch.yml",
		filepath.Join(home, ".config", "igfetch", "config.yaml"),
		filepath.Join(home, ".config", "igfetch", "config.yml"),
		filepath.Join(home, ".igfetch.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if level, ok := flags["log-level"].(string); ok && level != "" {
		c.Logging.Level = level
	}
	if noColor, ok := flags["no-color"].(bool); ok && noColor {
		c.Logging.NoColor = true
	}
	if download, ok := flags["download"].(bool); ok && download {
		c.Download.Mode = ModePersist
	}
	if output, ok := flags["output"].(string); ok && output != "" {
		c.Download.OutputDir = output
	}
	if n, ok := flags["concurrency"].(int); ok && n > 0 {
		c.Validation.Concurrency = n
	}
	if headless, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = headless
	}
	if addr, ok := flags["metrics-addr"].(string); ok && addr != "" {
		c.Metrics.ListenAddr = addr
	}
	if path, ok := flags["ledger"].(string); ok && path != "" {
		c.Ledger.Path = path
	}
}

// applyDerived fills values that depend on other settings
func (c *Config) applyDerived() {
	if c.Ledger.Path == "" {
		c.Ledger.Path = filepath.Join(c.Download.OutputDir, "downloaded_links.txt")
	}
}

// Persist reports whether validated media should be written to disk
func (c *Config) Persist() bool {
	return c.Download.Mode == ModePersist
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Site.EntryURL == "" {
		errs = append(errs, errors.New("site entry URL is required"))
	}

	sels := map[string]Selector{
		"consent":        c.Site.Selectors.Consent,
		"popup":          c.Site.Selectors.Popup,
		"search_input":   c.Site.Selectors.SearchInput,
		"submit_button":  c.Site.Selectors.SubmitButton,
		"stories_tab":    c.Site.Selectors.StoriesTab,
		"see_more":       c.Site.Selectors.SeeMore,
		"result_anchors": c.Site.Selectors.ResultAnchors,
	}
	for name, sel := range sels {
		switch strings.ToLower(sel.Strategy) {
		case "xpath", "css", "class":
		default:
			errs = append(errs, fmt.Errorf("selector %s: unknown strategy %q", name, sel.Strategy))
		}
		if sel.Value == "" {
			errs = append(errs, fmt.Errorf("selector %s: value is required", name))
		}
	}

	t := c.Timeouts
	for name, d := range map[string]time.Duration{
		"navigation": t.Navigation, "consent": t.Consent, "popup": t.Popup,
		"input": t.Input, "submit": t.Submit, "stories_tab": t.StoriesTab,
		"see_more": t.SeeMore, "settle": t.Settle, "anchors": t.Anchors,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("timeout %s must be positive", name))
		}
	}

	if c.Pagination.MaxAttempts < 0 {
		errs = append(errs, errors.New("pagination max attempts cannot be negative"))
	}
	if c.Pagination.MaxAttempts > MaxSeeMoreClicks {
		errs = append(errs, fmt.Errorf("pagination max attempts should not exceed %d", MaxSeeMoreClicks))
	}

	if c.Validation.Timeout <= 0 {
		errs = append(errs, errors.New("validation timeout must be positive"))
	}
	if c.Validation.Concurrency <= 0 {
		errs = append(errs, errors.New("validation concurrency must be positive"))
	}
	if c.Validation.Concurrency > 16 {
		errs = append(errs, errors.New("validation concurrency should not exceed 16"))
	}
	if c.Validation.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}

	switch c.Download.Mode {
	case ModeValidate, ModePersist:
	default:
		errs = append(errs, fmt.Errorf("invalid download mode %q", c.Download.Mode))
	}
	if c.Download.OutputDir == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Download.FileNamePattern == "" {
		errs = append(errs, errors.New("file name pattern is required"))
	}

	switch c.Ledger.Backend {
	case LedgerFile:
	case LedgerRedis:
		if c.Ledger.RedisAddr == "" {
			errs = append(errs, errors.New("redis ledger requires redis_addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid ledger backend %q", c.Ledger.Backend))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Missing .env files are fine
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igfetch.env"))

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.MergeCommandLineFlags(flags)
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
