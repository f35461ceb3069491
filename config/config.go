package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files can use "30s" style values.
type Duration time.Duration

// UnmarshalText parses Go duration strings; a bare integer is read as seconds.
func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*d = 0
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the operator-facing configuration of the server and CLI.
type Config struct {
	LogLevel   string `yaml:"log_level" toml:"log_level"`
	Transport  string `yaml:"transport" toml:"transport"`
	Addr       string `yaml:"addr" toml:"addr"`
	TokenModel string `yaml:"token_model" toml:"token_model"`

	AllowedDirs   []string `yaml:"allowed_dirs" toml:"allowed_dirs"`
	DisabledTools []string `yaml:"disabled_tools" toml:"disabled_tools"`

	Limits LimitsConfig `yaml:"limits" toml:"limits"`
}

// LimitsConfig groups the guardrails consumed by internal/runtime.
type LimitsConfig struct {
	MaxConcurrentRequests int      `yaml:"max_concurrent_requests" toml:"max_concurrent_requests"`
	MaxOpenWorkbooks      int      `yaml:"max_open_workbooks" toml:"max_open_workbooks"`
	MaxPayloadBytes       int      `yaml:"max_payload_bytes" toml:"max_payload_bytes"`
	MaxFileBytes          int64    `yaml:"max_file_bytes" toml:"max_file_bytes"`
	MaxRowsPerSheet       int      `yaml:"max_rows_per_sheet" toml:"max_rows_per_sheet"`
	ReadRowLimit          int      `yaml:"read_row_limit" toml:"read_row_limit"`
	PreviewRowLimit       int      `yaml:"preview_row_limit" toml:"preview_row_limit"`
	SearchMaxMatches      int      `yaml:"search_max_matches" toml:"search_max_matches"`
	OperationTimeout      Duration `yaml:"operation_timeout" toml:"operation_timeout"`
	AcquireRequestTimeout Duration `yaml:"acquire_request_timeout" toml:"acquire_request_timeout"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		LogLevel:   DefaultLogLevel,
		Transport:  DefaultTransport,
		Addr:       DefaultAddr,
		TokenModel: DefaultTokenModel,
		Limits: LimitsConfig{
			MaxConcurrentRequests: DefaultMaxConcurrentRequests,
			MaxOpenWorkbooks:      DefaultMaxOpenWorkbooks,
			MaxPayloadBytes:       DefaultMaxPayloadBytes,
			MaxFileBytes:          DefaultMaxFileBytes,
			MaxRowsPerSheet:       DefaultMaxRowsPerSheet,
			ReadRowLimit:          DefaultReadRowLimit,
			PreviewRowLimit:       DefaultPreviewRowLimit,
			SearchMaxMatches:      DefaultSearchMaxMatches,
			OperationTimeout:      Duration(DefaultOperationTimeout),
			AcquireRequestTimeout: Duration(DefaultAcquireRequestTimeout),
		},
	}
}

// Load builds a Config from defaults, then the optional file at path (YAML or
// TOML chosen by extension), then XLREAD_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.mergeEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %q: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("config: parse yaml %q: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("config: parse toml %q: %w", path, err)
		}
	default:
		return fmt.Errorf("config: unsupported config file type %q", filepath.Ext(path))
	}
	return nil
}

// mergeEnv applies overrides; lookup is injectable for tests.
func (c *Config) mergeEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *Duration) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		return dst.UnmarshalText([]byte(v))
	}

	str("XLREAD_LOG_LEVEL", &c.LogLevel)
	str("XLREAD_TRANSPORT", &c.Transport)
	str("XLREAD_ADDR", &c.Addr)
	str("XLREAD_TOKEN_MODEL", &c.TokenModel)

	if v, ok := lookup("XLREAD_ALLOWED_DIRS"); ok && v != "" {
		c.AllowedDirs = filepath.SplitList(v)
	}
	if v, ok := lookup("XLREAD_DISABLED_TOOLS"); ok && v != "" {
		c.DisabledTools = splitCSV(v)
	}

	for key, dst := range map[string]*int{
		"XLREAD_MAX_CONCURRENT_REQUESTS": &c.Limits.MaxConcurrentRequests,
		"XLREAD_MAX_OPEN_WORKBOOKS":      &c.Limits.MaxOpenWorkbooks,
		"XLREAD_MAX_PAYLOAD_BYTES":       &c.Limits.MaxPayloadBytes,
		"XLREAD_MAX_ROWS_PER_SHEET":      &c.Limits.MaxRowsPerSheet,
		"XLREAD_READ_ROW_LIMIT":          &c.Limits.ReadRowLimit,
		"XLREAD_PREVIEW_ROW_LIMIT":       &c.Limits.PreviewRowLimit,
		"XLREAD_SEARCH_MAX_MATCHES":      &c.Limits.SearchMaxMatches,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	if v, ok := lookup("XLREAD_MAX_FILE_BYTES"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("config: XLREAD_MAX_FILE_BYTES: %w", err)
		}
		c.Limits.MaxFileBytes = n
	}
	if err := dur("XLREAD_OPERATION_TIMEOUT", &c.Limits.OperationTimeout); err != nil {
		return err
	}
	return dur("XLREAD_ACQUIRE_TIMEOUT", &c.Limits.AcquireRequestTimeout)
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
