package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix marks environment variables read by Load.
	EnvPrefix = "FISHER_"
)

// NewDefaultConfig returns the built-in defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			Threads:   1,
			MaxHits:   5,
			OutputDir: "fisher_out",
		},
		Search: SearchConfig{
			EValue:           1e-10,
			ClusterIdentity:  0.98,
			TrimGapThreshold: 0.2,
		},
		Tools: ToolsConfig{
			HMMSearch:   "hmmsearch",
			BlastP:      "blastp",
			MakeBlastDB: "makeblastdb",
			Diamond:     "diamond",
			MAFFT:       "mafft",
			TrimAl:      "trimal",
			FastTree:    "FastTree",
			CDHit:       "cd-hit",
			Timeout:     Duration(2 * time.Hour),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			ServiceName: "fisher",
			SampleRate:  1.0,
		},
		Server: ServerConfig{
			ShutdownTimeout: Duration(5 * time.Second),
		},
	}
}

// Load loads configuration from the YAML file at configPath, then overrides
// it with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (FISHER_RUN_THREADS, FISHER_DATASET_FOLDER, ...)
//  2. YAML config file
//  3. NewDefaultConfig
//
// An empty configPath skips the file. A configPath that does not exist is an
// error.
//
// # Environment Variable Mapping
//
// The prefix is stripped and the remainder split on its first underscore
// into section and field name:
//
//	FISHER_RUN_MAX_HITS       -> run.max_hits
//	FISHER_SEARCH_EVALUE      -> search.evalue
//	FISHER_TOOLS_HMMSEARCH    -> tools.hmmsearch
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		// Use rawbytes provider to avoid re-opening the file
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps FISHER_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func readConfigFile(path string) ([]byte, error) {
	// Open file once and validate using file descriptor to avoid TOCTOU race
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("config file %s is not a regular file", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// applyDefaults fills values derived from other settings.
func applyDefaults(cfg *Config) {
	if cfg.Run.WorkDir == "" {
		cfg.Run.WorkDir = filepath.Join(cfg.Run.OutputDir, "tmp")
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
}
