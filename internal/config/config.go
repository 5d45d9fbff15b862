// Package config provides configuration loading for fisher.
//
// Values come from built-in defaults, an optional YAML file and FISHER_*
// environment variables, in increasing order of precedence. Command-line
// flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Config holds the complete fisher configuration.
type Config struct {
	Dataset   DatasetConfig   `koanf:"dataset"`
	Input     InputConfig     `koanf:"input"`
	Run       RunConfig       `koanf:"run"`
	Search    SearchConfig    `koanf:"search"`
	Tools     ToolsConfig     `koanf:"tools"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Server    ServerConfig    `koanf:"server"`
}

// DatasetConfig locates the reference dataset.
type DatasetConfig struct {
	Folder string `koanf:"folder"`
}

// InputConfig locates the input metadata table.
type InputConfig struct {
	Metadata string `koanf:"metadata"`
}

// RunConfig controls a pipeline run.
type RunConfig struct {
	Threads   int    `koanf:"threads"`
	MaxHits   int    `koanf:"max_hits"`
	WorkDir   string `koanf:"work_dir"`
	OutputDir string `koanf:"output_dir"`
	KeepTmp   bool   `koanf:"keep_tmp"`
}

// SearchConfig holds search and evaluation thresholds.
type SearchConfig struct {
	EValue           float64 `koanf:"evalue"`
	ClusterIdentity  float64 `koanf:"cluster_identity"`
	TrimGapThreshold float64 `koanf:"trim_gap_threshold"`
}

// ToolsConfig names the external executables.
type ToolsConfig struct {
	HMMSearch   string   `koanf:"hmmsearch"`
	BlastP      string   `koanf:"blastp"`
	MakeBlastDB string   `koanf:"makeblastdb"`
	Diamond     string   `koanf:"diamond"`
	MAFFT       string   `koanf:"mafft"`
	TrimAl      string   `koanf:"trimal"`
	FastTree    string   `koanf:"fasttree"`
	CDHit       string   `koanf:"cdhit"`
	Timeout     Duration `koanf:"timeout"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level    string `koanf:"level"`
	Format   string `koanf:"format"`
	Sampling bool   `koanf:"sampling"`
	OTEL     bool   `koanf:"otel"`
}

// TelemetryConfig holds OpenTelemetry tracing settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// MetricsConfig controls the end-of-run metrics dump.
type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

// ServerConfig controls the optional status server.
type ServerConfig struct {
	Listen          string   `koanf:"listen"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

var (
	// ErrMissingDataset is returned when no dataset folder is configured.
	ErrMissingDataset = errors.New("dataset.folder is required")
	// ErrMissingInput is returned when no input metadata is configured.
	ErrMissingInput = errors.New("input.metadata is required")
	// ErrWorkDirOverlapsOutput is returned when the work directory is the
	// output directory or one of its parents.
	ErrWorkDirOverlapsOutput = errors.New("run.work_dir must not contain run.output_dir")
)

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Dataset.Folder == "" {
		errs = append(errs, ErrMissingDataset)
	}
	if c.Input.Metadata == "" {
		errs = append(errs, ErrMissingInput)
	}
	if c.Run.Threads < 1 {
		errs = append(errs, fmt.Errorf("run.threads must be >= 1, got %d", c.Run.Threads))
	}
	if c.Run.MaxHits < 1 {
		errs = append(errs, fmt.Errorf("run.max_hits must be >= 1, got %d", c.Run.MaxHits))
	}
	if c.Search.EValue <= 0 {
		errs = append(errs, fmt.Errorf("search.evalue must be > 0, got %g", c.Search.EValue))
	}
	if c.Search.ClusterIdentity <= 0 || c.Search.ClusterIdentity > 1 {
		errs = append(errs, fmt.Errorf("search.cluster_identity must be in (0, 1], got %g", c.Search.ClusterIdentity))
	}
	if c.Search.TrimGapThreshold < 0 || c.Search.TrimGapThreshold > 1 {
		errs = append(errs, fmt.Errorf("search.trim_gap_threshold must be in [0, 1], got %g", c.Search.TrimGapThreshold))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}
	switch c.Telemetry.Protocol {
	case "grpc", "http/protobuf":
	default:
		errs = append(errs, fmt.Errorf("telemetry.protocol must be 'grpc' or 'http/protobuf', got %q", c.Telemetry.Protocol))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %g", c.Telemetry.SampleRate))
	}
	if c.Run.WorkDir != "" && c.Run.OutputDir != "" && contains(c.Run.WorkDir, c.Run.OutputDir) {
		errs = append(errs, fmt.Errorf("%w: %q contains output_dir %q", ErrWorkDirOverlapsOutput, c.Run.WorkDir, c.Run.OutputDir))
	}

	return errors.Join(errs...)
}

// contains reports whether dir is path or one of its ancestors.
func contains(dir, path string) bool {
	a, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	b, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(a, b)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
