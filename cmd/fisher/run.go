package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orthofisher/internal/config"
	"github.com/fyrsmithlabs/orthofisher/internal/fisher"
	"github.com/fyrsmithlabs/orthofisher/internal/logging"
	"github.com/fyrsmithlabs/orthofisher/internal/samples"
	"github.com/fyrsmithlabs/orthofisher/internal/server"
	"github.com/fyrsmithlabs/orthofisher/internal/telemetry"
	"github.com/fyrsmithlabs/orthofisher/internal/tools"
)

// DiagnosticsFile collects absorbed failures and drops in the output dir.
const DiagnosticsFile = "diagnostics.jsonl"

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline",
		Long: `Run selection, homology filtering, tree validation and reciprocity tagging
for every sample and append the results to the per-gene collections in the
output directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cmd, cfg, opts.add, tools.ExecRunner{Timeout: cfg.Tools.Timeout.Duration()})
		},
	}
}

// run wires configuration into a pipeline and executes it with runner.
func run(ctx context.Context, cmd *cobra.Command, cfg *config.Config, add string, runner tools.Runner) error {
	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return err
	}
	defer tel.Shutdown(context.WithoutCancel(ctx))

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return err
	}
	defer logger.Sync()
	ctx = logging.WithLogger(ctx, logger)
	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded, continuing without export", zap.String("reason", h.Reason))
	}

	dataset, inputs, err := preflight(cfg, add)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Run.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	diags, err := fisher.OpenDiagnostics(filepath.Join(cfg.Run.OutputDir, DiagnosticsFile), runID)
	if err != nil {
		return err
	}
	defer diags.Close()

	reg := prometheus.NewRegistry()
	metrics := fisher.NewMetrics(reg)
	in := fisher.Instruments{
		Logger:      logger,
		Metrics:     metrics,
		Diagnostics: diags,
		Tracer:      tel.Tracer("github.com/fyrsmithlabs/orthofisher"),
	}

	suite := tools.NewSuite(binaries(cfg.Tools), runner, tools.WithObserver(metrics))
	backend := fisher.NewToolBackend(suite, dataset, cfg.Run.WorkDir,
		filepath.Join(cfg.Run.OutputDir, fisher.OriginalNamesFile),
		fisher.SearchParams{
			EValue:           cfg.Search.EValue,
			ClusterIdentity:  cfg.Search.ClusterIdentity,
			TrimGapThreshold: cfg.Search.TrimGapThreshold,
			Threads:          cfg.Run.Threads,
		}, in)
	p := fisher.New(dataset, backend, fisher.Options{
		Threads:   cfg.Run.Threads,
		MaxHits:   cfg.Run.MaxHits,
		WorkDir:   cfg.Run.WorkDir,
		OutputDir: cfg.Run.OutputDir,
		KeepTmp:   cfg.Run.KeepTmp,
	}, in, runID)

	if cfg.Server.Listen != "" {
		stop := serveStatus(ctx, cfg.Server, p, reg, logger)
		defer stop()
	}

	logger.Info(ctx, "run started",
		zap.Int("samples", len(inputs)),
		zap.Int("genes", len(dataset.Genes)),
		zap.Bool("add", add != ""),
		zap.Bool("telemetry", tel.IsEnabled()))
	sum, runErr := p.Run(ctx, inputs)

	if cfg.Metrics.Textfile != "" {
		if err := prometheus.WriteToTextfile(cfg.Metrics.Textfile, reg); err != nil {
			logger.Warn(ctx, "writing metrics textfile failed", zap.Error(err))
		}
	}
	if runErr != nil {
		logger.Error(ctx, "run failed", zap.Error(runErr))
		return runErr
	}

	if add != "" {
		if err := samples.AppendRows(cfg.Input.Metadata, add); err != nil {
			return fmt.Errorf("appending %s to %s: %w", add, cfg.Input.Metadata, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d samples, %d candidates, %d written (%d reciprocal)\n",
		sum.RunID, sum.Samples, sum.Pooled, sum.Written, sum.Reciprocal)
	return nil
}

// serveStatus starts the status server and returns a function that stops it
// and waits for shutdown.
func serveStatus(ctx context.Context, cfg config.ServerConfig, status server.Status, reg *prometheus.Registry, logger *logging.Logger) func() {
	srvCtx, cancel := context.WithCancel(ctx)
	srv := server.New(server.Config{
		Listen:          cfg.Listen,
		ShutdownTimeout: cfg.ShutdownTimeout.Duration(),
	}, status, reg, logger)

	done := make(chan error, 1)
	go func() { done <- srv.Start(srvCtx, nil) }()
	return func() {
		cancel()
		if err := <-done; err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn(ctx, "status server failed", zap.Error(err))
		}
	}
}

// binaries maps the configured executables onto the suite. A tool left empty
// resolves through PATH.
func binaries(c config.ToolsConfig) tools.Binaries {
	b := tools.DefaultBinaries()
	for _, o := range []struct {
		dst *string
		val string
	}{
		{&b.HMMSearch, c.HMMSearch},
		{&b.MakeBlastDB, c.MakeBlastDB},
		{&b.BlastP, c.BlastP},
		{&b.Diamond, c.Diamond},
		{&b.MAFFT, c.MAFFT},
		{&b.TrimAl, c.TrimAl},
		{&b.FastTree, c.FastTree},
		{&b.CDHit, c.CDHit},
	} {
		if o.val != "" {
			*o.dst = o.val
		}
	}
	return b
}
