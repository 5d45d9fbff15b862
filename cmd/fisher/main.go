// Package main implements the fisher CLI, which fishes orthologs of a
// reference gene set out of new proteomes and appends them to per-gene
// collections.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Set via ldflags: -X main.version=... -X main.commit=...
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&rootOptions{}).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// rootOptions are the flags shared by every subcommand. Zero values mean
// "not set"; only flags the user passed override the configuration.
type rootOptions struct {
	configPath string
	threads    int
	maxHits    int
	keepTmp    bool
	add        string
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "fisher",
		Short: "Fish orthologs of a reference gene set out of new proteomes",
		Long: `fisher selects ortholog candidates for every reference gene from each
sample proteome, filters them by orthogroup homology, validates seed-selected
candidates by tree placement, tags them by reciprocal best hit and appends them
to per-gene FASTA collections.

Configuration is read from --config, then FISHER_* environment variables,
then the flags below.

Examples:
  # Validate inputs without running any search
  fisher check --config fisher.yaml

  # Full run with 8 workers
  fisher run --config fisher.yaml -t 8

  # Add the samples of another metadata file to an existing output
  fisher run --config fisher.yaml --add new_samples.tsv`,
		Version:      versionString(),
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to YAML config file")
	pf.IntVarP(&opts.threads, "threads", "t", 0, "number of parallel workers")
	pf.IntVarP(&opts.maxHits, "max-hits", "n", 0, "maximum candidates per sample and gene")
	pf.BoolVar(&opts.keepTmp, "keep-tmp", false, "keep the work directory after the run")
	pf.StringVar(&opts.add, "add", "", "metadata file of samples to add to an existing output")

	root.AddCommand(newRunCmd(opts), newCheckCmd(opts), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "fisher "+versionString())
		},
	}
}

func versionString() string {
	return fmt.Sprintf("%s (commit %s)", version, commit)
}
