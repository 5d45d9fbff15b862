package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/orthofisher/internal/config"
	"github.com/fyrsmithlabs/orthofisher/internal/reference"
	"github.com/fyrsmithlabs/orthofisher/internal/samples"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration, dataset and input metadata",
		Long: `Load the configuration and reference dataset and validate the input
metadata (or the --add file) without running any search. Every problem in
the metadata is reported at once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			dataset, inputs, err := preflight(cfg, opts.add)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d samples, %d genes, %d reference organisms\n",
				len(inputs), len(dataset.Genes), len(dataset.Taxonomy))
			return nil
		},
	}
}

// loadConfig loads the configuration and applies the flags the user set.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("threads") {
		cfg.Run.Threads = opts.threads
	}
	if flags.Changed("max-hits") {
		cfg.Run.MaxHits = opts.maxHits
	}
	if flags.Changed("keep-tmp") {
		cfg.Run.KeepTmp = opts.keepTmp
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

// preflight loads the dataset and the samples to run. In add mode the
// samples come from the add file instead of the configured metadata.
func preflight(cfg *config.Config, add string) (*reference.Dataset, []samples.Sample, error) {
	dataset, err := reference.Load(cfg.Dataset.Folder)
	if err != nil {
		return nil, nil, fmt.Errorf("loading dataset: %w", err)
	}

	input := cfg.Input.Metadata
	if add != "" {
		input = add
	}
	inputs, err := samples.ReadFile(input)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", input, err)
	}
	if err := samples.Validate(inputs, dataset.Taxonomy); err != nil {
		return nil, nil, err
	}
	return dataset, inputs, nil
}
