package tools

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orthofisher/internal/logging"
)

// Tool names used in logs and metrics.
const (
	HMMSearch   = "hmmsearch"
	MakeBlastDB = "makeblastdb"
	BlastP      = "blastp"
	Diamond     = "diamond"
	MAFFT       = "mafft"
	TrimAl      = "trimal"
	FastTree    = "fasttree"
	CDHit       = "cd-hit"
)

// Binaries holds the executable used for each tool.
type Binaries struct {
	HMMSearch   string
	MakeBlastDB string
	BlastP      string
	Diamond     string
	MAFFT       string
	TrimAl      string
	FastTree    string
	CDHit       string
}

// DefaultBinaries resolves every tool through PATH.
func DefaultBinaries() Binaries {
	return Binaries{
		HMMSearch:   "hmmsearch",
		MakeBlastDB: "makeblastdb",
		BlastP:      "blastp",
		Diamond:     "diamond",
		MAFFT:       "mafft",
		TrimAl:      "trimal",
		FastTree:    "FastTree",
		CDHit:       "cd-hit",
	}
}

// Observer is notified after every invocation.
type Observer interface {
	ObserveTool(tool string, elapsed time.Duration, err error)
}

// Suite issues the concrete command lines of every tool.
type Suite struct {
	bin      Binaries
	runner   Runner
	observer Observer
}

// Option configures a Suite.
type Option func(*Suite)

// WithObserver attaches an invocation observer.
func WithObserver(o Observer) Option {
	return func(s *Suite) { s.observer = o }
}

// NewSuite returns a Suite running bin through runner.
func NewSuite(bin Binaries, runner Runner, opts ...Option) *Suite {
	s := &Suite{bin: bin, runner: runner}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HMMSearch searches profile against proteome and returns hit names in
// report order.
func (s *Suite) HMMSearch(ctx context.Context, profile, proteome, out string, evalue float64) ([]string, error) {
	inv := Invocation{
		Tool:   HMMSearch,
		Bin:    s.bin.HMMSearch,
		Args:   []string{"-E", formatFloat(evalue), "--cpu", "1", "--noali", "--tblout", out, profile, proteome},
		Stdout: os.DevNull,
	}
	if err := s.run(ctx, inv, out); err != nil {
		return nil, err
	}
	return parseTbloutFile(out)
}

// MakeBlastDB builds a protein database from proteome.
func (s *Suite) MakeBlastDB(ctx context.Context, proteome, db string) error {
	return s.run(ctx, Invocation{
		Tool:   MakeBlastDB,
		Bin:    s.bin.MakeBlastDB,
		Args:   []string{"-in", proteome, "-out", db, "-dbtype", "prot"},
		Stdout: os.DevNull,
	}, "")
}

// BlastP searches query against db.
func (s *Suite) BlastP(ctx context.Context, query, db, out string, evalue float64) ([]Hit, error) {
	inv := Invocation{
		Tool: BlastP,
		Bin:  s.bin.BlastP,
		Args: []string{"-evalue", formatFloat(evalue), "-query", query, "-db", db, "-out", out,
			"-outfmt", "6 qseqid sseqid evalue"},
	}
	if err := s.run(ctx, inv, out); err != nil {
		return nil, err
	}
	return parseTabularFile(out)
}

// Diamond searches query against a diamond database, reporting target titles.
func (s *Suite) Diamond(ctx context.Context, query, db, out string, evalue float64, threads int) ([]Hit, error) {
	inv := Invocation{
		Tool: Diamond,
		Bin:  s.bin.Diamond,
		Args: []string{"blastp", "-e", formatFloat(evalue), "-q", query, "--more-sensitive",
			"--db", db, "-o", out, "-p", strconv.Itoa(max(threads, 1)),
			"--outfmt", "6", "qseqid", "stitle", "evalue"},
	}
	if err := s.run(ctx, inv, out); err != nil {
		return nil, err
	}
	return parseTabularFile(out)
}

// MAFFT aligns in and writes the alignment to out.
func (s *Suite) MAFFT(ctx context.Context, in, out string) error {
	return s.run(ctx, Invocation{
		Tool:   MAFFT,
		Bin:    s.bin.MAFFT,
		Args:   []string{"--auto", "--reorder", in},
		Stdout: out,
	}, out)
}

// TrimAl removes alignment columns with a gap fraction above the threshold
// implied by gapThreshold.
func (s *Suite) TrimAl(ctx context.Context, in, out string, gapThreshold float64) error {
	return s.run(ctx, Invocation{
		Tool:   TrimAl,
		Bin:    s.bin.TrimAl,
		Args:   []string{"-in", in, "-gt", formatFloat(gapThreshold), "-out", out},
		Stdout: os.DevNull,
	}, out)
}

// FastTree infers a tree from the alignment in and writes Newick to out.
func (s *Suite) FastTree(ctx context.Context, in, out string) error {
	return s.run(ctx, Invocation{
		Tool:   FastTree,
		Bin:    s.bin.FastTree,
		Args:   []string{"-quiet", in},
		Stdout: out,
	}, out)
}

// CDHit clusters in at the given identity and writes representatives to out.
func (s *Suite) CDHit(ctx context.Context, in, out string, identity float64) error {
	return s.run(ctx, Invocation{
		Tool:   CDHit,
		Bin:    s.bin.CDHit,
		Args:   []string{"-i", in, "-o", out, "-c", formatFloat(identity)},
		Stdout: os.DevNull,
	}, out)
}

// run executes inv and, when output is set, requires a non-empty file there.
func (s *Suite) run(ctx context.Context, inv Invocation, output string) error {
	start := time.Now()
	err := s.runner.Run(ctx, inv)
	if err == nil && output != "" {
		if info, statErr := os.Stat(output); statErr != nil {
			err = &ToolError{Tool: inv.Tool, Command: inv.String(), Err: ErrMissingOutput, Cause: statErr}
		} else if info.Size() == 0 && inv.Stdout == output {
			err = &ToolError{Tool: inv.Tool, Command: inv.String(), Err: ErrMissingOutput,
				Cause: fmt.Errorf("%s is empty", output)}
		}
	}
	elapsed := time.Since(start)
	if logger := logging.FromContext(ctx); logger.Enabled(logging.TraceLevel) {
		logger.Trace(ctx, "tool finished",
			zap.String("command", inv.String()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	}
	if s.observer != nil {
		s.observer.ObserveTool(inv.Tool, elapsed, err)
	}
	return err
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
