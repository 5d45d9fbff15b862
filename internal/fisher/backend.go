package fisher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orthofisher/internal/fasta"
	"github.com/fyrsmithlabs/orthofisher/internal/phylo"
	"github.com/fyrsmithlabs/orthofisher/internal/reference"
	"github.com/fyrsmithlabs/orthofisher/internal/samples"
	"github.com/fyrsmithlabs/orthofisher/internal/seqstore"
	"github.com/fyrsmithlabs/orthofisher/internal/tools"
)

// Files in the work directory.
const (
	PoolFile           = "for_diamond.fasta"
	ValidatedFile      = "validated.fasta"
	OrthogroupHitsFile = "diamond.res"
	DatasetHitsFile    = "dataset_diamond.res"
	OriginalNamesFile  = "original_names.tsv"

	clusteredFile = "clustered.fasta"
	proteomeFile  = "clustered_renamed.fasta"
	blastDBName   = "proteome.blastdb"
)

// Backend runs every external search a pipeline needs.
type Backend interface {
	SeedSearcher
	Evaluator

	// PrepareSample clusters and renames a sample's proteome and, when
	// seedDB is set, builds its seed search database.
	PrepareSample(ctx context.Context, s samples.Sample, seedDB bool) (*seqstore.Store, error)
	// ProfileSearch returns profile hits of gene in the sample's proteome.
	ProfileSearch(ctx context.Context, sample, gene string) ([]string, error)
	// OrthogroupSearch searches the pool file against the orthogroup database.
	OrthogroupSearch(ctx context.Context, pool string) ([]tools.Hit, error)
	// DatasetSearch searches the pool file against the per-gene dataset database.
	DatasetSearch(ctx context.Context, pool string) ([]tools.Hit, error)
}

// SearchParams are the thresholds passed to the tools.
type SearchParams struct {
	EValue           float64
	ClusterIdentity  float64
	TrimGapThreshold float64
	Threads          int
}

// ToolBackend is a Backend running the external tool suite inside a work
// directory laid out as {work}/{sample}/...
type ToolBackend struct {
	suite     *tools.Suite
	dataset   *reference.Dataset
	workDir   string
	namesPath string
	params    SearchParams
	in        Instruments
}

// NewToolBackend returns a backend writing intermediates under workDir and
// appending renamed identifiers to namesPath.
func NewToolBackend(suite *tools.Suite, dataset *reference.Dataset, workDir, namesPath string, params SearchParams, in Instruments) *ToolBackend {
	return &ToolBackend{
		suite:     suite,
		dataset:   dataset,
		workDir:   workDir,
		namesPath: namesPath,
		params:    params,
		in:        in,
	}
}

func (b *ToolBackend) sampleDir(sample string) string {
	return filepath.Join(b.workDir, sample)
}

// PrepareSample clusters the sample's proteome, renames every representative
// to {sample}_{n} and records the mapping in the original names table.
func (b *ToolBackend) PrepareSample(ctx context.Context, s samples.Sample, seedDB bool) (*seqstore.Store, error) {
	dir := b.sampleDir(s.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sample work dir: %w", err)
	}

	clustered := filepath.Join(dir, clusteredFile)
	if err := b.suite.CDHit(ctx, s.Path(), clustered, b.params.ClusterIdentity); err != nil {
		return nil, err
	}
	records, err := fasta.ReadFile(clustered)
	if err != nil {
		return nil, err
	}

	renamed := make([]fasta.Record, len(records))
	var names []byte
	for i, r := range records {
		id := s.Name + "_" + strconv.Itoa(i+1)
		renamed[i] = fasta.Record{ID: id, Seq: r.Seq}
		names = fmt.Appendf(names, "%s\t%s\n", r.ID, id)
	}
	proteome := filepath.Join(dir, proteomeFile)
	if err := fasta.WriteFile(proteome, renamed...); err != nil {
		return nil, err
	}
	if err := appendText(b.namesPath, string(names)); err != nil {
		return nil, err
	}

	if seedDB {
		if err := b.suite.MakeBlastDB(ctx, proteome, filepath.Join(dir, blastDBName)); err != nil {
			return nil, err
		}
	}
	store, err := seqstore.New(renamed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", clustered, err)
	}
	b.in.logger(ctx).Info(ctx, "sample prepared",
		zap.Int("sequences", store.Len()),
		zap.Bool("seed_db", seedDB))
	return store, nil
}

// ProfileSearch runs the gene's profile against the prepared proteome.
func (b *ToolBackend) ProfileSearch(ctx context.Context, sample, gene string) ([]string, error) {
	dir := b.sampleDir(sample)
	return b.suite.HMMSearch(ctx,
		b.dataset.ProfilePath(gene),
		filepath.Join(dir, proteomeFile),
		filepath.Join(dir, gene+".hmmout"),
		b.params.EValue)
}

// SearchSeed searches seed against the sample's seed database.
func (b *ToolBackend) SearchSeed(ctx context.Context, sample, gene string, seed fasta.Record) ([]string, error) {
	dir := b.sampleDir(sample)
	query := filepath.Join(dir, gene+".seed.fas")
	if err := fasta.WriteFile(query, fasta.Record{ID: gene, Seq: seed.Seq}); err != nil {
		return nil, err
	}
	hits, err := b.suite.BlastP(ctx, query, filepath.Join(dir, blastDBName), filepath.Join(dir, gene+".blastout"), b.params.EValue)
	if err != nil {
		return nil, err
	}
	return tools.UniqueTargets(hits), nil
}

// OrthogroupSearch searches pool against the orthogroup database.
func (b *ToolBackend) OrthogroupSearch(ctx context.Context, pool string) ([]tools.Hit, error) {
	return b.suite.Diamond(ctx, pool, b.dataset.OrthogroupDBPath(),
		filepath.Join(b.workDir, OrthogroupHitsFile), b.params.EValue, b.params.Threads)
}

// DatasetSearch searches pool against the per-gene dataset database.
func (b *ToolBackend) DatasetSearch(ctx context.Context, pool string) ([]tools.Hit, error) {
	return b.suite.Diamond(ctx, pool, b.dataset.DatasetDBPath(),
		filepath.Join(b.workDir, DatasetHitsFile), b.params.EValue, b.params.Threads)
}

// Evaluate aligns, trims and builds a tree for one (sample, gene) group.
func (b *ToolBackend) Evaluate(ctx context.Context, sample, gene string, records []fasta.Record) (Evaluation, error) {
	dir := b.sampleDir(sample)
	var (
		in      = filepath.Join(dir, gene+".for_ftree")
		aln     = filepath.Join(dir, gene+".aln")
		trimmed = filepath.Join(dir, gene+".trimal")
		tree    = filepath.Join(dir, gene+".tree")
	)
	// Tree leaves are named by header, so only the identifier is written.
	plain := make([]fasta.Record, len(records))
	for i, r := range records {
		plain[i] = fasta.Record{ID: r.ID, Seq: r.Seq}
	}
	if err := fasta.WriteFile(in, plain...); err != nil {
		return Evaluation{}, err
	}
	if err := b.suite.MAFFT(ctx, in, aln); err != nil {
		return Evaluation{}, err
	}
	if err := b.suite.TrimAl(ctx, aln, trimmed, b.params.TrimGapThreshold); err != nil {
		return Evaluation{}, err
	}
	if err := b.suite.FastTree(ctx, trimmed, tree); err != nil {
		return Evaluation{}, err
	}

	rows, err := fasta.ReadFile(trimmed)
	if err != nil {
		return Evaluation{}, err
	}
	t, err := phylo.ReadFile(tree)
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{Trimmed: rows, Tree: t}, nil
}
