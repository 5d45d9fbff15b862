package fisher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orthofisher/internal/fasta"
	"github.com/fyrsmithlabs/orthofisher/internal/logging"
	"github.com/fyrsmithlabs/orthofisher/internal/reference"
	"github.com/fyrsmithlabs/orthofisher/internal/samples"
	"github.com/fyrsmithlabs/orthofisher/internal/workpool"
)

// Run phases reported by Phase.
const (
	PhaseIdle        = "idle"
	PhaseSelecting   = "selecting"
	PhaseHomology    = "homology"
	PhaseValidating  = "validating"
	PhaseReciprocity = "reciprocity"
	PhaseDone        = "done"
)

// Options control a run.
type Options struct {
	Threads   int
	MaxHits   int
	WorkDir   string
	OutputDir string
	KeepTmp   bool
}

// Summary counts what a run did.
type Summary struct {
	RunID      string
	Samples    int
	Pooled     int
	Survivors  int
	Validated  int
	Written    int
	Reciprocal int
}

// Pipeline runs selection, filtering, validation, tagging and assembly for a
// set of samples against one reference dataset.
type Pipeline struct {
	dataset *reference.Dataset
	backend Backend
	opts    Options
	in      Instruments

	runID string
	phase atomic.Value // string
}

// New returns a Pipeline. An empty runID is replaced by a random one.
func New(dataset *reference.Dataset, backend Backend, opts Options, in Instruments, runID string) *Pipeline {
	if runID == "" {
		runID = uuid.NewString()
	}
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	p := &Pipeline{dataset: dataset, backend: backend, opts: opts, in: in, runID: runID}
	p.phase.Store(PhaseIdle)
	return p
}

// RunID identifies the run in logs, diagnostics and the status endpoint.
func (p *Pipeline) RunID() string { return p.runID }

// Phase is the stage the run is in.
func (p *Pipeline) Phase() string { return p.phase.Load().(string) }

func (p *Pipeline) enter(ctx context.Context, phase string) {
	p.phase.Store(phase)
	p.in.logger(ctx).Debug(ctx, "phase", zap.String("phase", phase))
}

// group is the candidates of one (sample, gene) pair in selection order.
type group struct {
	sample, gene string
	candidates   []Candidate
}

// Run processes every sample. Per-gene and per-candidate failures are
// absorbed and reported through diagnostics; only cancellation and output
// write failures are returned.
func (p *Pipeline) Run(ctx context.Context, inputs []samples.Sample) (Summary, error) {
	sum := Summary{RunID: p.runID, Samples: len(inputs)}
	ctx = logging.WithRunID(ctx, p.runID)
	ctx, span := p.in.tracer().Start(ctx, "fisher.run")
	defer span.End()
	log := p.in.logger(ctx)
	defer p.phase.Store(PhaseDone)

	if err := p.prepareWorkDir(); err != nil {
		return sum, err
	}
	defer p.cleanup(ctx, inputs)

	asm, err := NewAssembler(p.opts.OutputDir, p.dataset, p.in)
	if err != nil {
		return sum, err
	}
	defer asm.Close()

	p.enter(ctx, PhaseSelecting)
	sampleGroup := make(map[string]string, len(inputs))
	var pool []Candidate
	for _, s := range inputs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sampleGroup[s.Name] = s.Group
		log.Info(ctx, "sample started", zap.String("sample", s.Name), zap.String("group", s.Group))
		cands, err := p.collect(ctx, s)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			p.in.toolFailure(logging.WithSample(ctx, s.Name), s.Name, "", err)
			continue
		}
		pool = append(pool, cands...)
	}
	sum.Pooled = len(pool)
	span.SetAttributes(attribute.Int("pooled", len(pool)))
	if len(pool) == 0 {
		log.Info(ctx, "no candidates selected")
		return sum, nil
	}

	p.enter(ctx, PhaseHomology)
	poolPath := filepath.Join(p.opts.WorkDir, PoolFile)
	if err := writePool(poolPath, pool); err != nil {
		return sum, err
	}
	hits, err := p.backend.OrthogroupSearch(ctx, poolPath)
	if err != nil {
		p.in.toolFailure(ctx, "", "", err)
	}
	filtered := NewHomologyFilter(p.dataset, p.in).Filter(ctx, pool, hits)
	sum.Survivors = len(filtered.Survivors)
	groups := groupSurvivors(pool, filtered)

	p.enter(ctx, PhaseValidating)
	groups, err = p.validate(ctx, groups, sampleGroup)
	if err != nil {
		return sum, err
	}
	var validated []Candidate
	for _, g := range groups {
		validated = append(validated, g.candidates...)
	}
	sum.Validated = len(validated)
	if len(validated) == 0 {
		log.Info(ctx, "no candidates survived validation")
		return sum, nil
	}

	p.enter(ctx, PhaseReciprocity)
	record, err := p.reciprocity(ctx, validated)
	if err != nil {
		return sum, err
	}
	checker := NewReciprocityChecker(record, p.in)

	results := workpool.Map(ctx, p.opts.Threads, groups, func(ctx context.Context, g group) ([]TaggedCandidate, error) {
		gctx := scoped(ctx, g.sample, g.gene)
		tagged := checker.Tag(gctx, g.candidates)
		if _, err := asm.Write(gctx, tagged); err != nil {
			return nil, fmt.Errorf("writing %s/%s: %w", g.sample, g.gene, err)
		}
		return tagged, nil
	})
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		for _, t := range r.Value {
			sum.Written++
			if t.Reciprocal {
				sum.Reciprocal++
			}
		}
	}

	log.Info(ctx, "run complete",
		zap.Int("samples", sum.Samples),
		zap.Int("pooled", sum.Pooled),
		zap.Int("survivors", sum.Survivors),
		zap.Int("validated", sum.Validated),
		zap.Int("written", sum.Written),
		zap.Int("reciprocal", sum.Reciprocal))
	return sum, errors.Join(errs...)
}

// collect prepares one sample and selects candidates for every gene.
func (p *Pipeline) collect(ctx context.Context, s samples.Sample) ([]Candidate, error) {
	ctx = logging.WithSample(ctx, s.Name)
	ctx, span := p.in.tracer().Start(ctx, "fisher.sample")
	defer span.End()
	span.SetAttributes(attribute.String("sample", s.Name))

	store, err := p.backend.PrepareSample(ctx, s, s.HasSeeds())
	if err != nil {
		return nil, fmt.Errorf("preparing sample %s: %w", s.Name, err)
	}
	selector := NewSelector(p.dataset, p.backend, Proteomes{s.Name: store}, p.in)

	results := workpool.Map(ctx, p.opts.Threads, p.dataset.Genes, func(ctx context.Context, gene string) ([]Candidate, error) {
		ctx = logging.WithGene(ctx, gene)
		ids, err := p.backend.ProfileSearch(ctx, s.Name, gene)
		if err != nil {
			p.in.toolFailure(ctx, s.Name, gene, err)
			return nil, nil
		}
		q := NewQuery(Target{
			Sample:  s.Name,
			Gene:    gene,
			Hits:    NewProfileHitSet(ids),
			MaxHits: p.opts.MaxHits,
		}, s.SeedOrganisms)
		cands, err := selector.Select(ctx, q)
		if err != nil {
			p.in.toolFailure(ctx, s.Name, gene, err)
			return nil, nil
		}
		return cands, nil
	})

	var out []Candidate
	for _, r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		out = append(out, r.Value...)
	}
	span.SetAttributes(attribute.Int("candidates", len(out)))
	return out, nil
}

// validate runs placement validation on seed-path groups. Other groups pass
// through unchanged. Groups left empty are removed.
func (p *Pipeline) validate(ctx context.Context, groups []group, sampleGroup map[string]string) ([]group, error) {
	validator := NewValidator(p.backend, p.dataset, p.dataset.Taxonomy, p.in)
	results := workpool.Map(ctx, p.opts.Threads, groups, func(ctx context.Context, g group) (group, error) {
		if g.candidates[0].Path != PathSeedBlast {
			return g, nil
		}
		g.candidates = validator.Validate(ctx, sampleGroup[g.sample], g.candidates)
		return g, nil
	})
	out := make([]group, 0, len(groups))
	for _, r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		if len(r.Value.candidates) > 0 {
			out = append(out, r.Value)
		}
	}
	return out, nil
}

// reciprocity searches validated candidates against the dataset database.
// A failed search yields an empty record, so every candidate is dropped and
// reported.
func (p *Pipeline) reciprocity(ctx context.Context, validated []Candidate) (ReciprocityRecord, error) {
	ctx, span := p.in.tracer().Start(ctx, "fisher.reciprocity")
	defer span.End()

	path := filepath.Join(p.opts.WorkDir, ValidatedFile)
	if err := writePool(path, validated); err != nil {
		return nil, err
	}
	hits, err := p.backend.DatasetSearch(ctx, path)
	if err != nil {
		p.in.toolFailure(ctx, "", "", err)
	}
	record := NewReciprocityRecord(hits)
	span.SetAttributes(attribute.Int("records", len(record)))
	return record, nil
}

// workFiles are the run-level files written directly into the work
// directory.
var workFiles = []string{PoolFile, ValidatedFile, OrthogroupHitsFile, DatasetHitsFile}

func (p *Pipeline) prepareWorkDir() error {
	if err := os.MkdirAll(p.opts.WorkDir, 0o755); err != nil {
		return fmt.Errorf("creating work directory: %w", err)
	}
	// Left behind by an earlier run kept with KeepTmp.
	for _, name := range workFiles {
		err := os.Remove(filepath.Join(p.opts.WorkDir, name))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("clearing stale %s: %w", name, err)
		}
	}
	return nil
}

// cleanup removes only what the run put in the work directory: one
// directory per sample and the run-level files. The work directory itself
// goes only when nothing else is left in it, so a work directory shared
// with the output directory keeps the collections.
func (p *Pipeline) cleanup(ctx context.Context, inputs []samples.Sample) {
	if p.opts.KeepTmp {
		return
	}
	log := p.in.logger(ctx)
	for _, s := range inputs {
		if err := os.RemoveAll(filepath.Join(p.opts.WorkDir, s.Name)); err != nil {
			log.Warn(ctx, "removing sample work directory", zap.String("sample", s.Name), zap.Error(err))
		}
	}
	for _, name := range workFiles {
		err := os.Remove(filepath.Join(p.opts.WorkDir, name))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn(ctx, "removing work file", zap.String("file", name), zap.Error(err))
		}
	}
	entries, err := os.ReadDir(p.opts.WorkDir)
	if err == nil && len(entries) == 0 {
		_ = os.Remove(p.opts.WorkDir)
	}
}

func writePool(path string, pool []Candidate) error {
	records := make([]fasta.Record, len(pool))
	for i, c := range pool {
		records[i] = fasta.Record{ID: c.PoolID(), Seq: c.Residues}
	}
	return fasta.WriteFile(path, records...)
}

// groupSurvivors groups surviving pool entries by (sample, gene) in pool
// order.
func groupSurvivors(pool []Candidate, res HomologyResult) []group {
	var out []group
	index := make(map[[2]string]int)
	for _, c := range pool {
		if !res.Survives(c.PoolID()) {
			continue
		}
		key := [2]string{c.Sample, c.Gene}
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, group{sample: c.Sample, gene: c.Gene})
		}
		out[i].candidates = append(out[i].candidates, c)
	}
	return out
}
