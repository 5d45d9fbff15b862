package fisher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orthofisher/internal/fasta"
	"github.com/fyrsmithlabs/orthofisher/internal/phylo"
	"github.com/fyrsmithlabs/orthofisher/internal/reference"
)

// MinResidueFraction is the share of a candidate's trimmed row that must be
// residues (neither gap nor X) for the candidate to be kept.
const MinResidueFraction = 0.30

// Evaluation is the trimmed alignment and tree built over an evaluation set.
type Evaluation struct {
	Trimmed []fasta.Record
	Tree    *phylo.Tree
}

// Evaluator aligns, trims and builds a tree over records. Leaf names and
// trimmed row identifiers must match the input identifiers.
type Evaluator interface {
	Evaluate(ctx context.Context, sample, gene string, records []fasta.Record) (Evaluation, error)
}

// OrthologSource returns the reference orthologs of a gene.
type OrthologSource interface {
	Orthologs(gene string) []fasta.Record
}

// Validator confirms the phylogenetic placement of seed-selected candidates.
type Validator struct {
	eval      Evaluator
	orthologs OrthologSource
	taxonomy  reference.TaxonomyMap
	in        Instruments
}

// NewValidator returns a Validator.
func NewValidator(eval Evaluator, orthologs OrthologSource, taxonomy reference.TaxonomyMap, in Instruments) *Validator {
	return &Validator{eval: eval, orthologs: orthologs, taxonomy: taxonomy, in: in}
}

// Validate checks candidates of one (sample, gene) pair, all on the seed
// path, against the sample's taxonomic group.
//
// Candidates whose trimmed row is too short are dropped. If any remaining
// candidate sits in a clade consistent with sampleGroup, only those are
// returned. Otherwise every length survivor is returned downgraded to
// PathSeedBlastDegraded. An evaluation failure yields no candidates.
func (v *Validator) Validate(ctx context.Context, sampleGroup string, candidates []Candidate) []Candidate {
	if len(candidates) == 0 {
		return nil
	}
	sample, gene := candidates[0].Sample, candidates[0].Gene
	ctx = scoped(ctx, sample, gene)
	ctx, span := v.in.tracer().Start(ctx, "fisher.validate")
	defer span.End()
	span.SetAttributes(
		attribute.String("sample", sample),
		attribute.String("gene", gene),
		attribute.Int("candidates", len(candidates)),
	)
	log := v.in.logger(ctx)

	refs := v.orthologs.Orthologs(gene)
	// Leaf names must equal the taxonomy keys, so headers carry no
	// description.
	records := make([]fasta.Record, 0, len(refs)+len(candidates))
	for _, r := range refs {
		records = append(records, fasta.Record{ID: r.ID, Seq: r.Seq})
	}
	for _, c := range candidates {
		records = append(records, fasta.Record{ID: c.PoolID(), Seq: c.Residues})
	}

	ev, err := v.eval.Evaluate(ctx, sample, gene, records)
	if err == nil && ev.Tree == nil {
		err = errors.New("no tree built")
	}
	if err != nil {
		err = fmt.Errorf("%w: %s/%s: %w", ErrEvaluation, sample, gene, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn(ctx, "evaluation failed", zap.Error(err))
		v.in.Diagnostics.Report(Event{Kind: KindToolFailure, Sample: sample, Gene: gene, Detail: err.Error()})
		v.in.Metrics.RecordRejected("tool", len(candidates))
		v.in.empty(ctx, sample, gene, ReasonToolFailure, "evaluation")
		return nil
	}

	long := LengthSurvivors(ev.Trimmed)
	var good, usable []Candidate
	for _, c := range candidates {
		id := c.PoolID()
		if _, ok := long[id]; !ok {
			log.Debug(ctx, "candidate too short after trimming", zap.String("pool_id", id))
			continue
		}
		usable = append(usable, c)

		leaf, ok := ev.Tree.Leaf(id)
		if !ok {
			log.Warn(ctx, "candidate missing from tree",
				zap.String("pool_id", id),
				zap.Int("leaves", len(ev.Tree.LeafNames(ev.Tree.Root()))))
			v.in.Diagnostics.Report(Event{
				Kind: KindToolFailure, Sample: sample, Gene: gene, Candidate: id,
				Detail: ErrLeafNotFound.Error(),
			})
			continue
		}
		p := ev.Tree.Climb(leaf, v.taxonomy.Group, sampleGroup)
		log.Debug(ctx, "placement",
			zap.String("pool_id", id),
			zap.Bool("consistent", p.Consistent),
			zap.Int("levels", p.Levels),
			zap.Int("tree_depth", ev.Tree.Depth()),
			zap.Strings("groups", p.Groups))
		if p.Consistent {
			good = append(good, c)
		}
	}
	v.in.Metrics.RecordRejected("length", len(candidates)-len(usable))

	switch {
	case len(good) > 0:
		span.SetAttributes(attribute.Int("good", len(good)))
		return good
	case len(usable) > 0:
		degraded := make([]Candidate, len(usable))
		for i, c := range usable {
			c.Path = PathSeedBlastDegraded
			degraded[i] = c
		}
		span.SetAttributes(attribute.Int("degraded", len(degraded)))
		log.Info(ctx, "no consistent placement, keeping degraded hits", zap.Int("count", len(degraded)))
		return degraded
	}
	v.in.empty(ctx, sample, gene, ReasonNoLengthSurvivor, "")
	return nil
}

// LengthSurvivors returns the identifiers of candidate rows, those whose
// identifier contains '@', with a residue fraction above
// MinResidueFraction.
func LengthSurvivors(trimmed []fasta.Record) map[string]struct{} {
	out := make(map[string]struct{})
	for _, r := range trimmed {
		if !strings.Contains(r.ID, "@") {
			continue
		}
		if ResidueFraction(r.Seq) > MinResidueFraction {
			out[r.ID] = struct{}{}
		}
	}
	return out
}

// ResidueFraction is the share of row that is neither '-' nor 'X'. An empty
// row has fraction 0.
func ResidueFraction(row string) float64 {
	if len(row) == 0 {
		return 0
	}
	residues := 0
	for i := 0; i < len(row); i++ {
		if c := row[i]; c != '-' && c != 'X' {
			residues++
		}
	}
	return float64(residues) / float64(len(row))
}
