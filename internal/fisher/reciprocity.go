package fisher

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orthofisher/internal/tools"
)

// ReciprocityRecord maps a sequence id to the gene label of its best hit in
// the per-gene dataset database.
type ReciprocityRecord map[string]string

// NewReciprocityRecord builds a record from a search of pool identifiers
// against the dataset database. Query ids are reduced to their sequence id
// and the first hit per sequence id wins. The gene label is the target title
// up to its first '@'.
func NewReciprocityRecord(hits []tools.Hit) ReciprocityRecord {
	rec := make(ReciprocityRecord)
	for _, h := range hits {
		key, err := ParsePoolID(h.Query)
		if err != nil {
			continue
		}
		if _, seen := rec[key.SeqID]; seen {
			continue
		}
		label, _, _ := strings.Cut(h.Target, "@")
		rec[key.SeqID] = strings.TrimSpace(label)
	}
	return rec
}

// TaggedCandidate is a candidate with its reciprocity verdict.
type TaggedCandidate struct {
	Candidate
	Reciprocal bool
	// BestHit is the gene label of the candidate's best dataset hit.
	BestHit string
}

// ReciprocityChecker tags candidates as reciprocal or not.
type ReciprocityChecker struct {
	record ReciprocityRecord
	in     Instruments
}

// NewReciprocityChecker returns a checker over record.
func NewReciprocityChecker(record ReciprocityRecord, in Instruments) *ReciprocityChecker {
	return &ReciprocityChecker{record: record, in: in}
}

// Tag returns candidates in input order with their verdict. A candidate is
// reciprocal iff its best dataset hit is its own gene. Candidates with no
// record are left out and reported as diagnostics.
func (r *ReciprocityChecker) Tag(ctx context.Context, candidates []Candidate) []TaggedCandidate {
	out := make([]TaggedCandidate, 0, len(candidates))
	dropped := 0
	for _, c := range candidates {
		best, ok := r.record[c.ID]
		if !ok {
			dropped++
			cctx := scoped(ctx, c.Sample, c.Gene)
			r.in.logger(cctx).Info(cctx, "no reciprocity record, skipping candidate",
				zap.String("pool_id", c.PoolID()))
			r.in.Diagnostics.Report(Event{
				Kind:      KindMissingReciprocity,
				Sample:    c.Sample,
				Gene:      c.Gene,
				Candidate: c.PoolID(),
			})
			continue
		}
		out = append(out, TaggedCandidate{Candidate: c, Reciprocal: best == c.Gene, BestHit: best})
	}
	r.in.Metrics.RecordRejected("reciprocity", dropped)
	return out
}
