package fisher

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orthofisher/internal/reference"
	"github.com/fyrsmithlabs/orthofisher/internal/tools"
)

// Rejection reasons reported by the homology filter.
const (
	RejectNoHit          = "no_hit"
	RejectBacterial      = "bacterial"
	RejectOrthogroup     = "orthogroup"
	RejectMalformedTitle = "malformed_title"
)

// Rejection explains why a pooled candidate did not survive.
type Rejection struct {
	PoolID string
	Reason string
	// Organism and Orthogroup are parsed from the best hit, when there was one.
	Organism   string
	Orthogroup string
}

// HomologyResult partitions a candidate pool.
type HomologyResult struct {
	Survivors  map[string]struct{}
	Rejections []Rejection
}

// Survives reports whether poolID passed the filter.
func (r HomologyResult) Survives(poolID string) bool {
	_, ok := r.Survivors[poolID]
	return ok
}

// HomologyFilter checks each pooled candidate's best orthogroup-database hit.
type HomologyFilter struct {
	dataset *reference.Dataset
	in      Instruments
}

// NewHomologyFilter returns a filter rejecting bacterial best hits and best
// hits outside the gene's expected orthogroups in dataset.
func NewHomologyFilter(dataset *reference.Dataset, in Instruments) *HomologyFilter {
	return &HomologyFilter{dataset: dataset, in: in}
}

// Filter partitions pool using hits, a search of every pool identifier
// against the orthogroup database. Only the first hit per query counts.
// Target titles are '|' separated with the organism in field 0 and the
// orthogroup in field 2.
func (f *HomologyFilter) Filter(ctx context.Context, pool []Candidate, hits []tools.Hit) HomologyResult {
	_, span := f.in.tracer().Start(ctx, "fisher.homology")
	defer span.End()

	best := make(map[string]string, len(hits))
	for _, h := range tools.FirstPerQuery(hits) {
		best[h.Query] = h.Target
	}

	res := HomologyResult{Survivors: make(map[string]struct{}, len(pool))}
	for _, c := range pool {
		id := c.PoolID()
		title, ok := best[id]
		if !ok {
			res.Rejections = append(res.Rejections, Rejection{PoolID: id, Reason: RejectNoHit})
			continue
		}
		fields := strings.Split(title, "|")
		if len(fields) < 3 {
			res.Rejections = append(res.Rejections, Rejection{PoolID: id, Reason: RejectMalformedTitle})
			f.in.Diagnostics.Report(Event{
				Kind: KindMalformedHit, Sample: c.Sample, Gene: c.Gene, Candidate: id, Detail: title,
			})
			continue
		}
		org, og := fields[0], strings.TrimSpace(fields[2])
		rej := Rejection{PoolID: id, Organism: org, Orthogroup: og}
		switch {
		case f.dataset.IsBacterial(org):
			rej.Reason = RejectBacterial
		case !f.dataset.Orthogroups.Allows(c.Gene, og):
			rej.Reason = RejectOrthogroup
		default:
			res.Survivors[id] = struct{}{}
			continue
		}
		res.Rejections = append(res.Rejections, rej)
	}

	f.in.Metrics.RecordRejected("homology", len(res.Rejections))
	log := f.in.logger(ctx)
	for _, r := range res.Rejections {
		log.Debug(ctx, "candidate rejected by homology filter",
			zap.String("pool_id", r.PoolID),
			zap.String("reason", r.Reason),
			zap.String("organism", r.Organism),
			zap.String("orthogroup", r.Orthogroup))
	}
	log.Info(ctx, "homology filter done",
		zap.Int("pool", len(pool)),
		zap.Int("survivors", len(res.Survivors)),
		zap.Int("rejected", len(res.Rejections)))
	return res
}
