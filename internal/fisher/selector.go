package fisher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orthofisher/internal/fasta"
	"github.com/fyrsmithlabs/orthofisher/internal/seqstore"
)

// SeedSource finds the reference sequence of the first listed organism that
// has one for gene.
type SeedSource interface {
	SeedSequence(gene string, organisms []string) (fasta.Record, bool)
}

// SeedSearcher searches a single seed sequence against a sample's proteome
// and returns target identifiers in tool order.
type SeedSearcher interface {
	SearchSeed(ctx context.Context, sample, gene string, seed fasta.Record) ([]string, error)
}

// Proteomes maps sample name to its loaded proteome.
type Proteomes map[string]*seqstore.Store

// Selector turns profile hits, optionally steered by a seed search, into a
// bounded ordered list of candidates.
type Selector struct {
	seeds     SeedSource
	searcher  SeedSearcher
	proteomes Proteomes
	in        Instruments
}

// NewSelector returns a Selector.
func NewSelector(seeds SeedSource, searcher SeedSearcher, proteomes Proteomes, in Instruments) *Selector {
	return &Selector{seeds: seeds, searcher: searcher, proteomes: proteomes, in: in}
}

// Select returns candidates in selection order with ranks 1..k.
//
// Every visited hit counts toward MaxHits whether or not it is kept. Only
// members of the profile hit set are kept. A seed query whose organisms have
// no reference sequence for the gene behaves exactly like a profile query.
// An empty result is not an error; a failed seed search is.
func (s *Selector) Select(ctx context.Context, q Query) ([]Candidate, error) {
	t := q.target()
	ctx = scoped(ctx, t.Sample, t.Gene)
	ctx, span := s.in.tracer().Start(ctx, "fisher.select")
	defer span.End()
	span.SetAttributes(
		attribute.String("sample", t.Sample),
		attribute.String("gene", t.Gene),
		attribute.Int("profile_hits", t.Hits.Len()),
	)

	store, ok := s.proteomes[t.Sample]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownSample, t.Sample)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if t.Hits.Len() == 0 {
		s.in.empty(ctx, t.Sample, t.Gene, ReasonNoProfileHits, "")
		return nil, nil
	}

	ids, path := t.Hits.IDs(), PathProfile
	switch q := q.(type) {
	case ProfileQuery:
	case SeedQuery:
		seed, found := s.seeds.SeedSequence(t.Gene, q.SeedOrganisms)
		if !found {
			s.in.logger(ctx).Debug(ctx, "no seed sequence, using profile hits",
				zap.Strings("seed_organisms", q.SeedOrganisms))
			break
		}
		seed.Seq = fasta.StripGaps(seed.Seq)
		span.SetAttributes(attribute.String("seed", seed.ID))

		hits, err := s.searcher.SearchSeed(ctx, t.Sample, t.Gene, seed)
		if err != nil {
			err = fmt.Errorf("%w: %s with seed %s: %w", ErrSeedSearch, t.Gene, seed.ID, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		ids, path = dedupe(hits), PathSeedBlast
		if len(ids) == 0 {
			s.in.empty(ctx, t.Sample, t.Gene, ReasonNoSeedHits, seed.ID)
			return nil, nil
		}
	default:
		return nil, fmt.Errorf("unsupported query type %T", q)
	}

	candidates := s.take(ctx, t, store, ids, path)
	span.SetAttributes(attribute.Int("candidates", len(candidates)), attribute.String("path", path.String()))
	if len(candidates) == 0 {
		s.in.empty(ctx, t.Sample, t.Gene, ReasonNoneSelected, "")
	}
	return candidates, nil
}

// take walks ids until MaxHits of them have been counted.
func (s *Selector) take(ctx context.Context, t Target, store *seqstore.Store, ids []string, path Path) []Candidate {
	var out []Candidate
	counted := 0
	for _, id := range ids {
		if counted >= t.MaxHits {
			break
		}
		counted++
		if !t.Hits.Contains(id) {
			continue
		}
		residues, ok := store.Get(id)
		if !ok {
			s.in.logger(ctx).Warn(ctx, "hit not in proteome", zap.String("seq_id", id))
			s.in.Diagnostics.Report(Event{
				Kind:      KindMissingSequence,
				Sample:    t.Sample,
				Gene:      t.Gene,
				Candidate: id,
			})
			continue
		}
		out = append(out, Candidate{
			ID:        id,
			Residues:  residues,
			Gene:      t.Gene,
			Sample:    t.Sample,
			Path:      path,
			Rank:      len(out) + 1,
			HMMMember: true,
		})
		s.in.Metrics.RecordSelected(path)
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
