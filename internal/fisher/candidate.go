package fisher

import (
	"fmt"
	"strings"
)

// Path records how a candidate was selected.
type Path int

const (
	// PathProfile candidates come straight from the profile search.
	PathProfile Path = iota
	// PathSeedBlast candidates were found by searching a seed organism's
	// ortholog against the sample and await placement confirmation.
	PathSeedBlast
	// PathSeedBlastDegraded candidates were seed-selected but failed
	// placement; kept with lower confidence.
	PathSeedBlastDegraded
)

func (p Path) String() string {
	switch p {
	case PathProfile:
		return "PROFILE"
	case PathSeedBlast:
		return "SEED_BLAST"
	case PathSeedBlastDegraded:
		return "SEED_BLAST_DEGRADED"
	}
	return fmt.Sprintf("Path(%d)", int(p))
}

// Suffix is the identifier suffix rendered for the path.
func (p Path) Suffix() string {
	switch p {
	case PathSeedBlast:
		return "SBH"
	case PathSeedBlastDegraded:
		return "BBH"
	}
	return "HMM"
}

func parseSuffix(s string) (Path, bool) {
	switch s {
	case "HMM":
		return PathProfile, true
	case "SBH":
		return PathSeedBlast, true
	case "BBH":
		return PathSeedBlastDegraded, true
	}
	return 0, false
}

// Candidate is a proposed ortholog of Gene from Sample.
type Candidate struct {
	ID       string
	Residues string
	Gene     string
	Sample   string
	Path     Path
	// Rank is the 1-based position among kept candidates in selection order.
	Rank int
	// HMMMember reports membership in the gene's profile hit set.
	HMMMember bool
}

// PoolID is the identifier used in the batched searches and evaluation
// trees: {ID}_{suffix}@{gene}.
func (c Candidate) PoolID() string {
	return c.ID + "_" + c.Path.Suffix() + "@" + c.Gene
}

// OutputID is the final identifier: {ID}_{suffix}_q{rank}{r|n}.
func (c Candidate) OutputID(rank int, reciprocal bool) string {
	mark := "n"
	if reciprocal {
		mark = "r"
	}
	return fmt.Sprintf("%s_%s_q%d%s", c.ID, c.Path.Suffix(), rank, mark)
}

// PoolKey identifies a pool entry without its residues.
type PoolKey struct {
	SeqID string
	Path  Path
	Gene  string
}

// ParsePoolID splits {seqID}_{suffix}@{gene}.
func ParsePoolID(id string) (PoolKey, error) {
	at := strings.LastIndexByte(id, '@')
	if at <= 0 || at == len(id)-1 {
		return PoolKey{}, fmt.Errorf("%w: %q has no gene", ErrMalformedPoolID, id)
	}
	head, gene := id[:at], id[at+1:]
	us := strings.LastIndexByte(head, '_')
	if us <= 0 {
		return PoolKey{}, fmt.Errorf("%w: %q has no path suffix", ErrMalformedPoolID, id)
	}
	path, ok := parseSuffix(head[us+1:])
	if !ok {
		return PoolKey{}, fmt.Errorf("%w: %q has unknown path suffix %q", ErrMalformedPoolID, id, head[us+1:])
	}
	return PoolKey{SeqID: head[:us], Path: path, Gene: gene}, nil
}

// ProfileHitSet holds profile search hits in tool order with O(1) membership.
type ProfileHitSet struct {
	order []string
	set   map[string]struct{}
}

// NewProfileHitSet builds a set from ids, keeping the first occurrence.
func NewProfileHitSet(ids []string) *ProfileHitSet {
	h := &ProfileHitSet{set: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if _, dup := h.set[id]; dup {
			continue
		}
		h.set[id] = struct{}{}
		h.order = append(h.order, id)
	}
	return h
}

// Contains reports whether id was a profile hit.
func (h *ProfileHitSet) Contains(id string) bool {
	if h == nil {
		return false
	}
	_, ok := h.set[id]
	return ok
}

// IDs returns hits in tool order.
func (h *ProfileHitSet) IDs() []string {
	if h == nil {
		return nil
	}
	return h.order
}

// Len is the number of distinct hits.
func (h *ProfileHitSet) Len() int {
	if h == nil {
		return 0
	}
	return len(h.order)
}

// Target names the (sample, gene) a query selects for.
type Target struct {
	Sample  string
	Gene    string
	Hits    *ProfileHitSet
	MaxHits int
}

// Query is either a ProfileQuery or a SeedQuery.
type Query interface {
	target() Target
}

// ProfileQuery selects from profile hits alone.
type ProfileQuery struct {
	Target
}

func (q ProfileQuery) target() Target { return q.Target }

// SeedQuery selects by searching the first available seed organism's
// ortholog against the sample, constrained to profile hits.
type SeedQuery struct {
	Target
	SeedOrganisms []string
}

func (q SeedQuery) target() Target { return q.Target }

// NewQuery returns a SeedQuery when seeds are configured and a ProfileQuery
// otherwise.
func NewQuery(t Target, seeds []string) Query {
	if len(seeds) == 0 {
		return ProfileQuery{Target: t}
	}
	return SeedQuery{Target: t, SeedOrganisms: seeds}
}
