package fisher

import "errors"

var (
	// ErrUnknownSample is returned when a query names a sample with no
	// loaded proteome.
	ErrUnknownSample = errors.New("unknown sample")
	// ErrMalformedPoolID is returned for identifiers that do not follow
	// {seqID}_{suffix}@{gene}.
	ErrMalformedPoolID = errors.New("malformed pool identifier")
	// ErrSeedSearch wraps a failed seed search.
	ErrSeedSearch = errors.New("seed search failed")
	// ErrEvaluation wraps a failed align/trim/tree evaluation.
	ErrEvaluation = errors.New("evaluation failed")
	// ErrLeafNotFound is returned when a candidate is missing from its
	// evaluation tree.
	ErrLeafNotFound = errors.New("candidate leaf not found in tree")
)

// Reasons a (sample, gene) pair produces no candidates. Used as log fields,
// metric labels and diagnostic kinds.
const (
	ReasonNoProfileHits    = "no_profile_hits"
	ReasonNoSeedHits       = "no_seed_hits"
	ReasonNoneSelected     = "none_selected"
	ReasonNoLengthSurvivor = "no_length_survivors"
	ReasonToolFailure      = "tool_failure"
)
