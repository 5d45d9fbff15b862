// Package fisher finds ortholog candidates for query organisms against a
// reference dataset.
//
// A run moves candidates through fixed stages:
//
//	select       profile hits, optionally steered by a seed organism's sequence
//	homology     one pooled search against the orthogroup database
//	validate     tree placement of seed-selected candidates
//	reciprocity  one pooled search against the per-gene dataset database
//	assemble     append to {output}/{gene}.fas
//
// Identifiers carry their selection path through the pooled searches as
// {seqID}_{HMM|SBH|BBH}@{gene} and are written out as
// {seqID}_{HMM|SBH|BBH}_q{rank}{r|n}.
//
// Failed external tools, missing reciprocity records and similar absorbed
// outcomes never fail a run; they are logged and appended to the
// diagnostics file.
package fisher
