package fisher

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/orthofisher/internal/fasta"
	"github.com/fyrsmithlabs/orthofisher/internal/reference"
)

var testTaxonomy = reference.TaxonomyMap{
	"Homosap":  "Amorphea",
	"Arabthal": "Archaeplastida",
	"Tryp":     "Discoba",
	"Dicty":    "Amorphea",
	"Gilla":    "Metamonada",
}

var testOrthologs = fakeSeeds{"ADK2": {
	{ID: "Homosap", Seq: "MKVL"},
	{ID: "Tryp", Seq: "MKIL"},
	{ID: "Arabthal", Seq: "MRIL"},
}}

func seedCandidates(seqIDs ...string) []Candidate {
	out := make([]Candidate, len(seqIDs))
	for i, id := range seqIDs {
		out[i] = Candidate{ID: id, Residues: "MKVL", Gene: "ADK2", Sample: "S", Path: PathSeedBlast, Rank: i + 1, HMMMember: true}
	}
	return out
}

func TestResidueFraction(t *testing.T) {
	tests := []struct {
		row  string
		want float64
	}{
		{row: "", want: 0},
		{row: "MKVL", want: 1},
		{row: "MK--", want: 0.5},
		{row: "MKXX------", want: 0.2},
		{row: "----", want: 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ResidueFraction(tt.row), 1e-9, tt.row)
	}
}

func TestLengthSurvivors(t *testing.T) {
	trimmed := []fasta.Record{
		{ID: "Homosap", Seq: "----------"},          // reference rows are never judged
		{ID: "S_1_SBH@ADK2", Seq: "MKVLMK----"},     // 0.6
		{ID: "S_2_SBH@ADK2", Seq: "MKV-------"},     // exactly 0.3 fails
		{ID: "S_3_SBH@ADK2", Seq: "MKVLXXXX--"},     // 0.4
		{ID: "S_4_SBH@ADK2", Seq: ""},               // empty row fails
		{ID: "S_5_SBH@ADK2", Seq: "XXXXXXXXXXMKVL"}, // 4/14
	}
	got := LengthSurvivors(trimmed)
	assert.Equal(t, map[string]struct{}{"S_1_SBH@ADK2": {}, "S_3_SBH@ADK2": {}}, got)

	// Same input, same partition.
	assert.Equal(t, got, LengthSurvivors(trimmed))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		sampleGroup string
		trimmed     []fasta.Record
		newick      string
		wantIDs     []string
		wantPath    Path
	}{
		{
			// Scenario C: the root holds two groups including the sample's.
			name:        "consistent at root",
			sampleGroup: "Discoba",
			trimmed:     []fasta.Record{{ID: "S_1_SBH@ADK2", Seq: "MKVL------"}},
			newick:      "((S_1_SBH@ADK2:0.1,Homosap:0.1):0.2,Tryp:0.3);",
			wantIDs:     []string{"S_1"},
			wantPath:    PathSeedBlast,
		},
		{
			name:        "only consistent candidates kept",
			sampleGroup: "Discoba",
			trimmed: []fasta.Record{
				{ID: "S_1_SBH@ADK2", Seq: "MKVL------"},
				{ID: "S_2_SBH@ADK2", Seq: "MKVL------"},
			},
			newick:   "(((S_1_SBH@ADK2,Tryp),Homosap),((S_2_SBH@ADK2,Dicty),(Arabthal,Gilla)));",
			wantIDs:  []string{"S_1"},
			wantPath: PathSeedBlast,
		},
		{
			name:        "more than two groups containing the sample group passes",
			sampleGroup: "Archaeplastida",
			trimmed:     []fasta.Record{{ID: "S_1_SBH@ADK2", Seq: "MKVL"}},
			newick:      "((S_1_SBH@ADK2,Homosap),(Tryp,Arabthal));",
			wantIDs:     []string{"S_1"},
			wantPath:    PathSeedBlast,
		},
		{
			// Scenario D: both pass the length gate, neither placement.
			name:        "degraded when no placement is consistent",
			sampleGroup: "Metamonada*",
			trimmed: []fasta.Record{
				{ID: "S_1_SBH@ADK2", Seq: "MKVL"},
				{ID: "S_2_SBH@ADK2", Seq: "MKV-"},
			},
			newick:   "((S_1_SBH@ADK2,Homosap),(S_2_SBH@ADK2,Tryp));",
			wantIDs:  []string{"S_1", "S_2"},
			wantPath: PathSeedBlastDegraded,
		},
		{
			name:        "short rows never degrade",
			sampleGroup: "Metamonada*",
			trimmed: []fasta.Record{
				{ID: "S_1_SBH@ADK2", Seq: "M---"},
				{ID: "S_2_SBH@ADK2", Seq: "MKV-"},
			},
			newick:   "((S_1_SBH@ADK2,Homosap),(S_2_SBH@ADK2,Tryp));",
			wantIDs:  []string{"S_2"},
			wantPath: PathSeedBlastDegraded,
		},
		{
			name:        "short rows dropped even with good placement",
			sampleGroup: "Discoba",
			trimmed:     []fasta.Record{{ID: "S_1_SBH@ADK2", Seq: "M---"}},
			newick:      "(S_1_SBH@ADK2,Tryp);",
			wantIDs:     nil,
		},
		{
			name:        "candidate missing from tree is degraded only",
			sampleGroup: "Discoba",
			trimmed:     []fasta.Record{{ID: "S_1_SBH@ADK2", Seq: "MKVL"}},
			newick:      "(Homosap,Tryp);",
			wantIDs:     []string{"S_1"},
			wantPath:    PathSeedBlastDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newTestInstruments(t)
			eval := &fakeEvaluator{results: map[string]Evaluation{
				"ADK2": {Trimmed: tt.trimmed, Tree: mustTree(t, tt.newick)},
			}}
			v := NewValidator(eval, testOrthologs, testTaxonomy, in.Instruments)

			cands := seedCandidates("S_1", "S_2")[:len(tt.trimmed)]
			got := v.Validate(context.Background(), tt.sampleGroup, cands)

			assert.Equal(t, tt.wantIDs, idsOrNil(got))
			for _, c := range got {
				assert.Equal(t, tt.wantPath, c.Path)
			}
			in.tel.AssertSpanExists(t, "fisher.validate")
		})
	}
}

func idsOrNil(cands []Candidate) []string {
	if len(cands) == 0 {
		return nil
	}
	return ids(cands)
}

func TestValidate_EvaluationSet(t *testing.T) {
	eval := &fakeEvaluator{results: map[string]Evaluation{
		"ADK2": {Trimmed: []fasta.Record{{ID: "S_1_SBH@ADK2", Seq: "MKVL"}}, Tree: mustTree(t, "(S_1_SBH@ADK2,Tryp);")},
	}}
	orthologs := fakeSeeds{"ADK2": {
		{ID: "Homosap", Desc: "adenylate kinase 2", Seq: "MKVL"},
		{ID: "Tryp", Seq: "MKIL"},
		{ID: "Arabthal", Desc: "chloroplastic", Seq: "MRIL"},
	}}
	v := NewValidator(eval, orthologs, testTaxonomy, Instruments{})
	v.Validate(context.Background(), "Discoba", seedCandidates("S_1"))

	got := eval.inputs["S/ADK2"]
	require.Len(t, got, 4)
	assert.Equal(t, fasta.Record{ID: "Homosap", Seq: "MKVL"}, got[0])
	assert.Equal(t, fasta.Record{ID: "Arabthal", Seq: "MRIL"}, got[2])
	assert.Equal(t, fasta.Record{ID: "S_1_SBH@ADK2", Seq: "MKVL"}, got[3])
}

func TestValidate_EvaluationFailure(t *testing.T) {
	in := newTestInstruments(t)
	eval := &fakeEvaluator{err: errors.New("mafft: exit status 1")}
	v := NewValidator(eval, testOrthologs, testTaxonomy, in.Instruments)

	got := v.Validate(context.Background(), "Discoba", seedCandidates("S_1", "S_2"))
	assert.Empty(t, got)

	in.log.AssertLogged(t, zapcore.WarnLevel, "evaluation failed")
	assert.Equal(t, 1, in.Diagnostics.Count(KindToolFailure))
	assert.Equal(t, 2.0, testutil.ToFloat64(in.Metrics.CandidatesRejected.WithLabelValues("tool")))
	assert.Equal(t, 1.0, testutil.ToFloat64(in.Metrics.GenesEmpty.WithLabelValues(ReasonToolFailure)))
	assert.Contains(t, in.diags.String(), "mafft: exit status 1")
}

func TestValidate_NoCandidates(t *testing.T) {
	v := NewValidator(&fakeEvaluator{}, testOrthologs, testTaxonomy, Instruments{})
	assert.Nil(t, v.Validate(context.Background(), "Discoba", nil))
}
