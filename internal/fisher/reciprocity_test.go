package fisher

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/orthofisher/internal/tools"
)

func TestNewReciprocityRecord(t *testing.T) {
	rec := NewReciprocityRecord([]tools.Hit{
		{Query: "S_1_SBH@ADK2", Target: "ADK2@Homosap"},
		{Query: "S_1_SBH@ADK2", Target: "RPL3@Homosap"},
		// Same sequence under another path: first occurrence per sequence wins.
		{Query: "S_1_HMM@RPL3", Target: "RPL3@Tryp"},
		{Query: "S_2_HMM@RPL3", Target: "ADK2@Tryp"},
		{Query: "not-a-pool-id", Target: "ADK2@Tryp"},
	})
	assert.Equal(t, ReciprocityRecord{"S_1": "ADK2", "S_2": "ADK2"}, rec)
}

func TestReciprocityChecker_Tag(t *testing.T) {
	in := newTestInstruments(t)
	checker := NewReciprocityChecker(ReciprocityRecord{"S_1": "ADK2", "S_3": "RPL3"}, in.Instruments)

	cands := seedCandidates("S_1", "S_2", "S_3")
	got := checker.Tag(context.Background(), cands)

	require.Len(t, got, 2)
	assert.Equal(t, "S_1", got[0].ID)
	assert.True(t, got[0].Reciprocal)
	assert.Equal(t, "S_3", got[1].ID)
	assert.False(t, got[1].Reciprocal)
	assert.Equal(t, "RPL3", got[1].BestHit)

	assert.Equal(t, 1, in.Diagnostics.Count(KindMissingReciprocity))
	assert.Contains(t, in.diags.String(), `"candidate":"S_2_SBH@ADK2"`)
	assert.Equal(t, 1.0, testutil.ToFloat64(in.Metrics.CandidatesRejected.WithLabelValues("reciprocity")))
	in.log.AssertField(t, "no reciprocity record, skipping candidate", "pool_id", "S_2_SBH@ADK2")
}
