package fisher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateIDs(t *testing.T) {
	c := Candidate{ID: "Sample_12", Gene: "ADK2", Path: PathSeedBlast}
	assert.Equal(t, "Sample_12_SBH@ADK2", c.PoolID())
	assert.Equal(t, "Sample_12_SBH_q2r", c.OutputID(2, true))

	c.Path = PathSeedBlastDegraded
	assert.Equal(t, "Sample_12_BBH@ADK2", c.PoolID())
	assert.Equal(t, "Sample_12_BBH_q1n", c.OutputID(1, false))

	c.Path = PathProfile
	assert.Equal(t, "Sample_12_HMM_q3r", c.OutputID(3, true))
}

func TestParsePoolID(t *testing.T) {
	tests := []struct {
		id      string
		want    PoolKey
		wantErr bool
	}{
		{id: "Sample_12_SBH@ADK2", want: PoolKey{SeqID: "Sample_12", Path: PathSeedBlast, Gene: "ADK2"}},
		{id: "Sample_1_HMM@RPL3", want: PoolKey{SeqID: "Sample_1", Path: PathProfile, Gene: "RPL3"}},
		{id: "a@b_BBH@eEF1", want: PoolKey{SeqID: "a@b", Path: PathSeedBlastDegraded, Gene: "eEF1"}},
		{id: "Sample_1_HMM", wantErr: true},
		{id: "Sample_1_HMM@", wantErr: true},
		{id: "Sample_1_XXX@ADK2", wantErr: true},
		{id: "HMM@ADK2", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := ParsePoolID(tt.id)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedPoolID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPoolIDRoundTrip(t *testing.T) {
	for _, p := range []Path{PathProfile, PathSeedBlast, PathSeedBlastDegraded} {
		c := Candidate{ID: "Sample_3", Gene: "ADK2", Path: p}
		key, err := ParsePoolID(c.PoolID())
		require.NoError(t, err)
		assert.Equal(t, PoolKey{SeqID: "Sample_3", Path: p, Gene: "ADK2"}, key)
	}
}

func TestProfileHitSet(t *testing.T) {
	h := NewProfileHitSet([]string{"X", "Y", "X", "Z"})
	assert.Equal(t, []string{"X", "Y", "Z"}, h.IDs())
	assert.Equal(t, 3, h.Len())
	assert.True(t, h.Contains("Y"))
	assert.False(t, h.Contains("W"))

	var empty *ProfileHitSet
	assert.Zero(t, empty.Len())
	assert.False(t, empty.Contains("X"))
	assert.Nil(t, empty.IDs())
}

func TestNewQuery(t *testing.T) {
	target := Target{Sample: "S", Gene: "G"}
	assert.IsType(t, ProfileQuery{}, NewQuery(target, nil))
	q, ok := NewQuery(target, []string{"Homosap"}).(SeedQuery)
	require.True(t, ok)
	assert.Equal(t, []string{"Homosap"}, q.SeedOrganisms)
}

func TestPathString(t *testing.T) {
	assert.Equal(t, "PROFILE", PathProfile.String())
	assert.Equal(t, "SEED_BLAST", PathSeedBlast.String())
	assert.Equal(t, "SEED_BLAST_DEGRADED", PathSeedBlastDegraded.String())
	assert.Equal(t, "Path(7)", Path(7).String())
}
