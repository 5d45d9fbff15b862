package samples

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/orthofisher/internal/reference"
)

var taxonomy = reference.TaxonomyMap{
	"Homosap":  "Amorphea",
	"Arabthal": "Archaeplastida",
	"Tryp":     "Discoba",
}

func TestParse(t *testing.T) {
	input := "DIR\tFILE_NAME\tUNIQUE_ID\tHIGHER_TAXONOMY\tLOWER_TAXONOMY\tBLAST_SEED\n" +
		"/data\tnewA.fasta\tNewA\tAmorphea\tNew organism A\tHomosap,Tryp\n" +
		"\n" +
		"/data\tnewB.fasta\tNewB\t*Novel\tNew organism B\tnone\r\n"

	got, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, Sample{
		Line:          2,
		Dir:           "/data",
		FileName:      "newA.fasta",
		Name:          "NewA",
		Group:         "Amorphea",
		LongName:      "New organism A",
		SeedOrganisms: []string{"Homosap", "Tryp"},
	}, got[0])
	assert.Equal(t, filepath.Join("/data", "newA.fasta"), got[0].Path())
	assert.True(t, got[0].HasSeeds())

	assert.Equal(t, 4, got[1].Line)
	assert.Equal(t, "*Novel", got[1].Group)
	assert.False(t, got[1].HasSeeds())
}

func TestParse_ShortRows(t *testing.T) {
	input := "/data\tnewA.fasta\tNewA\n/data\tnewB.fasta\tNewB\tAmorphea\tB\tnone\n/data\tc.fasta\n"

	_, err := Parse(strings.NewReader(input))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Problems, 2)
	assert.Equal(t, 1, verr.Problems[0].Line)
	assert.Equal(t, 3, verr.Problems[1].Line)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.fasta"), []byte(">x\nMK\n"), 0o644))

	ok := Sample{Line: 2, Dir: dir, FileName: "a.fasta", Name: "NewA", Group: "Amorphea", SeedOrganisms: []string{"Homosap"}}

	tests := []struct {
		name    string
		samples []Sample
		wantErr []string
	}{
		{
			name:    "valid",
			samples: []Sample{ok},
		},
		{
			name: "new group marker skips group check",
			samples: []Sample{
				{Line: 2, Dir: dir, FileName: "a.fasta", Name: "NewA", Group: "*Novel"},
			},
		},
		{
			name: "missing file",
			samples: []Sample{
				{Line: 3, Dir: dir, FileName: "missing.fasta", Name: "NewA", Group: "Amorphea"},
			},
			wantErr: []string{"line 3: file " + filepath.Join(dir, "missing.fasta") + " doesn't exist"},
		},
		{
			name: "name already in reference",
			samples: []Sample{
				{Line: 2, Dir: dir, FileName: "a.fasta", Name: "Tryp", Group: "Discoba"},
			},
			wantErr: []string{"line 2: Tryp already in metadata"},
		},
		{
			name: "unknown seed and group reported together",
			samples: []Sample{
				{Line: 5, Dir: dir, FileName: "a.fasta", Name: "NewA", Group: "Nowhere", SeedOrganisms: []string{"Ghost"}},
			},
			wantErr: []string{"line 5: Ghost not in metadata", "line 5: Nowhere not in metadata"},
		},
		{
			name: "duplicate short name",
			samples: []Sample{
				ok,
				{Line: 3, Dir: dir, FileName: "a.fasta", Name: "NewA", Group: "Amorphea"},
			},
			wantErr: []string{"line 3: NewA already used on line 2"},
		},
		{
			name: "reserved character in name",
			samples: []Sample{
				{Line: 2, Dir: dir, FileName: "a.fasta", Name: "New@A", Group: "Amorphea"},
			},
			wantErr: []string{"line 2: short name \"New@A\" must not contain"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.samples, taxonomy)
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Len(t, verr.Problems, len(tt.wantErr))
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestAppendRows(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "metadata.tsv")
	src := filepath.Join(dir, "add.tsv")
	require.NoError(t, os.WriteFile(dst, []byte("DIR\tFILE_NAME\tx\ty\tz\tw\n/d\ta.fasta\tA\tG\tLA\tnone"), 0o644))
	require.NoError(t, os.WriteFile(src, []byte("DIR\tFILE_NAME\tx\ty\tz\tw\n/d\tb.fasta\tB\tG\tLB\tnone\n"), 0o644))

	require.NoError(t, AppendRows(dst, src))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "DIR\tFILE_NAME\tx\ty\tz\tw\n/d\ta.fasta\tA\tG\tLA\tnone\n/d\tb.fasta\tB\tG\tLB\tnone\n", string(data))

	got, err := ReadFile(dst)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
