package reference

import (
	"os"
	"path/filepath"
	"testing"
)

// Test dataset contents. Three eukaryotic groups, two bacteria and two genes.
var testFiles = map[string]string{
	MetadataFile: "Unique ID\tLong Name\tHigher Taxonomy\tLower Taxonomy\tFull Name\n" +
		"Homosap\tHomo sapiens\tAmorphea\tMetazoa\tHomo sapiens\n" +
		"Arabthal\tArabidopsis thaliana\tArchaeplastida\tChloroplastida\tArabidopsis\n" +
		"Tryp\tTrypanosoma brucei\tDiscoba\tEuglenozoa\tTrypanosoma\n",
	BacterialFile:        "ecol\nbsub\n",
	GeneOGFile:           "ADK2\tOG5_128398,OG5_126573\nRPL3\tOG5_126569\n",
	"profiles/ADK2.hmm":  "HMMER3/f\n",
	"profiles/RPL3.hmm":  "HMMER3/f\n",
	"profiles/README":    "not a profile\n",
	"orthologs/ADK2.fas": ">Homosap\nMK-VL\n>Tryp\nMKIL-\n",
	"orthologs/RPL3.fas": ">Arabthal\nMSHRK\n",
}

// WriteTestDataset writes a small dataset folder under a temporary directory
// and returns its path.
func WriteTestDataset(tb testing.TB) string {
	tb.Helper()
	root := tb.TempDir()
	for rel, content := range testFiles {
		WriteTestFile(tb, root, rel, content)
	}
	return root
}

// NewTestDataset loads the dataset written by WriteTestDataset.
func NewTestDataset(tb testing.TB) *Dataset {
	tb.Helper()
	d, err := Load(WriteTestDataset(tb))
	if err != nil {
		tb.Fatalf("loading test dataset: %v", err)
	}
	return d
}

// WriteTestFile writes content to root/rel, creating parent directories.
func WriteTestFile(tb testing.TB, root, rel, content string) {
	tb.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		tb.Fatal(err)
	}
}
