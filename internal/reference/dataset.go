// Package reference loads the curated reference dataset that candidates are
// judged against. Everything here is built once before any search runs and is
// read-only afterwards.
package reference

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/orthofisher/internal/fasta"
)

// Layout of a dataset folder.
const (
	MetadataFile    = "metadata.tsv"
	ProfilesDir     = "profiles"
	OrthologsDir    = "orthologs"
	BacterialFile   = "orthomcl/bacterial"
	GeneOGFile      = "orthomcl/gene_og"
	OrthogroupDB    = "orthomcl/orthomcl.diamonddb.dmnd"
	DatasetDB       = "datasetdb/datasetdb.dmnd"
	profileSuffix   = ".hmm"
	orthologSuffix  = ".fas"
	metadataHeader  = "Full Name"
	metadataIDTitle = "Unique ID"
)

// TaxonomyMap maps organism unique IDs to their taxonomic group.
type TaxonomyMap map[string]string

// Group returns the taxonomic group of org.
func (m TaxonomyMap) Group(org string) (string, bool) {
	g, ok := m[org]
	return g, ok
}

// Groups returns the set of all known groups.
func (m TaxonomyMap) Groups() map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for _, g := range m {
		out[g] = struct{}{}
	}
	return out
}

// OrthogroupExpectation maps a gene to the orthogroup labels its members are
// allowed to hit.
type OrthogroupExpectation map[string]map[string]struct{}

// Allows reports whether og is an expected orthogroup for gene.
func (e OrthogroupExpectation) Allows(gene, og string) bool {
	_, ok := e[gene][og]
	return ok
}

// Dataset is the loaded reference dataset.
type Dataset struct {
	Folder      string
	Genes       []string
	Taxonomy    TaxonomyMap
	Orthogroups OrthogroupExpectation
	Bacterial   map[string]struct{}

	orthologs map[string][]fasta.Record
}

// Load reads metadata, orthogroup tables, the gene list and every gene's
// reference orthologs from folder.
func Load(folder string) (*Dataset, error) {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("resolving dataset folder: %w", err)
	}
	d := &Dataset{Folder: abs}

	if d.Taxonomy, err = loadTaxonomy(d.path(MetadataFile)); err != nil {
		return nil, err
	}
	if d.Bacterial, err = loadBacterial(d.path(BacterialFile)); err != nil {
		return nil, err
	}
	if d.Orthogroups, err = loadGeneOG(d.path(GeneOGFile)); err != nil {
		return nil, err
	}
	if d.Genes, err = listGenes(d.path(ProfilesDir)); err != nil {
		return nil, err
	}

	d.orthologs = make(map[string][]fasta.Record, len(d.Genes))
	for _, gene := range d.Genes {
		records, err := fasta.ReadFile(d.OrthologPath(gene))
		if err != nil {
			return nil, fmt.Errorf("loading orthologs for %s: %w", gene, err)
		}
		d.orthologs[gene] = records
	}
	return d, nil
}

func (d *Dataset) path(rel string) string {
	return filepath.Join(d.Folder, filepath.FromSlash(rel))
}

// ProfilePath is the profile HMM for gene.
func (d *Dataset) ProfilePath(gene string) string {
	return filepath.Join(d.Folder, ProfilesDir, gene+profileSuffix)
}

// OrthologPath is the reference ortholog collection for gene.
func (d *Dataset) OrthologPath(gene string) string {
	return filepath.Join(d.Folder, OrthologsDir, gene+orthologSuffix)
}

// OrthogroupDBPath is the homology database labelled with orthogroups.
func (d *Dataset) OrthogroupDBPath() string { return d.path(OrthogroupDB) }

// DatasetDBPath is the per-gene dataset homology database.
func (d *Dataset) DatasetDBPath() string { return d.path(DatasetDB) }

// Orthologs returns the reference orthologs of gene. The slice is shared and
// must not be modified.
func (d *Dataset) Orthologs(gene string) []fasta.Record {
	return d.orthologs[gene]
}

// IsBacterial reports whether org is a bacterial reference organism.
func (d *Dataset) IsBacterial(org string) bool {
	_, ok := d.Bacterial[org]
	return ok
}

// SeedSequence returns the reference sequence of the first organism in
// organisms that has one for gene.
func (d *Dataset) SeedSequence(gene string, organisms []string) (fasta.Record, bool) {
	records := d.orthologs[gene]
	for _, org := range organisms {
		for _, r := range records {
			if r.ID == org {
				return r, true
			}
		}
	}
	return fasta.Record{}, false
}

func loadTaxonomy(path string) (TaxonomyMap, error) {
	m := make(TaxonomyMap)
	err := eachLine(path, func(n int, line string) error {
		fields := strings.Split(line, "\t")
		if strings.Contains(line, metadataHeader) || strings.TrimSpace(fields[0]) == metadataIDTitle {
			return nil
		}
		if len(fields) < 3 {
			return fmt.Errorf("line %d: expected at least 3 columns, got %d", n, len(fields))
		}
		m[strings.TrimSpace(fields[0])] = strings.TrimSpace(fields[2])
		return nil
	})
	return m, err
}

func loadBacterial(path string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	err := eachLine(path, func(_ int, line string) error {
		set[strings.TrimSpace(line)] = struct{}{}
		return nil
	})
	return set, err
}

func loadGeneOG(path string) (OrthogroupExpectation, error) {
	e := make(OrthogroupExpectation)
	err := eachLine(path, func(n int, line string) error {
		gene, ogs, ok := strings.Cut(line, "\t")
		if !ok {
			return fmt.Errorf("line %d: expected gene<TAB>orthogroups", n)
		}
		set := make(map[string]struct{})
		for _, og := range strings.Split(ogs, ",") {
			if og = strings.TrimSpace(og); og != "" {
				set[og] = struct{}{}
			}
		}
		e[strings.TrimSpace(gene)] = set
		return nil
	})
	return e, err
}

func listGenes(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	var genes []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), profileSuffix) {
			continue
		}
		genes = append(genes, strings.TrimSuffix(e.Name(), profileSuffix))
	}
	sort.Strings(genes)
	return genes, nil
}

// eachLine calls fn for every non-blank line with its 1-based number.
func eachLine(path string, fn func(n int, line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := fn(n, line); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
