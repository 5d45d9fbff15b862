package fisher

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/orthofisher/internal/fasta"
	"github.com/fyrsmithlabs/orthofisher/internal/logging"
	"github.com/fyrsmithlabs/orthofisher/internal/phylo"
	"github.com/fyrsmithlabs/orthofisher/internal/samples"
	"github.com/fyrsmithlabs/orthofisher/internal/seqstore"
	"github.com/fyrsmithlabs/orthofisher/internal/telemetry"
	"github.com/fyrsmithlabs/orthofisher/internal/tools"
)

// testInstruments wires a test logger, fresh metrics, in-memory spans and a
// diagnostics sink.
type testInstruments struct {
	Instruments
	log   *logging.TestLogger
	tel   *telemetry.TestTelemetry
	reg   *prometheus.Registry
	diags *syncBuffer
}

func newTestInstruments(t *testing.T) *testInstruments {
	t.Helper()
	reg := prometheus.NewRegistry()
	log := logging.NewTestLogger()
	tel := telemetry.NewTestTelemetry()
	buf := &syncBuffer{}
	return &testInstruments{
		Instruments: Instruments{
			Logger:      log.Logger,
			Metrics:     NewMetrics(reg),
			Diagnostics: NewDiagnostics(buf, "run-test"),
			Tracer:      tel.Tracer("fisher-test"),
		},
		log:   log,
		tel:   tel,
		reg:   reg,
		diags: buf,
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func newStore(t *testing.T, ids ...string) *seqstore.Store {
	t.Helper()
	records := make([]fasta.Record, len(ids))
	for i, id := range ids {
		records[i] = fasta.Record{ID: id, Seq: "MKV" + id}
	}
	s, err := seqstore.New(records)
	require.NoError(t, err)
	return s
}

type fakeSeeds map[string][]fasta.Record

func (f fakeSeeds) SeedSequence(gene string, organisms []string) (fasta.Record, bool) {
	for _, org := range organisms {
		for _, r := range f[gene] {
			if r.ID == org {
				return r, true
			}
		}
	}
	return fasta.Record{}, false
}

func (f fakeSeeds) Orthologs(gene string) []fasta.Record { return f[gene] }

type seedCall struct {
	sample, gene string
	seed         fasta.Record
}

type fakeSearcher struct {
	mu    sync.Mutex
	hits  map[string][]string
	err   error
	calls []seedCall
}

func (f *fakeSearcher) SearchSeed(_ context.Context, sample, gene string, seed fasta.Record) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, seedCall{sample: sample, gene: gene, seed: seed})
	if f.err != nil {
		return nil, f.err
	}
	return f.hits[gene], nil
}

type fakeEvaluator struct {
	mu      sync.Mutex
	results map[string]Evaluation
	err     error
	inputs  map[string][]fasta.Record
}

func (f *fakeEvaluator) Evaluate(_ context.Context, sample, gene string, records []fasta.Record) (Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inputs == nil {
		f.inputs = make(map[string][]fasta.Record)
	}
	f.inputs[sample+"/"+gene] = records
	if f.err != nil {
		return Evaluation{}, f.err
	}
	return f.results[gene], nil
}

func mustTree(t *testing.T, newick string) *phylo.Tree {
	t.Helper()
	tree, err := phylo.Parse(newick)
	require.NoError(t, err)
	return tree
}

// fakeBackend serves canned search results keyed by sample and gene.
type fakeBackend struct {
	fakeSearcher
	fakeEvaluator

	proteomes  map[string][]string
	profile    map[string][]string // sample/gene -> hits
	profileErr map[string]error
	orthogroup func(pool []fasta.Record) []tools.Hit
	dataset    func(pool []fasta.Record) []tools.Hit
	datasetErr error
	prepareErr map[string]error

	mu       sync.Mutex
	prepared []string
	seedDBs  map[string]bool
	pools    map[string][]fasta.Record
}

func (f *fakeBackend) PrepareSample(_ context.Context, s samples.Sample, seedDB bool) (*seqstore.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.prepareErr[s.Name]; err != nil {
		return nil, err
	}
	f.prepared = append(f.prepared, s.Name)
	if f.seedDBs == nil {
		f.seedDBs = make(map[string]bool)
	}
	f.seedDBs[s.Name] = seedDB
	records := make([]fasta.Record, 0, len(f.proteomes[s.Name]))
	for _, id := range f.proteomes[s.Name] {
		records = append(records, fasta.Record{ID: id, Seq: "MKV" + id})
	}
	return seqstore.New(records)
}

func (f *fakeBackend) ProfileSearch(_ context.Context, sample, gene string) ([]string, error) {
	if err := f.profileErr[sample+"/"+gene]; err != nil {
		return nil, err
	}
	return f.profile[sample+"/"+gene], nil
}

func (f *fakeBackend) readPool(name, path string) []fasta.Record {
	records, err := fasta.ReadFile(path)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pools == nil {
		f.pools = make(map[string][]fasta.Record)
	}
	f.pools[name] = records
	return records
}

func (f *fakeBackend) OrthogroupSearch(_ context.Context, pool string) ([]tools.Hit, error) {
	records := f.readPool("orthogroup", pool)
	if f.orthogroup == nil {
		return nil, nil
	}
	return f.orthogroup(records), nil
}

func (f *fakeBackend) DatasetSearch(_ context.Context, pool string) ([]tools.Hit, error) {
	records := f.readPool("dataset", pool)
	if f.datasetErr != nil {
		return nil, f.datasetErr
	}
	if f.dataset == nil {
		return nil, nil
	}
	return f.dataset(records), nil
}

// allowAll maps every pool entry to an allowed eukaryotic orthogroup hit.
func allowAll(og map[string]string) func([]fasta.Record) []tools.Hit {
	return func(pool []fasta.Record) []tools.Hit {
		hits := make([]tools.Hit, 0, len(pool))
		for _, r := range pool {
			key, err := ParsePoolID(r.ID)
			if err != nil {
				continue
			}
			hits = append(hits, tools.Hit{Query: r.ID, Target: "Homosap|x|" + og[key.Gene] + "|desc"})
		}
		return hits
	}
}

// bestGene maps every pool entry's best dataset hit to gene label, or to its
// own gene when no override exists.
func bestGene(override map[string]string) func([]fasta.Record) []tools.Hit {
	return func(pool []fasta.Record) []tools.Hit {
		hits := make([]tools.Hit, 0, len(pool))
		for _, r := range pool {
			key, err := ParsePoolID(r.ID)
			if err != nil {
				continue
			}
			label := key.Gene
			if g, ok := override[key.SeqID]; ok {
				if g == "" {
					continue
				}
				label = g
			}
			hits = append(hits, tools.Hit{Query: r.ID, Target: label + "@Homosap"})
		}
		return hits
	}
}
