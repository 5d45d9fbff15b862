package fisher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orthofisher/internal/fasta"
)

// NonReciprocalFile lists candidates whose best dataset hit is another gene.
const NonReciprocalFile = "nonreciprocal_hits.txt"

const outputSuffix = ".fas"

// ErrAssemblerClosed is returned by Write after Close.
var ErrAssemblerClosed = errors.New("assembler closed")

type writeRequest struct {
	tagged []TaggedCandidate
	reply  chan writeResult
}

type writeResult struct {
	records []fasta.Record
	err     error
}

// Assembler appends tagged candidates to per-gene output collections. A
// single goroutine performs every write, so each Write lands contiguously
// and a collection is seeded with its reference orthologs only once.
type Assembler struct {
	dir       string
	orthologs OrthologSource
	in        Instruments

	reqs chan writeRequest
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAssembler creates dir if needed and starts the writer.
func NewAssembler(dir string, orthologs OrthologSource, in Instruments) (*Assembler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	a := &Assembler{
		dir:       dir,
		orthologs: orthologs,
		in:        in,
		reqs:      make(chan writeRequest),
		done:      make(chan struct{}),
	}
	go a.loop()
	return a, nil
}

// OutputPath is the collection file for gene.
func (a *Assembler) OutputPath(gene string) string {
	return filepath.Join(a.dir, gene+outputSuffix)
}

// NonReciprocalPath is the non-reciprocal hit report.
func (a *Assembler) NonReciprocalPath() string {
	return filepath.Join(a.dir, NonReciprocalFile)
}

// Write appends tagged, all of one gene, in order with dense ranks 1..k and
// returns the records written. It blocks until the write completes.
func (a *Assembler) Write(ctx context.Context, tagged []TaggedCandidate) ([]fasta.Record, error) {
	if len(tagged) == 0 {
		return nil, nil
	}
	gene := tagged[0].Gene
	for _, t := range tagged[1:] {
		if t.Gene != gene {
			return nil, fmt.Errorf("mixed genes in one write: %s and %s", gene, t.Gene)
		}
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrAssemblerClosed
	}
	reply := make(chan writeResult, 1)
	select {
	case a.reqs <- writeRequest{tagged: tagged, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	res := <-reply
	return res.records, res.err
}

// Close stops the writer after pending writes finish.
func (a *Assembler) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.reqs)
	}
	a.mu.Unlock()
	<-a.done
}

func (a *Assembler) loop() {
	defer close(a.done)
	for req := range a.reqs {
		records, err := a.write(req.tagged)
		req.reply <- writeResult{records: records, err: err}
	}
}

func (a *Assembler) write(tagged []TaggedCandidate) ([]fasta.Record, error) {
	gene := tagged[0].Gene
	path := a.OutputPath(gene)
	if err := a.seed(gene, path); err != nil {
		return nil, err
	}

	records := make([]fasta.Record, len(tagged))
	var nonrecip strings.Builder
	for i, t := range tagged {
		records[i] = fasta.Record{ID: t.OutputID(i+1, t.Reciprocal), Seq: t.Residues}
		if !t.Reciprocal {
			fmt.Fprintf(&nonrecip, "nonreciprocal hit:%s; Best hit from:%s\n", t.PoolID(), t.BestHit)
		}
	}
	if err := fasta.AppendFile(path, records...); err != nil {
		return nil, fmt.Errorf("appending to %s: %w", path, err)
	}
	if nonrecip.Len() > 0 {
		if err := appendText(a.NonReciprocalPath(), nonrecip.String()); err != nil {
			return records, err
		}
	}

	ctx := scoped(context.Background(), tagged[0].Sample, gene)
	for i, t := range tagged {
		a.in.Metrics.RecordWritten(t.Reciprocal)
		if !t.Reciprocal {
			a.in.logger(ctx).Info(ctx, "nonreciprocal hit",
				zap.String("pool_id", t.PoolID()), zap.String("best_hit", t.BestHit))
		}
		a.in.logger(ctx).Debug(ctx, "candidate written", zap.String("id", records[i].ID))
	}
	return records, nil
}

// seed writes the reference orthologs when the collection does not exist
// yet. Existing collections, including those from earlier runs, are
// appended to as they are.
func (a *Assembler) seed(gene, path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if err := fasta.WriteFile(path, a.orthologs.Orthologs(gene)...); err != nil {
		return fmt.Errorf("seeding %s: %w", path, err)
	}
	return nil
}

func appendText(path, text string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
