package fisher

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Diagnostic kinds.
const (
	KindToolFailure        = "tool_failure"
	KindMissingReciprocity = "missing_reciprocity"
	KindMissingSequence    = "missing_sequence"
	KindMalformedHit       = "malformed_hit"
	KindEmptyGene          = "empty_gene"
)

// Event is one diagnostic line. Events record outcomes that are absorbed
// rather than raised, so a missing ortholog can be told apart from a failed
// search after the run.
type Event struct {
	Time      time.Time `json:"time"`
	RunID     string    `json:"run_id,omitempty"`
	Kind      string    `json:"kind"`
	Sample    string    `json:"sample,omitempty"`
	Gene      string    `json:"gene,omitempty"`
	Candidate string    `json:"candidate,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Diagnostics appends events as JSON lines. Safe for concurrent use; the
// zero value and a nil pointer discard events.
type Diagnostics struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
	runID  string
	count  map[string]int
	now    func() time.Time
}

// NewDiagnostics writes events to w.
func NewDiagnostics(w io.Writer, runID string) *Diagnostics {
	return &Diagnostics{
		enc:   json.NewEncoder(w),
		runID: runID,
		count: make(map[string]int),
		now:   time.Now,
	}
}

// OpenDiagnostics appends events to the file at path, creating it if needed.
func OpenDiagnostics(path, runID string) (*Diagnostics, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening diagnostics: %w", err)
	}
	d := NewDiagnostics(f, runID)
	d.closer = f
	return d, nil
}

// Report records ev. Write failures are ignored; diagnostics never fail a
// run.
func (d *Diagnostics) Report(ev Event) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enc == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = d.now().UTC()
	}
	if ev.RunID == "" {
		ev.RunID = d.runID
	}
	d.count[ev.Kind]++
	_ = d.enc.Encode(ev)
}

// Count returns how many events of kind were reported.
func (d *Diagnostics) Count(kind string) int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count[kind]
}

// Close closes the underlying file, if any.
func (d *Diagnostics) Close() error {
	if d == nil || d.closer == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.closer.Close()
	d.closer = nil
	d.enc = nil
	return err
}
