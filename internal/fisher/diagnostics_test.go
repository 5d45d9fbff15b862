package fisher

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnostics_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diagnostics.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"kind":"earlier"}`+"\n"), 0o644))

	d, err := OpenDiagnostics(path, "run-7")
	require.NoError(t, err)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	d.Report(Event{Kind: KindToolFailure, Sample: "Alpha", Gene: "ADK2", Detail: "exit status 1"})
	d.Report(Event{Kind: KindMissingReciprocity, Candidate: "Alpha_1_HMM@ADK2", RunID: "other"})
	assert.Equal(t, 1, d.Count(KindToolFailure))
	assert.Zero(t, d.Count(KindEmptyGene))
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	// Reports after close are dropped.
	d.Report(Event{Kind: KindToolFailure})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 3)
	assert.Equal(t, "earlier", events[0].Kind)
	assert.Equal(t, Event{Time: fixed, RunID: "run-7", Kind: KindToolFailure, Sample: "Alpha", Gene: "ADK2", Detail: "exit status 1"}, events[1])
	assert.Equal(t, "other", events[2].RunID)
}

func TestDiagnostics_NilIsSafe(t *testing.T) {
	var d *Diagnostics
	d.Report(Event{Kind: KindEmptyGene})
	assert.Zero(t, d.Count(KindEmptyGene))
	assert.NoError(t, d.Close())

	var zero Diagnostics
	zero.Report(Event{Kind: KindEmptyGene})
	assert.NoError(t, zero.Close())
}

func TestOpenDiagnostics_MissingDir(t *testing.T) {
	_, err := OpenDiagnostics(filepath.Join(t.TempDir(), "missing", "d.jsonl"), "")
	assert.ErrorContains(t, err, "opening diagnostics")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordSelected(PathProfile)
	m.RecordSelected(PathSeedBlast)
	m.RecordSelected(PathSeedBlast)
	m.RecordRejected("length", 3)
	m.RecordRejected("length", 0)
	m.RecordEmpty(ReasonNoSeedHits)
	m.RecordWritten(false)
	m.ObserveTool("diamond", 2*time.Second, nil)
	m.ObserveTool("diamond", time.Second, assert.AnError)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CandidatesSelected.WithLabelValues("PROFILE")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CandidatesSelected.WithLabelValues("SEED_BLAST")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CandidatesRejected.WithLabelValues("length")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenesEmpty.WithLabelValues(ReasonNoSeedHits)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsWritten.WithLabelValues("n")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolRuns.WithLabelValues("diamond", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolRuns.WithLabelValues("diamond", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ToolDuration))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.RecordSelected(PathProfile)
		nilMetrics.RecordRejected("length", 1)
		nilMetrics.RecordEmpty(ReasonNoneSelected)
		nilMetrics.RecordWritten(true)
		nilMetrics.ObserveTool("mafft", time.Second, nil)
	})
}
