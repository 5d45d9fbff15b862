// Package fasta reads and writes protein FASTA collections.
//
// Records are written with the whole residue string on a single line, which is
// the layout every downstream consumer of the per-gene collections expects.
package fasta

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	polyfasta "github.com/bebop/poly/io/fasta"
)

// maxLineSize bounds a single input line. Assembled proteomes occasionally
// carry long unwrapped sequences.
const maxLineSize = 1 << 20

// Record is a single FASTA entry.
type Record struct {
	// ID is the header up to the first whitespace.
	ID string
	// Desc is the remainder of the header line, if any.
	Desc string
	Seq  string
}

// Header returns the full header line without the leading '>'.
func (r Record) Header() string {
	if r.Desc == "" {
		return r.ID
	}
	return r.ID + " " + r.Desc
}

// Read parses all records from r. Sequence lines are concatenated with
// whitespace removed; blank and ';' comment lines are ignored. A header
// without residues is an error.
func Read(r io.Reader) ([]Record, error) {
	parser := polyfasta.NewParser(r, maxLineSize)
	var records []Record
	for {
		f, _, err := parser.ParseNext()
		eof := errors.Is(err, io.EOF)
		if err != nil && !eof {
			return nil, fmt.Errorf("record %d: %w", len(records)+1, err)
		}
		if f.Name == "" && f.Sequence == "" {
			return records, nil
		}
		id, desc := splitHeader(f.Name)
		if id == "" {
			return nil, fmt.Errorf("record %d: empty FASTA header", len(records)+1)
		}
		// The parser takes a header line that directly follows another as residues.
		if strings.ContainsRune(f.Sequence, '>') {
			return nil, fmt.Errorf("record %d: header %q has no residues", len(records)+1, id)
		}
		records = append(records, Record{ID: id, Desc: desc, Seq: strings.Join(strings.Fields(f.Sequence), "")})
		if eof {
			return records, nil
		}
	}
}

// ReadFile parses the FASTA file at path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// Write emits records as '>header' followed by one residue line.
func Write(w io.Writer, records ...Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := fmt.Fprintf(bw, ">%s\n%s\n", r.Header(), r.Seq); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile creates or truncates path and writes records to it.
func WriteFile(path string, records ...Record) error {
	return writeFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, records)
}

// AppendFile appends records to path, creating it if necessary.
func AppendFile(path string, records ...Record) error {
	return writeFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, records)
}

func writeFile(path string, flag int, records []Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return err
	}
	if err := Write(f, records...); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// StripGaps removes alignment gap characters from a residue string.
func StripGaps(seq string) string {
	return strings.ReplaceAll(seq, "-", "")
}

func splitHeader(header string) (id, desc string) {
	header = strings.TrimSpace(header)
	if i := strings.IndexAny(header, " \t"); i >= 0 {
		return header[:i], strings.TrimSpace(header[i+1:])
	}
	return header, ""
}
