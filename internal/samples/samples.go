// Package samples parses the input metadata table describing the query
// organisms of a run and validates it against the reference dataset before
// any search starts.
package samples

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/orthofisher/internal/reference"
)

const (
	headerMarker = "FILE_NAME"
	noSeeds      = "none"
	// NewGroupMarker flags a taxonomic group that is intentionally absent
	// from the reference metadata.
	NewGroupMarker = "*"
	columns        = 6
)

// ErrInvalidInput is wrapped by every pre-flight failure.
var ErrInvalidInput = errors.New("invalid input metadata")

// Sample is one query organism row.
type Sample struct {
	Line     int
	Dir      string
	FileName string
	// Name is the short name used to prefix renamed sequences.
	Name     string
	Group    string
	LongName string
	// SeedOrganisms are blast-seed donors in priority order. Empty means
	// profile-only selection for every gene.
	SeedOrganisms []string
}

// Path is the sample's protein FASTA.
func (s Sample) Path() string {
	return filepath.Join(s.Dir, s.FileName)
}

// HasSeeds reports whether the sample uses seed-organism selection.
func (s Sample) HasSeeds() bool {
	return len(s.SeedOrganisms) > 0
}

// Parse reads tab-separated metadata rows. The header row is recognised by
// the FILE_NAME marker and skipped wherever it appears.
func Parse(r io.Reader) ([]Sample, error) {
	var (
		out      []Sample
		problems []Problem
	)
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" || strings.Contains(line, headerMarker) {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < columns {
			problems = append(problems, Problem{Line: n, Msg: fmt.Sprintf("expected %d tab-separated columns, got %d", columns, len(fields))})
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		s := Sample{
			Line:     n,
			Dir:      fields[0],
			FileName: fields[1],
			Name:     fields[2],
			Group:    fields[3],
			LongName: fields[4],
		}
		if !strings.EqualFold(fields[5], noSeeds) {
			for _, org := range strings.Split(fields[5], ",") {
				if org = strings.TrimSpace(org); org != "" {
					s.SeedOrganisms = append(s.SeedOrganisms, org)
				}
			}
		}
		out = append(out, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input metadata: %w", err)
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return out, nil
}

// ReadFile parses the metadata file at path.
func ReadFile(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Validate checks every sample against the reference dataset and reports all
// problems at once: missing protein files, short names that collide with the
// reference or each other, seed organisms absent from the reference metadata
// and unknown taxonomic groups not marked as new.
func Validate(samples []Sample, taxonomy reference.TaxonomyMap) error {
	var problems []Problem
	report := func(line int, format string, args ...any) {
		problems = append(problems, Problem{Line: line, Msg: fmt.Sprintf(format, args...)})
	}

	groups := taxonomy.Groups()
	seen := make(map[string]int, len(samples))
	for _, s := range samples {
		if info, err := os.Stat(s.Path()); err != nil || info.IsDir() {
			report(s.Line, "file %s doesn't exist", s.Path())
		}
		switch {
		case s.Name == "":
			report(s.Line, "short name is empty")
		case strings.ContainsAny(s.Name, "@ \t"):
			report(s.Line, "short name %q must not contain '@' or whitespace", s.Name)
		}
		if _, ok := taxonomy[s.Name]; ok {
			report(s.Line, "%s already in metadata", s.Name)
		}
		if first, dup := seen[s.Name]; dup {
			report(s.Line, "%s already used on line %d", s.Name, first)
		} else {
			seen[s.Name] = s.Line
		}
		for _, org := range s.SeedOrganisms {
			if _, ok := taxonomy[org]; !ok {
				report(s.Line, "%s not in metadata", org)
			}
		}
		if !strings.Contains(s.Group, NewGroupMarker) {
			if _, ok := groups[s.Group]; !ok {
				report(s.Line, "%s not in metadata", s.Group)
			}
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// AppendRows appends the data rows of src (header excluded) to dst. It is
// used to fold an additional metadata file into the main one after an --add
// run.
func AppendRows(dst, src string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	var rows strings.Builder
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || strings.Contains(line, headerMarker) {
			continue
		}
		rows.WriteString(line)
		rows.WriteByte('\n')
	}
	if rows.Len() == 0 {
		return nil
	}

	f, err := os.OpenFile(dst, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := ensureTrailingNewline(f, dst); err != nil {
		f.Close()
		return err
	}
	if _, err := f.WriteString(rows.String()); err != nil {
		f.Close()
		return fmt.Errorf("appending to %s: %w", dst, err)
	}
	return f.Close()
}

func ensureTrailingNewline(f *os.File, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		_, err = f.WriteString("\n")
	}
	return err
}
