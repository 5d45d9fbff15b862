package tools

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Hit is one row of a three-column tabular search report: query id, target
// id or title, e-value.
type Hit struct {
	Query  string
	Target string
	EValue float64
}

// ParseTblout returns the target names of an hmmsearch --tblout report in
// file order, each name once.
func ParseTblout(r io.Reader) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name := strings.Fields(line)[0]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading tblout: %w", err)
	}
	return out, nil
}

// ParseTabular reads a tab-separated query/target/evalue report.
func ParseTabular(r io.Reader) ([]Hit, error) {
	var out []Hit
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: expected 3 tab-separated columns, got %d", n, len(fields))
		}
		ev, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad e-value %q: %w", n, fields[2], err)
		}
		out = append(out, Hit{Query: fields[0], Target: fields[1], EValue: ev})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading tabular report: %w", err)
	}
	return out, nil
}

// FirstPerQuery keeps the first hit of every query, in report order.
func FirstPerQuery(hits []Hit) []Hit {
	seen := make(map[string]struct{}, len(hits))
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if _, dup := seen[h.Query]; dup {
			continue
		}
		seen[h.Query] = struct{}{}
		out = append(out, h)
	}
	return out
}

// UniqueTargets lists target ids in report order, each once.
func UniqueTargets(hits []Hit) []string {
	seen := make(map[string]struct{}, len(hits))
	var out []string
	for _, h := range hits {
		if _, dup := seen[h.Target]; dup {
			continue
		}
		seen[h.Target] = struct{}{}
		out = append(out, h.Target)
	}
	return out
}

func parseTbloutFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseTblout(f)
}

func parseTabularFile(path string) ([]Hit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseTabular(f)
}
