package samples

import (
	"fmt"
	"strings"
)

// Problem is one line-numbered defect in the input metadata.
type Problem struct {
	Line int
	Msg  string
}

func (p Problem) String() string {
	return fmt.Sprintf("line %d: %s", p.Line, p.Msg)
}

// ValidationError aggregates every problem found in one pass.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	lines := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		lines[i] = p.String()
	}
	return "please check your input file:\n" + strings.Join(lines, "\n")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }
