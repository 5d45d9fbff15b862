package phylo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrEmptyTree is returned when the input holds no tree.
var ErrEmptyTree = errors.New("empty newick input")

// Parse reads one Newick tree terminated by ';'. Quoted labels, bracketed
// comments, branch lengths and internal node labels (support values) are
// accepted. The parser is iterative and never recurses.
func Parse(s string) (*Tree, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyTree
	}

	t := &Tree{Nodes: []Node{{Parent: NoParent}}}
	addChild := func(parent int) int {
		t.Nodes = append(t.Nodes, Node{Parent: parent})
		idx := len(t.Nodes) - 1
		t.Nodes[parent].Children = append(t.Nodes[parent].Children, idx)
		return idx
	}

	cur, depth := 0, 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '(':
			depth++
			cur = addChild(cur)
			i++
		case c == ',':
			parent := t.Nodes[cur].Parent
			if parent == NoParent || depth == 0 {
				return nil, fmt.Errorf("offset %d: unexpected ','", i)
			}
			cur = addChild(parent)
			i++
		case c == ')':
			if depth == 0 {
				return nil, fmt.Errorf("offset %d: unbalanced ')'", i)
			}
			depth--
			cur = t.Nodes[cur].Parent
			i++
		case c == ':':
			j := i + 1
			for j < len(s) && !isDelimiter(s[j]) {
				j++
			}
			length, err := strconv.ParseFloat(strings.TrimSpace(s[i+1:j]), 64)
			if err != nil {
				return nil, fmt.Errorf("offset %d: bad branch length: %w", i, err)
			}
			t.Nodes[cur].Length = length
			i = j
		case c == ';':
			if depth != 0 {
				return nil, fmt.Errorf("offset %d: unbalanced '('", i)
			}
			return t, nil
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("offset %d: unterminated comment", i)
			}
			i += end + 1
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '\'':
			name, n, err := quotedLabel(s[i:])
			if err != nil {
				return nil, fmt.Errorf("offset %d: %w", i, err)
			}
			t.Nodes[cur].Name = name
			i += n
		default:
			j := i
			for j < len(s) && !isDelimiter(s[j]) {
				j++
			}
			t.Nodes[cur].Name = strings.TrimSpace(s[i:j])
			i = j
		}
	}
	return nil, errors.New("missing terminating ';'")
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', ',', ':', ';', '[':
		return true
	}
	return false
}

// quotedLabel reads a single-quoted label, where two single quotes stand
// for one literal quote. It returns the label and the number of bytes
// consumed.
func quotedLabel(s string) (string, int, error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] != '\'' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '\'' {
			b.WriteByte('\'')
			i++
			continue
		}
		return b.String(), i + 1, nil
	}
	return "", 0, errors.New("unterminated quoted label")
}
