// Package phylo parses Newick trees into an index-addressed arena and
// answers the clade questions used to judge candidate placement.
package phylo

import (
	"fmt"
	"os"
	"sort"
)

// NoParent marks the root.
const NoParent = -1

// Node is one vertex of a Tree. Children and Parent are indices into
// Tree.Nodes.
type Node struct {
	Name     string
	Length   float64
	Parent   int
	Children []int
}

// Tree is an arena of nodes. Node 0 is always the root.
type Tree struct {
	Nodes []Node
}

// Root returns the root index.
func (t *Tree) Root() int { return 0 }

// IsLeaf reports whether node n has no children.
func (t *Tree) IsLeaf(n int) bool { return len(t.Nodes[n].Children) == 0 }

// Parent returns the parent of n or NoParent.
func (t *Tree) Parent(n int) int { return t.Nodes[n].Parent }

// Leaf returns the index of the first leaf named name.
func (t *Tree) Leaf(name string) (int, bool) {
	for i := range t.Nodes {
		if t.IsLeaf(i) && t.Nodes[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

// LeafNames returns the names of all leaves below (and including) n in
// depth-first order.
func (t *Tree) LeafNames(n int) []string {
	var names []string
	t.walkLeaves(n, func(leaf int) {
		names = append(names, t.Nodes[leaf].Name)
	})
	return names
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	depth := make([]int, len(t.Nodes))
	deepest := 0
	// Children are always appended after their parent, so a forward pass
	// sees every parent first.
	for i := 1; i < len(t.Nodes); i++ {
		depth[i] = depth[t.Nodes[i].Parent] + 1
		if depth[i] > deepest {
			deepest = depth[i]
		}
	}
	return deepest
}

func (t *Tree) walkLeaves(n int, fn func(int)) {
	stack := []int{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		children := t.Nodes[cur].Children
		if len(children) == 0 {
			fn(cur)
			continue
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}

// GroupFunc maps a leaf name to its taxonomic group. Leaves without a group
// (candidates, unknown organisms) report false and are ignored.
type GroupFunc func(leaf string) (string, bool)

// Placement is the outcome of a group-consistency climb.
type Placement struct {
	Consistent bool
	// Levels is the number of ancestors examined.
	Levels int
	// Groups are the taxonomic groups seen in the last clade examined.
	Groups []string
}

// maxGroups is the number of distinct groups a clade may hold before the
// climb stops.
const maxGroups = 2

// Climb walks from the parent of leaf toward the root, examining the set of
// taxonomic groups present in each clade. A clade holding more than two
// groups ends the climb and the placement is consistent only if sampleGroup
// is among them. Otherwise the placement is consistent as soon as a clade
// contains sampleGroup. Passing the root without either outcome is
// inconsistent. The walk visits each ancestor once, so it never exceeds the
// tree depth.
func (t *Tree) Climb(leaf int, groupOf GroupFunc, sampleGroup string) Placement {
	groups := make(map[string]struct{})
	add := func(n int) {
		t.walkLeaves(n, func(l int) {
			if g, ok := groupOf(t.Nodes[l].Name); ok {
				groups[g] = struct{}{}
			}
		})
	}
	add(leaf)

	var p Placement
	prev, node := leaf, t.Parent(leaf)
	for node != NoParent {
		p.Levels++
		for _, c := range t.Nodes[node].Children {
			if c != prev {
				add(c)
			}
		}
		_, hasSample := groups[sampleGroup]
		if len(groups) > maxGroups || hasSample {
			p.Consistent = hasSample
			break
		}
		prev, node = node, t.Parent(node)
	}
	p.Groups = sortedKeys(groups)
	return p
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ReadFile parses the first tree in a Newick file.
func ReadFile(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}
