package forest

import "strings"

// Kind classifies a node within the code forest.
type Kind string

const (
	KindGroup   Kind = "group"
	KindPackage Kind = "package"
	KindClass   Kind = "class"
	KindMethod  Kind = "method"
)

// Node is one structural unit of the code forest. The ID is assigned once at
// creation and never changes, even when compaction later merges the node's
// ancestors. Size is the node's own size for leaves and the sum of all leaf
// descendants for interior nodes.
type Node struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	Kind       Kind    `json:"kind"`
	Size       int64   `json:"size"`
	Traced     bool    `json:"traced,omitempty"`
	Vulnerable bool    `json:"vulnerable,omitempty"`
	Children   []*Node `json:"children,omitempty"`
}

// Clone returns a deep copy of the node and its subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Children = nil
	for _, child := range n.Children {
		c.Children = append(c.Children, child.Clone())
	}
	return &c
}

// Child returns the direct child with the given name, if any.
func (n *Node) Child(name string) (*Node, bool) {
	if n == nil {
		return nil, false
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n != nil && len(n.Children) == 0
}

// Walk visits n and every descendant in depth-first order.
func (n *Node) Walk(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Forest owns the named root groups of a code forest.
type Forest struct {
	Roots []*Node `json:"roots"`
}

// Clone returns a deep copy of the forest. Readers treat a forest taken from
// the registry as an immutable snapshot; mutations of a committed forest go
// through a clone and are published by pointer swap.
func (f *Forest) Clone() *Forest {
	if f == nil {
		return nil
	}
	out := &Forest{Roots: make([]*Node, 0, len(f.Roots))}
	for _, r := range f.Roots {
		out.Roots = append(out.Roots, r.Clone())
	}
	return out
}

// Group returns the root group with the given label, if present.
func (f *Forest) Group(label string) (*Node, bool) {
	if f == nil {
		return nil, false
	}
	label = strings.TrimSpace(label)
	for _, r := range f.Roots {
		if r.Name == label {
			return r, true
		}
	}
	return nil, false
}

// FindByID returns the node with the given identifier, if present.
func (f *Forest) FindByID(id int) (*Node, bool) {
	if f == nil {
		return nil, false
	}
	var found *Node
	for _, r := range f.Roots {
		r.Walk(func(n *Node) {
			if n.ID == id && found == nil {
				found = n
			}
		})
		if found != nil {
			return found, true
		}
	}
	return nil, false
}

// TotalSize returns the sum of all root group sizes.
func (f *Forest) TotalSize() int64 {
	if f == nil {
		return 0
	}
	var total int64
	for _, r := range f.Roots {
		total += r.Size
	}
	return total
}

// Walk visits every node of every root group in depth-first order.
func (f *Forest) Walk(fn func(*Node)) {
	if f == nil {
		return
	}
	for _, r := range f.Roots {
		r.Walk(fn)
	}
}
