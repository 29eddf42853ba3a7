package forest

// Compact merges every interior package node that has exactly one child into
// that child, concatenating display names with the package delimiter. The
// surviving node keeps its own identifier; correlation entries are recorded
// against leaf identifiers only, so no entry is ever invalidated here.
// Root groups are never merged. The pass is idempotent and order-independent.
func Compact(f *Forest) {
	if f == nil {
		return
	}
	for _, r := range f.Roots {
		for i, c := range r.Children {
			r.Children[i] = compact(c)
		}
	}
}

func compact(n *Node) *Node {
	for i, c := range n.Children {
		n.Children[i] = compact(c)
	}
	if n.Kind != KindPackage || len(n.Children) != 1 {
		return n
	}
	child := n.Children[0]
	if child.Kind != KindPackage && child.Kind != KindClass {
		return n
	}
	child.Name = n.Name + "." + child.Name
	return child
}
