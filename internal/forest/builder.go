package forest

import (
	"errors"
	"strings"
)

// ErrEmptyArtifact is returned by Finish when no leaf was ever inserted.
// Callers must treat it as a terminal failure of the whole ingestion.
var ErrEmptyArtifact = errors.New("forest: artifact produced no class or template facts")

// Builder incrementally constructs a Forest from qualified-name insertions.
// It is single-owner state: exactly one goroutine drives it during a build.
type Builder struct {
	nextID int
	roots  []*Node
	byName map[string]*Node
	leaves int
}

func NewBuilder() *Builder {
	return &Builder{byName: make(map[string]*Node)}
}

func (b *Builder) newNode(name string, kind Kind) *Node {
	n := &Node{ID: b.nextID, Name: name, Kind: kind}
	b.nextID++
	return n
}

func (b *Builder) group(label string) *Node {
	label = strings.TrimSpace(label)
	if g, ok := b.byName[label]; ok {
		return g
	}
	g := b.newNode(label, KindGroup)
	b.byName[label] = g
	b.roots = append(b.roots, g)
	return g
}

// Insert adds one class member under the named root group and returns the
// method leaf so the caller can correlate its identifier. The qualified name
// has the shape "package.Class.method(descriptor)"; the descriptor stays part
// of the terminal segment. Size is added to the leaf and propagated along
// every ancestor up to the root group.
func (b *Builder) Insert(group, qualifiedName string, size int64) *Node {
	segs := splitQualifiedName(qualifiedName)
	cur := b.group(group)
	cur.Size += size
	for i, seg := range segs {
		child, ok := cur.Child(seg)
		if !ok {
			child = b.newNode(seg, kindAtDepth(i, len(segs)))
			cur.Children = append(cur.Children, child)
		}
		child.Size += size
		cur = child
	}
	if cur.Kind == KindMethod && !cur.Traced {
		cur.Traced = true
		b.leaves++
	}
	return cur
}

// InsertLeaf adds a single pre-split leaf (e.g. a template page) directly
// under the named root group.
func (b *Builder) InsertLeaf(group, name string, size int64) *Node {
	root := b.group(group)
	root.Size += size
	leaf, ok := root.Child(name)
	if !ok {
		leaf = b.newNode(name, KindMethod)
		root.Children = append(root.Children, leaf)
	}
	leaf.Size += size
	if !leaf.Traced {
		leaf.Traced = true
		b.leaves++
	}
	return leaf
}

// Finish runs the compaction pass and hands the forest over. The builder must
// not be used afterwards. An artifact that produced no leaves at all is a
// terminal EmptyArtifact failure.
func (b *Builder) Finish() (*Forest, error) {
	if b.leaves == 0 {
		return nil, ErrEmptyArtifact
	}
	f := &Forest{Roots: b.roots}
	Compact(f)
	return f, nil
}

// kindAtDepth infers a segment's kind from its position: the terminal segment
// is the method, its parent the class, everything above a package.
func kindAtDepth(i, total int) Kind {
	switch {
	case i == total-1:
		return KindMethod
	case i == total-2:
		return KindClass
	default:
		return KindPackage
	}
}

// splitQualifiedName splits "package.Class.method(desc)" into its path
// segments. The method descriptor may itself contain dots, so the method
// boundary is located before the opening parenthesis.
func splitQualifiedName(qn string) []string {
	qn = strings.TrimSpace(qn)
	if qn == "" {
		return nil
	}
	if i := strings.IndexByte(qn, '('); i >= 0 {
		if j := strings.LastIndexByte(qn[:i], '.'); j >= 0 {
			segs := strings.Split(qn[:j], ".")
			return append(segs, qn[j+1:])
		}
		return []string{qn}
	}
	return strings.Split(qn, ".")
}
