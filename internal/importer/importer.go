package importer

import (
	"context"

	"coverscope/internal/forest"
)

// Store persists a finished forest and its correlation maps into durable
// storage. All three calls happen once per ingestion, after compaction.
type Store interface {
	ImportTree(ctx context.Context, projectID string, f *forest.Forest) error
	MapMethodSignatures(ctx context.Context, projectID string, signatures map[string]int) error
	MapTemplatePaths(ctx context.Context, projectID string, paths map[string]int) error
}

// FlatNode is the row shape of one persisted tree node.
type FlatNode struct {
	ID       int
	ParentID int // -1 for root groups
	Name     string
	Kind     forest.Kind
	Size     int64
	Traced   bool
}

// Flatten turns a forest into rows, parents before children.
func Flatten(f *forest.Forest) []FlatNode {
	if f == nil {
		return nil
	}
	var rows []FlatNode
	var visit func(n *forest.Node, parent int)
	visit = func(n *forest.Node, parent int) {
		rows = append(rows, FlatNode{
			ID:       n.ID,
			ParentID: parent,
			Name:     n.Name,
			Kind:     n.Kind,
			Size:     n.Size,
			Traced:   n.Traced,
		})
		for _, c := range n.Children {
			visit(c, n.ID)
		}
	}
	for _, r := range f.Roots {
		visit(r, -1)
	}
	return rows
}
