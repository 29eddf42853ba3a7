package ingest

import (
	"path"
	"sort"
	"strings"

	"coverscope/internal/forest"
)

// TemplateGroup is the root group label for template pages.
const TemplateGroup = "JSPs"

type templateFact struct {
	path string
	size int64
}

// TemplateAdapter accumulates template facts and marker-directory
// observations during classification and inserts the pages in one pass once
// the full set of marker roots is known. Template paths are made relative to
// the nearest marker root so they match the paths observed at runtime.
type TemplateAdapter struct {
	roots []string
	facts []templateFact
}

func NewTemplateAdapter() *TemplateAdapter {
	return &TemplateAdapter{}
}

// ObserveMarker records a template-root boundary from a marker directory
// entry (the directory containing the marker is the template root).
func (a *TemplateAdapter) ObserveMarker(markerPath string) {
	root := path.Dir(path.Clean(markerPath))
	if root == "." {
		root = ""
	}
	for _, r := range a.roots {
		if r == root {
			return
		}
	}
	a.roots = append(a.roots, root)
	// Longest root wins when several nest.
	sort.Slice(a.roots, func(i, j int) bool { return len(a.roots[i]) > len(a.roots[j]) })
}

// Add records one template page fact.
func (a *TemplateAdapter) Add(pagePath string, size int64) {
	a.facts = append(a.facts, templateFact{path: path.Clean(pagePath), size: size})
}

// Build inserts every accumulated template as a leaf under the template root
// group and returns nothing; correlation entries are recorded on ci keyed by
// the runtime-relative page path.
func (a *TemplateAdapter) Build(b *forest.Builder, ci *forest.CorrelationIndex) {
	for _, fact := range a.facts {
		rel := a.relative(fact.path)
		leaf := b.InsertLeaf(TemplateGroup, rel, fact.size)
		ci.PutTemplate(rel, leaf.ID)
	}
}

func (a *TemplateAdapter) relative(p string) string {
	for _, root := range a.roots {
		if root == "" {
			return p
		}
		if strings.HasPrefix(p, root+"/") {
			return strings.TrimPrefix(p, root+"/")
		}
	}
	return p
}
