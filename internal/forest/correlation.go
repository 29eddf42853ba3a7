package forest

// CorrelationIndex maps runtime-observable keys to leaf node identifiers.
// Keys are method signatures and template paths; values are the identifiers
// of the leaves created for them. Leaves are never merged by compaction, so
// every recorded identifier stays resolvable in the persisted forest.
type CorrelationIndex struct {
	Methods   map[string]int `json:"methods"`
	Templates map[string]int `json:"templates"`
}

func NewCorrelationIndex() *CorrelationIndex {
	return &CorrelationIndex{
		Methods:   make(map[string]int),
		Templates: make(map[string]int),
	}
}

// PutMethod records a method signature. A duplicate signature overwrites the
// earlier entry; the later occurrence reflects the final parse.
func (ci *CorrelationIndex) PutMethod(signature string, id int) {
	if ci == nil || signature == "" {
		return
	}
	ci.Methods[signature] = id
}

// PutTemplate records a template path.
func (ci *CorrelationIndex) PutTemplate(path string, id int) {
	if ci == nil || path == "" {
		return
	}
	ci.Templates[path] = id
}
