package ingest

import (
	"io"
)

// ClassFact is one structural fact extracted from a compiled class: the
// fully qualified member name and its size.
type ClassFact struct {
	QualifiedName string
	Size          int64
}

// ClassParser extracts (qualifiedName, size) facts from compiled class bytes.
type ClassParser interface {
	ParseClassMembers(data []byte) ([]ClassFact, error)
}

// TemplateAnalyzer measures a template page.
type TemplateAnalyzer interface {
	AnalyzeTemplate(r io.Reader) (int64, error)
}

// SizeTemplateAnalyzer weighs a template by its byte count.
type SizeTemplateAnalyzer struct{}

func (SizeTemplateAnalyzer) AnalyzeTemplate(r io.Reader) (int64, error) {
	return io.Copy(io.Discard, r)
}
