package scanjob

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrReportParse wraps any failure to read the scan tool's report.
var ErrReportParse = errors.New("scanjob: malformed report")

// Dependency is one reported artifact member. Only the file path and the
// presence of at least one vulnerability child are consumed from the report.
type Dependency struct {
	FilePath   string
	Vulnerable bool
}

// ParseReport streams the XML report and extracts its dependency entries.
// The report schema is fixed, so this is a narrow token walk rather than a
// generic document query: only <dependency>, <vulnerability> and <filePath>
// elements are interpreted, everything else is skipped.
func ParseReport(r io.Reader) ([]Dependency, error) {
	dec := xml.NewDecoder(r)
	var (
		deps       []Dependency
		depth      int
		cur        Dependency
		inFilePath bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReportParse, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "dependency":
				// Some tools nest duplicate entries inside a dependency;
				// only the outermost one counts.
				depth++
				if depth == 1 {
					cur = Dependency{}
				}
			case "vulnerability":
				if depth == 1 {
					cur.Vulnerable = true
				}
			case "filePath":
				if depth == 1 {
					inFilePath = true
				}
			}
		case xml.CharData:
			if inFilePath {
				cur.FilePath += string(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "filePath":
				inFilePath = false
			case "dependency":
				if depth == 1 {
					cur.FilePath = strings.TrimSpace(cur.FilePath)
					deps = append(deps, cur)
				}
				if depth > 0 {
					depth--
				}
			}
		}
	}
	return deps, nil
}
