package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
)

// ExportManifestName is the top-level entry that identifies a previously
// exported project archive.
const ExportManifestName = "coverscope.manifest"

// LooksLikeArtifact reports whether the archive contains at least one
// compiled-class entry. It reads only the central directory of the outer
// archive (and of directly nested archives), never entry contents beyond
// that, so it is cheap enough to gate the ingestion path decision.
func LooksLikeArtifact(r io.ReaderAt, size int64) bool {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return false
	}
	return containsClass(zr, true)
}

func containsClass(zr *zip.Reader, recurse bool) bool {
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		switch classify(f.Name) {
		case EntryClass:
			return true
		case EntryNestedArchive:
			if !recurse {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				continue
			}
			data, err := io.ReadAll(rc)
			_ = rc.Close()
			if err != nil {
				continue
			}
			nested, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
			if err != nil {
				continue
			}
			if containsClass(nested, false) {
				return true
			}
		}
	}
	return false
}

// LooksLikeExportedProject reports whether the archive carries the export
// manifest signature at its top level.
func LooksLikeExportedProject(r io.ReaderAt, size int64) bool {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if strings.TrimPrefix(f.Name, "/") == ExportManifestName {
			return true
		}
	}
	return false
}
