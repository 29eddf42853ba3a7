package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrFormat is returned when the uploaded artifact cannot be read as an
// archive. It aborts the whole ingestion; no partial project is committed.
var ErrFormat = errors.New("archive: malformed artifact")

// NestedGroupPrefix is the synthetic namespace for entries found inside
// nested archives.
const NestedGroupPrefix = "JARs/"

// TemplateMarkerDir marks a template-root boundary: template paths are
// resolved relative to the directory that contains this marker.
const TemplateMarkerDir = "WEB-INF"

// EntryKind classifies an archive entry by its file extension.
type EntryKind int

const (
	EntryIgnored EntryKind = iota
	EntryClass
	EntryTemplate
	EntryNestedArchive
	EntryTemplateMarker
)

// Entry describes one classified archive entry.
type Entry struct {
	// GroupLabel is the archive's own display name for top-level entries,
	// or "JARs/<relative-path>" for entries inside a nested archive.
	GroupLabel string
	// Path is the entry's path within its own archive.
	Path string
	Size int64
	Kind EntryKind
}

// WalkFunc receives one classified entry per call. The open accessor is only
// valid for the duration of the call and may be nil for marker entries.
type WalkFunc func(e Entry, open func() (io.ReadCloser, error)) error

// Walk enumerates and classifies every entry of the archive, recursing into
// nested archives under the JARs namespace. Directory entries are only
// inspected for the template-root marker and otherwise skipped.
func Walk(displayName string, r io.ReaderAt, size int64, fn WalkFunc) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return walkEntries(displayName, displayName, zr, fn)
}

func walkEntries(displayName, groupLabel string, zr *zip.Reader, fn WalkFunc) error {
	for _, f := range zr.File {
		name := path.Clean(strings.TrimPrefix(f.Name, "/"))
		if f.FileInfo().IsDir() {
			if path.Base(name) == TemplateMarkerDir {
				if err := fn(Entry{GroupLabel: groupLabel, Path: name, Kind: EntryTemplateMarker}, nil); err != nil {
					return err
				}
			}
			continue
		}
		kind := classify(name)
		if kind == EntryNestedArchive {
			if err := walkNested(displayName, name, f, fn); err != nil {
				return err
			}
			continue
		}
		e := Entry{
			GroupLabel: groupLabel,
			Path:       name,
			Size:       int64(f.UncompressedSize64),
			Kind:       kind,
		}
		file := f
		if err := fn(e, func() (io.ReadCloser, error) { return file.Open() }); err != nil {
			return err
		}
	}
	return nil
}

// walkNested reads a nested archive member into memory and recurses. The
// group label strips the outer archive's own name prefix from the host
// entry path, so "outer.jar!/inner.jar" labels as "JARs/inner.jar".
func walkNested(displayName, hostPath string, f *zip.File, fn WalkFunc) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open nested %s: %v", ErrFormat, hostPath, err)
	}
	data, err := io.ReadAll(rc)
	closeErr := rc.Close()
	if err != nil {
		return fmt.Errorf("%w: read nested %s: %v", ErrFormat, hostPath, err)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: close nested %s: %v", ErrFormat, hostPath, closeErr)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("%w: nested %s: %v", ErrFormat, hostPath, err)
	}
	label := NestedGroupPrefix + relativeHostPath(displayName, hostPath)
	return walkEntries(displayName, label, zr, fn)
}

func relativeHostPath(displayName, hostPath string) string {
	rel := strings.TrimPrefix(hostPath, displayName+"/")
	return strings.TrimPrefix(rel, "/")
}

func classify(name string) EntryKind {
	switch strings.ToLower(path.Ext(name)) {
	case ".class":
		return EntryClass
	case ".jsp", ".jspx", ".tag", ".tagx":
		return EntryTemplate
	case ".jar", ".war", ".ear", ".zip":
		return EntryNestedArchive
	default:
		return EntryIgnored
	}
}
