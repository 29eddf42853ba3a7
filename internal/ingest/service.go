package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"coverscope/internal/archive"
	"coverscope/internal/forest"
	"coverscope/internal/importer"
	"coverscope/internal/registry"
	"coverscope/internal/scanjob"
)

// Service is the async project loader. Ingest allocates a project handle
// synchronously and returns its identifier; the heavy classification, forest
// build and import run on a background task that either commits the handle
// or rolls it back. A second background task per ingestion runs the scan
// job; the shared artifact file is released once both are done.
type Service struct {
	registry *registry.Store
	importer importer.Store
	blobs    BlobWriter
	scans    *scanjob.Orchestrator
	parser   ClassParser
	analyzer TemplateAnalyzer

	mu       sync.Mutex
	outcomes map[string]*outcome
}

// BlobWriter is the slice of the blob store the loader needs.
type BlobWriter interface {
	Put(ctx context.Context, projectID, name string, r io.Reader, size int64) error
}

type outcome struct {
	done      chan struct{}
	committed bool
}

func New(reg *registry.Store, imp importer.Store, blobs BlobWriter, scans *scanjob.Orchestrator, parser ClassParser, analyzer TemplateAnalyzer) *Service {
	if parser == nil {
		parser = ClassFileParser{}
	}
	if analyzer == nil {
		analyzer = SizeTemplateAnalyzer{}
	}
	return &Service{
		registry: reg,
		importer: imp,
		blobs:    blobs,
		scans:    scans,
		parser:   parser,
		analyzer: analyzer,
		outcomes: make(map[string]*outcome),
	}
}

// AttachScans wires the scan orchestrator. The orchestrator needs this
// service as its commit waiter, so the two are connected once at startup,
// after both are constructed.
func (s *Service) AttachScans(o *scanjob.Orchestrator) {
	s.scans = o
}

// Ingest starts ingestion of the uploaded artifact at artifactPath and
// returns the new project identifier immediately. artifactName is the
// upload's display name; removeArtifact releases the temporary file and is
// guaranteed to run exactly once, after both background tasks have exited.
func (s *Service) Ingest(projectName, artifactName, artifactPath string, removeArtifact func()) (string, error) {
	if _, err := os.Stat(artifactPath); err != nil {
		return "", fmt.Errorf("artifact is not readable: %w", err)
	}
	state := s.registry.Allocate(projectName)
	projectID := state.ProjectID

	s.mu.Lock()
	s.outcomes[projectID] = &outcome{done: make(chan struct{})}
	s.mu.Unlock()

	if s.scans != nil {
		s.scans.Queue(projectID)
	}

	// The caller only ever observes the returned identifier; both pipelines
	// run detached from the request context.
	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		s.load(gctx, projectID, artifactName, artifactPath)
		return nil
	})
	if s.scans != nil {
		g.Go(func() error {
			s.scans.Execute(gctx, projectID, artifactPath, nil)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		if removeArtifact != nil {
			removeArtifact()
		}
		// Both tasks have observed the outcome; later AwaitCommit callers
		// resolve from the registry, so the entry can go.
		s.mu.Lock()
		delete(s.outcomes, projectID)
		s.mu.Unlock()
	}()
	return projectID, nil
}

// AwaitCommit blocks until the project's ingestion reached its terminal
// state and reports whether it committed. Projects ingested before this
// process started resolve from the registry directly.
func (s *Service) AwaitCommit(ctx context.Context, projectID string) bool {
	s.mu.Lock()
	o := s.outcomes[projectID]
	s.mu.Unlock()
	if o == nil {
		state, ok := s.registry.Get(projectID)
		return ok && state.Committed()
	}
	select {
	case <-ctx.Done():
		return false
	case <-o.done:
		return o.committed
	}
}

func (s *Service) load(ctx context.Context, projectID, artifactName, artifactPath string) {
	f, err := s.buildForest(ctx, projectID, artifactName, artifactPath)
	if err != nil {
		log.Printf("ingest %s rolled back: %v", projectID, err)
		s.registry.Remove(projectID)
		s.notify(projectID, false)
		return
	}
	s.registry.Commit(projectID, f)
	s.notify(projectID, true)
	log.Printf("ingest %s committed: %d bytes across %d groups", projectID, f.TotalSize(), len(f.Roots))
}

// notify releases every observer of the project's outcome exactly once.
func (s *Service) notify(projectID string, committed bool) {
	s.mu.Lock()
	o := s.outcomes[projectID]
	s.mu.Unlock()
	if o == nil {
		return
	}
	o.committed = committed
	close(o.done)
}

func (s *Service) buildForest(ctx context.Context, projectID, artifactName, artifactPath string) (*forest.Forest, error) {
	file, err := os.Open(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", archive.ErrFormat, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", archive.ErrFormat, err)
	}

	builder := forest.NewBuilder()
	ci := forest.NewCorrelationIndex()
	templates := NewTemplateAdapter()

	walkErr := archive.Walk(artifactName, file, info.Size(), func(e archive.Entry, open func() (io.ReadCloser, error)) error {
		switch e.Kind {
		case archive.EntryTemplateMarker:
			templates.ObserveMarker(e.Path)
		case archive.EntryClass:
			s.collectClassFacts(builder, ci, e, open)
		case archive.EntryTemplate:
			s.collectTemplateFact(templates, e, open)
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	templates.Build(builder, ci)

	f, err := builder.Finish()
	if err != nil {
		return nil, err
	}

	if err := s.importer.ImportTree(ctx, projectID, f); err != nil {
		return nil, fmt.Errorf("import tree: %w", err)
	}
	if err := s.importer.MapMethodSignatures(ctx, projectID, ci.Methods); err != nil {
		return nil, fmt.Errorf("map signatures: %w", err)
	}
	if err := s.importer.MapTemplatePaths(ctx, projectID, ci.Templates); err != nil {
		return nil, fmt.Errorf("map templates: %w", err)
	}
	s.archiveUpload(ctx, projectID, artifactName, artifactPath)
	return f, nil
}

// collectClassFacts parses one compiled class entry. A single unparseable
// class does not abort the ingestion; the entry is skipped and logged.
func (s *Service) collectClassFacts(b *forest.Builder, ci *forest.CorrelationIndex, e archive.Entry, open func() (io.ReadCloser, error)) {
	data, err := readEntry(open)
	if err != nil {
		log.Printf("ingest: read %s: %v", e.Path, err)
		return
	}
	facts, err := s.parser.ParseClassMembers(data)
	if err != nil {
		log.Printf("ingest: skip %s: %v", e.Path, err)
		return
	}
	for _, fact := range facts {
		leaf := b.Insert(e.GroupLabel, fact.QualifiedName, fact.Size)
		ci.PutMethod(fact.QualifiedName, leaf.ID)
	}
}

func (s *Service) collectTemplateFact(templates *TemplateAdapter, e archive.Entry, open func() (io.ReadCloser, error)) {
	rc, err := open()
	if err != nil {
		log.Printf("ingest: read %s: %v", e.Path, err)
		return
	}
	defer rc.Close()
	size, err := s.analyzer.AnalyzeTemplate(rc)
	if err != nil {
		log.Printf("ingest: skip %s: %v", e.Path, err)
		return
	}
	templates.Add(e.Path, size)
}

// archiveUpload persists the raw artifact bytes for later re-scans. Failure
// here never fails the ingestion.
func (s *Service) archiveUpload(ctx context.Context, projectID, artifactName, artifactPath string) {
	if s.blobs == nil {
		return
	}
	file, err := os.Open(artifactPath)
	if err != nil {
		log.Printf("ingest %s: archive upload open failed: %v", projectID, err)
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		log.Printf("ingest %s: archive upload stat failed: %v", projectID, err)
		return
	}
	if err := s.blobs.Put(ctx, projectID, artifactName, file, info.Size()); err != nil {
		log.Printf("ingest %s: archive upload failed: %v", projectID, err)
	}
}

func readEntry(open func() (io.ReadCloser, error)) ([]byte, error) {
	rc, err := open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
