package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coverscope/internal/blobstore"
	"coverscope/internal/forest"
	"coverscope/internal/push"
	"coverscope/internal/registry"
	"coverscope/internal/scanjob"
)

const stubReport = `<?xml version="1.0"?>
<analysis>
  <dependency>
    <filePath>/lib/a.jar</filePath>
    <vulnerabilities><vulnerability><name>CVE-2023-0001</name></vulnerability></vulnerabilities>
  </dependency>
  <dependency>
    <filePath>/lib/b.jar</filePath>
  </dependency>
</analysis>`

type stubRunner struct{ report string }

func (r stubRunner) Run(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(r.report)), nil
}

type alwaysCommitted struct{}

func (alwaysCommitted) AwaitCommit(context.Context, string) bool { return true }

func committedProject(t *testing.T, reg *registry.Store) registry.State {
	t.Helper()
	state := reg.Allocate("demo")
	b := forest.NewBuilder()
	b.Insert("app.war", "com.app.Main.main()V", 1)
	f, err := b.Finish()
	require.NoError(t, err)
	require.True(t, reg.Commit(state.ProjectID, f))
	got, ok := reg.Get(state.ProjectID)
	require.True(t, ok)
	return got
}

func postRescan(h *ProjectHandler, projectID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+projectID+"/rescan", nil)
	rr := httptest.NewRecorder()
	h.HandleProjectByID(rr, req)
	return rr
}

func TestRescanRunsScanAgainstArchivedArtifact(t *testing.T) {
	reg := registry.NewMemory()
	state := committedProject(t, reg)

	blobs := blobstore.NewMemoryStore()
	artifact := []byte("archived artifact bytes")
	require.NoError(t, blobs.Put(context.Background(), state.ProjectID, "app.war", bytes.NewReader(artifact), int64(len(artifact))))

	orch := scanjob.NewOrchestrator(reg, push.NewHub(), stubRunner{report: stubReport}, alwaysCommitted{})
	h := NewProjectHandler(nil, reg, blobs, orch)

	rr := postRescan(h, state.ProjectID)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	require.Eventually(t, func() bool {
		got, ok := reg.Get(state.ProjectID)
		return ok && got.Scan.Phase == scanjob.PhaseFinished
	}, 5*time.Second, 10*time.Millisecond)

	got, ok := reg.Get(state.ProjectID)
	require.True(t, ok)
	assert.Equal(t, 2, got.Scan.Dependencies)
	assert.Equal(t, 1, got.Scan.Vulnerable)
}

func TestRescanRefusedWhileLoading(t *testing.T) {
	reg := registry.NewMemory()
	state := reg.Allocate("loading")

	orch := scanjob.NewOrchestrator(reg, push.NewHub(), stubRunner{report: stubReport}, alwaysCommitted{})
	h := NewProjectHandler(nil, reg, blobstore.NewMemoryStore(), orch)

	rr := postRescan(h, state.ProjectID)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRescanWithoutArchivedArtifact(t *testing.T) {
	reg := registry.NewMemory()
	state := committedProject(t, reg)

	orch := scanjob.NewOrchestrator(reg, push.NewHub(), stubRunner{report: stubReport}, alwaysCommitted{})
	h := NewProjectHandler(nil, reg, blobstore.NewMemoryStore(), orch)

	rr := postRescan(h, state.ProjectID)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRescanWhenScanningDisabled(t *testing.T) {
	reg := registry.NewMemory()
	state := committedProject(t, reg)

	h := NewProjectHandler(nil, reg, blobstore.NewMemoryStore(), nil)

	rr := postRescan(h, state.ProjectID)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRescanRejectsGet(t *testing.T) {
	reg := registry.NewMemory()
	state := committedProject(t, reg)

	h := NewProjectHandler(nil, reg, blobstore.NewMemoryStore(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/projects/"+state.ProjectID+"/rescan", nil)
	rr := httptest.NewRecorder()
	h.HandleProjectByID(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
