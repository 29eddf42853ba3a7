package handler

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"coverscope/internal/archive"
	"coverscope/internal/blobstore"
	"coverscope/internal/forest"
	"coverscope/internal/ingest"
	"coverscope/internal/registry"
	"coverscope/internal/scanjob"
)

const maxUploadMemory = 32 << 20

// ProjectHandler serves the project ingestion endpoints.
type ProjectHandler struct {
	ingest   *ingest.Service
	registry *registry.Store
	blobs    blobstore.Store
	scans    *scanjob.Orchestrator // nil when scanning is disabled
}

func NewProjectHandler(svc *ingest.Service, reg *registry.Store, blobs blobstore.Store, scans *scanjob.Orchestrator) *ProjectHandler {
	return &ProjectHandler{ingest: svc, registry: reg, blobs: blobs, scans: scans}
}

type projectResponse struct {
	ProjectID  string         `json:"projectId"`
	Name       string         `json:"name"`
	CreatedAt  time.Time      `json:"createdAt"`
	ImportedAt *time.Time     `json:"importedAt,omitempty"`
	Loading    bool           `json:"loading"`
	Scan       scanjob.Status `json:"scan"`
}

func toProjectResponse(state registry.State) projectResponse {
	return projectResponse{
		ProjectID:  state.ProjectID,
		Name:       state.Name,
		CreatedAt:  state.CreatedAt,
		ImportedAt: state.ImportedAt,
		Loading:    !state.Committed(),
		Scan:       state.Scan,
	}
}

func (h *ProjectHandler) HandleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleUpload(w, r)
	case http.MethodGet:
		h.handleList(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleUpload saves the uploaded archive to a temp file, gates it with the
// quick-check predicates and starts the ingestion. Only the immediately
// allocated project id is returned; failures after this point surface as the
// project disappearing from the registry.
func (h *ProjectHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}
	src, header, err := r.FormFile("artifact")
	if err != nil {
		http.Error(w, "artifact file is required", http.StatusBadRequest)
		return
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "coverscope-upload-*")
	if err != nil {
		http.Error(w, "failed to buffer upload", http.StatusInternalServerError)
		return
	}
	size, err := io.Copy(tmp, src)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		http.Error(w, "failed to buffer upload", http.StatusInternalServerError)
		return
	}

	discard := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	if archive.LooksLikeExportedProject(tmp, size) {
		discard()
		http.Error(w, "archive is a project export, not a binary artifact", http.StatusBadRequest)
		return
	}
	if !archive.LooksLikeArtifact(tmp, size) {
		discard()
		http.Error(w, "archive contains no compiled classes", http.StatusBadRequest)
		return
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		http.Error(w, "failed to buffer upload", http.StatusInternalServerError)
		return
	}

	artifactName := filepath.Base(header.Filename)
	projectName := strings.TrimSpace(r.FormValue("name"))
	if projectName == "" {
		projectName = artifactName
	}

	tmpPath := tmp.Name()
	projectID, err := h.ingest.Ingest(projectName, artifactName, tmpPath, func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			log.Printf("upload cleanup failed for %s: %v", tmpPath, err)
		}
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"projectId": projectID})
}

func (h *ProjectHandler) handleList(w http.ResponseWriter, _ *http.Request) {
	states := h.registry.List()
	out := make([]projectResponse, 0, len(states))
	for _, state := range states {
		out = append(out, toProjectResponse(state))
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": out})
}

// HandleProjectByID serves /api/projects/{id}, /api/projects/{id}/forest and
// POST /api/projects/{id}/rescan.
func (h *ProjectHandler) HandleProjectByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	id, sub, _ := strings.Cut(rest, "/")
	id = strings.TrimSpace(id)
	if id == "" {
		http.Error(w, "project id is required", http.StatusBadRequest)
		return
	}
	state, ok := h.registry.Get(id)
	if !ok {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}
	if sub == "rescan" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleRescan(w, r, state)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch sub {
	case "":
		writeJSON(w, http.StatusOK, toProjectResponse(state))
	case "forest":
		h.writeForest(w, state)
	default:
		http.Error(w, "unknown resource", http.StatusNotFound)
	}
}

// handleRescan re-fetches the archived artifact bytes and runs the scan job
// again against them. The original temp upload is long gone by now, so the
// bytes come from the blob store.
func (h *ProjectHandler) handleRescan(w http.ResponseWriter, r *http.Request, state registry.State) {
	if h.scans == nil || h.blobs == nil {
		http.Error(w, "scanning is not enabled", http.StatusServiceUnavailable)
		return
	}
	if !state.Committed() {
		http.Error(w, "project is still loading", http.StatusConflict)
		return
	}
	names, err := h.blobs.List(r.Context(), state.ProjectID)
	if err != nil || len(names) == 0 {
		http.Error(w, "no archived artifact for project", http.StatusNotFound)
		return
	}
	data, err := h.blobs.Get(r.Context(), state.ProjectID, names[0])
	if err != nil {
		http.Error(w, "no archived artifact for project", http.StatusNotFound)
		return
	}
	tmp, err := os.CreateTemp("", "coverscope-rescan-*")
	if err != nil {
		http.Error(w, "failed to stage artifact", http.StatusInternalServerError)
		return
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		http.Error(w, "failed to stage artifact", http.StatusInternalServerError)
		return
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		http.Error(w, "failed to stage artifact", http.StatusInternalServerError)
		return
	}

	if !h.scans.Requeue(state.ProjectID) {
		_ = os.Remove(tmpPath)
		http.Error(w, "a scan is already in progress", http.StatusConflict)
		return
	}
	go h.scans.Execute(context.Background(), state.ProjectID, tmpPath, func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			log.Printf("rescan cleanup failed for %s: %v", tmpPath, err)
		}
	})

	writeJSON(w, http.StatusAccepted, map[string]any{"projectId": state.ProjectID})
}

func (h *ProjectHandler) writeForest(w http.ResponseWriter, state registry.State) {
	if !state.Committed() {
		http.Error(w, "project is still loading", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ProjectID string         `json:"projectId"`
		Forest    *forest.Forest `json:"forest"`
	}{state.ProjectID, state.Forest})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
