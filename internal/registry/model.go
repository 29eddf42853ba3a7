package registry

import (
	"strings"
	"time"

	"coverscope/internal/forest"
	"coverscope/internal/scanjob"
)

// State is the registry view of one project handle. The forest is nil while
// the loader is still running; it is set exactly once at commit together
// with the import timestamp. A rolled-back project is removed entirely, so
// readers never observe a partial forest.
type State struct {
	ProjectID  string         `json:"project_id"`
	Name       string         `json:"name"`
	CreatedAt  time.Time      `json:"created_at"`
	ImportedAt *time.Time     `json:"imported_at,omitempty"`
	Scan       scanjob.Status `json:"scan"`
	Forest     *forest.Forest `json:"forest,omitempty"`
}

// Committed reports whether the loader has finished and published the forest.
func (s State) Committed() bool {
	return s.ImportedAt != nil && s.Forest != nil
}

func normalizeState(state State) State {
	state.ProjectID = strings.TrimSpace(state.ProjectID)
	state.Name = strings.TrimSpace(state.Name)
	if state.Name == "" {
		state.Name = "Project"
	}
	return state
}
