package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"coverscope/internal/forest"
	"coverscope/internal/scanjob"
)

func (s *Store) ensureSchema() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS projects (
    project_id TEXT PRIMARY KEY,
    project_name TEXT NOT NULL DEFAULT 'Project',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    imported_at TIMESTAMP WITH TIME ZONE,
    scan_phase TEXT NOT NULL DEFAULT '',
    scan_dependencies INT NOT NULL DEFAULT 0,
    scan_vulnerable INT NOT NULL DEFAULT 0,
    forest JSONB
);
`)
	})
	return s.schemaErr
}

func (s *Store) getDB(projectID string) (State, bool) {
	if err := s.ensureSchema(); err != nil {
		return State{}, false
	}
	row := s.db.QueryRow(`
SELECT project_id, project_name, created_at, imported_at, scan_phase, scan_dependencies, scan_vulnerable, forest
FROM projects WHERE project_id=$1`, projectID)
	return s.scanState(row)
}

func (s *Store) putDB(state State) {
	if err := s.ensureSchema(); err != nil {
		log.Printf("registry: schema init failed: %v", err)
		return
	}
	forestJSON, err := marshalForest(state.Forest)
	if err != nil {
		log.Printf("registry: encode forest for %s failed: %v", state.ProjectID, err)
		return
	}
	_, err = s.db.Exec(`
INSERT INTO projects (project_id, project_name, created_at, imported_at, scan_phase, scan_dependencies, scan_vulnerable, forest)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (project_id)
DO UPDATE SET project_name=EXCLUDED.project_name, imported_at=EXCLUDED.imported_at,
    scan_phase=EXCLUDED.scan_phase, scan_dependencies=EXCLUDED.scan_dependencies,
    scan_vulnerable=EXCLUDED.scan_vulnerable, forest=EXCLUDED.forest
`, state.ProjectID, state.Name, state.CreatedAt, state.ImportedAt,
		string(state.Scan.Phase), state.Scan.Dependencies, state.Scan.Vulnerable, forestJSON)
	if err != nil {
		log.Printf("registry: persist %s failed: %v", state.ProjectID, err)
		return
	}
	if s.forestCache != nil {
		if state.Forest != nil {
			s.forestCache.Add(state.ProjectID, state.Forest)
		} else {
			s.forestCache.Remove(state.ProjectID)
		}
	}
}

func (s *Store) updateDB(projectID string, fn func(*State)) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.getDB(projectID)
	if !ok {
		return State{}, false
	}
	fn(&state)
	state = normalizeState(state)
	s.putDB(state)
	return state, true
}

func (s *Store) removeDB(projectID string) bool {
	if err := s.ensureSchema(); err != nil {
		return false
	}
	res, err := s.db.Exec(`DELETE FROM projects WHERE project_id=$1`, projectID)
	if err != nil {
		log.Printf("registry: remove %s failed: %v", projectID, err)
		return false
	}
	if s.forestCache != nil {
		s.forestCache.Remove(projectID)
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *Store) listDB() []State {
	if err := s.ensureSchema(); err != nil {
		return nil
	}
	rows, err := s.db.Query(`
SELECT project_id, project_name, created_at, imported_at, scan_phase, scan_dependencies, scan_vulnerable, forest
FROM projects ORDER BY created_at`)
	if err != nil {
		log.Printf("registry: list failed: %v", err)
		return nil
	}
	defer rows.Close()

	var out []State
	for rows.Next() {
		if state, ok := s.scanState(rows); ok {
			out = append(out, state)
		}
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanState(row rowScanner) (State, bool) {
	var (
		state      State
		importedAt sql.NullTime
		phase      string
		forestJSON []byte
	)
	err := row.Scan(&state.ProjectID, &state.Name, &state.CreatedAt, &importedAt,
		&phase, &state.Scan.Dependencies, &state.Scan.Vulnerable, &forestJSON)
	if err != nil {
		return State{}, false
	}
	if importedAt.Valid {
		t := importedAt.Time.UTC()
		state.ImportedAt = &t
	}
	state.Scan.Phase = scanjob.Phase(phase)
	state.Forest = s.decodeForest(state.ProjectID, forestJSON)
	return normalizeState(state), true
}

func (s *Store) decodeForest(projectID string, raw []byte) *forest.Forest {
	if len(raw) == 0 {
		return nil
	}
	if s.forestCache != nil {
		if cached, ok := s.forestCache.Get(projectID); ok {
			return cached
		}
	}
	var f forest.Forest
	if err := json.Unmarshal(raw, &f); err != nil {
		log.Printf("registry: decode forest for %s failed: %v", projectID, err)
		return nil
	}
	if s.forestCache != nil {
		s.forestCache.Add(projectID, &f)
	}
	return &f
}

func marshalForest(f *forest.Forest) (any, error) {
	if f == nil {
		return nil, nil
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
