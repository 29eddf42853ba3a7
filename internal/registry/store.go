package registry

import (
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"coverscope/internal/forest"
	"coverscope/internal/scanjob"
)

// Store is the project registry: a mapping from project id to handle state.
// It keeps an in-memory map by default and dispatches to Postgres when
// constructed with a DSN. Handle allocation is synchronous and cheap; the
// heavy ingestion work happens elsewhere and commits through Update.
type Store struct {
	db *sql.DB

	mu   sync.RWMutex
	byID map[string]State
	ids  *uidGenerator

	schemaOnce sync.Once
	schemaErr  error

	forestCache *lru.Cache[string, *forest.Forest]
}

func NewMemory() *Store {
	return &Store{
		byID: make(map[string]State),
		ids:  newUIDGenerator(),
	}
}

// NewPostgres opens a Postgres-backed registry via the pgx stdlib driver.
// Committed forests read from the database are held in an LRU cache.
func NewPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	cache, err := lru.New[string, *forest.Forest](128)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{
		db:          db,
		ids:         newUIDGenerator(),
		forestCache: cache,
	}
	// Reserve identifiers of previously persisted projects so a restarted
	// process never re-issues one.
	for _, state := range s.listDB() {
		s.ids.reserve(state.ProjectID)
	}
	return s, nil
}

// Allocate creates a fresh project handle and returns it immediately.
// Concurrent calls always produce distinct identifiers.
func (s *Store) Allocate(name string) State {
	s.mu.Lock()
	id := s.ids.generate(name)
	s.mu.Unlock()

	state := normalizeState(State{
		ProjectID: id,
		Name:      name,
		CreatedAt: time.Now(),
	})
	s.Put(state)
	return state
}

func (s *Store) Get(projectID string) (State, bool) {
	if s == nil {
		return State{}, false
	}
	if s.db != nil {
		return s.getDB(projectID)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.byID[projectID]
	return state, ok
}

func (s *Store) Put(state State) {
	if s == nil {
		return
	}
	state = normalizeState(state)
	if s.db != nil {
		s.putDB(state)
		return
	}
	s.mu.Lock()
	s.byID[state.ProjectID] = state
	s.mu.Unlock()
}

// Update applies fn to the project's state under the store lock and reports
// whether the project existed.
func (s *Store) Update(projectID string, fn func(*State)) (State, bool) {
	if s == nil {
		return State{}, false
	}
	if s.db != nil {
		return s.updateDB(projectID, fn)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.byID[projectID]
	if !ok {
		return State{}, false
	}
	fn(&state)
	state = normalizeState(state)
	s.byID[projectID] = state
	return state, true
}

// Remove deletes the handle; used by the loader's rollback path. Observers
// treat the resulting "not found" as the failure signal.
func (s *Store) Remove(projectID string) bool {
	if s == nil {
		return false
	}
	if s.db != nil {
		return s.removeDB(projectID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[projectID]; !ok {
		return false
	}
	delete(s.byID, projectID)
	return true
}

func (s *Store) List() []State {
	if s == nil {
		return nil
	}
	if s.db != nil {
		return s.listDB()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]State, 0, len(s.byID))
	for _, state := range s.byID {
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Commit publishes the finished forest and stamps the import time. It is
// called exactly once per handle, from the loader's success path.
func (s *Store) Commit(projectID string, f *forest.Forest) bool {
	now := time.Now()
	_, ok := s.Update(projectID, func(state *State) {
		state.Forest = f
		state.ImportedAt = &now
	})
	return ok
}

// SetScanStatus records the scan job status. A false return means the
// project was rolled back and the update must be discarded.
func (s *Store) SetScanStatus(projectID string, st scanjob.Status) bool {
	_, ok := s.Update(projectID, func(state *State) {
		state.Scan = st
	})
	return ok
}

// UpdateForest applies fn to the committed forest, if the project still
// exists and has one. States handed out by Get alias the stored forest, so
// the mutation happens on a clone and is published by swapping the pointer;
// concurrent readers keep encoding their unchanged snapshot.
func (s *Store) UpdateForest(projectID string, fn func(*forest.Forest)) bool {
	updated := false
	_, ok := s.Update(projectID, func(state *State) {
		if state.Forest != nil {
			next := state.Forest.Clone()
			fn(next)
			state.Forest = next
			updated = true
		}
	})
	return ok && updated
}
