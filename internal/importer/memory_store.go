package importer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"coverscope/internal/forest"
)

// MemoryStore keeps imported trees and correlation maps in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	nodes      map[string][]FlatNode
	signatures map[string]map[string]int
	templates  map[string]map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:      make(map[string][]FlatNode),
		signatures: make(map[string]map[string]int),
		templates:  make(map[string]map[string]int),
	}
}

func (s *MemoryStore) ImportTree(_ context.Context, projectID string, f *forest.Forest) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return fmt.Errorf("project_id is required")
	}
	rows := Flatten(f)
	s.mu.Lock()
	s.nodes[projectID] = rows
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) MapMethodSignatures(_ context.Context, projectID string, signatures map[string]int) error {
	return s.putMap(projectID, s.signatures, signatures)
}

func (s *MemoryStore) MapTemplatePaths(_ context.Context, projectID string, paths map[string]int) error {
	return s.putMap(projectID, s.templates, paths)
}

func (s *MemoryStore) putMap(projectID string, dst map[string]map[string]int, entries map[string]int) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return fmt.Errorf("project_id is required")
	}
	copied := make(map[string]int, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	s.mu.Lock()
	dst[projectID] = copied
	s.mu.Unlock()
	return nil
}

// Nodes returns the persisted rows for a project.
func (s *MemoryStore) Nodes(projectID string) []FlatNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]FlatNode(nil), s.nodes[projectID]...)
}

// MethodSignatures returns the persisted signature map for a project.
func (s *MemoryStore) MethodSignatures(projectID string) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.signatures[projectID]))
	for k, v := range s.signatures[projectID] {
		out[k] = v
	}
	return out
}

// TemplatePaths returns the persisted template map for a project.
func (s *MemoryStore) TemplatePaths(projectID string) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.templates[projectID]))
	for k, v := range s.templates[projectID] {
		out[k] = v
	}
	return out
}
