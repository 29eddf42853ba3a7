package importer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"coverscope/internal/forest"
)

// PostgresStore persists tree nodes and correlation maps in Postgres.
type PostgresStore struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgresStore dials a DSN via the pgx stdlib driver.
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) ensureSchema() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS tree_nodes (
    project_id TEXT NOT NULL,
    node_id INT NOT NULL,
    parent_id INT NOT NULL,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    size BIGINT NOT NULL,
    traced BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (project_id, node_id)
);
CREATE TABLE IF NOT EXISTS method_signatures (
    project_id TEXT NOT NULL,
    signature TEXT NOT NULL,
    node_id INT NOT NULL,
    PRIMARY KEY (project_id, signature)
);
CREATE TABLE IF NOT EXISTS template_paths (
    project_id TEXT NOT NULL,
    path TEXT NOT NULL,
    node_id INT NOT NULL,
    PRIMARY KEY (project_id, path)
);
CREATE INDEX IF NOT EXISTS idx_tree_nodes_parent ON tree_nodes(project_id, parent_id);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) ImportTree(ctx context.Context, projectID string, f *forest.Forest) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if err := s.ensureSchema(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tree_nodes WHERE project_id=$1`, projectID); err != nil {
		return fmt.Errorf("clear nodes: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO tree_nodes (project_id, node_id, parent_id, name, kind, size, traced)
VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range Flatten(f) {
		if _, err := stmt.ExecContext(ctx, projectID, row.ID, row.ParentID, row.Name, string(row.Kind), row.Size, row.Traced); err != nil {
			return fmt.Errorf("insert node %d: %w", row.ID, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) MapMethodSignatures(ctx context.Context, projectID string, signatures map[string]int) error {
	return s.importMap(ctx, projectID, "method_signatures", "signature", signatures)
}

func (s *PostgresStore) MapTemplatePaths(ctx context.Context, projectID string, paths map[string]int) error {
	return s.importMap(ctx, projectID, "template_paths", "path", paths)
}

func (s *PostgresStore) importMap(ctx context.Context, projectID, table, keyColumn string, entries map[string]int) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if err := s.ensureSchema(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin map import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE project_id=$1`, table), projectID); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (project_id, %s, node_id) VALUES ($1, $2, $3)`, table, keyColumn))
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", table, err)
	}
	defer stmt.Close()

	for key, nodeID := range entries {
		if _, err := stmt.ExecContext(ctx, projectID, key, nodeID); err != nil {
			return fmt.Errorf("insert %s entry: %w", table, err)
		}
	}
	return tx.Commit()
}
