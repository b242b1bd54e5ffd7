// Package db owns the on-disk workspace layout: a .problinx data
// directory next to the user's problinx.yml, holding the SQLite file
// shared by the CLI and the API server.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	dataDir = ".problinx"
	dbName  = "problinx.db"
)

// EnsureWorkspace creates the workspace data directory and returns its
// path.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	dir := filepath.Join(workspace, dataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace dir: %w", err)
	}
	return dir, nil
}

// Open opens the workspace database, creating the data directory when
// missing. WAL plus a busy timeout lets the CLI operate on a workspace
// while a server is running against the same file.
func Open(workspace string) (*sql.DB, error) {
	dir, err := EnsureWorkspace(workspace)
	if err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		filepath.Join(dir, dbName))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbName, err)
	}
	return conn, nil
}

// Path reports where the workspace database lives without creating
// anything.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, dataDir, dbName)
}
