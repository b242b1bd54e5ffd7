package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesDataDir(t *testing.T) {
	workspace := t.TempDir()
	conn, err := Open(workspace)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if err := conn.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := os.Stat(filepath.Join(workspace, dataDir)); err != nil {
		t.Fatalf("data dir not created: %v", err)
	}
	if _, err := os.Stat(Path(workspace)); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
}

func TestPathDoesNotCreate(t *testing.T) {
	workspace := t.TempDir()
	want := filepath.Join(workspace, dataDir, dbName)
	if got := Path(workspace); got != want {
		t.Fatalf("Path = %q, want %q", got, want)
	}
	if _, err := os.Stat(filepath.Join(workspace, dataDir)); !os.IsNotExist(err) {
		t.Fatalf("Path should not create the data dir, stat err = %v", err)
	}
}
