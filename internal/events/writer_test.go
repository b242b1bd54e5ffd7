package events_test

import (
	"bytes"
	"context"
	"database/sql"
	"log"
	"strings"
	"testing"
	"time"

	"problinx/internal/db"
	"problinx/internal/events"
	"problinx/internal/migrate"
)

func newEventsDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestTrackWritesEvent(t *testing.T) {
	conn := newEventsDB(t)
	defer conn.Close()
	w := events.Writer{
		DB:  conn,
		Now: func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	}

	w.Track(context.Background(), events.TypeSearch, "board", "", "anonymous", events.EventPayload{"query": "etl"})

	var count int
	var payload string
	err := conn.QueryRow(`SELECT COUNT(*), MAX(payload_json) FROM events WHERE type=?`, events.TypeSearch).Scan(&count, &payload)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one event, got %d", count)
	}
	if !strings.Contains(payload, `"query":"etl"`) {
		t.Fatalf("unexpected payload: %s", payload)
	}
}

func TestTrackSwallowsFailure(t *testing.T) {
	conn := newEventsDB(t)
	conn.Close() // every write from here on fails

	var buf bytes.Buffer
	w := events.Writer{
		DB:     conn,
		Logger: log.New(&buf, "", 0),
	}

	// Must neither panic nor surface the failure.
	w.Track(context.Background(), events.TypeLogin, "user", "u1", "u1", nil)

	if !strings.Contains(buf.String(), "track") {
		t.Fatalf("expected the failure to be logged, got %q", buf.String())
	}
}
