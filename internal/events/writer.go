// Package events is the append-only activity log. Writes that are part
// of a business transaction use Append; best-effort telemetry from
// request handlers goes through Track, which never fails the caller.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// Event type names recorded by the engine and server.
const (
	TypeSignUp               = "sign_up"
	TypeLogin                = "login"
	TypeProblemPosted        = "problem_posted"
	TypeProblemViewed        = "problem_viewed"
	TypeProblemStatusChanged = "problem_status_changed"
	TypeProblemDeleted       = "problem_deleted"
	TypeSolutionSubmitted    = "solution_submitted"
	TypePartnerApplication   = "partner_application_submitted"
	TypePartnerApproved      = "partner_approved"
	TypeSearch               = "search"
	TypeChatbotMessage       = "chatbot_message"
	TypePasswordResetRequest = "password_reset_requested"
	TypeError                = "error"
)

type Writer struct {
	DB     *sql.DB
	Now    func() time.Time
	Logger *log.Logger
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

// Track records an event outside any transaction. Failures are logged
// and swallowed so instrumentation never breaks the operation it
// observes.
func (w Writer) Track(ctx context.Context, evtType, entityKind, entityID, actorID string, payload EventPayload) {
	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		w.logf("events: track %s: %v", evtType, err)
		return
	}
	if err := w.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload); err != nil {
		tx.Rollback()
		w.logf("events: track %s: %v", evtType, err)
		return
	}
	if err := tx.Commit(); err != nil {
		w.logf("events: track %s: %v", evtType, err)
	}
}

func (w Writer) logf(format string, args ...any) {
	if w.Logger != nil {
		w.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
