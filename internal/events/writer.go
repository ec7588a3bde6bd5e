// Package events appends rows to the audit log. Writes always happen inside
// the caller's transaction so an event exists iff its change committed.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Entity kinds.
const (
	KindQDF           = "qdf"
	KindQualification = "qualification"
	KindActor         = "actor"
	KindSettings      = "settings"
)

type Writer struct {
	Now func() time.Time
}

type Payload map[string]any

// TransitionType names the event recorded for a workflow action.
func TransitionType(action string) string {
	return "qdf." + action
}

// EditType names the event recorded for a section edit.
func EditType(section string) string {
	return "qdf." + section + ".updated"
}

// At returns a writer that stamps every event with t.
func (w Writer) At(t time.Time) Writer {
	return Writer{Now: func() time.Time { return t }}
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload Payload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
