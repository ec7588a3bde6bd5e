package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"qualflow/internal/domain"
	"qualflow/internal/events"
)

type Repo struct {
	DB     *sql.DB
	Events events.Writer
}

var (
	ErrNotFound = errors.New("not found")
	// ErrVersionMismatch means the stored version moved since the caller read it.
	ErrVersionMismatch = errors.New("version mismatch")
)

// EventRecord is the audit row written alongside a QDF change.
// EventRecord is the event written with a Change. A zero At falls back
// to the writer's clock.
type EventRecord struct {
	Type    string
	ActorID string
	Payload events.Payload
	At      time.Time
}

// Change is one persisted QDF write. ExpectedVersion 0 inserts a new row;
// anything else is a compare-and-swap against the stored version.
type Change struct {
	QDF             domain.QDF
	ExpectedVersion int64
	Event           EventRecord
	Publish         *domain.Qualification
}

const qdfColumns = `version,data_json`

func scanQDF(row interface{ Scan(...any) error }) (domain.QDF, error) {
	var (
		q       domain.QDF
		version int64
		data    string
	)
	if err := row.Scan(&version, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return q, ErrNotFound
		}
		return q, err
	}
	if err := json.Unmarshal([]byte(data), &q); err != nil {
		return q, fmt.Errorf("decode qdf: %w", err)
	}
	q.Version = version
	return q, nil
}

func (r Repo) GetQDF(ctx context.Context, id string) (domain.QDF, error) {
	return scanQDF(r.DB.QueryRowContext(ctx, `SELECT `+qdfColumns+` FROM qdfs WHERE id=?`, id))
}

// SaveQDF writes the QDF, its event and any registry entry in one
// transaction and returns the QDF carrying its new version.
func (r Repo) SaveQDF(ctx context.Context, c Change) (domain.QDF, error) {
	q := c.QDF.Clone()
	if q.ID == "" {
		return q, errors.New("qdf id required")
	}
	q.Version = c.ExpectedVersion + 1
	data, err := json.Marshal(q)
	if err != nil {
		return q, fmt.Errorf("encode qdf: %w", err)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return q, err
	}
	defer tx.Rollback()

	if c.ExpectedVersion == 0 {
		_, err = tx.ExecContext(ctx, `INSERT INTO qdfs(id,version,status,title,sector,level,submitted_by,submission_date,last_updated,data_json) VALUES (?,?,?,?,?,?,?,?,?,?)`,
			q.ID, q.Version, q.Status, q.Title, nullable(q.Sector), q.Level, nullable(q.SubmittedBy), nullable(q.SubmissionDate), q.LastUpdated, string(data))
		if err != nil {
			if isUniqueViolation(err) {
				return q, ErrVersionMismatch
			}
			return q, err
		}
	} else {
		res, err := tx.ExecContext(ctx, `UPDATE qdfs SET version=version+1, status=?, title=?, sector=?, level=?, submitted_by=?, submission_date=?, last_updated=?, data_json=? WHERE id=? AND version=?`,
			q.Status, q.Title, nullable(q.Sector), q.Level, nullable(q.SubmittedBy), nullable(q.SubmissionDate), q.LastUpdated, string(data), q.ID, c.ExpectedVersion)
		if err != nil {
			return q, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var exists int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM qdfs WHERE id=?`, q.ID).Scan(&exists); err != nil {
				return q, err
			}
			if exists == 0 {
				return q, ErrNotFound
			}
			return q, ErrVersionMismatch
		}
	}

	if c.Publish != nil {
		if err := r.insertQualification(ctx, tx, *c.Publish); err != nil {
			return q, fmt.Errorf("publish qualification: %w", err)
		}
	}
	if c.Event.Type != "" {
		w := r.Events
		if !c.Event.At.IsZero() {
			w = w.At(c.Event.At)
		}
		if err := w.Append(ctx, tx, c.Event.Type, events.KindQDF, q.ID, c.Event.ActorID, c.Event.Payload); err != nil {
			return q, err
		}
	}
	if err := tx.Commit(); err != nil {
		return q, err
	}
	return q, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

type QDFFilters struct {
	Status      string
	Sector      string
	SubmittedBy string
	// Query matches titles case-insensitively as a substring.
	Query string
	Limit int
}

func (r Repo) ListQDFs(ctx context.Context, f QDFFilters) ([]domain.QDF, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Sector != "" {
		clauses = append(clauses, "sector=?")
		args = append(args, f.Sector)
	}
	if f.SubmittedBy != "" {
		clauses = append(clauses, "submitted_by=?")
		args = append(args, f.SubmittedBy)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		clauses = append(clauses, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(q)+"%")
	}
	query := `SELECT ` + qdfColumns + ` FROM qdfs WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY last_updated DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.QDF
	for rows.Next() {
		q, err := scanQDF(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

// Titles returns every in-flight QDF title and every registry title, the
// corpus for the duplicate-title check.
func (r Repo) Titles(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT title FROM qdfs UNION ALL SELECT title FROM qualifications`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
