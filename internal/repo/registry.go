package repo

import (
	"context"
	"database/sql"
	"strings"

	"qualflow/internal/domain"
	"qualflow/internal/events"
)

func (r Repo) insertQualification(ctx context.Context, tx *sql.Tx, q domain.Qualification) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO qualifications(id,qdf_id,title,sector,nvqf_level,approval_year,version) VALUES (?,?,?,?,?,?,?)`,
		q.ID, nullable(q.QDFID), q.Title, nullable(q.Sector), q.NVQFLevel, q.ApprovalYear, q.Version)
	return err
}

// InsertQualification adds a registry entry that did not come through the
// workflow, e.g. an imported legacy qualification.
func (r Repo) InsertQualification(ctx context.Context, q domain.Qualification) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.insertQualification(ctx, tx, q); err != nil {
		return err
	}
	if err := r.Events.Append(ctx, tx, "qualification.imported", events.KindQualification, q.ID, "system", nil); err != nil {
		return err
	}
	return tx.Commit()
}

type RegistryFilters struct {
	Sector string
	Query  string
}

func (r Repo) ListRegistry(ctx context.Context, f RegistryFilters) ([]domain.Qualification, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Sector != "" {
		clauses = append(clauses, "sector=?")
		args = append(args, f.Sector)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		clauses = append(clauses, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(q)+"%")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,COALESCE(qdf_id,''),title,COALESCE(sector,''),COALESCE(nvqf_level,0),COALESCE(approval_year,0),version FROM qualifications WHERE `+
		strings.Join(clauses, " AND ")+` ORDER BY approval_year DESC, title`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Qualification
	for rows.Next() {
		var q domain.Qualification
		if err := rows.Scan(&q.ID, &q.QDFID, &q.Title, &q.Sector, &q.NVQFLevel, &q.ApprovalYear, &q.Version); err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

func (r Repo) GetQualificationByQDF(ctx context.Context, qdfID string) (domain.Qualification, error) {
	var q domain.Qualification
	err := r.DB.QueryRowContext(ctx, `SELECT id,COALESCE(qdf_id,''),title,COALESCE(sector,''),COALESCE(nvqf_level,0),COALESCE(approval_year,0),version FROM qualifications WHERE qdf_id=?`, qdfID).
		Scan(&q.ID, &q.QDFID, &q.Title, &q.Sector, &q.NVQFLevel, &q.ApprovalYear, &q.Version)
	if err == sql.ErrNoRows {
		return q, ErrNotFound
	}
	return q, err
}
