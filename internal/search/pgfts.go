package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// ftsPredicate builds the WHERE clause and its arguments. Non-admin actors
// only match files routed to them or uploaded by them.
func ftsPredicate(q Query) (string, []any) {
	where := "f.fts @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if !q.IsAdmin {
		where += " AND (f.assigned_to = $2 OR f.uploaded_by = $2)"
		args = append(args, q.ActorID)
	}
	return where, args
}

// Search queries the files.fts column with plainto_tsquery and ts_rank,
// using ts_headline on remarks for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit, offset := normalizePage(q)
	where, args := ftsPredicate(q)

	countSQL := "SELECT count(*) FROM files f WHERE " + where

	dataSQL := fmt.Sprintf(`
		SELECT f.id, f.file_number,
			ts_headline('english', coalesce(f.remarks, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			f.current_status
		FROM files f
		WHERE %s
		ORDER BY ts_rank(f.fts, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.FileNumber, &r.Snippet, &r.CurrentStatus); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every file record for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]FileRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, file_number, remarks, current_status, assigned_to, uploaded_by
		FROM files
	`)
	if err != nil {
		return nil, fmt.Errorf("load files: %w", err)
	}
	defer rows.Close()

	records := make([]FileRecord, 0)
	for rows.Next() {
		var f FileRecord
		if err := rows.Scan(&f.ID, &f.FileNumber, &f.Remarks, &f.CurrentStatus, &f.AssignedTo, &f.UploadedBy); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		records = append(records, f)
	}
	return records, rows.Err()
}
