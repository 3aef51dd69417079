package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
// The tsvector is computed on the fly over key, title, and description; issue
// volumes are small enough that this does not need a stored column.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const issueFTS = `to_tsvector('english', i.key || ' ' || i.title || ' ' || coalesce(i.description, ''))`

// Search queries issues using plainto_tsquery and ts_rank, with ts_headline
// for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	where := issueFTS + " @@ " + tsQuery
	if q.FilterProjectID != "" {
		where += fmt.Sprintf(" AND i.project_id = $%d", argN)
		args = append(args, q.FilterProjectID)
		argN++
	}
	if q.FilterStatus != "" {
		where += fmt.Sprintf(" AND i.status = $%d", argN)
		args = append(args, q.FilterStatus)
		argN++
	}
	if q.FilterType != "" {
		where += fmt.Sprintf(" AND i.type = $%d", argN)
		args = append(args, q.FilterType)
		argN++
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM issues i WHERE %s", where)

	dataSQL := fmt.Sprintf(`
		SELECT i.id, i.key, i.title,
			ts_headline('english', coalesce(i.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			i.project_id, i.status, i.type
		FROM issues i
		WHERE %s
		ORDER BY ts_rank(%s, %s) DESC
		LIMIT %d OFFSET %d`,
		tsQuery, where, issueFTS, tsQuery, limit, offset)

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
		if err := rows.Scan(&r.ID, &r.Key, &r.Title, &r.Snippet, &r.ProjectID, &r.Status, &r.Type); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable issues for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]IssueRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, key, title, coalesce(description, ''), project_id, status, type,
			coalesce(assignee_id, ''), coalesce(sprint_id, '')
		FROM issues
	`)
	if err != nil {
		return nil, fmt.Errorf("load issues: %w", err)
	}
	defer rows.Close()

	records := make([]IssueRecord, 0)
	for rows.Next() {
		var rec IssueRecord
		if err := rows.Scan(&rec.ID, &rec.Key, &rec.Title, &rec.Description, &rec.ProjectID, &rec.Status, &rec.Type, &rec.AssigneeID, &rec.SprintID); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issues: %w", err)
	}

	return records, nil
}
