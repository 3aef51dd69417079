package store

import (
	"context"
	"database/sql"
	"fmt"
)

const issueSelect = `
	SELECT i.id, i.project_id, i.key, i.title, i.description, i.status, i.type,
	       i.story_points, i.assignee_id, i.reporter_id, i.sprint_id, i.created_at, i.updated_at
	FROM issues i
`

// CreateIssue inserts the issue with a project-scoped key of the form
// {projectKey}-{n}, where n is one past the highest numeric suffix among
// the project's existing keys. The sequence read and the insert share a
// transaction; the unique index on key backstops concurrent creators.
func (s *PostgresStore) CreateIssue(ctx context.Context, issue Issue) (Issue, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Issue{}, fmt.Errorf("begin create issue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var projectKey string
	if err := tx.QueryRowContext(ctx, `SELECT key FROM projects WHERE id=$1`, issue.ProjectID).Scan(&projectKey); err != nil {
		return Issue{}, err
	}

	var next int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX((substring(key from '[0-9]+$'))::int), 0) + 1
		FROM issues WHERE project_id=$1
	`, issue.ProjectID).Scan(&next); err != nil {
		return Issue{}, fmt.Errorf("next issue sequence: %w", err)
	}
	issue.Key = fmt.Sprintf("%s-%d", projectKey, next)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO issues (id, project_id, key, title, description, status, type, story_points, assignee_id, reporter_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, issue.ID, issue.ProjectID, issue.Key, issue.Title, issue.Description, issue.Status, issue.Type, issue.StoryPoints, issue.AssigneeID, issue.ReporterID); err != nil {
		return Issue{}, fmt.Errorf("insert issue: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Issue{}, fmt.Errorf("commit create issue: %w", err)
	}
	return issue, nil
}

func (s *PostgresStore) GetIssue(ctx context.Context, issueID string) (Issue, error) {
	row := s.db.QueryRowContext(ctx, issueSelect+` WHERE i.id=$1`, issueID)
	var item Issue
	if err := scanIssue(row.Scan, &item); err != nil {
		return Issue{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListIssuesByProject(ctx context.Context, projectID string) ([]Issue, error) {
	rows, err := s.db.QueryContext(ctx, issueSelect+`
		WHERE i.project_id=$1
		ORDER BY i.created_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()
	return collectIssues(rows)
}

// UpdateIssue persists the mutable issue fields. The sprint reference is
// deliberately absent: it changes only through AttachIssue/DetachIssue.
func (s *PostgresStore) UpdateIssue(ctx context.Context, issue Issue) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE issues
		SET title=$2, description=$3, status=$4, type=$5, story_points=$6, assignee_id=$7, updated_at=NOW()
		WHERE id=$1
	`, issue.ID, issue.Title, issue.Description, issue.Status, issue.Type, issue.StoryPoints, issue.AssigneeID)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	return nil
}

// DeleteIssue removes the issue and its collection row together.
func (s *PostgresStore) DeleteIssue(ctx context.Context, issueID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete issue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sprint_issues WHERE issue_id=$1`, issueID); err != nil {
		return fmt.Errorf("clear issue collection row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM issues WHERE id=$1`, issueID); err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete issue: %w", err)
	}
	return nil
}

func scanIssue(scan func(...any) error, item *Issue) error {
	return scan(
		&item.ID,
		&item.ProjectID,
		&item.Key,
		&item.Title,
		&item.Description,
		&item.Status,
		&item.Type,
		&item.StoryPoints,
		&item.AssigneeID,
		&item.ReporterID,
		&item.SprintID,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
}

func collectIssues(rows *sql.Rows) ([]Issue, error) {
	items := make([]Issue, 0)
	for rows.Next() {
		var item Issue
		if err := scanIssue(rows.Scan, &item); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issues: %w", err)
	}
	return items, nil
}
