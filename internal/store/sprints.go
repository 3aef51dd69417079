package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) CreateSprint(ctx context.Context, sprint Sprint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sprints (id, project_id, name, goal, start_date, end_date, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sprint.ID, sprint.ProjectID, sprint.Name, sprint.Goal, sprint.StartDate, sprint.EndDate, sprint.Status, sprint.CreatedBy)
	if err != nil {
		return fmt.Errorf("create sprint: %w", err)
	}
	return nil
}

const sprintSelect = `
	SELECT id, project_id, name, goal, start_date, end_date, status, created_by, created_at, updated_at
	FROM sprints
`

func (s *PostgresStore) GetSprint(ctx context.Context, sprintID string) (Sprint, error) {
	var item Sprint
	err := s.db.QueryRowContext(ctx, sprintSelect+` WHERE id=$1`, sprintID).Scan(
		&item.ID,
		&item.ProjectID,
		&item.Name,
		&item.Goal,
		&item.StartDate,
		&item.EndDate,
		&item.Status,
		&item.CreatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Sprint{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListSprintsByProject(ctx context.Context, projectID string) ([]Sprint, error) {
	rows, err := s.db.QueryContext(ctx, sprintSelect+`
		WHERE project_id=$1
		ORDER BY start_date ASC, created_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list sprints: %w", err)
	}
	defer rows.Close()

	items := make([]Sprint, 0)
	for rows.Next() {
		var item Sprint
		if err := rows.Scan(
			&item.ID,
			&item.ProjectID,
			&item.Name,
			&item.Goal,
			&item.StartDate,
			&item.EndDate,
			&item.Status,
			&item.CreatedBy,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sprint: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sprints: %w", err)
	}
	return items, nil
}

// UpdateSprintDetails persists name/goal/dates. Status changes go through
// the transition methods below, never through this update.
func (s *PostgresStore) UpdateSprintDetails(ctx context.Context, sprint Sprint) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sprints
		SET name=$2, goal=$3, start_date=$4, end_date=$5, updated_at=NOW()
		WHERE id=$1
	`, sprint.ID, sprint.Name, sprint.Goal, sprint.StartDate, sprint.EndDate)
	if err != nil {
		return fmt.Errorf("update sprint: %w", err)
	}
	return nil
}

// ActivateSprint is the conditional write behind the single-active-sprint
// invariant: the row flips to active only while still in planning and only
// when no sibling sprint is active. Under concurrent starts the partial
// unique index on (project_id) WHERE status='active' keeps at most one
// winner. Returns false when the condition did not hold.
func (s *PostgresStore) ActivateSprint(ctx context.Context, sprint Sprint) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sprints
		SET status='active', start_date=$3, end_date=$4, updated_at=NOW()
		WHERE id=$1 AND status='planning'
		  AND NOT EXISTS (
			SELECT 1 FROM sprints WHERE project_id=$2 AND status='active'
		  )
	`, sprint.ID, sprint.ProjectID, sprint.StartDate, sprint.EndDate)
	if err != nil {
		return false, fmt.Errorf("activate sprint: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("activate sprint rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) CompleteSprint(ctx context.Context, sprintID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sprints SET status='completed', updated_at=NOW()
		WHERE id=$1 AND status='active'
	`, sprintID)
	if err != nil {
		return false, fmt.Errorf("complete sprint: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete sprint rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) CancelSprint(ctx context.Context, sprintID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sprints SET status='cancelled', updated_at=NOW()
		WHERE id=$1 AND status IN ('planning', 'active')
	`, sprintID)
	if err != nil {
		return false, fmt.Errorf("cancel sprint: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel sprint rows: %w", err)
	}
	return affected > 0, nil
}

// DeleteSprint removes a non-active sprint and cascades: every linked
// issue's sprint reference is cleared before the sprint row goes away, all
// in one transaction. Returns false when the sprint was active (delete
// refused) or already gone.
func (s *PostgresStore) DeleteSprint(ctx context.Context, sprintID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete sprint: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE issues SET sprint_id=NULL, updated_at=NOW() WHERE sprint_id=$1
	`, sprintID); err != nil {
		return false, fmt.Errorf("clear issue sprint refs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM sprint_issues WHERE sprint_id=$1
	`, sprintID); err != nil {
		return false, fmt.Errorf("clear sprint collection: %w", err)
	}
	result, err := tx.ExecContext(ctx, `
		DELETE FROM sprints WHERE id=$1 AND status <> 'active'
	`, sprintID)
	if err != nil {
		return false, fmt.Errorf("delete sprint: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete sprint rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete sprint: %w", err)
	}
	return true, nil
}

// AttachIssue links one issue to one sprint, updating both sides of the
// reference inside a single transaction: pull from any previous sprint's
// collection, append to the target collection, point the back-reference at
// the target.
func (s *PostgresStore) AttachIssue(ctx context.Context, sprintID, issueID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attach issue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM sprint_issues WHERE issue_id=$1 AND sprint_id <> $2
	`, issueID, sprintID); err != nil {
		return fmt.Errorf("pull issue from previous sprint: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sprint_issues (sprint_id, issue_id, position)
		SELECT $1, $2, COALESCE(MAX(position), 0) + 1
		FROM sprint_issues WHERE sprint_id=$1
		ON CONFLICT (issue_id) DO NOTHING
	`, sprintID, issueID); err != nil {
		return fmt.Errorf("append issue to sprint collection: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE issues SET sprint_id=$1, updated_at=NOW() WHERE id=$2
	`, sprintID, issueID); err != nil {
		return fmt.Errorf("set issue sprint ref: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attach issue: %w", err)
	}
	return nil
}

// DetachIssue is the inverse of AttachIssue. When resetToBacklog is set the
// issue's status drops back to backlog along with the unlink.
func (s *PostgresStore) DetachIssue(ctx context.Context, sprintID, issueID string, resetToBacklog bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin detach issue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM sprint_issues WHERE sprint_id=$1 AND issue_id=$2
	`, sprintID, issueID); err != nil {
		return fmt.Errorf("pull issue from sprint collection: %w", err)
	}
	if resetToBacklog {
		if _, err := tx.ExecContext(ctx, `
			UPDATE issues SET sprint_id=NULL, status='backlog', updated_at=NOW() WHERE id=$1
		`, issueID); err != nil {
			return fmt.Errorf("clear issue sprint ref: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			UPDATE issues SET sprint_id=NULL, updated_at=NOW() WHERE id=$1
		`, issueID); err != nil {
			return fmt.Errorf("clear issue sprint ref: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit detach issue: %w", err)
	}
	return nil
}

// ListSprintIssues returns the sprint's collection in its stored order.
func (s *PostgresStore) ListSprintIssues(ctx context.Context, sprintID string) ([]Issue, error) {
	rows, err := s.db.QueryContext(ctx, issueSelect+`
		JOIN sprint_issues si ON si.issue_id = i.id
		WHERE si.sprint_id=$1
		ORDER BY si.position ASC
	`, sprintID)
	if err != nil {
		return nil, fmt.Errorf("list sprint issues: %w", err)
	}
	defer rows.Close()
	return collectIssues(rows)
}

// FindSprintIssueMismatches reports every issue whose sprint pointer
// disagrees with the sprint_issues collection, in either direction.
func (s *PostgresStore) FindSprintIssueMismatches(ctx context.Context) ([]SprintIssueMismatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.sprint_id, si.sprint_id
		FROM issues i
		LEFT JOIN sprint_issues si ON si.issue_id = i.id
		WHERE i.sprint_id IS DISTINCT FROM si.sprint_id
		ORDER BY i.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("find sprint issue mismatches: %w", err)
	}
	defer rows.Close()

	items := make([]SprintIssueMismatch, 0)
	for rows.Next() {
		var item SprintIssueMismatch
		if err := rows.Scan(&item.IssueID, &item.IssueSprintID, &item.LinkedSprintID); err != nil {
			return nil, fmt.Errorf("scan sprint issue mismatch: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sprint issue mismatches: %w", err)
	}
	return items, nil
}

// HealSprintIssues repairs every mismatch toward the collection, which is
// authoritative: pointers are rewritten to match sprint_issues rows, and
// pointers with no backing row are cleared. Returns the number of issues
// touched.
func (s *PostgresStore) HealSprintIssues(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE issues i
		SET sprint_id = si.sprint_id, updated_at=NOW()
		FROM sprint_issues si
		WHERE si.issue_id = i.id AND i.sprint_id IS DISTINCT FROM si.sprint_id
	`)
	if err != nil {
		return 0, fmt.Errorf("heal issue sprint refs: %w", err)
	}
	repointed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("heal issue sprint ref rows: %w", err)
	}

	result, err = s.db.ExecContext(ctx, `
		UPDATE issues SET sprint_id=NULL, updated_at=NOW()
		WHERE sprint_id IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM sprint_issues si WHERE si.issue_id = issues.id)
	`)
	if err != nil {
		return 0, fmt.Errorf("clear orphaned sprint refs: %w", err)
	}
	cleared, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear orphaned sprint ref rows: %w", err)
	}
	return int(repointed + cleared), nil
}
