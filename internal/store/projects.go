package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateProject inserts the project and its creator's manager membership in
// one transaction so a project never exists without a manager.
func (s *PostgresStore) CreateProject(ctx context.Context, project Project) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create project: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, title, key, manager_id)
		VALUES ($1, $2, UPPER($3), $4)
	`, project.ID, project.Title, project.Key, project.ManagerID); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role)
		VALUES ($1, $2, 'manager')
	`, project.ID, project.ManagerID); err != nil {
		return fmt.Errorf("insert manager membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var item Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, key, manager_id, created_at, updated_at
		FROM projects
		WHERE id=$1
	`, projectID).Scan(&item.ID, &item.Title, &item.Key, &item.ManagerID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Project{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListProjectsForUser(ctx context.Context, userID string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.title, p.key, p.manager_id, p.created_at, p.updated_at
		FROM projects p
		JOIN project_members pm ON pm.project_id = p.id
		WHERE pm.user_id=$1
		ORDER BY p.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(&item.ID, &item.Title, &item.Key, &item.ManagerID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

// GetProjectMembership resolves one user's standing in a project. It
// returns sql.ErrNoRows when the project itself is missing; an absent
// membership row is not an error and yields an empty role.
func (s *PostgresStore) GetProjectMembership(ctx context.Context, projectID, userID string) (Membership, error) {
	var managerID string
	err := s.db.QueryRowContext(ctx, `SELECT manager_id FROM projects WHERE id=$1`, projectID).Scan(&managerID)
	if err != nil {
		return Membership{}, err
	}

	membership := Membership{IsOwner: managerID == userID}
	err = s.db.QueryRowContext(ctx, `
		SELECT role FROM project_members WHERE project_id=$1 AND user_id=$2
	`, projectID, userID).Scan(&membership.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return membership, nil
	}
	if err != nil {
		return Membership{}, fmt.Errorf("read membership: %w", err)
	}
	return membership, nil
}

func (s *PostgresStore) AddProjectMember(ctx context.Context, projectID, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id) DO UPDATE SET role=EXCLUDED.role
	`, projectID, userID, role)
	if err != nil {
		return fmt.Errorf("add project member: %w", err)
	}
	return nil
}

// RemoveProjectMember refuses to remove the last manager so the project is
// never left unmanaged. Returns false when the removal was blocked or the
// row did not exist.
func (s *PostgresStore) RemoveProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM project_members
		WHERE project_id=$1 AND user_id=$2
		  AND (role <> 'manager' OR EXISTS (
			SELECT 1 FROM project_members
			WHERE project_id=$1 AND role='manager' AND user_id <> $2
		  ))
	`, projectID, userID)
	if err != nil {
		return false, fmt.Errorf("remove project member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove project member rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListProjectMembers(ctx context.Context, projectID string) ([]ProjectMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pm.project_id, pm.user_id, pm.role, u.username, u.email, pm.created_at
		FROM project_members pm
		JOIN users u ON u.id = pm.user_id
		WHERE pm.project_id=$1
		ORDER BY pm.created_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project members: %w", err)
	}
	defer rows.Close()

	items := make([]ProjectMember, 0)
	for rows.Next() {
		var item ProjectMember
		if err := rows.Scan(&item.ProjectID, &item.UserID, &item.Role, &item.Username, &item.Email, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project members: %w", err)
	}
	return items, nil
}
