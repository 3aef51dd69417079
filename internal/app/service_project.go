package app

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"tempo/api/internal/rbac"
	"tempo/api/internal/store"
	"tempo/api/internal/util"
)

var projectKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,9}$`)

// CreateProjectInput is the payload for creating a project.
type CreateProjectInput struct {
	Title string `json:"title"`
	Key   string `json:"key"`
}

// AddMemberInput adds or re-roles a user in a project.
type AddMemberInput struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// CreateProject creates a project with the caller as its manager.
func (s *Service) CreateProject(ctx context.Context, userID string, in CreateProjectInput) (store.Project, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Key = strings.ToUpper(strings.TrimSpace(in.Key))
	if in.Title == "" {
		return store.Project{}, errValidation("project title is required", nil)
	}
	if !projectKeyPattern.MatchString(in.Key) {
		return store.Project{}, errValidation("project key must be 2-10 uppercase letters or digits, starting with a letter", nil)
	}

	project := store.Project{
		ID:        util.NewID("prj"),
		Title:     in.Title,
		Key:       in.Key,
		ManagerID: userID,
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		return store.Project{}, err
	}
	return s.store.GetProject(ctx, project.ID)
}

// GetProject returns a project the caller is a member of.
func (s *Service) GetProject(ctx context.Context, userID, projectID string) (store.Project, error) {
	project, role, rctx, err := s.projectAccess(ctx, projectID, userID)
	if err != nil {
		return store.Project{}, err
	}
	if !rbac.CanSprint(rbac.ActionView, role, rctx) {
		return store.Project{}, errForbidden("not a member of this project")
	}
	return project, nil
}

// ListProjects returns the projects the caller belongs to.
func (s *Service) ListProjects(ctx context.Context, userID string) ([]store.Project, error) {
	return s.store.ListProjectsForUser(ctx, userID)
}

// AddMember adds a user to a project. Managers only. The user can be named
// by id or email.
func (s *Service) AddMember(ctx context.Context, userID, projectID string, in AddMemberInput) error {
	_, role, rctx, err := s.projectAccess(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if role != rbac.RoleManager && !rctx.IsProjectOwner {
		return errForbidden("only project managers can manage members")
	}

	if rbac.Normalize(in.Role) == rbac.RoleNone {
		return errValidation("role must be manager, member, or viewer", map[string]any{"role": in.Role})
	}

	targetID := in.UserID
	if targetID == "" && in.Email != "" {
		user, err := s.store.GetUserByEmail(ctx, in.Email)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errNotFound("user")
			}
			return err
		}
		targetID = user.ID
	}
	if targetID == "" {
		return errValidation("userId or email is required", nil)
	}
	if _, err := s.store.GetUserByID(ctx, targetID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("user")
		}
		return err
	}
	return s.store.AddProjectMember(ctx, projectID, targetID, in.Role)
}

// RemoveMember removes a user from a project. The last manager cannot be
// removed.
func (s *Service) RemoveMember(ctx context.Context, userID, projectID, targetID string) error {
	_, role, rctx, err := s.projectAccess(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if role != rbac.RoleManager && !rctx.IsProjectOwner {
		return errForbidden("only project managers can manage members")
	}
	membership, err := s.store.GetProjectMembership(ctx, projectID, targetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("project")
		}
		return err
	}
	if membership.Role == "" {
		return errNotFound("member")
	}
	ok, err := s.store.RemoveProjectMember(ctx, projectID, targetID)
	if err != nil {
		return err
	}
	if !ok {
		return errInvalidState("cannot remove the last manager of a project")
	}
	return nil
}

// ListMembers returns the members of a project.
func (s *Service) ListMembers(ctx context.Context, userID, projectID string) ([]store.ProjectMember, error) {
	_, role, rctx, err := s.projectAccess(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanSprint(rbac.ActionView, role, rctx) {
		return nil, errForbidden("not a member of this project")
	}
	return s.store.ListProjectMembers(ctx, projectID)
}
