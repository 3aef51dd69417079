package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"tempo/api/internal/rbac"
	"tempo/api/internal/store"
	"tempo/api/internal/util"
)

// CreateSprintInput is the payload for creating a sprint inside a project.
type CreateSprintInput struct {
	Name      string    `json:"name"`
	Goal      string    `json:"goal"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// UpdateSprintInput carries a partial update. Nil fields are left untouched.
type UpdateSprintInput struct {
	Name      *string    `json:"name"`
	Goal      *string    `json:"goal"`
	StartDate *time.Time `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
	Status    *string    `json:"status"`
}

// SprintStats is the aggregate view over a sprint's issues.
type SprintStats struct {
	TotalIssues          int     `json:"totalIssues"`
	CompletedIssues      int     `json:"completedIssues"`
	InProgressIssues     int     `json:"inProgressIssues"`
	TodoIssues           int     `json:"todoIssues"`
	TotalStoryPoints     int     `json:"totalStoryPoints"`
	CompletedStoryPoints int     `json:"completedStoryPoints"`
	CompletionRate       float64 `json:"completionRate"`
}

// CreateSprint creates a sprint in the planning state.
func (s *Service) CreateSprint(ctx context.Context, userID, projectID string, in CreateSprintInput) (store.Sprint, error) {
	_, role, rctx, err := s.projectAccess(ctx, projectID, userID)
	if err != nil {
		return store.Sprint{}, err
	}
	if !rbac.CanSprint(rbac.ActionCreate, role, rctx) {
		return store.Sprint{}, errForbidden("only project managers can create sprints")
	}

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return store.Sprint{}, errValidation("sprint name is required", nil)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return store.Sprint{}, errValidation("startDate and endDate are required", nil)
	}
	if !in.EndDate.After(in.StartDate) {
		return store.Sprint{}, errInvalidDateRange("endDate must be after startDate")
	}

	sprint := store.Sprint{
		ID:        util.NewID("spr"),
		ProjectID: projectID,
		Name:      in.Name,
		Goal:      in.Goal,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Status:    store.SprintPlanning,
		CreatedBy: userID,
	}
	if err := s.store.CreateSprint(ctx, sprint); err != nil {
		return store.Sprint{}, err
	}
	return s.store.GetSprint(ctx, sprint.ID)
}

// GetSprint returns a sprint visible to the caller.
func (s *Service) GetSprint(ctx context.Context, userID, sprintID string) (store.Sprint, error) {
	sprint, _, err := s.sprintWithAccess(ctx, userID, sprintID, rbac.ActionView)
	return sprint, err
}

// ListSprints returns the sprints of a project, newest start first.
func (s *Service) ListSprints(ctx context.Context, userID, projectID string) ([]store.Sprint, error) {
	_, role, rctx, err := s.projectAccess(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanSprint(rbac.ActionView, role, rctx) {
		return nil, errForbidden("not a member of this project")
	}
	return s.store.ListSprintsByProject(ctx, projectID)
}

// UpdateSprint applies a partial update to a non-terminal sprint. Status is
// not writable here; transitions have their own endpoints. A status field in
// the payload of a terminal sprint rejects the whole update.
func (s *Service) UpdateSprint(ctx context.Context, userID, sprintID string, in UpdateSprintInput) (store.Sprint, error) {
	sprint, _, err := s.sprintWithAccess(ctx, userID, sprintID, rbac.ActionEdit)
	if err != nil {
		return store.Sprint{}, err
	}
	if store.SprintTerminal(sprint.Status) {
		return store.Sprint{}, errInvalidState("cannot update a " + sprint.Status + " sprint")
	}
	if in.Status != nil && *in.Status != sprint.Status {
		return store.Sprint{}, errValidation("status cannot be changed here, use the transition endpoints", nil)
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return store.Sprint{}, errValidation("sprint name cannot be empty", nil)
		}
		sprint.Name = name
	}
	if in.Goal != nil {
		sprint.Goal = *in.Goal
	}
	// Date validation runs over the effective pair: supplied values merged
	// with the stored ones.
	if in.StartDate != nil {
		sprint.StartDate = *in.StartDate
	}
	if in.EndDate != nil {
		sprint.EndDate = *in.EndDate
	}
	if !sprint.EndDate.After(sprint.StartDate) {
		return store.Sprint{}, errInvalidDateRange("endDate must be after startDate")
	}

	if err := s.store.UpdateSprintDetails(ctx, sprint); err != nil {
		return store.Sprint{}, err
	}
	return s.store.GetSprint(ctx, sprint.ID)
}

// DeleteSprint removes a sprint that is not active. Linked issues are
// unlinked, never deleted.
func (s *Service) DeleteSprint(ctx context.Context, userID, sprintID string) error {
	sprint, _, err := s.sprintWithAccess(ctx, userID, sprintID, rbac.ActionDelete)
	if err != nil {
		return err
	}
	if sprint.Status == store.SprintActive {
		return errInvalidState("cannot delete an active sprint, complete or cancel it first")
	}
	ok, err := s.store.DeleteSprint(ctx, sprintID)
	if err != nil {
		return err
	}
	if !ok {
		// Lost a race with an activation.
		return errInvalidState("cannot delete an active sprint, complete or cancel it first")
	}
	return nil
}

// StartSprint activates a planning sprint. The dates are rebased: the sprint
// starts now and keeps its planned duration. At most one sprint per project
// can be active; the conditional write in the store enforces that under
// concurrency.
func (s *Service) StartSprint(ctx context.Context, userID, sprintID string) (store.Sprint, error) {
	sprint, _, err := s.sprintWithAccess(ctx, userID, sprintID, rbac.ActionEdit)
	if err != nil {
		return store.Sprint{}, err
	}
	if sprint.Status != store.SprintPlanning {
		return store.Sprint{}, errInvalidState("only a planning sprint can be started")
	}

	duration := sprint.EndDate.Sub(sprint.StartDate)
	sprint.StartDate = time.Now().UTC()
	sprint.EndDate = sprint.StartDate.Add(duration)

	ok, err := s.store.ActivateSprint(ctx, sprint)
	if err != nil {
		return store.Sprint{}, err
	}
	if !ok {
		return store.Sprint{}, s.explainActivationFailure(ctx, sprintID, sprint.ProjectID)
	}

	s.notifySprintStarted(sprint)
	return s.store.GetSprint(ctx, sprintID)
}

// explainActivationFailure distinguishes the two reasons a conditional
// activation can miss: the sprint left planning, or a sibling is active.
func (s *Service) explainActivationFailure(ctx context.Context, sprintID, projectID string) error {
	current, err := s.store.GetSprint(ctx, sprintID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("sprint")
		}
		return err
	}
	if current.Status != store.SprintPlanning {
		return errInvalidState("only a planning sprint can be started")
	}
	siblings, err := s.store.ListSprintsByProject(ctx, projectID)
	if err != nil {
		return err
	}
	for _, sib := range siblings {
		if sib.Status == store.SprintActive {
			return errActiveSprintConflict(sib.ID)
		}
	}
	return errActiveSprintConflict("")
}

// CompleteSprint moves an active sprint to completed and reports the final
// stats. Issues stay linked for the historical record.
func (s *Service) CompleteSprint(ctx context.Context, userID, sprintID string) (store.Sprint, SprintStats, error) {
	sprint, _, err := s.sprintWithAccess(ctx, userID, sprintID, rbac.ActionEdit)
	if err != nil {
		return store.Sprint{}, SprintStats{}, err
	}
	if sprint.Status != store.SprintActive {
		return store.Sprint{}, SprintStats{}, errInvalidState("only an active sprint can be completed")
	}
	ok, err := s.store.CompleteSprint(ctx, sprintID)
	if err != nil {
		return store.Sprint{}, SprintStats{}, err
	}
	if !ok {
		return store.Sprint{}, SprintStats{}, errInvalidState("only an active sprint can be completed")
	}

	issues, err := s.store.ListSprintIssues(ctx, sprintID)
	if err != nil {
		return store.Sprint{}, SprintStats{}, err
	}
	stats := computeSprintStats(issues)

	updated, err := s.store.GetSprint(ctx, sprintID)
	if err != nil {
		return store.Sprint{}, SprintStats{}, err
	}
	s.notifySprintCompleted(updated, stats)
	return updated, stats, nil
}

// CancelSprint aborts a sprint from planning or active.
func (s *Service) CancelSprint(ctx context.Context, userID, sprintID string) (store.Sprint, error) {
	sprint, _, err := s.sprintWithAccess(ctx, userID, sprintID, rbac.ActionEdit)
	if err != nil {
		return store.Sprint{}, err
	}
	if store.SprintTerminal(sprint.Status) {
		return store.Sprint{}, errInvalidState("sprint is already " + sprint.Status)
	}
	ok, err := s.store.CancelSprint(ctx, sprintID)
	if err != nil {
		return store.Sprint{}, err
	}
	if !ok {
		return store.Sprint{}, errInvalidState("sprint is no longer cancellable")
	}
	return s.store.GetSprint(ctx, sprintID)
}

// AddIssueToSprint links an issue to a sprint, pulling it out of any sprint
// it was in before. Re-adding to the same sprint is a no-op.
func (s *Service) AddIssueToSprint(ctx context.Context, userID, sprintID, issueID string) error {
	sprint, err := s.store.GetSprint(ctx, sprintID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("sprint")
		}
		return err
	}
	issue, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("issue")
		}
		return err
	}
	if issue.ProjectID != sprint.ProjectID {
		return errCrossProject("issue and sprint belong to different projects")
	}

	_, role, rctx, err := s.projectAccess(ctx, sprint.ProjectID, userID)
	if err != nil {
		return err
	}
	if !rbac.CanSprint(rbac.ActionEdit, role, rctx) {
		return errForbidden("only project managers can change sprint contents")
	}

	if store.SprintTerminal(sprint.Status) {
		return errInvalidState("cannot add issues to a " + sprint.Status + " sprint")
	}
	if issue.SprintID != nil && *issue.SprintID == sprintID {
		return nil
	}
	if issue.SprintID != nil {
		if err := s.store.DetachIssue(ctx, *issue.SprintID, issueID, false); err != nil {
			return err
		}
	}
	if err := s.store.AttachIssue(ctx, sprintID, issueID); err != nil {
		return err
	}
	s.indexIssueAsync(ctx, issueID)
	return nil
}

// RemoveIssueFromSprint unlinks an issue. When keepStatus is false and the
// issue is a task, its status is reset to backlog.
func (s *Service) RemoveIssueFromSprint(ctx context.Context, userID, sprintID, issueID string, keepStatus bool) error {
	sprint, err := s.store.GetSprint(ctx, sprintID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("sprint")
		}
		return err
	}
	issue, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("issue")
		}
		return err
	}
	if issue.ProjectID != sprint.ProjectID {
		return errCrossProject("issue and sprint belong to different projects")
	}

	_, role, rctx, err := s.projectAccess(ctx, sprint.ProjectID, userID)
	if err != nil {
		return err
	}
	if !rbac.CanSprint(rbac.ActionEdit, role, rctx) {
		return errForbidden("only project managers can change sprint contents")
	}
	if issue.SprintID == nil || *issue.SprintID != sprintID {
		return errNotFound("issue in sprint")
	}

	reset := !keepStatus && issue.Type == store.IssueTypeTask
	if err := s.store.DetachIssue(ctx, sprintID, issueID, reset); err != nil {
		return err
	}
	s.indexIssueAsync(ctx, issueID)
	return nil
}

// ListSprintIssues returns the issues of a sprint in board order.
func (s *Service) ListSprintIssues(ctx context.Context, userID, sprintID string) ([]store.Issue, error) {
	_, _, err := s.sprintWithAccess(ctx, userID, sprintID, rbac.ActionView)
	if err != nil {
		return nil, err
	}
	return s.store.ListSprintIssues(ctx, sprintID)
}

// GetSprintStats aggregates the sprint's issues.
func (s *Service) GetSprintStats(ctx context.Context, userID, sprintID string) (SprintStats, error) {
	_, _, err := s.sprintWithAccess(ctx, userID, sprintID, rbac.ActionView)
	if err != nil {
		return SprintStats{}, err
	}
	issues, err := s.store.ListSprintIssues(ctx, sprintID)
	if err != nil {
		return SprintStats{}, err
	}
	return computeSprintStats(issues), nil
}

func computeSprintStats(issues []store.Issue) SprintStats {
	var stats SprintStats
	stats.TotalIssues = len(issues)
	for _, issue := range issues {
		stats.TotalStoryPoints += issue.StoryPoints
		switch issue.Status {
		case store.IssueDone:
			stats.CompletedIssues++
			stats.CompletedStoryPoints += issue.StoryPoints
		case store.IssueInProgress:
			stats.InProgressIssues++
		case store.IssueTodo:
			stats.TodoIssues++
		}
	}
	if stats.TotalIssues > 0 {
		stats.CompletionRate = float64(stats.CompletedIssues) / float64(stats.TotalIssues) * 100
	}
	return stats
}

// FindSprintIssueMismatches reports rows where the two sides of the
// sprint/issue link disagree.
func (s *Service) FindSprintIssueMismatches(ctx context.Context) ([]store.SprintIssueMismatch, error) {
	return s.store.FindSprintIssueMismatches(ctx)
}

// HealSprintIssues repairs disagreeing link rows, treating the membership
// table as the source of truth.
func (s *Service) HealSprintIssues(ctx context.Context) (int, error) {
	return s.store.HealSprintIssues(ctx)
}

// sprintWithAccess loads a sprint and authorizes the given action against
// its project.
func (s *Service) sprintWithAccess(ctx context.Context, userID, sprintID string, action rbac.Action) (store.Sprint, rbac.Role, error) {
	sprint, err := s.store.GetSprint(ctx, sprintID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Sprint{}, rbac.RoleNone, errNotFound("sprint")
		}
		return store.Sprint{}, rbac.RoleNone, err
	}
	_, role, rctx, err := s.projectAccess(ctx, sprint.ProjectID, userID)
	if err != nil {
		return store.Sprint{}, rbac.RoleNone, err
	}
	if !rbac.CanSprint(action, role, rctx) {
		msg := "not a member of this project"
		if action != rbac.ActionView {
			msg = "only project managers can modify sprints"
		}
		return store.Sprint{}, role, errForbidden(msg)
	}
	return sprint, role, nil
}

func (s *Service) notifySprintStarted(sprint store.Sprint) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		project, err := s.store.GetProject(ctx, sprint.ProjectID)
		if err != nil {
			log.Printf("sprint started notify: load project: %v", err)
			return
		}
		emails := s.memberEmails(ctx, sprint.ProjectID)
		if len(emails) == 0 {
			return
		}
		endDate := sprint.EndDate.Format("Jan 2, 2006")
		if err := s.email.SendSprintStartedEmail(emails, project.Title, sprint.Name, sprint.Goal, endDate); err != nil {
			log.Printf("sprint started notify: %v", err)
		}
	}()
}

func (s *Service) notifySprintCompleted(sprint store.Sprint, stats SprintStats) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		project, err := s.store.GetProject(ctx, sprint.ProjectID)
		if err != nil {
			log.Printf("sprint completed notify: load project: %v", err)
			return
		}
		emails := s.memberEmails(ctx, sprint.ProjectID)
		if len(emails) == 0 {
			return
		}
		if err := s.email.SendSprintCompletedEmail(emails, project.Title, sprint.Name, stats.CompletedIssues, stats.TotalIssues); err != nil {
			log.Printf("sprint completed notify: %v", err)
		}
	}()
}
