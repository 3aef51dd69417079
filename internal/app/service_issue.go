package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"tempo/api/internal/rbac"
	"tempo/api/internal/search"
	"tempo/api/internal/store"
	"tempo/api/internal/util"
)

var issueStatuses = map[string]bool{
	store.IssueBacklog:    true,
	store.IssueTodo:       true,
	store.IssueInProgress: true,
	store.IssueInReview:   true,
	store.IssueDone:       true,
}

var issueTypes = map[string]bool{
	store.IssueTypeTask: true,
	store.IssueTypeBug:  true,
}

// CreateIssueInput is the payload for creating an issue.
type CreateIssueInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Type        string  `json:"type"`
	Status      string  `json:"status"`
	StoryPoints int     `json:"storyPoints"`
	AssigneeID  *string `json:"assigneeId"`
}

// UpdateIssueInput carries a partial issue update.
type UpdateIssueInput struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	Status        *string `json:"status"`
	StoryPoints   *int    `json:"storyPoints"`
	AssigneeID    *string `json:"assigneeId"`
	ClearAssignee bool    `json:"clearAssignee"`
}

// CreateIssue creates an issue in a project. Tasks must carry an assignee;
// bugs never do until triaged, so an assignee on a bug is dropped.
func (s *Service) CreateIssue(ctx context.Context, userID, projectID string, in CreateIssueInput) (store.Issue, error) {
	project, role, rctx, err := s.projectAccess(ctx, projectID, userID)
	if err != nil {
		return store.Issue{}, err
	}
	if !rbac.CanIssue(rbac.ActionCreate, role, rctx) {
		return store.Issue{}, errForbidden("viewers cannot create issues")
	}

	if in.Title == "" {
		return store.Issue{}, errValidation("title is required", nil)
	}
	if in.Type == "" {
		in.Type = store.IssueTypeTask
	}
	if !issueTypes[in.Type] {
		return store.Issue{}, errValidation("unknown issue type", map[string]any{"type": in.Type})
	}
	if in.Status == "" {
		in.Status = store.IssueBacklog
	}
	if !issueStatuses[in.Status] {
		return store.Issue{}, errValidation("unknown issue status", map[string]any{"status": in.Status})
	}
	if in.StoryPoints < 0 {
		return store.Issue{}, errValidation("storyPoints cannot be negative", nil)
	}

	assignee := in.AssigneeID
	switch in.Type {
	case store.IssueTypeTask:
		if assignee == nil || *assignee == "" {
			return store.Issue{}, errValidation("tasks require an assignee", nil)
		}
	case store.IssueTypeBug:
		assignee = nil
	}
	if assignee != nil {
		m, err := s.store.GetProjectMembership(ctx, projectID, *assignee)
		if err != nil {
			return store.Issue{}, err
		}
		if m.Role == "" {
			return store.Issue{}, errValidation("assignee is not a member of this project", nil)
		}
	}

	issue := store.Issue{
		ID:          util.NewID("iss"),
		ProjectID:   projectID,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Type:        in.Type,
		StoryPoints: in.StoryPoints,
		AssigneeID:  assignee,
		ReporterID:  userID,
	}
	created, err := s.store.CreateIssue(ctx, issue)
	if err != nil {
		return store.Issue{}, err
	}

	s.indexIssue(created)
	if created.AssigneeID != nil && *created.AssigneeID != userID {
		s.notifyIssueAssigned(created, project.Title)
	}
	return created, nil
}

// GetIssue returns an issue visible to the caller.
func (s *Service) GetIssue(ctx context.Context, userID, issueID string) (store.Issue, error) {
	issue, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Issue{}, errNotFound("issue")
		}
		return store.Issue{}, err
	}
	_, role, rctx, err := s.projectAccess(ctx, issue.ProjectID, userID)
	if err != nil {
		return store.Issue{}, err
	}
	if !rbac.CanIssue(rbac.ActionView, role, rctx) {
		return store.Issue{}, errForbidden("not a member of this project")
	}
	return issue, nil
}

// ListIssues returns all issues of a project.
func (s *Service) ListIssues(ctx context.Context, userID, projectID string) ([]store.Issue, error) {
	_, role, rctx, err := s.projectAccess(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanIssue(rbac.ActionView, role, rctx) {
		return nil, errForbidden("not a member of this project")
	}
	return s.store.ListIssuesByProject(ctx, projectID)
}

// UpdateIssue applies a partial update. Assignees and reporters may edit
// their own issues even as viewers.
func (s *Service) UpdateIssue(ctx context.Context, userID, issueID string, in UpdateIssueInput) (store.Issue, error) {
	issue, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Issue{}, errNotFound("issue")
		}
		return store.Issue{}, err
	}
	project, role, rctx, err := s.projectAccess(ctx, issue.ProjectID, userID)
	if err != nil {
		return store.Issue{}, err
	}
	rctx.IsAssignee = issue.AssigneeID != nil && *issue.AssigneeID == userID
	rctx.IsReporter = issue.ReporterID == userID
	if !rbac.CanIssue(rbac.ActionEdit, role, rctx) {
		return store.Issue{}, errForbidden("not allowed to edit this issue")
	}

	prevAssignee := issue.AssigneeID

	if in.Title != nil {
		if *in.Title == "" {
			return store.Issue{}, errValidation("title cannot be empty", nil)
		}
		issue.Title = *in.Title
	}
	if in.Description != nil {
		issue.Description = *in.Description
	}
	if in.Status != nil {
		if !issueStatuses[*in.Status] {
			return store.Issue{}, errValidation("unknown issue status", map[string]any{"status": *in.Status})
		}
		issue.Status = *in.Status
	}
	if in.StoryPoints != nil {
		if *in.StoryPoints < 0 {
			return store.Issue{}, errValidation("storyPoints cannot be negative", nil)
		}
		issue.StoryPoints = *in.StoryPoints
	}
	if in.ClearAssignee {
		issue.AssigneeID = nil
	} else if in.AssigneeID != nil && *in.AssigneeID != "" {
		m, err := s.store.GetProjectMembership(ctx, issue.ProjectID, *in.AssigneeID)
		if err != nil {
			return store.Issue{}, err
		}
		if m.Role == "" {
			return store.Issue{}, errValidation("assignee is not a member of this project", nil)
		}
		issue.AssigneeID = in.AssigneeID
	}
	if issue.Type == store.IssueTypeTask && issue.AssigneeID == nil {
		return store.Issue{}, errValidation("tasks require an assignee", nil)
	}

	if err := s.store.UpdateIssue(ctx, issue); err != nil {
		return store.Issue{}, err
	}

	s.indexIssue(issue)
	assigneeChanged := issue.AssigneeID != nil &&
		(prevAssignee == nil || *prevAssignee != *issue.AssigneeID)
	if assigneeChanged && *issue.AssigneeID != userID {
		s.notifyIssueAssigned(issue, project.Title)
	}
	return issue, nil
}

// DeleteIssue removes an issue, its sprint link, its search document and its
// attachments.
func (s *Service) DeleteIssue(ctx context.Context, userID, issueID string) error {
	issue, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("issue")
		}
		return err
	}
	_, role, rctx, err := s.projectAccess(ctx, issue.ProjectID, userID)
	if err != nil {
		return err
	}
	if !rbac.CanIssue(rbac.ActionDelete, role, rctx) {
		return errForbidden("only project managers can delete issues")
	}
	if err := s.store.DeleteIssue(ctx, issueID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteIssue(issueID)
	}
	if s.attach != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := s.attach.DeleteForIssue(ctx, issueID); err != nil {
				log.Printf("delete attachments for issue %s: %v", issueID, err)
			}
		}()
	}
	return nil
}

// SearchIssues runs a full-text search scoped to a project the caller can
// view.
func (s *Service) SearchIssues(ctx context.Context, userID string, q search.Query) (search.Response, error) {
	if q.FilterProjectID == "" {
		return search.Response{}, errValidation("projectId filter is required", nil)
	}
	_, role, rctx, err := s.projectAccess(ctx, q.FilterProjectID, userID)
	if err != nil {
		return search.Response{}, err
	}
	if !rbac.CanIssue(rbac.ActionView, role, rctx) {
		return search.Response{}, errForbidden("not a member of this project")
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.search.Search(q), nil
}

// PresignAttachmentUpload hands the client a short-lived upload URL.
func (s *Service) PresignAttachmentUpload(ctx context.Context, userID, issueID, filename string) (map[string]any, error) {
	if s.attach == nil {
		return nil, errValidation("attachments are not enabled", nil)
	}
	if filename == "" {
		return nil, errValidation("filename is required", nil)
	}
	if err := s.authorizeIssueEdit(ctx, userID, issueID); err != nil {
		return nil, err
	}
	url, key, err := s.attach.PresignUpload(ctx, issueID, filename)
	if err != nil {
		return nil, err
	}
	return map[string]any{"uploadUrl": url, "objectKey": key}, nil
}

// ListAttachments lists the stored files of an issue with download URLs.
func (s *Service) ListAttachments(ctx context.Context, userID, issueID string) ([]map[string]any, error) {
	if s.attach == nil {
		return []map[string]any{}, nil
	}
	issue, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("issue")
		}
		return nil, err
	}
	_, role, rctx, err := s.projectAccess(ctx, issue.ProjectID, userID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanIssue(rbac.ActionView, role, rctx) {
		return nil, errForbidden("not a member of this project")
	}
	items, err := s.attach.ListForIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		url, err := s.attach.PresignDownload(ctx, item.ObjectKey)
		if err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"objectKey":   item.ObjectKey,
			"filename":    item.Filename,
			"size":        item.Size,
			"updatedAt":   item.UpdatedAt,
			"downloadUrl": url,
		})
	}
	return out, nil
}

// DeleteAttachment removes one stored file from an issue.
func (s *Service) DeleteAttachment(ctx context.Context, userID, issueID, objectKey string) error {
	if s.attach == nil {
		return errNotFound("attachment")
	}
	if err := s.authorizeIssueEdit(ctx, userID, issueID); err != nil {
		return err
	}
	return s.attach.Delete(ctx, objectKey)
}

func (s *Service) authorizeIssueEdit(ctx context.Context, userID, issueID string) error {
	issue, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("issue")
		}
		return err
	}
	_, role, rctx, err := s.projectAccess(ctx, issue.ProjectID, userID)
	if err != nil {
		return err
	}
	rctx.IsAssignee = issue.AssigneeID != nil && *issue.AssigneeID == userID
	rctx.IsReporter = issue.ReporterID == userID
	if !rbac.CanIssue(rbac.ActionEdit, role, rctx) {
		return errForbidden("not allowed to edit this issue")
	}
	return nil
}

func (s *Service) indexIssue(issue store.Issue) {
	if s.search == nil {
		return
	}
	rec := search.IssueRecord{
		ID:          issue.ID,
		Key:         issue.Key,
		Title:       issue.Title,
		Description: issue.Description,
		ProjectID:   issue.ProjectID,
		Status:      issue.Status,
		Type:        issue.Type,
	}
	if issue.AssigneeID != nil {
		rec.AssigneeID = *issue.AssigneeID
	}
	if issue.SprintID != nil {
		rec.SprintID = *issue.SprintID
	}
	s.search.IndexIssue(rec)
}

// indexIssueAsync re-reads the issue and refreshes its search document,
// used after sprint attach/detach where status or sprint may have changed.
func (s *Service) indexIssueAsync(ctx context.Context, issueID string) {
	if s.search == nil {
		return
	}
	issue, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		log.Printf("reindex issue %s: %v", issueID, err)
		return
	}
	s.indexIssue(issue)
}

func (s *Service) notifyIssueAssigned(issue store.Issue, projectTitle string) {
	if s.email == nil || !s.email.IsConfigured() || issue.AssigneeID == nil {
		return
	}
	assigneeID := *issue.AssigneeID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		user, err := s.store.GetUserByID(ctx, assigneeID)
		if err != nil {
			log.Printf("issue assigned notify: load user: %v", err)
			return
		}
		if err := s.email.SendIssueAssignedEmail(user.Email, user.DisplayName, issue.Key, issue.Title, projectTitle); err != nil {
			log.Printf("issue assigned notify: %v", err)
		}
	}()
}

