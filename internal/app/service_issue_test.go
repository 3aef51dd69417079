package app

import (
	"context"
	"testing"

	"tempo/api/internal/store"
)

func TestCreateIssueTaskRequiresAssignee(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
	svc := newTestService(f)

	_, err := svc.CreateIssue(context.Background(), "usr_m", "prj_1", CreateIssueInput{
		Title: "Wire up the board",
		Type:  store.IssueTypeTask,
	})
	requireDomainCode(t, err, "VALIDATION_ERROR")
}

func TestCreateIssueBugDropsAssignee(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{
		"usr_m": "manager",
		"usr_a": "member",
	})
	var inserted store.Issue
	f.createIssueFn = func(_ context.Context, issue store.Issue) (store.Issue, error) {
		inserted = issue
		issue.Key = "APL-1"
		return issue, nil
	}
	svc := newTestService(f)

	assignee := "usr_a"
	created, err := svc.CreateIssue(context.Background(), "usr_m", "prj_1", CreateIssueInput{
		Title:      "Board flickers on drag",
		Type:       store.IssueTypeBug,
		AssigneeID: &assignee,
	})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if inserted.AssigneeID != nil {
		t.Fatal("bug must be created unassigned")
	}
	if created.Status != store.IssueBacklog {
		t.Fatalf("default status backlog expected, got %s", created.Status)
	}
	if created.ReporterID != "usr_m" {
		t.Fatalf("reporter should be the caller, got %s", created.ReporterID)
	}
}

func TestCreateIssueRejectsNonMemberAssignee(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
	svc := newTestService(f)

	stranger := "usr_outsider"
	_, err := svc.CreateIssue(context.Background(), "usr_m", "prj_1", CreateIssueInput{
		Title:      "Wire up the board",
		Type:       store.IssueTypeTask,
		AssigneeID: &stranger,
	})
	requireDomainCode(t, err, "VALIDATION_ERROR")
}

func TestCreateIssueForbiddenForViewer(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{"usr_v": "viewer"})
	svc := newTestService(f)

	_, err := svc.CreateIssue(context.Background(), "usr_v", "prj_1", CreateIssueInput{
		Title: "Wire up the board",
		Type:  store.IssueTypeBug,
	})
	requireDomainCode(t, err, "FORBIDDEN")
}

func TestUpdateIssueAssigneeCanEditDespiteViewerRole(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{
		"usr_m": "manager",
		"usr_v": "viewer",
	})
	me := "usr_v"
	f.getIssueFn = func(context.Context, string) (store.Issue, error) {
		return store.Issue{
			ID: "iss_1", ProjectID: "prj_1", Title: "Wire up the board",
			Type: store.IssueTypeTask, Status: store.IssueTodo,
			AssigneeID: &me, ReporterID: "usr_m",
		}, nil
	}
	var saved store.Issue
	f.updateIssueFn = func(_ context.Context, issue store.Issue) error {
		saved = issue
		return nil
	}
	svc := newTestService(f)

	status := store.IssueInProgress
	if _, err := svc.UpdateIssue(context.Background(), "usr_v", "iss_1", UpdateIssueInput{Status: &status}); err != nil {
		t.Fatalf("assignee update: %v", err)
	}
	if saved.Status != store.IssueInProgress {
		t.Fatalf("status not saved: %s", saved.Status)
	}

	// A viewer who is neither assignee nor reporter stays read-only.
	other := "usr_someone"
	f.getIssueFn = func(context.Context, string) (store.Issue, error) {
		return store.Issue{
			ID: "iss_1", ProjectID: "prj_1", Title: "Wire up the board",
			Type: store.IssueTypeTask, Status: store.IssueTodo,
			AssigneeID: &other, ReporterID: "usr_m",
		}, nil
	}
	_, err := svc.UpdateIssue(context.Background(), "usr_v", "iss_1", UpdateIssueInput{Status: &status})
	requireDomainCode(t, err, "FORBIDDEN")
}

func TestUpdateIssueCannotStripTaskAssignee(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
	assignee := "usr_a"
	f.getIssueFn = func(context.Context, string) (store.Issue, error) {
		return store.Issue{
			ID: "iss_1", ProjectID: "prj_1", Title: "Wire up the board",
			Type: store.IssueTypeTask, Status: store.IssueTodo,
			AssigneeID: &assignee, ReporterID: "usr_m",
		}, nil
	}
	svc := newTestService(f)

	_, err := svc.UpdateIssue(context.Background(), "usr_m", "iss_1", UpdateIssueInput{ClearAssignee: true})
	requireDomainCode(t, err, "VALIDATION_ERROR")
}

func TestDeleteIssueManagerOnly(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{
		"usr_m":      "manager",
		"usr_member": "member",
	})
	f.getIssueFn = func(context.Context, string) (store.Issue, error) {
		return store.Issue{ID: "iss_1", ProjectID: "prj_1", Type: store.IssueTypeBug}, nil
	}
	svc := newTestService(f)

	err := svc.DeleteIssue(context.Background(), "usr_member", "iss_1")
	requireDomainCode(t, err, "FORBIDDEN")

	if err := svc.DeleteIssue(context.Background(), "usr_m", "iss_1"); err != nil {
		t.Fatalf("manager delete: %v", err)
	}
}

func TestGetIssueNotFound(t *testing.T) {
	f := &fakeStore{}
	svc := newTestService(f)
	_, err := svc.GetIssue(context.Background(), "usr_m", "iss_missing")
	requireDomainCode(t, err, "NOT_FOUND")
}
