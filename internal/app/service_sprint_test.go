package app

import (
	"context"
	"testing"
	"time"

	"tempo/api/internal/store"
)

func testSprint(id, projectID, status string) store.Sprint {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	return store.Sprint{
		ID:        id,
		ProjectID: projectID,
		Name:      "Iteration 12",
		Goal:      "Ship the board view",
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 14),
		Status:    status,
		CreatedBy: "usr_m",
	}
}

func TestCreateSprintRejectsInvalidDateRange(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
	svc := newTestService(f)

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for _, end := range []time.Time{start, start.AddDate(0, 0, -1)} {
		_, err := svc.CreateSprint(context.Background(), "usr_m", "prj_1", CreateSprintInput{
			Name:      "Iteration 12",
			StartDate: start,
			EndDate:   end,
		})
		requireDomainCode(t, err, "INVALID_DATE_RANGE")
	}
}

func TestCreateSprintForbiddenBelowManager(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{
		"usr_member": "member",
		"usr_viewer": "viewer",
	})
	svc := newTestService(f)

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for _, userID := range []string{"usr_member", "usr_viewer", "usr_stranger"} {
		_, err := svc.CreateSprint(context.Background(), userID, "prj_1", CreateSprintInput{
			Name:      "Iteration 12",
			StartDate: start,
			EndDate:   start.AddDate(0, 0, 14),
		})
		requireDomainCode(t, err, "FORBIDDEN")
	}
}

func TestStartSprintRebasesDatesKeepingDuration(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})

	planned := testSprint("spr_1", "prj_1", store.SprintPlanning)
	duration := planned.EndDate.Sub(planned.StartDate)

	var activated store.Sprint
	f.getSprintFn = func(_ context.Context, id string) (store.Sprint, error) {
		if activated.ID != "" {
			return activated, nil
		}
		return planned, nil
	}
	f.activateSprintFn = func(_ context.Context, sprint store.Sprint) (bool, error) {
		activated = sprint
		activated.Status = store.SprintActive
		return true, nil
	}
	svc := newTestService(f)

	before := time.Now().UTC()
	sprint, err := svc.StartSprint(context.Background(), "usr_m", "spr_1")
	if err != nil {
		t.Fatalf("StartSprint: %v", err)
	}
	if sprint.Status != store.SprintActive {
		t.Fatalf("expected active, got %s", sprint.Status)
	}
	if sprint.StartDate.Before(before.Add(-time.Second)) {
		t.Fatalf("start date not rebased to now: %v", sprint.StartDate)
	}
	if got := sprint.EndDate.Sub(sprint.StartDate); got != duration {
		t.Fatalf("duration changed: planned %v, got %v", duration, got)
	}
}

func TestStartSprintRequiresPlanning(t *testing.T) {
	for _, status := range []string{store.SprintActive, store.SprintCompleted, store.SprintCancelled} {
		f := &fakeStore{}
		withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
		f.getSprintFn = func(context.Context, string) (store.Sprint, error) {
			return testSprint("spr_1", "prj_1", status), nil
		}
		svc := newTestService(f)

		_, err := svc.StartSprint(context.Background(), "usr_m", "spr_1")
		requireDomainCode(t, err, "INVALID_STATE")
	}
}

func TestStartSprintConflictsWithActiveSibling(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
	f.getSprintFn = func(context.Context, string) (store.Sprint, error) {
		return testSprint("spr_1", "prj_1", store.SprintPlanning), nil
	}
	f.activateSprintFn = func(context.Context, store.Sprint) (bool, error) {
		return false, nil
	}
	f.listSprintsFn = func(context.Context, string) ([]store.Sprint, error) {
		return []store.Sprint{
			testSprint("spr_1", "prj_1", store.SprintPlanning),
			testSprint("spr_0", "prj_1", store.SprintActive),
		}, nil
	}
	svc := newTestService(f)

	_, err := svc.StartSprint(context.Background(), "usr_m", "spr_1")
	de := requireDomainCode(t, err, "ACTIVE_SPRINT_EXISTS")
	if de.Details["activeSprintId"] != "spr_0" {
		t.Fatalf("expected active sibling id in details, got %v", de.Details)
	}
}

func TestDeleteActiveSprintRejected(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
	f.getSprintFn = func(context.Context, string) (store.Sprint, error) {
		return testSprint("spr_1", "prj_1", store.SprintActive), nil
	}
	deleted := false
	f.deleteSprintFn = func(context.Context, string) (bool, error) {
		deleted = true
		return true, nil
	}
	svc := newTestService(f)

	err := svc.DeleteSprint(context.Background(), "usr_m", "spr_1")
	requireDomainCode(t, err, "INVALID_STATE")
	if deleted {
		t.Fatal("delete must not reach the store for an active sprint")
	}
}

func TestDeleteSprintAllowedFromPlanningAndTerminal(t *testing.T) {
	for _, status := range []string{store.SprintPlanning, store.SprintCompleted, store.SprintCancelled} {
		f := &fakeStore{}
		withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
		f.getSprintFn = func(context.Context, string) (store.Sprint, error) {
			return testSprint("spr_1", "prj_1", status), nil
		}
		svc := newTestService(f)

		if err := svc.DeleteSprint(context.Background(), "usr_m", "spr_1"); err != nil {
			t.Fatalf("delete from %s: %v", status, err)
		}
	}
}

func TestCompleteSprintOnlyFromActive(t *testing.T) {
	for _, status := range []string{store.SprintPlanning, store.SprintCompleted, store.SprintCancelled} {
		f := &fakeStore{}
		withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
		f.getSprintFn = func(context.Context, string) (store.Sprint, error) {
			return testSprint("spr_1", "prj_1", status), nil
		}
		svc := newTestService(f)

		_, _, err := svc.CompleteSprint(context.Background(), "usr_m", "spr_1")
		requireDomainCode(t, err, "INVALID_STATE")
	}
}

func TestCompleteSprintReturnsStoredRow(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
	current := testSprint("spr_1", "prj_1", store.SprintActive)
	f.getSprintFn = func(context.Context, string) (store.Sprint, error) {
		return current, nil
	}
	f.completeSprintFn = func(context.Context, string) (bool, error) {
		current.Status = store.SprintCompleted
		current.UpdatedAt = current.UpdatedAt.Add(time.Hour)
		return true, nil
	}
	svc := newTestService(f)

	sprint, _, err := svc.CompleteSprint(context.Background(), "usr_m", "spr_1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if sprint.Status != store.SprintCompleted {
		t.Fatalf("expected completed, got %s", sprint.Status)
	}
	if !sprint.UpdatedAt.Equal(current.UpdatedAt) {
		t.Fatalf("expected updated_at %v from store, got %v", current.UpdatedAt, sprint.UpdatedAt)
	}
}

func TestCancelSprintFromPlanningAndActive(t *testing.T) {
	for _, status := range []string{store.SprintPlanning, store.SprintActive} {
		f := &fakeStore{}
		withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
		current := testSprint("spr_1", "prj_1", status)
		f.getSprintFn = func(context.Context, string) (store.Sprint, error) {
			return current, nil
		}
		f.cancelSprintFn = func(context.Context, string) (bool, error) {
			current.Status = store.SprintCancelled
			current.UpdatedAt = current.UpdatedAt.Add(time.Hour)
			return true, nil
		}
		svc := newTestService(f)

		sprint, err := svc.CancelSprint(context.Background(), "usr_m", "spr_1")
		if err != nil {
			t.Fatalf("cancel from %s: %v", status, err)
		}
		if sprint.Status != store.SprintCancelled {
			t.Fatalf("expected cancelled, got %s", sprint.Status)
		}
		// The response is the stored row, not the pre-transition snapshot.
		if !sprint.UpdatedAt.Equal(current.UpdatedAt) {
			t.Fatalf("expected updated_at %v from store, got %v", current.UpdatedAt, sprint.UpdatedAt)
		}
	}

	for _, status := range []string{store.SprintCompleted, store.SprintCancelled} {
		f := &fakeStore{}
		withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
		f.getSprintFn = func(context.Context, string) (store.Sprint, error) {
			return testSprint("spr_1", "prj_1", status), nil
		}
		svc := newTestService(f)

		_, err := svc.CancelSprint(context.Background(), "usr_m", "spr_1")
		requireDomainCode(t, err, "INVALID_STATE")
	}
}

func TestUpdateSprintRejectsTerminal(t *testing.T) {
	name := "Renamed"
	for _, status := range []string{store.SprintCompleted, store.SprintCancelled} {
		f := &fakeStore{}
		withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
		f.getSprintFn = func(context.Context, string) (store.Sprint, error) {
			return testSprint("spr_1", "prj_1", status), nil
		}
		svc := newTestService(f)

		_, err := svc.UpdateSprint(context.Background(), "usr_m", "spr_1", UpdateSprintInput{Name: &name})
		requireDomainCode(t, err, "INVALID_STATE")
	}
}

func TestUpdateSprintValidatesEffectiveDates(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
	stored := testSprint("spr_1", "prj_1", store.SprintPlanning)
	f.getSprintFn = func(context.Context, string) (store.Sprint, error) {
		return stored, nil
	}
	svc := newTestService(f)

	// Only the end date moves, to before the stored start.
	badEnd := stored.StartDate.AddDate(0, 0, -1)
	_, err := svc.UpdateSprint(context.Background(), "usr_m", "spr_1", UpdateSprintInput{EndDate: &badEnd})
	requireDomainCode(t, err, "INVALID_DATE_RANGE")

	// Moving both together past the old window is fine.
	newStart := stored.EndDate.AddDate(0, 0, 7)
	newEnd := newStart.AddDate(0, 0, 14)
	var saved store.Sprint
	f.updateSprintFn = func(_ context.Context, sprint store.Sprint) error {
		saved = sprint
		return nil
	}
	if _, err := svc.UpdateSprint(context.Background(), "usr_m", "spr_1", UpdateSprintInput{
		StartDate: &newStart,
		EndDate:   &newEnd,
	}); err != nil {
		t.Fatalf("UpdateSprint: %v", err)
	}
	if !saved.StartDate.Equal(newStart) || !saved.EndDate.Equal(newEnd) {
		t.Fatalf("dates not persisted: %+v", saved)
	}
}

func TestAddIssueCrossProjectRejected(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
	f.getSprintFn = func(context.Context, string) (store.Sprint, error) {
		return testSprint("spr_1", "prj_1", store.SprintActive), nil
	}
	f.getIssueFn = func(context.Context, string) (store.Issue, error) {
		return store.Issue{ID: "iss_1", ProjectID: "prj_other", Type: store.IssueTypeTask}, nil
	}
	svc := newTestService(f)

	err := svc.AddIssueToSprint(context.Background(), "usr_m", "spr_1", "iss_1")
	requireDomainCode(t, err, "CROSS_PROJECT")
}

func TestAddIssueTerminalSprintRejected(t *testing.T) {
	for _, status := range []string{store.SprintCompleted, store.SprintCancelled} {
		f := &fakeStore{}
		withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
		f.getSprintFn = func(context.Context, string) (store.Sprint, error) {
			return testSprint("spr_1", "prj_1", status), nil
		}
		f.getIssueFn = func(context.Context, string) (store.Issue, error) {
			return store.Issue{ID: "iss_1", ProjectID: "prj_1", Type: store.IssueTypeTask}, nil
		}
		svc := newTestService(f)

		err := svc.AddIssueToSprint(context.Background(), "usr_m", "spr_1", "iss_1")
		requireDomainCode(t, err, "INVALID_STATE")
	}
}

func TestAddIssueIdempotentForSameSprint(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
	f.getSprintFn = func(context.Context, string) (store.Sprint, error) {
		return testSprint("spr_1", "prj_1", store.SprintActive), nil
	}
	linked := "spr_1"
	f.getIssueFn = func(context.Context, string) (store.Issue, error) {
		return store.Issue{ID: "iss_1", ProjectID: "prj_1", Type: store.IssueTypeTask, SprintID: &linked}, nil
	}
	attached := false
	f.attachIssueFn = func(context.Context, string, string) error {
		attached = true
		return nil
	}
	svc := newTestService(f)

	if err := svc.AddIssueToSprint(context.Background(), "usr_m", "spr_1", "iss_1"); err != nil {
		t.Fatalf("re-adding to the same sprint must be a no-op, got %v", err)
	}
	if attached {
		t.Fatal("no store write expected for an idempotent add")
	}
}

func TestAddIssueMovesFromPreviousSprint(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
	f.getSprintFn = func(context.Context, string) (store.Sprint, error) {
		return testSprint("spr_2", "prj_1", store.SprintPlanning), nil
	}
	previous := "spr_1"
	f.getIssueFn = func(context.Context, string) (store.Issue, error) {
		return store.Issue{ID: "iss_1", ProjectID: "prj_1", Type: store.IssueTypeTask, SprintID: &previous}, nil
	}
	var detachedFrom string
	var detachReset bool
	f.detachIssueFn = func(_ context.Context, sprintID, _ string, reset bool) error {
		detachedFrom = sprintID
		detachReset = reset
		return nil
	}
	var attachedTo string
	f.attachIssueFn = func(_ context.Context, sprintID, _ string) error {
		attachedTo = sprintID
		return nil
	}
	svc := newTestService(f)

	if err := svc.AddIssueToSprint(context.Background(), "usr_m", "spr_2", "iss_1"); err != nil {
		t.Fatalf("AddIssueToSprint: %v", err)
	}
	if detachedFrom != "spr_1" {
		t.Fatalf("expected detach from spr_1, got %q", detachedFrom)
	}
	if detachReset {
		t.Fatal("moving between sprints must not reset the issue status")
	}
	if attachedTo != "spr_2" {
		t.Fatalf("expected attach to spr_2, got %q", attachedTo)
	}
}

func TestRemoveIssueStatusReset(t *testing.T) {
	cases := []struct {
		name       string
		issueType  string
		keepStatus bool
		wantReset  bool
	}{
		{"task default resets", store.IssueTypeTask, false, true},
		{"task keepStatus preserves", store.IssueTypeTask, true, false},
		{"bug never resets", store.IssueTypeBug, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeStore{}
			withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
			f.getSprintFn = func(context.Context, string) (store.Sprint, error) {
				return testSprint("spr_1", "prj_1", store.SprintActive), nil
			}
			linked := "spr_1"
			f.getIssueFn = func(context.Context, string) (store.Issue, error) {
				return store.Issue{ID: "iss_1", ProjectID: "prj_1", Type: tc.issueType, Status: store.IssueInProgress, SprintID: &linked}, nil
			}
			var gotReset bool
			f.detachIssueFn = func(_ context.Context, _, _ string, reset bool) error {
				gotReset = reset
				return nil
			}
			svc := newTestService(f)

			if err := svc.RemoveIssueFromSprint(context.Background(), "usr_m", "spr_1", "iss_1", tc.keepStatus); err != nil {
				t.Fatalf("RemoveIssueFromSprint: %v", err)
			}
			if gotReset != tc.wantReset {
				t.Fatalf("reset=%v, want %v", gotReset, tc.wantReset)
			}
		})
	}
}

func TestRemoveIssueCrossProjectRejected(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
	f.getSprintFn = func(context.Context, string) (store.Sprint, error) {
		return testSprint("spr_1", "prj_1", store.SprintActive), nil
	}
	sprintID := "spr_1"
	f.getIssueFn = func(context.Context, string) (store.Issue, error) {
		return store.Issue{ID: "iss_1", ProjectID: "prj_other", Type: store.IssueTypeTask, SprintID: &sprintID}, nil
	}
	svc := newTestService(f)

	err := svc.RemoveIssueFromSprint(context.Background(), "usr_m", "spr_1", "iss_1", false)
	requireDomainCode(t, err, "CROSS_PROJECT")
}

func TestRemoveIssueNotInSprint(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{"usr_m": "manager"})
	f.getSprintFn = func(context.Context, string) (store.Sprint, error) {
		return testSprint("spr_1", "prj_1", store.SprintActive), nil
	}
	f.getIssueFn = func(context.Context, string) (store.Issue, error) {
		return store.Issue{ID: "iss_1", ProjectID: "prj_1", Type: store.IssueTypeTask}, nil
	}
	svc := newTestService(f)

	err := svc.RemoveIssueFromSprint(context.Background(), "usr_m", "spr_1", "iss_1", false)
	requireDomainCode(t, err, "NOT_FOUND")
}

func TestSprintStatsAggregation(t *testing.T) {
	assignee := "usr_a"
	issues := []store.Issue{
		{ID: "iss_1", Status: store.IssueDone, Type: store.IssueTypeTask, StoryPoints: 3, AssigneeID: &assignee},
		{ID: "iss_2", Status: store.IssueDone, Type: store.IssueTypeTask, StoryPoints: 5, AssigneeID: &assignee},
		{ID: "iss_3", Status: store.IssueInProgress, Type: store.IssueTypeTask, StoryPoints: 2, AssigneeID: &assignee},
		{ID: "iss_4", Status: store.IssueTodo, Type: store.IssueTypeBug, StoryPoints: 0},
	}
	stats := computeSprintStats(issues)

	if stats.TotalIssues != 4 {
		t.Fatalf("totalIssues = %d, want 4", stats.TotalIssues)
	}
	if stats.CompletedIssues != 2 {
		t.Fatalf("completedIssues = %d, want 2", stats.CompletedIssues)
	}
	if stats.InProgressIssues != 1 || stats.TodoIssues != 1 {
		t.Fatalf("partition wrong: %+v", stats)
	}
	if stats.TotalStoryPoints != 10 {
		t.Fatalf("totalStoryPoints = %d, want 10", stats.TotalStoryPoints)
	}
	if stats.CompletedStoryPoints != 8 {
		t.Fatalf("completedStoryPoints = %d, want 8", stats.CompletedStoryPoints)
	}
	if stats.CompletionRate != 50 {
		t.Fatalf("completionRate = %v, want 50", stats.CompletionRate)
	}
}

func TestSprintStatsEmptySprint(t *testing.T) {
	stats := computeSprintStats(nil)
	if stats.TotalIssues != 0 || stats.CompletionRate != 0 {
		t.Fatalf("expected zeroed stats, got %+v", stats)
	}
}

func TestViewerForbiddenOnAllSprintMutations(t *testing.T) {
	newFake := func() *fakeStore {
		f := &fakeStore{}
		withRoles(f, "prj_1", "usr_m", map[string]string{
			"usr_m": "manager",
			"usr_v": "viewer",
		})
		f.getSprintFn = func(context.Context, string) (store.Sprint, error) {
			return testSprint("spr_1", "prj_1", store.SprintPlanning), nil
		}
		f.getIssueFn = func(context.Context, string) (store.Issue, error) {
			return store.Issue{ID: "iss_1", ProjectID: "prj_1", Type: store.IssueTypeTask}, nil
		}
		return f
	}
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	name := "Renamed"

	mutations := map[string]func(*Service) error{
		"create": func(svc *Service) error {
			_, err := svc.CreateSprint(context.Background(), "usr_v", "prj_1", CreateSprintInput{
				Name: "X", StartDate: start, EndDate: start.AddDate(0, 0, 7),
			})
			return err
		},
		"update": func(svc *Service) error {
			_, err := svc.UpdateSprint(context.Background(), "usr_v", "spr_1", UpdateSprintInput{Name: &name})
			return err
		},
		"delete": func(svc *Service) error {
			return svc.DeleteSprint(context.Background(), "usr_v", "spr_1")
		},
		"start": func(svc *Service) error {
			_, err := svc.StartSprint(context.Background(), "usr_v", "spr_1")
			return err
		},
		"complete": func(svc *Service) error {
			_, _, err := svc.CompleteSprint(context.Background(), "usr_v", "spr_1")
			return err
		},
		"cancel": func(svc *Service) error {
			_, err := svc.CancelSprint(context.Background(), "usr_v", "spr_1")
			return err
		},
		"addIssue": func(svc *Service) error {
			return svc.AddIssueToSprint(context.Background(), "usr_v", "spr_1", "iss_1")
		},
		"removeIssue": func(svc *Service) error {
			return svc.RemoveIssueFromSprint(context.Background(), "usr_v", "spr_1", "iss_1", false)
		},
	}
	for label, op := range mutations {
		t.Run(label, func(t *testing.T) {
			requireDomainCode(t, op(newTestService(newFake())), "FORBIDDEN")
		})
	}
}

// The two-user scenario: a manager runs the sprint lifecycle while a plain
// member can read everything but start nothing.
func TestSprintLifecycleManagerAndMember(t *testing.T) {
	f := &fakeStore{}
	withRoles(f, "prj_1", "usr_m", map[string]string{
		"usr_m": "manager",
		"usr_u": "member",
	})

	var current store.Sprint
	f.createSprintFn = func(_ context.Context, sprint store.Sprint) error {
		current = sprint
		return nil
	}
	f.getSprintFn = func(_ context.Context, id string) (store.Sprint, error) {
		return current, nil
	}
	f.activateSprintFn = func(_ context.Context, sprint store.Sprint) (bool, error) {
		current = sprint
		current.Status = store.SprintActive
		return true, nil
	}
	f.completeSprintFn = func(context.Context, string) (bool, error) {
		current.Status = store.SprintCompleted
		return true, nil
	}
	svc := newTestService(f)
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	created, err := svc.CreateSprint(ctx, "usr_m", "prj_1", CreateSprintInput{
		Name:      "Iteration 12",
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 14),
	})
	if err != nil {
		t.Fatalf("manager create: %v", err)
	}
	if created.Status != store.SprintPlanning {
		t.Fatalf("new sprint must be planning, got %s", created.Status)
	}

	// The member can see it.
	if _, err := svc.GetSprint(ctx, "usr_u", created.ID); err != nil {
		t.Fatalf("member read: %v", err)
	}
	// The member cannot start it.
	_, err = svc.StartSprint(ctx, "usr_u", created.ID)
	requireDomainCode(t, err, "FORBIDDEN")

	// The manager can.
	active, err := svc.StartSprint(ctx, "usr_m", created.ID)
	if err != nil {
		t.Fatalf("manager start: %v", err)
	}
	if active.Status != store.SprintActive {
		t.Fatalf("expected active, got %s", active.Status)
	}

	_, stats, err := svc.CompleteSprint(ctx, "usr_m", created.ID)
	if err != nil {
		t.Fatalf("manager complete: %v", err)
	}
	if stats.TotalIssues != 0 {
		t.Fatalf("empty sprint stats expected, got %+v", stats)
	}
}
