package store

import "time"

const (
	SprintPlanning  = "planning"
	SprintActive    = "active"
	SprintCompleted = "completed"
	SprintCancelled = "cancelled"
)

const (
	IssueBacklog    = "backlog"
	IssueTodo       = "todo"
	IssueInProgress = "in_progress"
	IssueInReview   = "in_review"
	IssueDone       = "done"
)

const (
	IssueTypeTask = "task"
	IssueTypeBug  = "bug"
)

// SprintTerminal reports whether a sprint status permits no further
// transitions.
func SprintTerminal(status string) bool {
	return status == SprintCompleted || status == SprintCancelled
}

type User struct {
	ID                    string
	Email                 string
	Username              string
	DisplayName           string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Project struct {
	ID        string
	Title     string
	Key       string
	ManagerID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Membership is the resolved standing of one user in one project: their
// role row (empty when none) plus whether they hold the legacy owner field.
type Membership struct {
	Role    string
	IsOwner bool
}

// ProjectMember is a membership row joined with user identity for read
// paths and notification fan-out.
type ProjectMember struct {
	ProjectID string
	UserID    string
	Role      string
	Username  string
	Email     string
	CreatedAt time.Time
}

type Sprint struct {
	ID        string
	ProjectID string
	Name      string
	Goal      string
	StartDate time.Time
	EndDate   time.Time
	Status    string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Issue struct {
	ID          string
	ProjectID   string
	Key         string
	Title       string
	Description string
	Status      string
	Type        string
	StoryPoints int
	AssigneeID  *string
	ReporterID  string
	SprintID    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SprintIssueMismatch is one divergence found by the reconciliation check:
// an issue whose sprint pointer disagrees with the sprint_issues collection.
type SprintIssueMismatch struct {
	IssueID        string
	IssueSprintID  *string
	LinkedSprintID *string
}
