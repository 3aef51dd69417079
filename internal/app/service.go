package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"time"

	"tempo/api/internal/attach"
	"tempo/api/internal/auth"
	"tempo/api/internal/authpw"
	"tempo/api/internal/config"
	"tempo/api/internal/email"
	"tempo/api/internal/rbac"
	"tempo/api/internal/search"
	"tempo/api/internal/session"
	"tempo/api/internal/store"
	"tempo/api/internal/util"
)

// dataStore is the persistence surface the service needs. *store.PostgresStore
// satisfies it; tests swap in a fake.
type dataStore interface {
	CreateUser(ctx context.Context, user store.User) error
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	VerifyUserEmail(ctx context.Context, token string) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error

	CreateProject(ctx context.Context, project store.Project) error
	GetProject(ctx context.Context, projectID string) (store.Project, error)
	ListProjectsForUser(ctx context.Context, userID string) ([]store.Project, error)
	GetProjectMembership(ctx context.Context, projectID, userID string) (store.Membership, error)
	AddProjectMember(ctx context.Context, projectID, userID, role string) error
	RemoveProjectMember(ctx context.Context, projectID, userID string) (bool, error)
	ListProjectMembers(ctx context.Context, projectID string) ([]store.ProjectMember, error)

	CreateSprint(ctx context.Context, sprint store.Sprint) error
	GetSprint(ctx context.Context, sprintID string) (store.Sprint, error)
	ListSprintsByProject(ctx context.Context, projectID string) ([]store.Sprint, error)
	UpdateSprintDetails(ctx context.Context, sprint store.Sprint) error
	ActivateSprint(ctx context.Context, sprint store.Sprint) (bool, error)
	CompleteSprint(ctx context.Context, sprintID string) (bool, error)
	CancelSprint(ctx context.Context, sprintID string) (bool, error)
	DeleteSprint(ctx context.Context, sprintID string) (bool, error)
	AttachIssue(ctx context.Context, sprintID, issueID string) error
	DetachIssue(ctx context.Context, sprintID, issueID string, resetToBacklog bool) error
	ListSprintIssues(ctx context.Context, sprintID string) ([]store.Issue, error)
	FindSprintIssueMismatches(ctx context.Context) ([]store.SprintIssueMismatch, error)
	HealSprintIssues(ctx context.Context) (int, error)

	CreateIssue(ctx context.Context, issue store.Issue) (store.Issue, error)
	GetIssue(ctx context.Context, issueID string) (store.Issue, error)
	ListIssuesByProject(ctx context.Context, projectID string) ([]store.Issue, error)
	UpdateIssue(ctx context.Context, issue store.Issue) error
	DeleteIssue(ctx context.Context, issueID string) error

	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens and the access-token revocation list.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// notifier sends transactional email. Nil-able: when SMTP is not configured
// the service skips notifications.
type notifier interface {
	IsConfigured() bool
	SendVerificationEmail(to, userName, verificationURL string) error
	SendPasswordResetEmail(to, userName, resetURL string) error
	SendSprintStartedEmail(to []string, projectName, sprintName, goal, endDate string) error
	SendSprintCompletedEmail(to []string, projectName, sprintName string, doneCount, totalCount int) error
	SendIssueAssignedEmail(to, assigneeName, issueKey, issueTitle, projectName string) error
}

// issueIndexer mirrors issue writes into the search layer.
type issueIndexer interface {
	Search(q search.Query) search.Response
	IndexIssue(rec search.IssueRecord)
	DeleteIssue(id string)
}

// attachStore presigns object-storage operations for issue attachments.
type attachStore interface {
	PresignUpload(ctx context.Context, issueID, filename string) (string, string, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	ListForIssue(ctx context.Context, issueID string) ([]attach.Attachment, error)
	Delete(ctx context.Context, key string) error
	DeleteForIssue(ctx context.Context, issueID string) error
}

// Service wires the domain operations together.
type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	passwords *authpw.Service
	email     notifier
	search    issueIndexer
	attach    attachStore
}

// New builds the service. Optional subsystems (email, search, attachments)
// may be nil; the concrete pointers are only assigned to the interface
// fields when non-nil so the nil checks inside the service stay honest.
func New(cfg config.Config, st *store.PostgresStore, sessions *session.RedisStore, mail *email.Service, idx *search.Service, files *attach.Service) *Service {
	s := &Service{
		cfg:       cfg,
		store:     st,
		sessions:  sessions,
		passwords: authpw.NewService(st),
	}
	if mail != nil {
		s.email = mail
	}
	if idx != nil {
		s.search = idx
	}
	if files != nil {
		s.attach = files
	}
	return s
}

// Session is what a successful login or refresh hands back to the client.
type Session struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"displayName"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// SignUp registers a user and, when email is configured, sends the
// verification link. Without SMTP the verification token is returned so
// development setups can complete the flow by hand.
func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (map[string]any, error) {
	res, err := s.passwords.SignUp(ctx, req)
	if err != nil {
		if err.Error() == "email already registered" {
			return nil, domainError(http.StatusConflict, "EMAIL_EXISTS", "email already registered", nil)
		}
		return nil, errValidation(err.Error(), nil)
	}
	body := map[string]any{
		"userId":              res.UserID,
		"requiresEmailVerify": res.RequiresEmailVerify,
	}
	if s.email != nil && s.email.IsConfigured() {
		url := s.cfg.CORSOrigin + "/verify-email?token=" + res.VerificationToken
		name := req.DisplayName
		if name == "" {
			name = req.Username
		}
		if err := s.email.SendVerificationEmail(req.Email, name, url); err != nil {
			log.Printf("send verification email: %v", err)
		}
	} else {
		// Dev convenience when no mailer is wired up.
		body["verificationToken"] = res.VerificationToken
	}
	return body, nil
}

// SignIn verifies credentials and issues an access/refresh token pair.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	res, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials", nil)
	}
	if res.RequiresVerify {
		return Session{}, errForbidden("email not verified")
	}
	return s.issueSession(ctx, res.User)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	expires := time.Now().Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:      user.ID,
		Username: user.Username,
		JTI:      util.NewID("jti"),
		Exp:      expires.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rt")
	refreshExpires := time.Now().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Username:     user.Username,
		DisplayName:  user.DisplayName,
		ExpiresAt:    expires,
	}, nil
}

// Refresh rotates the refresh token and issues a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	hash := auth.HashToken(refreshToken)
	stub, err := s.sessions.LookupRefreshSession(ctx, hash)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "invalid refresh token", nil)
	}
	user, err := s.store.GetUserByID(ctx, stub.ID)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "invalid refresh token", nil)
	}
	// Rotation: the presented token is single-use.
	if err := s.sessions.RevokeRefreshSession(ctx, hash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// SessionFromToken validates an access token and returns the claims, checking
// the revocation list.
func (s *Service) SessionFromToken(ctx context.Context, token string) (auth.Claims, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return auth.Claims{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return auth.Claims{}, err
	}
	if revoked {
		return auth.Claims{}, auth.ErrInvalidToken
	}
	return claims, nil
}

// Logout revokes both halves of the session.
func (s *Service) Logout(ctx context.Context, claims auth.Claims, refreshToken string) error {
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			return err
		}
	}
	return s.sessions.RevokeAccessToken(ctx, claims.JTI, time.Unix(claims.Exp, 0))
}

// VerifyEmail consumes a verification token.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if err := s.passwords.VerifyEmail(ctx, token); err != nil {
		return errValidation(err.Error(), nil)
	}
	return nil
}

// RequestPasswordReset starts the reset flow. It never reveals whether the
// email exists.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) (map[string]any, error) {
	token, err := s.passwords.RequestPasswordReset(ctx, emailAddr)
	if err != nil {
		return nil, err
	}
	body := map[string]any{"ok": true}
	if token == "" {
		return body, nil
	}
	if s.email != nil && s.email.IsConfigured() {
		user, err := s.store.GetUserByEmail(ctx, emailAddr)
		if err == nil {
			url := s.cfg.CORSOrigin + "/reset-password?token=" + token
			if err := s.email.SendPasswordResetEmail(user.Email, user.DisplayName, url); err != nil {
				log.Printf("send password reset email: %v", err)
			}
		}
	} else {
		body["resetToken"] = token
	}
	return body, nil
}

// ResetPassword completes the reset flow.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := s.passwords.ResetPassword(ctx, authpw.ResetPasswordRequest{Token: token, NewPassword: newPassword}); err != nil {
		return errValidation(err.Error(), nil)
	}
	return nil
}

// Ping reports storage health for the readiness probe.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// projectAccess loads the project and resolves the caller's role within it.
// A missing project maps to NotFound; a non-member gets rbac.RoleNone.
func (s *Service) projectAccess(ctx context.Context, projectID, userID string) (store.Project, rbac.Role, rbac.Context, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Project{}, rbac.RoleNone, rbac.Context{}, errNotFound("project")
		}
		return store.Project{}, rbac.RoleNone, rbac.Context{}, err
	}
	rctx := rbac.Context{IsProjectOwner: project.ManagerID == userID}
	membership, err := s.store.GetProjectMembership(ctx, projectID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return project, rbac.RoleNone, rctx, nil
		}
		return store.Project{}, rbac.RoleNone, rbac.Context{}, err
	}
	return project, rbac.Normalize(membership.Role), rctx, nil
}

// memberEmails resolves the addresses to notify for project-wide events.
func (s *Service) memberEmails(ctx context.Context, projectID string) []string {
	members, err := s.store.ListProjectMembers(ctx, projectID)
	if err != nil {
		log.Printf("list project members for notify: %v", err)
		return nil
	}
	emails := make([]string, 0, len(members))
	for _, m := range members {
		if m.Email != "" {
			emails = append(emails, m.Email)
		}
	}
	return emails
}
