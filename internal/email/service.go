// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host      string
	Port      string
	Username  string
	Password  string
	From      string
	FromName  string
	EnableTLS bool
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

// NewService creates a new email service
func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		s.fromHeader(),
		subject,
		body,
	))

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg)
}

// SendHTMLEmail sends an HTML email with a plain text fallback part
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	boundary := "boundary-tempo"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", s.fromHeader())
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

func (s *Service) fromHeader() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

type VerificationData struct {
	AppName         string
	UserName        string
	VerificationURL string
}

type PasswordResetData struct {
	AppName  string
	UserName string
	ResetURL string
}

type SprintData struct {
	AppName     string
	ProjectName string
	SprintName  string
	SprintGoal  string
	EndDate     string
	DoneCount   int
	TotalCount  int
}

type IssueAssignedData struct {
	AppName      string
	AssigneeName string
	IssueKey     string
	IssueTitle   string
	ProjectName  string
}

// SendVerificationEmail sends an email verification email
func (s *Service) SendVerificationEmail(to, userName, verificationURL string) error {
	data := VerificationData{
		AppName:         "Tempo",
		UserName:        userName,
		VerificationURL: verificationURL,
	}

	subject := "Verify your Tempo account"
	html, err := renderTemplate(verificationEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

// SendPasswordResetEmail sends a password reset email
func (s *Service) SendPasswordResetEmail(to, userName, resetURL string) error {
	data := PasswordResetData{
		AppName:  "Tempo",
		UserName: userName,
		ResetURL: resetURL,
	}

	subject := "Reset your Tempo password"
	html, err := renderTemplate(passwordResetEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

// SendSprintStartedEmail notifies project members that a sprint began.
func (s *Service) SendSprintStartedEmail(to []string, projectName, sprintName, goal, endDate string) error {
	data := SprintData{
		AppName:     "Tempo",
		ProjectName: projectName,
		SprintName:  sprintName,
		SprintGoal:  goal,
		EndDate:     endDate,
	}

	subject := fmt.Sprintf("Sprint started: %s (%s)", sprintName, projectName)
	html, err := renderTemplate(sprintStartedEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render sprint started template: %w", err)
	}

	return s.SendHTMLEmail(to, subject, html)
}

// SendSprintCompletedEmail notifies project members that a sprint finished,
// with its done/total issue tally.
func (s *Service) SendSprintCompletedEmail(to []string, projectName, sprintName string, doneCount, totalCount int) error {
	data := SprintData{
		AppName:     "Tempo",
		ProjectName: projectName,
		SprintName:  sprintName,
		DoneCount:   doneCount,
		TotalCount:  totalCount,
	}

	subject := fmt.Sprintf("Sprint completed: %s (%s)", sprintName, projectName)
	html, err := renderTemplate(sprintCompletedEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render sprint completed template: %w", err)
	}

	return s.SendHTMLEmail(to, subject, html)
}

// SendIssueAssignedEmail notifies a user they were assigned an issue.
func (s *Service) SendIssueAssignedEmail(to, assigneeName, issueKey, issueTitle, projectName string) error {
	data := IssueAssignedData{
		AppName:      "Tempo",
		AssigneeName: assigneeName,
		IssueKey:     issueKey,
		IssueTitle:   issueTitle,
		ProjectName:  projectName,
	}

	subject := fmt.Sprintf("[%s] Assigned to you: %s", issueKey, issueTitle)
	html, err := renderTemplate(issueAssignedEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render issue assigned template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const emailStyle = `body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #0066cc; }
        .warning { background: #fff3cd; padding: 12px; border-radius: 4px; margin: 20px 0; }`

const verificationEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Verify your {{.AppName}} account</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Welcome, {{.UserName}}!</h2>

    <p>Thank you for signing up. Please verify your email address to activate your account.</p>

    <p>
        <a href="{{.VerificationURL}}" class="button">Verify Email Address</a>
    </p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.VerificationURL}}</p>

    <p>This verification link will expire in 24 hours.</p>

    <div class="footer">
        <p>If you didn't create an account with {{.AppName}}, you can safely ignore this email.</p>
    </div>
</body>
</html>`

const passwordResetEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Reset your {{.AppName}} password</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Password Reset Request</h2>

    <p>Hi {{.UserName}},</p>

    <p>We received a request to reset your password. Click the button below to create a new password:</p>

    <p>
        <a href="{{.ResetURL}}" class="button">Reset Password</a>
    </p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.ResetURL}}</p>

    <div class="warning">
        <strong>Important:</strong> This reset link will expire in 1 hour.
    </div>

    <div class="footer">
        <p>If you didn't request a password reset, you can safely ignore this email. Your password will remain unchanged.</p>
    </div>
</body>
</html>`

const sprintStartedEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Sprint started</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Sprint started: {{.SprintName}}</h2>

    <p>The sprint <strong>{{.SprintName}}</strong> in project <strong>{{.ProjectName}}</strong> is now active.</p>

    {{if .SprintGoal}}<p><strong>Goal:</strong> {{.SprintGoal}}</p>{{end}}

    <p>The sprint runs until <strong>{{.EndDate}}</strong>.</p>

    <div class="footer">
        <p>You are receiving this email because you are a member of {{.ProjectName}}.</p>
    </div>
</body>
</html>`

const sprintCompletedEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Sprint completed</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Sprint completed: {{.SprintName}}</h2>

    <p>The sprint <strong>{{.SprintName}}</strong> in project <strong>{{.ProjectName}}</strong> has been completed.</p>

    <p><strong>{{.DoneCount}}</strong> of <strong>{{.TotalCount}}</strong> issues were finished.</p>

    <div class="footer">
        <p>You are receiving this email because you are a member of {{.ProjectName}}.</p>
    </div>
</body>
</html>`

const issueAssignedEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Issue assigned</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>{{.IssueKey}}: {{.IssueTitle}}</h2>

    <p>Hi {{.AssigneeName}},</p>

    <p>You have been assigned <strong>{{.IssueKey}}</strong> in project <strong>{{.ProjectName}}</strong>.</p>

    <div class="footer">
        <p>You are receiving this email because the issue was assigned to you.</p>
    </div>
</body>
</html>`
