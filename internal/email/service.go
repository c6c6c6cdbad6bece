// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

const appName = "Jira Lite"

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	// sendFn defaults to smtp.SendMail; tests swap it.
	sendFn func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewService creates a new email service
func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		sendFn: smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s != nil && s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) fromHeader() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

// SendHTMLEmail sends a multipart email with a plain text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}

	boundary := "boundary-jiralite"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", s.fromHeader())
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", textBody)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.sendFn(s.server, s.auth, s.config.From, to, msg.Bytes())
}

type actionData struct {
	AppName   string
	Heading   string
	Greeting  string
	Body      string
	ActionURL string
	Action    string
	Expiry    string
	Footer    string
}

// SendVerificationEmail sends an email verification email
func (s *Service) SendVerificationEmail(to, userName, verificationURL string) error {
	return s.sendAction(to, "Verify your "+appName+" account", actionData{
		Heading:   "Welcome, " + userName + "!",
		Body:      "Thank you for signing up. Please verify your email address to activate your account.",
		ActionURL: verificationURL,
		Action:    "Verify Email Address",
		Expiry:    "This verification link will expire in 24 hours.",
		Footer:    "If you didn't create an account with " + appName + ", you can safely ignore this email.",
	})
}

// SendPasswordResetEmail sends a password reset email
func (s *Service) SendPasswordResetEmail(to, userName, resetURL string) error {
	return s.sendAction(to, "Reset your "+appName+" password", actionData{
		Heading:   "Password Reset Request",
		Greeting:  "Hi " + userName + ",",
		Body:      "We received a request to reset your password. Use the link below to choose a new one.",
		ActionURL: resetURL,
		Action:    "Reset Password",
		Expiry:    "This reset link will expire in 1 hour.",
		Footer:    "If you didn't request a password reset, you can safely ignore this email.",
	})
}

// SendInvitationEmail invites someone to a team. The link leads to sign in
// or sign up, after which the pending invitation can be accepted.
func (s *Service) SendInvitationEmail(to, inviterName, teamName, acceptURL string) error {
	return s.sendAction(to, "You're invited to join "+teamName+" on "+appName, actionData{
		Heading:   "Join " + teamName,
		Body:      inviterName + " invited you to collaborate on the team " + teamName + ".",
		ActionURL: acceptURL,
		Action:    "Accept Invitation",
		Expiry:    "This invitation will expire in 7 days.",
		Footer:    "If you weren't expecting this invitation, you can ignore this email.",
	})
}

func (s *Service) sendAction(to, subject string, data actionData) error {
	data.AppName = appName
	html, err := renderTemplate(data)
	if err != nil {
		return fmt.Errorf("render email template: %w", err)
	}
	text := strings.TrimSpace(strings.Join([]string{data.Greeting, data.Body, data.ActionURL, data.Expiry}, "\n\n"))
	return s.SendHTMLEmail([]string{to}, subject, text, html)
}

var actionTemplate = template.Must(template.New("email").Parse(actionEmailTemplate))

func renderTemplate(data actionData) (string, error) {
	var buf bytes.Buffer
	if err := actionTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const actionEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.AppName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #2563eb; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #2563eb; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #2563eb; }
    </style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    <h2>{{.Heading}}</h2>
    {{if .Greeting}}<p>{{.Greeting}}</p>{{end}}
    <p>{{.Body}}</p>
    <p><a href="{{.ActionURL}}" class="button">{{.Action}}</a></p>
    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.ActionURL}}</p>
    <p>{{.Expiry}}</p>
    <div class="footer"><p>{{.Footer}}</p></div>
</body>
</html>`
