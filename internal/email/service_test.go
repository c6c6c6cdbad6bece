package email

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func newCapturingService(t *testing.T) (*Service, *[]sentMail) {
	t.Helper()
	svc := NewService(Config{Host: "smtp.example.com", Port: "587", From: "noreply@example.com", FromName: "Jira Lite"})
	var sent []sentMail
	svc.sendFn = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	}
	return svc, &sent
}

func TestSendVerificationEmail(t *testing.T) {
	svc, sent := newCapturingService(t)
	if err := svc.SendVerificationEmail("ada@example.com", "Ada", "https://app.example.com/verify?token=abc123"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("expected one message, got %d", len(*sent))
	}
	m := (*sent)[0]
	if m.addr != "smtp.example.com:587" || m.from != "noreply@example.com" || m.to[0] != "ada@example.com" {
		t.Fatalf("unexpected envelope %+v", m)
	}
	for _, want := range []string{
		"Subject: Verify your Jira Lite account",
		"From: Jira Lite <noreply@example.com>",
		"Welcome, Ada!",
		"https://app.example.com/verify?token=abc123",
		"24 hours",
	} {
		if !strings.Contains(m.msg, want) {
			t.Errorf("message should contain %q", want)
		}
	}
}

func TestSendPasswordResetEmailMentionsExpiry(t *testing.T) {
	svc, sent := newCapturingService(t)
	if err := svc.SendPasswordResetEmail("ada@example.com", "Ada", "https://app.example.com/reset?token=xyz789"); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := (*sent)[0].msg
	if !strings.Contains(msg, "1 hour") || !strings.Contains(msg, "Hi Ada,") {
		t.Fatalf("unexpected body %s", msg)
	}
}

func TestSendInvitationEmail(t *testing.T) {
	svc, sent := newCapturingService(t)
	if err := svc.SendInvitationEmail("bo@example.com", "Ada", "Core", "https://app.example.com/invites"); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := (*sent)[0].msg
	for _, want := range []string{"Subject: You're invited to join Core on Jira Lite", "Ada invited you", "7 days"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message should contain %q", want)
		}
	}
}

func TestTemplateEscapesUserInput(t *testing.T) {
	html, err := renderTemplate(actionData{Heading: "<script>alert(1)</script>"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Fatal("template must escape user supplied text")
	}
}

func TestUnconfiguredServiceRefusesToSend(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendVerificationEmail("a@example.com", "A", "u"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
