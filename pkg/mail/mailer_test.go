package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

type fakeClient struct {
	from  string
	rcpts []string
	body  bytes.Buffer
	auth  bool
	quit  bool
}

func (f *fakeClient) Mail(from string) error          { f.from = from; return nil }
func (f *fakeClient) Rcpt(to string) error            { f.rcpts = append(f.rcpts, to); return nil }
func (f *fakeClient) Data() (io.WriteCloser, error)   { return nopCloser{&f.body}, nil }
func (f *fakeClient) Quit() error                     { f.quit = true; return nil }
func (f *fakeClient) Close() error                    { return nil }
func (f *fakeClient) StartTLS(*tls.Config) error      { return nil }
func (f *fakeClient) Auth(smtp.Auth) error            { f.auth = true; return nil }
func (f *fakeClient) Extension(string) (bool, string) { return false, "" }

func newFakeMailer(t *testing.T, cfg SMTPSettings) (*smtpMailer, *fakeClient) {
	t.Helper()
	m, err := NewSMTPMailer(cfg)
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}
	sm := m.(*smtpMailer)
	client := &fakeClient{}
	sm.dialFn = func(context.Context, SMTPSettings) (net.Conn, smtpClient, error) {
		server, peer := net.Pipe()
		_ = peer.Close()
		return server, client, nil
	}
	sm.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return sm, client
}

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	if _, err := NewSMTPMailer(SMTPSettings{Enabled: true}); err == nil || !strings.Contains(err.Error(), "host is required") {
		t.Fatalf("expected host validation error, got %v", err)
	}
	if _, err := NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com"}); err == nil || !strings.Contains(err.Error(), "port is required") {
		t.Fatalf("expected port validation error, got %v", err)
	}

	m, err := NewSMTPMailer(SMTPSettings{})
	if err != nil {
		t.Fatalf("expected disabled configuration to succeed: %v", err)
	}
	if m.(*smtpMailer).cfg.Timeout != 10*time.Second {
		t.Fatal("expected default timeout")
	}
}

func TestSendDisabled(t *testing.T) {
	m, _ := NewSMTPMailer(SMTPSettings{})
	err := m.Send(context.Background(), Message{To: []string{"a@example.com"}})
	if !errors.Is(err, ErrSMTPDisabled) {
		t.Fatalf("expected ErrSMTPDisabled, got %v", err)
	}
}

func TestSendRequiresRecipients(t *testing.T) {
	m, _ := newFakeMailer(t, SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 587, From: "team@example.com"})
	err := m.Send(context.Background(), Message{To: []string{"  ", "\t"}})
	if err == nil || !strings.Contains(err.Error(), "at least one recipient") {
		t.Fatalf("expected missing recipient error, got %v", err)
	}
}

func TestSendWritesHeadersAndDeduplicates(t *testing.T) {
	m, client := newFakeMailer(t, SMTPSettings{
		Enabled:  true,
		Host:     "smtp.example.com",
		Port:     587,
		From:     "team@example.com",
		Username: "robot",
	})

	err := m.Send(context.Background(), Message{
		To:      []string{"Bob@Example.com", "bob@example.com"},
		Subject: "Join\r\nthe team",
		Body:    "hello",
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if len(client.rcpts) != 1 || client.rcpts[0] != "bob@example.com" {
		t.Fatalf("unexpected recipients: %v", client.rcpts)
	}
	if !client.auth || !client.quit {
		t.Fatal("expected auth and quit to be called")
	}
	body := client.body.String()
	for _, want := range []string{"From: team@example.com", "Subject: Join  the team", "Message-ID: <", "@example.com>", "Date: Sat, 01 Mar 2025"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in %q", want, body)
		}
	}
	if !strings.HasSuffix(body, "hello") {
		t.Fatalf("expected body suffix, got %q", body)
	}
}

func TestMailerFunc(t *testing.T) {
	var got Message
	var m Mailer = MailerFunc(func(_ context.Context, msg Message) error {
		got = msg
		return nil
	})
	if err := m.Send(context.Background(), Message{Subject: "hi"}); err != nil {
		t.Fatal(err)
	}
	if got.Subject != "hi" {
		t.Fatalf("unexpected message: %+v", got)
	}
}
