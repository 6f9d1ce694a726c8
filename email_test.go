package devauth

import (
	"bytes"
	"errors"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func captureSender(cfg SMTPConfig, sendErr error) (*SMTPEmailSender, *[]sentMail) {
	var sent []sentMail
	s := NewSMTPEmailSender(cfg)
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		if sendErr != nil {
			return sendErr
		}
		sent = append(sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	}
	return s, &sent
}

func TestSMTPEmailSender(t *testing.T) {
	cfg := SMTPConfig{
		Host:     "smtp.example.com",
		Port:     "587",
		Username: "mailer",
		Password: "secret",
		From:     "no-reply@example.com",
		FromName: "DevAuth",
	}
	sender, sent := captureSender(cfg, nil)

	link := "https://app.example.com/reset/abc123"
	if err := sender.SendPasswordResetEmail("a@example.com", link); err != nil {
		t.Fatalf("SendPasswordResetEmail failed: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("expected one email, got %d", len(*sent))
	}
	m := (*sent)[0]
	if m.addr != "smtp.example.com:587" {
		t.Errorf("unexpected addr %q", m.addr)
	}
	if m.from != "no-reply@example.com" || len(m.to) != 1 || m.to[0] != "a@example.com" {
		t.Errorf("unexpected envelope: from=%q to=%v", m.from, m.to)
	}
	for _, want := range []string{
		"From: DevAuth <no-reply@example.com>\r\n",
		"To: a@example.com\r\n",
		"Subject: Your password reset token\r\n",
		link,
	} {
		if !strings.Contains(m.msg, want) {
			t.Errorf("message missing %q:\n%s", want, m.msg)
		}
	}
}

func TestSMTPEmailSenderFromDefaultsToUsername(t *testing.T) {
	sender, sent := captureSender(SMTPConfig{Host: "h", Port: "25", Username: "mailer@example.com", Password: "p"}, nil)
	if err := sender.SendPasswordResetEmail("a@example.com", "link"); err != nil {
		t.Fatal(err)
	}
	if (*sent)[0].from != "mailer@example.com" {
		t.Errorf("expected username as sender, got %q", (*sent)[0].from)
	}
}

func TestSMTPEmailSenderErrors(t *testing.T) {
	sender, sent := captureSender(SMTPConfig{Host: "h", Port: "25"}, nil)
	if err := sender.SendPasswordResetEmail("a@example.com", "link"); err == nil {
		t.Error("expected an error without credentials")
	}
	if len(*sent) != 0 {
		t.Error("nothing should be sent without credentials")
	}

	relayErr := errors.New("554 rejected")
	failing, _ := captureSender(SMTPConfig{Host: "h", Port: "25", Username: "u", Password: "p"}, relayErr)
	if err := failing.SendPasswordResetEmail("a@example.com", "link"); !errors.Is(err, relayErr) {
		t.Errorf("expected the relay error to be wrapped, got %v", err)
	}
}

func TestConsoleEmailSender(t *testing.T) {
	var buf bytes.Buffer
	sender := &ConsoleEmailSender{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	if err := sender.SendPasswordResetEmail("a@example.com", "https://x/reset/tok"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "to=a@example.com") || !strings.Contains(out, "link=https://x/reset/tok") {
		t.Errorf("unexpected log output: %s", out)
	}
}
