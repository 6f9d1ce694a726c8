package devauth

import (
	"fmt"
	"log/slog"
	"net/smtp"
)

// SendEmail delivers password reset links. Applications can provide their
// own implementation.
type SendEmail interface {
	SendPasswordResetEmail(to string, resetLink string) error
}

// ConsoleEmailSender is a development implementation that logs emails
type ConsoleEmailSender struct {
	Logger *slog.Logger
}

func (c *ConsoleEmailSender) SendPasswordResetEmail(to string, resetLink string) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("email: password reset",
		"to", to,
		"subject", "Your password reset token",
		"link", resetLink)
	return nil
}

// SMTPConfig holds the settings for SMTPEmailSender.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// SMTPEmailSender sends mail through an SMTP relay with PLAIN auth.
type SMTPEmailSender struct {
	Config SMTPConfig

	// send is smtp.SendMail; replaced in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPEmailSender(cfg SMTPConfig) *SMTPEmailSender {
	return &SMTPEmailSender{Config: cfg, send: smtp.SendMail}
}

func (e *SMTPEmailSender) SendPasswordResetEmail(to string, resetLink string) error {
	body := fmt.Sprintf(`Forgot your password? Submit a request with your new password to:

%s

If you didn't forget your password, please ignore this email.
`, resetLink)
	return e.sendEmail(to, "Your password reset token", body)
}

func (e *SMTPEmailSender) sendEmail(to, subject, body string) error {
	if e.Config.Username == "" || e.Config.Password == "" {
		return fmt.Errorf("email credentials not configured")
	}
	auth := smtp.PlainAuth("", e.Config.Username, e.Config.Password, e.Config.Host)

	from := e.Config.From
	if from == "" {
		from = e.Config.Username
	}
	message := []byte(fmt.Sprintf(
		"From: %s <%s>\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"\r\n"+
			"%s\r\n",
		e.Config.FromName, from, to, subject, body))

	send := e.send
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(e.Config.Host+":"+e.Config.Port, auth, from, []string{to}, message); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
