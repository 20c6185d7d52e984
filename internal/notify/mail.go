package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	gomail "gopkg.in/gomail.v2"
)

type MailOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	// PrimaryEmail receives operator alerts and a copy of every booking.
	PrimaryEmail string
	Logger       *slog.Logger
}

// Mailer sends SMTP mail for both operator alerts and booking
// notifications.
type Mailer struct {
	dialer  *gomail.Dialer
	from    string
	primary string
	logger  *slog.Logger
}

func NewMailer(opts MailOptions) (*Mailer, error) {
	if strings.TrimSpace(opts.Host) == "" {
		return nil, errors.New("smtp host is empty")
	}
	if strings.TrimSpace(opts.PrimaryEmail) == "" {
		return nil, errors.New("primary email is empty")
	}

	port := opts.Port
	if port <= 0 {
		port = 587
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Mailer{
		dialer:  gomail.NewDialer(opts.Host, port, opts.User, opts.Password),
		from:    opts.From,
		primary: opts.PrimaryEmail,
		logger:  logger,
	}, nil
}

func (m *Mailer) Alert(ctx context.Context, subject, body string) error {
	return m.send([]string{m.primary}, subject, body, nil)
}

// SendBooking mails the stylist and the primary address. The stylist list
// may be empty when no stylist matched; the primary address is always
// included.
func (m *Mailer) SendBooking(ctx context.Context, to []string, subject, body string, attachments []string) error {
	recipients := make([]string, 0, len(to)+1)
	seen := map[string]bool{}
	for _, addr := range append(to, m.primary) {
		addr = strings.TrimSpace(addr)
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		recipients = append(recipients, addr)
	}
	return m.send(recipients, subject, body, attachments)
}

func (m *Mailer) send(to []string, subject, body string, attachments []string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	for _, path := range attachments {
		msg.Attach(path)
	}

	if err := m.dialer.DialAndSend(msg); err != nil {
		return err
	}
	m.logger.Info("mail sent", "to", strings.Join(to, ","), "subject", subject)
	return nil
}
