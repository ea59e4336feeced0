package mailer

import (
	"fmt"
	"io"

	"gopkg.in/gomail.v2"

	"eventpass/internal/config"
)

// Mailer delivers ticket confirmations over SMTP. Delivery is best-effort:
// callers log failures and move on, issuance never rolls back on a mail
// error.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

// Embed is an inline attachment referenced from the HTML body by
// cid:<Name>.
type Embed struct {
	Name string
	Data []byte
}

func New(cfg config.EmailConfig) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   cfg.FromAddress,
	}
}

func (m *Mailer) message(to, subject, html string, embeds ...Embed) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html)
	for _, embed := range embeds {
		data := embed.Data
		msg.Embed(embed.Name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}
	return msg
}

// Send delivers a single HTML email, optionally with inline attachments.
func (m *Mailer) Send(to, subject, html string, embeds ...Embed) error {
	if err := m.dialer.DialAndSend(m.message(to, subject, html, embeds...)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// SendTicketConfirmation emails one issued ticket with its QR code embedded
// inline.
func (m *Mailer) SendTicketConfirmation(to, eventName, ticketID string, qrPNG []byte) error {
	subject := fmt.Sprintf("Your ticket for %s", eventName)
	html := fmt.Sprintf(`
		<html>
		<body>
			<h2>You're going to %s!</h2>
			<p>Ticket ID: <b>%s</b></p>
			<p>Show the QR code below at the door. Each code admits one person
			and can only be scanned once.</p>
			<img src="cid:ticket-qr.png" alt="ticket QR code"/>
		</body>
		</html>
	`, eventName, ticketID)

	return m.Send(to, subject, html, Embed{Name: "ticket-qr.png", Data: qrPNG})
}
