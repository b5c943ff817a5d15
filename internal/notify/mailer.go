package notify

import (
	mail "gopkg.in/mail.v2"
)

// Mailer sends one plain-text email. The SMTP server owns retry and
// timeout policy beyond a single dial.
type Mailer interface {
	Send(to, subject, body string) error
}

type SMTPMailer struct {
	host string
	port int
	user string
	pass string
	from string
}

func NewSMTPMailer(host string, port int, user, pass, from string) *SMTPMailer {
	return &SMTPMailer{
		host: host,
		port: port,
		user: user,
		pass: pass,
		from: from,
	}
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := mail.NewMessage()

	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dialer := mail.NewDialer(m.host, m.port, m.user, m.pass)

	return dialer.DialAndSend(msg)
}
