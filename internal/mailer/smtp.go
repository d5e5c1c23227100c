package mailer

import (
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"github.com/google/uuid"
)

// SMTP sends multipart text+HTML mail through a plain SMTP relay.
type SMTP struct {
	Addr string // host:port
	From string
	auth smtp.Auth
}

func NewSMTP(addr, user, pass, from string) *SMTP {
	s := &SMTP{Addr: addr, From: from}
	if user != "" {
		host := addr
		if i := strings.IndexByte(addr, ':'); i >= 0 {
			host = addr[:i]
		}
		s.auth = smtp.PlainAuth("", user, pass, host)
	}
	return s
}

func (s *SMTP) SendVerification(m VerificationMail) error {
	subject := "Verificá tu cuenta en GiraLibros"

	text := fmt.Sprintf(
		"Hola %s:\n\n"+
			"Gracias por registrarte en GiraLibros. Para activar tu cuenta, entrá a este enlace:\n\n"+
			"%s\n\n"+
			"Si no creaste esta cuenta, ignorá este mensaje.\n",
		m.Username, m.VerifyURL)

	html := fmt.Sprintf(
		"<p>Hola %s:</p>"+
			"<p>Gracias por registrarte en GiraLibros. Para activar tu cuenta, hacé clic en este enlace:</p>"+
			"<p><a href=%q>Verificar mi cuenta</a></p>"+
			"<p>Si no creaste esta cuenta, ignorá este mensaje.</p>",
		m.Username, m.VerifyURL)

	return s.send(m.To, subject, text, html)
}

func (s *SMTP) SendExchangeRequest(m ExchangeMail) error {
	subject := fmt.Sprintf("Pedido de intercambio: %s", m.BookTitle)

	contact := m.Requester.ContactEmail
	if m.Requester.AlternateContact != "" {
		contact += " / " + m.Requester.AlternateContact
	}
	name := m.Requester.FirstName
	if name == "" {
		name = m.RequesterUsername
	}

	var textList, htmlList strings.Builder
	for _, b := range m.RequesterBooks {
		fmt.Fprintf(&textList, "  - %s (%s)\n", b.Title, b.Author)
		fmt.Fprintf(&htmlList, "<li>%s (%s)</li>", b.Title, b.Author)
	}

	text := fmt.Sprintf(
		"Hola %s:\n\n"+
			"%s (%s) quiere intercambiar tu libro %q de %s.\n\n"+
			"Contacto: %s\n\n"+
			"Libros que ofrece a cambio:\n%s\n"+
			"Escribile para coordinar el intercambio. ¡Buen canje!\n",
		m.OwnerUsername, name, m.RequesterUsername, m.BookTitle, m.BookAuthor, contact, textList.String())

	about := ""
	if m.Requester.About != "" {
		about = fmt.Sprintf("<p>Sobre %s: %s</p>", name, m.Requester.About)
	}
	html := fmt.Sprintf(
		"<p>Hola %s:</p>"+
			"<p><strong>%s</strong> (%s) quiere intercambiar tu libro <strong>%s</strong> de %s.</p>"+
			"<p>Contacto: %s</p>"+
			"%s"+
			"<p>Libros que ofrece a cambio:</p><ul>%s</ul>"+
			"<p>Escribile para coordinar el intercambio. ¡Buen canje!</p>",
		m.OwnerUsername, name, m.RequesterUsername, m.BookTitle, m.BookAuthor, contact, about, htmlList.String())

	return s.send(m.To, subject, text, html)
}

func (s *SMTP) send(to, subject, text, html string) error {
	msg := buildMessage(s.From, to, subject, text, html, "p"+uuid.NewString())
	if err := smtp.SendMail(s.Addr, s.auth, s.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// buildMessage assembles a multipart/alternative message: plain text
// first, HTML second, so clients prefer the richer part.
func buildMessage(from, to, subject, text, html, boundary string) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(text)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(html)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return []byte(b.String())
}
