package mailer

import (
	"log"

	"giralibros/pkg/models"
)

// Mailer delivers the transactional emails the service sends. The
// exchange admission gate treats a send error as grounds to roll the
// whole request back, so implementations must report failures.
type Mailer interface {
	SendVerification(m VerificationMail) error
	SendExchangeRequest(m ExchangeMail) error
}

type VerificationMail struct {
	To        string
	Username  string
	VerifyURL string
}

// ExchangeMail goes to the book owner's contact address and carries
// everything needed to answer the requester off-platform: who they
// are, how to reach them, and what they offer in return.
type ExchangeMail struct {
	To                string
	OwnerUsername     string
	BookTitle         string
	BookAuthor        string
	RequesterUsername string
	Requester         models.Profile
	RequesterBooks    []models.OfferedBook
}

// Log is the dev-mode mailer: it prints instead of delivering. Useful
// when no SMTP server is configured.
type Log struct{}

func (Log) SendVerification(m VerificationMail) error {
	log.Printf("[mailer] verification for %s: %s", m.To, m.VerifyURL)
	return nil
}

func (Log) SendExchangeRequest(m ExchangeMail) error {
	log.Printf("[mailer] exchange request to %s: %q by %s, from %s",
		m.To, m.BookTitle, m.BookAuthor, m.RequesterUsername)
	return nil
}
