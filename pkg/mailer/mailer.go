/**
 * @description
 * This package wraps the SendGrid v3 mail-send API for the one email this
 * service ever sends: the completed, signed document relayed to the signer as
 * a PDF attachment. Subject, body, sender, and attachment filename are fixed
 * per deployment; only the recipient and document bytes vary per call.
 *
 * @dependencies
 * - github.com/sendgrid/sendgrid-go: the SendGrid Go SDK.
 */
package mailer

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// DefaultSubject and DefaultBody are used when the deployment does not
// override them.
const (
	DefaultSubject  = "Your completed membership agreement"
	DefaultBody     = "Thank you for completing your membership application. The signed agreement is attached for your records."
	DefaultFilename = "Completed-Membership-Agreement.pdf"
)

// Mailer sends completed-document emails through SendGrid.
type Mailer struct {
	client   *sendgrid.Client
	from     string
	subject  string
	body     string
	filename string
}

// New creates a Mailer with the given API key and sender address. Empty
// subject/body/filename fall back to the package defaults.
func New(apiKey, from, subject string) *Mailer {
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}
	return &Mailer{
		client:   sendgrid.NewSendClient(apiKey),
		from:     from,
		subject:  subject,
		body:     DefaultBody,
		filename: DefaultFilename,
	}
}

// SendSignedDocument emails the signed PDF to the given address. The document
// travels base64-encoded as an application/pdf attachment.
func (m *Mailer) SendSignedDocument(ctx context.Context, to string, pdf []byte) error {
	message := m.buildSignedDocumentMessage(to, pdf)

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to dispatch signed-document email: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("level=warn component=mailer op=send status=%d msg=\"mail provider rejected dispatch\"", resp.StatusCode)
		return fmt.Errorf("mail provider rejected dispatch (status %d)", resp.StatusCode)
	}

	log.Printf("level=info component=mailer op=send msg=\"signed document delivered\" to=%s bytes=%d", to, len(pdf))
	return nil
}

// buildSignedDocumentMessage assembles the v3 mail with the PDF attached.
func (m *Mailer) buildSignedDocumentMessage(to string, pdf []byte) *mail.SGMailV3 {
	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail("", m.from))
	message.Subject = m.subject

	personalization := mail.NewPersonalization()
	personalization.AddTos(mail.NewEmail("", to))
	message.AddPersonalizations(personalization)

	message.AddContent(mail.NewContent("text/plain", m.body))

	attachment := mail.NewAttachment()
	attachment.SetContent(base64.StdEncoding.EncodeToString(pdf))
	attachment.SetType("application/pdf")
	attachment.SetFilename(m.filename)
	attachment.SetDisposition("attachment")
	message.AddAttachment(attachment)

	return message
}
