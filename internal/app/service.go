/**
 * @description
 * This file contains the core logic for the esign-service: the initiator
 * pipeline that creates an embedded signing session, and the webhook pipeline
 * that relays a completed document to its signer by email.
 *
 * Both pipelines are ordered chains of fallible steps. Each step blocks on the
 * previous one (every step's input depends on the prior step's output), the
 * first failure aborts the chain, and the failure is wrapped with the sentinel
 * naming the step so the API layer can map it to a status code.
 *
 * Key properties:
 * - No state is shared between invocations; a fresh provider session is opened
 *   per pipeline run.
 * - No idempotency: duplicate initiations create duplicate envelopes, and
 *   reprocessing the same completed notification sends the email again. The
 *   provider's own webhook redelivery is the only retry mechanism anywhere.
 *
 * @dependencies
 * - context, errors, fmt, log: Standard Go libraries.
 * - internal/domain: request and notification models.
 */
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/leadingpeers/esign-service/internal/domain"
)

// EsignSession is the per-invocation authenticated view of the e-signature
// provider. Implemented by esignclient.Session.
type EsignSession interface {
	CreateEnvelopeFromTemplate(ctx context.Context, signerName, signerEmail string) (string, error)
	CreateRecipientView(ctx context.Context, envelopeID, signerName, signerEmail string) (string, error)
	EnvelopeCustomField(ctx context.Context, envelopeID, fieldName string) (string, bool, error)
	CombinedDocument(ctx context.Context, envelopeID string) ([]byte, error)
}

// SessionOpener authenticates with the provider and yields a session.
// Implemented by esignclient.Client.
type SessionOpener interface {
	OpenSession(ctx context.Context) (EsignSession, error)
}

// MailSender dispatches the signed document to the recipient.
// Implemented by mailer.Mailer.
type MailSender interface {
	SendSignedDocument(ctx context.Context, to string, pdf []byte) error
}

// recipientEmailField is the envelope custom field carrying the signer's
// address from envelope creation through to the completion webhook.
const recipientEmailField = "userEmail"

// Outcome classifies how a completion notification was handled. All outcomes
// except a returned error acknowledge the webhook with a 200 so the provider
// stops redelivering.
type Outcome int

const (
	// OutcomeIgnored means the notification did not carry the terminal
	// "completed" status. The provider sends many intermediate notifications
	// per envelope; only the final one matters.
	OutcomeIgnored Outcome = iota

	// OutcomeMissingRecipient means the envelope was completed but carried no
	// userEmail custom field, so there is nobody to relay the document to.
	// Acknowledged anyway: redelivery cannot fix a missing field.
	OutcomeMissingRecipient

	// OutcomeDelivered means the signed document was emailed to the signer.
	OutcomeDelivered
)

// Service orchestrates the two pipelines.
type Service struct {
	esign  SessionOpener
	mailer MailSender
}

// NewService creates a new esign-service instance.
func NewService(esign SessionOpener, mailer MailSender) *Service {
	return &Service{
		esign:  esign,
		mailer: mailer,
	}
}

// CreateSigningSession runs the initiator pipeline: validate, authenticate,
// create-and-send an envelope from the template, and request the embedded
// signing URL. The URL is returned to the caller verbatim.
func (s *Service) CreateSigningSession(ctx context.Context, req domain.SigningRequest) (*domain.SigningSession, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	session, err := s.esign.OpenSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderAuth, err)
	}

	envelopeID, err := session.CreateEnvelopeFromTemplate(ctx, req.Name, req.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnvelopeCreation, err)
	}
	log.Printf("level=info component=signing msg=\"envelope created and sent\" envelope_id=%s", envelopeID)

	signingURL, err := session.CreateRecipientView(ctx, envelopeID, req.Name, req.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrViewCreation, err)
	}

	return &domain.SigningSession{EnvelopeID: envelopeID, SigningURL: signingURL}, nil
}

// ProcessCompletionNotice runs the webhook pipeline for an already-parsed
// notification. A non-completed status short-circuits before any provider
// call. For a completed envelope it recovers the signer's address from the
// userEmail custom field, downloads the combined signed PDF, and emails it.
func (s *Service) ProcessCompletionNotice(ctx context.Context, n domain.Notification) (Outcome, error) {
	if !n.IsCompleted() {
		log.Printf("level=info component=webhook msg=\"notification ignored\" envelope_id=%s status=%s", n.EnvelopeID, n.Status)
		return OutcomeIgnored, nil
	}

	session, err := s.esign.OpenSession(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrProviderAuth, err)
	}

	recipient, found, err := session.EnvelopeCustomField(ctx, n.EnvelopeID, recipientEmailField)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDocumentFetch, err)
	}
	if !found {
		// The join key was never populated. Redelivery cannot help, so this is
		// acknowledged rather than failed, but it is an anomaly worth flagging.
		log.Printf("level=error component=webhook msg=\"completed envelope has no recipient custom field\" envelope_id=%s field=%s", n.EnvelopeID, recipientEmailField)
		return OutcomeMissingRecipient, nil
	}

	pdf, err := session.CombinedDocument(ctx, n.EnvelopeID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDocumentFetch, err)
	}

	if err := s.mailer.SendSignedDocument(ctx, recipient, pdf); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMailDispatch, err)
	}

	log.Printf("level=info component=webhook msg=\"signed document relayed\" envelope_id=%s to=%s", n.EnvelopeID, recipient)
	return OutcomeDelivered, nil
}
