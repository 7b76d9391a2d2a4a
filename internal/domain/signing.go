/**
 * @description
 * This file defines the domain model for an embedded signing request. A signing
 * request is the inbound payload that kicks off the whole flow: a signer's name
 * and email, used to bind the template role on the envelope and later to route
 * the completed document back to them.
 *
 * @notes
 * - Validation happens here, before any provider call is made. A request that
 *   fails validation must never reach the e-signature provider.
 */
package domain

import (
	"errors"
	"strings"
)

// ErrMissingSignerFields is returned when a signing request arrives without a
// name or email. Handlers map this to a 400 response.
var ErrMissingSignerFields = errors.New("missing name or email")

// SigningRequest is the inbound payload for creating an embedded signing session.
type SigningRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Validate checks that both signer fields are present. The email is assumed to
// be a deliverable address; only presence is enforced here.
func (r SigningRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" || strings.TrimSpace(r.Email) == "" {
		return ErrMissingSignerFields
	}
	return nil
}

// SigningSession is the successful result of the initiator flow: the embedded
// signing URL for the envelope that was just created and sent.
type SigningSession struct {
	EnvelopeID string `json:"envelopeId"`
	SigningURL string `json:"signingUrl"`
}
