/**
 * @description
 * This file defines the error taxonomy for the two pipelines. Each sentinel
 * names the step of the external call chain that failed, so handlers can map
 * failures to status codes with errors.Is while the wrapped cause keeps the
 * full provider detail for server-side logs. Provider detail is never written
 * into an HTTP response body.
 */
package app

import "errors"

var (
	// ErrProviderAuth covers JWT grant or account-resolution failures.
	ErrProviderAuth = errors.New("e-signature provider authentication failed")

	// ErrEnvelopeCreation covers create-envelope-from-template failures.
	ErrEnvelopeCreation = errors.New("envelope creation failed")

	// ErrViewCreation covers embedded recipient-view failures.
	ErrViewCreation = errors.New("recipient view creation failed")

	// ErrDocumentFetch covers envelope-metadata and combined-document failures.
	ErrDocumentFetch = errors.New("signed document fetch failed")

	// ErrMailDispatch covers failures from the transactional email provider.
	ErrMailDispatch = errors.New("mail dispatch failed")
)
