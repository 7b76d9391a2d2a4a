/**
 * @description
 * This file contains the HTTP handlers for the esign-service's two endpoints:
 * the signing-session initiator and the provider's completion webhook. Handlers
 * parse the inbound payload, call the application service, and shape the
 * response. Full error detail is logged server-side only; callers get generic
 * messages.
 *
 * The webhook responses deliberately cooperate with the provider's
 * at-least-once redelivery: 200 whenever redelivery would not help (ignored
 * statuses, missing recipient field, successful delivery), 500 only for a
 * genuine transient failure worth retrying.
 *
 * @dependencies
 * - encoding/json, errors, io, log, net/http: Standard Go libraries.
 * - github.com/google/uuid: webhook request correlation ids.
 * - internal/app, internal/domain: service logic and models.
 */
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/leadingpeers/esign-service/internal/app"
	"github.com/leadingpeers/esign-service/internal/domain"
)

// Handlers holds the application service the endpoints delegate to.
type Handlers struct {
	service *app.Service
}

// NewHandlers creates the handler set for the esign-service endpoints.
func NewHandlers(service *app.Service) *Handlers {
	return &Handlers{service: service}
}

type signingSessionResponse struct {
	SigningURL string `json:"signingUrl"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

// CreateSigningSession handles POST /api/signing-sessions. It accepts
// {name, email} and returns {signingUrl} for the freshly created envelope.
func (h *Handlers) CreateSigningSession(w http.ResponseWriter, r *http.Request) {
	var req domain.SigningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing name or email"})
		return
	}

	session, err := h.service.CreateSigningSession(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrMissingSignerFields) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing name or email"})
			return
		}
		log.Printf("level=error component=api op=create_signing_session msg=\"pipeline failed\" err=%v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to create signing session"})
		return
	}

	writeJSON(w, http.StatusOK, signingSessionResponse{SigningURL: session.SigningURL})
}

// HandleEsignEvent handles POST /api/esign-events, the provider's Connect
// webhook. The body is read raw because the provider may be configured to send
// either the JSON event shape or the legacy XML fragment.
func (h *Handlers) HandleEsignEvent(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("level=error component=webhook request_id=%s msg=\"failed to read body\" err=%v", requestID, err)
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}

	notice, err := domain.ParseNotification(body)
	if err != nil {
		log.Printf("level=warn component=webhook request_id=%s msg=\"unparseable payload\" bytes=%d", requestID, len(body))
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	log.Printf("level=info component=webhook request_id=%s msg=\"notification received\" envelope_id=%s status=%s format=%s",
		requestID, notice.EnvelopeID, notice.Status, notice.Format)

	outcome, err := h.service.ProcessCompletionNotice(r.Context(), notice)
	if err != nil {
		log.Printf("level=error component=webhook request_id=%s msg=\"processing failed\" envelope_id=%s err=%v", requestID, notice.EnvelopeID, err)
		http.Error(w, "Webhook error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(outcomeText(outcome)))
}

// outcomeText maps a webhook outcome to the acknowledgement body the provider
// sees. All three are 200s.
func outcomeText(outcome app.Outcome) string {
	switch outcome {
	case app.OutcomeMissingRecipient:
		return "Missing user email"
	case app.OutcomeDelivered:
		return "Email sent"
	default:
		return "Ignored"
	}
}
