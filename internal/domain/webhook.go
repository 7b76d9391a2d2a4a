/**
 * @description
 * This file models the Connect notifications the e-signature provider delivers
 * when an envelope changes state, and the parsing logic that normalizes the two
 * payload formats the provider can be configured to send:
 *
 *   - the JSON event shape: {"data":{"envelopeId":...,"envelopeSummary":{"status":...}}}
 *   - the legacy XML fragment containing <EnvelopeID> and <Status> elements
 *
 * Both resolve to the same Notification record. The parser tries JSON first and
 * falls back to regex extraction; a body that yields neither an envelope id nor
 * a status under either format is rejected.
 *
 * @notes
 * - The legacy payload is an XML fragment, not a well-formed document, so it is
 *   matched with regular expressions rather than an XML decoder.
 * - Delivery is at-least-once and unordered. Nothing here assumes a "completed"
 *   notification arrives exactly once or first.
 */
package domain

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrUnparseablePayload is returned when a webhook body yields no envelope id
// and status under either supported format. Handlers map this to a 400.
var ErrUnparseablePayload = errors.New("webhook payload not parseable as JSON event or XML fragment")

// EnvelopeStatusCompleted is the terminal status that triggers document
// delivery. Comparison is always case-insensitive; the provider has been
// observed sending both "completed" and "Completed".
const EnvelopeStatusCompleted = "completed"

// PayloadFormat records which wire format a notification was decoded from.
type PayloadFormat string

const (
	FormatJSON        PayloadFormat = "json"
	FormatXMLFragment PayloadFormat = "xml"
)

// Notification is the normalized form of a Connect notification, regardless of
// which payload format carried it.
type Notification struct {
	EnvelopeID string
	Status     string
	Format     PayloadFormat
}

// IsCompleted reports whether the notification carries the terminal status.
func (n Notification) IsCompleted() bool {
	return strings.EqualFold(strings.TrimSpace(n.Status), EnvelopeStatusCompleted)
}

// connectEvent mirrors the JSON event payload shape.
type connectEvent struct {
	Data struct {
		EnvelopeID      string `json:"envelopeId"`
		EnvelopeSummary struct {
			Status string `json:"status"`
		} `json:"envelopeSummary"`
	} `json:"data"`
}

var (
	envelopeIDPattern = regexp.MustCompile(`(?is)<EnvelopeID>\s*([^<]+?)\s*</EnvelopeID>`)
	statusPattern     = regexp.MustCompile(`(?is)<Status>\s*([^<]+?)\s*</Status>`)
)

// ParseNotification decodes a raw webhook body into a Notification. It attempts
// the JSON event shape first and falls back to the legacy XML fragment. Both
// the envelope id and the status must be present or the body is rejected.
func ParseNotification(body []byte) (Notification, error) {
	var event connectEvent
	if err := json.Unmarshal(body, &event); err == nil {
		id := strings.TrimSpace(event.Data.EnvelopeID)
		status := strings.TrimSpace(event.Data.EnvelopeSummary.Status)
		if id != "" && status != "" {
			return Notification{EnvelopeID: id, Status: status, Format: FormatJSON}, nil
		}
	}

	idMatch := envelopeIDPattern.FindSubmatch(body)
	statusMatch := statusPattern.FindSubmatch(body)
	if idMatch != nil && statusMatch != nil {
		return Notification{
			EnvelopeID: strings.TrimSpace(string(idMatch[1])),
			Status:     strings.TrimSpace(string(statusMatch[1])),
			Format:     FormatXMLFragment,
		}, nil
	}

	return Notification{}, ErrUnparseablePayload
}
