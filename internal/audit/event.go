// Package audit provides tamper-evident audit logging for the OCSP
// responder.
//
// Audit logs are separate from technical logs and designed for:
//   - Compliance (eIDAS, ETSI EN 319 401)
//   - SIEM integration
//   - Tamper evidence via cryptographic hash chaining
//
// Key principles:
//   - Never log secrets (private keys, passphrases)
//   - All timestamps in UTC
//   - Hash chain for integrity verification
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// EventType represents the category of audit event.
type EventType string

const (
	// Responder lifecycle events
	EventResponderStarted EventType = "RESPONDER_STARTED"
	EventResponderStopped EventType = "RESPONDER_STOPPED"

	// Request handling events
	EventOCSPResponse EventType = "OCSP_RESPONSE"
)

// Result represents the outcome of an audited operation.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Actor represents who performed the action.
type Actor struct {
	Type string `json:"type"`           // "user", "system", "service"
	ID   string `json:"id"`             // username or service identifier
	Host string `json:"host,omitempty"` // hostname where action occurred
}

// Object represents what was acted upon.
type Object struct {
	Type    string   `json:"type"`              // "request", "responder"
	Serials []string `json:"serials,omitempty"` // hex serial numbers in the request
	Status  string   `json:"status,omitempty"`  // response status code name
}

// Event is one audit record. Hash and HashPrev chain events together:
// each event's hash covers its canonical encoding including the
// previous event's hash.
type Event struct {
	EventType EventType `json:"event_type"`
	Timestamp string    `json:"timestamp"`
	Actor     Actor     `json:"actor"`
	Object    Object    `json:"object"`
	Result    Result    `json:"result"`
	HashPrev  string    `json:"hash_prev"`
	Hash      string    `json:"hash,omitempty"`
}

// NewEvent creates an event with the timestamp and actor filled in.
func NewEvent(eventType EventType, object Object, result Result) *Event {
	hostname, _ := os.Hostname()
	return &Event{
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Actor: Actor{
			Type: "service",
			ID:   "ocspd",
			Host: hostname,
		},
		Object: object,
		Result: result,
	}
}

// NewResponseEvent creates the per-request event: which serials were
// asked about and which response status went out.
func NewResponseEvent(status string, serials []string) *Event {
	result := ResultSuccess
	if status != "successful" {
		result = ResultFailure
	}
	return NewEvent(EventOCSPResponse, Object{
		Type:    "request",
		Serials: serials,
		Status:  status,
	}, result)
}

// NewStartedEvent creates the responder startup event.
func NewStartedEvent(addr string) *Event {
	return NewEvent(EventResponderStarted, Object{
		Type:   "responder",
		Status: addr,
	}, ResultSuccess)
}

// NewStoppedEvent creates the responder shutdown event.
func NewStoppedEvent(addr string) *Event {
	return NewEvent(EventResponderStopped, Object{
		Type:   "responder",
		Status: addr,
	}, ResultSuccess)
}

// Validate checks that required fields are present.
func (e *Event) Validate() error {
	if e.EventType == "" {
		return fmt.Errorf("event type is required")
	}
	if e.Timestamp == "" {
		return fmt.Errorf("timestamp is required")
	}
	if e.Actor.Type == "" || e.Actor.ID == "" {
		return fmt.Errorf("actor type and id are required")
	}
	if e.Result == "" {
		return fmt.Errorf("result is required")
	}
	return nil
}

// CanonicalJSON returns the event as canonical JSON for hashing.
// Excludes the Hash field to allow hash calculation.
func (e *Event) CanonicalJSON() ([]byte, error) {
	type eventForHash struct {
		EventType EventType `json:"event_type"`
		Timestamp string    `json:"timestamp"`
		Actor     Actor     `json:"actor"`
		Object    Object    `json:"object"`
		Result    Result    `json:"result"`
		HashPrev  string    `json:"hash_prev"`
	}

	canonical := eventForHash{
		EventType: e.EventType,
		Timestamp: e.Timestamp,
		Actor:     e.Actor,
		Object:    e.Object,
		Result:    e.Result,
		HashPrev:  e.HashPrev,
	}

	return json.Marshal(canonical)
}

// JSON returns the full event as JSON.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}
