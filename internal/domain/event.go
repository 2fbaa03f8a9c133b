package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"chat-backend/internal/apperror"
)

// EventAction discriminates the event union. Every inbound realtime payload
// carries exactly one of these in its "action" field.
type EventAction string

const (
	ActionJoinConversation  EventAction = "joinConversation"
	ActionLeaveConversation EventAction = "leaveConversation"
	ActionSendMessage       EventAction = "sendMessage"
	ActionSendDirectMessage EventAction = "sendDirectMessage"
	ActionSendAttachment    EventAction = "sendAttachment"
)

// Event is a conversation event. The Action field selects which of the
// optional payload fields are meaningful; Validate enforces the per-variant
// requirements exhaustively.
type Event struct {
	Action        EventAction `json:"action"`
	ID            string      `json:"id,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
	UserID        string      `json:"userId"`
	ConvoID       string      `json:"convoId"`
	Text          string      `json:"text,omitempty"`
	MediaURL      string      `json:"mediaUrl,omitempty"`
	RecipientID   string      `json:"recipientId,omitempty"`
	AttachmentURI string      `json:"attachmentUri,omitempty"`
}

// ParseEvent decodes and validates an inbound event payload. Malformed JSON
// maps to InvalidJson; a structurally valid payload that fails the variant
// rules maps to InvalidRequestBody.
func ParseEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, apperror.New(apperror.InvalidJSON, "malformed_event_json", err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Validate checks the common envelope and the action-specific payload.
func (e Event) Validate() error {
	if e.UserID == "" {
		return apperror.New(apperror.InvalidRequestBody, "missing_user_id", nil)
	}
	if e.ConvoID == "" {
		return apperror.New(apperror.InvalidRequestBody, "missing_convo_id", nil)
	}
	if e.Timestamp.IsZero() {
		return apperror.New(apperror.InvalidRequestBody, "missing_timestamp", nil)
	}

	switch e.Action {
	case ActionJoinConversation, ActionLeaveConversation:
		return nil
	case ActionSendMessage:
		if e.Text == "" {
			return apperror.New(apperror.InvalidRequestBody, "missing_text", nil)
		}
		return nil
	case ActionSendDirectMessage:
		if e.Text == "" {
			return apperror.New(apperror.InvalidRequestBody, "missing_text", nil)
		}
		if e.RecipientID == "" {
			return apperror.New(apperror.InvalidRequestBody, "missing_recipient_id", nil)
		}
		return nil
	case ActionSendAttachment:
		if e.AttachmentURI == "" {
			return apperror.New(apperror.InvalidRequestBody, "missing_attachment_uri", nil)
		}
		return nil
	default:
		return apperror.New(apperror.InvalidRequestBody, "unknown_action",
			fmt.Errorf("domain: unknown event action %q", e.Action))
	}
}
