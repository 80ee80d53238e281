// Package models defines the core data structures for Livreo.
//
// It includes the normalized inbound/outbound message shapes exchanged with the
// messaging gateway and the role/step vocabulary shared across modules.
package models

import (
	"errors"
	"strings"
)

// Role identifies which business flow owns an authenticated conversation.
type Role string

const (
	// RoleClient is a sender: requests couriers and places marketplace orders.
	RoleClient Role = "client"
	// RoleCourier is a delivery agent working missions.
	RoleCourier Role = "courier"
	// RoleMerchant manages orders and products through the back office.
	RoleMerchant Role = "merchant"
)

// IsValidRole checks if the given role is supported.
func IsValidRole(r Role) bool {
	switch r {
	case RoleClient, RoleCourier, RoleMerchant:
		return true
	default:
		return false
	}
}

// Validation constants for inbound message handling.
const (
	// MaxChoices is the maximum number of quick-reply buttons per reply.
	MaxChoices = 3
	// MaxListRows is the maximum number of rows offered in a numbered list.
	MaxListRows = 5
	// MaxHistoryTurns bounds the rolling history kept for the fallback classifier.
	MaxHistoryTurns = 10
)

// Error variables shared across modules.
var (
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
	ErrEmptyReply     = errors.New("reply text cannot be empty")
	ErrTooManyChoices = errors.New("reply exceeds maximum number of choices")
	// ErrUnknownInput signals that no step transition matched the input.
	// Flow engines route it to the fallback classifier before giving up.
	ErrUnknownInput = errors.New("input does not match any expected transition")
)

// Coordinates is a GPS position shared by a user.
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Message is a normalized inbound message from the messaging gateway.
type Message struct {
	From     string       `json:"user_id"`
	Text     string       `json:"text"`
	Location *Coordinates `json:"location,omitempty"`
	MediaRef string       `json:"media_ref,omitempty"`
	Time     int64        `json:"time"`
}

// ListRow is one selectable row of an interactive list.
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ListPrompt is an interactive list attached to a reply.
type ListPrompt struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}

// Reply is a normalized outbound response handed to the messaging gateway.
// At most one of Choices, List or RequestLocation is set.
type Reply struct {
	Text            string      `json:"response"`
	Choices         []string    `json:"choices,omitempty"`
	List            *ListPrompt `json:"list,omitempty"`
	RequestLocation bool        `json:"request_location,omitempty"`
}

// Validate performs validation on a Reply before it is handed to the gateway.
func (r *Reply) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyReply
	}
	if len(r.Choices) > MaxChoices {
		return ErrTooManyChoices
	}
	return nil
}

// TextReply builds a plain text reply.
func TextReply(text string) Reply {
	return Reply{Text: text}
}

// ChoiceReply builds a reply with quick-reply buttons.
func ChoiceReply(text string, choices ...string) Reply {
	return Reply{Text: text, Choices: choices}
}

// LocationReply builds a reply asking the user to share coordinates.
func LocationReply(text string) Reply {
	return Reply{Text: text, RequestLocation: true}
}
