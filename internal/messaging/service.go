// Package messaging defines the pluggable transport abstraction between
// WhatsApp providers and the conversation router, plus the dispatcher that
// pumps inbound messages through it.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/livreo/livreo/internal/models"
)

// Constants for messaging service configuration.
const (
	// DefaultChannelBufferSize defines the default buffer size for inbound message channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations.
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

// phoneNumberRegex strips everything that is not a digit from a recipient.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier. Each provider applies its own rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendReply renders and sends a reply to a recipient.
	SendReply(ctx context.Context, to string, reply models.Reply) error

	// Start begins any background processing (e.g., event polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Messages returns the channel of inbound user messages.
	Messages() <-chan models.Message
}

// canonicalizePhone is the shared recipient rule: digits only, at least six.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	return canonical, nil
}

// RenderReply flattens a structured reply into one WhatsApp text body.
// Providers without native buttons or list messages fall back to this.
func RenderReply(reply models.Reply) string {
	var b strings.Builder
	b.WriteString(reply.Text)
	if len(reply.Choices) > 0 {
		b.WriteString("\n")
		for i, c := range reply.Choices {
			fmt.Fprintf(&b, "\n%d. %s", i+1, c)
		}
	}
	if reply.RequestLocation {
		b.WriteString("\n\n📍 Vous pouvez aussi partager votre position via la pièce jointe WhatsApp.")
	}
	return b.String()
}
