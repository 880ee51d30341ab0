// Package channel provides the shared message channel for the squad net: the
// immutable [Message] record and the bounded, ordered [Log] that all agents
// read from and append to.
package channel

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/squadnet-ai/squadnet/internal/voicenet"
)

// Kind distinguishes who produced a message.
type Kind string

const (
	// KindUser marks messages posted by the human operator.
	KindUser Kind = "user"

	// KindAgent marks messages produced by an agent.
	KindAgent Kind = "agent"

	// KindSystem marks engine-generated notices (faults, session events).
	KindSystem Kind = "system"
)

// Message is a single transmission on the shared channel. Messages are
// immutable once appended to a [Log]; all fields are set at construction.
type Message struct {
	// ID is a process-unique identifier, collision-free under concurrent
	// creation.
	ID string

	// Timestamp is the creation time.
	Timestamp time.Time

	// SenderID identifies the originating participant (agent ID or "user").
	SenderID string

	// SenderCallsign is the radio callsign of the sender, when known.
	SenderCallsign string

	// RecipientCallsign is the addressed callsign extracted from the content,
	// or empty for undirected messages.
	RecipientCallsign string

	// Content is the raw transmission text.
	Content string

	// Kind records whether the message came from the user, an agent, or the
	// engine itself.
	Kind Kind

	// Type is the classified voice-net intent of the content.
	Type voicenet.MessageType

	// IsBroadcast reports whether the content addressed all stations.
	IsBroadcast bool
}

// New creates a Message from raw content, parsing voice-net addressing to
// populate the recipient, broadcast flag, and message type. When the content
// carries no explicit sender callsign, senderCallsign is used as-is.
func New(senderID, senderCallsign, content string, kind Kind) Message {
	parsed := voicenet.Parse(content)
	callsign := senderCallsign
	if callsign == "" {
		callsign = parsed.Sender
	}
	recipient := parsed.Recipient
	if parsed.IsBroadcast {
		recipient = "ALL"
	}
	return Message{
		ID:                uuid.NewString(),
		Timestamp:         time.Now(),
		SenderID:          senderID,
		SenderCallsign:    callsign,
		RecipientCallsign: recipient,
		Content:           content,
		Kind:              kind,
		Type:              parsed.Type,
		IsBroadcast:       parsed.IsBroadcast,
	}
}

// IsAddressedTo reports whether the message is directed at the given callsign
// (normalised comparison). Broadcasts are not considered addressed to anyone
// in particular.
func (m Message) IsAddressedTo(callsign string) bool {
	if m.IsBroadcast {
		return false
	}
	return voicenet.Match(m.RecipientCallsign, callsign)
}

// DisplayLine renders the message for transcript output.
func (m Message) DisplayLine() string {
	who := m.SenderCallsign
	if who == "" {
		who = m.SenderID
	}
	return fmt.Sprintf("[%s] %s: %s", m.Timestamp.Format("15:04:05"), who, m.Content)
}
