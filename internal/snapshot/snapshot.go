// Package snapshot persists session state to SQLite so a squad net can be
// resumed after a restart: the message history, each agent's memory, and the
// roster that produced them.
package snapshot

import (
	"time"

	"github.com/squadnet-ai/squadnet/internal/channel"
)

// MessageRecord is the serialised form of one channel message.
type MessageRecord struct {
	ID                string    `json:"id"`
	Timestamp         time.Time `json:"timestamp"`
	SenderID          string    `json:"sender_id"`
	SenderCallsign    string    `json:"sender_callsign,omitempty"`
	RecipientCallsign string    `json:"recipient_callsign,omitempty"`
	Content           string    `json:"content"`
	Kind              string    `json:"kind"`
	Type              string    `json:"type"`
	IsBroadcast       bool      `json:"is_broadcast,omitempty"`
}

// NewMessageRecord converts a live channel message for persistence.
func NewMessageRecord(m channel.Message) MessageRecord {
	return MessageRecord{
		ID:                m.ID,
		Timestamp:         m.Timestamp,
		SenderID:          m.SenderID,
		SenderCallsign:    m.SenderCallsign,
		RecipientCallsign: m.RecipientCallsign,
		Content:           m.Content,
		Kind:              string(m.Kind),
		Type:              string(m.Type),
		IsBroadcast:       m.IsBroadcast,
	}
}

// AgentRecord is the serialised form of one agent's durable state.
type AgentRecord struct {
	ID          string         `json:"id"`
	Callsign    string         `json:"callsign"`
	SquadLeader bool           `json:"squad_leader,omitempty"`
	Memory      map[string]any `json:"memory"`
}

// Document is the full persisted state of one session.
type Document struct {
	SessionID string          `json:"session_id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Messages  []MessageRecord `json:"messages"`
	Agents    []AgentRecord   `json:"agents"`
}

// Info is a listing entry for one stored session.
type Info struct {
	SessionID string
	CreatedAt time.Time
	UpdatedAt time.Time
}
