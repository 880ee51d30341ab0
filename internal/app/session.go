package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/squadnet-ai/squadnet/internal/channel"
	"github.com/squadnet-ai/squadnet/internal/snapshot"
	"github.com/squadnet-ai/squadnet/internal/voicenet"
)

// initSession resolves the session identity and, when the store already holds
// the named session, restores its state onto the channel and the agents.
func (a *App) initSession(ctx context.Context) error {
	a.session.id = a.cfg.Session.ID
	if a.session.id == "" {
		a.session.id = newSessionID()
	}
	if a.store == nil || a.cfg.Session.ID == "" {
		return nil
	}

	doc, err := a.store.Load(ctx, a.session.id)
	if errors.Is(err, snapshot.ErrNotFound) {
		slog.Info("starting new session", "session_id", a.session.id)
		return nil
	}
	if err != nil {
		return err
	}
	a.restoreDocument(doc)
	return nil
}

// restoreDocument replays a stored session: messages back onto the channel
// log, memory back into each agent that is still on the roster.
func (a *App) restoreDocument(doc *snapshot.Document) {
	a.session.createdAt = doc.CreatedAt

	for _, r := range doc.Messages {
		a.log.Append(channel.Message{
			ID:                r.ID,
			Timestamp:         r.Timestamp,
			SenderID:          r.SenderID,
			SenderCallsign:    r.SenderCallsign,
			RecipientCallsign: r.RecipientCallsign,
			Content:           r.Content,
			Kind:              channel.Kind(r.Kind),
			Type:              voicenet.MessageType(r.Type),
			IsBroadcast:       r.IsBroadcast,
		})
	}

	byID := make(map[string]int, len(a.agents))
	for i, ag := range a.agents {
		byID[ag.ID()] = i
	}
	restored := 0
	for _, rec := range doc.Agents {
		i, ok := byID[rec.ID]
		if !ok {
			slog.Warn("stored agent no longer on roster, dropping its memory",
				"agent_id", rec.ID, "callsign", rec.Callsign)
			continue
		}
		a.agents[i].RestoreMemory(rec.Memory)
		restored++
	}
	slog.Info("session restored", "session_id", doc.SessionID,
		"messages", len(doc.Messages), "agents", restored)
}

// buildDocument assembles the persistable view of the running session.
func (a *App) buildDocument() *snapshot.Document {
	msgs := a.log.All()
	doc := &snapshot.Document{
		SessionID: a.session.id,
		CreatedAt: a.session.createdAt,
		Messages:  make([]snapshot.MessageRecord, 0, len(msgs)),
		Agents:    make([]snapshot.AgentRecord, 0, len(a.agents)),
	}
	for _, m := range msgs {
		doc.Messages = append(doc.Messages, snapshot.NewMessageRecord(m))
	}
	for _, ag := range a.agents {
		doc.Agents = append(doc.Agents, snapshot.AgentRecord{
			ID:          ag.ID(),
			Callsign:    ag.Callsign(),
			SquadLeader: ag.IsSquadLeader(),
			Memory:      ag.SnapshotMemory(),
		})
	}
	return doc
}

// SaveSession persists the current channel log and agent memory. A nil store
// makes this a no-op so callers need not care whether persistence is on.
func (a *App) SaveSession(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	if err := a.store.Save(ctx, a.buildDocument()); err != nil {
		return fmt.Errorf("app: save session %q: %w", a.session.id, err)
	}
	if a.session.createdAt.IsZero() {
		a.session.createdAt = time.Now().UTC()
	}
	return nil
}

// ExportTranscript renders the live session as a transcript with a YAML
// front matter header.
func (a *App) ExportTranscript() (string, error) {
	return snapshot.ExportText(a.buildDocument())
}

// ListSessions returns stored sessions newest-first. Without a store the
// list is empty.
func (a *App) ListSessions(ctx context.Context, limit, offset int) ([]snapshot.Info, error) {
	if a.store == nil {
		return nil, nil
	}
	return a.store.List(ctx, limit, offset)
}
