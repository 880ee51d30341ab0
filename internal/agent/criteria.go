package agent

import (
	"strings"

	"github.com/squadnet-ai/squadnet/internal/channel"
	"github.com/squadnet-ai/squadnet/internal/voicenet"
)

// Criteria decides whether an agent should respond to the latest traffic on
// the channel. Implementations inspect the most recent messages and must not
// block.
type Criteria interface {
	// ShouldRespond reports whether the agent identified by agentID and
	// callsign should transmit. recent is in log order; the last element is
	// the message under consideration.
	ShouldRespond(agentID, callsign string, recent []channel.Message) bool
}

// latest returns the newest message not sent by the agent itself, or false
// when the agent spoke last (an agent never answers its own transmission).
func latest(agentID string, recent []channel.Message) (channel.Message, bool) {
	if len(recent) == 0 {
		return channel.Message{}, false
	}
	m := recent[len(recent)-1]
	if m.SenderID == agentID {
		return channel.Message{}, false
	}
	return m, true
}

// DirectAddress fires when the latest message is addressed to the agent's
// callsign.
type DirectAddress struct{}

var _ Criteria = DirectAddress{}

func (DirectAddress) ShouldRespond(agentID, callsign string, recent []channel.Message) bool {
	m, ok := latest(agentID, recent)
	if !ok {
		return false
	}
	return m.IsAddressedTo(callsign)
}

// Keywords fires when the latest message mentions any of the configured
// words, matched whole-word and case-insensitively.
type Keywords struct {
	// Words are the trigger terms, e.g. an agent's specialty vocabulary.
	Words []string
}

var _ Criteria = Keywords{}

func (k Keywords) ShouldRespond(agentID, callsign string, recent []channel.Message) bool {
	m, ok := latest(agentID, recent)
	if !ok {
		return false
	}
	lower := strings.ToLower(m.Content)
	for _, w := range k.Words {
		if containsWord(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// containsWord reports whether text contains word bounded by non-word bytes.
func containsWord(text, word string) bool {
	for i := 0; i+len(word) <= len(text); i++ {
		j := strings.Index(text[i:], word)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(word)
		leftOK := start == 0 || !isWordByte(text[start-1])
		rightOK := end == len(text) || !isWordByte(text[end])
		if leftOK && rightOK {
			return true
		}
		i = start
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_'
}

// Question fires when the latest message is a query directed at the agent or
// at no one in particular.
type Question struct{}

var _ Criteria = Question{}

func (Question) ShouldRespond(agentID, callsign string, recent []channel.Message) bool {
	m, ok := latest(agentID, recent)
	if !ok {
		return false
	}
	if m.Type != voicenet.TypeQuery {
		return false
	}
	if m.RecipientCallsign == "" || m.IsBroadcast {
		return true
	}
	return m.IsAddressedTo(callsign)
}

// coordinationWords are the cues a squad leader steps in on.
var coordinationWords = []string{"help", "stuck", "unclear", "coordinate", "organize", "plan"}

// SquadLeader fires on direct address, coordination cues, or unaddressed
// questions. It backs the leader's role as the net's default responder.
type SquadLeader struct{}

var _ Criteria = SquadLeader{}

func (SquadLeader) ShouldRespond(agentID, callsign string, recent []channel.Message) bool {
	m, ok := latest(agentID, recent)
	if !ok {
		return false
	}
	if m.IsAddressedTo(callsign) {
		return true
	}
	lower := strings.ToLower(m.Content)
	for _, w := range coordinationWords {
		if containsWord(lower, w) {
			return true
		}
	}
	return m.Type == voicenet.TypeQuery && (m.RecipientCallsign == "" || m.IsBroadcast)
}

// Composite fires when any member criterion fires.
type Composite []Criteria

var _ Criteria = Composite{}

func (c Composite) ShouldRespond(agentID, callsign string, recent []channel.Message) bool {
	for _, crit := range c {
		if crit.ShouldRespond(agentID, callsign, recent) {
			return true
		}
	}
	return false
}
