package channel

import (
	"strings"
	"sync"
	"time"

	"github.com/squadnet-ai/squadnet/internal/voicenet"
)

// defaultMaxHistory is the log capacity when none is configured.
const defaultMaxHistory = 1000

// Log is a bounded, ordered, in-memory message history. When full, the oldest
// message is evicted in O(1). Appends are serialised; reads return
// copy-on-read snapshots, so concurrent turns observe stable slices.
//
// All methods are safe for concurrent use.
type Log struct {
	mu    sync.RWMutex
	buf   []Message // fixed-capacity ring
	head  int       // index of the oldest message
	count int
}

// NewLog creates a Log retaining at most maxHistory messages. A non-positive
// maxHistory selects the default of 1000.
func NewLog(maxHistory int) *Log {
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	return &Log{buf: make([]Message, maxHistory)}
}

// Append adds m to the log, evicting the oldest message when at capacity.
func (l *Log) Append(m Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count < len(l.buf) {
		l.buf[(l.head+l.count)%len(l.buf)] = m
		l.count++
		return
	}
	// Full: overwrite the head slot and advance.
	l.buf[l.head] = m
	l.head = (l.head + 1) % len(l.buf)
}

// Post parses, constructs, and appends a message in one step, returning the
// stored record.
func (l *Log) Post(senderID, senderCallsign, content string, kind Kind) Message {
	m := New(senderID, senderCallsign, content, kind)
	l.Append(m)
	return m
}

// Len returns the number of messages currently retained.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Recent returns the last n messages in log order. When fewer than n messages
// exist, all are returned.
func (l *Log) Recent(n int) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n > l.count {
		n = l.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]Message, n)
	start := l.count - n
	for i := 0; i < n; i++ {
		out[i] = l.buf[(l.head+start+i)%len(l.buf)]
	}
	return out
}

// All returns a snapshot of every retained message in log order.
func (l *Log) All() []Message {
	return l.Recent(l.Len())
}

// ContextWindow returns the most recent w messages relevant to callsign, in
// log order. A message is relevant when it was sent by the callsign,
// addressed to it, broadcast, or is a system message.
func (l *Log) ContextWindow(callsign string, w int) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if w <= 0 || l.count == 0 {
		return nil
	}

	picked := make([]Message, 0, w)
	for i := l.count - 1; i >= 0 && len(picked) < w; i-- {
		m := l.buf[(l.head+i)%len(l.buf)]
		if relevantTo(m, callsign) {
			picked = append(picked, m)
		}
	}
	// Collected newest-first; restore log order.
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked
}

// relevantTo implements the context-window filter.
func relevantTo(m Message, callsign string) bool {
	if m.Kind == KindSystem || m.IsBroadcast {
		return true
	}
	if voicenet.Match(m.SenderCallsign, callsign) {
		return true
	}
	return m.IsAddressedTo(callsign)
}

// Since returns all retained messages with a timestamp strictly after t, in
// log order.
func (l *Log) Since(t time.Time) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Message
	for i := 0; i < l.count; i++ {
		m := l.buf[(l.head+i)%len(l.buf)]
		if m.Timestamp.After(t) {
			out = append(out, m)
		}
	}
	return out
}

// FormatHistory renders the last n messages as display lines, one per row.
func (l *Log) FormatHistory(n int) string {
	recent := l.Recent(n)
	if len(recent) == 0 {
		return "No messages on the net."
	}
	lines := make([]string, len(recent))
	for i, m := range recent {
		lines[i] = m.DisplayLine()
	}
	return strings.Join(lines, "\n")
}
