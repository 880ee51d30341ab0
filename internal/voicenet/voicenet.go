// Package voicenet implements the radio-style addressing protocol used on the
// shared channel: parsing and formatting of transmissions of the form
// "[Recipient], this is [Sender], [message], over.", broadcast detection, and
// intent classification.
//
// Callsigns are matched after normalisation (see [Normalize]); parsing is
// case-insensitive and tolerant of trailing punctuation.
package voicenet

import (
	"regexp"
	"strings"
)

// MessageType classifies the intent of a transmission body.
type MessageType string

const (
	// TypeAcknowledgment is a roger/copy/wilco response.
	TypeAcknowledgment MessageType = "acknowledgment"

	// TypeQuery is a question (leading interrogative or "?").
	TypeQuery MessageType = "query"

	// TypeCommand is an order containing an imperative verb.
	TypeCommand MessageType = "command"

	// TypeRequest is a polite ask ("please", "can you", ...).
	TypeRequest MessageType = "request"

	// TypeReport is an informational transmission; the default type.
	TypeReport MessageType = "report"
)

// ParsedMessage is the result of parsing one transmission.
type ParsedMessage struct {
	// Sender is the callsign announced via "this is ...", or empty when the
	// shortened form omits it.
	Sender string

	// Recipient is the addressed callsign, or empty for an undirected message.
	Recipient string

	// Body is the transmission content with addressing and the trailing
	// "over" stripped.
	Body string

	// IsBroadcast reports whether the message targets all stations.
	IsBroadcast bool

	// Type is the classified intent of the body.
	Type MessageType
}

var (
	// "All stations, this is Sender, body, over."
	broadcastPattern = regexp.MustCompile(
		`(?i)^all\s+(?:stations|units|agents),\s+this\s+is\s+(?P<sender>[\w\s_-]+?),\s+(?P<body>.+?)(?:,\s*over)?\.?$`)

	// "Recipient, this is Sender, body, over."
	fullPattern = regexp.MustCompile(
		`(?i)^(?P<recipient>[\w\s_-]+?),\s+this\s+is\s+(?P<sender>[\w\s_-]+?),\s+(?P<body>.+?)(?:,\s*over)?\.?$`)

	// "Roger, body." / "Copy." / "Wilco, body."
	ackPattern = regexp.MustCompile(
		`(?i)^(?:roger|copy|wilco)\b[.,]?\s*(?P<body>.*?)\.?$`)

	// "Recipient, body" (shortened form, sender unknown).
	directPattern = regexp.MustCompile(
		`(?i)^(?P<recipient>[\w\s_-]+?),\s+(?P<body>.+?)(?:,\s*over)?\.?$`)

	commandVerbs   = []string{"search", "calculate", "compute", "execute", "release", "find", "plan", "perform", "check"}
	requestMarkers = []string{"please", "can you", "could you", "would you", "need", "require", "request"}
	queryWords     = []string{"what", "how", "why", "when", "where", "who", "which"}
)

// broadcastRecipients holds normalised recipient callsigns that address
// every station on the net.
var broadcastRecipients = map[string]bool{
	"ALL":          true,
	"ALL-STATIONS": true,
	"ALL-UNITS":    true,
	"ALL-AGENTS":   true,
	"EVERYONE":     true,
}

// Parse decodes a raw transmission into a [ParsedMessage].
//
// Patterns are attempted in order: broadcast, full addressed form, shortened
// acknowledgment, shortened addressed form. Content that matches none of them
// is returned as an undirected message whose Body is the whole input.
func Parse(content string) ParsedMessage {
	content = strings.TrimSpace(content)

	if m := broadcastPattern.FindStringSubmatch(content); m != nil {
		body := strings.TrimSpace(m[2])
		return ParsedMessage{
			Sender:      strings.TrimSpace(m[1]),
			Recipient:   "ALL",
			Body:        body,
			IsBroadcast: true,
			Type:        Classify(body),
		}
	}

	if m := fullPattern.FindStringSubmatch(content); m != nil {
		recipient := strings.TrimSpace(m[1])
		body := strings.TrimSpace(m[3])
		return ParsedMessage{
			Sender:      strings.TrimSpace(m[2]),
			Recipient:   recipient,
			Body:        body,
			IsBroadcast: IsBroadcastCallsign(recipient),
			Type:        Classify(body),
		}
	}

	if m := ackPattern.FindStringSubmatch(content); m != nil {
		return ParsedMessage{
			Body: strings.TrimSpace(m[1]),
			Type: TypeAcknowledgment,
		}
	}

	if m := directPattern.FindStringSubmatch(content); m != nil {
		recipient := strings.TrimSpace(m[1])
		body := strings.TrimSpace(m[2])
		return ParsedMessage{
			Recipient:   recipient,
			Body:        body,
			IsBroadcast: IsBroadcastCallsign(recipient),
			Type:        Classify(body),
		}
	}

	return ParsedMessage{Body: content, Type: Classify(content)}
}

// Classify determines the [MessageType] of a transmission body.
//
// Checks run in priority order with the first hit winning:
// acknowledgment → query → command → request → report (default). Overlapping
// markers such as "please search" therefore classify as a command.
func Classify(body string) MessageType {
	lower := strings.ToLower(strings.TrimSpace(body))

	for _, ack := range []string{"roger", "copy", "wilco"} {
		if lower == ack || strings.HasPrefix(lower, ack+" ") || strings.HasPrefix(lower, ack+",") || strings.HasPrefix(lower, ack+".") {
			return TypeAcknowledgment
		}
	}

	for _, q := range queryWords {
		if strings.HasPrefix(lower, q+" ") || strings.HasPrefix(lower, q+"'") || lower == q {
			return TypeQuery
		}
	}
	if strings.Contains(lower, "?") {
		return TypeQuery
	}

	for _, verb := range commandVerbs {
		if containsWord(lower, verb) {
			return TypeCommand
		}
	}

	for _, marker := range requestMarkers {
		if strings.Contains(lower, marker) {
			return TypeRequest
		}
	}

	return TypeReport
}

// containsWord reports whether text contains word at a word boundary.
func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// Format renders a transmission in voice-net form:
// "Recipient, this is Sender, body, over." When recipient is empty the
// addressing prefix is shortened to "Sender, body, over.".
func Format(sender, recipient, body string) string {
	var b strings.Builder
	if recipient != "" {
		b.WriteString(recipient)
		b.WriteString(", this is ")
		b.WriteString(sender)
	} else {
		b.WriteString(sender)
	}
	b.WriteString(", ")
	b.WriteString(strings.TrimSuffix(strings.TrimSpace(body), "."))
	if !strings.HasSuffix(strings.ToLower(body), "over") {
		b.WriteString(", over")
	}
	b.WriteString(".")
	return b.String()
}

// FormatRoger renders an acknowledgment transmission.
func FormatRoger(body string) string {
	if body == "" {
		return "Roger."
	}
	return "Roger, " + strings.TrimSuffix(body, ".") + "."
}

// FormatCopy renders a confirmation transmission.
func FormatCopy(body string) string {
	if body == "" {
		return "Copy."
	}
	return "Copy, " + strings.TrimSuffix(body, ".") + "."
}

// IsBroadcastCallsign reports whether the recipient callsign addresses all
// stations on the net.
func IsBroadcastCallsign(recipient string) bool {
	return broadcastRecipients[Normalize(recipient)]
}
