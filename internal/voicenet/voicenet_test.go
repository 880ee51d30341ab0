package voicenet

import "testing"

func TestParseFullForm(t *testing.T) {
	t.Parallel()
	p := Parse("Alpha One, this is Command, search airports near KBOS, over.")
	if p.Sender != "Command" {
		t.Errorf("Sender = %q, want %q", p.Sender, "Command")
	}
	if p.Recipient != "Alpha One" {
		t.Errorf("Recipient = %q, want %q", p.Recipient, "Alpha One")
	}
	if p.Body != "search airports near KBOS" {
		t.Errorf("Body = %q", p.Body)
	}
	if p.IsBroadcast {
		t.Error("IsBroadcast = true, want false")
	}
	if p.Type != TypeCommand {
		t.Errorf("Type = %q, want command", p.Type)
	}
}

func TestParseBroadcast(t *testing.T) {
	t.Parallel()
	p := Parse("All stations, this is Rescue Lead, status report, over.")
	if !p.IsBroadcast {
		t.Fatal("IsBroadcast = false, want true")
	}
	if p.Sender != "Rescue Lead" {
		t.Errorf("Sender = %q", p.Sender)
	}
	if p.Recipient != "ALL" {
		t.Errorf("Recipient = %q, want ALL", p.Recipient)
	}
}

func TestParseBroadcastViaRecipient(t *testing.T) {
	t.Parallel()
	p := Parse("All units, begin search pattern, over.")
	if !p.IsBroadcast {
		t.Error("IsBroadcast = false, want true for 'All units' recipient")
	}
}

func TestParseShortenedForm(t *testing.T) {
	t.Parallel()
	p := Parse("Bravo Nine, status, over.")
	if p.Sender != "" {
		t.Errorf("Sender = %q, want empty (shortened form)", p.Sender)
	}
	if p.Recipient != "Bravo Nine" {
		t.Errorf("Recipient = %q", p.Recipient)
	}
	if p.Body != "status" {
		t.Errorf("Body = %q, want %q", p.Body, "status")
	}
}

func TestParseAcknowledgment(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"Roger, proceeding to waypoint.", "Copy.", "Wilco, moving out"} {
		p := Parse(in)
		if p.Type != TypeAcknowledgment {
			t.Errorf("Parse(%q).Type = %q, want acknowledgment", in, p.Type)
		}
		if p.Recipient != "" {
			t.Errorf("Parse(%q).Recipient = %q, want empty", in, p.Recipient)
		}
	}
}

func TestParseUnstructured(t *testing.T) {
	t.Parallel()
	p := Parse("proceeding on current heading")
	if p.Recipient != "" || p.Sender != "" {
		t.Errorf("unstructured message got addressing: sender=%q recipient=%q", p.Sender, p.Recipient)
	}
	if p.Body != "proceeding on current heading" {
		t.Errorf("Body = %q", p.Body)
	}
}

func TestClassifyPriorityOrder(t *testing.T) {
	t.Parallel()
	tests := []struct {
		body string
		want MessageType
	}{
		{"roger that", TypeAcknowledgment},
		{"what is your position", TypeQuery},
		{"do you read me?", TypeQuery},
		{"calculate fuel reserves", TypeCommand},
		{"please search the northern grid", TypeCommand}, // command wins over request
		{"please hold position", TypeRequest},
		{"can you confirm altitude", TypeRequest},
		{"holding at waypoint two", TypeReport},
		{"release the payload", TypeCommand},
		{"researching options", TypeReport}, // "search" must match whole words only
	}
	for _, tt := range tests {
		if got := Classify(tt.body); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"Alpha One", "ALPHA-ONE"},
		{"alpha_one", "ALPHA-ONE"},
		{"ALPHA-ONE,", "ALPHA-ONE"},
		{"  Rescue   Lead  ", "RESCUE-LEAD"},
		{"alpha--one", "ALPHA-ONE"},
		{"Command.", "COMMAND"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()
	if !Match("Alpha One", "ALPHA-ONE") {
		t.Error("Match(Alpha One, ALPHA-ONE) = false, want true")
	}
	if Match("Alpha One", "Alpha Two") {
		t.Error("Match(Alpha One, Alpha Two) = true, want false")
	}
	if Match("", "ALPHA-ONE") {
		t.Error("Match with empty callsign = true, want false")
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()
	got := Format("Command", "Alpha One", "search airports near KBOS")
	want := "Alpha One, this is Command, search airports near KBOS, over."
	if got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	t.Parallel()
	msg := Format("Command", "Alpha One", "hold position")
	p := Parse(msg)
	if p.Sender != "Command" || p.Recipient != "Alpha One" || p.Body != "hold position" {
		t.Errorf("round trip lost fields: %+v", p)
	}
}

func TestFormatRogerCopy(t *testing.T) {
	t.Parallel()
	if got := FormatRoger("proceeding"); got != "Roger, proceeding." {
		t.Errorf("FormatRoger = %q", got)
	}
	if got := FormatCopy(""); got != "Copy." {
		t.Errorf("FormatCopy = %q", got)
	}
}

func TestIsBroadcastCallsign(t *testing.T) {
	t.Parallel()
	for _, c := range []string{"ALL", "all stations", "All Units", "all agents"} {
		if !IsBroadcastCallsign(c) {
			t.Errorf("IsBroadcastCallsign(%q) = false, want true", c)
		}
	}
	if IsBroadcastCallsign("Alpha One") {
		t.Error("IsBroadcastCallsign(Alpha One) = true, want false")
	}
}
