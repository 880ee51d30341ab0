// Package memory implements the per-agent scratchpad: five bounded categories
// of mission notes that an agent maintains across turns via structured updates
// or in-band MEMORIZE commands extracted from its own transmissions.
package memory

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Category identifies one of the five scratchpad sections.
type Category string

const (
	// CategoryTasks is the ordered task list.
	CategoryTasks Category = "task_list"

	// CategoryFacts is the named fact map; payloads upsert by key.
	CategoryFacts Category = "key_facts"

	// CategoryDecisions records decisions made during the mission.
	CategoryDecisions Category = "decisions_made"

	// CategoryConcerns records open risks and worries.
	CategoryConcerns Category = "concerns"

	// CategoryNotes is a last-N scratch area for everything else.
	CategoryNotes Category = "notes"
)

// Caps bounds each category so memory cannot grow without limit.
// Zero values select the defaults.
type Caps struct {
	// Tasks caps task_list length. Default: 20.
	Tasks int

	// Facts caps the number of distinct fact keys. Default: 50.
	Facts int

	// Decisions caps decisions_made length. Default: 20.
	Decisions int

	// Concerns caps concerns length. Default: 20.
	Concerns int

	// Notes caps notes length (last-N retention). Default: 20.
	Notes int
}

func (c Caps) withDefaults() Caps {
	if c.Tasks <= 0 {
		c.Tasks = 20
	}
	if c.Facts <= 0 {
		c.Facts = 50
	}
	if c.Decisions <= 0 {
		c.Decisions = 20
	}
	if c.Concerns <= 0 {
		c.Concerns = 20
	}
	if c.Notes <= 0 {
		c.Notes = 20
	}
	return c
}

// Memory is one agent's scratchpad. All methods are safe for concurrent use,
// though in practice only one turn per agent is in flight at a time.
type Memory struct {
	mu        sync.Mutex
	caps      Caps
	tasks     []string
	facts     map[string]string
	factOrder []string // insertion order, for stable rendering and eviction
	decisions []string
	concerns  []string
	notes     []string
}

// New creates an empty Memory with the given caps.
func New(caps Caps) *Memory {
	return &Memory{
		caps:  caps.withDefaults(),
		facts: make(map[string]string),
	}
}

// Add applies one structured update. List categories append and truncate to
// their cap, dropping the oldest entries. key_facts payloads must have the
// form "key=value" and upsert by key; anything else is rejected.
func (m *Memory) Add(category Category, payload string) error {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return fmt.Errorf("memory: empty payload for category %q", category)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch category {
	case CategoryTasks:
		m.tasks = appendBounded(m.tasks, payload, m.caps.Tasks)
	case CategoryFacts:
		key, value, ok := strings.Cut(payload, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" {
			return fmt.Errorf("memory: key_facts payload %q is not of the form key=value", payload)
		}
		if _, exists := m.facts[key]; !exists {
			if len(m.factOrder) >= m.caps.Facts {
				oldest := m.factOrder[0]
				m.factOrder = m.factOrder[1:]
				delete(m.facts, oldest)
			}
			m.factOrder = append(m.factOrder, key)
		}
		m.facts[key] = value
	case CategoryDecisions:
		m.decisions = appendBounded(m.decisions, payload, m.caps.Decisions)
	case CategoryConcerns:
		m.concerns = appendBounded(m.concerns, payload, m.caps.Concerns)
	case CategoryNotes:
		m.notes = appendBounded(m.notes, payload, m.caps.Notes)
	default:
		return fmt.Errorf("memory: unknown category %q", category)
	}
	return nil
}

// appendBounded appends v and drops the oldest entries beyond cap.
func appendBounded(list []string, v string, cap int) []string {
	list = append(list, v)
	if len(list) > cap {
		list = list[len(list)-cap:]
	}
	return list
}

// Tasks returns a copy of the task list.
func (m *Memory) Tasks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.tasks...)
}

// Fact returns the value of a named fact.
func (m *Memory) Fact(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.facts[key]
	return v, ok
}

// PromptFragment renders the scratchpad as a compact block for inclusion in
// the agent's system prompt. Empty categories are omitted; an entirely empty
// memory renders as an empty string.
func (m *Memory) PromptFragment() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	writeList := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		b.WriteString(title)
		b.WriteString(":\n")
		for _, it := range items {
			b.WriteString("- ")
			b.WriteString(it)
			b.WriteString("\n")
		}
	}

	writeList("TASKS", m.tasks)
	if len(m.factOrder) > 0 {
		b.WriteString("KEY FACTS:\n")
		for _, k := range m.factOrder {
			fmt.Fprintf(&b, "- %s: %s\n", k, m.facts[k])
		}
	}
	writeList("DECISIONS", m.decisions)
	writeList("CONCERNS", m.concerns)
	writeList("NOTES", m.notes)

	if b.Len() == 0 {
		return ""
	}
	return "CURRENT MEMORY:\n" + b.String()
}

// Snapshot returns the scratchpad as a plain map suitable for serialisation.
func (m *Memory) Snapshot() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	facts := make(map[string]string, len(m.facts))
	for k, v := range m.facts {
		facts[k] = v
	}
	return map[string]any{
		string(CategoryTasks):     append([]string(nil), m.tasks...),
		string(CategoryFacts):     facts,
		string(CategoryDecisions): append([]string(nil), m.decisions...),
		string(CategoryConcerns):  append([]string(nil), m.concerns...),
		string(CategoryNotes):     append([]string(nil), m.notes...),
	}
}

// Restore replaces the scratchpad contents from a snapshot map produced by
// [Memory.Snapshot] (possibly after a JSON round trip, so list values may be
// []any). Unknown keys are ignored with a warning.
func (m *Memory) Restore(data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tasks = m.tasks[:0]
	m.decisions = m.decisions[:0]
	m.concerns = m.concerns[:0]
	m.notes = m.notes[:0]
	m.facts = make(map[string]string)
	m.factOrder = m.factOrder[:0]

	for key, value := range data {
		switch Category(key) {
		case CategoryTasks:
			m.tasks = toStrings(value)
		case CategoryFacts:
			for k, v := range toStringMap(value) {
				m.facts[k] = v
				m.factOrder = append(m.factOrder, k)
			}
		case CategoryDecisions:
			m.decisions = toStrings(value)
		case CategoryConcerns:
			m.concerns = toStrings(value)
		case CategoryNotes:
			m.notes = toStrings(value)
		default:
			slog.Warn("memory.update", "event", "restore_unknown_category", "category", key)
		}
	}
}

func toStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, it := range list {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toStringMap(v any) map[string]string {
	out := make(map[string]string)
	switch mp := v.(type) {
	case map[string]string:
		for k, val := range mp {
			out[k] = val
		}
	case map[string]any:
		for k, val := range mp {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}
