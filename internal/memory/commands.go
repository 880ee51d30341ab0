package memory

import (
	"log/slog"
	"regexp"
	"strings"
)

// commandPattern matches one MEMORIZE directive per line, e.g.
//
//	MEMORIZE[task]: sweep the northern grid
//	MEMORIZE[key_facts]: grid=north
var commandPattern = regexp.MustCompile(`(?m)^\s*MEMORIZE\[([A-Za-z_]+)\]:\s*(.+?)\s*$`)

// aliases maps singular shorthand to canonical categories.
var aliases = map[string]Category{
	"task":     CategoryTasks,
	"fact":     CategoryFacts,
	"decision": CategoryDecisions,
	"concern":  CategoryConcerns,
	"note":     CategoryNotes,
}

// resolveCategory accepts canonical names and singular aliases,
// case-insensitively.
func resolveCategory(name string) (Category, bool) {
	lower := strings.ToLower(name)
	if alias, ok := aliases[lower]; ok {
		return alias, true
	}
	switch c := Category(lower); c {
	case CategoryTasks, CategoryFacts, CategoryDecisions, CategoryConcerns, CategoryNotes:
		return c, true
	}
	return "", false
}

// ApplyCommands extracts MEMORIZE directives from an agent's raw response,
// applies each to the memory, and returns the text with the directive lines
// removed. Directives with an unknown category or malformed payload are
// dropped from the text and logged, never surfaced to the channel.
func (m *Memory) ApplyCommands(text string) string {
	for _, match := range commandPattern.FindAllStringSubmatch(text, -1) {
		name, payload := match[1], match[2]
		category, ok := resolveCategory(name)
		if !ok {
			slog.Warn("memory.update", "event", "unknown_category", "category", name)
			continue
		}
		if err := m.Add(category, payload); err != nil {
			slog.Warn("memory.update", "event", "rejected", "category", category, "error", err)
			continue
		}
		slog.Debug("memory.update", "category", category, "payload", payload)
	}
	return stripCommands(text)
}

// stripCommands removes directive lines and tidies the leftover whitespace.
func stripCommands(text string) string {
	cleaned := commandPattern.ReplaceAllString(text, "")
	lines := strings.Split(cleaned, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) == "" && len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
