package session

import (
	"strings"

	"github.com/hupe1980/vizier/core"
)

// Memory is a session's bounded recall window plus an optional rolling
// summary. It is not safe for concurrent use; the owning Agent's lock guards it.
type Memory struct {
	depth   int
	entries []core.Memory
	summary string
}

// NewMemory returns an empty Memory keeping at most depth entries. A
// non-positive depth keeps everything and never asks for a summary.
func NewMemory(depth int) *Memory {
	return &Memory{depth: depth}
}

// Push appends an entry, dropping the oldest one once depth is exceeded.
func (m *Memory) Push(e core.Memory) {
	m.entries = append(m.entries, e)
	if m.depth > 0 && len(m.entries) > m.depth {
		over := len(m.entries) - m.depth
		m.entries = append(m.entries[:0:0], m.entries[over:]...)
	}
}

// Recall returns a copy of the entries in chronological order.
func (m *Memory) Recall() []core.Memory {
	out := make([]core.Memory, len(m.entries))
	copy(out, m.entries)

	return out
}

// Len returns the number of entries held.
func (m *Memory) Len() int { return len(m.entries) }

// Summary returns the rolling summary, if any.
func (m *Memory) Summary() string { return m.summary }

// Flush drops all entries and the summary.
func (m *Memory) Flush() {
	m.entries = nil
	m.summary = ""
}

// NeedsSummary reports whether the window is full.
func (m *Memory) NeedsSummary() bool {
	return m.depth > 0 && len(m.entries) >= m.depth
}

// ApplySummary replaces the entries with summary.
func (m *Memory) ApplySummary(summary string) {
	m.entries = nil
	m.summary = strings.TrimSpace(summary)
}
