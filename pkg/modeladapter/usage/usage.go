// Package usage accumulates the token counters Ollama reports on each
// completion.
package usage

import (
	"sync"
	"time"
)

// TokenCount holds the counters reported for a single completion.
type TokenCount struct {
	Model        string
	PromptTokens int           // prompt_eval_count
	EvalTokens   int           // eval_count
	Duration     time.Duration // total_duration
}

// Total returns the sum of prompt and generated tokens.
func (tc TokenCount) Total() int {
	return tc.PromptTokens + tc.EvalTokens
}

// Tracker accumulates token usage across completions.
// It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	entries []TokenCount
}

// Add records a token count entry.
func (t *Tracker) Add(tc TokenCount) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, tc)
}

// Last returns the most recent entry.
// The bool is false when the tracker has no entries.
func (t *Tracker) Last() (TokenCount, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) == 0 {
		return TokenCount{}, false
	}

	return t.entries[len(t.entries)-1], true
}

// Total returns the aggregate across all entries. The Model field is left
// empty.
func (t *Tracker) Total() TokenCount {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total TokenCount
	for _, e := range t.entries {
		total.PromptTokens += e.PromptTokens
		total.EvalTokens += e.EvalTokens
		total.Duration += e.Duration
	}

	return total
}

// ByModel aggregates entries per model name.
func (t *Tracker) ByModel() map[string]TokenCount {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]TokenCount)
	for _, e := range t.entries {
		agg := out[e.Model]
		agg.Model = e.Model
		agg.PromptTokens += e.PromptTokens
		agg.EvalTokens += e.EvalTokens
		agg.Duration += e.Duration
		out[e.Model] = agg
	}

	return out
}

// Count returns the number of recorded entries.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

// Reset clears all recorded entries.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = nil
}
