package dialect

import (
	"fmt"

	"github.com/papercomputeco/switchboard/pkg/llm"
)

// FinishTable is the two-way mapping between each dialect's finish-reason
// vocabulary and the unified llm.FinishReason. It is built once at startup
// and only read afterwards.
type FinishTable struct {
	decode map[Dialect]map[string]llm.FinishReason
	encode map[Dialect]map[llm.FinishReason]string
}

// DefaultFinishTable returns the built-in vocabulary mapping.
func DefaultFinishTable() *FinishTable {
	t := &FinishTable{
		decode: map[Dialect]map[string]llm.FinishReason{},
		encode: map[Dialect]map[llm.FinishReason]string{},
	}

	// The first raw reason registered for a unified reason is the one
	// emitted when encoding.
	t.add(Messages, "end_turn", llm.FinishStop)
	t.add(Messages, "stop_sequence", llm.FinishStop)
	t.add(Messages, "pause_turn", llm.FinishStop)
	t.add(Messages, "max_tokens", llm.FinishLength)
	t.add(Messages, "tool_use", llm.FinishToolUse)
	t.add(Messages, "refusal", llm.FinishContentFilter)

	t.add(ChatCompletions, "stop", llm.FinishStop)
	t.add(ChatCompletions, "length", llm.FinishLength)
	t.add(ChatCompletions, "tool_calls", llm.FinishToolUse)
	t.add(ChatCompletions, "function_call", llm.FinishToolUse)
	t.add(ChatCompletions, "content_filter", llm.FinishContentFilter)

	return t
}

// NewFinishTable returns the default table extended with overrides, keyed by
// dialect and then by raw reason. Overrides take precedence over the
// built-in entries in both directions.
func NewFinishTable(overrides map[Dialect]map[string]string) (*FinishTable, error) {
	t := DefaultFinishTable()
	for d, entries := range overrides {
		if _, err := ParseDialect(string(d)); err != nil {
			return nil, err
		}
		for raw, unified := range entries {
			reason := llm.FinishReason(unified)
			if !reason.Valid() {
				return nil, fmt.Errorf("finish reason %q for %s: unknown unified reason %q", raw, d, unified)
			}
			t.decode[d][raw] = reason
			t.encode[d][reason] = raw
		}
	}
	return t, nil
}

func (t *FinishTable) add(d Dialect, raw string, reason llm.FinishReason) {
	if t.decode[d] == nil {
		t.decode[d] = map[string]llm.FinishReason{}
		t.encode[d] = map[llm.FinishReason]string{}
	}
	t.decode[d][raw] = reason
	if _, ok := t.encode[d][reason]; !ok {
		t.encode[d][reason] = raw
	}
}

// Decode maps a raw finish reason from dialect d to the unified reason.
// ok is false when the raw reason is not in the vocabulary.
func (t *FinishTable) Decode(d Dialect, raw string) (llm.FinishReason, bool) {
	reason, ok := t.decode[d][raw]
	return reason, ok
}

// Encode maps a unified reason to dialect d's vocabulary.
// ok is false when the dialect has no term for it.
func (t *FinishTable) Encode(d Dialect, reason llm.FinishReason) (string, bool) {
	raw, ok := t.encode[d][reason]
	return raw, ok
}
