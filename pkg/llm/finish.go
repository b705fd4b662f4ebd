package llm

// FinishReason is the unified reason a generation stopped.
type FinishReason string

const (
	FinishUnknown       FinishReason = ""
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolUse       FinishReason = "tool_use"
	FinishContentFilter FinishReason = "content_filter"
	FinishError         FinishReason = "error"
)

// Valid reports whether r is one of the known finish reasons.
func (r FinishReason) Valid() bool {
	switch r {
	case FinishStop, FinishLength, FinishToolUse, FinishContentFilter, FinishError:
		return true
	}
	return false
}
