package llm

import "fmt"

// Warning records an optional field that was dropped while converting
// between dialects.
type Warning struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Field, w.Reason)
}

// DroppedField builds the warning for a field with no target equivalent.
func DroppedField(field, target string) Warning {
	return Warning{Field: field, Reason: "no equivalent in " + target + " dialect, dropped"}
}
