package provider

import (
	"sort"

	"github.com/tidwall/gjson"

	"github.com/papercomputeco/switchboard/pkg/llm"
)

// ExtraFields collects the top-level fields of a JSON object payload that
// are not in known. Values are decoded into plain Go values.
func ExtraFields(payload []byte, known map[string]bool) map[string]any {
	var extra map[string]any
	gjson.ParseBytes(payload).ForEach(func(key, value gjson.Result) bool {
		if known[key.String()] {
			return true
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[key.String()] = value.Value()
		return true
	})
	return extra
}

// DropExtra reports every extra field as dropped for the target dialect, in
// key order so warnings are stable.
func DropExtra(extra map[string]any, target string) []llm.Warning {
	if len(extra) == 0 {
		return nil
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	warnings := make([]llm.Warning, 0, len(keys))
	for _, k := range keys {
		warnings = append(warnings, llm.DroppedField(k, target))
	}
	return warnings
}
