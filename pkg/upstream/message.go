package upstream

import "github.com/tidwall/gjson"

// errorMessage extracts the provider's error message from an error body in
// either dialect. Both put it under error.message.
func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	return gjson.GetBytes(body, "error.message").String()
}
