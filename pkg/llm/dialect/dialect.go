// Package dialect names the two wire dialects and the provider families that
// speak them natively, and holds the finish-reason vocabulary shared by the
// converters.
package dialect

import "fmt"

// Dialect is a request/response schema family spoken by clients.
type Dialect string

const (
	// Messages is the Messages-style dialect (POST /v1/messages).
	Messages Dialect = "messages"

	// ChatCompletions is the Chat Completions-style dialect
	// (POST /v1/chat/completions).
	ChatCompletions Dialect = "chat_completions"
)

// Family is a provider family an upstream belongs to.
type Family string

const (
	Anthropic Family = "anthropic"
	OpenAI    Family = "openai"
)

// Dialects returns every supported dialect.
func Dialects() []Dialect {
	return []Dialect{Messages, ChatCompletions}
}

// Families returns every supported provider family.
func Families() []Family {
	return []Family{Anthropic, OpenAI}
}

// NativeFamily returns the provider family that speaks d without conversion.
func NativeFamily(d Dialect) Family {
	switch d {
	case Messages:
		return Anthropic
	case ChatCompletions:
		return OpenAI
	}
	return ""
}

// Native returns the dialect family f speaks natively.
func (f Family) Native() Dialect {
	switch f {
	case Anthropic:
		return Messages
	case OpenAI:
		return ChatCompletions
	}
	return ""
}

// ParseFamily validates a family name from configuration.
func ParseFamily(s string) (Family, error) {
	switch f := Family(s); f {
	case Anthropic, OpenAI:
		return f, nil
	}
	return "", fmt.Errorf("unknown provider family: %q (supported: %v)", s, Families())
}

// ParseDialect validates a dialect name from configuration.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(s); d {
	case Messages, ChatCompletions:
		return d, nil
	}
	return "", fmt.Errorf("unknown dialect: %q (supported: %v)", s, Dialects())
}

// Path returns the inbound endpoint path served for d.
func (d Dialect) Path() string {
	switch d {
	case Messages:
		return "/v1/messages"
	case ChatCompletions:
		return "/v1/chat/completions"
	}
	return ""
}
