// Package routing resolves the provider family for a call and decides
// whether the inbound payload must be converted before it is forwarded.
package routing

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/papercomputeco/switchboard/pkg/llm"
	"github.com/papercomputeco/switchboard/pkg/llm/dialect"
)

// Route is one of the four ways a call can be served.
type Route int

const (
	DirectBuffered Route = iota
	DirectStreaming
	ConvertBuffered
	ConvertStreaming
)

func (r Route) String() string {
	switch r {
	case DirectBuffered:
		return "direct_buffered"
	case DirectStreaming:
		return "direct_streaming"
	case ConvertBuffered:
		return "convert_buffered"
	case ConvertStreaming:
		return "convert_streaming"
	}
	return fmt.Sprintf("route(%d)", int(r))
}

// Decision is the immutable outcome of routing one call.
type Decision struct {
	// Inbound is the dialect the client spoke.
	Inbound dialect.Dialect

	// Family is the provider family the call is sent to.
	Family dialect.Family

	// Model is the model the client asked for.
	Model string

	// UpstreamModel is the model name sent to the provider. It equals Model
	// unless an alias is configured.
	UpstreamModel string

	// ConversionRequired is set when Family does not natively speak Inbound.
	ConversionRequired bool

	// Streaming mirrors the inbound stream flag.
	Streaming bool
}

// Target returns the dialect spoken to the upstream provider.
func (d Decision) Target() dialect.Dialect {
	return d.Family.Native()
}

// Aliased reports whether the upstream model name differs from the inbound one.
func (d Decision) Aliased() bool {
	return d.UpstreamModel != d.Model
}

// Route collapses the decision into one of the four routes.
func (d Decision) Route() Route {
	switch {
	case !d.ConversionRequired && !d.Streaming:
		return DirectBuffered
	case !d.ConversionRequired && d.Streaming:
		return DirectStreaming
	case d.ConversionRequired && !d.Streaming:
		return ConvertBuffered
	default:
		return ConvertStreaming
	}
}

// Model is an exact routing entry.
type Model struct {
	Name          string
	Family        dialect.Family
	UpstreamModel string
}

// Prefix routes every model whose name starts with Prefix.
type Prefix struct {
	Prefix string
	Family dialect.Family
}

// DefaultPrefixes are used when the configuration names none.
func DefaultPrefixes() []Prefix {
	return []Prefix{
		{Prefix: "gpt", Family: dialect.OpenAI},
		{Prefix: "claude", Family: dialect.Anthropic},
	}
}

// Table resolves model names to provider families. It is read-only once
// built and may be shared between goroutines.
type Table struct {
	models        map[string]Model
	order         []string
	prefixes      []Prefix
	defaultFamily dialect.Family
}

// Option configures a Table.
type Option func(*Table)

// WithModels adds exact model entries.
func WithModels(models ...Model) Option {
	return func(t *Table) {
		for _, m := range models {
			if _, exists := t.models[m.Name]; !exists {
				t.order = append(t.order, m.Name)
			}
			t.models[m.Name] = m
		}
	}
}

// WithPrefixes replaces the prefix rules.
func WithPrefixes(prefixes ...Prefix) Option {
	return func(t *Table) {
		t.prefixes = append([]Prefix(nil), prefixes...)
	}
}

// WithDefaultFamily sets the family used when nothing else matches.
func WithDefaultFamily(f dialect.Family) Option {
	return func(t *Table) {
		t.defaultFamily = f
	}
}

// NewTable builds a Table. Prefix rules default to DefaultPrefixes.
func NewTable(opts ...Option) (*Table, error) {
	t := &Table{
		models:   make(map[string]Model),
		prefixes: DefaultPrefixes(),
	}
	for _, opt := range opts {
		opt(t)
	}

	for _, m := range t.models {
		if m.Name == "" {
			return nil, errors.New("routing model entry has no name")
		}
		if _, err := dialect.ParseFamily(string(m.Family)); err != nil {
			return nil, fmt.Errorf("routing model %q: %w", m.Name, err)
		}
	}
	for _, p := range t.prefixes {
		if p.Prefix == "" {
			return nil, errors.New("routing prefix rule has an empty prefix")
		}
		if _, err := dialect.ParseFamily(string(p.Family)); err != nil {
			return nil, fmt.Errorf("routing prefix %q: %w", p.Prefix, err)
		}
	}
	if t.defaultFamily != "" {
		if _, err := dialect.ParseFamily(string(t.defaultFamily)); err != nil {
			return nil, fmt.Errorf("routing default family: %w", err)
		}
	}

	// Longest prefix first so the first match is the most specific one.
	sort.SliceStable(t.prefixes, func(i, j int) bool {
		return len(t.prefixes[i].Prefix) > len(t.prefixes[j].Prefix)
	})

	return t, nil
}

// Decide routes one call. It performs no I/O and fails with
// *llm.UnknownModelError when the model cannot be resolved.
func (t *Table) Decide(inbound dialect.Dialect, model string, stream bool) (Decision, error) {
	family, upstream, ok := t.resolve(model)
	if !ok {
		return Decision{}, &llm.UnknownModelError{Model: model}
	}

	return Decision{
		Inbound:            inbound,
		Family:             family,
		Model:              model,
		UpstreamModel:      upstream,
		ConversionRequired: dialect.NativeFamily(inbound) != family,
		Streaming:          stream,
	}, nil
}

func (t *Table) resolve(model string) (dialect.Family, string, bool) {
	if m, ok := t.models[model]; ok {
		upstream := m.UpstreamModel
		if upstream == "" {
			upstream = model
		}
		return m.Family, upstream, true
	}

	if model != "" {
		for _, p := range t.prefixes {
			if strings.HasPrefix(model, p.Prefix) {
				return p.Family, model, true
			}
		}
	}

	if t.defaultFamily != "" && model != "" {
		return t.defaultFamily, model, true
	}
	return "", "", false
}

// Models returns the exact model entries in configuration order.
func (t *Table) Models() []Model {
	out := make([]Model, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.models[name])
	}
	return out
}

// Families returns the distinct families the table can route to.
func (t *Table) Families() []dialect.Family {
	seen := map[dialect.Family]bool{}
	var out []dialect.Family
	add := func(f dialect.Family) {
		if f != "" && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for _, name := range t.order {
		add(t.models[name].Family)
	}
	for _, p := range t.prefixes {
		add(p.Family)
	}
	add(t.defaultFamily)
	return out
}
