// Package race groups focus-group and strategy results by the electoral race they
// belong to.
package race

import (
	"strings"
)

const (
	// OtherName is the display name shared by focus groups without a race name.
	OtherName = "Other"
	// UnknownState stands in for a missing strategy state.
	UnknownState = "Unknown"
)

// Normalize derives a race key: lowercase, keeping only [a-z0-9]. It is idempotent.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Overrides maps a literal display name to the canonical display name it should be
// grouped under. Matching is exact after trimming surrounding whitespace.
type Overrides map[string]string

// Apply returns the canonical name for name.
func (o Overrides) Apply(name string) string {
	name = strings.TrimSpace(name)
	if canonical, ok := o[name]; ok && canonical != "" {
		return canonical
	}
	return name
}

// Clone returns a copy of o.
func (o Overrides) Clone() Overrides {
	out := make(Overrides, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}
