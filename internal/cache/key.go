package cache

import (
	"sort"
	"strings"
)

// Key derives a deterministic cache key from an operation type and its
// parameters. Parameters are sorted by name so equivalent queries collide
// regardless of insertion order.
func Key(op string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(op)
	b.WriteByte(':')
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(params[name])
	}
	return b.String()
}
