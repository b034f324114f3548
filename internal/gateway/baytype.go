package gateway

import "strings"

// InferBayType resolves a bay's type from its display name using the
// configured name prefixes. The first matching prefix wins; a name
// matching no prefix is typed unknown and never auto-allocated.
func InferBayType(prefixes map[string]string, name string) BayType {
	// Longest prefix first so "OS" wins over "O" style overlaps.
	best := BayTypeUnknown
	bestLen := 0
	for typ, prefix := range prefixes {
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(name, prefix) && len(prefix) > bestLen {
			best = BayType(typ)
			bestLen = len(prefix)
		}
	}
	return best
}
