package auth

import (
	"strings"

	"golang.org/x/text/cases"
)

// ParseScopes splits an RFC 6749 scope parameter on whitespace.
func ParseScopes(scope string) []string {
	return strings.Fields(scope)
}

// IntersectScopes returns the requested scopes the client is allowed,
// compared case-insensitively. Results use the allowed spelling, keep
// request order and contain no duplicates. An empty request grants the
// full allowed set.
func IntersectScopes(requested, allowed []string) []string {
	if len(requested) == 0 {
		out := make([]string, len(allowed))
		copy(out, allowed)

		return out
	}

	// Casers carry state and are not safe to share between goroutines.
	fold := cases.Fold()

	canonical := make(map[string]string, len(allowed))
	for _, a := range allowed {
		key := fold.String(a)
		if _, ok := canonical[key]; !ok {
			canonical[key] = a
		}
	}

	seen := make(map[string]struct{}, len(requested))

	var granted []string

	for _, r := range requested {
		key := fold.String(r)

		a, ok := canonical[key]
		if !ok {
			continue
		}

		if _, dup := seen[key]; dup {
			continue
		}

		seen[key] = struct{}{}
		granted = append(granted, a)
	}

	return granted
}
