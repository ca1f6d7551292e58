package loader

import (
	"slices"
	"strings"
)

// Policy lists the non-intrinsic names an isolated loader leaves to its
// parent.
type Policy struct {
	// SupportNames are modules holding process-wide state. A copy per
	// isolated namespace would fragment that state.
	SupportNames []string

	// TrustedPrefixes are shared utility namespaces. Delegating them only
	// avoids redefining the same code in every isolated namespace.
	TrustedPrefixes []string
}

// DefaultPolicy returns the support modules of this library and its
// utility prefix.
func DefaultPolicy() Policy {
	return Policy{
		SupportNames: []string{
			"isolate.trace.local",
			"isolate.trace.local$holder",
			"isolate.weave.flow",
			"isolate.weave.flow$holder",
		},
		TrustedPrefixes: []string{"isolate.util."},
	}
}

// matches reports whether the policy alone delegates name.
func (p Policy) matches(name string) bool {
	if slices.Contains(p.SupportNames, name) {
		return true
	}
	for _, prefix := range p.TrustedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
