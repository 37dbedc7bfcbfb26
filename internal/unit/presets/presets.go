// Package presets resolves each unit's enable/disable/mask state during
// manager startup's "preset apply" step (spec.md §4.6). Reading and
// parsing the actual *.preset file grammar is named an external
// collaborator out of scope in spec.md §1 ("installation and preset
// tooling") the same way unit-file parsing itself is — this package only
// owns the decision table's shape and the resolution order a caller-
// supplied Source must be consulted in, not the file format.
package presets

import "strings"

// Decision is the outcome presets resolution reaches for one unit.
type Decision int

const (
	// Unspecified means no rule matched; the caller keeps whatever state
	// the unit already has (masked stays masked, otherwise untouched).
	Unspecified Decision = iota
	Enable
	Disable
	Mask
)

// Source supplies the raw enable/disable/mask rules an external preset
// file (or any other policy input) would parse, as an ordered list where
// the first matching glob wins — mirroring the first-match-wins semantics
// systemd-style preset files use.
type Source interface {
	// Rules returns the ordered (glob, decision) pairs.
	Rules() []Rule
}

// Rule is one preset line: glob matches a unit name with '*' wildcards;
// decision is what to do for units that match it.
type Rule struct {
	Glob     string
	Decision Decision
}

// StaticSource is the simplest Source: an in-memory rule list, useful for
// tests and for embedding a small built-in default policy.
type StaticSource []Rule

func (s StaticSource) Rules() []Rule { return s }

// Resolve walks src's rules in order and returns the first match's
// decision for unitName, or Unspecified if nothing matches.
func Resolve(src Source, unitName string) Decision {
	for _, rule := range src.Rules() {
		if globMatch(rule.Glob, unitName) {
			return rule.Decision
		}
	}
	return Unspecified
}

// globMatch supports a single '*' wildcard, enough for "*.service"/
// "getty@*.service"-style preset globs without pulling in a full glob
// engine (path.Match's metacharacter set is richer than preset files use
// and doesn't handle the "prefix*suffix" straddling a literal '@' well).
func globMatch(pattern, name string) bool {
	if pattern == "" || pattern == "*" || pattern == name {
		return true
	}

	star := strings.IndexByte(pattern, '*')
	if star < 0 {
		return false
	}
	prefix, suffix := pattern[:star], pattern[star+1:]
	return len(name) >= len(prefix)+len(suffix) &&
		strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix)
}
