package router

import (
	"regexp"
)

// Canonical procedure paths use the strict grammar: dotted lowercase
// identifiers. Aliases additionally accept the relaxed grammar, which
// permits camelCase segments for legacy names.
var (
	strictPathRE  = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)
	relaxedPathRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)*$`)
)

// ValidPath reports whether p matches the strict path grammar.
func ValidPath(p string) bool {
	return strictPathRE.MatchString(p)
}

// ValidAliasPath reports whether p matches the relaxed path grammar.
func ValidAliasPath(p string) bool {
	return relaxedPathRE.MatchString(p)
}
