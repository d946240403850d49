package trace

import "strings"

// Details can carry bytes read straight out of guest memory (thread
// names, assertion strings). Redact keeps them safe for terminals,
// logs, and storage: control characters become '.', and anything past
// maxDetailLen is cut.
const maxDetailLen = 96

// Redact returns a terminal-safe version of a detail string.
func Redact(detail string) string {
	clean := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return '.'
		}
		return r
	}, detail)
	if len(clean) > maxDetailLen {
		return clean[:maxDetailLen] + "..."
	}
	return clean
}

// Clean reports whether a detail string would pass Redact unchanged.
func Clean(detail string) bool {
	return Redact(detail) == detail
}
