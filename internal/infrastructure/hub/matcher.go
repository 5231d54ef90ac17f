package hub

import "strings"

// Wildcard is the only pattern metacharacter, and only in final position.
const Wildcard = "*"

// Match reports whether topic satisfies pattern. A pattern ending in "*"
// matches every topic sharing the literal prefix before it; any other
// pattern must equal the topic exactly.
func Match(pattern, topic string) bool {
	if prefix, ok := strings.CutSuffix(pattern, Wildcard); ok {
		return strings.HasPrefix(topic, prefix)
	}
	return pattern == topic
}

// matchAny reports whether any pattern matches topic, stopping at the first hit.
func matchAny(patterns []string, topic string) bool {
	for _, p := range patterns {
		if Match(p, topic) {
			return true
		}
	}
	return false
}
