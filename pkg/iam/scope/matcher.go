package scope

import "strings"

// Satisfies reports whether any of tokenScopes grants the required scope.
//
// A token scope s grants required iff s is well-formed under the grammar and
// either equals required exactly, or is a coarse grant (trailing separator)
// that is a literal byte prefix of required. The trailing separator keeps the
// comparison on segment boundaries: "oauth:cl" never matches
// "oauth:client:create" because it is not well-formed, and "oauth:client:"
// matches by prefix only at the separator.
//
// Malformed token scopes are skipped, never matched: a bad grant in a token
// must not block the valid grants sitting next to it, and it must never widen
// access. The function is pure; repeated calls with the same inputs return
// the same result.
func Satisfies(tokenScopes []string, required string) bool {
	if required == "" {
		return false
	}

	for _, s := range tokenScopes {
		if !IsWellFormed(s) {
			continue
		}
		if s == required {
			return true
		}
		if strings.HasSuffix(s, Separator) && strings.HasPrefix(required, s) {
			return true
		}
	}
	return false
}

// SatisfiesAny reports whether the token scopes grant at least one of the
// required scopes. An empty requirement list is never satisfied; the caller
// treats that case as a configuration defect before reaching the matcher.
func SatisfiesAny(tokenScopes []string, required []string) bool {
	for _, r := range required {
		if Satisfies(tokenScopes, r) {
			return true
		}
	}
	return false
}
