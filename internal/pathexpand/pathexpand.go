// Package pathexpand expands "~", "~/…", and "%USERPROFILE%" tokens against
// a resolved home directory, both for plain filesystem paths and for raw
// JSON source text that must remain valid JSON after substitution.
package pathexpand

import (
	"os"
	"strings"
)

// Plain expands a single filesystem path. A leading "~" or "~/" is replaced
// with home; a bare "~" is replaced outright; "%USERPROFILE%" is replaced
// case-insensitively; any remaining "$VAR"/"${VAR}" tokens are then expanded
// against the process environment.
func Plain(input, home string) string {
	expanded := input

	switch {
	case expanded == "~":
		expanded = home
	case strings.HasPrefix(expanded, "~/"):
		expanded = home + expanded[1:]
	case strings.HasPrefix(expanded, `~\`):
		expanded = home + expanded[1:]
	}

	expanded = replaceCaseInsensitive(expanded, "%USERPROFILE%", home)
	expanded = os.Expand(expanded, os.Getenv)

	return expanded
}

// JSONText expands only "~\\", "~/", and "%USERPROFILE%" tokens inside raw
// JSON source text, doubling backslashes in the substitute value so the
// result remains valid JSON. No other environment-variable expansion is
// performed here: JSON text is parsed by a downstream decoder that expects
// literal backslash-escaping rules, not shell-style env substitution.
func JSONText(input, home string) string {
	jsonSafeHome := strings.ReplaceAll(home, `\`, `\\`)

	expanded := replaceCaseInsensitive(input, `~\\`, jsonSafeHome+`\\`)
	expanded = strings.ReplaceAll(expanded, "~/", jsonSafeHome+"/")
	expanded = replaceCaseInsensitive(expanded, "%USERPROFILE%", jsonSafeHome)

	return expanded
}

// replaceCaseInsensitive replaces every case-insensitive occurrence of
// token in s with replacement, preserving the rest of s untouched.
func replaceCaseInsensitive(s, token, replacement string) string {
	if token == "" {
		return s
	}

	lowerS := strings.ToLower(s)
	lowerToken := strings.ToLower(token)

	var b strings.Builder
	start := 0
	for {
		idx := strings.Index(lowerS[start:], lowerToken)
		if idx < 0 {
			b.WriteString(s[start:])
			break
		}
		idx += start
		b.WriteString(s[start:idx])
		b.WriteString(replacement)
		start = idx + len(token)
	}

	return b.String()
}
