package bots

import "strings"

// TriggerDelimiter joins trigger tokens in the persisted canonical form. The
// layout must stay byte-stable: stored actions carry it across releases.
const TriggerDelimiter = "|"

// FormatTriggers normalizes a raw trigger list into the canonical persisted
// string. Each element may itself hold several tokens separated by commas or
// pipes. Tokens are trimmed, empties dropped, duplicates removed keeping the
// first occurrence, and the result joined with TriggerDelimiter.
func FormatTriggers(raw []string) string {
	seen := map[string]struct{}{}
	tokens := make([]string, 0, len(raw))
	for _, item := range raw {
		for _, token := range splitRaw(item) {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			if _, dup := seen[token]; dup {
				continue
			}
			seen[token] = struct{}{}
			tokens = append(tokens, token)
		}
	}
	return strings.Join(tokens, TriggerDelimiter)
}

// SplitTriggers splits a canonical trigger string back into its ordered
// tokens. Empty input yields nil.
func SplitTriggers(triggers string) []string {
	if strings.TrimSpace(triggers) == "" {
		return nil
	}
	parts := strings.Split(triggers, TriggerDelimiter)
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

func splitRaw(item string) []string {
	return strings.FieldsFunc(item, func(r rune) bool {
		return r == ',' || r == '|'
	})
}
