package bots

import "strings"

// MatchMethod selects the strategy used to compare inbound text against a
// stored trigger list.
type MatchMethod string

const (
	// MatchAny fires on every eligible message regardless of triggers.
	MatchAny MatchMethod = "any"
	// MatchContains fires when a trigger appears anywhere in the text.
	MatchContains MatchMethod = "contains"
	// MatchContainsCaseless is MatchContains with both sides lower-cased.
	MatchContainsCaseless MatchMethod = "contains:caseless"
	// MatchExact fires when the trimmed text equals a trigger.
	MatchExact MatchMethod = "exact"
	// MatchExactCaseless is MatchExact with both sides lower-cased.
	MatchExactCaseless MatchMethod = "exact:caseless"
	// MatchStartsWith fires when the trimmed text begins with a trigger.
	MatchStartsWith MatchMethod = "starts:with"
	// MatchStartsWithCaseless is MatchStartsWith with both sides lower-cased.
	MatchStartsWithCaseless MatchMethod = "starts:with:caseless"
)

// MatchMethods enumerates every supported match method, used for validation
// and for the available-handlers listing.
func MatchMethods() []MatchMethod {
	return []MatchMethod{
		MatchAny,
		MatchContains,
		MatchContainsCaseless,
		MatchExact,
		MatchExactCaseless,
		MatchStartsWith,
		MatchStartsWithCaseless,
	}
}

// Valid reports whether m is a known match method.
func (m MatchMethod) Valid() bool {
	switch m {
	case MatchAny, MatchContains, MatchContainsCaseless,
		MatchExact, MatchExactCaseless,
		MatchStartsWith, MatchStartsWithCaseless:
		return true
	}
	return false
}

func (m MatchMethod) String() string { return string(m) }

// caseless reports whether the method lower-cases both sides before comparing.
func (m MatchMethod) caseless() bool {
	switch m {
	case MatchContainsCaseless, MatchExactCaseless, MatchStartsWithCaseless:
		return true
	}
	return false
}

// Matches reports whether text satisfies the stored trigger string under the
// given match method. The trigger string is the canonical pipe-joined form
// produced by FormatTriggers. A method other than MatchAny never matches
// empty or whitespace-only text.
func Matches(method MatchMethod, triggers, text string) bool {
	if method == MatchAny {
		return true
	}
	body := strings.TrimSpace(text)
	if body == "" {
		return false
	}
	if method.caseless() {
		body = strings.ToLower(body)
	}
	for _, trigger := range SplitTriggers(triggers) {
		if method.caseless() {
			trigger = strings.ToLower(trigger)
		}
		if matchToken(method, trigger, body) {
			return true
		}
	}
	return false
}

func matchToken(method MatchMethod, trigger, body string) bool {
	switch method {
	case MatchExact, MatchExactCaseless:
		return body == trigger
	case MatchContains, MatchContainsCaseless:
		return strings.Contains(body, trigger)
	case MatchStartsWith, MatchStartsWithCaseless:
		return strings.HasPrefix(body, trigger)
	}
	return false
}
