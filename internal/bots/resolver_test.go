package bots

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type respondHandler struct {
	BaseHandler
}

func (h *respondHandler) Rules() map[string]any {
	return map[string]any{"replies": "required,min=1,max=5,dive,required"}
}

func (h *respondHandler) ErrorMessages() map[string]string {
	return map[string]string{"replies": "Replies are required."}
}

func (h *respondHandler) Handle(ctx context.Context, env Envelope) error { return nil }

type autoHandler struct {
	BaseHandler
}

func (h *autoHandler) Handle(ctx context.Context, env Envelope) error { return nil }

type commandHandler struct {
	BaseHandler
}

func (h *commandHandler) Handle(ctx context.Context, env Envelope) error { return nil }

type forcedHandler struct {
	BaseHandler
}

func (h *forcedHandler) Handle(ctx context.Context, env Envelope) error { return nil }

func resolverFixture(t *testing.T) (*Resolver, *Registry) {
	t.Helper()
	r := NewRegistry()
	r.MustRegister(Definition{
		Alias: "stub",
		Name:  "Stub",
		New:   func() Handler { return &stubHandler{} },
	})
	r.MustRegister(Definition{
		Alias: "respond",
		Name:  "Respond",
		New:   func() Handler { return &respondHandler{} },
	})
	r.MustRegister(Definition{
		Alias: "auto",
		Name:  "Auto",
		Match: MatchAny,
		New:   func() Handler { return &autoHandler{} },
	})
	r.MustRegister(Definition{
		Alias:    "command",
		Name:     "Command",
		Unique:   true,
		Match:    MatchExactCaseless,
		Triggers: []string{"!cmd", "!c"},
		New:      func() Handler { return &commandHandler{} },
	})
	r.MustRegister(Definition{
		Alias: "forced",
		Name:  "Forced",
		Match: MatchContains,
		New:   func() Handler { return &forcedHandler{} },
	})
	return NewResolver(r), r
}

func baseData(extra map[string]any) map[string]any {
	data := map[string]any{
		"handler":    "stub",
		"match":      "contains",
		"triggers":   []any{"hello", "hi"},
		"cooldown":   30,
		"admin_only": false,
		"enabled":    true,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

func fieldErrors(t *testing.T, err error) map[string][]string {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	return verr.Fields
}

func TestResolveCanonicalAction(t *testing.T) {
	resolver, registry := resolverFixture(t)

	resolved, err := resolver.Resolve(baseData(nil), "")
	require.NoError(t, err)

	def, _ := registry.Resolve("stub")
	assert.Equal(t, def.ID, resolved.Handler)
	assert.Equal(t, "Stub", resolved.Name)
	assert.Equal(t, MatchContains, resolved.Match)
	assert.Equal(t, "hello|hi", resolved.Triggers)
	assert.Equal(t, 30, resolved.Cooldown)
	assert.False(t, resolved.AdminOnly)
	assert.True(t, resolved.Enabled)
	assert.False(t, resolved.Unique)
	assert.Nil(t, resolved.Payload)
}

func TestResolveIsIdempotent(t *testing.T) {
	resolver, _ := resolverFixture(t)

	first, err := resolver.Resolve(baseData(nil), "")
	require.NoError(t, err)
	second, err := resolver.Resolve(baseData(nil), "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveNormalizesTriggerDelimiters(t *testing.T) {
	resolver, _ := resolverFixture(t)

	data := baseData(map[string]any{"triggers": []any{" hello , hi ", "hello|hey"}})
	resolved, err := resolver.Resolve(data, "")
	require.NoError(t, err)
	assert.Equal(t, "hello|hi|hey", resolved.Triggers)
}

func TestResolveAliasIsCaseSensitive(t *testing.T) {
	resolver, _ := resolverFixture(t)

	data := baseData(map[string]any{"handler": "StUb"})
	_, err := resolver.Resolve(data, "")
	fields := fieldErrors(t, err)
	assert.Equal(t, []string{"The selected handler is invalid."}, fields["handler"])
}

func TestResolveUnknownHandler(t *testing.T) {
	resolver, _ := resolverFixture(t)

	data := baseData(map[string]any{"handler": "nope"})
	_, err := resolver.Resolve(data, "")
	fields := fieldErrors(t, err)
	assert.Equal(t, []string{"The selected handler is invalid."}, fields["handler"])
}

func TestResolveMissingBaseFields(t *testing.T) {
	resolver, _ := resolverFixture(t)

	_, err := resolver.Resolve(map[string]any{"handler": "stub"}, "")
	fields := fieldErrors(t, err)
	assert.Contains(t, fields, "match")
	assert.Contains(t, fields, "triggers")
	assert.Contains(t, fields, "cooldown")
	assert.Contains(t, fields, "admin_only")
	assert.Contains(t, fields, "enabled")
}

func TestResolveCooldownBounds(t *testing.T) {
	resolver, _ := resolverFixture(t)

	for _, cooldown := range []int{-1, CooldownLimit + 1} {
		data := baseData(map[string]any{"cooldown": cooldown})
		_, err := resolver.Resolve(data, "")
		fields := fieldErrors(t, err)
		assert.Contains(t, fields, "cooldown")
	}

	data := baseData(map[string]any{"cooldown": CooldownLimit})
	resolved, err := resolver.Resolve(data, "")
	require.NoError(t, err)
	assert.Equal(t, CooldownLimit, resolved.Cooldown)
}

func TestResolveAcceptsJSONNumbers(t *testing.T) {
	resolver, _ := resolverFixture(t)

	data := baseData(map[string]any{"cooldown": float64(45)})
	resolved, err := resolver.Resolve(data, "")
	require.NoError(t, err)
	assert.Equal(t, 45, resolved.Cooldown)

	data = baseData(map[string]any{"cooldown": 4.5})
	_, err = resolver.Resolve(data, "")
	fields := fieldErrors(t, err)
	assert.Contains(t, fields, "cooldown")
}

func TestResolveInvalidMatch(t *testing.T) {
	resolver, _ := resolverFixture(t)

	data := baseData(map[string]any{"match": "fuzzy"})
	_, err := resolver.Resolve(data, "")
	fields := fieldErrors(t, err)
	assert.Equal(t, []string{"The selected match is invalid."}, fields["match"])
}

func TestResolveMatchAnySkipsTriggers(t *testing.T) {
	resolver, _ := resolverFixture(t)

	data := baseData(map[string]any{"match": "any"})
	delete(data, "triggers")
	resolved, err := resolver.Resolve(data, "")
	require.NoError(t, err)
	assert.Equal(t, MatchAny, resolved.Match)
	assert.Equal(t, "", resolved.Triggers)
}

func TestResolveTriggersRejectNonStrings(t *testing.T) {
	resolver, _ := resolverFixture(t)

	data := baseData(map[string]any{"triggers": []any{"ok", 7}})
	_, err := resolver.Resolve(data, "")
	fields := fieldErrors(t, err)
	assert.Equal(t, []string{"A trigger must be a string."}, fields["triggers"])

	data = baseData(map[string]any{"triggers": []any{" ", ""}})
	_, err = resolver.Resolve(data, "")
	fields = fieldErrors(t, err)
	assert.Contains(t, fields, "triggers")
}

func TestResolveMatchAnyOverride(t *testing.T) {
	resolver, _ := resolverFixture(t)

	// The registry forces "any": caller may omit match and triggers entirely.
	data := map[string]any{
		"handler":    "auto",
		"cooldown":   0,
		"admin_only": false,
		"enabled":    true,
	}
	resolved, err := resolver.Resolve(data, "")
	require.NoError(t, err)
	assert.Equal(t, MatchAny, resolved.Match)
	assert.Equal(t, "", resolved.Triggers)
}

func TestResolveMatchAndTriggerOverrides(t *testing.T) {
	resolver, _ := resolverFixture(t)

	// Caller input for match and triggers is discarded in favor of the
	// registry settings.
	data := map[string]any{
		"handler":    "command",
		"match":      "contains",
		"triggers":   []any{"ignored"},
		"cooldown":   10,
		"admin_only": true,
		"enabled":    true,
	}
	resolved, err := resolver.Resolve(data, "")
	require.NoError(t, err)
	assert.Equal(t, MatchExactCaseless, resolved.Match)
	assert.Equal(t, "!cmd|!c", resolved.Triggers)
	assert.True(t, resolved.Unique)
	assert.True(t, resolved.AdminOnly)
}

func TestResolveForcedMatchStillNeedsTriggers(t *testing.T) {
	resolver, _ := resolverFixture(t)

	// The registry forces "contains" without default triggers. Claiming
	// "any" in the input skips the conditional requirement, but the final
	// guard still rejects the trigger-less result.
	data := map[string]any{
		"handler":    "forced",
		"match":      "any",
		"cooldown":   0,
		"admin_only": false,
		"enabled":    true,
	}
	_, err := resolver.Resolve(data, "")
	fields := fieldErrors(t, err)
	assert.Equal(t, []string{"The triggers field is required."}, fields["triggers"])
}

func TestResolveHandlerOverrideBypassesAlias(t *testing.T) {
	resolver, registry := resolverFixture(t)
	def, _ := registry.Resolve("stub")

	data := baseData(nil)
	delete(data, "handler")
	resolved, err := resolver.Resolve(data, def.ID)
	require.NoError(t, err)
	assert.Equal(t, def.ID, resolved.Handler)

	_, err = resolver.Resolve(data, "not-registered")
	assert.True(t, errors.Is(err, ErrInvalidHandler))
}

func TestResolveHandlerPayload(t *testing.T) {
	resolver, _ := resolverFixture(t)

	data := baseData(map[string]any{
		"handler": "respond",
		"replies": []any{"hello there"},
	})
	resolved, err := resolver.Resolve(data, "")
	require.NoError(t, err)
	require.NotNil(t, resolved.Payload)

	var decoded struct {
		Replies []string `json:"replies"`
	}
	require.NoError(t, json.Unmarshal([]byte(*resolved.Payload), &decoded))
	assert.Equal(t, []string{"hello there"}, decoded.Replies)
}

func TestResolveHandlerRuleFailure(t *testing.T) {
	resolver, _ := resolverFixture(t)

	data := baseData(map[string]any{"handler": "respond"})
	_, err := resolver.Resolve(data, "")
	fields := fieldErrors(t, err)
	assert.Equal(t, []string{"Replies are required."}, fields["replies"])
}

func TestResolveCollectsAllFailures(t *testing.T) {
	resolver, _ := resolverFixture(t)

	data := map[string]any{
		"handler":  "respond",
		"match":    "fuzzy",
		"cooldown": 9999,
		"enabled":  "yes",
	}
	_, err := resolver.Resolve(data, "")
	fields := fieldErrors(t, err)
	assert.Contains(t, fields, "match")
	assert.Contains(t, fields, "cooldown")
	assert.Contains(t, fields, "enabled")
	assert.Contains(t, fields, "admin_only")
	assert.Contains(t, fields, "replies")
}
