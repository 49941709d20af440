package bots

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// baseRuleKeys are the fields consumed by the base ruleset. Anything else
// surviving validation belongs to the handler payload.
var baseRuleKeys = map[string]struct{}{
	"handler":    {},
	"match":      {},
	"triggers":   {},
	"cooldown":   {},
	"admin_only": {},
	"enabled":    {},
}

// overrides holds the registry-defined values that take precedence over
// caller input during one resolution.
type overrides struct {
	match       MatchMethod
	hasMatch    bool
	triggers    string
	hasTriggers bool
}

// Resolver validates and normalizes raw action data into the canonical
// record stored as a BotAction. It is stateless and safe for concurrent use.
type Resolver struct {
	registry *Registry
	validate *validator.Validate
}

// NewResolver creates a Resolver over the given registry.
func NewResolver(registry *Registry) *Resolver {
	return &Resolver{
		registry: registry,
		validate: validator.New(),
	}
}

// Resolve produces the canonical action data for storing or updating a bot
// action. When handlerOverride is non-empty it names the handler directly
// (trusted internal callers, e.g. programmatic seeding) and the alias field
// of data is ignored; otherwise data must carry a registered alias under
// "handler". Failures surface as *ValidationError or *BotError.
func (r *Resolver) Resolve(data map[string]any, handlerOverride string) (ResolvedAction, error) {
	if data == nil {
		data = map[string]any{}
	}

	var def Definition
	var err error
	if strings.TrimSpace(handlerOverride) != "" {
		def, err = r.registry.Resolve(handlerOverride)
		if err != nil {
			return ResolvedAction{}, err
		}
	} else {
		alias, verr := r.validateHandlerAlias(data)
		if verr != nil {
			return ResolvedAction{}, verr
		}
		def, err = r.registry.Resolve(alias)
		if err != nil {
			return ResolvedAction{}, err
		}
	}

	handler := def.New()
	ovr := overridesFor(def)

	validated, verr := r.validateRuleset(data, handler, ovr)
	if verr != nil {
		return ResolvedAction{}, verr
	}

	resolved, err := buildResolved(def, handler, validated, ovr)
	if err != nil {
		return ResolvedAction{}, err
	}

	// Defensive check: a handler override must never leave a non-any match
	// without triggers.
	if resolved.Match != MatchAny && strings.TrimSpace(resolved.Triggers) == "" {
		verr := NewValidationError()
		verr.Add("triggers", "The triggers field is required.")
		return ResolvedAction{}, verr
	}

	return resolved, nil
}

func (r *Resolver) validateHandlerAlias(data map[string]any) (string, error) {
	raw, ok := data["handler"]
	if !ok {
		verr := NewValidationError()
		verr.Add("handler", "The handler field is required.")
		return "", verr
	}
	alias, ok := raw.(string)
	if !ok || strings.TrimSpace(alias) == "" {
		verr := NewValidationError()
		verr.Add("handler", "The handler field is required.")
		return "", verr
	}
	for _, known := range r.registry.Aliases() {
		if alias == known {
			return known, nil
		}
	}
	verr := NewValidationError()
	verr.Add("handler", "The selected handler is invalid.")
	return "", verr
}

// overridesFor computes the registry-defined overrides. A non-empty default
// match always wins over input; default triggers only apply when the default
// match is not "any".
func overridesFor(def Definition) overrides {
	var ovr overrides
	if def.Match != "" {
		ovr.match = def.Match
		ovr.hasMatch = true
	}
	if len(def.Triggers) > 0 && def.Match != MatchAny {
		ovr.triggers = FormatTriggers(def.Triggers)
		ovr.hasTriggers = true
	}
	return ovr
}

// validateRuleset runs the two validation phases: the explicit base ruleset
// with its conditional match/triggers requirements, then the handler's own
// declared rules through validator/v10. All failures are collected into one
// field-indexed error.
func (r *Resolver) validateRuleset(data map[string]any, handler Handler, ovr overrides) (map[string]any, *ValidationError) {
	verr := NewValidationError()
	validated := map[string]any{}

	if cooldown, ok := requireInt(data, "cooldown", verr); ok {
		if cooldown < 0 || cooldown > CooldownLimit {
			verr.Add("cooldown", fmt.Sprintf("The cooldown must be between 0 and %d.", CooldownLimit))
		} else {
			validated["cooldown"] = cooldown
		}
	}
	if adminOnly, ok := requireBool(data, "admin_only", verr); ok {
		validated["admin_only"] = adminOnly
	}
	if enabled, ok := requireBool(data, "enabled", verr); ok {
		validated["enabled"] = enabled
	}

	if !ovr.hasMatch {
		if match, ok := requireString(data, "match", verr); ok {
			if !MatchMethod(match).Valid() {
				verr.Add("match", "The selected match is invalid.")
			} else {
				validated["match"] = match
			}
		}
	}

	if shouldValidateTriggers(data, ovr) {
		if list, ok := requireStringList(data, "triggers", verr); ok {
			validated["triggers"] = list
		}
	}

	r.validateHandlerRules(data, handler, validated, verr)

	if !verr.Empty() {
		return nil, verr
	}
	return validated, nil
}

// shouldValidateTriggers mirrors the conditional requirement: triggers are
// needed unless the registry overrides them, the caller picked "any", or the
// registry forces "any".
func shouldValidateTriggers(data map[string]any, ovr overrides) bool {
	if ovr.hasTriggers {
		return false
	}
	if raw, ok := data["match"].(string); ok && MatchMethod(raw) == MatchAny {
		return false
	}
	if ovr.hasMatch && ovr.match == MatchAny {
		return false
	}
	return true
}

// validateHandlerRules applies the handler-declared extension schema via
// validator/v10's map validation and copies the passing fields through.
func (r *Resolver) validateHandlerRules(data map[string]any, handler Handler, validated map[string]any, verr *ValidationError) {
	rules := handler.Rules()
	if len(rules) == 0 {
		return
	}
	subject := map[string]any{}
	for field := range rules {
		if _, base := baseRuleKeys[field]; base {
			continue
		}
		subject[field] = data[field]
	}
	if len(subject) == 0 {
		return
	}
	failures := r.validate.ValidateMap(subject, rules)
	messages := handler.ErrorMessages()
	for field := range subject {
		if _, failed := failures[field]; failed {
			if msg, ok := messages[field]; ok {
				verr.Add(field, msg)
			} else {
				verr.Add(field, fmt.Sprintf("The %s field is invalid.", field))
			}
			continue
		}
		if value, present := data[field]; present {
			validated[field] = value
		}
	}
}

// buildResolved assembles the canonical output from the validated input and
// the definition's settings.
func buildResolved(def Definition, handler Handler, validated map[string]any, ovr overrides) (ResolvedAction, error) {
	match := ovr.match
	if !ovr.hasMatch {
		match = MatchMethod(validated["match"].(string))
	}

	triggers := ""
	if match != MatchAny {
		if ovr.hasTriggers {
			triggers = ovr.triggers
		} else if list, ok := validated["triggers"].([]string); ok {
			triggers = FormatTriggers(list)
		}
	}

	payload, err := buildPayload(handler, validated)
	if err != nil {
		return ResolvedAction{}, NewBotError("serialize handler payload", err)
	}

	return ResolvedAction{
		Handler:   def.ID,
		Name:      def.Name,
		Unique:    def.Unique,
		Authorize: def.Authorize,
		Match:     match,
		Triggers:  triggers,
		AdminOnly: validated["admin_only"].(bool),
		Cooldown:  validated["cooldown"].(int),
		Enabled:   validated["enabled"].(bool),
		Payload:   payload,
	}, nil
}

// buildPayload strips the base rule fields from the validated set and hands
// the remainder to the handler's own serialization. No extra fields means a
// null payload.
func buildPayload(handler Handler, validated map[string]any) (*string, error) {
	extra := map[string]any{}
	for field, value := range validated {
		if _, base := baseRuleKeys[field]; base {
			continue
		}
		extra[field] = value
	}
	if len(extra) == 0 {
		return nil, nil
	}
	serialized, err := handler.SerializePayload(extra)
	if err != nil {
		return nil, err
	}
	return &serialized, nil
}

func requireInt(data map[string]any, field string, verr *ValidationError) (int, bool) {
	raw, ok := data[field]
	if !ok || raw == nil {
		verr.Add(field, fmt.Sprintf("The %s field is required.", field))
		return 0, false
	}
	switch v := raw.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	verr.Add(field, fmt.Sprintf("The %s must be an integer.", field))
	return 0, false
}

func requireBool(data map[string]any, field string, verr *ValidationError) (bool, bool) {
	raw, ok := data[field]
	if !ok || raw == nil {
		verr.Add(field, fmt.Sprintf("The %s field is required.", field))
		return false, false
	}
	value, ok := raw.(bool)
	if !ok {
		verr.Add(field, fmt.Sprintf("The %s must be a boolean.", field))
		return false, false
	}
	return value, true
}

func requireString(data map[string]any, field string, verr *ValidationError) (string, bool) {
	raw, ok := data[field]
	if !ok || raw == nil {
		verr.Add(field, fmt.Sprintf("The %s field is required.", field))
		return "", false
	}
	value, ok := raw.(string)
	if !ok || strings.TrimSpace(value) == "" {
		verr.Add(field, fmt.Sprintf("The %s field is required.", field))
		return "", false
	}
	return value, true
}

// requireStringList accepts []string or a JSON-decoded []any of strings with
// at least one non-blank element.
func requireStringList(data map[string]any, field string, verr *ValidationError) ([]string, bool) {
	raw, ok := data[field]
	if !ok || raw == nil {
		verr.Add(field, fmt.Sprintf("The %s field is required.", field))
		return nil, false
	}
	var list []string
	switch v := raw.(type) {
	case []string:
		list = v
	case []any:
		list = make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				verr.Add(field, "A trigger must be a string.")
				return nil, false
			}
			list = append(list, s)
		}
	default:
		verr.Add(field, fmt.Sprintf("The %s must be a list of strings.", field))
		return nil, false
	}
	hasToken := false
	for _, item := range list {
		if strings.TrimSpace(item) != "" {
			hasToken = true
			break
		}
	}
	if !hasToken {
		verr.Add(field, fmt.Sprintf("The %s field is required.", field))
		return nil, false
	}
	return list, true
}
