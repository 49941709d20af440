package bots

import (
	"time"
)

// Bot is attached to one thread and owns an ordered collection of actions.
// A non-zero Cooldown rate limits the bot as a whole: while it is cooling
// down none of its actions fire, on top of each action's own cooldown.
type Bot struct {
	ID              string     `json:"id"`
	ThreadID        string     `json:"thread_id"`
	OwnerID         string     `json:"owner_id"`
	Name            string     `json:"name"`
	Enabled         bool       `json:"enabled"`
	Cooldown        int        `json:"cooldown"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// OnCooldown reports whether the bot may not fire yet at now.
func (b Bot) OnCooldown(now time.Time) bool {
	if b.Cooldown <= 0 || b.LastTriggeredAt == nil {
		return false
	}
	return now.Before(b.LastTriggeredAt.Add(time.Duration(b.Cooldown) * time.Second))
}

// Action is a persisted rule binding a trigger-match configuration to a
// registered handler. Triggers holds the canonical pipe-joined form and is
// empty exactly when Match is MatchAny.
type Action struct {
	ID              string      `json:"id"`
	BotID           string      `json:"bot_id"`
	Handler         string      `json:"handler"`
	Match           MatchMethod `json:"match"`
	Triggers        string      `json:"triggers,omitempty"`
	AdminOnly       bool        `json:"admin_only"`
	Cooldown        int         `json:"cooldown"`
	Enabled         bool        `json:"enabled"`
	Payload         *string     `json:"payload,omitempty"`
	LastTriggeredAt *time.Time  `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// OnCooldown reports whether the action may not fire yet at now.
func (a Action) OnCooldown(now time.Time) bool {
	if a.Cooldown <= 0 || a.LastTriggeredAt == nil {
		return false
	}
	return now.Before(a.LastTriggeredAt.Add(time.Duration(a.Cooldown) * time.Second))
}

// ResolvedAction is the canonical output of Resolver.Resolve, ready to be
// persisted as an Action. Name, Unique and Authorize come from the handler
// definition and are never user controlled.
type ResolvedAction struct {
	Handler   string      `json:"handler"`
	Name      string      `json:"name"`
	Unique    bool        `json:"unique"`
	Authorize bool        `json:"authorize"`
	Match     MatchMethod `json:"match"`
	Triggers  string      `json:"triggers,omitempty"`
	AdminOnly bool        `json:"admin_only"`
	Cooldown  int         `json:"cooldown"`
	Enabled   bool        `json:"enabled"`
	Payload   *string     `json:"payload,omitempty"`
}

// CooldownLimit is the maximum cooldown in seconds an action may carry.
const CooldownLimit = 900
