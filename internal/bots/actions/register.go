package actions

import "github.com/threadline/threadline/internal/bots"

// Deps carries the collaborators the packaged handlers need.
type Deps struct {
	Registry *bots.Registry
	Lister   ActionLister
}

// RegisterAll installs the packaged handlers into the registry. Called once
// at bootstrap; duplicate registration panics via MustRegister.
func RegisterAll(registry *bots.Registry, deps Deps) {
	registry.MustRegister(bots.Definition{
		Alias:       "reply",
		Name:        "Reply",
		Description: "Sends configured replies when triggered.",
		New:         func() bots.Handler { return &ReplyHandler{} },
	})
	registry.MustRegister(bots.Definition{
		Alias:       "roll",
		Name:        "Dice Roll",
		Description: "Rolls a die and posts the result.",
		New:         func() bots.Handler { return &RollHandler{} },
	})
	registry.MustRegister(bots.Definition{
		Alias:       "commands",
		Name:        "Commands",
		Description: "Lists the bot commands installed on the thread.",
		Unique:      true,
		Authorize:   true,
		Match:       bots.MatchExactCaseless,
		Triggers:    []string{"!commands", "!c"},
		New: func() bots.Handler {
			return &CommandsHandler{registry: deps.Registry, lister: deps.Lister}
		},
	})
	registry.MustRegister(bots.Definition{
		Alias:       "nudge",
		Name:        "Nudge",
		Description: "Acknowledges every message, rate limited by cooldown.",
		Match:       bots.MatchAny,
		New:         func() bots.Handler { return &NudgeHandler{} },
	})
}
