package bots

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/threadline/threadline/internal/threads"
)

type stubHandler struct {
	BaseHandler
}

func (h *stubHandler) Handle(ctx context.Context, env Envelope) error { return nil }

type gatedHandler struct {
	BaseHandler
	allow bool
}

func (h *gatedHandler) Handle(ctx context.Context, env Envelope) error { return nil }

func (h *gatedHandler) Authorize(ctx context.Context, thread threads.Thread, ownerID string) bool {
	return h.allow && thread.HasBotsFeature()
}

func stubDefinition(alias string) Definition {
	return Definition{
		Alias: alias,
		Name:  "Stub",
		New:   func() Handler { return &stubHandler{} },
	}
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, r.Register(stubDefinition("stub")))

	byAlias, err := r.Resolve("stub")
	assert.NoError(t, err)
	assert.Equal(t, "stub", byAlias.Alias)
	assert.NotEmpty(t, byAlias.ID)

	// Alias lookup is case insensitive.
	_, err = r.Resolve("STUB")
	assert.NoError(t, err)

	byID, err := r.Resolve(byAlias.ID)
	assert.NoError(t, err)
	assert.Equal(t, byAlias.Alias, byID.Alias)
}

func TestRegistryResolveUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("missing")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidHandler))
}

func TestRegistryRejectsInvalidDefinitions(t *testing.T) {
	r := NewRegistry()

	def := stubDefinition("")
	assert.Error(t, r.Register(def))

	def = stubDefinition("stub")
	def.Name = ""
	assert.Error(t, r.Register(def))

	def = stubDefinition("stub")
	def.New = nil
	assert.Error(t, r.Register(def))

	def = stubDefinition("stub")
	def.Match = "fuzzy"
	assert.Error(t, r.Register(def))

	// Authorize flag without an Authorizer implementation.
	def = stubDefinition("stub")
	def.Authorize = true
	var cerr *ConfigurationError
	err := r.Register(def)
	assert.Error(t, err)
	assert.True(t, errors.As(err, &cerr))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, r.Register(stubDefinition("stub")))
	assert.Error(t, r.Register(stubDefinition("stub")))

	// Same handler type under a second alias is also rejected.
	assert.Error(t, r.Register(stubDefinition("other")))
}

func TestRegistryOrder(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Definition{Alias: "b", Name: "B", New: func() Handler { return &stubHandler{} }})
	r.MustRegister(Definition{Alias: "a", Name: "A", New: func() Handler { return &gatedHandler{} }})

	assert.Equal(t, []string{"b", "a"}, r.Aliases())
	defs := r.Definitions()
	assert.Len(t, defs, 2)
	assert.Equal(t, "b", defs[0].Alias)
}

func TestRegistryAuthorized(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Definition{Alias: "open", Name: "Open", New: func() Handler { return &stubHandler{} }})
	r.MustRegister(Definition{
		Alias:     "gated",
		Name:      "Gated",
		Authorize: true,
		New:       func() Handler { return &gatedHandler{allow: true} },
	})

	groupThread := threads.Thread{ID: "t1", Group: true, ChatBots: true}
	private := threads.Thread{ID: "t2"}

	defs := r.Authorized(context.Background(), groupThread, "owner")
	assert.Len(t, defs, 2)

	defs = r.Authorized(context.Background(), private, "owner")
	assert.Len(t, defs, 1)
	assert.Equal(t, "open", defs[0].Alias)
}
