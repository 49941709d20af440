package actions

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/threadline/internal/bots"
	"github.com/threadline/threadline/internal/threads"
)

type fakeResponder struct {
	replies []string
}

func (r *fakeResponder) Reply(ctx context.Context, body string) (threads.Message, error) {
	r.replies = append(r.replies, body)
	return threads.Message{Body: body, FromBot: true}, nil
}

type fakeLister struct {
	bots    []bots.Bot
	actions map[string][]bots.Action
}

func (f *fakeLister) ListBots(ctx context.Context, threadID string) ([]bots.Bot, error) {
	return f.bots, nil
}

func (f *fakeLister) ListActions(ctx context.Context, botID string) ([]bots.Action, error) {
	return f.actions[botID], nil
}

func envelope(payload string) (bots.Envelope, *fakeResponder) {
	responder := &fakeResponder{}
	env := bots.Envelope{
		Thread:    threads.Thread{ID: "t1", Group: true, ChatBots: true},
		Message:   threads.Message{ID: "m1", Body: "hello", Type: threads.MessageTypeText},
		Bot:       bots.Bot{ID: "b1", Name: "Helper"},
		Responder: responder,
	}
	if payload != "" {
		env.Action.Payload = &payload
	}
	return env, responder
}

func TestRegisterAllInstallsHandlers(t *testing.T) {
	registry := bots.NewRegistry()
	RegisterAll(registry, Deps{Registry: registry, Lister: &fakeLister{}})

	assert.Equal(t, []string{"reply", "roll", "commands", "nudge"}, registry.Aliases())

	commands, err := registry.Resolve("commands")
	require.NoError(t, err)
	assert.True(t, commands.Unique)
	assert.True(t, commands.Authorize)
	assert.Equal(t, bots.MatchExactCaseless, commands.Match)
	assert.Equal(t, []string{"!commands", "!c"}, commands.Triggers)

	nudge, err := registry.Resolve("nudge")
	require.NoError(t, err)
	assert.Equal(t, bots.MatchAny, nudge.Match)
}

func TestReplyHandlerSendsAllReplies(t *testing.T) {
	env, responder := envelope(`{"replies":["one","two"]}`)

	require.NoError(t, (&ReplyHandler{}).Handle(context.Background(), env))
	assert.Equal(t, []string{"one", "two"}, responder.replies)
}

func TestReplyHandlerQuotesOriginal(t *testing.T) {
	env, responder := envelope(`{"replies":["one","two"],"quote_original":true}`)

	require.NoError(t, (&ReplyHandler{}).Handle(context.Background(), env))
	assert.Equal(t, []string{"> hello\none", "two"}, responder.replies)
}

func TestReplyHandlerNoPayload(t *testing.T) {
	env, responder := envelope("")

	require.NoError(t, (&ReplyHandler{}).Handle(context.Background(), env))
	assert.Empty(t, responder.replies)
}

func TestRollHandlerStaysInRange(t *testing.T) {
	env, responder := envelope(`{"sides":4}`)

	require.NoError(t, (&RollHandler{}).Handle(context.Background(), env))
	require.Len(t, responder.replies, 1)
	assert.Contains(t, responder.replies[0], "(d4)")

	fields := strings.Fields(responder.replies[0])
	// "<name> rolled a <n> (d4)"
	value, err := strconv.Atoi(fields[3])
	require.NoError(t, err)
	assert.GreaterOrEqual(t, value, 1)
	assert.LessOrEqual(t, value, 4)
}

func TestRollHandlerDefaultsToSixSides(t *testing.T) {
	env, responder := envelope("")

	require.NoError(t, (&RollHandler{}).Handle(context.Background(), env))
	require.Len(t, responder.replies, 1)
	assert.Contains(t, responder.replies[0], "(d6)")
}

func TestCommandsHandlerListsInstalledActions(t *testing.T) {
	registry := bots.NewRegistry()
	lister := &fakeLister{}
	RegisterAll(registry, Deps{Registry: registry, Lister: lister})

	replyDef, err := registry.Resolve("reply")
	require.NoError(t, err)

	lister.bots = []bots.Bot{{ID: "b1", Name: "Helper"}}
	lister.actions = map[string][]bots.Action{
		"b1": {
			{ID: "a1", Handler: replyDef.ID, Match: bots.MatchContains, Triggers: "hello|hi", Enabled: true},
			{ID: "a2", Handler: replyDef.ID, Match: bots.MatchContains, Triggers: "bye", Enabled: false},
		},
	}

	commandsDef, err := registry.Resolve("commands")
	require.NoError(t, err)
	env, responder := envelope("")
	require.NoError(t, commandsDef.New().Handle(context.Background(), env))

	require.Len(t, responder.replies, 1)
	assert.Contains(t, responder.replies[0], "Reply")
	assert.Contains(t, responder.replies[0], "hello, hi")
	assert.NotContains(t, responder.replies[0], "bye")
}

func TestCommandsHandlerEmptyThread(t *testing.T) {
	registry := bots.NewRegistry()
	RegisterAll(registry, Deps{Registry: registry, Lister: &fakeLister{}})

	commandsDef, err := registry.Resolve("commands")
	require.NoError(t, err)
	env, responder := envelope("")
	require.NoError(t, commandsDef.New().Handle(context.Background(), env))

	require.Len(t, responder.replies, 1)
	assert.Contains(t, responder.replies[0], "No bot commands")
}

func TestCommandsHandlerAuthorize(t *testing.T) {
	h := &CommandsHandler{}
	assert.True(t, h.Authorize(context.Background(), threads.Thread{Group: true, ChatBots: true}, "o1"))
	assert.False(t, h.Authorize(context.Background(), threads.Thread{Group: true}, "o1"))
	assert.False(t, h.Authorize(context.Background(), threads.Thread{ChatBots: true}, "o1"))
}
