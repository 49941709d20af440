package bots

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/threadline/internal/threads"
)

// fakeActionSource serves a fixed listing and records trigger touches.
type fakeActionSource struct {
	mu         sync.Mutex
	items      []ThreadAction
	listErr    error
	touched    []string
	botTouched []string
}

func (f *fakeActionSource) ListEnabledForThread(ctx context.Context, threadID string) ([]ThreadAction, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.items, nil
}

func (f *fakeActionSource) TouchLastTriggered(ctx context.Context, actionID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, actionID)
	return nil
}

func (f *fakeActionSource) TouchBotLastTriggered(ctx context.Context, botID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.botTouched = append(f.botTouched, botID)
	return nil
}

type fakeAdminChecker struct {
	admins map[string]bool
}

func (f *fakeAdminChecker) IsAdmin(ctx context.Context, threadID, ownerID string) (bool, error) {
	return f.admins[ownerID], nil
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []threads.StoreMessageInput
}

func (f *fakeWriter) StoreMessage(ctx context.Context, input threads.StoreMessageInput) (threads.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, input)
	return threads.Message{
		ID:       "reply-1",
		ThreadID: input.ThreadID,
		SenderID: input.SenderID,
		Type:     input.Type,
		Body:     input.Body,
		FromBot:  input.FromBot,
	}, nil
}

// recordingHandler replies with a fixed body so executions are observable.
type recordingHandler struct {
	BaseHandler
	body string
	fail error
	boom bool
}

// recordingHandlerB and recordingHandlerC give fixtures that register several
// aliases distinct concrete types, since the registry rejects a second
// definition whose constructor returns an already-registered handler type.
type recordingHandlerB struct{ recordingHandler }

type recordingHandlerC struct{ recordingHandler }

func (h *recordingHandler) Handle(ctx context.Context, env Envelope) error {
	if h.boom {
		panic("handler exploded")
	}
	if h.fail != nil {
		return h.fail
	}
	_, err := env.Responder.Reply(ctx, h.body)
	return err
}

type executorFixture struct {
	executor *Executor
	source   *fakeActionSource
	writer   *fakeWriter
	registry *Registry
}

func newExecutorFixture(t *testing.T, admins map[string]bool, defs ...Definition) *executorFixture {
	t.Helper()
	registry := NewRegistry()
	for _, def := range defs {
		registry.MustRegister(def)
	}
	source := &fakeActionSource{}
	writer := &fakeWriter{}
	executor := NewExecutor(nil, registry, source, &fakeAdminChecker{admins: admins}, writer)
	return &executorFixture{executor: executor, source: source, writer: writer, registry: registry}
}

func handlerDef(alias string, unique bool, h Handler) Definition {
	return Definition{
		Alias:  alias,
		Name:   alias,
		Unique: unique,
		New:    func() Handler { return h },
	}
}

func threadAction(registry *Registry, alias, actionID string, mutate func(*ThreadAction)) ThreadAction {
	def, err := registry.Resolve(alias)
	if err != nil {
		panic(err)
	}
	item := ThreadAction{
		Bot: Bot{ID: "bot-" + alias, ThreadID: "t1", Enabled: true},
		Action: Action{
			ID:       actionID,
			BotID:    "bot-" + alias,
			Handler:  def.ID,
			Match:    MatchContains,
			Triggers: "hello",
			Enabled:  true,
		},
	}
	if mutate != nil {
		mutate(&item)
	}
	return item
}

func textMessage(body string) threads.Message {
	return threads.Message{ID: "m1", ThreadID: "t1", SenderID: "sender-1", Type: threads.MessageTypeText, Body: body}
}

func groupThread() threads.Thread {
	return threads.Thread{ID: "t1", Group: true, ChatBots: true}
}

func TestExecuteRunsMatchingActions(t *testing.T) {
	fx := newExecutorFixture(t, nil,
		handlerDef("first", false, &recordingHandler{body: "one"}),
		handlerDef("second", false, &recordingHandlerB{recordingHandler{body: "two"}}),
	)
	fx.source.items = []ThreadAction{
		threadAction(fx.registry, "first", "a1", nil),
		threadAction(fx.registry, "second", "a2", nil),
	}

	require.NoError(t, fx.executor.Execute(context.Background(), groupThread(), textMessage("hello there")))

	require.Len(t, fx.writer.messages, 2)
	assert.Equal(t, "one", fx.writer.messages[0].Body)
	assert.Equal(t, "two", fx.writer.messages[1].Body)
	assert.Equal(t, []string{"a1", "a2"}, fx.source.touched)

	// Bot replies carry the bot identity and the bot flag.
	assert.True(t, fx.writer.messages[0].FromBot)
	assert.Equal(t, "bot-first", fx.writer.messages[0].SenderID)
}

func TestExecuteSkipsNonMatching(t *testing.T) {
	fx := newExecutorFixture(t, nil, handlerDef("first", false, &recordingHandler{body: "one"}))
	fx.source.items = []ThreadAction{threadAction(fx.registry, "first", "a1", nil)}

	require.NoError(t, fx.executor.Execute(context.Background(), groupThread(), textMessage("goodbye")))
	assert.Empty(t, fx.writer.messages)
	assert.Empty(t, fx.source.touched)
}

func TestExecuteSkipsDisabled(t *testing.T) {
	fx := newExecutorFixture(t, nil,
		handlerDef("first", false, &recordingHandler{body: "one"}),
		handlerDef("second", false, &recordingHandlerB{recordingHandler{body: "two"}}),
	)
	fx.source.items = []ThreadAction{
		threadAction(fx.registry, "first", "a1", func(item *ThreadAction) { item.Action.Enabled = false }),
		threadAction(fx.registry, "second", "a2", func(item *ThreadAction) { item.Bot.Enabled = false }),
	}

	require.NoError(t, fx.executor.Execute(context.Background(), groupThread(), textMessage("hello")))
	assert.Empty(t, fx.writer.messages)
}

func TestExecuteAdminGate(t *testing.T) {
	fx := newExecutorFixture(t, map[string]bool{"admin-1": true},
		handlerDef("first", false, &recordingHandler{body: "one"}),
	)
	fx.source.items = []ThreadAction{
		threadAction(fx.registry, "first", "a1", func(item *ThreadAction) { item.Action.AdminOnly = true }),
	}

	// Non-admin sender is skipped.
	require.NoError(t, fx.executor.Execute(context.Background(), groupThread(), textMessage("hello")))
	assert.Empty(t, fx.writer.messages)

	// Admin sender fires.
	message := textMessage("hello")
	message.SenderID = "admin-1"
	require.NoError(t, fx.executor.Execute(context.Background(), groupThread(), message))
	assert.Len(t, fx.writer.messages, 1)
}

func TestExecuteCooldown(t *testing.T) {
	fx := newExecutorFixture(t, nil, handlerDef("first", false, &recordingHandler{body: "one"}))

	recent := time.Now().UTC().Add(-5 * time.Second)
	fx.source.items = []ThreadAction{
		threadAction(fx.registry, "first", "a1", func(item *ThreadAction) {
			item.Action.Cooldown = 60
			item.Action.LastTriggeredAt = &recent
		}),
	}

	require.NoError(t, fx.executor.Execute(context.Background(), groupThread(), textMessage("hello")))
	assert.Empty(t, fx.writer.messages)
	assert.Empty(t, fx.source.touched, "cooldown skip must not touch the trigger timestamp")

	// Past the window the action fires again.
	expired := time.Now().UTC().Add(-120 * time.Second)
	fx.source.items[0].Action.LastTriggeredAt = &expired
	require.NoError(t, fx.executor.Execute(context.Background(), groupThread(), textMessage("hello")))
	assert.Len(t, fx.writer.messages, 1)
}

func TestExecuteSkipsBotOnCooldown(t *testing.T) {
	fx := newExecutorFixture(t, nil, handlerDef("first", false, &recordingHandler{body: "one"}))

	recent := time.Now().UTC().Add(-5 * time.Second)
	fx.source.items = []ThreadAction{
		threadAction(fx.registry, "first", "a1", func(item *ThreadAction) {
			item.Bot.Cooldown = 60
			item.Bot.LastTriggeredAt = &recent
		}),
	}

	require.NoError(t, fx.executor.Execute(context.Background(), groupThread(), textMessage("hello")))
	assert.Empty(t, fx.writer.messages)
	assert.Empty(t, fx.source.touched)
	assert.Empty(t, fx.source.botTouched)

	// Past the window the bot's actions fire again.
	expired := time.Now().UTC().Add(-120 * time.Second)
	fx.source.items[0].Bot.LastTriggeredAt = &expired
	require.NoError(t, fx.executor.Execute(context.Background(), groupThread(), textMessage("hello")))
	assert.Len(t, fx.writer.messages, 1)
	assert.Equal(t, []string{"bot-first"}, fx.source.botTouched)
}

func TestExecuteBotCooldownLimitsOneFirePerPass(t *testing.T) {
	fx := newExecutorFixture(t, nil,
		handlerDef("first", false, &recordingHandler{body: "one"}),
		handlerDef("second", false, &recordingHandlerB{recordingHandler{body: "two"}}),
	)
	sharedBot := Bot{ID: "bot-shared", ThreadID: "t1", Enabled: true, Cooldown: 60}
	fx.source.items = []ThreadAction{
		threadAction(fx.registry, "first", "a1", func(item *ThreadAction) { item.Bot = sharedBot }),
		threadAction(fx.registry, "second", "a2", func(item *ThreadAction) { item.Bot = sharedBot }),
	}

	require.NoError(t, fx.executor.Execute(context.Background(), groupThread(), textMessage("hello")))

	require.Len(t, fx.writer.messages, 1)
	assert.Equal(t, "one", fx.writer.messages[0].Body)
	assert.Equal(t, []string{"a1"}, fx.source.touched)
	assert.Equal(t, []string{"bot-shared"}, fx.source.botTouched)
}

func TestExecuteZeroBotCooldownNeverStamped(t *testing.T) {
	fx := newExecutorFixture(t, nil, handlerDef("first", false, &recordingHandler{body: "one"}))
	fx.source.items = []ThreadAction{threadAction(fx.registry, "first", "a1", nil)}

	require.NoError(t, fx.executor.Execute(context.Background(), groupThread(), textMessage("hello")))
	assert.Len(t, fx.writer.messages, 1)
	assert.Empty(t, fx.source.botTouched)
}

func TestExecuteFirstUniqueWins(t *testing.T) {
	fx := newExecutorFixture(t, nil,
		handlerDef("unique-a", true, &recordingHandler{body: "a"}),
		handlerDef("unique-b", true, &recordingHandlerB{recordingHandler{body: "b"}}),
		handlerDef("plain", false, &recordingHandlerC{recordingHandler{body: "c"}}),
	)
	fx.source.items = []ThreadAction{
		threadAction(fx.registry, "unique-a", "a1", nil),
		threadAction(fx.registry, "unique-b", "a2", nil),
		threadAction(fx.registry, "plain", "a3", nil),
	}

	require.NoError(t, fx.executor.Execute(context.Background(), groupThread(), textMessage("hello")))

	require.Len(t, fx.writer.messages, 2)
	assert.Equal(t, "a", fx.writer.messages[0].Body)
	assert.Equal(t, "c", fx.writer.messages[1].Body)
}

func TestExecuteUniqueSlotConsumedEvenOnFailure(t *testing.T) {
	fx := newExecutorFixture(t, nil,
		handlerDef("unique-a", true, &recordingHandler{fail: errors.New("nope")}),
		handlerDef("unique-b", true, &recordingHandlerB{recordingHandler{body: "b"}}),
	)
	fx.source.items = []ThreadAction{
		threadAction(fx.registry, "unique-a", "a1", nil),
		threadAction(fx.registry, "unique-b", "a2", nil),
	}

	require.NoError(t, fx.executor.Execute(context.Background(), groupThread(), textMessage("hello")))
	assert.Empty(t, fx.writer.messages)
	assert.Empty(t, fx.source.touched)
}

func TestExecuteIsolatesFailures(t *testing.T) {
	fx := newExecutorFixture(t, nil,
		handlerDef("broken", false, &recordingHandler{fail: errors.New("boom")}),
		handlerDef("panicky", false, &recordingHandlerB{recordingHandler{boom: true}}),
		handlerDef("fine", false, &recordingHandlerC{recordingHandler{body: "ok"}}),
	)
	fx.source.items = []ThreadAction{
		threadAction(fx.registry, "broken", "a1", nil),
		threadAction(fx.registry, "panicky", "a2", nil),
		threadAction(fx.registry, "fine", "a3", nil),
	}

	require.NoError(t, fx.executor.Execute(context.Background(), groupThread(), textMessage("hello")))

	require.Len(t, fx.writer.messages, 1)
	assert.Equal(t, "ok", fx.writer.messages[0].Body)
	// Failed handlers never stamp the cooldown.
	assert.Equal(t, []string{"a3"}, fx.source.touched)
}

func TestExecuteUnknownStoredHandler(t *testing.T) {
	fx := newExecutorFixture(t, nil, handlerDef("fine", false, &recordingHandler{body: "ok"}))
	orphan := threadAction(fx.registry, "fine", "a1", func(item *ThreadAction) {
		item.Action.Handler = "gone.Handler"
	})
	fx.source.items = []ThreadAction{orphan, threadAction(fx.registry, "fine", "a2", nil)}

	require.NoError(t, fx.executor.Execute(context.Background(), groupThread(), textMessage("hello")))
	require.Len(t, fx.writer.messages, 1)
	assert.Equal(t, []string{"a2"}, fx.source.touched)
}

func TestExecuteListFailure(t *testing.T) {
	fx := newExecutorFixture(t, nil)
	fx.source.listErr = errors.New("db down")
	assert.Error(t, fx.executor.Execute(context.Background(), groupThread(), textMessage("hello")))
}
