package driver_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csml-run/csml-engine/pkg/ast"
	"github.com/csml-run/csml-engine/pkg/driver"
	"github.com/csml-run/csml-engine/pkg/parser"
	"github.com/csml-run/csml-engine/pkg/store"
	"github.com/csml-run/csml-engine/pkg/store/memstore"
)

// newBot parses each flowSrc under its own name and assembles them into a
// *ast.Bot ready for driver.Run, mirroring what pkg/bot.Build produces from
// a manifest without needing a full manifest round-trip in these tests.
func newBot(t *testing.T, defaultFlow string, flows map[string][]string) *ast.Bot {
	t.Helper()
	bot := &ast.Bot{
		Name:        "test-bot",
		DefaultFlow: defaultFlow,
		Flows:       map[string]*ast.Flow{},
	}
	for name, spec := range flows {
		src, commands := spec[0], spec[1:]
		flow, errs := parser.ParseFlow(name, src)
		require.Empty(t, errs, "parsing flow %q", name)
		flow.Commands = commands
		bot.Flows[name] = flow
		bot.FlowOrder = append(bot.FlowOrder, name)
	}
	return bot
}

func newDriver(s *memstore.Store) *driver.Driver {
	return driver.New(s.Facade(), nil, nil, slog.Default(), false)
}

func testClient() driver.Client {
	return driver.Client{BotID: "bot1", ChannelID: "web", UserID: "user1"}
}

func textRequest(text string) driver.Request {
	return driver.Request{
		RequestID: "req-1",
		Client:    testClient(),
		Payload:   driver.Payload{ContentType: "text", Content: map[string]any{"text": text}},
	}
}

func TestRunBrandNewClientFallsBackToDefaultFlow(t *testing.T) {
	bot := newBot(t, "main", map[string][]string{
		"main": {`start: { say "welcome" }`},
	})
	s := memstore.New()
	d := newDriver(s)

	resp, switchBot, err := d.Run(context.Background(), bot, textRequest("anything not declared"))
	require.NoError(t, err)
	require.Nil(t, switchBot)
	require.Len(t, resp.Messages, 1)
	assert.Contains(t, resp.Messages[0].Payload, "welcome")
}

func TestRunExistingOpenConversationWithNoMatchErrors(t *testing.T) {
	bot := newBot(t, "main", map[string][]string{
		"main": {`start: { hold }`, "hello"},
	})
	s := memstore.New()
	client := store.Client{BotID: "bot1", ChannelID: "web", UserID: "user1"}

	_, err := s.Conversations.Create(context.Background(), client, "main", "start", nil)
	require.NoError(t, err)

	d := newDriver(s)
	_, _, err = d.Run(context.Background(), bot, textRequest("totally unrecognized"))
	require.Error(t, err)
}

func TestRunExactCommandMatchStartsDeclaredFlow(t *testing.T) {
	bot := newBot(t, "main", map[string][]string{
		"main":    {`start: { say "main menu" }`},
		"support": {`start: { say "support menu" }`, "help"},
	})
	s := memstore.New()
	d := newDriver(s)

	resp, _, err := d.Run(context.Background(), bot, textRequest("Help"))
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Contains(t, resp.Messages[0].Payload, "support menu")
}

func TestRunHoldAndResume(t *testing.T) {
	// The evaluator re-enters a held step from its top rather than
	// mid-statement (pkg/driver/hold.go), so the step's own statements must
	// be safe to replay; here it echoes whatever the triggering event said,
	// which differs between the initial request and the resuming one.
	bot := newBot(t, "main", map[string][]string{
		"main": {`start: {
			say "echo: " + _event.get("content").get("text")
			hold
		}`},
	})
	s := memstore.New()
	d := newDriver(s)

	resp1, _, err := d.Run(context.Background(), bot, textRequest("go"))
	require.NoError(t, err)
	require.False(t, resp1.ConversationEnd)
	require.Len(t, resp1.Messages, 1)
	assert.Contains(t, resp1.Messages[0].Payload, "echo: go")

	// Second request: nothing matches any command, but a hold is pending so
	// the driver must resume it rather than erroring or picking a default.
	resp2, _, err := d.Run(context.Background(), bot, textRequest("again"))
	require.NoError(t, err)
	require.Len(t, resp2.Messages, 1)
	assert.Contains(t, resp2.Messages[0].Payload, "echo: again")
}

func TestRunBotSwitchAllowed(t *testing.T) {
	bot := newBot(t, "main", map[string][]string{
		"main": {`start: { goto bot other_bot }`},
	})
	bot.Multibot = []ast.MultibotEntry{{ID: "other_bot", Name: "Other Bot"}}
	s := memstore.New()
	d := newDriver(s)

	resp, switchBot, err := d.Run(context.Background(), bot, textRequest("go"))
	require.NoError(t, err)
	require.NotNil(t, switchBot)
	assert.Equal(t, "other_bot", switchBot.BotID)
	assert.True(t, resp.ConversationEnd)
	require.Len(t, resp.Messages, 1)
	assert.Contains(t, resp.Messages[0].Payload, "switch_bot")
}

func TestRunBotSwitchDisallowedStaysOnCurrentBot(t *testing.T) {
	bot := newBot(t, "main", map[string][]string{
		"main": {`start: { goto bot unknown_bot }`},
	})
	s := memstore.New()
	d := newDriver(s)

	resp, switchBot, err := d.Run(context.Background(), bot, textRequest("go"))
	require.NoError(t, err)
	require.Nil(t, switchBot)
	require.Len(t, resp.Messages, 1)
	assert.Contains(t, resp.Messages[0].Payload, "Switching to Bot: (unknown_bot) is not allowed")
}

func TestRunStepLimitTerminatesLoopingGoto(t *testing.T) {
	bot := newBot(t, "main", map[string][]string{
		"main": {`start: { goto step start }`},
	})
	s := memstore.New()
	d := newDriver(s)

	limit := 3
	req := textRequest("go")
	req.StepLimit = &limit

	resp, _, err := d.Run(context.Background(), bot, req)
	require.NoError(t, err)
	assert.True(t, resp.ConversationEnd)
	require.NotEmpty(t, resp.Messages)
	assert.Contains(t, resp.Messages[len(resp.Messages)-1].Payload, "step limit exceeded")
}

func TestRunNoInterruptionDelayDropsRepeatRequest(t *testing.T) {
	days := 1
	bot := newBot(t, "main", map[string][]string{
		"main": {`start: { say "hi" }`},
	})
	bot.NoInterruptionDelay = &days
	s := memstore.New()
	d := newDriver(s)

	resp1, _, err := d.Run(context.Background(), bot, textRequest("go"))
	require.NoError(t, err)
	require.Len(t, resp1.Messages, 1)

	resp2, _, err := d.Run(context.Background(), bot, textRequest("go again"))
	require.NoError(t, err)
	assert.Empty(t, resp2.Messages)
}
