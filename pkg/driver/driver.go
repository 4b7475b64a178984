package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/csml-run/csml-engine/pkg/ast"
	"github.com/csml-run/csml-engine/pkg/callback"
	"github.com/csml-run/csml-engine/pkg/cerr"
	"github.com/csml-run/csml-engine/pkg/crypto"
	"github.com/csml-run/csml-engine/pkg/eval"
	"github.com/csml-run/csml-engine/pkg/store"
	"github.com/csml-run/csml-engine/pkg/value"
)

// Driver runs one CsmlRequest against a loaded bot to completion or
// suspension, applying the evaluator's events against the persistence
// façade (spec.md §4.4). One Driver is shared across requests; it carries
// no per-request mutable state of its own.
type Driver struct {
	Store          store.Store
	Callback       *callback.Poster
	Cipher         *crypto.Cipher
	Logger         *slog.Logger
	Debug          bool
	DefaultTTLDays *int
}

// New wires a Driver. cipher may be nil (no ENCRYPTION_SECRET configured).
func New(s store.Store, cb *callback.Poster, cipher *crypto.Cipher, logger *slog.Logger, debug bool) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{Store: s, Callback: cb, Cipher: cipher, Logger: logger, Debug: debug}
}

// sent is one buffered outbound message, tagged with the (flow, step) that
// produced it so it can be persisted with the right flow_id/step_id even
// though later messages in the same request may come from a different step.
type sent struct {
	flow, step string
	wire       wireMessage
	value      value.Value
}

// Run executes one request against bot. A non-nil *SwitchBot means the
// interaction ended in an allowed `goto bot`: the caller must load the
// target bot and re-enter Run with a synthesized flow_trigger event at the
// returned (Flow, Step) — empty Step means "the target bot's own start".
func (d *Driver) Run(ctx context.Context, bot *ast.Bot, req Request) (resp Response, switchBot *SwitchBot, err error) {
	now := time.Now().UTC()
	client := store.Client{BotID: req.Client.BotID, ChannelID: req.Client.ChannelID, UserID: req.Client.UserID}

	drop, clearDelay, err := checkNoInterruptionDelay(ctx, d.Store.States, client, bot.NoInterruptionDelay, now)
	if err != nil {
		return Response{}, nil, err
	}
	if drop {
		return emptyResponse(req, rfc3339ms(now)), nil, nil
	}
	// Only undo the cooldown marker if this request failed outright: a
	// successful run must keep it in place for the full window, but a
	// failure shouldn't leave the client locked out by a request that never
	// actually went through.
	defer func() {
		if err != nil {
			clearDelay()
		}
	}()

	conv, err := d.Store.Conversations.GetLatestOpen(ctx, client)
	if err != nil {
		return Response{}, nil, cerr.Wrap(cerr.KindStorage, err, "load open conversation")
	}
	hasOpenConversation := conv != nil

	held, err := loadHold(ctx, d.Store.States, client, func(flow, step string) (string, bool) {
		return lookupStepHash(bot, flow, step)
	})
	if err != nil {
		return Response{}, nil, err
	}

	flowName, stepName, shouldClearHold, err := selectStart(bot, req.Payload.ContentType, req.Payload.Content, held != nil, !hasOpenConversation)
	if err != nil {
		return d.respondWithError(ctx, conv, client, req, now, err)
	}

	secure := req.Payload.Secure
	var restoreVars map[string]value.Value
	if flowName == "" {
		// selectStart deferred to the pending hold.
		if held == nil {
			return Response{}, nil, cerr.New(cerr.KindInterpret, "no match found and no hold to resume")
		}
		flowName, stepName = held.Flow, held.Step
		restoreVars = held.Vars
		secure = secure || held.Secure
	}
	if held != nil && (shouldClearHold || restoreVars != nil) {
		// Either an explicit fresh start preempts a stale hold, or the hold
		// itself is being resumed and consumed now (spec.md §3: a hold is
		// read once).
		if err := clearHold(ctx, d.Store.States, client); err != nil {
			return Response{}, nil, err
		}
	}

	ttlDays := req.TTLDuration
	if ttlDays == nil {
		ttlDays = d.DefaultTTLDays
	}
	var expiresAt *time.Time
	if ttlDays != nil {
		t := now.AddDate(0, 0, *ttlDays)
		expiresAt = &t
	}

	if conv == nil {
		id, err := d.Store.Conversations.Create(ctx, client, flowName, stepName, expiresAt)
		if err != nil {
			return Response{}, nil, cerr.Wrap(cerr.KindStorage, err, "create conversation")
		}
		conv = &store.Conversation{ID: id, Client: client, FlowID: flowName, StepID: stepName, Status: store.ConversationOpen}
	} else {
		f, s := flowName, stepName
		if err := d.Store.Conversations.Update(ctx, conv.ID, &f, &s); err != nil {
			return Response{}, nil, cerr.Wrap(cerr.KindStorage, err, "update conversation")
		}
	}

	order, err := d.Store.Messages.NextInteractionOrder(ctx, conv.ID)
	if err != nil {
		return Response{}, nil, cerr.Wrap(cerr.KindStorage, err, "read next interaction_order")
	}

	current, err := d.preloadMemories(ctx, client)
	if err != nil {
		return Response{}, nil, err
	}
	metadata, err := buildMetadata(req, secure)
	if err != nil {
		return Response{}, nil, err
	}
	scope := eval.NewScope(&current, metadata)
	if restoreVars != nil {
		scope.Restore(restoreVars)
	}

	var trace []eval.Log
	stepLimit := req.StepLimit

	sendBuf := make([]sent, 0, 4)
	conversationEnd := false

	currentFlow, currentStep := flowName, stepName
	firstStep := true

stepLoop:
	for {
		flow, ok := bot.FlowByName(currentFlow)
		if !ok {
			sendBuf = append(sendBuf, d.errorEntry(currentFlow, currentStep, fmt.Sprintf("flow %q does not exist", currentFlow)))
			conversationEnd = true
			break
		}
		step, ok := flow.StepByName(currentStep)
		if !ok {
			sendBuf = append(sendBuf, d.errorEntry(currentFlow, currentStep, fmt.Sprintf("step %q does not exist in flow %q", currentStep, currentFlow)))
			conversationEnd = true
			break
		}

		if firstStep {
			firstStep = false
		} else {
			// step_vars are cleared at each step boundary; current/metadata
			// carry forward (spec.md §4.3 "cleared at step boundary").
			scope = scope.Fresh()
		}

		var debugTrace *[]eval.Log
		if d.Debug {
			debugTrace = &trace
		}
		outcome := runStep(bot, flow, stepContextFor(step), scope, debugTrace, func(event eval.Event) {
			if req.CallbackURL == "" {
				return
			}
			if wire, err := renderMessage(event.Message); err == nil {
				d.Callback.Post(ctx, req.CallbackURL, wire)
			}
		})

		for _, event := range outcome.Messages {
			wire, err := renderMessage(event.Message)
			if err != nil {
				return Response{}, nil, cerr.Wrap(cerr.KindSerde, err, "render message")
			}
			sendBuf = append(sendBuf, sent{flow: currentFlow, step: currentStep, wire: wire, value: event.Message})
		}
		for _, event := range outcome.Forgets {
			if err := d.applyForget(ctx, client, event); err != nil {
				return Response{}, nil, err
			}
		}
		for _, l := range outcome.Logs {
			d.Logger.Log(ctx, logLevel(l.Level), l.Message, "flow", l.Flow, "step", l.Step)
		}

		if outcome.HadError {
			conversationEnd = true
			break
		}
		if outcome.Hold != nil {
			previous := ""
			if row, err := d.Store.States.Get(ctx, client, stateTypeBot, stateKeyPrevious); err == nil && row != nil {
				previous = row.Value
			}
			hold := outcome.Hold
			if err := storeHold(ctx, d.Store.States, client, currentFlow, currentStep, hold.HoldHash, previous, secure, hold.HoldStepVars, expiresAt); err != nil {
				return Response{}, nil, err
			}
			break
		}
		if !outcome.HaveNext {
			// Step ran to completion without a terminal statement: stay put,
			// no hold recorded, conversation remains open at this position.
			break
		}
		next := outcome.Next

		if next.HasBot {
			if allowedMultibot(bot, next.Bot) {
				if err := d.Store.States.SetItems(ctx, client, stateTypeBot, map[string]string{stateKeyPrevious: bot.Name}, expiresAt); err != nil {
					return Response{}, nil, cerr.Wrap(cerr.KindStorage, err, "persist bot.previous")
				}
				sendBuf = append(sendBuf, d.switchEntry(currentFlow, currentStep, next.Bot))
				conversationEnd = true
				switchBot = &SwitchBot{BotID: next.Bot}
			} else {
				sendBuf = append(sendBuf, d.errorEntry(currentFlow, currentStep, fmt.Sprintf("Switching to Bot: (%s) is not allowed", next.Bot)))
			}
			break
		}

		if stepLimit != nil {
			*stepLimit--
			if *stepLimit <= 0 {
				sendBuf = append(sendBuf, d.errorEntry(currentFlow, currentStep, "step limit exceeded"))
				conversationEnd = true
				break stepLoop
			}
		}

		if next.Flow != "" {
			currentFlow = next.Flow
		}
		if next.Step != "" {
			currentStep = next.Step
		}
		if currentStep == "end" {
			conversationEnd = true
			break
		}
	}

	if conversationEnd {
		if err := d.Store.Conversations.Close(ctx, conv.ID); err != nil {
			return Response{}, nil, cerr.Wrap(cerr.KindStorage, err, "close conversation")
		}
	} else {
		f, s := currentFlow, currentStep
		if err := d.Store.Conversations.Update(ctx, conv.ID, &f, &s); err != nil {
			return Response{}, nil, cerr.Wrap(cerr.KindStorage, err, "update conversation position")
		}
	}

	resp = Response{
		ConversationEnd: conversationEnd,
		RequestID:       req.RequestID,
		ReceivedAt:      rfc3339ms(now),
		Client:          req.Client,
		Messages:        make([]ResponseMessage, 0, len(sendBuf)),
	}
	if d.Debug {
		resp.Trace = trace
	}

	if !req.LowDataMode {
		if err := d.persistReceive(ctx, conv.ID, flowName, stepName, req, secure, order, expiresAt); err != nil {
			return Response{}, nil, err
		}
		if err := d.persistSend(ctx, conv.ID, sendBuf, order, expiresAt); err != nil {
			return Response{}, nil, err
		}
		if err := d.persistMemories(ctx, client, current, expiresAt); err != nil {
			return Response{}, nil, err
		}
	}

	for _, s := range sendBuf {
		resp.Messages = append(resp.Messages, ResponseMessage{
			Payload:          string(mustMarshal(s.wire)),
			InteractionOrder: order,
			ConversationID:   conv.ID,
			Direction:        string(store.DirectionSend),
		})
	}

	return resp, switchBot, nil
}

func (d *Driver) respondWithError(ctx context.Context, conv *store.Conversation, client store.Client, req Request, now time.Time, cause error) (Response, *SwitchBot, error) {
	if conv != nil {
		_ = d.Store.Conversations.Close(ctx, conv.ID)
	}
	entry := d.errorEntry("", "", cause.Error())
	if conv != nil && !req.LowDataMode {
		order, err := d.Store.Messages.NextInteractionOrder(ctx, conv.ID)
		if err == nil {
			_ = d.persistSend(ctx, conv.ID, []sent{entry}, order, nil)
		}
	}
	resp := Response{
		ConversationEnd: true,
		RequestID:       req.RequestID,
		ReceivedAt:      rfc3339ms(now),
		Client:          req.Client,
		Messages: []ResponseMessage{{
			Payload:   string(mustMarshal(entry.wire)),
			Direction: string(store.DirectionSend),
		}},
	}
	return resp, nil, cause
}

func (d *Driver) errorEntry(flow, step, message string) sent {
	v := value.NewString(message)
	v.ContentType = "error"
	wire, _ := renderMessage(v)
	return sent{flow: flow, step: step, wire: wire, value: v}
}

func (d *Driver) switchEntry(flow, step, target string) sent {
	v := value.NewObject(map[string]value.Value{
		"bot": value.NewString(target),
	}, []string{"bot"})
	v.ContentType = "switch_bot"
	wire, _ := renderMessage(v)
	return sent{flow: flow, step: step, wire: wire, value: v}
}

func (d *Driver) applyForget(ctx context.Context, client store.Client, ev eval.Event) error {
	switch ev.ForgetMode {
	case eval.ForgetAll:
		if err := d.Store.Memories.DeleteAll(ctx, client); err != nil {
			return cerr.Wrap(cerr.KindStorage, err, "forget all memories")
		}
		return nil
	default:
		for _, k := range ev.ForgetKeys {
			if err := d.Store.Memories.Delete(ctx, client, k); err != nil {
				return cerr.Wrap(cerr.KindStorage, err, "forget memory %q", k)
			}
		}
		return nil
	}
}

func (d *Driver) preloadMemories(ctx context.Context, client store.Client) (map[string]value.Value, error) {
	rows, err := d.Store.Memories.GetAll(ctx, client)
	if err != nil {
		return nil, cerr.Wrap(cerr.KindStorage, err, "load memories")
	}
	out := make(map[string]value.Value, len(rows))
	for _, m := range rows {
		v, err := value.FromJSON([]byte(m.Value))
		if err != nil {
			return nil, cerr.Wrap(cerr.KindSerde, err, "decode memory %q", m.Key)
		}
		out[m.Key] = v
	}
	return out, nil
}

func (d *Driver) persistMemories(ctx context.Context, client store.Client, current map[string]value.Value, expiresAt *time.Time) error {
	for k, v := range current {
		b, err := v.MarshalJSON()
		if err != nil {
			return cerr.Wrap(cerr.KindSerde, err, "encode memory %q", k)
		}
		if err := d.Store.Memories.Upsert(ctx, client, k, string(b), expiresAt); err != nil {
			return cerr.Wrap(cerr.KindStorage, err, "persist memory %q", k)
		}
	}
	return nil
}

func (d *Driver) persistReceive(ctx context.Context, conversationID, flowID, stepID string, req Request, secure bool, order int, expiresAt *time.Time) error {
	contentBytes := json.RawMessage(`{"secure":true}`)
	if !secure {
		b, err := json.Marshal(req.Payload.Content)
		if err != nil {
			return cerr.Wrap(cerr.KindSerde, err, "encode received content")
		}
		contentBytes = b
	}
	payload, err := json.Marshal(wireMessage{ContentType: req.Payload.ContentType, Content: contentBytes})
	if err != nil {
		return cerr.Wrap(cerr.KindSerde, err, "encode received payload")
	}
	encoded, err := d.encrypt(string(payload))
	if err != nil {
		return err
	}
	msg := store.Message{FlowID: flowID, StepID: stepID, ContentType: req.Payload.ContentType, Payload: encoded}
	if err := d.Store.Messages.AddBulk(ctx, conversationID, []store.Message{msg}, order, store.DirectionReceive, expiresAt); err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "persist received message")
	}
	return nil
}

func (d *Driver) persistSend(ctx context.Context, conversationID string, sendBuf []sent, order int, expiresAt *time.Time) error {
	if len(sendBuf) == 0 {
		return nil
	}
	msgs := make([]store.Message, 0, len(sendBuf))
	for _, s := range sendBuf {
		raw, err := json.Marshal(s.wire)
		if err != nil {
			return cerr.Wrap(cerr.KindSerde, err, "encode send payload")
		}
		encoded, err := d.encrypt(string(raw))
		if err != nil {
			return err
		}
		msgs = append(msgs, store.Message{FlowID: s.flow, StepID: s.step, ContentType: s.wire.ContentType, Payload: encoded})
	}
	if err := d.Store.Messages.AddBulk(ctx, conversationID, msgs, order, store.DirectionSend, expiresAt); err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "persist send messages")
	}
	return nil
}

func (d *Driver) encrypt(plaintext string) (string, error) {
	if d.Cipher == nil {
		return plaintext, nil
	}
	encoded, err := d.Cipher.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	return encoded, nil
}

// allowedMultibot reports whether target (by id or name) is declared in
// bot's multibot list (spec.md §7 "Bot switch authorization").
func allowedMultibot(bot *ast.Bot, target string) bool {
	want := strings.ToLower(target)
	for _, mb := range bot.Multibot {
		if strings.ToLower(mb.ID) == want || strings.ToLower(mb.Name) == want {
			return true
		}
	}
	return false
}

func buildMetadata(req Request, secure bool) (map[string]value.Value, error) {
	contentBytes, err := json.Marshal(req.Payload.Content)
	if err != nil {
		return nil, cerr.Wrap(cerr.KindSerde, err, "encode event content")
	}
	contentValue, err := value.FromJSON(contentBytes)
	if err != nil {
		return nil, cerr.Wrap(cerr.KindSerde, err, "decode event content")
	}
	event := value.NewObject(map[string]value.Value{
		"content_type": value.NewString(req.Payload.ContentType),
		"content":      contentValue,
		"secure":       value.NewBool(secure),
	}, []string{"content_type", "content", "secure"})

	out := map[string]value.Value{"_event": event}

	metaBytes, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, cerr.Wrap(cerr.KindSerde, err, "encode request metadata")
	}
	metaValue, err := value.FromJSON(metaBytes)
	if err != nil {
		return nil, cerr.Wrap(cerr.KindSerde, err, "decode request metadata")
	}
	if metaValue.Kind == value.Object {
		for _, k := range metaValue.ObjectKeys() {
			v, _ := metaValue.ObjectGet(k)
			out[k] = v
		}
	}
	return out, nil
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return b
}

// rfc3339ms renders t as spec.md §6's "RFC3339ms UTC" response timestamp.
func rfc3339ms(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
