package driver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/csml-run/csml-engine/pkg/cerr"
	"github.com/csml-run/csml-engine/pkg/store"
)

// delayWire is the JSON shape stored at state key ("delay","content")
// (spec.md §4.4 "No-interruption delay").
type delayWire struct {
	DelayValue int       `json:"delay_value"`
	Timestamp  time.Time `json:"timestamp"`
}

// checkNoInterruptionDelay implements spec.md §4.4's "No-interruption
// delay": when the bot declares one, a second request from the same client
// arriving before the cooldown elapses is dropped outright. drop=true means
// the caller must return an empty response without touching the evaluator
// at all. When the guard lets the request through, clear reverts the state
// key at the end of processing (an empty func when the bot declares no
// delay, so callers can always `defer clear()` unconditionally).
func checkNoInterruptionDelay(ctx context.Context, states store.States, client store.Client, days *int, now time.Time) (drop bool, clear func(), err error) {
	noop := func() {}
	if days == nil {
		return false, noop, nil
	}

	row, err := states.Get(ctx, client, stateTypeDelay, stateKeyContent)
	if err != nil {
		return false, noop, cerr.Wrap(cerr.KindStorage, err, "load delay state")
	}
	if row != nil {
		var wire delayWire
		if err := json.Unmarshal([]byte(row.Value), &wire); err != nil {
			return false, noop, cerr.Wrap(cerr.KindSerde, err, "decode delay state")
		}
		if wire.Timestamp.AddDate(0, 0, wire.DelayValue).After(now) || wire.Timestamp.AddDate(0, 0, wire.DelayValue).Equal(now) {
			return true, noop, nil
		}
	}

	raw, err := json.Marshal(delayWire{DelayValue: *days, Timestamp: now})
	if err != nil {
		return false, noop, cerr.Wrap(cerr.KindSerde, err, "encode delay state")
	}
	if err := states.SetItems(ctx, client, stateTypeDelay, map[string]string{stateKeyContent: string(raw)}, nil); err != nil {
		return false, noop, cerr.Wrap(cerr.KindStorage, err, "persist delay state")
	}

	clear = func() {
		_ = states.Delete(ctx, client, stateTypeDelay, stateKeyContent)
	}
	return false, clear, nil
}
