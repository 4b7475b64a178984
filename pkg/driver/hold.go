package driver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/csml-run/csml-engine/pkg/cerr"
	"github.com/csml-run/csml-engine/pkg/store"
	"github.com/csml-run/csml-engine/pkg/value"
)

// heldState is a resolved, validated hold ready to resume from: the step it
// suspended in, its restored step_vars, and whether the event that led to
// the hold was secure (spec.md §3 Hold entity).
//
// The original interpreter's hold record also carries a numeric `index`
// alongside step_name/flow_name; this reimplementation re-enters a held
// step from its top rather than mid-statement (the tree-walking evaluator
// has no notion of a mid-step instruction pointer to resume from), so the
// (flow, step) pair the driver already tracks is sufficient and `index` has
// no reachable use here.
type heldState struct {
	Flow   string
	Step   string
	Vars   map[string]value.Value
	Secure bool
}

// holdWire is the JSON shape stored at state key (type="hold", key="position").
type holdWire struct {
	Flow     string                     `json:"flow"`
	Step     string                     `json:"step"`
	StepVars map[string]json.RawMessage `json:"step_vars"`
	Hash     string                     `json:"hash"`
	Previous string                     `json:"previous,omitempty"`
	Secure   bool                       `json:"secure,omitempty"`
}

const (
	stateTypeHold    = "hold"
	stateKeyPosition = "position"
	stateTypeDelay   = "delay"
	stateKeyContent  = "content"
	stateTypeBot     = "bot"
	stateKeyPrevious = "previous"
)

// loadHold fetches and validates the pending hold for client against the
// currently loaded bot: a hash mismatch means the flow was recompiled since
// the hold was taken, so the hold is discarded (spec.md §3 "mismatch
// invalidates") and loadHold reports no hold rather than erroring.
func loadHold(ctx context.Context, states store.States, client store.Client, expectedHash func(flow, step string) (string, bool)) (*heldState, error) {
	row, err := states.Get(ctx, client, stateTypeHold, stateKeyPosition)
	if err != nil {
		return nil, cerr.Wrap(cerr.KindStorage, err, "load hold state")
	}
	if row == nil {
		return nil, nil
	}

	var wire holdWire
	if err := json.Unmarshal([]byte(row.Value), &wire); err != nil {
		return nil, cerr.Wrap(cerr.KindSerde, err, "decode hold state")
	}

	if want, ok := expectedHash(wire.Flow, wire.Step); !ok || want != wire.Hash {
		_ = states.Delete(ctx, client, stateTypeHold, stateKeyPosition)
		return nil, nil
	}

	vars := make(map[string]value.Value, len(wire.StepVars))
	for k, raw := range wire.StepVars {
		v, err := value.FromJSON(raw)
		if err != nil {
			return nil, cerr.Wrap(cerr.KindSerde, err, "decode hold step_vars[%q]", k)
		}
		vars[k] = v
	}

	return &heldState{Flow: wire.Flow, Step: wire.Step, Vars: vars, Secure: wire.Secure}, nil
}

// clearHold deletes any pending hold for client; a no-op if none exists.
func clearHold(ctx context.Context, states store.States, client store.Client) error {
	if err := states.Delete(ctx, client, stateTypeHold, stateKeyPosition); err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "clear hold state")
	}
	return nil
}

// storeHold persists a new hold (spec.md §4.4 "write the hold state key").
func storeHold(ctx context.Context, states store.States, client store.Client, flow, step, hash, previous string, secure bool, vars map[string]value.Value, expiresAt *time.Time) error {
	wire := holdWire{Flow: flow, Step: step, Hash: hash, Previous: previous, Secure: secure, StepVars: map[string]json.RawMessage{}}
	for k, v := range vars {
		b, err := v.MarshalJSON()
		if err != nil {
			return cerr.Wrap(cerr.KindSerde, err, "encode hold step_vars[%q]", k)
		}
		wire.StepVars[k] = b
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return cerr.Wrap(cerr.KindSerde, err, "encode hold state")
	}
	if err := states.SetItems(ctx, client, stateTypeHold, map[string]string{stateKeyPosition: string(raw)}, expiresAt); err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "persist hold state")
	}
	return nil
}
