// Package quiescence decides whether a node is safe to snapshot by asking it,
// over independent channels, whether it has finished syncing.
package quiescence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/marmos91/chainsnap/internal/logger"
	"github.com/marmos91/chainsnap/pkg/instance"
)

// ErrNotQuiescent means no channel confirmed that the node is idle.
var ErrNotQuiescent = errors.New("node is not quiescent")

// State is a channel's view of the node's sync activity.
type State int

const (
	Unknown State = iota
	Syncing
	Quiescent
)

func (s State) String() string {
	switch s {
	case Syncing:
		return "syncing"
	case Quiescent:
		return "quiescent"
	default:
		return "unknown"
	}
}

// Channel is one independent way of asking the node for its sync state.
type Channel interface {
	Name() string
	// Probe returns the classified state and the raw status the node reported.
	Probe(ctx context.Context, inst instance.ServiceInstance) (State, string, error)
}

// ChannelResult is the outcome of one channel probe.
type ChannelResult struct {
	Channel string `json:"channel"`
	State   string `json:"state"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result collects every channel's answer.
type Result struct {
	Channels []ChannelResult `json:"channels"`
}

// Quiescent reports whether at least one channel confirmed quiescence.
func (r Result) Quiescent() bool {
	for _, c := range r.Channels {
		if c.State == Quiescent.String() {
			return true
		}
	}
	return false
}

func (r Result) Headers() []string { return []string{"CHANNEL", "STATE", "STATUS", "ERROR"} }

func (r Result) Rows() [][]string {
	rows := make([][]string, 0, len(r.Channels))
	for _, c := range r.Channels {
		rows = append(rows, []string{c.Channel, c.State, c.Status, c.Error})
	}
	return rows
}

// Classifier maps a raw sync status string to a State.
type Classifier struct {
	quiescent map[string]bool
}

// NewClassifier treats the given statuses as quiescent and everything else
// as syncing. Comparison ignores case.
func NewClassifier(quiescentStatuses ...string) Classifier {
	if len(quiescentStatuses) == 0 {
		quiescentStatuses = []string{"no_sync"}
	}
	c := Classifier{quiescent: make(map[string]bool, len(quiescentStatuses))}
	for _, s := range quiescentStatuses {
		c.quiescent[normalize(s)] = true
	}
	return c
}

// Classify returns Quiescent, Syncing, or Unknown for an empty status.
func (c Classifier) Classify(status string) State {
	s := normalize(status)
	switch {
	case s == "":
		return Unknown
	case c.quiescent[s]:
		return Quiescent
	default:
		return Syncing
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Verifier OR-combines its channels: one positive answer is enough.
type Verifier struct {
	channels []Channel
}

// NewVerifier creates a verifier over the given channels, probed in order.
func NewVerifier(channels ...Channel) *Verifier {
	return &Verifier{channels: channels}
}

// Verify probes every channel and returns ErrNotQuiescent unless one of them
// reports Quiescent. All channels are probed so the result is complete for
// diagnostics.
func (v *Verifier) Verify(ctx context.Context, inst instance.ServiceInstance) (Result, error) {
	var res Result
	for _, ch := range v.channels {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		state, status, err := ch.Probe(ctx, inst)
		cr := ChannelResult{Channel: ch.Name(), State: state.String(), Status: status}
		if err != nil {
			cr.Error = err.Error()
			logger.WarnCtx(ctx, "sync status probe failed", logger.KeyChannel, ch.Name(), logger.KeyError, err)
		} else {
			logger.InfoCtx(ctx, "sync status", logger.KeyChannel, ch.Name(), logger.KeySyncStatus, status, logger.KeyState, state.String())
		}
		res.Channels = append(res.Channels, cr)
	}

	if !res.Quiescent() {
		return res, fmt.Errorf("%s: %w", inst.Label(), ErrNotQuiescent)
	}
	return res, nil
}
