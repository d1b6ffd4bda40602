// Package pipeline drives one chainsnap invocation: it takes the run lock,
// opens the per-run log, dispatches the requested action over the located
// instances and records the outcome.
package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownAction is returned by ParseAction.
var ErrUnknownAction = errors.New("unknown action")

// Action is what one invocation does.
type Action string

const (
	// ActionPublish snapshots every located instance into the local
	// publication directory.
	ActionPublish Action = "publish"
	// ActionDistribute mirrors completed local publications to the enabled
	// remote targets.
	ActionDistribute Action = "distribute"
	// ActionRun publishes and then distributes each network.
	ActionRun Action = "run"
	// ActionRestart stops and relaunches every located instance without
	// taking a snapshot.
	ActionRestart Action = "restart"
)

// Actions lists every action.
func Actions() []Action {
	return []Action{ActionPublish, ActionDistribute, ActionRun, ActionRestart}
}

// ParseAction maps a command name to an Action.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions() {
		if strings.EqualFold(s, string(a)) {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

func (a Action) String() string { return string(a) }

// Snapshots reports whether the action stops the node to package it.
func (a Action) Snapshots() bool {
	return a == ActionPublish || a == ActionRun
}
