// Package workflow provides a small status state machine shared by every approval flow in the engine.
package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Action names a transition trigger (submit, verify, approve, reject, ...).
type Action string

// ErrInvalidTransition is returned when no rule exists for (from, action).
var ErrInvalidTransition = errors.New("invalid transition")

// ErrGuardRejected is returned when a rule exists but its guard refused the input.
var ErrGuardRejected = errors.New("transition guard rejected input")

// Input carries the data guards inspect.
type Input struct {
	Reason  string
	Payload map[string]string
}

// Guard validates an input before a transition is allowed.
type Guard func(Input) error

// Rule declares a single edge of the transition table.
type Rule[S ~string] struct {
	From   S
	Action Action
	To     S
	Guards []Guard
}

// Machine holds a transition table for one status type.
type Machine[S ~string] struct {
	name  string
	edges map[S]map[Action]Rule[S]
	final map[S]struct{}
}

// New builds a machine from the provided rules. Duplicate (from, action) pairs panic at construction.
func New[S ~string](name string, rules ...Rule[S]) *Machine[S] {
	m := &Machine[S]{
		name:  name,
		edges: make(map[S]map[Action]Rule[S]),
		final: make(map[S]struct{}),
	}
	targets := make(map[S]struct{})
	for _, rule := range rules {
		if _, ok := m.edges[rule.From]; !ok {
			m.edges[rule.From] = make(map[Action]Rule[S])
		}
		if _, dup := m.edges[rule.From][rule.Action]; dup {
			panic(fmt.Sprintf("workflow %s: duplicate rule %s --%s-->", name, rule.From, rule.Action))
		}
		m.edges[rule.From][rule.Action] = rule
		targets[rule.To] = struct{}{}
	}
	for state := range targets {
		if len(m.edges[state]) == 0 {
			m.final[state] = struct{}{}
		}
	}
	return m
}

// Name returns the machine label used in error messages.
func (m *Machine[S]) Name() string {
	return m.name
}

// Can reports whether action is allowed from the given state, ignoring guards.
func (m *Machine[S]) Can(from S, action Action) bool {
	_, ok := m.edges[from][action]
	return ok
}

// Terminal reports whether the state has no outgoing transitions.
func (m *Machine[S]) Terminal(state S) bool {
	_, ok := m.final[state]
	return ok
}

// Fire resolves the next state for action, running guards against in.
func (m *Machine[S]) Fire(from S, action Action, in Input) (S, error) {
	rule, ok := m.edges[from][action]
	if !ok {
		return from, fmt.Errorf("%s: cannot %s from %s: %w", m.name, action, from, ErrInvalidTransition)
	}
	for _, guard := range rule.Guards {
		if err := guard(in); err != nil {
			return from, fmt.Errorf("%s: %s: %w: %v", m.name, action, ErrGuardRejected, err)
		}
	}
	return rule.To, nil
}

// RequireReason rejects inputs without a non-blank reason.
func RequireReason(in Input) error {
	if strings.TrimSpace(in.Reason) == "" {
		return errors.New("reason is required")
	}
	return nil
}

// RequirePayload returns a guard demanding a non-blank payload key.
func RequirePayload(key string) Guard {
	return func(in Input) error {
		if strings.TrimSpace(in.Payload[key]) == "" {
			return fmt.Errorf("%s is required", key)
		}
		return nil
	}
}
