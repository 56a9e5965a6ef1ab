// Package auth models the acting identity behind engine calls and guards
// transitions that must never be taken by automated agents.
package auth

import (
	"context"
	"fmt"
)

// Actor kinds. Agents are automated identities; approval and rejection of
// promotion intents require a human or system actor.
const (
	ActorKindHuman  = "human"
	ActorKindSystem = "system"
	ActorKindAgent  = "agent"
)

// Actor is the resolved identity of a caller.
type Actor struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type actorContextKey struct{}

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the actor stored in ctx, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// StatusError is an error carrying an HTTP-style status code, used for
// authorization and not-found failures that orchestration code raises.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// NewStatusError builds a StatusError.
func NewStatusError(status int, code, message string) *StatusError {
	return &StatusError{Status: status, Code: code, Message: message}
}
