package auth

import (
	"fmt"
	"net/http"
)

// RequireNotAgent returns a 403-class StatusError when the actor is an
// automated agent. It is checked before any mutation of the guarded
// transition.
func RequireNotAgent(actor Actor, action string) error {
	if actor.Kind == ActorKindAgent {
		return NewStatusError(
			http.StatusForbidden,
			"AGENT_FORBIDDEN",
			fmt.Sprintf("agent identities may not %s; a human or system actor is required", action),
		)
	}
	return nil
}
