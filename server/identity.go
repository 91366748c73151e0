package server

import (
	"errors"
	"net/http"

	"skysched/scheduler"
)

// Identity is a resolved request identity: who is editing, and whose
// calendar is being edited. TargetOwner differs from the editor's own id
// only when an elevated caller impersonates another user.
type Identity struct {
	Editor      scheduler.Editor
	TargetOwner string
}

var errNoIdentity = errors.New("missing X-User header")

// IdentityResolver maps an inbound request to its effective identity. The
// target owner is resolved once here and passed down as an argument; it is
// never ambient state.
type IdentityResolver interface {
	Resolve(r *http.Request) (Identity, error)
}

// HeaderResolver trusts the X-User header set by the fronting auth proxy.
// X-Act-As selects an impersonation target; for callers who are not
// superusers it is silently ignored and they get their own calendar.
type HeaderResolver struct {
	superusers map[string]bool
}

func NewHeaderResolver(superusers []string) *HeaderResolver {
	set := make(map[string]bool, len(superusers))
	for _, u := range superusers {
		if u != "" {
			set[u] = true
		}
	}
	return &HeaderResolver{superusers: set}
}

func (h *HeaderResolver) Resolve(r *http.Request) (Identity, error) {
	user := r.Header.Get("X-User")
	if user == "" {
		return Identity{}, errNoIdentity
	}

	editor := scheduler.Editor{ID: user, Elevated: h.superusers[user]}

	owner := user
	if actAs := r.Header.Get("X-Act-As"); actAs != "" && editor.Elevated {
		owner = actAs
	}

	return Identity{Editor: editor, TargetOwner: owner}, nil
}
