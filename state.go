package session

import "time"

// State is a snapshot of the in-memory session. Snapshots are values;
// mutating one never touches the Manager.
type State struct {
	User            *User      `json:"user,omitempty"`
	AccessToken     string     `json:"access_token,omitempty"`
	IsAuthenticated bool       `json:"is_authenticated"`
	IsLoading       bool       `json:"is_loading"`
	Error           string     `json:"error,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

// initialState is the session at process start: unresolved and loading.
func initialState() State {
	return State{IsLoading: true}
}

// resolvedState is the post-logout / empty-restoration state.
func resolvedState() State {
	return State{}
}

// clone copies the state, including the cached user record, so listeners
// cannot reach back into manager-owned memory.
func (s State) clone() State {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	if s.ResolvedAt != nil {
		t := *s.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}

// valid reports whether the state satisfies the session invariants:
// authenticated implies user and token present, loading implies no error.
func (s State) valid() bool {
	if s.IsAuthenticated && (s.User == nil || s.AccessToken == "") {
		return false
	}
	if s.IsLoading && s.Error != "" {
		return false
	}
	return true
}
