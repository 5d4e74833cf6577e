// Package shell decides what the navigation shell shows for a session state and route.
package shell

import "strings"

// State is the session status observed by the shell.
type State int

const (
	// StateLoading means the session status is not known yet.
	StateLoading State = iota
	StateUnauthenticated
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

// Action is what the shell does for a route.
type Action string

const (
	// ActionWait renders nothing until the session status is known.
	ActionWait Action = "wait"
	// ActionRender renders the route without the sidebar.
	ActionRender Action = "render"
	// ActionRedirect sends the visitor to Location.
	ActionRedirect Action = "redirect"
	// ActionRenderShell renders the sidebar around the route.
	ActionRenderShell Action = "render_shell"
)

// Decision is the outcome of Guard.
type Decision struct {
	State    string `json:"state"`
	Action   Action `json:"action"`
	Location string `json:"location,omitempty"`
}

// Routes describes which paths are reachable without a session.
type Routes struct {
	SignIn string
	// Public paths match exactly or as a "/"-separated prefix.
	Public []string
}

// Pages are the screens of the application.
var Pages = Routes{
	SignIn: "/login",
	Public: []string{"/login", "/signup", "/forgot-password", "/reset-password"},
}

// IsPublic reports whether path is reachable without a session.
func (r Routes) IsPublic(path string) bool {
	path = clean(path)
	if path == r.SignIn {
		return true
	}
	for _, p := range r.Public {
		if path == p || strings.HasPrefix(path, strings.TrimRight(p, "/")+"/") {
			return true
		}
	}
	return false
}

// Guard decides for one route. It never redirects to the route being visited.
func (r Routes) Guard(state State, path string) Decision {
	d := Decision{State: state.String()}
	switch state {
	case StateAuthenticated:
		d.Action = ActionRenderShell
	case StateUnauthenticated:
		if r.IsPublic(path) || clean(path) == r.SignIn {
			d.Action = ActionRender
		} else {
			d.Action = ActionRedirect
			d.Location = r.SignIn
		}
	default:
		d.Action = ActionWait
	}
	return d
}

// Guard decides for one application page.
func Guard(state State, path string) Decision {
	return Pages.Guard(state, path)
}

func clean(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
