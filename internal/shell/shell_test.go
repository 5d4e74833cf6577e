package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuard(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		path     string
		action   Action
		location string
	}{
		{"loading renders nothing", StateLoading, "/saved", ActionWait, ""},
		{"loading on public route still waits", StateLoading, "/login", ActionWait, ""},
		{"public route without session", StateUnauthenticated, "/signup", ActionRender, ""},
		{"reset link with query", StateUnauthenticated, "/reset-password?code=abc", ActionRender, ""},
		{"sign-in route never redirects", StateUnauthenticated, "/login/", ActionRender, ""},
		{"protected route redirects", StateUnauthenticated, "/saved", ActionRedirect, "/login"},
		{"home redirects", StateUnauthenticated, "/", ActionRedirect, "/login"},
		{"authenticated gets the sidebar", StateAuthenticated, "/account", ActionRenderShell, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Guard(tt.state, tt.path)
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.location, d.Location)
			assert.Equal(t, tt.state.String(), d.State)
		})
	}
}

func TestRoutesIsPublicPrefix(t *testing.T) {
	api := Routes{SignIn: "/login", Public: []string{"/auth/login", "/swagger/"}}

	assert.True(t, api.IsPublic("/swagger/index.html"))
	assert.True(t, api.IsPublic("/auth/login"))
	assert.False(t, api.IsPublic("/auth/logout"))
	assert.False(t, api.IsPublic("/swaggerx"))
}

func TestNavItems(t *testing.T) {
	nav := NavItems("/saved")
	assert.Equal(t, "PDF Analyzer", nav.Title)
	assert.Len(t, nav.Items, 3)
	assert.False(t, nav.Items[0].Active)
	assert.True(t, nav.Items[1].Active)
	assert.False(t, nav.Items[2].Active)
	assert.Equal(t, "/auth/logout", nav.SignOut.Path)

	home := NavItems("/")
	assert.True(t, home.Items[0].Active)
	assert.False(t, home.Items[1].Active)
}
