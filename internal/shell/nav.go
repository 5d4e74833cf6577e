package shell

import "strings"

// NavItem is one sidebar entry.
type NavItem struct {
	Label  string `json:"label"`
	Path   string `json:"path"`
	Active bool   `json:"active"`
}

// Nav is the sidebar content for the current route.
type Nav struct {
	Title   string    `json:"title"`
	Items   []NavItem `json:"items"`
	SignOut NavAction `json:"sign_out"`
}

// NavAction is a sidebar command that is not a route.
type NavAction struct {
	Label  string `json:"label"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

var navItems = []NavItem{
	{Label: "Home", Path: "/"},
	{Label: "Saved Resources", Path: "/saved"},
	{Label: "Account", Path: "/account"},
}

// NavItems returns the sidebar for path with the matching entry marked active.
func NavItems(path string) Nav {
	path = clean(path)
	items := make([]NavItem, len(navItems))
	for i, it := range navItems {
		it.Active = isActive(it.Path, path)
		items[i] = it
	}
	return Nav{
		Title:   "PDF Analyzer",
		Items:   items,
		SignOut: NavAction{Label: "Sign out", Method: "POST", Path: "/auth/logout"},
	}
}

func isActive(item, path string) bool {
	if item == "/" {
		return path == "/"
	}
	return path == item || strings.HasPrefix(path, item+"/")
}
