package guard

import "testing"

func TestResolveDefaultRoutes(t *testing.T) {
	table := DefaultRoutes()
	cases := []struct {
		path  string
		name  string
		req   Requirement
		known bool
	}{
		{"/", "home", RequirePublic, true},
		{"/login", "login", RequirePublic, true},
		{"/login/", "login", RequirePublic, true},
		{"/dashboard?tab=recent", "dashboard", RequireSession, true},
		{"/preview/42", "preview", RequireSession, true},
		{"/admin", "admin", RequireElevated, true},
		{"/share/AbC123", "share", RequirePublic, true},
		{"/share", "", RequireSession, false},
		{"/preview/42/raw", "", RequireSession, false},
		{"unknown", "", RequireSession, false},
	}
	for _, tc := range cases {
		m := table.Resolve(tc.path)
		if m.Route.Name != tc.name || m.Route.Requirement != tc.req || m.Known != tc.known {
			t.Fatalf("%s: got %+v", tc.path, m)
		}
	}
}

func TestResolveParams(t *testing.T) {
	m := DefaultRoutes().Resolve("/edit/photo-9")
	if m.Params["id"] != "photo-9" {
		t.Fatalf("expected id param, got %v", m.Params)
	}
	if m.Path != "/edit/photo-9" {
		t.Fatalf("unexpected path %q", m.Path)
	}
}

func TestRequirementString(t *testing.T) {
	if RequireElevated.String() != "elevated" || RequirePublic.String() != "public" {
		t.Fatal("unexpected requirement names")
	}
	if RedirectToLogin.String() != "redirect_login" {
		t.Fatal("unexpected outcome name")
	}
}
