package guard

import "strings"

// Requirement is the access level a route demands.
type Requirement int

const (
	// RequireSession admits any signed-in identity. It is the zero value so unknown
	// routes demand authentication.
	RequireSession Requirement = iota
	// RequirePublic admits everyone.
	RequirePublic
	// RequireElevated admits signed-in identities holding an elevated role.
	RequireElevated
)

func (r Requirement) String() string {
	switch r {
	case RequirePublic:
		return "public"
	case RequireSession:
		return "session"
	case RequireElevated:
		return "elevated"
	default:
		return "unknown"
	}
}

const (
	// LoginPath is where anonymous clients are sent.
	LoginPath = "/login"
	// DefaultPath is where signed-in clients land when a route is not for them.
	DefaultPath = "/dashboard"
)

// Route describes a navigation target. Pattern segments starting with ':' match any
// single non-empty segment.
type Route struct {
	Name        string
	Pattern     string
	Requirement Requirement
}

// Match is a resolved navigation target.
type Match struct {
	Route  Route
	Path   string
	Params map[string]string
	Known  bool
}

// Table resolves paths to routes in declaration order.
type Table struct {
	routes []compiledRoute
}

type compiledRoute struct {
	route    Route
	segments []string
}

// NewTable compiles routes. Earlier routes win when patterns overlap.
func NewTable(routes ...Route) *Table {
	t := &Table{routes: make([]compiledRoute, 0, len(routes))}
	for _, r := range routes {
		t.routes = append(t.routes, compiledRoute{route: r, segments: splitPath(r.Pattern)})
	}
	return t
}

// DefaultRoutes is the photo cloud route table.
func DefaultRoutes() *Table {
	return NewTable(
		Route{Name: "home", Pattern: "/", Requirement: RequirePublic},
		Route{Name: "login", Pattern: LoginPath, Requirement: RequirePublic},
		Route{Name: "dashboard", Pattern: DefaultPath, Requirement: RequireSession},
		Route{Name: "upload", Pattern: "/upload", Requirement: RequireSession},
		Route{Name: "preview", Pattern: "/preview/:id", Requirement: RequireSession},
		Route{Name: "settings", Pattern: "/settings", Requirement: RequireSession},
		Route{Name: "create", Pattern: "/create", Requirement: RequireSession},
		Route{Name: "edit", Pattern: "/edit/:id", Requirement: RequireSession},
		Route{Name: "admin", Pattern: "/admin", Requirement: RequireElevated},
		Route{Name: "share", Pattern: "/share/:token", Requirement: RequirePublic},
	)
}

// Resolve returns the route for path. Unmatched paths resolve to an unnamed route that
// requires a session.
func (t *Table) Resolve(path string) Match {
	path = normalizePath(path)
	segs := splitPath(path)
	for _, cr := range t.routes {
		if params, ok := matchSegments(cr.segments, segs); ok {
			return Match{Route: cr.route, Path: path, Params: params, Known: true}
		}
	}
	return Match{
		Route: Route{Pattern: path, Requirement: RequireSession},
		Path:  path,
	}
}

func matchSegments(pattern, segs []string) (map[string]string, bool) {
	if len(pattern) != len(segs) {
		return nil, false
	}
	var params map[string]string
	for i, p := range pattern {
		if strings.HasPrefix(p, ":") {
			if params == nil {
				params = make(map[string]string)
			}
			params[p[1:]] = segs[i]
			continue
		}
		if p != segs[i] {
			return nil, false
		}
	}
	return params, true
}

func normalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimSpace(p)
	if p == "" || p[0] != '/' {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
