// Package guard decides whether a route may be shown to the current session.
package guard

import (
	"strings"

	"github.com/rkvalley/campus/internal/model"
)

// Decision is the outcome of an access check.
type Decision int

// Possible decisions.
const (
	// DecisionLoading means the session has not been restored yet; show a
	// placeholder and decide again later.
	DecisionLoading Decision = iota
	// DecisionRedirect means navigate to LoginRoute.
	DecisionRedirect
	// DecisionRender means show the route.
	DecisionRender
)

func (d Decision) String() string {
	switch d {
	case DecisionLoading:
		return "loading"
	case DecisionRedirect:
		return "redirect"
	case DecisionRender:
		return "render"
	default:
		return "unknown"
	}
}

// LoginRoute is the only redirect target.
const LoginRoute = "/login"

// Decide is the access rule. An empty required list admits any logged-in
// identity. A wrong role is redirected to login, not to a forbidden page.
func Decide(loading bool, identity *model.Identity, required []model.Role) Decision {
	if loading {
		return DecisionLoading
	}
	if identity == nil || identity.IsZero() {
		return DecisionRedirect
	}
	if len(required) == 0 {
		return DecisionRender
	}
	for _, r := range required {
		if identity.Role == r {
			return DecisionRender
		}
	}
	return DecisionRedirect
}

// Route is one guarded path. Pattern segments starting with ':' match any
// single segment.
type Route struct {
	Pattern string
	Public  bool
	Roles   []model.Role
}

var (
	students = []model.Role{model.RoleStudent}
	faculty  = []model.Role{model.RoleFaculty}
	admins   = []model.Role{model.RoleAdmin}
)

// Routes is the portal's route table.
var Routes = []Route{
	{Pattern: "/", Public: true},
	{Pattern: "/login", Public: true},
	{Pattern: "/register", Public: true},

	{Pattern: "/student", Roles: students},
	{Pattern: "/feedback", Roles: students},
	{Pattern: "/student-timetable", Roles: students},
	{Pattern: "/timetable", Roles: students},
	{Pattern: "/student-attendance", Roles: students},
	{Pattern: "/assignments", Roles: students},
	{Pattern: "/submit-assignment/:id", Roles: students},
	{Pattern: "/rewards", Roles: students},
	{Pattern: "/student-content", Roles: students},

	{Pattern: "/faculty", Roles: faculty},
	{Pattern: "/faculty-timetable", Roles: faculty},
	{Pattern: "/create-assignment", Roles: faculty},
	{Pattern: "/faculty-attendance", Roles: faculty},
	{Pattern: "/attendance-reports", Roles: faculty},
	{Pattern: "/my-assignments", Roles: faculty},
	{Pattern: "/share-content", Roles: faculty},
	{Pattern: "/faculty-content", Roles: faculty},

	{Pattern: "/admin", Roles: admins},
	{Pattern: "/reports", Roles: admins},

	{Pattern: "/chat", Roles: model.AllRoles},
}

// Lookup finds the route matching path.
func Lookup(path string) (Route, bool) {
	path = normalize(path)
	for _, r := range Routes {
		if match(r.Pattern, path) {
			return r, true
		}
	}
	return Route{}, false
}

// Check applies Decide to the route matching path. Public routes always
// render; unknown paths redirect once the session is resolved. The second
// result is the redirect target, or "".
func Check(path string, loading bool, identity *model.Identity) (Decision, string) {
	route, ok := Lookup(path)
	if !ok {
		if loading {
			return DecisionLoading, ""
		}
		return DecisionRedirect, LoginRoute
	}
	if route.Public {
		return DecisionRender, ""
	}
	d := Decide(loading, identity, route.Roles)
	if d == DecisionRedirect {
		return d, LoginRoute
	}
	return d, ""
}

// HomeFor is where a role lands after login.
func HomeFor(role model.Role) string {
	switch role {
	case model.RoleStudent:
		return "/student"
	case model.RoleFaculty:
		return "/faculty"
	case model.RoleAdmin:
		return "/admin"
	default:
		return LoginRoute
	}
}

func normalize(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func match(pattern, path string) bool {
	ps := strings.Split(pattern, "/")
	xs := strings.Split(path, "/")
	if len(ps) != len(xs) {
		return false
	}
	for i := range ps {
		if strings.HasPrefix(ps[i], ":") {
			if xs[i] == "" {
				return false
			}
			continue
		}
		if ps[i] != xs[i] {
			return false
		}
	}
	return true
}
