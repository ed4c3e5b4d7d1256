package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rkvalley/campus/internal/model"
)

func identity(role model.Role) *model.Identity {
	return &model.Identity{ID: "u1", Role: role}
}

// ---------------------------------------------------------------------------
// Decide
// ---------------------------------------------------------------------------

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		loading  bool
		identity *model.Identity
		required []model.Role
		want     Decision
	}{
		{"loading wins over everything", true, nil, []model.Role{model.RoleFaculty}, DecisionLoading},
		{"loading with identity", true, identity(model.RoleFaculty), nil, DecisionLoading},
		{"no identity", false, nil, []model.Role{model.RoleFaculty}, DecisionRedirect},
		{"zero identity", false, &model.Identity{}, nil, DecisionRedirect},
		{"wrong role", false, identity(model.RoleStudent), []model.Role{model.RoleFaculty}, DecisionRedirect},
		{"right role", false, identity(model.RoleFaculty), []model.Role{model.RoleFaculty}, DecisionRender},
		{"any role allowed", false, identity(model.RoleAdmin), nil, DecisionRender},
		{"one of several", false, identity(model.RoleAdmin), model.AllRoles, DecisionRender},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.loading, tt.identity, tt.required))
		})
	}
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "loading", DecisionLoading.String())
	assert.Equal(t, "redirect", DecisionRedirect.String())
	assert.Equal(t, "render", DecisionRender.String())
	assert.Equal(t, "unknown", Decision(7).String())
}

// ---------------------------------------------------------------------------
// Check / Lookup
// ---------------------------------------------------------------------------

func TestCheck(t *testing.T) {
	tests := []struct {
		path     string
		loading  bool
		identity *model.Identity
		want     Decision
		redirect string
	}{
		{"/", false, nil, DecisionRender, ""},
		{"/login", true, nil, DecisionRender, ""},
		{"/register?from=landing", false, nil, DecisionRender, ""},
		{"/student", false, identity(model.RoleStudent), DecisionRender, ""},
		{"/student/", false, identity(model.RoleStudent), DecisionRender, ""},
		{"/student", false, identity(model.RoleFaculty), DecisionRedirect, LoginRoute},
		{"/faculty", true, nil, DecisionLoading, ""},
		{"/faculty", false, nil, DecisionRedirect, LoginRoute},
		{"/admin", false, identity(model.RoleAdmin), DecisionRender, ""},
		{"/reports", false, identity(model.RoleFaculty), DecisionRedirect, LoginRoute},
		{"/submit-assignment/42", false, identity(model.RoleStudent), DecisionRender, ""},
		{"/submit-assignment", false, identity(model.RoleStudent), DecisionRedirect, LoginRoute},
		{"/chat", false, identity(model.RoleStudent), DecisionRender, ""},
		{"/chat", false, identity(model.RoleFaculty), DecisionRender, ""},
		{"/chat", false, identity(model.RoleAdmin), DecisionRender, ""},
		{"/chat", false, identity("Visitor"), DecisionRedirect, LoginRoute},
		{"/nowhere", false, identity(model.RoleAdmin), DecisionRedirect, LoginRoute},
		{"/nowhere", true, nil, DecisionLoading, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			d, to := Check(tt.path, tt.loading, tt.identity)
			assert.Equal(t, tt.want, d)
			assert.Equal(t, tt.redirect, to)
		})
	}
}

func TestLookup_EveryRouteResolvesToItself(t *testing.T) {
	for _, r := range Routes {
		got, ok := Lookup(r.Pattern)
		assert.True(t, ok, r.Pattern)
		assert.Equal(t, r.Pattern, got.Pattern)
	}
}

func TestHomeFor(t *testing.T) {
	assert.Equal(t, "/student", HomeFor(model.RoleStudent))
	assert.Equal(t, "/faculty", HomeFor(model.RoleFaculty))
	assert.Equal(t, "/admin", HomeFor(model.RoleAdmin))
	assert.Equal(t, LoginRoute, HomeFor("Visitor"))

	for _, role := range model.AllRoles {
		d, _ := Check(HomeFor(role), false, identity(role))
		assert.Equal(t, DecisionRender, d, "home of %s must render for it", role)
	}
}
