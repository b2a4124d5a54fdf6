package authz

import (
	"context"
	"testing"

	"github.com/ansiblecluster/core/internal/model"
)

type staticRoleSource map[string]model.Role

func (s staticRoleSource) Roles(ctx context.Context) (map[string]model.Role, error) {
	return map[string]model.Role(s), nil
}

func TestEngine_ResolvePermissions_Inheritance(t *testing.T) {
	roles := staticRoleSource{
		"base": model.Role{ID: "base", Permissions: []string{"logs:view"}},
		"mid":  model.Role{ID: "mid", Permissions: []string{"jobs:view"}, Inherits: []string{"base"}},
		"top":  model.Role{ID: "top", Permissions: []string{"playbooks:run"}, Inherits: []string{"mid"}},
	}
	e := NewEngine(roles)

	perms := e.ResolvePermissions(context.Background(), []string{"top"})
	want := map[string]bool{"playbooks:run": true, "jobs:view": true, "logs:view": true}
	if len(perms) != len(want) {
		t.Fatalf("got %v permissions, want %d", perms, len(want))
	}
	for _, p := range perms {
		if !want[p] {
			t.Errorf("unexpected permission %q", p)
		}
	}
}

func TestEngine_ResolvePermissions_CycleGuard(t *testing.T) {
	roles := staticRoleSource{
		"a": model.Role{ID: "a", Permissions: []string{"a:view"}, Inherits: []string{"b"}},
		"b": model.Role{ID: "b", Permissions: []string{"b:view"}, Inherits: []string{"a"}},
	}
	e := NewEngine(roles)

	perms := e.ResolvePermissions(context.Background(), []string{"a"})
	if len(perms) != 2 {
		t.Errorf("got %v, want exactly [a:view b:view]", perms)
	}
}

func TestEngine_CheckPermission_FullWildcard(t *testing.T) {
	roles := staticRoleSource{"admin": BuiltinRoles["admin"]}
	e := NewEngine(roles)

	if !e.CheckPermission(context.Background(), []string{"admin"}, "anything:whatever") {
		t.Error("admin role should satisfy any permission check")
	}
}

func TestEngine_FallsBackToBuiltins(t *testing.T) {
	e := NewEngine(nil)
	if !e.CheckPermission(context.Background(), []string{"monitor"}, "jobs:view") {
		t.Error("expected builtin monitor role to grant jobs:view")
	}
	if e.CheckPermission(context.Background(), []string{"monitor"}, "jobs:cancel") {
		t.Error("monitor should not be able to cancel jobs")
	}
}

type fakeResource struct {
	id, tag, owner string
}

func TestFilterResources_OwnershipAndTagScoping(t *testing.T) {
	roles := staticRoleSource{
		"dev": model.Role{ID: "dev", Permissions: []string{"playbooks.own:view"}},
	}
	e := NewEngine(roles)

	items := []fakeResource{
		{id: "p1", tag: "servers", owner: "alice"},
		{id: "p2", tag: "network", owner: "bob"},
	}

	got := FilterResources(e, context.Background(), []string{"dev"}, "playbooks", "view", "alice", items,
		func(r fakeResource) string { return r.tag },
		func(r fakeResource) string { return r.id },
		func(r fakeResource) string { return r.owner },
	)

	if len(got) != 1 || got[0].id != "p1" {
		t.Errorf("expected only p1 (owned by alice), got %v", got)
	}
}

func TestEngine_CanModify(t *testing.T) {
	roles := staticRoleSource{
		"owner-role": model.Role{ID: "owner-role", Permissions: []string{"playbooks.own:edit"}},
		"admin-role": model.Role{ID: "admin-role", Permissions: []string{"playbooks.all:edit"}},
	}
	e := NewEngine(roles)

	owned := fakeOwnable{username: "alice"}
	if !e.CanModify(context.Background(), []string{"owner-role"}, "playbooks", "edit", "alice", owned) {
		t.Error("owner should be able to modify their own resource")
	}
	if e.CanModify(context.Background(), []string{"owner-role"}, "playbooks", "edit", "bob", owned) {
		t.Error("non-owner without resource.all should not be able to modify")
	}
	if !e.CanModify(context.Background(), []string{"admin-role"}, "playbooks", "edit", "bob", owned) {
		t.Error("resource.all:edit should allow modifying any resource")
	}
}

type fakeOwnable struct{ username string }

func (f fakeOwnable) OwnerUsername() string { return f.username }
