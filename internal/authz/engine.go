package authz

import (
	"context"

	"github.com/ansiblecluster/core/internal/model"
)

// RoleSource loads role definitions by id, e.g. from the storage package.
// An error or empty result falls back to the builtin catalog, matching the
// original's "fall back to built-in roles if storage fails" behavior.
type RoleSource interface {
	Roles(ctx context.Context) (map[string]model.Role, error)
}

// Engine evaluates hierarchical wildcard permissions and resolves a user's
// role graph. It returns boolean decisions only; translating a false result
// into a 403 is the Access Guard's job (spec §4.1).
type Engine struct {
	roles RoleSource
}

func NewEngine(roles RoleSource) *Engine {
	return &Engine{roles: roles}
}

func (e *Engine) roleDefs(ctx context.Context) map[string]model.Role {
	if e.roles != nil {
		if defs, err := e.roles.Roles(ctx); err == nil && len(defs) > 0 {
			return defs
		}
	}
	return BuiltinRoles
}

// ResolvePermissions walks the DFS over each of the user's roles' inherits
// edges, accumulating permissions and guarding against cycles with a
// per-root visited set.
func (e *Engine) ResolvePermissions(ctx context.Context, roles []string) []string {
	defs := e.roleDefs(ctx)
	set := make(map[string]struct{})

	var addRolePermissions func(roleID string, visited map[string]struct{})
	addRolePermissions = func(roleID string, visited map[string]struct{}) {
		if _, seen := visited[roleID]; seen {
			return
		}
		visited[roleID] = struct{}{}

		def, ok := defs[roleID]
		if !ok {
			return
		}
		for _, p := range def.Permissions {
			set[p] = struct{}{}
		}
		for _, inherited := range def.Inherits {
			addRolePermissions(inherited, visited)
		}
	}

	for _, role := range roles {
		addRolePermissions(role, make(map[string]struct{}))
	}

	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}

// CheckPermission reports whether any permission resolved from roles
// satisfies required.
func (e *Engine) CheckPermission(ctx context.Context, roles []string, required string) bool {
	for _, p := range e.ResolvePermissions(ctx, roles) {
		if PermissionMatches(p, required) {
			return true
		}
	}
	return false
}

// AccessibleTags reports the tags a user may operate on for resourceType:
// unlimited=true means the user holds `*:*` or `<resourceType>:*`,
// otherwise tags holds the <tag> of every `<resourceType>.<tag>:<action>`
// permission the user was granted (the "own" pseudo-tag is never
// surfaced).
func (e *Engine) AccessibleTags(ctx context.Context, roles []string, resourceType string) (tags []string, unlimited bool) {
	perms := e.ResolvePermissions(ctx, roles)
	for _, p := range perms {
		r, a, ok := splitPermission(p)
		if ok && a == "*" && (r == "*" || r == resourceType) {
			return nil, true
		}
	}

	seen := make(map[string]struct{})
	prefix := resourceType + "."
	for _, p := range perms {
		r, _, ok := splitPermission(p)
		if !ok || len(r) <= len(prefix) || r[:len(prefix)] != prefix {
			continue
		}
		tag := r[len(prefix):]
		if tag == "own" {
			continue
		}
		if _, dup := seen[tag]; !dup {
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	return tags, false
}

// Ownable is satisfied by any record the ownership-narrowing rule can apply
// to: a resource.own:action permission suffices only when the record's
// CreatedBy matches the acting user's username.
type Ownable interface {
	OwnerUsername() string
}

// CanModify reports whether a user may perform action on a resource of
// resourceType: resource.all:action (or a wildcard covering it) always
// suffices; resource.own:action suffices only when owner.OwnerUsername()
// equals username. Ownership is the only recognized narrowing mechanism
// (spec §4.1).
func (e *Engine) CanModify(ctx context.Context, roles []string, resourceType, action, username string, owner Ownable) bool {
	if e.CheckPermission(ctx, roles, resourceType+".all:"+action) {
		return true
	}
	if owner != nil && owner.OwnerUsername() == username {
		return e.CheckPermission(ctx, roles, resourceType+".own:"+action)
	}
	return false
}

// FilterResources narrows resources to those the user may access for
// action (default "view" semantics are the caller's choice), checking a
// general, tag-specific, id-specific, and own-scoped permission pattern per
// item, matching original_source/web/authz.py's filter_resources_by_permission.
func FilterResources[T any](e *Engine, ctx context.Context, roles []string, resourceType, action, username string, items []T, tagOf func(T) string, idOf func(T) string, ownerOf func(T) string) []T {
	if e.CheckPermission(ctx, roles, resourceType+":*") || e.CheckPermission(ctx, roles, "*:*") {
		return items
	}

	var filtered []T
	for _, item := range items {
		patterns := []string{
			resourceType + ":" + action,
			resourceType + "." + tagOf(item) + ":" + action,
			resourceType + "." + idOf(item) + ":" + action,
		}
		if ownerOf(item) == username {
			patterns = append(patterns, resourceType+".own:"+action)
		}

		for _, pattern := range patterns {
			if e.CheckPermission(ctx, roles, pattern) {
				filtered = append(filtered, item)
				break
			}
		}
	}
	return filtered
}
