package authz

import "github.com/ansiblecluster/core/internal/model"

// BuiltinRoles are the default roles seeded into the Role store on first
// run and used as a fallback when no role source is configured. They
// cannot be edited or deleted.
var BuiltinRoles = map[string]model.Role{
	"admin": {
		ID: "admin", Name: "Administrator",
		Description: "Full access to all resources",
		Permissions: []string{"*:*"},
		Builtin:     true,
	},
	"operator": {
		ID: "operator", Name: "Operator",
		Description: "Run playbooks, manage schedules, view logs",
		Permissions: []string{
			"playbooks:*",
			"schedules:*",
			"jobs:*",
			"logs:view",
			"inventory:view",
			"workers:view",
			"cmdb:view",
			"agent:view",
			"agent:generate",
			"agent:analyze",
		},
		Builtin: true,
	},
	"monitor": {
		ID: "monitor", Name: "Monitor",
		Description: "Read-only access for monitoring",
		Permissions: []string{
			"playbooks:view",
			"logs:view",
			"jobs:view",
			"workers:view",
			"cmdb:view",
			"schedules:view",
			"inventory:view",
			"agent:view",
		},
		Builtin: true,
	},
	"servers_admin": {
		ID: "servers_admin", Name: "Server Administrator",
		Description: "Full access to server resources",
		Permissions: []string{
			"playbooks.servers:*",
			"inventory.servers:*",
			"schedules:*",
			"logs:view",
			"jobs:view",
			"cmdb:view",
		},
		Builtin: true,
	},
	"servers_operator": {
		ID: "servers_operator", Name: "Server Operator",
		Description: "Run server playbooks only",
		Permissions: []string{
			"playbooks.servers:run",
			"playbooks.servers:view",
			"logs:view",
			"inventory.servers:view",
			"jobs:view",
			"cmdb:view",
		},
		Builtin: true,
	},
	"network_admin": {
		ID: "network_admin", Name: "Network Administrator",
		Description: "Full access to network resources",
		Permissions: []string{
			"playbooks.network:*",
			"inventory.network:*",
			"schedules:*",
			"logs:view",
			"jobs:view",
			"cmdb:view",
		},
		Builtin: true,
	},
	"network_operator": {
		ID: "network_operator", Name: "Network Operator",
		Description: "Run network playbooks only",
		Permissions: []string{
			"playbooks.network:run",
			"playbooks.network:view",
			"logs:view",
			"inventory.network:view",
			"jobs:view",
			"cmdb:view",
		},
		Builtin: true,
	},
	"developer": {
		ID: "developer", Name: "Developer",
		Description: "Create/edit playbooks, test inventory",
		Permissions: []string{
			"playbooks:edit",
			"playbooks:view",
			"inventory:view",
			"schedules.own:*",
			"jobs:view",
			"logs:view",
			"agent:view",
			"agent:generate",
		},
		Builtin: true,
	},
	"auditor": {
		ID: "auditor", Name: "Auditor",
		Description: "Read-only access including audit logs",
		Permissions: []string{"*:view", "audit:view"},
		Builtin:     true,
	},
}

// BuiltinRoleSlice returns the builtin catalog as a slice in a stable order,
// for seeding the Role store at primary startup.
func BuiltinRoleSlice() []model.Role {
	order := []string{
		"admin", "operator", "monitor", "servers_admin", "servers_operator",
		"network_admin", "network_operator", "developer", "auditor",
	}
	out := make([]model.Role, 0, len(order))
	for _, id := range order {
		out = append(out, BuiltinRoles[id])
	}
	return out
}
