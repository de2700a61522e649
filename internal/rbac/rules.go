package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"catalog:view",
		"assessment:start",
		"assessment:submit",
		"assessment:view-own",
		"report:view-own",
	},
	"instructor": {
		"catalog:view",
		"catalog:manage",
		"assessment:view-all",
		"report:view-all",
		"users:list",
	},
	"admin": {
		"*", // everything
	},
}
