package rbac

// Permissions checked by the HTTP routes.
const (
	PermBranchView = "branch.view"
	PermBranchEdit = "branch.edit"
	PermAuditView  = "audit.view"
)
