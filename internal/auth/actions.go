package auth

// Objects guarded by the enforcer.
const (
	ObjUsers = "users"
	ObjRoles = "roles"
)

// Actions on those objects.
const (
	ActList   = "list"
	ActRead   = "read"
	ActCreate = "create"
	ActUpdate = "update"
	ActDelete = "delete"
)

// DefaultPolicy grants the admin surface to ADMIN and to Keycloak's
// manage-users role. USER and EDITOR get nothing here.
var DefaultPolicy = []string{
	"p, role:ADMIN, users, *",
	"p, role:ADMIN, roles, *",
	"p, role:manage-users, users, *",
	"p, role:manage-users, roles, list",
}
