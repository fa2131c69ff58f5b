package pos

type Role string

const (
	RoleStaff   Role = "STAFF"
	RoleManager Role = "MANAGER"
	RoleOwner   Role = "OWNER"
)

// Caller identifies the employee performing an operation. Authentication is
// done upstream; handlers only carry the resolved identity down.
type Caller struct {
	EmployeeID string
	BusinessID string
	Role       Role
}

// CanManage reports whether the caller may act on orders they did not create.
func (c Caller) CanManage() bool {
	return c.Role == RoleManager || c.Role == RoleOwner
}
