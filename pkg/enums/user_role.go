package enums

// UserRole gates storefront operations. Admins may manage any order.
type UserRole string

const (
	UserRoleCustomer UserRole = "user"
	UserRoleAdmin    UserRole = "admin"
)

var userRoles = newSet("user role", UserRoleCustomer, UserRoleAdmin)

func (r UserRole) String() string { return string(r) }
func (r UserRole) IsValid() bool  { return userRoles.has(r) }

func ParseUserRole(value string) (UserRole, error) {
	return userRoles.parse(value)
}
