package enums

// Role is the marketplace role carried on every access token.
type Role string

const (
	RoleBuyer     Role = "buyer"
	RoleFarmer    Role = "farmer"
	RoleLogistics Role = "logistics"
	RoleAdmin     Role = "admin"
)

var roles = newSet("role", RoleBuyer, RoleFarmer, RoleLogistics, RoleAdmin)

func (r Role) String() string { return string(r) }
func (r Role) IsValid() bool  { return roles.has(r) }

func ParseRole(value string) (Role, error) {
	return roles.parse(value)
}
