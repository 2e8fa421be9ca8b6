/*
Package access resolves who is signing in and which workspace they land in.

There is no credential check: the cooperative's front desk picks a user and
the engine answers with a typed Role. Unknown names are rejected rather than
guessed from substrings.
*/
package access

import (
	"strings"

	"github.com/majani/coop-engine/generic"
)

type Role string

const (
	RoleClerk            Role = "Clerk"
	RoleAdministrator    Role = "Administrator"
	RoleFarmer           Role = "Farmer"
	RoleExtensionOfficer Role = "Extension Officer"
	RoleManager          Role = "Manager"
	RolePayrollAdmin     Role = "Payroll Administrator"
)

var roles = []Role{RoleClerk, RoleAdministrator, RoleFarmer, RoleExtensionOfficer, RoleManager, RolePayrollAdmin}

// ParseRole matches a role name, case-insensitively.
func ParseRole(s string) (Role, error) {
	for _, r := range roles {
		if strings.EqualFold(string(r), strings.TrimSpace(s)) {
			return r, nil
		}
	}
	return "", &generic.FieldError{Field: "role", Message: "unknown role " + s}
}

// Workspace is the application surface a role works in.
type Workspace string

const (
	WorkspaceMobile Workspace = "mobile-app"
	WorkspaceAdmin  Workspace = "admin-dashboard"
	WorkspaceFarmer Workspace = "farmer-portal"
)

func (r Role) Workspace() Workspace {
	switch r {
	case RoleClerk:
		return WorkspaceMobile
	case RoleFarmer:
		return WorkspaceFarmer
	default:
		return WorkspaceAdmin
	}
}

type User struct {
	Username string
	Name     string
	Role     Role
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return &generic.FieldError{Field: "username", Message: "is required"}
	}
	if strings.TrimSpace(u.Name) == "" {
		return &generic.FieldError{Field: "name", Message: "is required"}
	}
	if _, err := ParseRole(string(u.Role)); err != nil {
		return err
	}
	return nil
}

// Member is a registered farmer who can sign in to the farmer portal.
type Member struct {
	ID   string
	Name string
}

// Directory resolves sign-in names against staff and farmers.
type Directory struct {
	Users   []User
	Members []Member
}

// Resolve finds staff by username, then farmers by id, both
// case-insensitively. Anything else is ErrUserNotFound.
func (d Directory) Resolve(username string) (User, error) {
	name := strings.TrimSpace(username)
	if name == "" {
		return User{}, &generic.FieldError{Field: "username", Message: "is required"}
	}
	for _, u := range d.Users {
		if strings.EqualFold(u.Username, name) {
			return u, nil
		}
	}
	for _, m := range d.Members {
		if strings.EqualFold(m.ID, name) {
			return User{Username: m.ID, Name: m.Name, Role: RoleFarmer}, nil
		}
	}
	return User{}, generic.ErrUserNotFound
}

// DefaultUsers are the staff accounts a new installation starts with.
func DefaultUsers() []User {
	return []User{
		{Username: "admin", Name: "System Administrator", Role: RoleAdministrator},
		{Username: "clerk1", Name: "John Doe", Role: RoleClerk},
		{Username: "clerk2", Name: "Jane Smith", Role: RoleClerk},
		{Username: "manager", Name: "Operations Manager", Role: RoleManager},
		{Username: "payroll", Name: "Finance Lead", Role: RolePayrollAdmin},
		{Username: "officer", Name: "Field Officer", Role: RoleExtensionOfficer},
	}
}
