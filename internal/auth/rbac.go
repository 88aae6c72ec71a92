package auth

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole accepts only the known roles. An empty string is not a role.
func ParseRole(value string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", ValidationError{Field: "role", Message: fmt.Sprintf("must be one of: %s, %s", RoleUser, RoleAdmin)}
	}
}

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}

func IsAdmin(role Role) bool {
	return role == RoleAdmin
}

// Operation is a privileged action checked by Authorize.
type Operation int

const (
	OpReadEvents Operation = iota + 1
	OpCreateEvent
	OpUpdateEvent
	OpAssignResponsible
	OpDeleteEvent
	OpReadUsers
	OpCreateUser
	OpUpdateUser
	OpUpdateOwnProfile
	OpDeleteUser
)

var operationNames = map[Operation]string{
	OpReadEvents:        "events.read",
	OpCreateEvent:       "events.create",
	OpUpdateEvent:       "events.update",
	OpAssignResponsible: "events.assign_responsible",
	OpDeleteEvent:       "events.delete",
	OpReadUsers:         "users.read",
	OpCreateUser:        "users.create",
	OpUpdateUser:        "users.update",
	OpUpdateOwnProfile:  "users.update_self",
	OpDeleteUser:        "users.delete",
}

func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return fmt.Sprintf("operation(%d)", int(op))
}

type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// requiredRole is the minimum role per operation. An empty value means any
// authenticated role. Operations missing from the table are denied.
var requiredRole = map[Operation]Role{
	OpReadEvents:        "",
	OpCreateEvent:       "",
	OpUpdateEvent:       "",
	OpAssignResponsible: RoleAdmin,
	OpDeleteEvent:       RoleAdmin,
	OpReadUsers:         "",
	OpCreateUser:        RoleAdmin,
	OpUpdateUser:        RoleAdmin,
	OpUpdateOwnProfile:  "",
	OpDeleteUser:        RoleAdmin,
}

func Authorize(role Role, op Operation) Decision {
	if !role.Valid() {
		return Deny
	}
	required, ok := requiredRole[op]
	if !ok {
		return Deny
	}
	switch required {
	case "":
		return Allow
	case RoleAdmin:
		if role == RoleAdmin {
			return Allow
		}
		return Deny
	default:
		return Deny
	}
}

// Require is Authorize folded into an error for service code.
func Require(role Role, op Operation) error {
	if Authorize(role, op) == Allow {
		return nil
	}
	return fmt.Errorf("%w: %s not permitted for role %q", ErrForbidden, op, role)
}
