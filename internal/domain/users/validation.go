package users

import (
	"strings"

	"github.com/Togather-Foundation/agenda/internal/auth"
	"github.com/Togather-Foundation/agenda/internal/sanitize"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

const (
	maxNameLength     = 200
	maxPositionLength = 200
	maxLoginLength    = 64
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return auth.ValidationError{Field: "email", Message: "is required"}
	}
	if err := validate.Var(email, "email,max=254"); err != nil {
		return auth.ValidationError{Field: "email", Message: "must be a valid email address"}
	}
	return nil
}

// normalizeLogin returns nil for an absent login so the unique index ignores it.
func normalizeLogin(login string) (*string, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, nil
	}
	if len(login) > maxLoginLength {
		return nil, auth.ValidationError{Field: "login", Message: "is too long"}
	}
	if err := validate.Var(login, "printascii"); err != nil || strings.ContainsAny(login, " @") {
		return nil, auth.ValidationError{Field: "login", Message: "may not contain spaces or @"}
	}
	return &login, nil
}

func validatePassword(password string) error {
	if password == "" {
		return auth.ValidationError{Field: "password", Message: "is required"}
	}
	return nil
}

func cleanFullName(name string) (string, error) {
	name = sanitize.Text(name)
	if name == "" {
		return "", auth.ValidationError{Field: "full_name", Message: "is required"}
	}
	if len([]rune(name)) > maxNameLength {
		return "", auth.ValidationError{Field: "full_name", Message: "is too long"}
	}
	return name, nil
}

func cleanPosition(position string) (string, error) {
	position = sanitize.Text(position)
	if len([]rune(position)) > maxPositionLength {
		return "", auth.ValidationError{Field: "position", Message: "is too long"}
	}
	return position, nil
}

// parseRole defaults an empty role to user.
func parseRole(role string) (auth.Role, error) {
	if strings.TrimSpace(role) == "" {
		return auth.RoleUser, nil
	}
	return auth.ParseRole(role)
}
