package auth

import (
	"context"
	"strconv"
)

// Principal is the verified caller of a protected operation. It is built from
// the stored account, not from token claims alone.
type Principal struct {
	UserID int64
	Email  string
	Role   Role
}

func (p Principal) IsAdmin() bool {
	return IsAdmin(p.Role)
}

// Actor is the label audit entries use for this caller.
func (p Principal) Actor() string {
	if p.Email != "" {
		return p.Email
	}
	return "user:" + strconv.FormatInt(p.UserID, 10)
}

type principalKey struct{}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
