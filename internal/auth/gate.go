package auth

import (
	"context"
	"errors"
)

// Identity is the resolved caller of a request. The zero value is anonymous.
type Identity struct {
	User *User
}

// Anonymous reports whether the caller carries no resolved user.
func (id Identity) Anonymous() bool { return id.User == nil }

// RoleNames returns the caller's role names, nil for anonymous callers.
func (id Identity) RoleNames() []string {
	if id.User == nil {
		return nil
	}
	names := make([]string, 0, len(id.User.Roles))
	for _, role := range id.User.Roles {
		names = append(names, role.Name)
	}
	return names
}

// Directory is the read surface of the identity store that the gate needs.
type Directory interface {
	Find(ctx context.Context, id string) (*User, error)
}

// Gate is the per-request guard: Identify resolves the caller, Authorize
// decides. Request handlers consume only this component.
type Gate struct {
	tokens    *TokenService
	directory Directory
}

func NewGate(tokens *TokenService, directory Directory) (*Gate, error) {
	if tokens == nil {
		return nil, errors.New("token service is required")
	}
	if directory == nil {
		return nil, errors.New("identity directory is required")
	}
	return &Gate{tokens: tokens, directory: directory}, nil
}

// Identify resolves a bearer token to an identity. An absent token, a token
// that fails verification, or a subject that no longer resolves to an active
// user all yield the anonymous identity; individual operations decide whether
// anonymous access is acceptable. Only infrastructure failures return an error.
func (g *Gate) Identify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, nil
	}
	subject, err := g.tokens.Verify(ctx, token, TokenKindAccess)
	if err != nil {
		if errors.Is(err, ErrExpired) || errors.Is(err, ErrRevoked) || errors.Is(err, ErrMalformed) {
			return Identity{}, nil
		}
		return Identity{}, err
	}
	user, err := g.directory.Find(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, nil
		}
		return Identity{}, err
	}
	if !user.Active {
		return Identity{}, nil
	}
	return Identity{User: user}, nil
}

// Authorize enforces a required role set. Operations with no requirement pass
// through for any identity, anonymous included. Exactly three outcomes exist:
// nil (allow), ErrUnauthenticated, ErrForbidden.
func (g *Gate) Authorize(identity Identity, required ...string) error {
	return Authorize(identity, required...)
}

// Authorize is the pure decision behind Gate.Authorize; it needs no gate state.
func Authorize(identity Identity, required ...string) error {
	if len(required) == 0 {
		return nil
	}
	if identity.Anonymous() {
		return ErrUnauthenticated
	}
	for _, name := range required {
		if HasRole(identity.User, name) {
			return nil
		}
	}
	return ErrForbidden
}
