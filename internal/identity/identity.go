package identity

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

type Role string

const (
	RoleDoctor   Role = "doctor"
	RoleHospital Role = "hospital"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

// Actor is the resolved identity of a caller. The core trusts this
// resolution and does not re-derive it.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

var ErrUnresolved = errors.New("caller identity not resolved")

// Provider resolves an authenticated request to an actor. Authentication
// itself lives outside the core; deployments sit this behind a gateway that
// stamps the identity headers.
type Provider interface {
	Resolve(r *http.Request) (Actor, error)
}

// HeaderProvider reads the actor from X-Actor-Id / X-Actor-Role.
type HeaderProvider struct{}

func (HeaderProvider) Resolve(r *http.Request) (Actor, error) {
	rawID := r.Header.Get("X-Actor-Id")
	rawRole := r.Header.Get("X-Actor-Role")
	if rawID == "" || rawRole == "" {
		return Actor{}, ErrUnresolved
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return Actor{}, ErrUnresolved
	}

	role := Role(rawRole)
	switch role {
	case RoleDoctor, RoleHospital, RoleAdmin:
	default:
		return Actor{}, ErrUnresolved
	}

	return Actor{ID: id, Role: role}, nil
}

type contextKey string

const actorKey contextKey = "actor"

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}
