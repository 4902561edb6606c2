package ports

import (
	"github.com/google/uuid"
)

// ActorTokens resolves a bearer token to the acting user's identity.
type ActorTokens interface {
	ActorID(token string) (uuid.UUID, error)
}
