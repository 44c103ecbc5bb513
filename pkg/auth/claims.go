package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bazaarly/bazaarly-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	ActorID   uuid.UUID
	ActorKind enums.WalletOwnerKind
	JTI       string
}

// AccessTokenClaims is the typed JWT issued to buyers and vendors. The
// actor kind decides which wallet and which resources a request may
// touch.
type AccessTokenClaims struct {
	ActorID   uuid.UUID             `json:"actor_id"`
	ActorKind enums.WalletOwnerKind `json:"actor_kind"`
	jwt.RegisteredClaims
}
