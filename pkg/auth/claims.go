package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	AccountID string
	Role      enums.AccountRole
	JTI       string
}

// AccessTokenClaims represents the typed JWT presented by callers.
type AccessTokenClaims struct {
	AccountID string            `json:"account_id"`
	Role      enums.AccountRole `json:"role"`
	jwt.RegisteredClaims
}
