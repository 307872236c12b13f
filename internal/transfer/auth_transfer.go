package transfer

import "github.com/golang-jwt/jwt/v5"

// CustomClaims identifies the operator behind an API request. Actor is
// written to the ledger for every action they take.
type CustomClaims struct {
	Actor string `json:"actor"`
	jwt.RegisteredClaims
}

type LoginRequest struct {
	ApiKey string `json:"api_key" validate:"required"`
}
