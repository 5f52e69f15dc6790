package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims are the claims carried by access tokens issued after a guarded login
type TokenClaims struct {
	Type     string `json:"type"`
	Identity string `json:"identity"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
