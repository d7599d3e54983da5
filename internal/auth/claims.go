package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the user token shape of the CRM API. Every token is scoped to one
// project; switching projects means a new token.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	ProjectID string    `json:"project_id"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}
