package models

import "github.com/golang-jwt/jwt/v5"

// IdentityClaims are the claims read from an identity provider access token.
type IdentityClaims struct {
	jwt.RegisteredClaims
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Scope    string   `json:"scope,omitempty"`
	Groups   []string `json:"cognito:groups,omitempty"`
}

// InGroup checks if the claims include a specific group.
func (c *IdentityClaims) InGroup(group string) bool {
	for _, g := range c.Groups {
		if g == group {
			return true
		}
	}
	return false
}
