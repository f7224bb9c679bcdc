package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Role is a capability granted by the identity provider.
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleCoordinator Role = "COORDINATOR"
	RoleInstructor  Role = "INSTRUCTOR"
	RoleApprentice  Role = "APPRENTICE"
)

// JWTClaims represents the payload of access tokens issued by the identity provider.
// The subject carries the actor id.
type JWTClaims struct {
	Roles    []Role `json:"roles"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}

// ActorID returns the authenticated principal identifier.
func (c *JWTClaims) ActorID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}

// HasRole reports whether any of roles is granted.
func (c *JWTClaims) HasRole(roles ...Role) bool {
	if c == nil {
		return false
	}
	for _, granted := range c.Roles {
		for _, role := range roles {
			if granted == role {
				return true
			}
		}
	}
	return false
}
