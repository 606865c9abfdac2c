package models

import "github.com/golang-jwt/jwt/v5"

// Role identifies the capacity an actor acts in.
type Role string

const (
	RolePOC     Role = "poc"
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
	RoleSystem  Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RolePOC, RoleAdmin, RoleStudent, RoleSystem:
		return true
	}
	return false
}

// Actor is the identity supplied by the auth layer. It is recorded, never verified here.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Session is passed into every engine call in place of ambient request state.
type Session struct {
	Actor     Actor  `json:"actor"`
	RequestID string `json:"request_id,omitempty"`
}

// SystemSession is used by background workers.
func SystemSession(component string) Session {
	return Session{Actor: Actor{ID: component, Role: RoleSystem}}
}

// JWTClaims represents the actor token payload issued by the identity provider.
type JWTClaims struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Pagination describes a page of results.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}
