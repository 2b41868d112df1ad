package model

import "github.com/golang-jwt/jwt/v5"

type RoomRole string

const (
	RoleAdmin  RoomRole = "admin"
	RolePlayer RoomRole = "player"
)

// IdentityClaims are issued by the identity provider and identify a human
// across rooms (solo rooms and the global leaderboard key on UserID).
type IdentityClaims struct {
	UserID      string `json:"uid"`
	DisplayName string `json:"name"`
	jwt.RegisteredClaims
}

// RoomClaims are room-scoped. A solo owner holds an admin token that also
// carries their PlayerID.
type RoomClaims struct {
	RoomCode string   `json:"roomCode"`
	PlayerID string   `json:"playerId,omitempty"`
	Role     RoomRole `json:"role"`
	jwt.RegisteredClaims
}

// IdentityRequest is the request body for issuing an identity token
type IdentityRequest struct {
	DisplayName string `json:"displayName"`
}

// IdentityResponse is returned after an identity token is issued
type IdentityResponse struct {
	Token       string `json:"token"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}
