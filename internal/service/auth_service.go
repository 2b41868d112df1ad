package service

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"escaperoom/internal/model"
)

// AuthService issues and validates identity tokens (solo players and the
// global leaderboard) and room-scoped admin/player tokens.
type AuthService struct {
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(secret string, tokenTTL time.Duration) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthService{
		jwtSecret: []byte(secret),
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}
}

// IssueIdentity stands in for the external identity provider: it mints a
// stable user id and binds it to a display name.
func (s *AuthService) IssueIdentity(displayName string) (*model.IdentityResponse, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = "Player"
	}
	userID := "u_" + uuid.New().String()

	now := s.now()
	claims := &model.IdentityClaims{
		UserID:      userID,
		DisplayName: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(30 * 24 * time.Hour)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}
	return &model.IdentityResponse{Token: token, UserID: userID, DisplayName: name}, nil
}

// ValidateIdentityToken validates an identity JWT and returns claims
func (s *AuthService) ValidateIdentityToken(tokenString string) (*model.IdentityClaims, error) {
	claims := &model.IdentityClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateRoomToken creates a room-scoped token. playerID is empty for admins.
func (s *AuthService) GenerateRoomToken(roomCode string, role model.RoomRole, playerID string) (string, error) {
	now := s.now()
	claims := &model.RoomClaims{
		RoomCode: roomCode,
		PlayerID: playerID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateRoomToken validates a room JWT and returns claims
func (s *AuthService) ValidateRoomToken(tokenString string) (*model.RoomClaims, error) {
	claims := &model.RoomClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.RoomCode == "" || (claims.Role != model.RoleAdmin && claims.Role != model.RolePlayer) {
		return nil, ErrInvalidToken
	}
	if claims.Role == model.RolePlayer && claims.PlayerID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
