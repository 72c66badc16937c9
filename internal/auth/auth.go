package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

const (
	// GuestIdPrefix marks generated, non-durable identities.
	GuestIdPrefix = "guest-"

	guestTokenTTL = 3 * time.Hour

	userIdClaim   = "id"
	userNameClaim = "name"
	expClaim      = "exp"

	// guest tokens carry their identity under different claim names
	guestIdClaim   = "userId"
	guestNameClaim = "userName"
)

// Identity is the result of a successful token verification.
type Identity struct {
	UserId   string
	UserName string
}

// VerifyToken validates a signed bearer token and extracts the identity it
// carries. Verification fails closed: any malformed, expired or otherwise
// unverifiable token yields an error, never a trusted identity.
func VerifyToken(signingKey []byte, tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	userId, _ := claims[userIdClaim].(string)
	if userId == "" {
		userId, _ = claims[guestIdClaim].(string)
	}
	if userId == "" {
		return nil, fmt.Errorf("no valid user id in token")
	}

	userName, _ := claims[userNameClaim].(string)
	if userName == "" {
		userName, _ = claims[guestNameClaim].(string)
	}
	if userName == "" {
		userName = "Guest"
	}

	return &Identity{UserId: userId, UserName: userName}, nil
}

// NewGuestIdentity mints a fresh anonymous identity for a connection
// without a verifiable token.
func NewGuestIdentity() Identity {
	return Identity{
		UserId:   GuestIdPrefix + uuid.NewString(),
		UserName: "Guest",
	}
}

// IsGuestId reports whether an id was generated rather than supplied by a
// verified token.
func IsGuestId(id string) bool {
	return len(id) >= len(GuestIdPrefix) && id[:len(GuestIdPrefix)] == GuestIdPrefix
}

// IssueGuestToken creates a short-lived signed token for an anonymous
// participant. The token carries the generated guest id so the client can
// reuse it across reconnects within the validity window.
func IssueGuestToken(signingKey []byte) (token, guestId string, err error) {
	guestId = GuestIdPrefix + uuid.NewString()

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId":          guestId,
		"userName":        "Guest",
		"isGuest":         true,
		"isAuthenticated": false,
		expClaim:          time.Now().Add(guestTokenTTL).Unix(),
	})

	token, err = t.SignedString(signingKey)
	if err != nil {
		return "", "", fmt.Errorf("sign guest token: %w", err)
	}

	return token, guestId, nil
}
