// Package authn mints and verifies operator tokens: the credential internal
// tooling (moderation review, account bans/destruction) authenticates with,
// kept separate from the end-user session tokens in package server.
package authn

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/duskline/backend/cmn"
)

// Role is a total order: an operator holding a role may perform anything
// gated at that role or below.
type Role int

const (
	GuestRole Role = iota
	ModeratorRole
	AdminRole
)

func (r Role) String() string {
	switch r {
	case AdminRole:
		return "admin"
	case ModeratorRole:
		return "moderator"
	default:
		return "guest"
	}
}

var (
	ErrInvalidToken = errors.New("authn: invalid token")
	ErrTokenExpired = errors.New("authn: token expired")
)

// OperatorToken is the decoded form of an operator JWT.
type OperatorToken struct {
	OperatorID string    `json:"operator_id"`
	Role       Role      `json:"role"`
	Expires    time.Time `json:"expires"`
}

type claims struct {
	OperatorID string `json:"operator_id"`
	Role       int    `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken mints a signed, expiring operator token. secret is the server's
// HMAC signing key (config.AdminConfig.OperatorTokenSecret).
func IssueToken(operatorID string, role Role, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		OperatorID: operatorID,
		Role:       int(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString([]byte(secret))
}

// ParseToken verifies the signature and expiry and decodes the claims.
func ParseToken(tokenStr, secret string) (*OperatorToken, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(tk *jwt.Token) (interface{}, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("authn: unexpected signing method %v", tk.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return &OperatorToken{
		OperatorID: c.OperatorID,
		Role:       Role(c.Role),
		Expires:    c.ExpiresAt.Time,
	}, nil
}

// Gate verifies a presented token string authorizes at least `min` role,
// returning the decoded token for the caller to log/attribute the action to.
// The transport layer calls this before moderation.Pipeline's human-decide
// methods or db.WriteCommands.Admin()'s Ban/DestroyAccount.
func Gate(tokenStr, secret string, min Role) (*OperatorToken, error) {
	tok, err := ParseToken(tokenStr, secret)
	if err != nil {
		return nil, err
	}
	if tok.Role < min {
		return nil, cmn.ErrForbidden("operator role " + tok.Role.String() + " cannot perform a " + min.String() + "-level action")
	}
	return tok, nil
}
