package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	myMiddleware "mentor-chat/internal/middleware"
)

const Issuer = "mentor-platform"

var ErrInvalidToken = errors.New("invalid token")

// Claims carry the caller identity in "sub" and its role in "role".
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Validator checks HS256 bearer tokens issued by the platform's auth service.
type Validator struct {
	secret []byte
}

func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

func (v *Validator) ValidateToken(tokenString string) (myMiddleware.Caller, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(Issuer))
	if err != nil {
		return myMiddleware.Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return myMiddleware.Caller{}, ErrInvalidToken
	}
	if claims.Role != "initiator" && claims.Role != "responder" {
		return myMiddleware.Caller{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return myMiddleware.Caller{Identity: claims.Subject, Role: claims.Role}, nil
}

// NewToken signs a token the Validator accepts. Production tokens come from
// the auth service; this serves tests and the load generator.
func NewToken(secret, identity, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString([]byte(secret))
}
