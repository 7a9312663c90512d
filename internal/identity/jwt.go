package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// AppClaims defines our custom JWT claims structure.
type AppClaims struct {
	jwt.RegisteredClaims
}

// JWTResolver validates HMAC-signed tokens whose 'sub' claim carries the
// user ID.
type JWTResolver struct {
	secret []byte
}

var _ Resolver = (*JWTResolver)(nil)

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

func (r *JWTResolver) Resolve(_ context.Context, tokenString string) (string, error) {
	if tokenString == "" {
		return "", errors.New("token is empty")
	}

	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return r.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(*AppClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("token missing 'sub' claim")
	}
	return claims.Subject, nil
}
