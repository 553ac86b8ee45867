// Package auth verifies identity tokens issued by the identity provider.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the identity claims carried by a token. The subject is the uid.
type Claims struct {
	jwt.RegisteredClaims
	Email             string `json:"email,omitempty"`
	Name              string `json:"name,omitempty"`
	Picture           string `json:"picture,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
}

func (c *Claims) Identity() models.Identity {
	return models.Identity{
		UID:         c.Subject,
		Email:       c.Email,
		Username:    c.PreferredUsername,
		DisplayName: c.Name,
		PhotoURL:    c.Picture,
	}
}

type Verifier struct {
	secretKey []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("identity: %w", common.ErrMissingSecret)
	}
	return &Verifier{secretKey: []byte(secret)}, nil
}

// Verify checks the signature and expiry of tokenString and returns the
// identity it asserts.
func (v *Verifier) Verify(tokenString string) (models.Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Identity{}, fmt.Errorf("%w: token expired", common.ErrInvalidToken)
		}
		return models.Identity{}, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return models.Identity{}, common.ErrInvalidToken
	}

	return claims.Identity(), nil
}

// GenerateToken signs a token for identity. The server never issues tokens
// itself; this serves development setups and tests.
func GenerateToken(identity models.Identity, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Email:             identity.Email,
		Name:              identity.DisplayName,
		Picture:           identity.PhotoURL,
		PreferredUsername: identity.Username,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}
