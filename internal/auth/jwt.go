package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type TokenService struct {
	Secret   []byte
	Issuer   string
	Duration time.Duration
}

type Claims struct {
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	TokenVersion int    `json:"token_version"`
	// set only on purpose-tagged tokens (email verification); session
	// tokens must never carry it
	Purpose string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

func (ts TokenService) Sign(u *User) (string, time.Time, error) {
	exp := time.Now().Add(ts.Duration)

	claims := Claims{
		UserID:       u.ID,
		Username:     u.Username,
		Email:        u.Email,
		TokenVersion: u.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.Issuer,
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(ts.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return s, exp, nil
}

func (ts TokenService) Parse(tokenString string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		// enforce HS256
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Purpose != "" {
		// a verification link is not a session
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// Verification tokens are a separate, purpose-tagged kind so a session
// token can never pass as an account-activation link or vice versa.

const verifyPurpose = "verify-email"

// How long the emailed activation link stays valid.
const verifyTokenTTL = 48 * time.Hour

type verifyClaims struct {
	UserID  string `json:"user_id"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

func (ts TokenService) SignVerification(userID string) (string, error) {
	claims := verifyClaims{
		UserID:  userID,
		Purpose: verifyPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(verifyTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(ts.Secret)
	if err != nil {
		return "", fmt.Errorf("sign verification token: %w", err)
	}
	return s, nil
}

// ParseVerification returns the user ID an activation link was issued
// for, rejecting session tokens and expired links.
func (ts TokenService) ParseVerification(tokenString string) (string, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &verifyClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.Secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse verification token: %w", err)
	}

	claims, ok := tok.Claims.(*verifyClaims)
	if !ok || !tok.Valid || claims.Purpose != verifyPurpose {
		return "", fmt.Errorf("invalid verification token")
	}
	return claims.UserID, nil
}
