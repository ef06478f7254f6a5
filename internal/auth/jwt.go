package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleInstructor is the only role issued today.
const RoleInstructor = "instructor"

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrIssuerMismatch = errors.New("issuer mismatch")
)

// Claims represents an instructor access token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ProofClaims is the signed part of an attendance proof.
type ProofClaims struct {
	SessionID   string `json:"sid"`
	StudentID   string `json:"stu"`
	SessionCode string `json:"code"`
	jwt.RegisteredClaims
}

// Issue issues a signed instructor token valid for ttl.
func Issue(subject, issuer, key string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		Role: RoleInstructor,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Parse validates an instructor token and returns its claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	var claims Claims
	if err := parse(tokenStr, key, issuer, &claims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// SignProof signs the identity of a check-in. Proofs do not expire.
func SignProof(key, issuer, sessionID, studentID, sessionCode string, at time.Time) (string, error) {
	claims := ProofClaims{
		SessionID:   sessionID,
		StudentID:   studentID,
		SessionCode: sessionCode,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  studentID,
			IssuedAt: jwt.NewNumericDate(at),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
}

// VerifyProof validates a proof signature and returns what it vouches for.
func VerifyProof(tokenStr, key, issuer string) (ProofClaims, error) {
	var claims ProofClaims
	if err := parse(tokenStr, key, issuer, &claims); err != nil {
		return ProofClaims{}, err
	}
	return claims, nil
}

func parse(tokenStr, key, issuer string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return errors.Join(ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	if iss, _ := claims.GetIssuer(); issuer != "" && iss != issuer {
		return ErrIssuerMismatch
	}
	return nil
}
