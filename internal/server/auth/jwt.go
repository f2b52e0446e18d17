// Package auth issues and parses the signed session tokens carried in the
// session cookie.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/patientvault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the registered claims plus the authenticated patient.
type Claims struct {
	jwt.RegisteredClaims
	PatientID string `json:"pid"`
}

func GenerateToken(patientID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		PatientID: patientID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetPatientIDFromToken validates tokenString and returns its patient ID.
// Expired tokens yield common.ErrTokenExpired; anything else that fails
// validation yields an error wrapping common.ErrInvalidToken.
func GetPatientIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.PatientID == "" {
		return "", common.ErrInvalidToken
	}

	return claims.PatientID, nil
}
