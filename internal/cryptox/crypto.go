package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"github.com/dmitrijs2005/patientvault/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	saltLen = 16
	keyLen  = 32
)

var ErrMalformedHash = errors.New("malformed password hash")

func deriveKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, keyLen)
}

// HashPassword derives an argon2id key from password under a fresh random
// salt. The result is salt||key and is what gets stored in users.password_hash.
func HashPassword(password []byte) []byte {
	salt := common.GenerateRandByteArray(saltLen)
	key := deriveKey(password, salt)

	out := make([]byte, 0, saltLen+keyLen)
	out = append(out, salt...)
	return append(out, key...)
}

// VerifyPassword reports whether password matches a value produced by HashPassword.
func VerifyPassword(password []byte, stored []byte) (bool, error) {
	if len(stored) != saltLen+keyLen {
		return false, ErrMalformedHash
	}
	salt, want := stored[:saltLen], stored[saltLen:]
	got := deriveKey(password, salt)
	defer common.WipeByteArray(got)

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// SHA256Hex returns the hex-encoded sha256 digest of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// KeyedHash returns hex(HMAC-SHA256(secret, purpose || ":" || value)).
// The purpose separates digests computed for different uses of the same secret.
func KeyedHash(secret []byte, purpose, value string) string {
	return hex.EncodeToString(keyedSum(secret, purpose, value))
}

func keyedSum(secret []byte, purpose, value string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(purpose))
	mac.Write([]byte{':'})
	mac.Write([]byte(value))
	return mac.Sum(nil)
}

// KeyedDigits derives n decimal digits from HMAC-SHA256(secret, purpose:value).
// n is capped at the digest length.
func KeyedDigits(secret []byte, purpose, value string, n int) string {
	sum := keyedSum(secret, purpose, value)
	if n > len(sum) {
		n = len(sum)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = '0' + sum[i]%10
	}
	return string(out)
}
