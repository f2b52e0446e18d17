package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/patientvault/internal/cryptox"
)

// SentinelIdentifier stands in for QR payloads without a recognisable identifier.
const SentinelIdentifier = "000000000000"

var qrIdentifier = regexp.MustCompile(`\d{12}`)

// ExtractIdentifier returns the first run of 12 consecutive digits in text,
// or SentinelIdentifier when there is none.
func ExtractIdentifier(text string) string {
	if m := qrIdentifier.FindString(strings.TrimSpace(text)); m != "" {
		return m
	}
	return SentinelIdentifier
}

// AccountHandle derives the pseudonymous username for id:
// aad_<last 6 chars>_<first 6 hex of sha1(id)>.
func AccountHandle(id string) string {
	sum := sha1.Sum([]byte(id))
	return fmt.Sprintf("aad_%s_%s", lastN(id, 6), hex.EncodeToString(sum[:])[:6])
}

// MaskIdentifier keeps the last four characters and replaces the rest with
// 'x', in dash-separated blocks of four counted from the right:
// 123412341234 → xxxx-xxxx-1234. Identifiers of four or fewer characters are
// returned unchanged.
func MaskIdentifier(id string) string {
	r := []rune(id)
	if len(r) <= 4 {
		return id
	}
	for i := 0; i < len(r)-4; i++ {
		r[i] = 'x'
	}

	var blocks []string
	for end := len(r); end > 0; end -= 4 {
		start := end - 4
		if start < 0 {
			start = 0
		}
		blocks = append([]string{string(r[start:end])}, blocks...)
	}
	return strings.Join(blocks, "-")
}

// HashIdentifier is the one-way digest stored in patients.aadhaar_hash.
func HashIdentifier(id string) string {
	return cryptox.SHA256Hex(id)
}

func lastN(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// Last4 returns the final four characters of id.
func Last4(id string) string {
	return lastN(id, 4)
}
