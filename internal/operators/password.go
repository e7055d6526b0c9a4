package operators

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Hasher produces bcrypt hashes and still accepts the salted SHA-256 hex
// digests written by earlier deployments. A legacy match reports that the
// caller should store a fresh bcrypt hash.
type Hasher struct {
	salt string
	cost int
}

func NewHasher(salt string) *Hasher {
	return &Hasher{salt: salt, cost: bcrypt.DefaultCost}
}

func (h *Hasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("operators: hash password: %w", err)
	}
	return string(hash), nil
}

// Verify checks password against stored. rehash is true when the password
// matched but stored uses the legacy scheme or a lower bcrypt cost.
func (h *Hasher) Verify(stored, password string) (ok, rehash bool) {
	if isBcrypt(stored) {
		if bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) != nil {
			return false, false
		}
		cost, err := bcrypt.Cost([]byte(stored))
		return true, err == nil && cost < h.cost
	}
	want := LegacyHash(h.salt, password)
	got := strings.ToLower(strings.TrimSpace(stored))
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return false, false
	}
	return true, true
}

// LegacyHash is hex(sha256(salt + ":" + password)).
func LegacyHash(salt, password string) string {
	sum := sha256.Sum256([]byte(salt + ":" + password))
	return hex.EncodeToString(sum[:])
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}
