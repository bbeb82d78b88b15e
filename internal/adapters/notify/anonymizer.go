package notify

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

const keyContext = "submission-guard notify ip anonymisation v1"

// Anonymizer replaces source addresses with a keyed hash so alerts can be
// correlated without disclosing the address
type Anonymizer struct {
	key [32]byte
}

// NewAnonymizer derives the hashing key from secret. An empty secret yields a
// random key, so tokens are only stable for the lifetime of the process.
func NewAnonymizer(secret string) *Anonymizer {
	a := &Anonymizer{}
	if secret == "" {
		_, _ = rand.Read(a.key[:])
		return a
	}
	blake3.DeriveKey(keyContext, []byte(secret), a.key[:])
	return a
}

// IP returns the anonymised token for ip
func (a *Anonymizer) IP(ip string) string {
	if ip == "" {
		return "unknown"
	}
	hasher, err := blake3.NewKeyed(a.key[:])
	if err != nil {
		return "anon"
	}
	_, _ = hasher.Write([]byte(ip))
	sum := hasher.Sum(nil)
	return "anon-" + hex.EncodeToString(sum[:6])
}
