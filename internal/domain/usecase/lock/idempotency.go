package lock

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/amirhossein-jamali/trade-lock-manager/internal/domain/entity"
)

// fingerprint separator; chosen so field boundaries survive concatenation
const keySeparator = "\x1f"

// KeyDeriver computes a stable idempotency key from the parts of a request
// that identify the logical operation. Two submissions of the same operation
// always derive the same key; incidental differences (timestamps, client
// metadata) never appear in the fingerprint because only the payload's
// declared fingerprint fields participate.
type KeyDeriver struct{}

// NewKeyDeriver creates a new KeyDeriver
func NewKeyDeriver() *KeyDeriver {
	return &KeyDeriver{}
}

// DeriveKey hashes resource id, owner id, operation type and the payload
// fingerprint into a hex-encoded sha256 digest
func (d *KeyDeriver) DeriveKey(resourceID, ownerID string, payload entity.Payload) string {
	h := sha256.New()
	write := func(part string) {
		h.Write([]byte(part))
		h.Write([]byte(keySeparator))
	}

	write(resourceID)
	write(ownerID)
	write(string(payload.OperationType()))
	for _, field := range payload.FingerprintFields() {
		write(field)
	}

	return hex.EncodeToString(h.Sum(nil))
}
