// Package sha256 computes content digests used as HTTP entity tags for report
// payloads.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hasher produces hex SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashJSON hashes the JSON encoding of v. encoding/json sorts map keys, so
// equal values hash equally.
func (h *Hasher) HashJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode for hashing: %w", err)
	}
	return h.Hash(data)
}

// ETag hashes v and quotes the digest as a strong entity tag.
func (h *Hasher) ETag(v any) (string, error) {
	digest, err := h.HashJSON(v)
	if err != nil {
		return "", err
	}
	return `"` + digest + `"`, nil
}
