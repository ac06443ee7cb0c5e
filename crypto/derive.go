package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Namespace separates derived addresses of different record kinds so that the
// same (asset, principal) pair maps to distinct keys per kind.
type Namespace byte

// Seeds is the full input of a derivation. Holding the seeds of an address is
// the only way to authorize spending from it; no private key exists.
type Seeds struct {
	Namespace Namespace `json:"namespace"`
	Parts     []string  `json:"parts"`
}

// Hash returns the lowercase hex SHA-256 of data. Block, transaction and
// state-root hashes all use it.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Address returns the address derived from s.
func (s Seeds) Address() string {
	return Derive(s.Namespace, s.Parts...)
}

// Derive deterministically computes a 32-byte hex address from a namespace
// tag and an ordered tuple of identities. Each part is length-prefixed so that
// ("ab","c") and ("a","bc") never collide.
func Derive(ns Namespace, parts ...string) string {
	h := sha256.New()
	h.Write([]byte("tolmarket/derive"))
	h.Write([]byte{byte(ns)})
	var lenBuf [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p)))
		h.Write(lenBuf[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
