// keypair.go - Ed25519 keypair handling for owners and the relayer identity.
//
// Keys load from either a base58-encoded 64-byte secret (environment style)
// or a JSON array of 64 bytes on disk, the format ledger tooling writes.

package ownership

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mr-tron/base58"
)

// Keypair is an Ed25519 signing identity.
type Keypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeypair creates a fresh identity from crypto/rand.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keypair generation failed: %w", err)
	}
	return &Keypair{Public: pub, Private: priv}, nil
}

// KeypairFromBase58 decodes a 64-byte secret key in base58.
func KeypairFromBase58(secret string) (*Keypair, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 secret key: %w", err)
	}
	return keypairFromSecret(raw)
}

// LoadKeypair reads a JSON array of 64 bytes from path.
func LoadKeypair(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair file: %w", err)
	}
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, fmt.Errorf("keypair file is not a JSON byte array: %w", err)
	}
	secret := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("keypair file byte %d out of range", i)
		}
		secret[i] = byte(v)
	}
	return keypairFromSecret(secret)
}

// Save writes the keypair to path as a JSON array of 64 bytes.
func (k *Keypair) Save(path string) error {
	ints := make([]int, ed25519.PrivateKeySize)
	for i, b := range k.Private {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0600)
}

func keypairFromSecret(secret []byte) (*Keypair, error) {
	if len(secret) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid secret key length: %d, expected %d", len(secret), ed25519.PrivateKeySize)
	}
	priv := ed25519.PrivateKey(secret)
	return &Keypair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}

// Address returns the base58 form of the public key, the identity string
// used everywhere on the wire.
func (k *Keypair) Address() string {
	return base58.Encode(k.Public)
}

// Sign signs message bytes and returns the base58 signature.
func (k *Keypair) Sign(message []byte) string {
	return base58.Encode(ed25519.Sign(k.Private, message))
}
