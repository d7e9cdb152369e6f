package deploy

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"strings"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

// KeyPair holds a deployment signing key.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair makes a fresh ed25519 keypair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "could not generate keypair")
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// SaveKey writes the private key to path, base64 encoded, readable only
// by the owner.
func (kp *KeyPair) SaveKey(path string) error {
	enc := base64.StdEncoding.EncodeToString(kp.Private)
	if err := os.WriteFile(path, []byte(enc+"\n"), 0600); err != nil {
		return errors.Wrapf(err, "could not write key file %s", path)
	}
	return nil
}

// LoadKey reads a private key saved by SaveKey.
func LoadKey(path string) (*KeyPair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read key file %s", path)
	}
	dec, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, errors.Wrapf(err, "key file %s is not base64", path)
	}
	if len(dec) != ed25519.PrivateKeySize {
		return nil, errors.Errorf("key file %s holds %d bytes, want %d", path, len(dec), ed25519.PrivateKeySize)
	}
	priv := ed25519.PrivateKey(dec)
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.Errorf("key file %s: unexpected public key type", path)
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// Sign signs the sha3-256 digest of the encoded bundle.
func (kp *KeyPair) Sign(b *Bundle) []byte {
	digest := sha3.Sum256(b.Encode())
	return ed25519.Sign(kp.Private, digest[:])
}

// Verify checks a bundle signature against a public key.
func Verify(pub ed25519.PublicKey, b *Bundle, sig []byte) bool {
	digest := sha3.Sum256(b.Encode())
	return ed25519.Verify(pub, digest[:], sig)
}
