// Package cryptoenc implements the versioned, transparent field-level
// encryption codec PHI string fields pass through on their way to and
// from the relational store. It follows the small interface-plus-
// concrete-implementation shape the teacher repo uses for its
// algorithm-pluggable CryptoProvider in internal/federation, but here
// the single supported algorithm is AES-256-GCM, because spec.md §4.2
// fixes the on-disk ciphertext layout to that one scheme.
package cryptoenc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pazpaz/backend/internal/apperr"
)

const nonceSize = 12
const tagSize = 16

// Key is one versioned AES-256 data-encryption key.
type Key struct {
	Version string
	Raw     []byte // must be 32 bytes
}

// Codec encrypts and decrypts PHI strings using a versioned key set.
// The active version is used for every new encryption; all known
// versions remain decryptable indefinitely (spec.md §4.2).
type Codec struct {
	active   string
	keys     map[string]cipher.AEAD
	rawByVer map[string][]byte // retained for GPG backup export
}

// NewCodec builds a Codec from the active version name and the full
// set of known keys (old and new). It fails if the active version is
// not present in keys or if any key is not exactly 32 bytes.
func NewCodec(activeVersion string, keys []Key) (*Codec, error) {
	c := &Codec{active: activeVersion, keys: make(map[string]cipher.AEAD), rawByVer: make(map[string][]byte)}
	for _, k := range keys {
		if len(k.Raw) != 32 {
			return nil, fmt.Errorf("cryptoenc: key version %s must be 32 bytes, got %d", k.Version, len(k.Raw))
		}
		block, err := aes.NewCipher(k.Raw)
		if err != nil {
			return nil, fmt.Errorf("cryptoenc: building cipher for version %s: %w", k.Version, err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("cryptoenc: building GCM for version %s: %w", k.Version, err)
		}
		c.keys[k.Version] = aead
		c.rawByVer[k.Version] = append([]byte(nil), k.Raw...)
	}
	if _, ok := c.keys[activeVersion]; !ok {
		return nil, fmt.Errorf("cryptoenc: active version %q has no matching key", activeVersion)
	}
	return c, nil
}

// Encrypt produces the on-disk layout `version_tag || hex(nonce || ciphertext || tag)`,
// version_tag being the ASCII prefix "vN:" selecting the active key.
// Encrypting the empty string yields the empty string, so optional PHI
// fields round-trip without allocating ciphertext for nothing.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead := c.keys[c.active]
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", apperr.Wrap(apperr.KindEncryptionFailed, "generating nonce", err)
	}
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	blob := append(nonce, sealed...)
	return c.active + ":" + hex.EncodeToString(blob), nil
}

// Decrypt reverses Encrypt. It fails closed: any tag-verification
// failure or unknown key version returns a typed error, never falls
// back to plaintext or to a different key version (spec.md §4.2).
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	idx := strings.IndexByte(ciphertext, ':')
	if idx < 0 {
		return "", apperr.New(apperr.KindDecryptionFailed, "malformed ciphertext: missing version prefix")
	}
	version, hexBlob := ciphertext[:idx], ciphertext[idx+1:]
	aead, ok := c.keys[version]
	if !ok {
		return "", apperr.New(apperr.KindUnknownKeyVersion, fmt.Sprintf("unknown key version %q", version))
	}
	blob, err := hex.DecodeString(hexBlob)
	if err != nil {
		return "", apperr.Wrap(apperr.KindDecryptionFailed, "malformed ciphertext: not hex", err)
	}
	if len(blob) < nonceSize+tagSize {
		return "", apperr.New(apperr.KindDecryptionFailed, "malformed ciphertext: too short")
	}
	nonce, sealed := blob[:nonceSize], blob[nonceSize:]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", apperr.Wrap(apperr.KindDecryptionFailed, "tag verification failed", err)
	}
	return string(plain), nil
}

// ActiveVersion returns the version tag used for new encryptions.
func (c *Codec) ActiveVersion() string { return c.active }

// ExportRaw returns the raw key bytes for every known version, for
// the offline GPG-encrypted backup export. Callers must GPG-encrypt
// the result before it leaves process memory; this codec does not
// perform the GPG step itself (it is an operational/ops-tooling
// concern, not a per-request code path).
func (c *Codec) ExportRaw() map[string][]byte {
	out := make(map[string][]byte, len(c.rawByVer))
	for k, v := range c.rawByVer {
		out[k] = append([]byte(nil), v...)
	}
	return out
}
