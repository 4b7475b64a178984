// Package crypto encrypts payloads at rest with AES-256-GCM, grounded on
// original_source/csml_engine/src/encrypt.rs's scheme: PBKDF2-HMAC-SHA-512
// key derivation (10000 iterations, 64-byte random salt), a 16-byte nonce
// and 16-byte authentication tag laid out as
// base64(salt || nonce || tag || ciphertext).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"

	"github.com/csml-run/csml-engine/pkg/cerr"
)

const (
	iterations = 10000
	saltLen    = 64
	nonceLen   = 16
	tagLen     = 16
	keyLen     = 32
)

// Cipher encrypts and decrypts payloads with a fixed secret, the way the
// driver holds one Cipher per process derived from ENCRYPTION_SECRET. A
// nil *Cipher is the "no encryption configured" case: Encrypt/Decrypt
// pass the value through unchanged.
type Cipher struct {
	secret string
}

// New returns a Cipher using secret as the PBKDF2 passphrase. An empty
// secret means encryption is disabled (spec.md §6: "if no secret is set,
// values are stored as raw JSON strings").
func New(secret string) *Cipher {
	if secret == "" {
		return nil
	}
	return &Cipher{secret: secret}
}

// Encrypt returns plaintext unchanged if c is nil, else the ciphertext
// layout described in the package doc.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if c == nil {
		return plaintext, nil
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", cerr.Wrap(cerr.KindEncryption, err, "generate salt")
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", cerr.Wrap(cerr.KindEncryption, err, "generate nonce")
	}

	gcm, err := c.gcm(salt)
	if err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	// gcm.Seal appends the tag after the ciphertext; the original layout
	// wants tag before ciphertext.
	ct := sealed[:len(sealed)-tagLen]
	tag := sealed[len(sealed)-tagLen:]

	blob := make([]byte, 0, saltLen+nonceLen+tagLen+len(ct))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ct...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt reverses Encrypt. If c is nil the value is returned unchanged
// (encryption disabled).
func (c *Cipher) Decrypt(encoded string) (string, error) {
	if c == nil {
		return encoded, nil
	}

	blob, err := decode(encoded)
	if err != nil {
		return "", err
	}
	minLen := saltLen + nonceLen + tagLen
	if len(blob) < minLen {
		return "", cerr.New(cerr.KindEncryption, "ciphertext too short: %d bytes", len(blob))
	}

	salt := blob[:saltLen]
	nonce := blob[saltLen : saltLen+nonceLen]
	tag := blob[saltLen+nonceLen : minLen]
	ct := blob[minLen:]

	gcm, err := c.gcm(salt)
	if err != nil {
		return "", err
	}

	sealed := append(append([]byte{}, ct...), tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", cerr.Wrap(cerr.KindEncryption, err, "decrypt payload")
	}
	return string(plaintext), nil
}

func (c *Cipher) gcm(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(c.secret), salt, iterations, keyLen, sha512.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, cerr.Wrap(cerr.KindEncryption, err, "create AES cipher")
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceLen)
	if err != nil {
		return nil, cerr.Wrap(cerr.KindEncryption, err, "create GCM mode")
	}
	return gcm, nil
}

// decode tries base64 first, then hex, for backwards compatibility with
// data encrypted by an older, hex-encoding deployment (spec.md §6).
func decode(text string) ([]byte, error) {
	if val, err := base64.StdEncoding.DecodeString(text); err == nil {
		return val, nil
	}
	val, err := hex.DecodeString(text)
	if err != nil {
		return nil, cerr.Wrap(cerr.KindBase64, err, "decode ciphertext")
	}
	return val, nil
}
