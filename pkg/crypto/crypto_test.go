package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csml-run/csml-engine/pkg/crypto"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := crypto.New("test-secret")
	encrypted, err := c.Encrypt(`{"text":"hello"}`)
	require.NoError(t, err)
	assert.NotEqual(t, `{"text":"hello"}`, encrypted)

	decrypted, err := c.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, `{"text":"hello"}`, decrypted)
}

func TestEncryptProducesDifferentCiphertextEachTime(t *testing.T) {
	c := crypto.New("test-secret")
	a, err := c.Encrypt("same text")
	require.NoError(t, err)
	b, err := c.Encrypt("same text")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "random salt/nonce must vary per call")
}

func TestDecryptWrongSecretFails(t *testing.T) {
	encrypted, err := crypto.New("secret-a").Encrypt("text")
	require.NoError(t, err)

	_, err = crypto.New("secret-b").Decrypt(encrypted)
	assert.Error(t, err)
}

func TestNilCipherPassesThroughUnchanged(t *testing.T) {
	var c *crypto.Cipher
	out, err := c.Encrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	back, err := c.Decrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", back)
}

func TestNewWithEmptySecretDisablesEncryption(t *testing.T) {
	c := crypto.New("")
	assert.Nil(t, c)
}

func TestDecryptRejectsInputThatIsNeitherBase64NorHex(t *testing.T) {
	// Input that decodes as neither base64 nor hex fails cleanly rather than panicking.
	c := crypto.New("test-secret")
	_, err := c.Decrypt("not-valid-hex-or-base64!!")
	assert.Error(t, err)
}
