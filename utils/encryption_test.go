package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	setTestEncryptionKey(t)

	ciphertext, err := Encrypt("smtp-secret-password")
	require.NoError(t, err)
	assert.NotEqual(t, "smtp-secret-password", ciphertext)

	plaintext, err := Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "smtp-secret-password", plaintext)
}

func TestEncryptProducesFreshIV(t *testing.T) {
	setTestEncryptionKey(t)

	a, err := Encrypt("same input")
	require.NoError(t, err)
	b, err := Encrypt("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEncryptEmptyString(t *testing.T) {
	setTestEncryptionKey(t)

	ciphertext, err := Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", ciphertext)

	plaintext, err := Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", plaintext)
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	setTestEncryptionKey(t)

	_, err := Decrypt("YWJj") // three bytes, shorter than one AES block
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ciphertext too short")
}

func TestDecryptRejectsBadEncoding(t *testing.T) {
	setTestEncryptionKey(t)

	_, err := Decrypt("not base64!!!")
	require.Error(t, err)
}
