package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	s := &Store{encryptionKey: key}

	ciphertext, err := s.encrypt("super-secret-value")
	require.NoError(t, err)
	assert.NotEqual(t, "super-secret-value", ciphertext)

	plaintext, err := s.decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-value", plaintext)
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	var key1, key2 [32]byte
	copy(key1[:], []byte("0123456789abcdef0123456789abcdef"))
	copy(key2[:], []byte("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"))

	s1 := &Store{encryptionKey: key1}
	s2 := &Store{encryptionKey: key2}

	ciphertext, err := s1.encrypt("top-secret")
	require.NoError(t, err)

	_, err = s2.decrypt(ciphertext)
	assert.Error(t, err)
}

func TestDecrypt_MalformedCiphertextFails(t *testing.T) {
	var key [32]byte
	s := &Store{encryptionKey: key}

	_, err := s.decrypt("not-valid-base64!!!")
	assert.Error(t, err)

	_, err = s.decrypt("c2hvcnQ=")
	assert.Error(t, err)
}
