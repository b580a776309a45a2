package signer

import (
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomKeyHex(t *testing.T, length int) string {
	t.Helper()
	buf := make([]byte, length)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	return hex.EncodeToString(buf)
}

func TestNew_RejectsMissingKey(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestNew_RejectsMalformedHex(t *testing.T) {
	_, err := New(Config{PrivateKeyHex: "not-hex"})
	require.Error(t, err)
}

func TestNew_RejectsWrongLength(t *testing.T) {
	_, err := New(Config{PrivateKeyHex: randomKeyHex(t, 16)})
	require.Error(t, err)
}

func TestNew_AcceptsBareAndCompressedKeyLengths(t *testing.T) {
	s, err := New(Config{PrivateKeyHex: randomKeyHex(t, 32)})
	require.NoError(t, err)
	require.NotNil(t, s)

	compressed := randomKeyHex(t, 32) + "01"
	s2, err := New(Config{PrivateKeyHex: compressed})
	require.NoError(t, err)
	require.NotNil(t, s2)
}
