package crypto_test

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kseli/kseli-go/internal/crypto"
)

func newCipher(t *testing.T) *crypto.Cipher {
	t.Helper()
	material, err := crypto.GenerateKey()
	require.NoError(t, err)
	c, err := crypto.ImportKey(material)
	require.NoError(t, err)
	return c
}

func TestGenerateKey_Transportable(t *testing.T) {
	material, err := crypto.GenerateKey()
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(material)
	require.NoError(t, err)
	assert.Len(t, raw, crypto.KeySize)
}

func TestImportKey_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		material string
	}{
		{"not base64", "%%%not-base64%%%"},
		{"wrong length", base64.StdEncoding.EncodeToString([]byte("short"))},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := crypto.ImportKey(tt.material)
			assert.ErrorIs(t, err, crypto.ErrInvalidKey)
		})
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	c := newCipher(t)

	for _, plaintext := range []string{"hello", "", "héllo wörld 🎉", strings.Repeat("a", 1000)} {
		packed, err := c.Encode(plaintext)
		require.NoError(t, err)

		got, err := c.Decode(packed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncode_FreshNoncePerCall(t *testing.T) {
	c := newCipher(t)

	a, err := c.Encode("same plaintext")
	require.NoError(t, err)
	b, err := c.Encode("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDecode_TamperedCiphertext(t *testing.T) {
	c := newCipher(t)

	packed, err := c.Encode("attack at dawn")
	require.NoError(t, err)

	nonceB64, ctB64, _ := strings.Cut(packed, ":")
	ct, err := base64.StdEncoding.DecodeString(ctB64)
	require.NoError(t, err)
	ct[0] ^= 0xff
	tampered := nonceB64 + ":" + base64.StdEncoding.EncodeToString(ct)

	_, err = c.Decode(tampered)
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}

func TestDecode_WrongKey(t *testing.T) {
	packed, err := newCipher(t).Encode("secret")
	require.NoError(t, err)

	_, err = newCipher(t).Decode(packed)
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}

func TestDecode_MalformedPacket(t *testing.T) {
	c := newCipher(t)

	tests := []struct {
		name   string
		packed string
	}{
		{"no separator", "deadbeef"},
		{"missing nonce", ":deadbeef"},
		{"missing ciphertext", "deadbeef:"},
		{"bad nonce base64", "%%%:deadbeef"},
		{"bad ciphertext base64", base64.StdEncoding.EncodeToString(make([]byte, 12)) + ":%%%"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(tt.packed)
			assert.ErrorIs(t, err, crypto.ErrMalformedPacket)
		})
	}
}
