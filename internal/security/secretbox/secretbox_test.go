package secretbox

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	return raw
}

func TestSealOpen(t *testing.T) {
	box, err := New(testKey())
	require.NoError(t, err)

	msg := `{"access_token":"ya29.a0","token_type":"Bearer"}`
	ct, err := box.Seal(msg)
	require.NoError(t, err)
	assert.True(t, IsSealed(ct))
	assert.False(t, IsSealed(msg))

	pt, err := box.Open(ct)
	require.NoError(t, err)
	assert.Equal(t, msg, pt)

	// nonce aleatorio: dos cifrados distintos
	ct2, err := box.Seal(msg)
	require.NoError(t, err)
	assert.NotEqual(t, ct, ct2)
}

func TestOpen_DetectsTamper(t *testing.T) {
	box, err := New(testKey())
	require.NoError(t, err)
	ct, err := box.Seal("secreto")
	require.NoError(t, err)

	nonce, body, _ := strings.Cut(ct, sep)
	b, err := base64.StdEncoding.DecodeString(body)
	require.NoError(t, err)
	b[0] ^= 0xff
	_, err = box.Open(nonce + sep + base64.StdEncoding.EncodeToString(b))
	assert.Error(t, err)

	_, err = box.Open("sin-separador")
	assert.ErrorIs(t, err, ErrFormat)

	other, err := New(make([]byte, 32))
	require.NoError(t, err)
	_, err = other.Open(ct)
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	k := testKey()
	for _, s := range []string{
		base64.StdEncoding.EncodeToString(k),
		base64.RawStdEncoding.EncodeToString(k),
		hex.EncodeToString(k),
	} {
		got, err := ParseKey(s)
		require.NoError(t, err, s)
		assert.Equal(t, k, got)
	}
	_, err := ParseKey("corta")
	assert.Error(t, err)

	_, err = New([]byte("short"))
	assert.Error(t, err)
}
