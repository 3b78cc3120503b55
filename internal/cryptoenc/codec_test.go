package cryptoenc

import (
	"crypto/rand"
	"testing"

	"github.com/pazpaz/backend/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := rand.Read(k)
	require.NoError(t, err)
	return k
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	codec, err := NewCodec("v1", []Key{{Version: "v1", Raw: randKey(t)}})
	require.NoError(t, err)

	cases := []string{
		"simple ascii note",
		"כאב גב תחתון, מתוח",
		string(make([]rune, 0)),
	}
	for _, plain := range cases {
		ct, err := codec.Encrypt(plain)
		require.NoError(t, err)
		pt, err := codec.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, plain, pt)
	}
}

func TestEncryptEmptyStringIsEmpty(t *testing.T) {
	codec, err := NewCodec("v1", []Key{{Version: "v1", Raw: randKey(t)}})
	require.NoError(t, err)
	ct, err := codec.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", ct)
}

func TestOldKeyVersionStillDecrypts(t *testing.T) {
	keyV1 := randKey(t)
	codecV1, err := NewCodec("v1", []Key{{Version: "v1", Raw: keyV1}})
	require.NoError(t, err)
	ct, err := codecV1.Encrypt("hello")
	require.NoError(t, err)

	codecV2, err := NewCodec("v2", []Key{
		{Version: "v1", Raw: keyV1},
		{Version: "v2", Raw: randKey(t)},
	})
	require.NoError(t, err)
	pt, err := codecV2.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "hello", pt)
}

func TestDecryptFailsClosedOnTamperedCiphertext(t *testing.T) {
	codec, err := NewCodec("v1", []Key{{Version: "v1", Raw: randKey(t)}})
	require.NoError(t, err)
	ct, err := codec.Encrypt("sensitive")
	require.NoError(t, err)

	last := "00"
	if ct[len(ct)-2:] == last {
		last = "01"
	}
	tampered := ct[:len(ct)-2] + last
	_, err = codec.Decrypt(tampered)
	require.Error(t, err)
	assert.Equal(t, apperr.KindDecryptionFailed, apperr.KindOf(err))
}

func TestDecryptUnknownKeyVersion(t *testing.T) {
	codec, err := NewCodec("v1", []Key{{Version: "v1", Raw: randKey(t)}})
	require.NoError(t, err)
	_, err = codec.Decrypt("v99:deadbeef")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnknownKeyVersion, apperr.KindOf(err))
}
