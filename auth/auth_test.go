package auth

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatique/sendcore/kvstore/memstore"
)

func TestVerifierChallengeAndVerifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	v := New(store)

	key := []byte("0123456789abcdef")
	require.NoError(t, store.SetFields(ctx, "file1", map[string]string{
		"auth": base64.StdEncoding.EncodeToString(key),
	}))

	nonce, err := v.Challenge(ctx, "file1")
	require.NoError(t, err)
	assert.NotEmpty(t, nonce)

	sig := base64.StdEncoding.EncodeToString(sign(key, nonce))
	assert.NoError(t, v.Verify(ctx, "file1", sig))
}

func TestVerifierRejectsWrongSignature(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	v := New(store)

	key := []byte("0123456789abcdef")
	require.NoError(t, store.SetFields(ctx, "file1", map[string]string{
		"auth": base64.StdEncoding.EncodeToString(key),
	}))
	_, err := v.Challenge(ctx, "file1")
	require.NoError(t, err)

	wrongSig := base64.StdEncoding.EncodeToString(sign([]byte("not-the-key-at-all"), "anything"))
	assert.Error(t, v.Verify(ctx, "file1", wrongSig))
}

func TestVerifierNeverRepeatsNonce(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	v := New(store)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		nonce, err := v.Challenge(ctx, "file1")
		require.NoError(t, err)
		require.False(t, seen[nonce], "nonce repeated: %s", nonce)
		seen[nonce] = true
	}
}

func TestDecodeKeyAcceptsAllBase64Variants(t *testing.T) {
	raw := []byte("some-raw-key-material")
	variants := []string{
		base64.StdEncoding.EncodeToString(raw),
		base64.URLEncoding.EncodeToString(raw),
		base64.RawStdEncoding.EncodeToString(raw),
		base64.RawURLEncoding.EncodeToString(raw),
	}
	for _, s := range variants {
		got, err := decodeKey(s)
		require.NoError(t, err)
		assert.Equal(t, raw, got)
	}
}

func TestCheckOwnerConstantTime(t *testing.T) {
	assert.True(t, CheckOwner("owner-token-abc", "owner-token-abc"))
	assert.False(t, CheckOwner("owner-token-abc", "owner-token-xyz"))
	assert.False(t, CheckOwner("", ""))
	assert.False(t, CheckOwner("owner-token-abc", ""))
}
