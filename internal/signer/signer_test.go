package signer

import (
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestNewRejectsBadKeys(t *testing.T) {
	for _, k := range []string{"", "zz", "0x1234", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f36231800"} {
		_, err := New(k)
		assert.Error(t, err, "key %q", k)
	}
}

func TestSignIsDeterministic(t *testing.T) {
	s, err := New(testKey)
	require.NoError(t, err)

	payload := []byte(`{"model":"m","messages":[]}`)
	a := s.signAt(payload, "gonka1addr", 1700000000000000000)
	b := s.signAt(payload, "gonka1addr", 1700000000000000000)
	c := s.signAt(payload, "gonka1addr", 1700000000000000001)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSignVerifies(t *testing.T) {
	s, err := New(testKey)
	require.NoError(t, err)
	fixed := time.Unix(1700000000, 42)
	s.now = func() time.Time { return fixed }

	payload := []byte(`{"hello":"world"}`)
	sig, ts := s.Sign(payload, "gonka1transfer")
	assert.Equal(t, fixed.UnixNano(), ts)

	raw, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	require.Len(t, raw, 64)

	pub := crypto.FromECDSAPub(s.PublicKey())
	assert.True(t, crypto.VerifySignature(pub, Digest(payload, "gonka1transfer", ts), raw))
	assert.False(t, crypto.VerifySignature(pub, Digest(payload, "gonka1other", ts), raw))
}

func TestSignIsLowS(t *testing.T) {
	s, err := New(testKey)
	require.NoError(t, err)
	half := new(big.Int).Rsh(crypto.S256().Params().N, 1)

	for i := int64(0); i < 32; i++ {
		raw, err := base64.StdEncoding.DecodeString(s.signAt([]byte("p"), "addr", i))
		require.NoError(t, err)
		sv := new(big.Int).SetBytes(raw[32:])
		assert.True(t, sv.Cmp(half) <= 0, "s must be in the lower half (ts=%d)", i)
	}
}
