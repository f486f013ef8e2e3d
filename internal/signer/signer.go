// Package signer signs Gonka inference requests with a secp256k1 key using
// deterministic ECDSA (RFC 6979, SHA-256) and low-S normalisation, the
// scheme the Gonka nodes verify.
package signer

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds one private key. It is safe for concurrent use.
type Signer struct {
	key *ecdsa.PrivateKey
	now func() time.Time
}

// New creates a Signer from a hex-encoded private key (0x prefix optional).
func New(hexKey string) (*Signer, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("signer: invalid hex key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("signer: key must be 32 bytes, got %d", len(raw))
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}
	return &Signer{key: key, now: time.Now}, nil
}

// PublicKey returns the signer's public key.
func (s *Signer) PublicKey() *ecdsa.PublicKey { return &s.key.PublicKey }

// Sign returns the base64 r||s signature for payload addressed to
// transferAddress, together with the nanosecond timestamp it covers.
func (s *Signer) Sign(payload []byte, transferAddress string) (sig string, tsNano int64) {
	ts := s.now().UnixNano()
	return s.signAt(payload, transferAddress, ts), ts
}

// Digest is the message hash that gets signed:
// SHA256(hex(SHA256(payload)) + decimal(ts) + transferAddress).
func Digest(payload []byte, transferAddress string, tsNano int64) []byte {
	ph := sha256.Sum256(payload)
	input := hex.EncodeToString(ph[:]) + strconv.FormatInt(tsNano, 10) + transferAddress
	d := sha256.Sum256([]byte(input))
	return d[:]
}

func (s *Signer) signAt(payload []byte, transferAddress string, tsNano int64) string {
	digest := Digest(payload, transferAddress, tsNano)
	r, sv := signDeterministic(s.key, digest)

	n := crypto.S256().Params().N
	if sv.Cmp(new(big.Int).Rsh(n, 1)) > 0 {
		sv = new(big.Int).Sub(n, sv)
	}

	out := make([]byte, 64)
	r.FillBytes(out[:32])
	sv.FillBytes(out[32:])
	return base64.StdEncoding.EncodeToString(out)
}

// signDeterministic computes a plain ECDSA signature with the nonce from
// RFC 6979 section 3.2.
func signDeterministic(key *ecdsa.PrivateKey, digest []byte) (r, s *big.Int) {
	curve := crypto.S256()
	n := curve.Params().N
	e := new(big.Int).SetBytes(digest)

	nonces := newNonceGenerator(n, key.D, digest)
	for {
		k := nonces.next()
		x, _ := curve.ScalarBaseMult(k.Bytes())
		r = new(big.Int).Mod(x, n)
		if r.Sign() == 0 {
			continue
		}
		s = new(big.Int).Mul(r, key.D)
		s.Add(s, e)
		s.Mul(s, new(big.Int).ModInverse(k, n))
		s.Mod(s, n)
		if s.Sign() != 0 {
			return r, s
		}
	}
}

// nonceGenerator is the HMAC-DRBG of RFC 6979 keyed by the private key and
// message hash.
type nonceGenerator struct {
	n     *big.Int
	qlen  int
	k, v  []byte
	first bool
}

func newNonceGenerator(n, d *big.Int, digest []byte) *nonceGenerator {
	g := &nonceGenerator{n: n, qlen: n.BitLen(), first: true}
	g.v = bytesOf(0x01, sha256.Size)
	g.k = bytesOf(0x00, sha256.Size)

	x := intToOctets(d, g.qlen)
	h := bitsToOctets(digest, n, g.qlen)
	g.k = g.mac(g.k, g.v, []byte{0x00}, x, h)
	g.v = g.mac(g.k, g.v)
	g.k = g.mac(g.k, g.v, []byte{0x01}, x, h)
	g.v = g.mac(g.k, g.v)
	return g
}

// next returns the next candidate nonce in [1, n-1].
func (g *nonceGenerator) next() *big.Int {
	for {
		if !g.first {
			g.k = g.mac(g.k, g.v, []byte{0x00})
			g.v = g.mac(g.k, g.v)
		}
		g.first = false

		var t []byte
		for len(t)*8 < g.qlen {
			g.v = g.mac(g.k, g.v)
			t = append(t, g.v...)
		}
		k := bitsToInt(t, g.qlen)
		if k.Sign() > 0 && k.Cmp(g.n) < 0 {
			return k
		}
	}
}

func (g *nonceGenerator) mac(key []byte, parts ...[]byte) []byte {
	var m hash.Hash = hmac.New(sha256.New, key)
	for _, p := range parts {
		m.Write(p)
	}
	return m.Sum(nil)
}

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func intToOctets(v *big.Int, qlen int) []byte {
	rlen := (qlen + 7) / 8
	b := v.Bytes()
	switch {
	case len(b) < rlen:
		return append(make([]byte, rlen-len(b)), b...)
	case len(b) > rlen:
		return b[len(b)-rlen:]
	}
	return b
}

func bitsToInt(b []byte, qlen int) *big.Int {
	v := new(big.Int).SetBytes(b)
	if blen := len(b) * 8; blen > qlen {
		v.Rsh(v, uint(blen-qlen))
	}
	return v
}

func bitsToOctets(b []byte, q *big.Int, qlen int) []byte {
	z1 := bitsToInt(b, qlen)
	z2 := new(big.Int).Sub(z1, q)
	if z2.Sign() < 0 {
		z2 = z1
	}
	return intToOctets(z2, qlen)
}
