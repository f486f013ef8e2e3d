// Package wallet rotates Gonka requester wallets across planning requests.
package wallet

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gonkalabs/shardguard/internal/signer"
)

// Wallet holds a signer and its associated requester address.
type Wallet struct {
	Signer  *signer.Signer
	Address string
}

// Credential is the configured form of a wallet.
type Credential struct {
	PrivateKey string // hex secp256k1 key, 0x prefix optional
	Address    string // bech32 requester address
}

// Pool hands out wallets round-robin. It is safe for concurrent use.
type Pool struct {
	wallets []Wallet
	counter atomic.Uint64
}

// NewPool creates a Pool. At least one wallet is required.
func NewPool(wallets []Wallet) (*Pool, error) {
	if len(wallets) == 0 {
		return nil, fmt.Errorf("wallet pool: at least one wallet is required")
	}
	for i, w := range wallets {
		if w.Signer == nil || w.Address == "" {
			return nil, fmt.Errorf("wallet pool: wallet %d needs a signer and an address", i+1)
		}
	}
	slog.Info("wallet pool initialised", "wallets", len(wallets))
	return &Pool{wallets: wallets}, nil
}

// FromCredentials builds signers for creds and returns a Pool over them.
// Key material never appears in the returned errors.
func FromCredentials(creds []Credential) (*Pool, error) {
	wallets := make([]Wallet, 0, len(creds))
	for i, c := range creds {
		s, err := signer.New(c.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("wallet %d: %w", i+1, err)
		}
		wallets = append(wallets, Wallet{Signer: s, Address: c.Address})
	}
	return NewPool(wallets)
}

// Next returns the next wallet.
func (p *Pool) Next() *Wallet {
	idx := p.counter.Add(1) - 1
	return &p.wallets[idx%uint64(len(p.wallets))]
}

// Len returns the number of wallets in the pool.
func (p *Pool) Len() int {
	return len(p.wallets)
}
