package coord

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/shardguard/internal/sanitize"
	"github.com/gonkalabs/shardguard/internal/vault"
)

// storeLog holds the full store of every request handled while installed.
type storeLog struct {
	mu     sync.Mutex
	stores []*vault.Store
}

// captureStores records request stores until the test ends.
func captureStores(t *testing.T) *storeLog {
	t.Helper()
	log := &storeLog{}
	orig := sanitizeRequest
	sanitizeRequest = func(s *sanitize.Sanitizer, raw string) (string, *vault.Store) {
		text, store := orig(s, raw)
		log.mu.Lock()
		log.stores = append(log.stores, store)
		log.mu.Unlock()
		return text, store
	}
	t.Cleanup(func() { sanitizeRequest = orig })
	return log
}

func (l *storeLog) last(t *testing.T) *vault.Store {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	require.NotEmpty(t, l.stores, "no request was sanitized")
	return l.stores[len(l.stores)-1]
}
