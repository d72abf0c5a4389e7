package bridge

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultLedgerSize is used when the configured size is not positive.
const defaultLedgerSize = 8192

// ledger remembers recent (message, destination) pairs so that a received
// message is enqueued at most once per destination, even when several
// routes resolve to the same target.
type ledger struct {
	seen *lru.Cache[string, struct{}]
}

func newLedger(size int) *ledger {
	if size <= 0 {
		size = defaultLedgerSize
	}
	//nolint:errcheck // lru.New only fails for a non-positive size
	seen, _ := lru.New[string, struct{}](size)
	return &ledger{seen: seen}
}

// claim records the pair and reports whether it was new.
func (l *ledger) claim(messageID, destination string) bool {
	found, _ := l.seen.ContainsOrAdd(messageID+"\x00"+destination, struct{}{})
	return !found
}
