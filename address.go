package seanboard

import (
	"sync"
)

// TargetAddress holds the remote store address. The poller reads it once at
// the start of every connection attempt.
type TargetAddress struct {
	mu   sync.RWMutex
	addr string
}

func NewTargetAddress(initial string) *TargetAddress {
	return &TargetAddress{addr: initial}
}

func (t *TargetAddress) Set(address string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addr = address
}

func (t *TargetAddress) Get() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.addr
}
