package graph

import "sync"

// Holder hands the current Network to request handlers and lets an admin
// reload swap in a fresh build without disturbing in-flight requests.
type Holder struct {
	mu  sync.RWMutex
	net *Network
}

// NewHolder wraps an initial network.
func NewHolder(net *Network) *Holder {
	return &Holder{net: net}
}

// Get returns the current network.
func (h *Holder) Get() *Network {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.net
}

// Swap installs a new network and returns the previous one.
func (h *Holder) Swap(net *Network) *Network {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.net
	h.net = net
	return old
}
