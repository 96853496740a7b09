// Package session resolves transport session tokens to display ids and, for
// automotive deployments, keeps that mapping current from a vehicle-bus
// feed that runs outside the request path.
package session

import (
	"sync"

	"github.com/afengine/afengine/internal/focus"
)

// Resolver is a mutex-guarded token → displayId lookup table. Reads happen
// on every request; writes happen only from the out-of-band feed (or
// never, in non-automotive deployments where the caller supplies a display
// id directly).
type Resolver struct {
	mu    sync.RWMutex
	table map[string]focus.DisplayID
}

// NewResolver builds an empty resolver. Use Put (or the fixed automotive
// token set below) to populate it before serving traffic.
func NewResolver() *Resolver {
	return &Resolver{table: make(map[string]focus.DisplayID)}
}

// NewFixedAutomotiveResolver seeds the standard three-token automotive
// mapping: host/AVN to the head unit, RSE-L/RSE-R to the two rear-seat
// displays. Deployments that repair displays dynamically still update this
// via Put from the session feed.
func NewFixedAutomotiveResolver() *Resolver {
	r := NewResolver()
	r.Put("host", 0)
	r.Put("AVN", 0)
	r.Put("RSE-L", 1)
	r.Put("RSE-R", 2)
	return r
}

// Resolve looks up the display id for a session token.
func (r *Resolver) Resolve(token string) (focus.DisplayID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.table[token]
	return d, ok
}

// Put records (or updates) a token's display assignment. Called from the
// session feed goroutine, never from the request path.
func (r *Resolver) Put(token string, displayID focus.DisplayID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table[token] = displayID
}

// Delete removes a token's assignment, e.g. when a passenger profile is
// unpaired from a rear-seat display.
func (r *Resolver) Delete(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.table, token)
}
