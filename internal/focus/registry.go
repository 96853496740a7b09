package focus

import "sync"

// Handle identifies one subscribing connection. The transport layer mints
// these and keeps them stable for the lifetime of a subscription.
type Handle uint64

// Bucket names the operation a subscription belongs to.
type Bucket string

const (
	BucketRequestFocus Bucket = "requestFocus"
	BucketGetStatus    Bucket = "getStatus"
)

// Deliverer sends a reply payload to one handle, returning false if the
// handle is no longer reachable (closed socket, full outbound buffer).
type Deliverer interface {
	Deliver(h Handle, payload any) bool
}

type subscriberEntry struct {
	handle    Handle
	appID     string
	displayID DisplayID
}

// Registry tracks which handles are subscribed in which bucket, and lets
// the engine unicast or multicast to them without knowing how the
// transport actually delivers bytes.
type Registry struct {
	mu      sync.Mutex
	deliver Deliverer
	buckets map[Bucket]map[Handle]subscriberEntry
}

// NewRegistry builds a registry that hands payloads to d for delivery.
func NewRegistry(d Deliverer) *Registry {
	return &Registry{
		deliver: d,
		buckets: make(map[Bucket]map[Handle]subscriberEntry),
	}
}

// Add attaches a handle to a bucket. Idempotent per handle.
func (r *Registry) Add(bucket Bucket, h Handle, appID string, displayID DisplayID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.buckets[bucket]
	if !ok {
		m = make(map[Handle]subscriberEntry)
		r.buckets[bucket] = m
	}
	m[h] = subscriberEntry{handle: h, appID: appID, displayID: displayID}
}

// Remove detaches a handle from a bucket.
func (r *Registry) Remove(bucket Bucket, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.buckets[bucket]; ok {
		delete(m, h)
	}
}

// Lookup returns the entry registered for h in bucket, if any.
func (r *Registry) Lookup(bucket Bucket, h Handle) (appID string, displayID DisplayID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.buckets[bucket]
	if !ok {
		return "", 0, false
	}
	e, ok := m[h]
	if !ok {
		return "", 0, false
	}
	return e.appID, e.displayID, true
}

// DeliverTo unicasts payload to the single subscription belonging to appID
// on displayID within bucket. Returns false if no such subscription exists
// or delivery failed.
func (r *Registry) DeliverTo(bucket Bucket, displayID DisplayID, appID string, payload any) bool {
	r.mu.Lock()
	var target Handle
	found := false
	if m, ok := r.buckets[bucket]; ok {
		for h, e := range m {
			if e.appID == appID && e.displayID == displayID {
				target = h
				found = true
				break
			}
		}
	}
	r.mu.Unlock()
	if !found {
		return false
	}
	return r.deliver.Deliver(target, payload)
}

// RemoveByApp removes the subscription belonging to appID on displayID
// within bucket, if present, and reports the handle that was removed.
func (r *Registry) RemoveByApp(bucket Bucket, displayID DisplayID, appID string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.buckets[bucket]
	if !ok {
		return 0, false
	}
	for h, e := range m {
		if e.appID == appID && e.displayID == displayID {
			delete(m, h)
			return h, true
		}
	}
	return 0, false
}

// Broadcast delivers payload to every handle subscribed in bucket for
// displayID.
func (r *Registry) Broadcast(bucket Bucket, displayID DisplayID, payload any) {
	r.mu.Lock()
	var targets []Handle
	if m, ok := r.buckets[bucket]; ok {
		for h, e := range m {
			if e.displayID == displayID {
				targets = append(targets, h)
			}
		}
	}
	r.mu.Unlock()
	for _, h := range targets {
		r.deliver.Deliver(h, payload)
	}
}
