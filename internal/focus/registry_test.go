package focus

import "testing"

type recordingDeliverer struct {
	sent map[Handle]any
}

func newRecordingDeliverer() *recordingDeliverer {
	return &recordingDeliverer{sent: make(map[Handle]any)}
}

func (r *recordingDeliverer) Deliver(h Handle, payload any) bool {
	r.sent[h] = payload
	return true
}

func TestRegistryDeliverToUnicastsByAppAndDisplay(t *testing.T) {
	d := newRecordingDeliverer()
	r := NewRegistry(d)
	r.Add(BucketRequestFocus, Handle(1), "app.a", 0)
	r.Add(BucketRequestFocus, Handle(2), "app.b", 0)

	ok := r.DeliverTo(BucketRequestFocus, 0, "app.b", "hello")
	if !ok {
		t.Fatal("expected delivery to succeed")
	}
	if d.sent[Handle(2)] != "hello" {
		t.Fatalf("expected handle 2 to receive the payload, got %v", d.sent)
	}
	if _, ok := d.sent[Handle(1)]; ok {
		t.Fatal("handle 1 should not have received anything")
	}
}

func TestRegistryDeliverToMissingSubscriptionFails(t *testing.T) {
	d := newRecordingDeliverer()
	r := NewRegistry(d)
	if r.DeliverTo(BucketRequestFocus, 0, "ghost", "x") {
		t.Fatal("expected delivery to a missing subscription to fail")
	}
}

func TestRegistryRemoveByApp(t *testing.T) {
	d := newRecordingDeliverer()
	r := NewRegistry(d)
	r.Add(BucketRequestFocus, Handle(5), "app.a", 1)

	h, ok := r.RemoveByApp(BucketRequestFocus, 1, "app.a")
	if !ok || h != Handle(5) {
		t.Fatalf("RemoveByApp = %v, %v; want 5, true", h, ok)
	}
	if _, _, ok := r.Lookup(BucketRequestFocus, Handle(5)); ok {
		t.Fatal("expected handle 5 to be gone after removal")
	}
}

func TestRegistryBroadcastScopedToDisplay(t *testing.T) {
	d := newRecordingDeliverer()
	r := NewRegistry(d)
	r.Add(BucketGetStatus, Handle(1), "app.a", 0)
	r.Add(BucketGetStatus, Handle(2), "app.b", 1)

	r.Broadcast(BucketGetStatus, 0, "status-for-0")

	if d.sent[Handle(1)] != "status-for-0" {
		t.Fatalf("handle on display 0 should have received the broadcast, got %v", d.sent[Handle(1)])
	}
	if _, ok := d.sent[Handle(2)]; ok {
		t.Fatal("handle on display 1 should not have received display 0's broadcast")
	}
}

func TestRegistryAddIsIdempotentPerHandle(t *testing.T) {
	d := newRecordingDeliverer()
	r := NewRegistry(d)
	r.Add(BucketRequestFocus, Handle(1), "app.a", 0)
	r.Add(BucketRequestFocus, Handle(1), "app.a", 0)

	appID, displayID, ok := r.Lookup(BucketRequestFocus, Handle(1))
	if !ok || appID != "app.a" || displayID != 0 {
		t.Fatalf("Lookup = %v, %v, %v", appID, displayID, ok)
	}
}
