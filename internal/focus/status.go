package focus

// DisplayStatus is one display's entry in a status payload.
type DisplayStatus struct {
	DisplayID      DisplayID `json:"displayId"`
	ActiveRequests []AppInfo `json:"activeRequests"`
	PausedRequests []AppInfo `json:"pausedRequests"`
}

// StatusPayload is the full reply/push shape for getStatus, per §4.6.
type StatusPayload struct {
	ReturnValue      bool            `json:"returnValue"`
	AudioFocusStatus []DisplayStatus `json:"audioFocusStatus"`
}

// Status returns the current status payload for a single display. Safe to
// call concurrently with requests against other displays; briefly locks
// the target display to take a consistent snapshot.
func (e *Engine) Status(displayID DisplayID) StatusPayload {
	ds := e.state(displayID)
	if ds == nil {
		return StatusPayload{ReturnValue: false}
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return StatusPayload{
		ReturnValue: true,
		AudioFocusStatus: []DisplayStatus{
			{
				DisplayID:      displayID,
				ActiveRequests: append([]AppInfo(nil), ds.active...),
				PausedRequests: append([]AppInfo(nil), ds.paused...),
			},
		},
	}
}

// broadcastStatus pushes the current (already-locked) display state to
// every getStatus subscriber of that display. Must be called with ds.mu
// held.
func (e *Engine) broadcastStatus(displayID DisplayID, ds *displayState) {
	payload := StatusPayload{
		ReturnValue: true,
		AudioFocusStatus: []DisplayStatus{
			{
				DisplayID:      displayID,
				ActiveRequests: append([]AppInfo(nil), ds.active...),
				PausedRequests: append([]AppInfo(nil), ds.paused...),
			},
		},
	}
	e.registry.Broadcast(BucketGetStatus, displayID, payload)
	e.metrics.ObserveListSizes(displayID, len(ds.active), len(ds.paused))
}
