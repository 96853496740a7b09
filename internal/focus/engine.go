package focus

import (
	"sync"

	"github.com/rs/zerolog"
)

// DecisionSink receives a best-effort record of every terminal arbitration
// decision, for operational diagnosis only. Engine calls Record
// synchronously while holding the display's lock; Record returns no error,
// so a failed write is the sink's own to log, and Engine never retries.
type DecisionSink interface {
	Record(displayID DisplayID, appID, requestType string, result Result)
}

type displayState struct {
	mu     sync.Mutex
	active []AppInfo
	paused []AppInfo
}

func (d *displayState) indexOf(list []AppInfo, appID, requestType string) int {
	for i, a := range list {
		if a.AppID == appID && a.RequestType == requestType {
			return i
		}
	}
	return -1
}

func removeAt(list []AppInfo, i int) []AppInfo {
	return append(list[:i], list[i+1:]...)
}

// Engine holds the authoritative per-display focus state and runs the
// transition algorithm. One mutex per display serializes every operation
// against that display, standing in for the single-threaded event loop of
// the system this package is modeled on: no caller can observe a
// partially-applied transition, and displays never contend with each other.
type Engine struct {
	policy   *Table
	registry *Registry
	metrics  *Metrics
	audit    DecisionSink
	log      zerolog.Logger

	mu       sync.RWMutex // guards the displays map itself, not its entries
	displays map[DisplayID]*displayState
	valid    map[DisplayID]bool
}

// NewEngine builds an engine over the given policy table and subscriber
// registry, accepting requests for exactly the display ids in validDisplays.
func NewEngine(policy *Table, registry *Registry, validDisplays []DisplayID, metrics *Metrics, log zerolog.Logger) *Engine {
	valid := make(map[DisplayID]bool, len(validDisplays))
	displays := make(map[DisplayID]*displayState, len(validDisplays))
	for _, d := range validDisplays {
		valid[d] = true
		displays[d] = &displayState{}
	}
	return &Engine{
		policy:   policy,
		registry: registry,
		metrics:  metrics,
		log:      log,
		displays: displays,
		valid:    valid,
	}
}

// SetAuditSink installs an optional decision recorder. Not required for
// correctness; nil by default.
func (e *Engine) SetAuditSink(s DecisionSink) {
	e.audit = s
}

// ValidDisplay reports whether d is one of the engine's configured displays.
func (e *Engine) ValidDisplay(d DisplayID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.valid[d]
}

// KnownRequestType reports whether requestType appears in the policy table.
// Callers must reject an unknown type with UNKNOWN_REQUEST before it ever
// reaches RequestFocus.
func (e *Engine) KnownRequestType(requestType string) bool {
	return e.policy.Known(requestType)
}

func (e *Engine) state(d DisplayID) *displayState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.displays[d]
}

func (e *Engine) record(displayID DisplayID, appID, requestType string, result Result) {
	if e.audit != nil {
		e.audit.Record(displayID, appID, requestType, result)
	}
	if e.metrics != nil {
		e.metrics.ObserveResult(result)
	}
}

// RequestFocus implements §4.4.1: duplicate check, feasibility, transition
// of existing holders, grant, and status broadcast.
func (e *Engine) RequestFocus(displayID DisplayID, appID, requestType, streamType string, handle Handle) Result {
	ds := e.state(displayID)
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if i := ds.indexOf(ds.active, appID, requestType); i >= 0 {
		e.log.Debug().Str("app", appID).Str("type", requestType).Int("display", int(displayID)).Msg("duplicate requestFocus, already active")
		e.record(displayID, appID, requestType, ResultGrantedAlready)
		return ResultGrantedAlready
	}
	if i := ds.indexOf(ds.paused, appID, requestType); i >= 0 {
		e.record(displayID, appID, requestType, ResultGrantedAlready)
		return ResultGrantedAlready
	}

	if !e.isFeasible(ds, requestType) {
		e.log.Info().Str("app", appID).Str("type", requestType).Int("display", int(displayID)).Msg("request denied by policy")
		e.record(displayID, appID, requestType, ResultCannotBeGranted)
		return ResultCannotBeGranted
	}

	// Apply transitions to the active list first (snapshot order matters:
	// we mutate ds.active while iterating a copy of it).
	snapshot := append([]AppInfo(nil), ds.active...)
	var stillActive []AppInfo
	for _, hdr := range snapshot {
		action, _ := e.policy.ActionFor(hdr.RequestType, requestType)
		switch action {
		case ActionPause:
			ds.paused = append(ds.paused, hdr)
			e.registry.DeliverTo(BucketRequestFocus, displayID, hdr.AppID, replyEnvelope{ReturnValue: true, Result: ResultPause})
			e.record(displayID, hdr.AppID, hdr.RequestType, ResultPause)
		case ActionLost:
			e.registry.DeliverTo(BucketRequestFocus, displayID, hdr.AppID, replyEnvelope{ReturnValue: true, Result: ResultLost})
			e.registry.RemoveByApp(BucketRequestFocus, displayID, hdr.AppID)
			e.record(displayID, hdr.AppID, hdr.RequestType, ResultLost)
		default: // mix, or nothing (shouldn't happen post-feasibility check)
			stillActive = append(stillActive, hdr)
		}
	}
	ds.active = stillActive

	// Transitions against the paused list: only `lost` applies.
	var stillPaused []AppInfo
	for _, p := range ds.paused {
		action, _ := e.policy.ActionFor(p.RequestType, requestType)
		if action == ActionLost {
			e.registry.DeliverTo(BucketRequestFocus, displayID, p.AppID, replyEnvelope{ReturnValue: true, Result: ResultLost})
			e.registry.RemoveByApp(BucketRequestFocus, displayID, p.AppID)
			e.record(displayID, p.AppID, p.RequestType, ResultLost)
			continue
		}
		stillPaused = append(stillPaused, p)
	}
	ds.paused = stillPaused

	ds.active = append(ds.active, AppInfo{AppID: appID, RequestType: requestType, StreamType: streamType})
	e.registry.Add(BucketRequestFocus, handle, appID, displayID)
	e.record(displayID, appID, requestType, ResultGranted)

	e.broadcastStatus(displayID, ds)
	return ResultGranted
}

// isFeasible implements §4.4.3. Must be called with ds.mu held.
func (e *Engine) isFeasible(ds *displayState, arrivingType string) bool {
	for _, hdr := range ds.active {
		if _, ok := e.policy.ActionFor(hdr.RequestType, arrivingType); !ok {
			return false
		}
	}
	return true
}

// ReleaseFocus implements §4.4.2. Lookup is by appID alone, since the wire
// operation carries no requestType: the first entry for appID is released,
// searching the active list before the paused one. An app holding grants
// of several request types on one display releases one of them per call.
func (e *Engine) ReleaseFocus(displayID DisplayID, appID string) Result {
	ds := e.state(displayID)
	ds.mu.Lock()
	defer ds.mu.Unlock()

	for i, a := range ds.active {
		if a.AppID != appID {
			continue
		}
		ds.active = removeAt(ds.active, i)
		e.registry.RemoveByApp(BucketRequestFocus, displayID, appID)
		e.promote(ds, displayID, a.RequestType)
		e.record(displayID, appID, a.RequestType, ResultSuccessfullyReleased)
		e.broadcastStatus(displayID, ds)
		return ResultSuccessfullyReleased
	}
	for i, a := range ds.paused {
		if a.AppID != appID {
			continue
		}
		ds.paused = removeAt(ds.paused, i)
		e.registry.RemoveByApp(BucketRequestFocus, displayID, appID)
		e.record(displayID, appID, a.RequestType, ResultSuccessfullyReleased)
		e.broadcastStatus(displayID, ds)
		return ResultSuccessfullyReleased
	}

	e.log.Info().Str("app", appID).Int("display", int(displayID)).Msg("releaseFocus for unregistered app")
	return ""
}

// promote implements §4.4.4. Must be called with ds.mu held. triggerType is
// the request type of the active entry that was just removed.
func (e *Engine) promote(ds *displayState, displayID DisplayID, triggerType string) {
	if len(ds.active) == 0 && len(ds.paused) == 1 {
		p := ds.paused[0]
		ds.paused = nil
		ds.active = append(ds.active, p)
		e.registry.DeliverTo(BucketRequestFocus, displayID, p.AppID, replyEnvelope{ReturnValue: true, Result: ResultGranted})
		e.record(displayID, p.AppID, p.RequestType, ResultGranted)
		return
	}

	for {
		promotedIdx := -1
		for i, p := range ds.paused {
			action, ok := e.policy.ActionFor(p.RequestType, triggerType)
			if !ok || action != ActionPause {
				continue
			}
			blocked := false
			for _, a := range ds.active {
				if act, ok := e.policy.ActionFor(a.RequestType, p.RequestType); ok && (act == ActionPause || act == ActionLost) {
					blocked = true
					break
				}
			}
			if !blocked {
				promotedIdx = i
				break
			}
		}
		if promotedIdx < 0 {
			return
		}
		p := ds.paused[promotedIdx]
		ds.paused = removeAt(ds.paused, promotedIdx)
		ds.active = append(ds.active, p)
		e.registry.DeliverTo(BucketRequestFocus, displayID, p.AppID, replyEnvelope{ReturnValue: true, Result: ResultGranted})
		e.record(displayID, p.AppID, p.RequestType, ResultGranted)
	}
}

// HandleCancellation implements §4.4.5: a subscribed app's transport
// connection went away. No reply is sent.
func (e *Engine) HandleCancellation(displayID DisplayID, appID string) {
	ds := e.state(displayID)
	if ds == nil {
		return
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()

	// The request type isn't known from a bare cancellation signal, so we
	// match by appID alone and remove the first entry found (active list
	// first); other entries the same app holds on this display stay.
	for i, a := range ds.active {
		if a.AppID == appID {
			removed := a
			ds.active = removeAt(ds.active, i)
			e.registry.RemoveByApp(BucketRequestFocus, displayID, appID)
			e.promote(ds, displayID, removed.RequestType)
			e.broadcastStatus(displayID, ds)
			return
		}
	}
	for i, a := range ds.paused {
		if a.AppID == appID {
			ds.paused = removeAt(ds.paused, i)
			e.registry.RemoveByApp(BucketRequestFocus, displayID, appID)
			e.broadcastStatus(displayID, ds)
			return
		}
	}
}

// Subscribe attaches a handle to a bucket directly, for subscriptions that
// carry no state transition of their own (getStatus).
func (e *Engine) Subscribe(bucket Bucket, handle Handle, appID string, displayID DisplayID) {
	e.registry.Add(bucket, handle, appID, displayID)
}

// Shutdown broadcasts LOST to every still-subscribed app on every display,
// per the lifecycle-signal handling in §6. No further notifications are
// emitted after this returns.
func (e *Engine) Shutdown() {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for displayID, ds := range e.displays {
		ds.mu.Lock()
		for _, a := range append(append([]AppInfo(nil), ds.active...), ds.paused...) {
			e.registry.DeliverTo(BucketRequestFocus, displayID, a.AppID, replyEnvelope{ReturnValue: true, Result: ResultLost})
		}
		ds.active = nil
		ds.paused = nil
		ds.mu.Unlock()
	}
}

type replyEnvelope struct {
	ReturnValue bool   `json:"returnValue"`
	Result      Result `json:"result"`
}
