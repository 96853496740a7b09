package focus

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// policyFile is the on-disk shape of the policy configuration.
type policyFile struct {
	RequestType []policyFileEntry `json:"requestType" validate:"required"`
}

type policyFileEntry struct {
	Request  string              `json:"request"`
	Priority int                 `json:"priority"`
	Incoming []map[string]string `json:"incoming"`
}

// Entry is one request type's resolved policy.
type Entry struct {
	Request  string
	Priority int
	Incoming map[string]Action
}

// Table is the immutable, loaded-once policy table. It is safe for
// concurrent read access from every display's engine goroutine.
type Table struct {
	entries map[string]Entry
}

// Load reads and validates a policy file at path. IO errors, malformed
// JSON, and unknown action names are fatal. An entry missing its "request"
// name is not: it is skipped with a warning and the rest of the file is
// still loaded.
func Load(path string, log zerolog.Logger) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var pf policyFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	v := validator.New()
	if err := v.Struct(pf); err != nil {
		return nil, fmt.Errorf("policy file schema: %w", err)
	}

	entries := make(map[string]Entry, len(pf.RequestType))
	for _, fe := range pf.RequestType {
		if fe.Request == "" {
			log.Warn().Interface("entry", fe).Msg("policy file: skipping entry with no request name")
			continue
		}
		incoming := make(map[string]Action, len(fe.Incoming))
		for _, m := range fe.Incoming {
			for other, act := range m {
				a := Action(act)
				switch a {
				case ActionPause, ActionLost, ActionMix:
				default:
					return nil, fmt.Errorf("policy file: %s: incoming %s: unknown action %q", fe.Request, other, act)
				}
				incoming[other] = a
			}
		}
		entries[fe.Request] = Entry{Request: fe.Request, Priority: fe.Priority, Incoming: incoming}
	}

	return &Table{entries: entries}, nil
}

// Lookup returns the policy entry for a request type, if known.
func (t *Table) Lookup(requestType string) (Entry, bool) {
	e, ok := t.entries[requestType]
	return e, ok
}

// ActionFor reports the action a holder of holderType takes when
// arrivingType shows up. A missing entry (either type unknown, or the
// holder's incoming matrix has no row for arrivingType) means the pair is
// undefined and the arriving request must be denied.
func (t *Table) ActionFor(holderType, arrivingType string) (Action, bool) {
	e, ok := t.entries[holderType]
	if !ok {
		return "", false
	}
	a, ok := e.Incoming[arrivingType]
	return a, ok
}

// Known reports whether requestType appears in the table.
func (t *Table) Known(requestType string) bool {
	_, ok := t.entries[requestType]
	return ok
}

// Names returns every request type name in the table, for tooling that
// needs to enumerate the full set (e.g. validate-policy's pairwise scan).
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	return names
}

// WatchForChanges logs a warning if the policy file is modified after
// startup. The table is loaded once and never hot-reloaded; this exists
// only so a stale-policy-file misconfiguration is visible in the logs
// rather than silently shipped.
func WatchForChanges(path string, log zerolog.Logger, stop <-chan struct{}) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("policy file watcher unavailable")
		return
	}
	defer w.Close()

	if err := w.Add(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not watch policy file")
		return
	}

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				log.Warn().Str("path", path).Str("op", ev.Op.String()).
					Msg("policy file changed after startup; the running table is not reloaded")
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("policy file watcher error")
		case <-stop:
			return
		}
	}
}
