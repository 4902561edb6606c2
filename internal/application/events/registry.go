// Package events routes delivered events to the handlers registered for
// their (type name, schema version) at startup.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"stored-file-api/internal/application/ports"
	domain "stored-file-api/internal/domain/stored_file"
	"stored-file-api/pkg/rmqconsumer"
)

var (
	ErrUnknownEvent   = fmt.Errorf("%w: no handler registered", rmqconsumer.ErrSkip)
	ErrMalformedEvent = fmt.Errorf("%w: malformed event", rmqconsumer.ErrDrop)
)

type (
	HandlerFunc func(ctx context.Context, evt domain.Event) error

	Key struct {
		Name    string
		Version int
	}

	Registry struct {
		mu       sync.RWMutex
		handlers map[Key][]HandlerFunc
	}
)

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Key][]HandlerFunc)}
}

// Register adds h for events of the given name and schema version. Several
// handlers may share a key; each receives every matching event.
func (r *Registry) Register(name string, version int, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := Key{Name: name, Version: version}
	r.handlers[k] = append(r.handlers[k], h)
}

func (r *Registry) Handlers(name string, version int) []HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.handlers[Key{Name: name, Version: version}]
}

func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	return keys
}

// Names returns the distinct registered event names in sorted order. The
// consumer binds its queue with them as routing keys.
func (r *Registry) Names() []string {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, k := range r.Keys() {
		if _, ok := seen[k.Name]; ok {
			continue
		}
		seen[k.Name] = struct{}{}
		names = append(names, k.Name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs every handler registered for evt. All handlers run even if
// one fails; the joined error makes the delivery retry as a whole.
func (r *Registry) Dispatch(ctx context.Context, evt domain.Event) error {
	hs := r.Handlers(evt.Type, evt.Version)
	if len(hs) == 0 {
		return fmt.Errorf("%w: %s v%d", ErrUnknownEvent, evt.Type, evt.Version)
	}

	var errs []error
	for _, h := range hs {
		if err := h(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleMessage decodes a broker message and dispatches it.
func (r *Registry) HandleMessage(ctx context.Context, msg rmqconsumer.Message) error {
	var evt domain.Event
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.Type == "" {
		evt.Type = msg.RoutingKey
	}
	if evt.Version == 0 {
		evt.Version = msg.SchemaVersion
	}
	if evt.FileID == (domain.UUID{}) {
		return fmt.Errorf("%w: missing file_id", ErrMalformedEvent)
	}

	return r.Dispatch(ctx, evt)
}

// RegisterPipeline wires the stored-file pipeline handlers.
func RegisterPipeline(r *Registry, p ports.StoredFilePipeline) {
	r.Register(domain.EventUploaded, domain.EventSchemaV1, p.HandleUploaded)
	r.Register(domain.EventReady, domain.EventSchemaV1, p.HandleReady)
}
