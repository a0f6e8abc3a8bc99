package api

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/brickd/internal/action"
)

// Route is a transport that knows which connections it serves.
// *Hub and *mqtt.Bridge implement it.
type Route interface {
	action.Transport
	Owns(id uuid.UUID) bool
}

// Fanout is the action.Transport handed to the dispatcher when more than
// one transport is active. Broadcasts reach every route; targeted messages
// go to the route that owns the connection.
type Fanout struct {
	mu     sync.RWMutex
	routes []Route
}

// NewFanout creates a Fanout over routes.
func NewFanout(routes ...Route) *Fanout {
	return &Fanout{routes: routes}
}

// Add appends a route.
func (f *Fanout) Add(r Route) {
	f.mu.Lock()
	f.routes = append(f.routes, r)
	f.mu.Unlock()
}

// SendMessage implements action.Transport.
func (f *Fanout) SendMessage(content string, target uuid.UUID) error {
	f.mu.RLock()
	routes := append([]Route(nil), f.routes...)
	f.mu.RUnlock()

	if target == uuid.Nil {
		var errs []error
		for _, r := range routes {
			if err := r.SendMessage(content, uuid.Nil); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	for _, r := range routes {
		if r.Owns(target) {
			return r.SendMessage(content, target)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownConnection, target)
}
