// Package events allows for the registering and receiving of node events.
// An event is a line starting with the name of the package that raised it,
// such as "worker: runMiningOperation: ...".
package events

import (
	"fmt"
	"strings"
	"sync"
)

// messageBuffer is the number of events a slow receiver can fall behind
// before events are dropped for it.
const messageBuffer = 100

// client is one registered receiver and the packages it listens to.
type client struct {
	ch   chan string
	pkgs []string
}

// wants reports whether the event was raised by one of the packages the
// client listens to. A client without packages receives everything.
func (c client) wants(s string) bool {
	if len(c.pkgs) == 0 {
		return true
	}

	pkg, _, found := strings.Cut(s, ":")
	if !found {
		return false
	}

	for _, p := range c.pkgs {
		if p == pkg {
			return true
		}
	}

	return false
}

// =============================================================================

// Events maintains a mapping of unique id and channels so goroutines
// can register and receive events.
type Events struct {
	m  map[string]client
	mu sync.RWMutex
}

// New constructs an events for registering and receiving events.
func New() *Events {
	return &Events{
		m: make(map[string]client),
	}
}

// Shutdown closes and removes all channels that were provided by
// the call to Acquire.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, c := range evt.m {
		delete(evt.m, id)
		close(c.ch)
	}
}

// Acquire takes a unique id and returns a channel that receives the events
// raised by the named packages, or every event when none are named.
func (evt *Events) Acquire(id string, pkgs ...string) chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if c, exists := evt.m[id]; exists {
		return c.ch
	}

	c := client{
		ch:   make(chan string, messageBuffer),
		pkgs: pkgs,
	}
	evt.m[id] = c

	return c.ch
}

// Release closes and removes the channel that was provided by
// the call to Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	c, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(c.ch)
	return nil
}

// Count returns the number of registered receivers.
func (evt *Events) Count() int {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return len(evt.m)
}

// Send signals a message to every registered channel that wants it. Send
// will not block waiting for a receiver on any given channel.
func (evt *Events) Send(s string) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, c := range evt.m {
		if !c.wants(s) {
			continue
		}

		select {
		case c.ch <- s:
		default:
		}
	}
}
