// Package broadcast coordinates active-room state between sessions of the
// same profile. Each session opens a named channel on a shared bus;
// announcements on a channel reach every other open channel with the same
// name, never the announcer itself.
package broadcast

import "sync"

// ActiveRoomChannel is the channel name used for the one-active-room
// invariant.
const ActiveRoomChannel = "active-room"

// Callback receives an announcement: the announcing session's active room
// id (empty when it has none) and an error message (empty when none).
type Callback func(roomID, errMsg string)

// Bus fans announcements out between channels. One Bus corresponds to one
// profile.
type Bus struct {
	mu       sync.Mutex
	channels map[string]map[*Channel]bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{channels: make(map[string]map[*Channel]bool)}
}

// Open creates a channel handle on the bus. The handle is registered with
// the bus only while it has observers.
func (b *Bus) Open(name string) *Channel {
	return &Channel{bus: b, name: name}
}

// Channel is one session's handle on a named broadcast channel.
type Channel struct {
	bus  *Bus
	name string

	mu        sync.Mutex
	callbacks []Callback
}

// Announce broadcasts the current active-room state to all other channels
// of the same name.
func (c *Channel) Announce(roomID, errMsg string) {
	c.bus.mu.Lock()
	var targets []*Channel
	for ch := range c.bus.channels[c.name] {
		if ch != c {
			targets = append(targets, ch)
		}
	}
	c.bus.mu.Unlock()

	for _, ch := range targets {
		ch.deliver(roomID, errMsg)
	}
}

// Observe registers a listener and returns its unsubscribe function. When
// the last listener unsubscribes the channel is released from the bus.
func (c *Channel) Observe(cb Callback) func() {
	c.mu.Lock()
	c.callbacks = append(c.callbacks, cb)
	idx := len(c.callbacks) - 1
	c.mu.Unlock()

	c.bus.register(c)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.callbacks[idx] = nil
			empty := true
			for _, cb := range c.callbacks {
				if cb != nil {
					empty = false
					break
				}
			}
			if empty {
				c.callbacks = nil
			}
			c.mu.Unlock()

			if empty {
				c.bus.unregister(c)
			}
		})
	}
}

// Close drops all listeners and releases the channel.
func (c *Channel) Close() {
	c.mu.Lock()
	c.callbacks = nil
	c.mu.Unlock()
	c.bus.unregister(c)
}

func (c *Channel) deliver(roomID, errMsg string) {
	c.mu.Lock()
	callbacks := make([]Callback, len(c.callbacks))
	copy(callbacks, c.callbacks)
	c.mu.Unlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(roomID, errMsg)
		}
	}
}

func (b *Bus) register(c *Channel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channels[c.name] == nil {
		b.channels[c.name] = make(map[*Channel]bool)
	}
	b.channels[c.name][c] = true
}

func (b *Bus) unregister(c *Channel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.channels[c.name], c)
	if len(b.channels[c.name]) == 0 {
		delete(b.channels, c.name)
	}
}
