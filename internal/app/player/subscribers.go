package player

import "github.com/google/uuid"

// snapshotBufferSize bounds each subscriber channel; slow consumers miss
// intermediate snapshots rather than blocking the controller.
const snapshotBufferSize = 16

// Subscribe registers a snapshot consumer. The channel receives a snapshot
// after every state mutation until Unsubscribe is called with the returned id.
func (c *Controller) Subscribe() (string, <-chan Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan Snapshot, snapshotBufferSize)
	c.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscription and closes its channel.
func (c *Controller) Unsubscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.subscribers[id]; ok {
		delete(c.subscribers, id)
		close(ch)
	}
}

// notify sends the current snapshot to all subscribers without blocking.
func (c *Controller) notify() {
	c.mu.RLock()
	snap := c.snapshotLocked()
	channels := make([]chan Snapshot, 0, len(c.subscribers))
	for _, ch := range c.subscribers {
		channels = append(channels, ch)
	}
	c.mu.RUnlock()

	for _, ch := range channels {
		select {
		case ch <- snap:
		default:
			// Subscriber is lagging; it will catch up on the next snapshot
		}
	}
}
