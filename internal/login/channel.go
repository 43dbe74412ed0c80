package login

import "sync"

// Sink receives human-readable progress messages from a login flow.
type Sink interface {
	Push(msg string)
}

// Channel is an unbounded FIFO of progress messages. Push never blocks;
// Drain takes everything queued so far. Messages pushed after Close are
// dropped.
type Channel struct {
	mu     sync.Mutex
	msgs   []string
	closed bool
}

func (c *Channel) Push(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.msgs = append(c.msgs, msg)
}

func (c *Channel) Drain() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.msgs
	c.msgs = nil
	if out == nil {
		out = []string{}
	}
	return out
}

// Pending returns a copy of the queued messages without consuming them.
func (c *Channel) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.msgs = nil
}
