package controller

import (
	"sync"

	"github.com/gofiber/websocket/v2"

	"relaycrm/worker"
)

// RunFeed pushes sequence run reports to connected dashboard clients.
type RunFeed struct {
	mu          sync.Mutex
	subscribers map[*websocket.Conn]bool
}

func NewRunFeed() *RunFeed {
	return &RunFeed{subscribers: make(map[*websocket.Conn]bool)}
}

func (f *RunFeed) subscribe(c *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers[c] = true
}

func (f *RunFeed) unsubscribe(c *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subscribers, c)
}

// Broadcast sends the report to every subscriber. Dead connections are
// dropped on write failure.
func (f *RunFeed) Broadcast(report *worker.Report) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.subscribers {
		if err := conn.WriteJSON(report); err != nil {
			conn.Close()
			delete(f.subscribers, conn)
		}
	}
}

// Handler keeps the connection open until the client goes away. The feed
// is write-only; inbound messages are drained and ignored.
func (f *RunFeed) Handler(c *websocket.Conn) {
	f.subscribe(c)
	defer func() {
		f.unsubscribe(c)
		c.Close()
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
}
