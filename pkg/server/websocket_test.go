package server

import (
	"sync"
	"testing"
)

func TestRemoveClientIsSafeAgainstConcurrentSends(t *testing.T) {
	s := &Server{clients: make(map[*wsClient]bool)}
	c := &wsClient{send: make(chan WSMessage, 1), done: make(chan struct{})}
	s.addClient(c)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			c.trySend(WSMessage{Type: "log_entry"})
		}
	}()

	s.removeClient(c)
	s.removeClient(c) // second removal of the same client is a no-op
	wg.Wait()

	// Sends after removal are silently dropped, never a panic.
	c.trySend(WSMessage{Type: "health"})

	select {
	case <-c.done:
	default:
		t.Fatal("done not closed after removal")
	}
}

func TestTrySendDropsWhenBufferFull(t *testing.T) {
	c := &wsClient{send: make(chan WSMessage, 1), done: make(chan struct{})}
	c.trySend(WSMessage{Type: "log_entry"})
	c.trySend(WSMessage{Type: "log_entry"}) // buffer full, dropped

	if got := len(c.send); got != 1 {
		t.Fatalf("buffered %d messages, want 1", got)
	}
}
