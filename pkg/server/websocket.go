package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"anistream/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the API is same-origin proxied; the player UI connects cross-port in dev
	},
}

// WSMessage is the envelope for every event pushed to clients.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan WSMessage
	done chan struct{}
}

// trySend queues msg unless the client is gone or its buffer is full. The
// send channel is never closed; done is the removal signal, so a send racing
// a removal cannot panic.
func (c *wsClient) trySend(msg WSMessage) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		// Drop message if client buffer is full
	}
}

func (s *Server) addClient(c *wsClient) {
	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()
}

func (s *Server) removeClient(c *wsClient) {
	s.clientsMu.Lock()
	if s.clients[c] {
		delete(s.clients, c)
		close(c.done)
	}
	s.clientsMu.Unlock()
}

// broadcastLogs fans formatted log lines out to every connected client.
func (s *Server) broadcastLogs() {
	for line := range s.logCh {
		msg := WSMessage{Type: "log_entry", Payload: json.RawMessage(fmt.Sprintf("%q", line))}

		s.clientsMu.Lock()
		for client := range s.clients {
			client.trySend(msg)
		}
		s.clientsMu.Unlock()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("websocket upgrade failed", "err", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan WSMessage, 256), done: make(chan struct{})}
	s.addClient(client)
	defer func() {
		s.removeClient(client)
		conn.Close()
	}()

	logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	// Replay recent logs and the current health snapshot immediately.
	go func() {
		s.sendLogHistory(client)
		s.sendHealth(client)
	}()

	// Read loop: the only client command today is an explicit health poll.
	go func() {
		for {
			var msg WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Debug("websocket read error", "err", err)
				}
				conn.Close()
				return
			}
			if msg.Type == "get_health" {
				s.sendHealth(client)
			}
		}
	}()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	// Write loop (Server -> Client)
	for {
		select {
		case <-client.done:
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			s.sendHealth(client)
		case msg := <-client.send:
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func (s *Server) sendHealth(client *wsClient) {
	payload, _ := json.Marshal(s.manager.HealthStatus())
	client.trySend(WSMessage{Type: "health", Payload: payload})
}

func (s *Server) sendLogHistory(client *wsClient) {
	payload, _ := json.Marshal(logger.History())
	client.trySend(WSMessage{Type: "log_history", Payload: payload})
}
