package session

import (
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// agentSession is the single authoritative scanning-agent connection.
type agentSession struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// claim takes the session for conn; false when another agent holds it.
func (a *agentSession) claim(conn *websocket.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		return false
	}
	a.conn = conn
	return true
}

// release frees the session if conn still holds it.
func (a *agentSession) release(conn *websocket.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == conn {
		a.conn = nil
	}
}

func (a *agentSession) connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

// HandleAgent services one scanning-agent websocket until it closes.
// Only one agent session is authoritative at a time: a second connection
// is told so and dropped, leaving the first untouched.
func (c *Coordinator) HandleAgent(conn *websocket.Conn) {
	if !c.agent.claim(conn) {
		log.Println("Agent connection rejected: a scanner is already connected.")
		conn.WriteMessage(websocket.TextMessage,
			marshalEnvelope(EventServerError, map[string]string{
				"code":    "scanner_conflict",
				"message": "there is already a scanner connected",
			}))
		conn.Close()
		return
	}

	log.Println("New scanner agent has connected.")
	c.hub.broadcast(EventScannerStatus, scannerStatusPayload{Status: "connected"})

	status := "disconnected"
	defer func() {
		c.agent.release(conn)
		conn.Close()
		log.Println("Scanner agent has gone away.")
		c.hub.broadcast(EventScannerStatus, scannerStatusPayload{Status: status})
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Scanner agent connection faulted: %v", err)
				status = "faulted"
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("Undecodable agent frame: %v", err)
			continue
		}

		switch env.Event {
		case "barcode":
			var code string
			if err := json.Unmarshal(env.Data, &code); err != nil {
				log.Printf("Undecodable barcode payload: %v", err)
				continue
			}
			c.routeScan(code)
		case "event":
			log.Printf("Scanner event: %s", string(env.Data))
		default:
			log.Printf("Unknown agent event %q", env.Event)
		}
	}
}

// routeScan separates reserved system commands from work-order lookups.
func (c *Coordinator) routeScan(code string) {
	if strings.HasPrefix(code, c.cfg.Scan.CommandPrefix) {
		name := strings.TrimSpace(strings.TrimPrefix(code, c.cfg.Scan.CommandPrefix))
		log.Printf("Received system command: %s", name)
		c.post(adminCommand{name: name})
		return
	}
	c.post(scanCommand{code: code})
}

// AgentConnected reports whether a scanner agent session is live.
func (c *Coordinator) AgentConnected() bool {
	return c.agent.connected()
}
