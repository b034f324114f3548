package session

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const apiVersion = 1

// HandleDashboard services one dashboard subscriber websocket until it
// closes. Subscribers receive every broadcast and may issue mutating
// requests, which are queued onto the dispatcher.
func (c *Coordinator) HandleDashboard(conn *websocket.Conn) {
	sub := &subscriber{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	c.hub.add(sub)
	go sub.writePump()

	log.Printf("New dashboard subscriber connected (%d active).", c.hub.count())
	sub.sendEvent(EventHello, helloPayload{
		APIVersion:   apiVersion,
		APIName:      "workshop_scan",
		ConnectTime:  time.Now(),
		ScannerReady: c.agent.connected(),
	})

	defer func() {
		c.hub.remove(sub)
		conn.Close()
		log.Printf("Dashboard subscriber disconnected (%d active).", c.hub.count())
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("Undecodable dashboard frame: %v", err)
			continue
		}

		switch env.Event {
		case RequestApplyAction:
			var req applyActionRequest
			if err := json.Unmarshal(env.Data, &req); err != nil {
				log.Printf("Undecodable apply_action request: %v", err)
				continue
			}
			c.post(applyActionCommand{sub: sub, req: req})

		case RequestCreateLockout:
			var req createLockoutRequest
			if err := json.Unmarshal(env.Data, &req); err != nil {
				log.Printf("Undecodable create_lockout request: %v", err)
				continue
			}
			c.post(createLockoutCommand{sub: sub, req: req})

		case RequestClearLockout:
			var req clearLockoutRequest
			if err := json.Unmarshal(env.Data, &req); err != nil {
				log.Printf("Undecodable clear_lockout request: %v", err)
				continue
			}
			c.post(clearLockoutCommand{sub: sub, req: req})

		case RequestRefresh:
			c.post(refreshCommand{sub: sub})

		case RequestDailyReport:
			c.post(reportCommand{sub: sub})

		default:
			log.Printf("Unknown dashboard request %q", env.Event)
		}
	}
}
