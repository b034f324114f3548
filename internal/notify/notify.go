// Package notify sends out-of-band messages (printed lockout slips,
// daily report summaries) through the workshop's notification service.
// Delivery is best-effort; failures are logged, never propagated.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"workshop-scan-backend/config"
	"workshop-scan-backend/internal/txlog"
)

// Client posts messages to the notify service's v1 API.
type Client struct {
	cfg    *config.NotifyConfig
	client *http.Client
}

// NewClient creates a notify client. Whether anything is actually sent
// is decided per message by the routing config: with notifications
// disabled or a message type unrouted, sends are silently skipped.
func NewClient(cfg *config.NotifyConfig) *Client {
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type messageRequest struct {
	Type      string         `json:"type"`
	Recipient string         `json:"recipient"`
	Payload   messagePayload `json:"payload"`
}

type messagePayload struct {
	Message string `json:"message"`
}

// send posts one message. Returns false on any failure.
func (c *Client) send(ctx context.Context, carrier, recipient, message string) bool {
	body, err := json.Marshal(messageRequest{
		Type:      carrier,
		Recipient: recipient,
		Payload:   messagePayload{Message: message},
	})
	if err != nil {
		log.Printf("Error encoding notification: %v", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Server+"/api/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		log.Printf("Error building notification request: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("Error sending notification: %v", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		log.Printf("Error sending notification: %d %s", resp.StatusCode, resp.Status)
		return false
	}
	return true
}

// route looks up the carrier/recipient for a message type; ok is false
// when notifications are off or the type is not routed.
func (c *Client) route(msgType string) (config.NotifyMessage, bool) {
	if c.cfg == nil || !c.cfg.Enabled {
		return config.NotifyMessage{}, false
	}
	msg, ok := c.cfg.Messages[msgType]
	return msg, ok
}

// DailyReport sends the end-of-day summary.
func (c *Client) DailyReport(ctx context.Context, report *txlog.Report) {
	route, ok := c.route("daily_report")
	if !ok {
		return
	}

	var b strings.Builder
	b.WriteString("Workshop Scan Daily Report:\n\n")
	fmt.Fprintf(&b, "Scans today: %d\n", report.Scans)
	fmt.Fprintf(&b, "Actions today: %d\n", report.ActionCount)
	fmt.Fprintf(&b, "Lockouts created: %d\n", report.LockoutsCreated)
	fmt.Fprintf(&b, "Lockouts cleared: %d\n\n", report.LockoutsCleared)
	b.WriteString("Actions:\n")
	for action, count := range report.Actions {
		fmt.Fprintf(&b, "  %s: %d\n", action, count)
	}
	b.WriteString("End of Report\n")

	if c.send(ctx, route.Carrier, route.Recipient, b.String()) {
		log.Println("Daily report notification sent.")
	}
}

// LockoutCreated sends the slip an engineer tapes to a held bay.
func (c *Client) LockoutCreated(ctx context.Context, bayName, engineer string) {
	route, ok := c.route("lockout_created")
	if !ok {
		return
	}

	var b strings.Builder
	b.WriteString("Workshop Bay Lockout Created:\n")
	fmt.Fprintf(&b, "Bay: %s\n", bayName)
	fmt.Fprintf(&b, "Engineer: %s\n\n", engineer)
	b.WriteString("Please write the reason for this lockout below and tape this slip to the bay.\n")
	b.WriteString("Notes:\n\n\n\n\nEnd of Report\n")

	if c.send(ctx, route.Carrier, route.Recipient, b.String()) {
		log.Printf("Lockout slip sent for bay %s.", bayName)
	}
}
