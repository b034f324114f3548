package session

import (
	"encoding/json"
	"time"

	"workshop-scan-backend/internal/gateway"
	"workshop-scan-backend/internal/workflow"
)

// Envelope is the JSON frame exchanged with agents and dashboards.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound event names. These are the broadcast topics dashboards key on.
const (
	EventHello         = "hello"
	EventScan          = "scan"
	EventStorageStatus = "storage_status"
	EventScannerStatus = "scanner_status"
	EventBusy          = "busy"
	EventActionAck     = "action_ack"
	EventDailyReport   = "daily_report"
	EventServerError   = "server_error"
	EventInfo          = "info"
)

// Inbound request names accepted from dashboard subscribers.
const (
	RequestApplyAction   = "apply_action"
	RequestCreateLockout = "create_lockout"
	RequestClearLockout  = "clear_lockout"
	RequestRefresh       = "refresh"
	RequestDailyReport   = "daily_report"
)

// helloPayload is the handshake sent to a freshly-connected dashboard.
type helloPayload struct {
	APIVersion   int       `json:"api_version"`
	APIName      string    `json:"api_name"`
	ConnectTime  time.Time `json:"connect_time"`
	ScannerReady bool      `json:"scanner_ready"`
}

// scanPayload pairs a resolved work order with its legal next statuses.
type scanPayload struct {
	WorkOrder *gateway.WorkOrder         `json:"work_order"`
	Options   []gateway.StatusDefinition `json:"options"`
}

// scannerStatusPayload reports agent connectivity transitions.
type scannerStatusPayload struct {
	Status string `json:"status"` // connected | disconnected | faulted
}

// busyPayload is the progress indicator shown while a request runs.
type busyPayload struct {
	Busy    bool   `json:"busy"`
	Message string `json:"message,omitempty"`
}

// actionAckPayload acknowledges an applied action.
type actionAckPayload struct {
	WorkOrder    int64        `json:"work_order"`
	Status       string       `json:"status"`
	Bay          *gateway.Bay `json:"bay,omitempty"`
	BayChanged   bool         `json:"bay_changed"`
	MoveRequired bool         `json:"move_required"`
	Alert        string       `json:"alert,omitempty"`
}

// storagePayload is the full occupancy snapshot broadcast.
type storagePayload struct {
	Bays []workflow.BayStatus `json:"bays"`
}

// infoPayload is a low-priority operator notice.
type infoPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Dashboard request payloads.

type applyActionRequest struct {
	WorkOrder int64  `json:"work_order"`
	Action    string `json:"action"`
}

type createLockoutRequest struct {
	Bay      int64  `json:"bay"`
	Engineer string `json:"engineer"`
}

type clearLockoutRequest struct {
	ID int64 `json:"id"`
}

// marshalEnvelope encodes an event frame; encoding failures fall back to
// an empty data field rather than dropping the event.
func marshalEnvelope(event string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = nil
	}
	frame, _ := json.Marshal(Envelope{Event: event, Data: raw})
	return frame
}
