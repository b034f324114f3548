package session

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workshop-scan-backend/config"
	"workshop-scan-backend/internal/gateway"
	"workshop-scan-backend/internal/model"
	"workshop-scan-backend/internal/notify"
	"workshop-scan-backend/internal/scanerr"
	"workshop-scan-backend/internal/txlog"
	"workshop-scan-backend/internal/workflow"
)

// fakeGateway is an in-memory record store for coordinator tests.
type fakeGateway struct {
	catalog *gateway.Catalog
	bays    []gateway.Bay
	orders  map[int64]gateway.WorkOrder

	statusSets    map[int64]string // work order id -> new status id
	locationSets  map[int64]int64  // work order id -> new bay id
	notes         []string
	cachesCleared int
	reconnects    int
	disconnects   int
}

func (f *fakeGateway) WorkOrder(_ context.Context, code string) (*gateway.WorkOrder, error) {
	id, err := strconv.ParseInt(code, 10, 64)
	if err != nil {
		return nil, scanerr.New(scanerr.CodeInvalidBarcode, "scanned code %q is not a work order id", code)
	}
	wo, ok := f.orders[id]
	if !ok {
		return nil, scanerr.New(scanerr.CodeInvalidBarcode, "no work order with id %d", id)
	}
	return &wo, nil
}

func (f *fakeGateway) WorkOrderByLocation(_ context.Context, bayID int64) (*gateway.WorkOrder, error) {
	for _, wo := range f.orders {
		if wo.Bay != nil && wo.Bay.ID == bayID {
			found := wo
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeGateway) OpenWorkOrders(context.Context) ([]gateway.WorkOrder, error) {
	orders := make([]gateway.WorkOrder, 0, len(f.orders))
	for _, wo := range f.orders {
		orders = append(orders, wo)
	}
	return orders, nil
}

func (f *fakeGateway) StorageLocations(context.Context) ([]gateway.Bay, error) {
	return f.bays, nil
}

func (f *fakeGateway) StatusCatalog(context.Context) (*gateway.Catalog, error) {
	return f.catalog, nil
}

func (f *fakeGateway) SetStatus(_ context.Context, woID int64, status gateway.StatusDefinition) error {
	f.statusSets[woID] = status.ID
	return nil
}

func (f *fakeGateway) SetLocation(_ context.Context, woID, bayID int64) error {
	f.locationSets[woID] = bayID
	return nil
}

func (f *fakeGateway) AddNote(_ context.Context, _ int64, text string) error {
	f.notes = append(f.notes, text)
	return nil
}

func (f *fakeGateway) ClearCaches()     { f.cachesCleared++ }
func (f *fakeGateway) Reconnect() error { f.reconnects++; return nil }
func (f *fakeGateway) Disconnect() error {
	f.disconnects++
	return nil
}

// stubLocks is an in-memory lockout store.
type stubLocks struct {
	rows   []model.Lockout
	nextID int64
}

func (s *stubLocks) Enabled() bool { return true }

func (s *stubLocks) Create(_ context.Context, bay int64, engineer string) (*model.Lockout, error) {
	s.nextID++
	row := model.Lockout{ID: s.nextID, Bay: bay, Engineer: engineer}
	s.rows = append(s.rows, row)
	return &row, nil
}

func (s *stubLocks) ForBay(_ context.Context, bay int64) (*model.Lockout, error) {
	for i := range s.rows {
		if s.rows[i].Bay == bay {
			return &s.rows[i], nil
		}
	}
	return nil, nil
}

func (s *stubLocks) Clear(_ context.Context, id int64) error {
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			break
		}
	}
	return nil
}

func (s *stubLocks) List(context.Context) ([]model.Lockout, error) {
	return s.rows, nil
}

// recordingLog captures transaction records in memory.
type recordedTx struct {
	typ     string
	payload map[string]any
}

type recordingLog struct {
	records []recordedTx
}

func (l *recordingLog) Enabled() bool { return true }

func (l *recordingLog) Record(_ context.Context, typ string, payload any) error {
	data, ok := payload.(map[string]any)
	if !ok {
		data = nil
	}
	l.records = append(l.records, recordedTx{typ: typ, payload: data})
	return nil
}

func (l *recordingLog) Today(context.Context) ([]model.Transaction, error) { return nil, nil }

func (l *recordingLog) DailyReport(context.Context) (*txlog.Report, error) {
	return &txlog.Report{Actions: map[string]int{"storage": 2}, Scans: 3, ActionCount: 2}, nil
}

func def(id, alias string, onSite, wip, stored bool) gateway.StatusDefinition {
	return gateway.StatusDefinition{
		ID:             id,
		Alias:          alias,
		DisplayName:    alias,
		OnSite:         onSite,
		WorkInProgress: wip,
		IsStored:       stored,
		Mapped:         true,
	}
}

func testCatalog() *gateway.Catalog {
	return gateway.NewCatalog([]gateway.StatusDefinition{
		def("1", "storage", true, false, true),
		def("2", "on_bench", true, true, false),
		def("3", "awaiting_parts", true, false, false),
		def("5", "complete", true, false, true),
		def("6", "collected", false, false, false),
	})
}

func testFixture(t *testing.T) (*Coordinator, *fakeGateway, *recordingLog, *stubLocks, *subscriber) {
	t.Helper()

	w1 := gateway.Bay{ID: 1, Name: "W1", Type: gateway.BayTypeWIP}
	c1 := gateway.Bay{ID: 2, Name: "C1", Type: gateway.BayTypeComplete}
	c2 := gateway.Bay{ID: 3, Name: "C2", Type: gateway.BayTypeComplete}

	benched, _ := testCatalog().Get("2")
	stored, _ := testCatalog().Get("1")

	gw := &fakeGateway{
		catalog: testCatalog(),
		bays:    []gateway.Bay{w1, c1, c2},
		orders: map[int64]gateway.WorkOrder{
			42: {ID: 42, Status: benched, Bay: &w1, Problem: "no display output"},
			50: {ID: 50, Status: stored, Bay: &c1, Problem: "slow boot"},
		},
		statusSets:   make(map[int64]string),
		locationSets: make(map[int64]int64),
	}
	locks := &stubLocks{}
	txs := &recordingLog{}

	cfg := &config.Config{
		Scan:  config.ScanConfig{CommandPrefix: "PCRT_SCAN_"},
		Notes: config.NotesConfig{OnAssign: true, OnRelocate: true},
	}

	coord := New(cfg, gw, workflow.NewAllocator(gw, locks), locks, txs, notify.NewClient(&config.NotifyConfig{}), func() {})

	sub := &subscriber{send: make(chan []byte, 64)}
	coord.hub.add(sub)

	return coord, gw, txs, locks, sub
}

// drain decodes every frame queued for the subscriber.
func drain(t *testing.T, sub *subscriber) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case frame := <-sub.send:
			var env Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func findEvent(envs []Envelope, event string) (Envelope, bool) {
	for _, env := range envs {
		if env.Event == event {
			return env, true
		}
	}
	return Envelope{}, false
}

func errorCode(t *testing.T, env Envelope) string {
	t.Helper()
	var payload struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	return payload.Code
}

func TestHandleScanBroadcastsWorkOrderAndOptions(t *testing.T) {
	coord, _, txs, _, sub := testFixture(t)

	coord.handleScan(context.Background(), "42")

	envs := drain(t, sub)
	require.Len(t, envs, 3)
	assert.Equal(t, EventBusy, envs[0].Event)
	assert.Equal(t, EventScan, envs[1].Event)
	assert.Equal(t, EventBusy, envs[2].Event)

	var payload struct {
		WorkOrder *gateway.WorkOrder         `json:"work_order"`
		Options   []gateway.StatusDefinition `json:"options"`
	}
	require.NoError(t, json.Unmarshal(envs[1].Data, &payload))
	assert.Equal(t, int64(42), payload.WorkOrder.ID)

	// Work in progress, so the legal moves are the stored statuses.
	var aliases []string
	for _, opt := range payload.Options {
		aliases = append(aliases, opt.Alias)
	}
	assert.Equal(t, []string{"storage", "complete"}, aliases)

	require.Len(t, txs.records, 1)
	assert.Equal(t, "scan", txs.records[0].typ)
}

func TestHandleScanInvalidBarcode(t *testing.T) {
	coord, _, txs, _, sub := testFixture(t)

	coord.handleScan(context.Background(), "nonsense")

	envs := drain(t, sub)
	errEnv, ok := findEvent(envs, EventServerError)
	require.True(t, ok)
	assert.Equal(t, string(scanerr.CodeInvalidBarcode), errorCode(t, errEnv))
	assert.Empty(t, txs.records)
}

func TestHandleApplyActionMovesToFreeBay(t *testing.T) {
	coord, gw, txs, _, sub := testFixture(t)

	// Work order 42 is on the bench in W1; storing it needs a complete
	// bay. C1 is taken by work order 50, so C2 must be picked.
	coord.handleApplyAction(context.Background(), sub, applyActionRequest{WorkOrder: 42, Action: "storage"})

	assert.Equal(t, map[int64]string{42: "1"}, gw.statusSets)
	assert.Equal(t, map[int64]int64{42: 3}, gw.locationSets)
	assert.Equal(t, []string{"Location changed: W1 -> C2"}, gw.notes)

	envs := drain(t, sub)
	ackEnv, ok := findEvent(envs, EventActionAck)
	require.True(t, ok)

	var ack actionAckPayload
	require.NoError(t, json.Unmarshal(ackEnv.Data, &ack))
	assert.Equal(t, int64(42), ack.WorkOrder)
	assert.Equal(t, "storage", ack.Status)
	require.NotNil(t, ack.Bay)
	assert.Equal(t, "C2", ack.Bay.Name)
	assert.True(t, ack.BayChanged)
	assert.True(t, ack.MoveRequired)

	_, ok = findEvent(envs, EventStorageStatus)
	assert.True(t, ok)

	require.Len(t, txs.records, 1)
	assert.Equal(t, "action_applied", txs.records[0].typ)
	assert.Equal(t, "storage", txs.records[0].payload["new_state_alias"])
}

func TestHandleApplyActionNonStoredTargetKeepsBay(t *testing.T) {
	coord, gw, _, _, sub := testFixture(t)

	// Work order 50 is stored in C1; moving it to the bench changes the
	// status but leaves the bay assignment alone.
	coord.handleApplyAction(context.Background(), sub, applyActionRequest{WorkOrder: 50, Action: "on_bench"})

	assert.Equal(t, map[int64]string{50: "2"}, gw.statusSets)
	assert.Empty(t, gw.locationSets)
	assert.Empty(t, gw.notes)

	envs := drain(t, sub)
	ackEnv, ok := findEvent(envs, EventActionAck)
	require.True(t, ok)

	var ack actionAckPayload
	require.NoError(t, json.Unmarshal(ackEnv.Data, &ack))
	require.NotNil(t, ack.Bay)
	assert.Equal(t, "C1", ack.Bay.Name)
	assert.False(t, ack.BayChanged)
	assert.False(t, ack.MoveRequired)
}

func TestHandleApplyActionRejectsImpermissibleTransition(t *testing.T) {
	coord, gw, txs, _, sub := testFixture(t)

	// awaiting_parts is not a stored status, so it is not reachable from
	// the bench.
	coord.handleApplyAction(context.Background(), sub, applyActionRequest{WorkOrder: 42, Action: "awaiting_parts"})

	envs := drain(t, sub)
	errEnv, ok := findEvent(envs, EventServerError)
	require.True(t, ok)
	assert.Equal(t, string(scanerr.CodeNoPermissibleStates), errorCode(t, errEnv))

	assert.Empty(t, gw.statusSets)
	assert.Empty(t, gw.locationSets)
	assert.Empty(t, txs.records)
}

func TestHandleApplyActionUnknownAction(t *testing.T) {
	coord, gw, _, _, sub := testFixture(t)

	coord.handleApplyAction(context.Background(), sub, applyActionRequest{WorkOrder: 42, Action: "teleport"})

	envs := drain(t, sub)
	errEnv, ok := findEvent(envs, EventServerError)
	require.True(t, ok)
	assert.Equal(t, string(scanerr.CodeStateResolutionFailed), errorCode(t, errEnv))
	assert.Empty(t, gw.statusSets)
}

func TestHandleApplyActionAllocationFailureLeavesOrderUntouched(t *testing.T) {
	coord, gw, txs, locks, sub := testFixture(t)

	// Lock the only free complete bay so nothing can take work order 42.
	_, err := locks.Create(context.Background(), 3, "cameron")
	require.NoError(t, err)

	coord.handleApplyAction(context.Background(), sub, applyActionRequest{WorkOrder: 42, Action: "storage"})

	envs := drain(t, sub)
	errEnv, ok := findEvent(envs, EventServerError)
	require.True(t, ok)
	assert.Equal(t, string(scanerr.CodeNoStorageLocations), errorCode(t, errEnv))

	assert.Empty(t, gw.statusSets)
	assert.Empty(t, gw.locationSets)
	assert.Empty(t, gw.notes)
	assert.Empty(t, txs.records)
}

func TestErrorReplyToDepartedSubscriberIsDropped(t *testing.T) {
	coord, gw, _, _, sub := testFixture(t)

	// The dashboard disconnects while its request is still queued; the
	// dispatcher's reply must be dropped, not crash the loop.
	coord.hub.remove(sub)
	coord.handleApplyAction(context.Background(), sub, applyActionRequest{WorkOrder: 42, Action: "teleport"})

	assert.Empty(t, gw.statusSets)
	_, open := <-sub.send
	assert.False(t, open)

	// Removing again is harmless.
	coord.hub.remove(sub)
}

func TestSendEventAfterCloseIsDropped(t *testing.T) {
	sub := &subscriber{send: make(chan []byte, 1)}
	sub.close()
	sub.sendEvent(EventInfo, infoPayload{Type: "admin", Message: "late reply"})

	_, open := <-sub.send
	assert.False(t, open)
}

func TestHandleCreateLockout(t *testing.T) {
	coord, _, txs, locks, sub := testFixture(t)

	coord.handleCreateLockout(context.Background(), sub, createLockoutRequest{Bay: 3, Engineer: "cameron"})

	require.Len(t, locks.rows, 1)
	assert.Equal(t, int64(3), locks.rows[0].Bay)

	require.Len(t, txs.records, 1)
	assert.Equal(t, "lockout_change", txs.records[0].typ)
	assert.Equal(t, "create", txs.records[0].payload["action"])

	envs := drain(t, sub)
	_, ok := findEvent(envs, EventInfo)
	assert.True(t, ok)
	_, ok = findEvent(envs, EventStorageStatus)
	assert.True(t, ok)
}

func TestHandleCreateLockoutRejectsOccupiedBay(t *testing.T) {
	coord, _, txs, locks, sub := testFixture(t)

	// C1 holds work order 50.
	coord.handleCreateLockout(context.Background(), sub, createLockoutRequest{Bay: 2, Engineer: "cameron"})

	envs := drain(t, sub)
	errEnv, ok := findEvent(envs, EventServerError)
	require.True(t, ok)
	assert.Equal(t, string(scanerr.CodeLockoutCreateFailed), errorCode(t, errEnv))

	assert.Empty(t, locks.rows)
	assert.Empty(t, txs.records)
}

func TestHandleClearLockout(t *testing.T) {
	coord, _, txs, locks, sub := testFixture(t)

	created, err := locks.Create(context.Background(), 3, "cameron")
	require.NoError(t, err)

	coord.handleClearLockout(context.Background(), sub, clearLockoutRequest{ID: created.ID})

	assert.Empty(t, locks.rows)
	require.Len(t, txs.records, 1)
	assert.Equal(t, "clear", txs.records[0].payload["action"])
}

func TestHandleAdmin(t *testing.T) {
	t.Run("clear caches", func(t *testing.T) {
		coord, gw, _, _, sub := testFixture(t)
		coord.handleAdmin("CLEAR_CACHES")

		assert.Equal(t, 1, gw.cachesCleared)
		envs := drain(t, sub)
		_, ok := findEvent(envs, EventInfo)
		assert.True(t, ok)
	})

	t.Run("reconnect", func(t *testing.T) {
		coord, gw, _, _, _ := testFixture(t)
		coord.handleAdmin("RECONNECT")
		assert.Equal(t, 1, gw.reconnects)
	})

	t.Run("shutdown", func(t *testing.T) {
		coord, _, _, _, _ := testFixture(t)
		called := false
		coord.shutdown = func() { called = true }
		coord.handleAdmin("SHUTDOWN")
		assert.True(t, called)
	})

	t.Run("unknown command is ignored", func(t *testing.T) {
		coord, gw, _, _, sub := testFixture(t)
		coord.handleAdmin("MAKE_COFFEE")
		assert.Zero(t, gw.cachesCleared)
		assert.Empty(t, drain(t, sub))
	})
}

func TestHandleRefresh(t *testing.T) {
	coord, _, _, _, sub := testFixture(t)

	coord.handleRefresh(context.Background(), sub)

	envs := drain(t, sub)
	statusEnv, ok := findEvent(envs, EventStorageStatus)
	require.True(t, ok)

	var payload storagePayload
	require.NoError(t, json.Unmarshal(statusEnv.Data, &payload))
	assert.Len(t, payload.Bays, 3)
}

func TestHandleReport(t *testing.T) {
	coord, _, _, _, sub := testFixture(t)

	coord.handleReport(context.Background(), sub, false)

	envs := drain(t, sub)
	reportEnv, ok := findEvent(envs, EventDailyReport)
	require.True(t, ok)

	var report txlog.Report
	require.NoError(t, json.Unmarshal(reportEnv.Data, &report))
	assert.Equal(t, 3, report.Scans)
}

func TestRouteScanSeparatesCommands(t *testing.T) {
	coord, _, _, _, _ := testFixture(t)

	coord.routeScan("PCRT_SCAN_CLEAR_CACHES")
	cmd := <-coord.commands
	admin, ok := cmd.(adminCommand)
	require.True(t, ok)
	assert.Equal(t, "CLEAR_CACHES", admin.name)

	coord.routeScan("42")
	cmd = <-coord.commands
	scan, ok := cmd.(scanCommand)
	require.True(t, ok)
	assert.Equal(t, "42", scan.code)
}

func TestAgentSessionSingleClaim(t *testing.T) {
	agent := &agentSession{}
	first := &websocket.Conn{}
	second := &websocket.Conn{}

	assert.True(t, agent.claim(first))
	assert.False(t, agent.claim(second))
	assert.True(t, agent.connected())

	// Releasing with the wrong conn leaves the session held.
	agent.release(second)
	assert.True(t, agent.connected())

	agent.release(first)
	assert.False(t, agent.connected())
	assert.True(t, agent.claim(second))
}
