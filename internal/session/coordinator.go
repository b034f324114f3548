// Package session owns the single scanning-agent session and the
// dashboard fan-out, and drives the workflow core. Every inbound event —
// scans, dashboard requests, admin commands, timer ticks — becomes a
// command on one channel consumed by one dispatcher goroutine, so each
// request runs to completion before the next begins.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"workshop-scan-backend/config"
	"workshop-scan-backend/internal/gateway"
	"workshop-scan-backend/internal/lockout"
	"workshop-scan-backend/internal/notify"
	"workshop-scan-backend/internal/scanerr"
	"workshop-scan-backend/internal/txlog"
	"workshop-scan-backend/internal/workflow"
)

// command is one unit of work for the dispatcher loop.
type command interface{ isCommand() }

type scanCommand struct{ code string }
type adminCommand struct{ name string }
type applyActionCommand struct {
	sub *subscriber
	req applyActionRequest
}
type createLockoutCommand struct {
	sub *subscriber
	req createLockoutRequest
}
type clearLockoutCommand struct {
	sub *subscriber
	req clearLockoutRequest
}
type refreshCommand struct{ sub *subscriber }
type reportCommand struct {
	sub       *subscriber
	notifyOut bool
}

func (scanCommand) isCommand()          {}
func (adminCommand) isCommand()         {}
func (applyActionCommand) isCommand()   {}
func (createLockoutCommand) isCommand() {}
func (clearLockoutCommand) isCommand()  {}
func (refreshCommand) isCommand()       {}
func (reportCommand) isCommand()        {}

// Coordinator wires the workflow core to the agent and dashboard sockets.
type Coordinator struct {
	cfg      *config.Config
	gw       gateway.Gateway
	alloc    *workflow.Allocator
	locks    lockout.Store
	txs      txlog.Log
	notifier *notify.Client
	hub      *hub

	commands chan command
	shutdown context.CancelFunc

	agent *agentSession
}

// New creates a coordinator. shutdown is invoked when the SHUTDOWN admin
// command is scanned.
func New(cfg *config.Config, gw gateway.Gateway, alloc *workflow.Allocator, locks lockout.Store, txs txlog.Log, notifier *notify.Client, shutdown context.CancelFunc) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		gw:       gw,
		alloc:    alloc,
		locks:    locks,
		txs:      txs,
		notifier: notifier,
		hub:      newHub(),
		commands: make(chan command, 64),
		shutdown: shutdown,
		agent:    &agentSession{},
	}
}

// Run is the dispatcher loop. Periodic refresh and report generation are
// ticks on the same loop, serialized with live requests.
func (c *Coordinator) Run(ctx context.Context) {
	log.Println("Session coordinator started.")
	refreshTicker := time.NewTicker(c.cfg.Refresh.Interval)
	defer refreshTicker.Stop()
	reportTicker := time.NewTicker(c.cfg.Report.Interval)
	defer reportTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Session coordinator shutting down.")
			return
		case cmd := <-c.commands:
			c.dispatch(ctx, cmd)
		case <-refreshTicker.C:
			c.dispatch(ctx, refreshCommand{})
		case <-reportTicker.C:
			if c.txs.Enabled() {
				c.dispatch(ctx, reportCommand{notifyOut: true})
			}
		}
	}
}

// post queues a command for the dispatcher.
func (c *Coordinator) post(cmd command) {
	c.commands <- cmd
}

func (c *Coordinator) dispatch(ctx context.Context, cmd command) {
	switch cmd := cmd.(type) {
	case scanCommand:
		c.handleScan(ctx, cmd.code)
	case adminCommand:
		c.handleAdmin(cmd.name)
	case applyActionCommand:
		c.handleApplyAction(ctx, cmd.sub, cmd.req)
	case createLockoutCommand:
		c.handleCreateLockout(ctx, cmd.sub, cmd.req)
	case clearLockoutCommand:
		c.handleClearLockout(ctx, cmd.sub, cmd.req)
	case refreshCommand:
		c.handleRefresh(ctx, cmd.sub)
	case reportCommand:
		c.handleReport(ctx, cmd.sub, cmd.notifyOut)
	}
}

// reportError delivers a failure to the requesting subscriber, or to
// every subscriber when the request originated at the agent (sub nil).
func (c *Coordinator) reportError(sub *subscriber, err error) {
	var payload *scanerr.Error
	if !errors.As(err, &payload) {
		payload = &scanerr.Error{Code: "internal_error", Message: err.Error()}
	}
	log.Printf("Request failed: %v", err)
	if sub != nil {
		sub.sendEvent(EventServerError, payload)
		return
	}
	c.hub.broadcast(EventServerError, payload)
}

// handleScan resolves a scanned code into a work order plus its
// permissible next statuses and broadcasts the result.
func (c *Coordinator) handleScan(ctx context.Context, code string) {
	c.hub.broadcast(EventBusy, busyPayload{Busy: true, Message: "Looking up work order..."})
	defer c.hub.broadcast(EventBusy, busyPayload{Busy: false})

	wo, err := c.gw.WorkOrder(ctx, code)
	if err != nil {
		c.reportError(nil, err)
		return
	}

	catalog, err := c.gw.StatusCatalog(ctx)
	if err != nil {
		c.reportError(nil, err)
		return
	}

	options, err := workflow.PermissibleStates(wo.Status, catalog, wo.Bay != nil)
	if err != nil {
		c.reportError(nil, err)
		return
	}

	if err := c.txs.Record(ctx, "scan", map[string]any{"work_order": wo.ID, "code": code}); err != nil {
		log.Printf("Warning: failed to log scan transaction: %v", err)
	}

	c.hub.broadcast(EventScan, scanPayload{WorkOrder: wo, Options: options})
}

// handleAdmin routes a scanned system command.
func (c *Coordinator) handleAdmin(name string) {
	log.Printf("QRCommand: %s", name)
	switch name {
	case "RECONNECT":
		if err := c.gw.Reconnect(); err != nil {
			c.reportError(nil, err)
			return
		}
		c.hub.broadcast(EventInfo, infoPayload{Type: "admin", Message: "Record store reconnected"})
	case "DISCONNECT":
		if err := c.gw.Disconnect(); err != nil {
			c.reportError(nil, err)
			return
		}
		c.hub.broadcast(EventInfo, infoPayload{Type: "admin", Message: "Record store disconnected"})
	case "CLEAR_CACHES":
		c.gw.ClearCaches()
		c.hub.broadcast(EventInfo, infoPayload{Type: "admin", Message: "Caches cleared"})
	case "SHUTDOWN":
		log.Println("QRCommand: shutting down")
		c.shutdown()
	default:
		log.Printf("QRCommand: unknown command %q", name)
	}
}

// handleApplyAction validates a requested transition, allocates storage
// when the target requires it, commits through the gateway and
// broadcasts the acknowledgement plus a fresh occupancy snapshot.
func (c *Coordinator) handleApplyAction(ctx context.Context, sub *subscriber, req applyActionRequest) {
	c.hub.broadcast(EventBusy, busyPayload{Busy: true, Message: "Applying action..."})
	defer c.hub.broadcast(EventBusy, busyPayload{Busy: false})

	wo, err := c.gw.WorkOrder(ctx, strconv.FormatInt(req.WorkOrder, 10))
	if err != nil {
		c.reportError(sub, err)
		return
	}

	catalog, err := c.gw.StatusCatalog(ctx)
	if err != nil {
		c.reportError(sub, err)
		return
	}

	target, err := workflow.FindAction(catalog, req.Action)
	if err != nil {
		c.reportError(sub, err)
		return
	}

	options, err := workflow.PermissibleStates(wo.Status, catalog, wo.Bay != nil)
	if err != nil {
		c.reportError(sub, err)
		return
	}
	permitted := false
	for _, opt := range options {
		if opt.ID == target.ID {
			permitted = true
			break
		}
	}
	if !permitted {
		c.reportError(sub, scanerr.New(scanerr.CodeNoPermissibleStates,
			"action %q is not permissible from state %q", req.Action, wo.Status.Alias))
		return
	}

	ack := actionAckPayload{
		WorkOrder: wo.ID,
		Status:    target.Alias,
		Alert:     target.ExtraAlert,
	}

	if target.IsStored {
		res, err := c.alloc.Allocate(ctx, wo, target)
		if err != nil {
			c.reportError(sub, err)
			return
		}
		defer res.Release()

		if err := c.commitStored(ctx, wo, target, res); err != nil {
			c.reportError(sub, err)
			return
		}
		bay := res.Bay
		ack.Bay = &bay
		ack.BayChanged = res.Changed
		ack.MoveRequired = res.Changed
	} else {
		if err := c.gw.SetStatus(ctx, wo.ID, target); err != nil {
			c.reportError(sub, err)
			return
		}
		ack.Bay = wo.Bay
	}

	err = c.txs.Record(ctx, "action_applied", map[string]any{
		"work_order":      wo.ID,
		"action":          req.Action,
		"new_state_alias": target.Alias,
		"bay":             bayName(ack.Bay),
	})
	if err != nil {
		log.Printf("Warning: failed to log action transaction: %v", err)
	}

	c.hub.broadcast(EventActionAck, ack)
	c.broadcastSnapshot(ctx)
}

// commitStored persists the allocation decision: status first, then the
// location and explanatory note when the bay changed. Failures after the
// first write are reported but not rolled back.
func (c *Coordinator) commitStored(ctx context.Context, wo *gateway.WorkOrder, target gateway.StatusDefinition, res *workflow.Reservation) error {
	if err := c.gw.SetStatus(ctx, wo.ID, target); err != nil {
		return err
	}
	if !res.Changed {
		return nil
	}

	if err := c.gw.SetLocation(ctx, wo.ID, res.Bay.ID); err != nil {
		return err
	}

	if wo.Bay == nil {
		if c.cfg.Notes.OnAssign {
			if err := c.gw.AddNote(ctx, wo.ID, fmt.Sprintf("Location assigned: %s", res.Bay.Name)); err != nil {
				return err
			}
		}
	} else if c.cfg.Notes.OnRelocate {
		if err := c.gw.AddNote(ctx, wo.ID, fmt.Sprintf("Location changed: %s -> %s", wo.Bay.Name, res.Bay.Name)); err != nil {
			return err
		}
	}
	return nil
}

// handleCreateLockout persists a new bay hold unless an open work order
// already occupies the bay.
func (c *Coordinator) handleCreateLockout(ctx context.Context, sub *subscriber, req createLockoutRequest) {
	occupant, err := c.gw.WorkOrderByLocation(ctx, req.Bay)
	if err != nil && scanerr.CodeOf(err) != scanerr.CodeOverallocatedBay {
		c.reportError(sub, err)
		return
	}
	if occupant != nil || scanerr.CodeOf(err) == scanerr.CodeOverallocatedBay {
		c.reportError(sub, scanerr.New(scanerr.CodeLockoutCreateFailed,
			"bay %d holds an open work order", req.Bay))
		return
	}

	lock, err := c.locks.Create(ctx, req.Bay, req.Engineer)
	if err != nil {
		c.reportError(sub, err)
		return
	}
	if lock == nil {
		// Lockouts unconfigured; nothing was persisted.
		return
	}

	err = c.txs.Record(ctx, "lockout_change", map[string]any{
		"action":   "create",
		"bay":      req.Bay,
		"engineer": req.Engineer,
	})
	if err != nil {
		log.Printf("Warning: failed to log lockout transaction: %v", err)
	}

	c.notifier.LockoutCreated(ctx, c.bayDisplayName(ctx, req.Bay), req.Engineer)
	c.hub.broadcast(EventInfo, infoPayload{Type: "lockout", Message: fmt.Sprintf("Lockout created by %s", req.Engineer)})
	c.broadcastSnapshot(ctx)
}

// handleClearLockout removes a hold by lockout id.
func (c *Coordinator) handleClearLockout(ctx context.Context, sub *subscriber, req clearLockoutRequest) {
	if err := c.locks.Clear(ctx, req.ID); err != nil {
		c.reportError(sub, err)
		return
	}

	err := c.txs.Record(ctx, "lockout_change", map[string]any{
		"action": "clear",
		"id":     req.ID,
	})
	if err != nil {
		log.Printf("Warning: failed to log lockout transaction: %v", err)
	}

	c.hub.broadcast(EventInfo, infoPayload{Type: "lockout", Message: fmt.Sprintf("Lockout %d cleared", req.ID)})
	c.broadcastSnapshot(ctx)
}

// handleRefresh recomputes and broadcasts the occupancy snapshot.
func (c *Coordinator) handleRefresh(ctx context.Context, sub *subscriber) {
	snapshot, err := c.alloc.Snapshot(ctx)
	if err != nil {
		c.reportError(sub, err)
		return
	}
	c.hub.broadcast(EventStorageStatus, storagePayload{Bays: snapshot})
}

// handleReport folds today's transactions and broadcasts the aggregate;
// periodic runs also push the summary out through the notify service.
func (c *Coordinator) handleReport(ctx context.Context, sub *subscriber, notifyOut bool) {
	report, err := c.txs.DailyReport(ctx)
	if err != nil {
		c.reportError(sub, err)
		return
	}

	c.hub.broadcast(EventDailyReport, report)
	if notifyOut {
		c.notifier.DailyReport(ctx, report)
	}
}

func (c *Coordinator) broadcastSnapshot(ctx context.Context) {
	snapshot, err := c.alloc.Snapshot(ctx)
	if err != nil {
		log.Printf("Warning: failed to compute occupancy snapshot: %v", err)
		return
	}
	c.hub.broadcast(EventStorageStatus, storagePayload{Bays: snapshot})
}

// bayDisplayName resolves a bay id to its name for human-facing output,
// falling back to the raw id.
func (c *Coordinator) bayDisplayName(ctx context.Context, bayID int64) string {
	bays, err := c.gw.StorageLocations(ctx)
	if err == nil {
		for _, bay := range bays {
			if bay.ID == bayID {
				return bay.Name
			}
		}
	}
	return strconv.FormatInt(bayID, 10)
}

func bayName(bay *gateway.Bay) string {
	if bay == nil {
		return ""
	}
	return bay.Name
}

// Snapshot exposes the occupancy snapshot for the read API.
func (c *Coordinator) Snapshot(ctx context.Context) ([]workflow.BayStatus, error) {
	return c.alloc.Snapshot(ctx)
}

// DailyReport exposes the daily report for the read API.
func (c *Coordinator) DailyReport(ctx context.Context) (*txlog.Report, error) {
	return c.txs.DailyReport(ctx)
}
