// Package gateway is the narrow query/command contract over the external
// record store. It is the only package that touches the legacy schema;
// everything above it works with the formatted domain types.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"workshop-scan-backend/config"
	"workshop-scan-backend/internal/model"
	"workshop-scan-backend/internal/scanerr"
)

const (
	cacheKeyCatalog = "status_catalog"
	cacheKeyBays    = "storage_locations"
)

// Gateway defines every record-store operation the workflow core consumes.
type Gateway interface {
	WorkOrder(ctx context.Context, code string) (*WorkOrder, error)
	WorkOrderByLocation(ctx context.Context, bayID int64) (*WorkOrder, error)
	OpenWorkOrders(ctx context.Context) ([]WorkOrder, error)
	StorageLocations(ctx context.Context) ([]Bay, error)
	StatusCatalog(ctx context.Context) (*Catalog, error)
	SetStatus(ctx context.Context, woID int64, status StatusDefinition) error
	SetLocation(ctx context.Context, woID, bayID int64) error
	AddNote(ctx context.Context, woID int64, text string) error
	ClearCaches()
	Reconnect() error
	Disconnect() error
}

// gormGateway implements Gateway over GORM.
type gormGateway struct {
	mu         sync.RWMutex
	db         *gorm.DB
	cfg        *config.Config
	terminalID int64
	cache      *gocache.Cache
}

// conn returns the current record-store handle. Guarded because the
// RECONNECT admin command swaps it while API reads may be in flight.
func (g *gormGateway) conn() *gorm.DB {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.db
}

// New creates a record-store gateway. terminalStateID is the status id of
// the terminal ("collected") state, resolved from configuration at startup.
func New(db *gorm.DB, cfg *config.Config, terminalStateID string) (Gateway, error) {
	tid, err := strconv.ParseInt(terminalStateID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("terminal state id %q is not numeric: %w", terminalStateID, err)
	}
	return &gormGateway{
		db:         db,
		cfg:        cfg,
		terminalID: tid,
		cache:      gocache.New(gocache.NoExpiration, 0),
	}, nil
}

// ClearCaches drops the catalog and bay caches; the next read reloads
// them from the record store.
func (g *gormGateway) ClearCaches() {
	log.Println("Clearing storage location and status catalog caches.")
	g.cache.Flush()
}

// StorageLocations returns every bay, typed by naming convention, in
// catalog (slid) order. The result is cached until ClearCaches.
func (g *gormGateway) StorageLocations(ctx context.Context) ([]Bay, error) {
	if v, found := g.cache.Get(cacheKeyBays); found {
		return v.([]Bay), nil
	}

	var rows []model.StorageLocationRow
	if err := g.conn().WithContext(ctx).Order("slid").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read storage locations: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("no storage locations found in record store")
	}

	bays := make([]Bay, 0, len(rows))
	for _, row := range rows {
		bays = append(bays, Bay{
			ID:   row.SLID,
			Name: row.SLName,
			Type: InferBayType(g.cfg.Storage.Prefixes, row.SLName),
		})
	}

	g.cache.Set(cacheKeyBays, bays, gocache.NoExpiration)
	return bays, nil
}

// StatusCatalog returns the status catalog: boxstyles display rows merged
// with the configured workflow flags. Cached until ClearCaches.
func (g *gormGateway) StatusCatalog(ctx context.Context) (*Catalog, error) {
	if v, found := g.cache.Get(cacheKeyCatalog); found {
		return v.(*Catalog), nil
	}

	var rows []model.BoxStyleRow
	if err := g.conn().WithContext(ctx).Order("statusid").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read status catalog: %w", err)
	}

	defs := make([]StatusDefinition, 0, len(rows))
	for _, row := range rows {
		id := strconv.FormatInt(row.StatusID, 10)
		def := StatusDefinition{
			ID:          id,
			DisplayName: row.BoxTitle,
			Colour:      row.SelectorColor,
		}
		if st, ok := g.cfg.States[id]; ok {
			def.Alias = st.Name
			def.OnSite = st.OnSite
			def.WorkInProgress = st.WorkInProgress
			def.IsStored = st.IsStored
			def.ExtraAlert = st.ExtraAlert
			def.Mapped = true
		}
		defs = append(defs, def)
	}

	catalog := NewCatalog(defs)
	g.cache.Set(cacheKeyCatalog, catalog, gocache.NoExpiration)
	return catalog, nil
}

// WorkOrder resolves a scanned code to a formatted work order.
func (g *gormGateway) WorkOrder(ctx context.Context, code string) (*WorkOrder, error) {
	woid, err := strconv.ParseInt(code, 10, 64)
	if err != nil {
		return nil, scanerr.New(scanerr.CodeInvalidBarcode, "scanned code %q is not a work order id", code)
	}

	var row model.WorkOrderRow
	if err := g.conn().WithContext(ctx).First(&row, "woid = ?", woid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, scanerr.New(scanerr.CodeInvalidBarcode, "no work order with id %d", woid)
		}
		return nil, fmt.Errorf("failed to read work order %d: %w", woid, err)
	}

	return g.format(ctx, row)
}

// WorkOrderByLocation returns the open work order occupying the given
// bay, nil when the bay is free, or overallocated_bay when the record
// store maps more than one open work order to it.
func (g *gormGateway) WorkOrderByLocation(ctx context.Context, bayID int64) (*WorkOrder, error) {
	var rows []model.WorkOrderRow
	err := g.conn().WithContext(ctx).
		Where("slid = ? AND pcstatus != ?", bayID, g.terminalID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read work orders for bay %d: %w", bayID, err)
	}

	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return g.format(ctx, rows[0])
	default:
		return nil, scanerr.New(scanerr.CodeOverallocatedBay, "bay %d holds %d open work orders", bayID, len(rows))
	}
}

// OpenWorkOrders returns every non-terminal work order.
func (g *gormGateway) OpenWorkOrders(ctx context.Context) ([]WorkOrder, error) {
	var rows []model.WorkOrderRow
	err := g.conn().WithContext(ctx).
		Where("pcstatus != ?", g.terminalID).
		Order("woid").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read open work orders: %w", err)
	}

	orders := make([]WorkOrder, 0, len(rows))
	for _, row := range rows {
		wo, err := g.format(ctx, row)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *wo)
	}
	return orders, nil
}

// SetStatus moves a work order to a new status. The pickup date is only
// touched when the target status is terminal.
func (g *gormGateway) SetStatus(ctx context.Context, woID int64, status StatusDefinition) error {
	sid, err := strconv.ParseInt(status.ID, 10, 64)
	if err != nil {
		return scanerr.New(scanerr.CodeCommitFailed, "status id %q is not numeric", status.ID)
	}

	updates := map[string]any{"pcstatus": sid}
	if status.Terminal() {
		updates["pickupdate"] = time.Now()
	}

	err = g.conn().WithContext(ctx).
		Model(&model.WorkOrderRow{}).
		Where("woid = ?", woID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("%w: %v", scanerr.New(scanerr.CodeCommitFailed, "failed to set status of work order %d", woID), err)
	}
	return nil
}

// SetLocation assigns a work order to a bay. A bay id of zero clears the
// assignment.
func (g *gormGateway) SetLocation(ctx context.Context, woID, bayID int64) error {
	err := g.conn().WithContext(ctx).
		Model(&model.WorkOrderRow{}).
		Where("woid = ?", woID).
		Update("slid", bayID).Error
	if err != nil {
		return fmt.Errorf("%w: %v", scanerr.New(scanerr.CodeLocationChangeFailed, "failed to set location of work order %d", woID), err)
	}
	return nil
}

// AddNote appends a dated note to a work order.
func (g *gormGateway) AddNote(ctx context.Context, woID int64, text string) error {
	note := model.NoteRow{
		WOID:     woID,
		NoteDate: time.Now(),
		Note:     text,
	}
	if err := g.conn().WithContext(ctx).Create(&note).Error; err != nil {
		return fmt.Errorf("%w: %v", scanerr.New(scanerr.CodeCommitFailed, "failed to add note to work order %d", woID), err)
	}
	return nil
}

// format assembles the domain view of a raw work order row: customer
// join, status definition lookup and bay lookup.
func (g *gormGateway) format(ctx context.Context, row model.WorkOrderRow) (*WorkOrder, error) {
	catalog, err := g.StatusCatalog(ctx)
	if err != nil {
		return nil, err
	}
	bays, err := g.StorageLocations(ctx)
	if err != nil {
		return nil, err
	}
	customer, err := g.customer(ctx, row.PCID)
	if err != nil {
		return nil, err
	}

	statusID := strconv.FormatInt(row.PCStatus, 10)
	status, ok := catalog.Get(statusID)
	if !ok {
		// Status row missing from boxstyles entirely; keep the raw id so
		// the resolver can report unknown_state.
		status = StatusDefinition{ID: statusID}
	}

	wo := &WorkOrder{
		ID:       row.WOID,
		Customer: *customer,
		Problem:  row.ProbDesc,
		Status:   status,
		OpenDate: row.DropDate,
	}

	if row.SLID != 0 {
		for i := range bays {
			if bays[i].ID == row.SLID {
				bay := bays[i]
				wo.Bay = &bay
				break
			}
		}
	}

	return wo, nil
}

func (g *gormGateway) customer(ctx context.Context, pcid int64) (*Customer, error) {
	var row model.CustomerRow
	if err := g.conn().WithContext(ctx).First(&row, "pcid = ?", pcid).Error; err != nil {
		return nil, fmt.Errorf("failed to read customer %d: %w", pcid, err)
	}

	company := row.PCCompany
	if company == "" {
		company = "Individual"
	}
	return &Customer{
		ID:      row.PCID,
		Name:    row.PCName,
		Device:  row.PCMake,
		Company: company,
	}, nil
}
