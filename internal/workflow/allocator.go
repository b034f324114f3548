package workflow

import (
	"context"
	"sync"

	"workshop-scan-backend/internal/gateway"
	"workshop-scan-backend/internal/lockout"
	"workshop-scan-backend/internal/model"
	"workshop-scan-backend/internal/scanerr"
)

// OccupantKind tags what is holding a bay.
type OccupantKind string

const (
	OccupantWorkOrder OccupantKind = "work_order"
	OccupantLockout   OccupantKind = "lockout"
)

// Occupant is one claim on a bay: an open work order located there or an
// advisory lockout.
type Occupant struct {
	Kind      OccupantKind       `json:"kind"`
	WorkOrder *gateway.WorkOrder `json:"work_order,omitempty"`
	Lockout   *model.Lockout     `json:"lockout,omitempty"`
}

// BayState is the computed occupancy state of a bay.
type BayState string

const (
	BayAvailable BayState = "available"
	BayOccupied  BayState = "occupied"
	BayClash     BayState = "clash"
)

// BayStatus is one bay's entry in the occupancy snapshot.
type BayStatus struct {
	Bay       gateway.Bay `json:"bay"`
	State     BayState    `json:"state"`
	Occupants []Occupant  `json:"occupants,omitempty"`
}

// Allocator computes occupancy snapshots and selects storage bays for
// transitions into stored statuses. An in-process reservation table pins
// a chosen bay between selection and commit, so concurrent allocations
// cannot both claim an apparently-free bay.
type Allocator struct {
	gw    gateway.Gateway
	locks lockout.Store

	mu       sync.Mutex
	reserved map[int64]int64 // bay id -> work order id holding the reservation
}

// NewAllocator creates an allocator over the given gateway and lockout
// store.
func NewAllocator(gw gateway.Gateway, locks lockout.Store) *Allocator {
	return &Allocator{
		gw:       gw,
		locks:    locks,
		reserved: make(map[int64]int64),
	}
}

// Snapshot recomputes the full bay-occupancy view from the gateway and
// the lockout store. It is a cached view, never a source of truth, and
// makes no writes.
func (a *Allocator) Snapshot(ctx context.Context) ([]BayStatus, error) {
	bays, err := a.gw.StorageLocations(ctx)
	if err != nil {
		return nil, err
	}
	open, err := a.gw.OpenWorkOrders(ctx)
	if err != nil {
		return nil, err
	}
	locks, err := a.locks.List(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]BayStatus, 0, len(bays))
	for _, bay := range bays {
		var occupants []Occupant
		for i := range open {
			if open[i].Bay != nil && open[i].Bay.ID == bay.ID {
				occupants = append(occupants, Occupant{Kind: OccupantWorkOrder, WorkOrder: &open[i]})
			}
		}
		for i := range locks {
			if locks[i].Bay == bay.ID {
				occupants = append(occupants, Occupant{Kind: OccupantLockout, Lockout: &locks[i]})
			}
		}

		state := BayAvailable
		switch {
		case len(occupants) == 1:
			state = BayOccupied
		case len(occupants) > 1:
			state = BayClash
		}

		statuses = append(statuses, BayStatus{Bay: bay, State: state, Occupants: occupants})
	}
	return statuses, nil
}

// Reservation is the outcome of an allocation: the bay the work order
// must land in, and whether that differs from its previous bay. Release
// must be called once the commit has succeeded or failed.
type Reservation struct {
	Bay     gateway.Bay
	Changed bool

	alloc *Allocator
	bayID int64 // zero when no reservation entry was taken (bay reuse)
}

// Release frees the reservation table entry, if any.
func (r *Reservation) Release() {
	if r.alloc == nil || r.bayID == 0 {
		return
	}
	r.alloc.mu.Lock()
	delete(r.alloc.reserved, r.bayID)
	r.alloc.mu.Unlock()
	r.alloc = nil
}

// requiredType maps a stored target status to the bay type it needs.
func requiredType(target gateway.StatusDefinition) gateway.BayType {
	if target.WorkInProgress {
		return gateway.BayTypeWIP
	}
	return gateway.BayTypeComplete
}

// Allocate picks the bay for a work order transitioning into the given
// stored target status. The current bay is reused when its type fits;
// otherwise the first free, unlocked, type-matching bay in catalog order
// is reserved. No writes happen here: a no_storage_locations failure
// leaves the work order untouched.
func (a *Allocator) Allocate(ctx context.Context, wo *gateway.WorkOrder, target gateway.StatusDefinition) (*Reservation, error) {
	need := requiredType(target)

	if wo.Bay != nil && (wo.Bay.Type == gateway.BayTypeOversize || wo.Bay.Type == need) {
		return &Reservation{Bay: *wo.Bay, Changed: false}, nil
	}

	bays, err := a.gw.StorageLocations(ctx)
	if err != nil {
		return nil, err
	}
	open, err := a.gw.OpenWorkOrders(ctx)
	if err != nil {
		return nil, err
	}
	locks, err := a.locks.List(ctx)
	if err != nil {
		return nil, err
	}

	occupied := make(map[int64]bool)
	for i := range open {
		if open[i].Bay != nil {
			occupied[open[i].Bay.ID] = true
		}
	}
	locked := make(map[int64]bool)
	for i := range locks {
		locked[locks[i].Bay] = true
	}

	// Selection and reservation are a single critical section: the bay
	// chosen here stays pinned until the caller commits and releases.
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, bay := range bays {
		if bay.Type != need || bay.Type == gateway.BayTypeOversize {
			continue
		}
		if locked[bay.ID] || occupied[bay.ID] {
			continue
		}
		if holder, taken := a.reserved[bay.ID]; taken && holder != wo.ID {
			continue
		}

		a.reserved[bay.ID] = wo.ID
		return &Reservation{Bay: bay, Changed: true, alloc: a, bayID: bay.ID}, nil
	}

	return nil, scanerr.New(scanerr.CodeNoStorageLocations, "no free %s bay for work order %d", need, wo.ID)
}
