package gateway

import (
	"sort"
	"strconv"
	"time"
)

// BayType classifies a storage bay by the kind of occupancy it accepts.
type BayType string

const (
	BayTypeWIP      BayType = "wip"
	BayTypeComplete BayType = "complete"
	BayTypeOversize BayType = "oversize"
	BayTypeUnknown  BayType = "unknown"
)

// Bay is one physical storage slot.
type Bay struct {
	ID   int64   `json:"id"`
	Name string  `json:"name"`
	Type BayType `json:"type"`
}

// Customer is the owner of a work order's device.
type Customer struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Device  string `json:"device"`
	Company string `json:"company"`
}

// StatusDefinition is one entry of the status catalog: display data from
// the record store merged with the workflow flags from configuration.
// Mapped is false when no flags are configured for the status id; such
// statuses are carried for display but never offered as targets.
type StatusDefinition struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	Alias          string `json:"alias"`
	Colour         string `json:"colour"`
	OnSite         bool   `json:"on_site"`
	WorkInProgress bool   `json:"work_in_progress"`
	IsStored       bool   `json:"is_stored"`
	ExtraAlert     string `json:"extra_alert,omitempty"`
	Mapped         bool   `json:"-"`
}

// Terminal reports whether the status closes a work order.
func (s StatusDefinition) Terminal() bool { return s.Alias == "collected" }

// Catalog is the full set of status definitions, iterable in stable
// status-id order.
type Catalog struct {
	byID    map[string]StatusDefinition
	ordered []StatusDefinition
}

// NewCatalog builds a catalog from the given definitions.
func NewCatalog(defs []StatusDefinition) *Catalog {
	c := &Catalog{byID: make(map[string]StatusDefinition, len(defs))}
	c.ordered = append(c.ordered, defs...)
	sort.Slice(c.ordered, func(i, j int) bool {
		// Status ids are numeric in the record store; fall back to a
		// lexical compare for any non-numeric id.
		a, errA := strconv.Atoi(c.ordered[i].ID)
		b, errB := strconv.Atoi(c.ordered[j].ID)
		if errA == nil && errB == nil {
			return a < b
		}
		return c.ordered[i].ID < c.ordered[j].ID
	})
	for _, d := range c.ordered {
		c.byID[d.ID] = d
	}
	return c
}

// Get looks up a definition by status id.
func (c *Catalog) Get(id string) (StatusDefinition, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// All returns every definition in status-id order.
func (c *Catalog) All() []StatusDefinition { return c.ordered }

// WorkOrder is a tracked repair job, formatted for the workflow core.
// Bay is nil when the work order has no assigned storage location.
type WorkOrder struct {
	ID       int64            `json:"id"`
	Customer Customer         `json:"customer"`
	Problem  string           `json:"problem"`
	Status   StatusDefinition `json:"status"`
	OpenDate time.Time        `json:"open_date"`
	Bay      *Bay             `json:"location,omitempty"`
}
