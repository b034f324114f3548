// Package workflow holds the coordination core: the guarded
// state-transition resolver and the storage-bay allocator with its
// occupancy clash detector.
package workflow

import (
	"workshop-scan-backend/internal/gateway"
	"workshop-scan-backend/internal/scanerr"
)

// PermissibleStates computes the ordered set of statuses a work order may
// legally move to. It is read-only: the decision depends only on the
// current status flags, the catalog and whether a bay is assigned.
//
// Classification over the {on_site, work_in_progress, is_stored} triple,
// first match wins:
//
//	off-site                 -> no legal transition, manual fix required
//	on-site, idle, unstored  -> any off-site idle status (awaiting parts etc.)
//	on-site, idle, stored    -> any work-in-progress status
//	on-site, in progress     -> any stored status
func PermissibleStates(current gateway.StatusDefinition, catalog *gateway.Catalog, hasBay bool) ([]gateway.StatusDefinition, error) {
	if !current.Mapped {
		return nil, scanerr.New(scanerr.CodeUnknownState, "status %q has no configured state mapping", current.ID)
	}
	if current.Terminal() {
		return nil, scanerr.New(scanerr.CodeOldWorkOrder, "work order has already been collected")
	}

	var keep func(gateway.StatusDefinition) bool
	switch {
	case !current.OnSite:
		return nil, scanerr.New(scanerr.CodeNoPermissibleStates, "device is off-site; no automatic transition is possible")

	case !current.WorkInProgress && !current.IsStored:
		keep = func(d gateway.StatusDefinition) bool {
			return !d.OnSite && !d.WorkInProgress
		}

	case !current.WorkInProgress && current.IsStored:
		// A stored order moves to the bench. Stored targets are excluded
		// to stop storage-to-storage hops, except when the order lost its
		// bay and needs to be re-stored to recover.
		keep = func(d gateway.StatusDefinition) bool {
			if !d.WorkInProgress {
				return false
			}
			if d.IsStored && hasBay {
				return false
			}
			return true
		}

	default:
		keep = func(d gateway.StatusDefinition) bool {
			return d.IsStored
		}
	}

	var targets []gateway.StatusDefinition
	for _, def := range catalog.All() {
		if !def.Mapped {
			continue
		}
		if keep(def) {
			targets = append(targets, def)
		}
	}

	if len(targets) == 0 {
		return nil, scanerr.New(scanerr.CodeNoPermissibleStates, "no permissible states from %q", current.Alias)
	}
	return targets, nil
}

// FindAction resolves a requested action name (a status alias) against
// the catalog. Dashboards request transitions by alias; a miss is a
// configuration error, not a user error.
func FindAction(catalog *gateway.Catalog, action string) (gateway.StatusDefinition, error) {
	for _, def := range catalog.All() {
		if def.Mapped && def.Alias == action {
			return def, nil
		}
	}
	return gateway.StatusDefinition{}, scanerr.New(scanerr.CodeStateResolutionFailed, "action %q has no configured status mapping", action)
}
