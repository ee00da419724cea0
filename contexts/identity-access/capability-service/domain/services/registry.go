package services

import (
	"sort"

	"relaycreator/contexts/identity-access/capability-service/domain/entities"
	domainerrors "relaycreator/contexts/identity-access/capability-service/domain/errors"
)

// Registry is the closed catalog of capability types. It is built once at
// startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	types map[string]entities.PermissionType
}

// NewRegistry copies the given catalog into an immutable registry.
// Blank capability names are dropped; later duplicates win.
func NewRegistry(catalog []entities.PermissionType) Registry {
	types := make(map[string]entities.PermissionType, len(catalog))
	for _, t := range catalog {
		if t.Capability == "" {
			continue
		}
		types[t.Capability] = t
	}
	return Registry{types: types}
}

// DefaultCatalog is the baseline capability catalog for the relay portal.
func DefaultCatalog() []entities.PermissionType {
	return []entities.PermissionType{
		{
			Capability: "admin",
		},
		{
			Capability: "coinos_admin",
			DisclaimerText: "Payment backend administration acts on live balances and " +
				"invoices. Mistakes are not reversible by this portal.",
		},
		{
			Capability: "relay_ops",
			DisclaimerText: "Relay operations can disconnect active clients and purge " +
				"stored events. Proceed only if you understand the impact.",
		},
		{
			Capability: "directory_mod",
		},
	}
}

// Contains reports whether the capability is registered.
func (r Registry) Contains(capability string) bool {
	_, ok := r.types[capability]
	return ok
}

// DisclaimerFor returns the disclaimer text for a registered capability.
func (r Registry) DisclaimerFor(capability string) (string, error) {
	t, ok := r.types[capability]
	if !ok {
		return "", domainerrors.ErrUnknownPermissionType
	}
	return t.DisclaimerText, nil
}

// Types lists the catalog sorted by capability name.
func (r Registry) Types() []entities.PermissionType {
	items := make([]entities.PermissionType, 0, len(r.types))
	for _, t := range r.types {
		items = append(items, t)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Capability < items[j].Capability
	})
	return items
}
