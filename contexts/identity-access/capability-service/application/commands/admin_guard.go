package commands

import (
	"context"

	domainerrors "relaycreator/contexts/identity-access/capability-service/domain/errors"
	"relaycreator/contexts/identity-access/capability-service/ports"
)

// ensureAdmin is the single auditable admin gate for admin-only commands.
func ensureAdmin(ctx context.Context, identity ports.IdentityDirectory, actorID string) error {
	admin, err := identity.IsAdmin(ctx, actorID)
	if err != nil {
		return err
	}
	if !admin {
		return domainerrors.ErrForbidden
	}
	return nil
}
