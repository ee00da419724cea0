package queries

import (
	"relaycreator/contexts/identity-access/capability-service/domain/entities"
	"relaycreator/contexts/identity-access/capability-service/domain/services"
)

// ListPermissionTypesUseCase exposes the capability catalog.
type ListPermissionTypesUseCase struct {
	Registry services.Registry
}

func (u ListPermissionTypesUseCase) Execute() []entities.PermissionType {
	return u.Registry.Types()
}
