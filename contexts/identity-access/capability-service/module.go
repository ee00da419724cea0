package capability

import (
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	httpadapter "relaycreator/contexts/identity-access/capability-service/adapters/http"
	"relaycreator/contexts/identity-access/capability-service/adapters/memory"
	"relaycreator/contexts/identity-access/capability-service/application/commands"
	"relaycreator/contexts/identity-access/capability-service/application/queries"
	"relaycreator/contexts/identity-access/capability-service/domain/services"
	"relaycreator/contexts/identity-access/capability-service/ports"
)

// Module is the capability-service composition root exposed to runtime wiring.
type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store
}

// Dependencies captures all runtime ports/config required by NewModule.
type Dependencies struct {
	Repository         ports.Repository
	Identity           ports.IdentityDirectory
	Inventory          ports.RelayInventory
	Idempotency        ports.IdempotencyStore
	CapabilityCache    ports.CapabilityCache
	Registry           services.Registry
	Clock              ports.Clock
	IDGenerator        ports.IDGenerator
	IdempotencyTTL     time.Duration
	CapabilityCacheTTL time.Duration
	Logger             *slog.Logger
}

// NewModule wires the use-cases and transport handler using explicit ports.
func NewModule(deps Dependencies) Module {
	listTypes := queries.ListPermissionTypesUseCase{
		Registry: deps.Registry,
	}
	checkCapability := queries.CheckCapabilityUseCase{
		Repository:      deps.Repository,
		Registry:        deps.Registry,
		Identity:        deps.Identity,
		CapabilityCache: deps.CapabilityCache,
		Flights:         &singleflight.Group{},
		Clock:           deps.Clock,
		CacheTTL:        deps.CapabilityCacheTTL,
		Logger:          deps.Logger,
	}
	listRequests := queries.ListRequestsUseCase{
		Repository: deps.Repository,
		Identity:   deps.Identity,
		Logger:     deps.Logger,
	}
	listGrants := queries.ListGrantsUseCase{
		Repository: deps.Repository,
		Identity:   deps.Identity,
		Logger:     deps.Logger,
	}
	myPermissions := queries.MyPermissionsUseCase{
		Repository: deps.Repository,
		Logger:     deps.Logger,
	}
	resolveTier := queries.ResolveTierUseCase{
		Identity:  deps.Identity,
		Inventory: deps.Inventory,
		Clock:     deps.Clock,
		Logger:    deps.Logger,
	}
	submitRequest := commands.SubmitRequestUseCase{
		Repository:     deps.Repository,
		Registry:       deps.Registry,
		Idempotency:    deps.Idempotency,
		Clock:          deps.Clock,
		IDGenerator:    deps.IDGenerator,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	}
	decideRequest := commands.DecideRequestUseCase{
		Repository:      deps.Repository,
		Registry:        deps.Registry,
		Identity:        deps.Identity,
		Idempotency:     deps.Idempotency,
		CapabilityCache: deps.CapabilityCache,
		Clock:           deps.Clock,
		IDGenerator:     deps.IDGenerator,
		IdempotencyTTL:  deps.IdempotencyTTL,
		Logger:          deps.Logger,
	}
	acceptDisclaimer := commands.AcceptDisclaimerUseCase{
		Repository:      deps.Repository,
		Registry:        deps.Registry,
		CapabilityCache: deps.CapabilityCache,
		Clock:           deps.Clock,
		Logger:          deps.Logger,
	}
	assignGrant := commands.AssignGrantUseCase{
		Repository:      deps.Repository,
		Registry:        deps.Registry,
		Identity:        deps.Identity,
		CapabilityCache: deps.CapabilityCache,
		Clock:           deps.Clock,
		IDGenerator:     deps.IDGenerator,
		Logger:          deps.Logger,
	}
	revokeGrant := commands.RevokeGrantUseCase{
		Repository:      deps.Repository,
		Registry:        deps.Registry,
		Identity:        deps.Identity,
		CapabilityCache: deps.CapabilityCache,
		Clock:           deps.Clock,
		IDGenerator:     deps.IDGenerator,
		Logger:          deps.Logger,
	}

	handler := httpadapter.Handler{
		ListTypes:        listTypes,
		CheckCapability:  checkCapability,
		ListRequests:     listRequests,
		ListGrants:       listGrants,
		MyPermissions:    myPermissions,
		ResolveTier:      resolveTier,
		SubmitRequest:    submitRequest,
		DecideRequest:    decideRequest,
		AcceptDisclaimer: acceptDisclaimer,
		AssignGrant:      assignGrant,
		RevokeGrant:      revokeGrant,
		Logger:           deps.Logger,
	}

	return Module{
		Handler: handler,
	}
}

// NewInMemoryModule builds a development/testing module with in-memory adapters.
func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Repository:         store,
		Identity:           store,
		Inventory:          store,
		Idempotency:        store,
		CapabilityCache:    store,
		Registry:           services.NewRegistry(services.DefaultCatalog()),
		Clock:              store,
		IDGenerator:        store,
		IdempotencyTTL:     7 * 24 * time.Hour,
		CapabilityCacheTTL: 5 * time.Minute,
		Logger:             logger,
	})
	module.Store = store
	return module
}
