package unit

import (
	"context"
	"errors"
	"testing"

	capability "relaycreator/contexts/identity-access/capability-service"
	domainerrors "relaycreator/contexts/identity-access/capability-service/domain/errors"
	httptransport "relaycreator/contexts/identity-access/capability-service/transport/http"
)

func TestCapabilityRequestApproveDisclaimerRoundTrip(t *testing.T) {
	module := capability.NewInMemoryModule(nil)
	module.Store.SeedAdmin("admin-1")

	submitted, err := module.Handler.SubmitRequestHandler(
		context.Background(),
		"user-1",
		"idem-submit-1",
		httptransport.SubmitRequestRequest{
			Capability: "coinos_admin",
			Reason:     "payment ops rotation",
		},
	)
	if err != nil {
		t.Fatalf("submit request failed: %v", err)
	}
	if submitted.Request.Status != "pending" {
		t.Fatalf("expected pending request, got %s", submitted.Request.Status)
	}

	decided, err := module.Handler.DecideRequestHandler(
		context.Background(),
		submitted.Request.RequestID,
		"admin-1",
		"idem-decide-1",
		httptransport.DecideRequestRequest{Decision: "approved"},
	)
	if err != nil {
		t.Fatalf("decide request failed: %v", err)
	}
	if decided.Grant == nil {
		t.Fatalf("expected grant on approval")
	}
	if decided.Grant.DisclaimerAccepted {
		t.Fatalf("expected disclaimer still pending on a disclaimered capability")
	}

	beforeAccept, err := module.Handler.CheckCapabilityHandler(
		context.Background(),
		httptransport.CheckCapabilityRequest{UserID: "user-1", Capability: "coinos_admin"},
	)
	if err != nil {
		t.Fatalf("check before disclaimer failed: %v", err)
	}
	if beforeAccept.Allowed {
		t.Fatalf("expected denied before disclaimer acceptance")
	}
	if !beforeAccept.Granted {
		t.Fatalf("expected granted flag before disclaimer acceptance")
	}
	if beforeAccept.Reason != "disclaimer_pending" {
		t.Fatalf("expected disclaimer_pending reason, got %s", beforeAccept.Reason)
	}

	if _, err := module.Handler.AcceptDisclaimerHandler(
		context.Background(),
		"user-1",
		httptransport.AcceptDisclaimerRequest{Capability: "coinos_admin"},
	); err != nil {
		t.Fatalf("accept disclaimer failed: %v", err)
	}

	afterAccept, err := module.Handler.CheckCapabilityHandler(
		context.Background(),
		httptransport.CheckCapabilityRequest{UserID: "user-1", Capability: "coinos_admin"},
	)
	if err != nil {
		t.Fatalf("check after disclaimer failed: %v", err)
	}
	if !afterAccept.Allowed {
		t.Fatalf("expected allowed after disclaimer acceptance")
	}
	if afterAccept.Reason != "grant_active" {
		t.Fatalf("expected grant_active reason, got %s", afterAccept.Reason)
	}
}

func TestCapabilityDuplicatePendingRequestRejected(t *testing.T) {
	module := capability.NewInMemoryModule(nil)

	_, err := module.Handler.SubmitRequestHandler(
		context.Background(),
		"user-2",
		"idem-submit-dup-1",
		httptransport.SubmitRequestRequest{Capability: "relay_ops"},
	)
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	_, err = module.Handler.SubmitRequestHandler(
		context.Background(),
		"user-2",
		"idem-submit-dup-2",
		httptransport.SubmitRequestRequest{Capability: "relay_ops"},
	)
	if !errors.Is(err, domainerrors.ErrPendingRequestExists) {
		t.Fatalf("expected pending request conflict, got %v", err)
	}
}

func TestCapabilitySubmitRejectedWhenGrantAlreadyActive(t *testing.T) {
	module := capability.NewInMemoryModule(nil)
	module.Store.SeedAdmin("admin-1")

	if _, err := module.Handler.AssignGrantHandler(
		context.Background(),
		"user-3",
		"admin-1",
		httptransport.AssignGrantRequest{Capability: "directory_mod"},
	); err != nil {
		t.Fatalf("assign grant failed: %v", err)
	}

	_, err := module.Handler.SubmitRequestHandler(
		context.Background(),
		"user-3",
		"idem-submit-active",
		httptransport.SubmitRequestRequest{Capability: "directory_mod"},
	)
	if !errors.Is(err, domainerrors.ErrGrantAlreadyActive) {
		t.Fatalf("expected active grant conflict, got %v", err)
	}
}

func TestCapabilitySubmitUnknownTypeRejected(t *testing.T) {
	module := capability.NewInMemoryModule(nil)

	_, err := module.Handler.SubmitRequestHandler(
		context.Background(),
		"user-4",
		"idem-submit-unknown",
		httptransport.SubmitRequestRequest{Capability: "launch_rockets"},
	)
	if !errors.Is(err, domainerrors.ErrUnknownPermissionType) {
		t.Fatalf("expected unknown permission type, got %v", err)
	}

	_, err = module.Handler.CheckCapabilityHandler(
		context.Background(),
		httptransport.CheckCapabilityRequest{UserID: "user-4", Capability: "launch_rockets"},
	)
	if !errors.Is(err, domainerrors.ErrUnknownPermissionType) {
		t.Fatalf("expected unknown permission type on check, got %v", err)
	}
}

func TestCapabilityDecideRequiresAdmin(t *testing.T) {
	module := capability.NewInMemoryModule(nil)

	submitted, err := module.Handler.SubmitRequestHandler(
		context.Background(),
		"user-5",
		"idem-submit-5",
		httptransport.SubmitRequestRequest{Capability: "relay_ops"},
	)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	_, err = module.Handler.DecideRequestHandler(
		context.Background(),
		submitted.Request.RequestID,
		"user-5",
		"idem-decide-5",
		httptransport.DecideRequestRequest{Decision: "approved"},
	)
	if !errors.Is(err, domainerrors.ErrForbidden) {
		t.Fatalf("expected forbidden for non-admin decider, got %v", err)
	}
}

func TestCapabilityDecideIdempotencyReplayAndConflict(t *testing.T) {
	module := capability.NewInMemoryModule(nil)
	module.Store.SeedAdmin("admin-1")

	submitted, err := module.Handler.SubmitRequestHandler(
		context.Background(),
		"user-6",
		"idem-submit-6",
		httptransport.SubmitRequestRequest{Capability: "relay_ops"},
	)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	first, err := module.Handler.DecideRequestHandler(
		context.Background(),
		submitted.Request.RequestID,
		"admin-1",
		"idem-decide-6",
		httptransport.DecideRequestRequest{Decision: "approved"},
	)
	if err != nil {
		t.Fatalf("first decide failed: %v", err)
	}

	second, err := module.Handler.DecideRequestHandler(
		context.Background(),
		submitted.Request.RequestID,
		"admin-1",
		"idem-decide-6",
		httptransport.DecideRequestRequest{Decision: "approved"},
	)
	if err != nil {
		t.Fatalf("decide replay failed: %v", err)
	}
	if !second.Replayed {
		t.Fatalf("expected replayed response")
	}
	if first.Request.RequestID != second.Request.RequestID {
		t.Fatalf("expected same request id on replay")
	}

	_, err = module.Handler.DecideRequestHandler(
		context.Background(),
		submitted.Request.RequestID,
		"admin-1",
		"idem-decide-6",
		httptransport.DecideRequestRequest{Decision: "denied"},
	)
	if !errors.Is(err, domainerrors.ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
}

func TestCapabilityDecideAlreadyDecidedRejected(t *testing.T) {
	module := capability.NewInMemoryModule(nil)
	module.Store.SeedAdmin("admin-1")

	submitted, err := module.Handler.SubmitRequestHandler(
		context.Background(),
		"user-7",
		"idem-submit-7",
		httptransport.SubmitRequestRequest{Capability: "relay_ops"},
	)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if _, err := module.Handler.DecideRequestHandler(
		context.Background(),
		submitted.Request.RequestID,
		"admin-1",
		"idem-decide-7a",
		httptransport.DecideRequestRequest{Decision: "denied"},
	); err != nil {
		t.Fatalf("deny failed: %v", err)
	}

	_, err = module.Handler.DecideRequestHandler(
		context.Background(),
		submitted.Request.RequestID,
		"admin-1",
		"idem-decide-7b",
		httptransport.DecideRequestRequest{Decision: "approved"},
	)
	if !errors.Is(err, domainerrors.ErrRequestAlreadyDecided) {
		t.Fatalf("expected already decided, got %v", err)
	}
}

func TestCapabilityDenialLeavesNoGrantAndAllowsResubmit(t *testing.T) {
	module := capability.NewInMemoryModule(nil)
	module.Store.SeedAdmin("admin-1")

	submitted, err := module.Handler.SubmitRequestHandler(
		context.Background(),
		"user-9",
		"idem-submit-9a",
		httptransport.SubmitRequestRequest{Capability: "relay_ops"},
	)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	denied, err := module.Handler.DecideRequestHandler(
		context.Background(),
		submitted.Request.RequestID,
		"admin-1",
		"idem-decide-9",
		httptransport.DecideRequestRequest{Decision: "denied", Note: "insufficient history"},
	)
	if err != nil {
		t.Fatalf("deny failed: %v", err)
	}
	if denied.Grant != nil {
		t.Fatalf("expected no grant on denial")
	}

	check, err := module.Handler.CheckCapabilityHandler(
		context.Background(),
		httptransport.CheckCapabilityRequest{UserID: "user-9", Capability: "relay_ops"},
	)
	if err != nil {
		t.Fatalf("check after denial failed: %v", err)
	}
	if check.Allowed || check.Granted {
		t.Fatalf("expected no capability after denial")
	}

	resubmitted, err := module.Handler.SubmitRequestHandler(
		context.Background(),
		"user-9",
		"idem-submit-9b",
		httptransport.SubmitRequestRequest{Capability: "relay_ops"},
	)
	if err != nil {
		t.Fatalf("resubmit after denial failed: %v", err)
	}
	if resubmitted.Request.RequestID == submitted.Request.RequestID {
		t.Fatalf("expected a fresh request on resubmit")
	}
	if resubmitted.Request.Status != "pending" {
		t.Fatalf("expected pending resubmission, got %s", resubmitted.Request.Status)
	}
}

func TestCapabilityAdminBypassAllowsWithoutGrant(t *testing.T) {
	module := capability.NewInMemoryModule(nil)
	module.Store.SeedAdmin("admin-1")

	decision, err := module.Handler.CheckCapabilityHandler(
		context.Background(),
		httptransport.CheckCapabilityRequest{UserID: "admin-1", Capability: "coinos_admin"},
	)
	if err != nil {
		t.Fatalf("admin check failed: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected admin bypass to allow")
	}
	if decision.Reason != "admin_override" {
		t.Fatalf("expected admin_override reason, got %s", decision.Reason)
	}
}

func TestCapabilityRevokeRemovesGrantAndIsIdempotent(t *testing.T) {
	module := capability.NewInMemoryModule(nil)
	module.Store.SeedAdmin("admin-1")

	if _, err := module.Handler.AssignGrantHandler(
		context.Background(),
		"user-8",
		"admin-1",
		httptransport.AssignGrantRequest{Capability: "directory_mod"},
	); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	revoked, err := module.Handler.RevokeGrantHandler(
		context.Background(),
		"user-8",
		"admin-1",
		httptransport.RevokeGrantRequest{Capability: "directory_mod"},
	)
	if err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if !revoked.Revoked {
		t.Fatalf("expected revocation to happen")
	}

	decision, err := module.Handler.CheckCapabilityHandler(
		context.Background(),
		httptransport.CheckCapabilityRequest{UserID: "user-8", Capability: "directory_mod"},
	)
	if err != nil {
		t.Fatalf("check after revoke failed: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected denied after revoke")
	}

	again, err := module.Handler.RevokeGrantHandler(
		context.Background(),
		"user-8",
		"admin-1",
		httptransport.RevokeGrantRequest{Capability: "directory_mod"},
	)
	if err != nil {
		t.Fatalf("second revoke failed: %v", err)
	}
	if again.Revoked {
		t.Fatalf("expected second revoke to be a no-op")
	}
}

func TestCapabilityTierClassification(t *testing.T) {
	module := capability.NewInMemoryModule(nil)
	module.Store.SeedAdmin("admin-1")
	module.Store.SeedRelayCounts("operator-1", 2, 0)
	module.Store.SeedRelayCounts("moderator-1", 0, 1)

	cases := []struct {
		userID string
		tier   string
	}{
		{userID: "admin-1", tier: "admin"},
		{userID: "operator-1", tier: "operator"},
		{userID: "moderator-1", tier: "operator"},
		{userID: "visitor-1", tier: "demo"},
	}
	for _, tc := range cases {
		resolved, err := module.Handler.ResolveTierHandler(context.Background(), tc.userID)
		if err != nil {
			t.Fatalf("tier for %s failed: %v", tc.userID, err)
		}
		if resolved.Tier != tc.tier {
			t.Fatalf("expected tier %s for %s, got %s", tc.tier, tc.userID, resolved.Tier)
		}
	}
}

func TestCapabilityListRequestsRequiresAdmin(t *testing.T) {
	module := capability.NewInMemoryModule(nil)

	_, err := module.Handler.ListRequestsHandler(context.Background(), "user-9", "pending")
	if !errors.Is(err, domainerrors.ErrForbidden) {
		t.Fatalf("expected forbidden for non-admin list, got %v", err)
	}
}
