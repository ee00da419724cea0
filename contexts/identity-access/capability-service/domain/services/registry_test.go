package services

import (
	"errors"
	"testing"

	"relaycreator/contexts/identity-access/capability-service/domain/entities"
	domainerrors "relaycreator/contexts/identity-access/capability-service/domain/errors"
)

func TestRegistryContainsAndDisclaimer(t *testing.T) {
	registry := NewRegistry([]entities.PermissionType{
		{Capability: "relay_ops", DisclaimerText: "careful"},
		{Capability: "directory_mod"},
	})

	if !registry.Contains("relay_ops") {
		t.Fatalf("expected relay_ops registered")
	}
	if registry.Contains("unknown") {
		t.Fatalf("expected unknown capability rejected")
	}

	disclaimer, err := registry.DisclaimerFor("relay_ops")
	if err != nil {
		t.Fatalf("disclaimer lookup failed: %v", err)
	}
	if disclaimer != "careful" {
		t.Fatalf("expected disclaimer text, got %q", disclaimer)
	}

	if _, err := registry.DisclaimerFor("unknown"); !errors.Is(err, domainerrors.ErrUnknownPermissionType) {
		t.Fatalf("expected unknown permission type, got %v", err)
	}
}

func TestRegistryDropsBlankNamesAndSortsTypes(t *testing.T) {
	registry := NewRegistry([]entities.PermissionType{
		{Capability: "zebra"},
		{Capability: ""},
		{Capability: "alpha"},
	})

	types := registry.Types()
	if len(types) != 2 {
		t.Fatalf("expected 2 types, got %d", len(types))
	}
	if types[0].Capability != "alpha" || types[1].Capability != "zebra" {
		t.Fatalf("expected sorted catalog, got %v", types)
	}
}

func TestDefaultCatalogDisclaimerFlags(t *testing.T) {
	registry := NewRegistry(DefaultCatalog())

	for _, name := range []string{"admin", "coinos_admin", "relay_ops", "directory_mod"} {
		if !registry.Contains(name) {
			t.Fatalf("expected %s in default catalog", name)
		}
	}

	disclaimer, err := registry.DisclaimerFor("coinos_admin")
	if err != nil {
		t.Fatalf("disclaimer lookup failed: %v", err)
	}
	if disclaimer == "" {
		t.Fatalf("expected coinos_admin to carry a disclaimer")
	}

	disclaimer, err = registry.DisclaimerFor("directory_mod")
	if err != nil {
		t.Fatalf("disclaimer lookup failed: %v", err)
	}
	if disclaimer != "" {
		t.Fatalf("expected directory_mod without disclaimer")
	}
}
