package services

import (
	"testing"

	"relaycreator/contexts/identity-access/capability-service/domain/entities"
)

func TestComputeTier(t *testing.T) {
	cases := []struct {
		name      string
		admin     bool
		owned     int
		moderated int
		want      entities.AccessTier
	}{
		{name: "admin wins over relays", admin: true, owned: 3, want: entities.TierAdmin},
		{name: "admin without relays", admin: true, want: entities.TierAdmin},
		{name: "owner is operator", owned: 1, want: entities.TierOperator},
		{name: "moderator is operator", moderated: 2, want: entities.TierOperator},
		{name: "no involvement is demo", want: entities.TierDemo},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeTier(tc.admin, tc.owned, tc.moderated)
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
