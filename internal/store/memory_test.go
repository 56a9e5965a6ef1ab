package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/Schredly/packgraph/internal/models"
	"github.com/Schredly/packgraph/internal/store"
)

func TestListPromotionIntentsOrderIsStableOnEqualTimestamps(t *testing.T) {
	m := store.NewMemoryStore()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"b", "a", "c"} {
		m.SeedPromotionIntent(models.PromotionIntent{
			ID:        id,
			TenantID:  "tenant-1",
			ProjectID: "project-1",
			Status:    models.IntentStatusDraft,
			CreatedAt: base,
			UpdatedAt: base,
		})
	}
	m.SeedPromotionIntent(models.PromotionIntent{
		ID:        "newest",
		TenantID:  "tenant-1",
		ProjectID: "project-1",
		Status:    models.IntentStatusDraft,
		CreatedAt: base.Add(time.Minute),
		UpdatedAt: base.Add(time.Minute),
	})

	for i := 0; i < 3; i++ {
		got, err := m.ListPromotionIntents(context.Background(), "tenant-1", "project-1")
		if err != nil {
			t.Fatalf("ListPromotionIntents: %v", err)
		}
		want := []string{"newest", "c", "b", "a"}
		if len(got) != len(want) {
			t.Fatalf("listed %d intents, want %d", len(got), len(want))
		}
		for j, id := range want {
			if got[j].ID != id {
				t.Fatalf("order = %v on run %d, want %v",
					[]string{got[0].ID, got[1].ID, got[2].ID, got[3].ID}, i, want)
			}
		}
	}
}
