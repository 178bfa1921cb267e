package services

import (
	"context"
	"sort"
	"testing"
	"time"

	"raildrops/metrics"
	"raildrops/models"
	"raildrops/testutil"
)

func TestFindEligibleGiveaways(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewWinnerService(db)
	ctx := context.Background()
	now := time.Now().UTC()
	b := testutil.Business(t, db, "Kafe", "Oslo")

	ready1 := testutil.Giveaway(t, db, b, "Ready one", now.Add(-2*time.Hour))
	testutil.Entries(t, db, ready1, 3)
	ready2 := testutil.Giveaway(t, db, b, "Ready two", now.Add(-time.Minute))
	testutil.Entries(t, db, ready2, 1)

	running := testutil.Giveaway(t, db, b, "Running", now.Add(time.Hour))
	testutil.Entries(t, db, running, 2)

	testutil.Giveaway(t, db, b, "No entries", now.Add(-time.Hour))

	inactive := testutil.Giveaway(t, db, b, "Inactive", now.Add(-time.Hour))
	testutil.Entries(t, db, inactive, 2)
	db.Model(inactive).Update("is_active", false)

	done := testutil.Giveaway(t, db, b, "Already drawn", now.Add(-time.Hour))
	testutil.Entries(t, db, done, 2)
	if _, err := svc.SelectWinner(ctx, done.ID); err != nil {
		t.Fatalf("select: %v", err)
	}

	mc := metrics.NewCollector(nil)
	ids, err := svc.FindEligibleGiveaways(metrics.WithCollector(ctx, mc), now)
	if err != nil {
		t.Fatalf("FindEligibleGiveaways: %v", err)
	}
	want := []string{ready1.ID, ready2.ID}
	sort.Strings(ids)
	sort.Strings(want)
	if len(ids) != 2 || ids[0] != want[0] || ids[1] != want[1] {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	if got := mc.Get("find_eligible_giveaways").Counters["eligible"]; got != 2 {
		t.Fatalf("eligible counter = %d", got)
	}

	// Soft-deleted giveaways are never scanned.
	if err := db.Delete(&models.Giveaway{}, "id = ?", ready2.ID).Error; err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	ids, _ = svc.FindEligibleGiveaways(ctx, now)
	if len(ids) != 1 || ids[0] != ready1.ID {
		t.Fatalf("after delete ids = %v", ids)
	}
}

func TestFindEligibleGiveawaysEmpty(t *testing.T) {
	db := testutil.NewDB(t)
	ids, err := NewWinnerService(db).FindEligibleGiveaways(context.Background(), time.Now())
	if err != nil || ids == nil || len(ids) != 0 {
		t.Fatalf("ids = %#v, err = %v", ids, err)
	}
}
