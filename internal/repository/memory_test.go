package repository

import (
	"context"
	"testing"
	"time"

	"github.com/rpattn/carbonsync/internal/domain"

	"github.com/google/uuid"
)

func TestMemoryTxCommitPublishesWrites(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sourceID := uuid.New()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("unexpected begin error: %v", err)
	}

	factor := domain.NewEmissionFactor(sourceID, "Diesel", 2.51, "litre")
	factor.ExternalID = "defra_fuels_diesel"
	if _, err := tx.InsertFactor(ctx, factor); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}

	if got := len(store.Factors()); got != 0 {
		t.Fatalf("expected writes invisible before commit, got %d factors", got)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}
	if got := len(store.Factors()); got != 1 {
		t.Fatalf("expected 1 factor after commit, got %d", got)
	}
}

func TestMemoryTxRollbackDiscardsWrites(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("unexpected begin error: %v", err)
	}
	if _, err := tx.InsertFactor(ctx, domain.NewEmissionFactor(uuid.New(), "Diesel", 2.51, "litre")); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}
	if _, err := tx.CreateSyncLog(ctx, domain.NewSyncLog(uuid.New(), domain.SyncTypeManual)); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("unexpected rollback error: %v", err)
	}

	if got := len(store.Factors()); got != 0 {
		t.Fatalf("expected no factors after rollback, got %d", got)
	}
	if got := len(store.SyncLogs()); got != 0 {
		t.Fatalf("expected no logs after rollback, got %d", got)
	}

	if _, err := tx.InsertFactor(ctx, domain.NewEmissionFactor(uuid.New(), "Diesel", 2.51, "litre")); err == nil {
		t.Fatalf("expected writes on a closed transaction to fail")
	}
}

func TestMemoryTxUpdateByExternalIDMatchesSource(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sourceA := uuid.New()
	sourceB := uuid.New()

	tx, _ := store.Begin(ctx)
	original := domain.NewEmissionFactor(sourceA, "Diesel", 2.51, "litre")
	original.ExternalID = "defra_fuels_diesel"
	if _, err := tx.InsertFactor(ctx, original); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}

	// Same external id under a different source must not match.
	updated := original
	updated.CO2eFactor = 2.6
	affected, err := tx.UpdateFactorByExternalID(ctx, "defra_fuels_diesel", sourceB, updated)
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected no rows for foreign source, got %d", affected)
	}

	affected, err = tx.UpdateFactorByExternalID(ctx, "defra_fuels_diesel", sourceA, updated)
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 row updated, got %d", affected)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}

	factors := store.Factors()
	if len(factors) != 1 || factors[0].CO2eFactor != 2.6 {
		t.Fatalf("expected updated factor persisted, got %+v", factors)
	}
}

func TestMemoryStoreListSyncLogsPaginates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sourceID := uuid.New()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		log := domain.NewSyncLog(sourceID, domain.SyncTypeScheduled)
		log.StartedAt = base.Add(time.Duration(i) * time.Minute)
		if _, err := store.CreateSyncLog(ctx, log); err != nil {
			t.Fatalf("unexpected create error: %v", err)
		}
	}
	// A log for another source must never leak in.
	if _, err := store.CreateSyncLog(ctx, domain.NewSyncLog(uuid.New(), domain.SyncTypeManual)); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	logs, err := store.ListSyncLogs(ctx, sourceID, 2, 1)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if !logs[0].StartedAt.Equal(base.Add(3 * time.Minute)) {
		t.Fatalf("expected offset to skip the newest log, got %v", logs[0].StartedAt)
	}
}
