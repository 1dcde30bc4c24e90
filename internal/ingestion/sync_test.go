package ingestion

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rpattn/carbonsync/internal/domain"
	"github.com/rpattn/carbonsync/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// stubConnector feeds canned factors through the pipeline without touching
// the network.
type stubConnector struct {
	factors      []domain.EmissionFactor
	fetchErr     error
	parseErr     error
	transformErr error
}

func (c *stubConnector) Name() string { return "stub" }

func (c *stubConnector) FetchRawData(ctx context.Context) ([]byte, error) {
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	return []byte("raw"), nil
}

func (c *stubConnector) ParseData(raw []byte) ([]SourceRecord, error) {
	if c.parseErr != nil {
		return nil, c.parseErr
	}
	return []SourceRecord{}, nil
}

func (c *stubConnector) TransformData(records []SourceRecord) ([]domain.EmissionFactor, error) {
	if c.transformErr != nil {
		return nil, c.transformErr
	}
	return c.factors, nil
}

func testSource() domain.DataSource {
	return domain.DataSource{
		ID:         uuid.New(),
		Name:       "Stub Source",
		SourceType: "excel",
		Active:     true,
	}
}

func stubFactors(source domain.DataSource, total, invalid int) []domain.EmissionFactor {
	factors := make([]domain.EmissionFactor, 0, total)
	for i := 0; i < total; i++ {
		value := 1.0 + float64(i)
		if i < invalid {
			value = 0
		}
		factor := domain.NewEmissionFactor(source.ID, fmt.Sprintf("Activity %03d", i), value, "kWh")
		factor.ExternalID = fmt.Sprintf("stub_activity_%03d", i)
		factors = append(factors, factor)
	}
	return factors
}

func TestExecuteSyncCompletesAndKeepsCountersConsistent(t *testing.T) {
	store := repository.NewMemoryStore()
	orch := NewOrchestrator(store, zap.NewNop())
	source := testSource()

	conn := &stubConnector{factors: stubFactors(source, 10, 0)}
	result, err := orch.ExecuteSync(context.Background(), source, domain.SyncTypeManual, conn)
	if err != nil {
		t.Fatalf("unexpected sync error: %v", err)
	}

	if result.Status != domain.SyncStatusCompleted {
		t.Fatalf("expected completed status, got %s", result.Status)
	}
	if result.RecordsProcessed != 10 || result.RecordsCreated != 10 {
		t.Fatalf("expected 10 processed / 10 created, got %d / %d", result.RecordsProcessed, result.RecordsCreated)
	}
	if result.CompletedAt == nil {
		t.Fatalf("expected completed_at to be set")
	}

	logs := store.SyncLogs()
	if len(logs) != 1 {
		t.Fatalf("expected 1 sync log, got %d", len(logs))
	}
	log := logs[0]
	if log.Status != domain.SyncStatusCompleted {
		t.Fatalf("expected completed log, got %s", log.Status)
	}
	if !log.CountersConsistent() {
		t.Fatalf("counters inconsistent: %+v", log)
	}
	if len(store.Factors()) != 10 {
		t.Fatalf("expected 10 persisted factors, got %d", len(store.Factors()))
	}
}

func TestExecuteSyncPartialFailureSplitsCounters(t *testing.T) {
	store := repository.NewMemoryStore()
	orch := NewOrchestrator(store, zap.NewNop())
	source := testSource()

	conn := &stubConnector{factors: stubFactors(source, 100, 5)}
	result, err := orch.ExecuteSync(context.Background(), source, domain.SyncTypeManual, conn)
	if err != nil {
		t.Fatalf("validation failures must not fail the run: %v", err)
	}

	if result.Status != domain.SyncStatusCompleted {
		t.Fatalf("expected completed status, got %s", result.Status)
	}
	if result.RecordsProcessed != 100 {
		t.Fatalf("expected 100 processed, got %d", result.RecordsProcessed)
	}
	if result.RecordsFailed != 5 {
		t.Fatalf("expected 5 failed, got %d", result.RecordsFailed)
	}
	if result.RecordsCreated+result.RecordsUpdated != 95 {
		t.Fatalf("expected 95 created+updated, got %d", result.RecordsCreated+result.RecordsUpdated)
	}
	if len(result.Errors) != 5 {
		t.Fatalf("expected 5 collected errors, got %d", len(result.Errors))
	}
	if len(store.Factors()) != 95 {
		t.Fatalf("expected 95 persisted factors, got %d", len(store.Factors()))
	}

	logs := store.SyncLogs()
	if len(logs) != 1 || !logs[0].CountersConsistent() {
		t.Fatalf("expected one consistent sync log, got %+v", logs)
	}
	if !strings.Contains(logs[0].ErrorDetails, "co2e_factor") {
		t.Fatalf("expected error details to carry the rejected field, got %q", logs[0].ErrorDetails)
	}
}

func TestExecuteSyncIsIdempotent(t *testing.T) {
	store := repository.NewMemoryStore()
	orch := NewOrchestrator(store, zap.NewNop())
	source := testSource()

	conn := &stubConnector{factors: stubFactors(source, 20, 0)}

	first, err := orch.ExecuteSync(context.Background(), source, domain.SyncTypeInitial, conn)
	if err != nil {
		t.Fatalf("unexpected first sync error: %v", err)
	}
	if first.RecordsCreated != 20 || first.RecordsUpdated != 0 {
		t.Fatalf("first run: expected 20 created / 0 updated, got %d / %d", first.RecordsCreated, first.RecordsUpdated)
	}

	second, err := orch.ExecuteSync(context.Background(), source, domain.SyncTypeScheduled, conn)
	if err != nil {
		t.Fatalf("unexpected second sync error: %v", err)
	}
	if second.RecordsCreated != 0 || second.RecordsUpdated != 20 {
		t.Fatalf("second run: expected 0 created / 20 updated, got %d / %d", second.RecordsCreated, second.RecordsUpdated)
	}
	if len(store.Factors()) != 20 {
		t.Fatalf("expected 20 factors after re-sync, got %d", len(store.Factors()))
	}
}

func TestExecuteSyncWithoutExternalIDAlwaysInserts(t *testing.T) {
	store := repository.NewMemoryStore()
	orch := NewOrchestrator(store, zap.NewNop())
	source := testSource()

	factor := domain.NewEmissionFactor(source.ID, "Unkeyed activity", 2.5, "tonne")
	conn := &stubConnector{factors: []domain.EmissionFactor{factor}}

	for i := 0; i < 2; i++ {
		if _, err := orch.ExecuteSync(context.Background(), source, domain.SyncTypeManual, conn); err != nil {
			t.Fatalf("unexpected sync error: %v", err)
		}
	}

	if len(store.Factors()) != 2 {
		t.Fatalf("expected duplicate inserts for unkeyed factors, got %d", len(store.Factors()))
	}
}

func TestExecuteSyncFetchFailureWritesFailedLog(t *testing.T) {
	store := repository.NewMemoryStore()
	orch := NewOrchestrator(store, zap.NewNop())
	source := testSource()

	conn := &stubConnector{fetchErr: fmt.Errorf("download failed: status 503")}
	result, err := orch.ExecuteSync(context.Background(), source, domain.SyncTypeManual, conn)
	if err == nil {
		t.Fatalf("expected fetch failure to surface")
	}

	if result.Status != domain.SyncStatusFailed {
		t.Fatalf("expected failed result, got %s", result.Status)
	}
	if len(store.Factors()) != 0 {
		t.Fatalf("expected no persisted factors after rollback, got %d", len(store.Factors()))
	}

	logs := store.SyncLogs()
	if len(logs) != 1 {
		t.Fatalf("expected exactly one failed log, got %d", len(logs))
	}
	if logs[0].Status != domain.SyncStatusFailed {
		t.Fatalf("expected failed log, got %s", logs[0].Status)
	}
	if logs[0].ErrorMessage == "" {
		t.Fatalf("expected error message on failed log")
	}
	if logs[0].CompletedAt == nil {
		t.Fatalf("expected completed_at on failed log")
	}
}

// failingTx wraps a real transaction and fails inserts after a threshold, to
// exercise the mid-batch rollback path.
type failingStore struct {
	repository.IngestionStore
	failAfter  int
	rolledBack bool
}

type failingTx struct {
	repository.IngestionTx
	store    *failingStore
	inserted int
}

func (s *failingStore) Begin(ctx context.Context) (repository.IngestionTx, error) {
	tx, err := s.IngestionStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{IngestionTx: tx, store: s}, nil
}

func (t *failingTx) InsertFactor(ctx context.Context, factor domain.EmissionFactor) (uuid.UUID, error) {
	if t.inserted >= t.store.failAfter {
		return uuid.Nil, fmt.Errorf("failed to insert emission factor: connection reset")
	}
	t.inserted++
	return t.IngestionTx.InsertFactor(ctx, factor)
}

func (t *failingTx) Rollback(ctx context.Context) error {
	t.store.rolledBack = true
	return t.IngestionTx.Rollback(ctx)
}

func TestExecuteSyncStoreErrorRollsBackWholeBatch(t *testing.T) {
	memory := repository.NewMemoryStore()
	store := &failingStore{IngestionStore: memory, failAfter: 3}
	orch := NewOrchestrator(store, zap.NewNop())
	source := testSource()

	conn := &stubConnector{factors: stubFactors(source, 10, 0)}
	result, err := orch.ExecuteSync(context.Background(), source, domain.SyncTypeManual, conn)
	if err == nil {
		t.Fatalf("expected store error to surface")
	}
	if !store.rolledBack {
		t.Fatalf("expected transaction rollback")
	}

	if len(memory.Factors()) != 0 {
		t.Fatalf("expected no persisted factors after rollback, got %d", len(memory.Factors()))
	}
	if result.Status != domain.SyncStatusFailed {
		t.Fatalf("expected failed result, got %s", result.Status)
	}
	if result.RecordsProcessed != 4 {
		t.Fatalf("expected partial progress of 4 processed, got %d", result.RecordsProcessed)
	}
	if result.RecordsFailed != 1 {
		t.Fatalf("expected the aborting record counted as failed, got %d", result.RecordsFailed)
	}

	logs := memory.SyncLogs()
	if len(logs) != 1 || logs[0].Status != domain.SyncStatusFailed {
		t.Fatalf("expected one failed log outside the transaction, got %+v", logs)
	}
	if !logs[0].CountersConsistent() {
		t.Fatalf("counters inconsistent on failed log: %+v", logs[0])
	}
}
