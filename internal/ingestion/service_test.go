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

type stubSourceRepo struct {
	sources map[uuid.UUID]domain.DataSource
}

func (r *stubSourceRepo) Create(ctx context.Context, source domain.DataSource) (domain.DataSource, error) {
	if source.ID == uuid.Nil {
		source.ID = uuid.New()
	}
	r.sources[source.ID] = source
	return source, nil
}

func (r *stubSourceRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.DataSource, error) {
	source, ok := r.sources[id]
	if !ok {
		return domain.DataSource{}, fmt.Errorf("data source not found: %s", id)
	}
	return source, nil
}

func (r *stubSourceRepo) GetByName(ctx context.Context, name string) (domain.DataSource, error) {
	for _, source := range r.sources {
		if source.Name == name {
			return source, nil
		}
	}
	return domain.DataSource{}, fmt.Errorf("data source not found: %s", name)
}

func (r *stubSourceRepo) List(ctx context.Context) ([]domain.DataSource, error) {
	sources := make([]domain.DataSource, 0, len(r.sources))
	for _, source := range r.sources {
		sources = append(sources, source)
	}
	return sources, nil
}

func (r *stubSourceRepo) Update(ctx context.Context, source domain.DataSource) (domain.DataSource, error) {
	if _, ok := r.sources[source.ID]; !ok {
		return domain.DataSource{}, fmt.Errorf("data source not found: %s", source.ID)
	}
	r.sources[source.ID] = source
	return source, nil
}

func (r *stubSourceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.sources, id)
	return nil
}

func serviceFixture(t *testing.T, source domain.DataSource, conn Connector) (*Service, *repository.MemoryStore) {
	t.Helper()

	store := repository.NewMemoryStore()
	registry := NewRegistry()
	if err := registry.Register(source.Name, func(domain.DataSource, Deps) (Connector, error) {
		return conn, nil
	}); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	sources := &stubSourceRepo{sources: map[uuid.UUID]domain.DataSource{source.ID: source}}
	return NewService(sources, store, registry, Deps{Logger: zap.NewNop()}), store
}

func TestServiceTriggerSyncRunsConnector(t *testing.T) {
	source := testSource()
	conn := &stubConnector{factors: stubFactors(source, 3, 0)}
	service, store := serviceFixture(t, source, conn)

	result, err := service.TriggerSync(context.Background(), source.ID, domain.SyncTypeManual)
	if err != nil {
		t.Fatalf("unexpected sync error: %v", err)
	}
	if result.RecordsCreated != 3 {
		t.Fatalf("expected 3 created, got %d", result.RecordsCreated)
	}
	if len(store.Factors()) != 3 {
		t.Fatalf("expected 3 persisted factors, got %d", len(store.Factors()))
	}
}

func TestServiceTriggerSyncRejectsUnknownSource(t *testing.T) {
	source := testSource()
	service, _ := serviceFixture(t, source, &stubConnector{})

	if _, err := service.TriggerSync(context.Background(), uuid.New(), domain.SyncTypeManual); err == nil {
		t.Fatalf("expected unknown data source to fail")
	}
}

func TestServiceTriggerSyncRejectsInactiveSource(t *testing.T) {
	source := testSource()
	source.Active = false
	service, store := serviceFixture(t, source, &stubConnector{factors: stubFactors(source, 3, 0)})

	_, err := service.TriggerSync(context.Background(), source.ID, domain.SyncTypeManual)
	if err == nil {
		t.Fatalf("expected inactive data source to fail")
	}
	if !strings.Contains(err.Error(), "inactive") {
		t.Fatalf("expected inactive error, got: %v", err)
	}
	if len(store.SyncLogs()) != 0 {
		t.Fatalf("expected no sync log before a run starts, got %d", len(store.SyncLogs()))
	}
}

func TestServiceCreateSourceRequiresRegisteredConnector(t *testing.T) {
	source := testSource()
	service, _ := serviceFixture(t, source, &stubConnector{})

	_, err := service.CreateSource(context.Background(), domain.DataSource{
		Name:       "Nobody Registered This",
		SourceType: "excel",
		Active:     true,
	})
	if err == nil {
		t.Fatalf("expected creation without a connector to fail")
	}

	created, err := service.CreateSource(context.Background(), domain.DataSource{
		Name:       source.Name,
		SourceType: "excel",
		FileKey:    "alternate_edition",
		Active:     true,
	})
	if err == nil {
		t.Fatalf("expected duplicate name to fail, got %+v", created)
	}
}

func TestServiceSourceLifecycle(t *testing.T) {
	source := testSource()
	service, _ := serviceFixture(t, source, &stubConnector{})

	fetched, err := service.GetSource(context.Background(), source.ID)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}

	fetched.Active = false
	updated, err := service.UpdateSource(context.Background(), fetched)
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if updated.Active {
		t.Fatalf("expected source deactivated")
	}
	if _, err := service.TriggerSync(context.Background(), source.ID, domain.SyncTypeManual); err == nil {
		t.Fatalf("expected sync against deactivated source to fail")
	}

	if err := service.DeleteSource(context.Background(), source.ID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, err := service.GetSource(context.Background(), source.ID); err == nil {
		t.Fatalf("expected deleted source to be gone")
	}
}

func TestServiceSyncHistoryReturnsNewestFirst(t *testing.T) {
	source := testSource()
	conn := &stubConnector{factors: stubFactors(source, 1, 0)}
	service, _ := serviceFixture(t, source, conn)

	for i := 0; i < 3; i++ {
		if _, err := service.TriggerSync(context.Background(), source.ID, domain.SyncTypeScheduled); err != nil {
			t.Fatalf("unexpected sync error: %v", err)
		}
	}

	logs, err := service.SyncHistory(context.Background(), source.ID, 2, 0)
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected limit of 2 logs, got %d", len(logs))
	}
	if logs[0].StartedAt.Before(logs[1].StartedAt) {
		t.Fatalf("expected newest log first")
	}
}
