// Package ingestion implements the fetch → parse → transform → validate →
// upsert pipeline that synchronizes third-party emission-factor datasets
// into the shared store.
package ingestion

import (
	"context"

	"github.com/rpattn/carbonsync/internal/domain"
)

// SourceRecord is one raw parsed row plus enough provenance to trace it back
// to the file it came from. It lives only within a single sync run.
type SourceRecord struct {
	Sheet  string
	Row    int
	Values map[string]string
}

// Connector is the per-source capability: download the raw file, parse it
// into source records, and normalize those into emission factors. A
// connector is constructed for one data source and one sync run; it holds no
// state across runs.
type Connector interface {
	Name() string
	FetchRawData(ctx context.Context) ([]byte, error)
	ParseData(raw []byte) ([]SourceRecord, error)
	TransformData(records []SourceRecord) ([]domain.EmissionFactor, error)
}
