package domain

import (
	"time"

	"github.com/google/uuid"
)

// GHG Protocol scopes assigned to emission factors.
const (
	Scope1 = "Scope 1"
	Scope2 = "Scope 2"
	Scope3 = "Scope 3"
)

// DefaultGeography marks factors with no regional resolution.
const DefaultGeography = "GLO"

// EmissionFactor is the canonical record every connector normalizes into.
// The pair (ExternalID, DataSourceID) is the natural key used for upsert
// matching; a factor without an ExternalID is always inserted as new.
type EmissionFactor struct {
	ID                uuid.UUID         `json:"id"`
	DataSourceID      uuid.UUID         `json:"data_source_id"`
	ActivityName      string            `json:"activity_name"`
	CO2eFactor        float64           `json:"co2e_factor"`
	Unit              string            `json:"unit"`
	ExternalID        string            `json:"external_id,omitempty"`
	Category          string            `json:"category,omitempty"`
	Geography         string            `json:"geography"`
	Scope             string            `json:"scope"`
	ReferenceYear     int               `json:"reference_year,omitempty"`
	DataQualityRating float64           `json:"data_quality_rating,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// NewEmissionFactor creates a factor with defaults applied.
func NewEmissionFactor(dataSourceID uuid.UUID, activityName string, co2eFactor float64, unit string) EmissionFactor {
	return EmissionFactor{
		ID:           uuid.New(),
		DataSourceID: dataSourceID,
		ActivityName: activityName,
		CO2eFactor:   co2eFactor,
		Unit:         unit,
		Geography:    DefaultGeography,
		Scope:        Scope1,
		Metadata:     map[string]string{},
	}
}

// WithMetadata returns a copy of the factor with the given key set.
func (f EmissionFactor) WithMetadata(key, value string) EmissionFactor {
	meta := make(map[string]string, len(f.Metadata)+1)
	for k, v := range f.Metadata {
		meta[k] = v
	}
	meta[key] = value
	f.Metadata = meta
	return f
}
