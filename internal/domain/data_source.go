package domain

import (
	"time"

	"github.com/google/uuid"
)

// DataSource describes one configured upstream emission-factor dataset.
// Name is the registry key used to select a connector, so it must match a
// registered connector name exactly.
type DataSource struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	SourceType  string    `json:"source_type"`
	FileKey     string    `json:"file_key,omitempty"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
