package ingestion

import (
	"github.com/rpattn/carbonsync/internal/domain"
)

// maxCollectedErrors caps the record errors attached to one sync log.
const maxCollectedErrors = 100

// RecordError is a record-level rejection. It is collected, never raised: a
// bad record increments the failed counter and the sync moves on.
type RecordError struct {
	RecordID string `json:"record_id,omitempty"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
}

// ErrorCollector accumulates record errors up to maxCollectedErrors; the
// remainder are counted but dropped.
type ErrorCollector struct {
	errors  []RecordError
	dropped int
}

// Add appends an error, dropping it silently once the cap is reached.
func (c *ErrorCollector) Add(err RecordError) {
	if len(c.errors) >= maxCollectedErrors {
		c.dropped++
		return
	}
	c.errors = append(c.errors, err)
}

// Errors returns the collected errors.
func (c *ErrorCollector) Errors() []RecordError {
	return c.errors
}

// Dropped returns how many errors exceeded the cap.
func (c *ErrorCollector) Dropped() int {
	return c.dropped
}

// Validate runs the acceptance rules over a normalized factor, recording one
// RecordError on the first failing rule. Returning false means the caller
// skips the record and counts it as failed.
func Validate(factor domain.EmissionFactor, collector *ErrorCollector) bool {
	if factor.ActivityName == "" {
		collector.Add(RecordError{
			RecordID: factor.ExternalID,
			Field:    "activity_name",
			Message:  "activity name is required",
		})
		return false
	}
	if factor.Unit == "" {
		collector.Add(RecordError{
			RecordID: factor.ExternalID,
			Field:    "unit",
			Message:  "unit is required",
		})
		return false
	}
	if factor.CO2eFactor <= 0 {
		collector.Add(RecordError{
			RecordID: factor.ExternalID,
			Field:    "co2e_factor",
			Message:  "co2e factor must be greater than zero",
		})
		return false
	}
	return true
}
