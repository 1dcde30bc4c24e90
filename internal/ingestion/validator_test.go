package ingestion

import (
	"fmt"
	"testing"

	"github.com/rpattn/carbonsync/internal/domain"

	"github.com/google/uuid"
)

func TestValidateRejectsNonPositiveFactor(t *testing.T) {
	collector := &ErrorCollector{}

	factor := domain.NewEmissionFactor(uuid.New(), "Diesel", 0, "litre")
	factor.ExternalID = "defra_fuels_diesel"

	if Validate(factor, collector) {
		t.Fatalf("expected zero factor to be rejected")
	}

	errs := collector.Errors()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if errs[0].Field != "co2e_factor" {
		t.Fatalf("expected field co2e_factor, got %q", errs[0].Field)
	}
	if errs[0].RecordID != "defra_fuels_diesel" {
		t.Fatalf("expected record id from external id, got %q", errs[0].RecordID)
	}

	collector = &ErrorCollector{}
	negative := domain.NewEmissionFactor(uuid.New(), "Diesel", -1.5, "litre")
	if Validate(negative, collector) {
		t.Fatalf("expected negative factor to be rejected")
	}
}

func TestValidateRejectsMissingRequiredFields(t *testing.T) {
	collector := &ErrorCollector{}

	noActivity := domain.NewEmissionFactor(uuid.New(), "", 1.2, "kWh")
	if Validate(noActivity, collector) {
		t.Fatalf("expected missing activity name to be rejected")
	}
	if collector.Errors()[0].Field != "activity_name" {
		t.Fatalf("expected field activity_name, got %q", collector.Errors()[0].Field)
	}

	noUnit := domain.NewEmissionFactor(uuid.New(), "Electricity", 1.2, "")
	if Validate(noUnit, collector) {
		t.Fatalf("expected missing unit to be rejected")
	}
	if collector.Errors()[1].Field != "unit" {
		t.Fatalf("expected field unit, got %q", collector.Errors()[1].Field)
	}
}

func TestValidateAcceptsCompleteFactor(t *testing.T) {
	collector := &ErrorCollector{}

	factor := domain.NewEmissionFactor(uuid.New(), "Natural gas", 0.18316, "kWh")
	if !Validate(factor, collector) {
		t.Fatalf("expected valid factor to pass, errors: %+v", collector.Errors())
	}
	if len(collector.Errors()) != 0 {
		t.Fatalf("expected no errors, got %d", len(collector.Errors()))
	}
}

func TestErrorCollectorCapsAtLimit(t *testing.T) {
	collector := &ErrorCollector{}

	for i := 0; i < maxCollectedErrors+25; i++ {
		collector.Add(RecordError{Message: fmt.Sprintf("error %d", i)})
	}

	if len(collector.Errors()) != maxCollectedErrors {
		t.Fatalf("expected %d collected errors, got %d", maxCollectedErrors, len(collector.Errors()))
	}
	if collector.Dropped() != 25 {
		t.Fatalf("expected 25 dropped errors, got %d", collector.Dropped())
	}
}
