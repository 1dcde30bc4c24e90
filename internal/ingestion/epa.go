package ingestion

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rpattn/carbonsync/internal/domain"
	"github.com/rpattn/carbonsync/internal/httpclient"

	"go.uber.org/zap"
)

// EPASourceName is the registry key for the EPA connector.
const EPASourceName = "EPA GHG Emission Factors Hub"

// poundsPerMWhToKgPerKWh converts eGRID output rates (lb/MWh) to the
// canonical kg CO2e per kWh.
const poundsPerMWhToKgPerKWh = 0.453592 / 1000

// epaFileURLs maps a data source's file key to a known download URL.
var epaFileURLs = map[string]string{
	"ghg_emission_factors_hub": "https://www.epa.gov/system/files/documents/ghg-emission-factors-hub.xlsx",
	"egrid_summary_tables":     "https://www.epa.gov/system/files/documents/egrid-summary-tables.xlsx",
}

const epaDefaultFileKey = "ghg_emission_factors_hub"

// epaSheetConfig maps one sheet's columns onto the canonical schema. Column
// names vary between sheet variants, so each sheet carries its own mapping.
type epaSheetConfig struct {
	name           string
	activityColumn string
	factorColumn   string
	unitColumn     string  // explicit unit column, when the sheet has one
	unit           string  // canonical unit, when the sheet does not
	conversion     float64 // raw value → canonical unit multiplier
	category       string
}

var epaSheets = []epaSheetConfig{
	{
		name:           "Stationary Combustion",
		activityColumn: "Fuel Type",
		factorColumn:   "kg CO2e per mmBtu",
		unit:           "mmBtu",
		conversion:     1,
		category:       "fuels",
	},
	{
		name:           "eGRID Subregion",
		activityColumn: "eGRID Subregion",
		factorColumn:   "SRCO2RTA",
		unit:           "kWh",
		conversion:     poundsPerMWhToKgPerKWh,
		category:       "electricity",
	},
	{
		name:           "Mobile Combustion",
		activityColumn: "Vehicle Type",
		factorColumn:   "kg CO2e per mile",
		unit:           "mile",
		conversion:     1,
		category:       "mobile transport",
	},
}

// EPAConnector ingests the US EPA emission-factor hub workbook (variant A:
// flat sheets, header in the first non-empty row).
type EPAConnector struct {
	source domain.DataSource
	client *httpclient.Client
	logger *zap.Logger
	url    string
	sheets []epaSheetConfig
}

// NewEPAConnector builds the connector for one sync run.
func NewEPAConnector(source domain.DataSource, deps Deps) (Connector, error) {
	fileKey := source.FileKey
	if fileKey == "" {
		fileKey = epaDefaultFileKey
	}
	url, ok := epaFileURLs[fileKey]
	if !ok {
		keys := make([]string, 0, len(epaFileURLs))
		for key := range epaFileURLs {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("unknown EPA file key %q (known: %s)", fileKey, strings.Join(keys, ", "))
	}

	return &EPAConnector{
		source: source,
		client: deps.Client,
		logger: deps.Logger.With(zap.String("connector", "epa")),
		url:    url,
		sheets: epaSheets,
	}, nil
}

func (c *EPAConnector) Name() string { return EPASourceName }

func (c *EPAConnector) FetchRawData(ctx context.Context) ([]byte, error) {
	return c.client.Download(ctx, c.url, nil)
}

// ParseData reads every configured sheet: the header is the first non-empty
// row, every following non-empty row becomes one record tagged with sheet
// name and 1-based row number.
func (c *EPAConnector) ParseData(raw []byte) ([]SourceRecord, error) {
	f, err := openWorkbook(raw)
	if err != nil {
		return nil, &ParseError{Source: c.Name(), Err: err}
	}
	defer func() { _ = f.Close() }()

	var records []SourceRecord
	for _, cfg := range c.sheets {
		sheet, ok := findSheet(f, cfg.name)
		if !ok {
			return nil, &ParseError{Source: c.Name(), Sheet: cfg.name, Err: fmt.Errorf("sheet not found in workbook")}
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, &ParseError{Source: c.Name(), Sheet: sheet, Err: err}
		}

		var headers []string
		for idx, row := range rows {
			if rowIsEmpty(row) {
				continue
			}
			if headers == nil {
				headers = row
				continue
			}
			records = append(records, SourceRecord{
				Sheet:  cfg.name,
				Row:    idx + 1,
				Values: zipRow(headers, row),
			})
		}
		if headers == nil {
			return nil, &ParseError{Source: c.Name(), Sheet: sheet, Err: fmt.Errorf("no header row found")}
		}
	}

	c.logger.Info("parsed workbook", zap.Int("records", len(records)))
	return records, nil
}

// TransformData maps sheet-specific columns to the canonical schema and
// applies the sheet's unit conversion. Rows whose factor cell is empty or
// non-numeric normalize to a zero factor and are left for validation to
// reject, so one bad row never aborts the batch.
func (c *EPAConnector) TransformData(records []SourceRecord) ([]domain.EmissionFactor, error) {
	configs := make(map[string]epaSheetConfig, len(c.sheets))
	for _, cfg := range c.sheets {
		configs[cfg.name] = cfg
	}

	factors := make([]domain.EmissionFactor, 0, len(records))
	for _, record := range records {
		cfg, ok := configs[record.Sheet]
		if !ok {
			return nil, &TransformError{Source: c.Name(), Err: fmt.Errorf("record from unconfigured sheet %q", record.Sheet)}
		}

		_, activity, _ := lookupColumn(record.Values, cfg.activityColumn)
		_, rawValue, _ := lookupColumn(record.Values, cfg.factorColumn)

		value, err := parseFactor(rawValue)
		if err != nil {
			value = 0
		}

		unit := cfg.unit
		if cfg.unitColumn != "" {
			if _, explicit, ok := lookupColumn(record.Values, cfg.unitColumn); ok && explicit != "" {
				unit = explicit
			}
		}

		factor := domain.NewEmissionFactor(c.source.ID, activity, value*cfg.conversion, unit)
		factor.Category = cfg.category
		factor.Scope = epaScope(cfg.category)
		factor.Geography = "US"
		if activity != "" {
			factor.ExternalID = fmt.Sprintf("epa_%s_%s", slugify(record.Sheet), slugify(activity))
		}
		factor.Metadata["source_sheet"] = record.Sheet
		factor.Metadata["source_row"] = strconv.Itoa(record.Row)
		factors = append(factors, factor)
	}

	return factors, nil
}

// epaScope assigns GHG Protocol scope by category keyword.
func epaScope(category string) string {
	lower := strings.ToLower(category)
	switch {
	case strings.Contains(lower, "electricity"):
		return domain.Scope2
	case strings.Contains(lower, "mobile"), strings.Contains(lower, "transport"):
		return domain.Scope1
	default:
		return domain.Scope1
	}
}
