package ingestion

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rpattn/carbonsync/internal/domain"
	"github.com/rpattn/carbonsync/internal/httpclient"

	"go.uber.org/zap"
)

// DEFRASourceName is the registry key for the UK conversion-factor connector.
const DEFRASourceName = "UK DEFRA Conversion Factors"

const defraWorkbookURL = "https://assets.publishing.service.gov.uk/media/ghg-conversion-factors-condensed-set.xlsx"

// defraSheetConfig describes one of the six independently-shaped sheets.
// Scope and category are pre-assigned by configuration, not inferred.
type defraSheetConfig struct {
	name           string // canonical name, matched case-insensitively as substring
	scope          string
	category       string
	activityColumn string
	valueColumn    string
	unitColumn     string // preferred over extraction when set
}

var defraSheets = []defraSheetConfig{
	{name: "Fuels", scope: domain.Scope1, category: "fuels", activityColumn: "Fuel", valueColumn: "kg CO2e per litre"},
	{name: "UK electricity", scope: domain.Scope2, category: "energy", activityColumn: "Activity", valueColumn: "kg CO2e per kWh"},
	{name: "Material use", scope: domain.Scope3, category: "materials", activityColumn: "Material", valueColumn: "kg CO2e per tonne"},
	{name: "Waste disposal", scope: domain.Scope3, category: "waste", activityColumn: "Waste type", valueColumn: "kg CO2e per tonne"},
	{name: "Business travel- air", scope: domain.Scope3, category: "transport", activityColumn: "Haul", valueColumn: "kg CO2e per passenger.km"},
	{name: "Freighting goods", scope: domain.Scope3, category: "transport", activityColumn: "Activity", valueColumn: "kg CO2e per tonne.km"},
}

// DEFRAConnector ingests the UK government GHG conversion-factor workbook
// (variant B: six sheets, header rows preceded by title/notes rows, sheet
// names drifting between editions).
type DEFRAConnector struct {
	source domain.DataSource
	client *httpclient.Client
	logger *zap.Logger
	sheets []defraSheetConfig
}

// NewDEFRAConnector builds the connector for one sync run.
func NewDEFRAConnector(source domain.DataSource, deps Deps) (Connector, error) {
	return &DEFRAConnector{
		source: source,
		client: deps.Client,
		logger: deps.Logger.With(zap.String("connector", "defra")),
		sheets: defraSheets,
	}, nil
}

func (c *DEFRAConnector) Name() string { return DEFRASourceName }

func (c *DEFRAConnector) FetchRawData(ctx context.Context) ([]byte, error) {
	return c.client.Download(ctx, defraWorkbookURL, nil)
}

// ParseData walks the configured sheets. A configured sheet missing from
// this edition of the workbook is skipped, not an error: the source drops
// categories between editions. The header row is found by scanning for the
// configured activity column, since leading rows carry titles and notes.
func (c *DEFRAConnector) ParseData(raw []byte) ([]SourceRecord, error) {
	f, err := openWorkbook(raw)
	if err != nil {
		return nil, &ParseError{Source: c.Name(), Err: err}
	}
	defer func() { _ = f.Close() }()

	var records []SourceRecord
	for _, cfg := range c.sheets {
		sheet, ok := findSheet(f, cfg.name)
		if !ok {
			c.logger.Info("sheet not present in this edition, skipping", zap.String("sheet", cfg.name))
			continue
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, &ParseError{Source: c.Name(), Sheet: sheet, Err: err}
		}

		var headers []string
		for idx, row := range rows {
			if headers == nil {
				if rowContains(row, cfg.activityColumn) {
					headers = row
				}
				continue
			}
			if rowIsEmpty(row) {
				continue
			}
			records = append(records, SourceRecord{
				Sheet:  sheet,
				Row:    idx + 1,
				Values: zipRow(headers, row),
			})
		}
		if headers == nil {
			return nil, &ParseError{Source: c.Name(), Sheet: sheet, Err: fmt.Errorf("header row with column %q not found", cfg.activityColumn)}
		}
	}

	c.logger.Info("parsed workbook", zap.Int("records", len(records)))
	return records, nil
}

// TransformData normalizes each record using its sheet's configuration.
// Unit resolution prefers an explicit unit column, then the "per <unit>"
// token of the value-column name, then the literal "unit" — the last case is
// flagged in metadata as a data-quality marker rather than rejected.
func (c *DEFRAConnector) TransformData(records []SourceRecord) ([]domain.EmissionFactor, error) {
	factors := make([]domain.EmissionFactor, 0, len(records))
	for _, record := range records {
		cfg, ok := c.configForSheet(record.Sheet)
		if !ok {
			return nil, &TransformError{Source: c.Name(), Err: fmt.Errorf("record from unconfigured sheet %q", record.Sheet)}
		}

		_, activity, _ := lookupColumn(record.Values, cfg.activityColumn)
		valueHeader, rawValue, _ := lookupColumn(record.Values, cfg.valueColumn)

		value, err := parseFactor(rawValue)
		if err != nil {
			value = 0
		}

		unit, inferred := c.resolveUnit(cfg, record.Values, valueHeader)

		factor := domain.NewEmissionFactor(c.source.ID, activity, value, unit)
		factor.Category = cfg.category
		factor.Scope = cfg.scope
		factor.Geography = "GB"
		factor.ReferenceYear = extractYear(record.Sheet)
		if activity != "" {
			factor.ExternalID = fmt.Sprintf("defra_%s_%s", slugify(cfg.name), slugify(activity))
		}
		factor.Metadata["source_sheet"] = record.Sheet
		factor.Metadata["source_row"] = strconv.Itoa(record.Row)
		if inferred {
			factor.Metadata["unit_inferred"] = "fallback"
		}
		factors = append(factors, factor)
	}

	return factors, nil
}

func (c *DEFRAConnector) configForSheet(sheet string) (defraSheetConfig, bool) {
	lower := strings.ToLower(sheet)
	for _, cfg := range c.sheets {
		if strings.Contains(lower, strings.ToLower(cfg.name)) {
			return cfg, true
		}
	}
	return defraSheetConfig{}, false
}

// resolveUnit returns the unit and whether the "unit" literal fallback was
// used.
func (c *DEFRAConnector) resolveUnit(cfg defraSheetConfig, values map[string]string, valueHeader string) (string, bool) {
	if cfg.unitColumn != "" {
		if _, explicit, ok := lookupColumn(values, cfg.unitColumn); ok && explicit != "" {
			return explicit, false
		}
	}
	if unit := extractUnit(valueHeader); unit != "" {
		return unit, false
	}
	if unit := extractUnit(cfg.valueColumn); unit != "" {
		return unit, false
	}
	return "unit", true
}
