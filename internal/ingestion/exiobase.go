package ingestion

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/rpattn/carbonsync/internal/domain"
	"github.com/rpattn/carbonsync/internal/httpclient"

	"go.uber.org/zap"
)

// EXIOBASESourceName is the registry key for the input-output matrix
// connector.
const EXIOBASESourceName = "EXIOBASE Multi-Regional Input-Output"

const exiobaseArchiveURL = "https://zenodo.org/api/records/exiobase/files/IOT_pxp.zip"

// matrixMemberSubstring identifies the emissions-intensity matrix inside the
// archive by filename convention.
const matrixMemberSubstring = "satellite/F.txt"

// gwp100 holds the 100-year Global Warming Potential multipliers used to
// collapse stressors into CO2-equivalents. Unrecognized stressors count as
// already CO2-equivalent.
var gwp100 = map[string]float64{
	"CO2": 1,
	"CH4": 28,
	"N2O": 265,
}

// stressorWhitelist names the greenhouse-gas rows of interest. Editions
// rename rows, so matching falls back to substrings when exact names miss.
var stressorWhitelist = []string{
	"CO2 - combustion - air",
	"CH4 - combustion - air",
	"N2O - combustion - air",
}

// productWhitelist filters matrix columns to the product categories the
// store cares about; the full matrix is far wider.
var productWhitelist = map[string]string{
	"electricity": "energy",
	"steel":       "materials",
	"cement":      "materials",
	"chemicals":   "materials",
	"paper":       "materials",
	"textiles":    "materials",
	"transport":   "transport",
}

// EXIOBASEConnector ingests the EXIOBASE multi-regional input-output
// emission intensities (variant C: a zip archive holding one tab-separated
// stressor × region/product matrix).
type EXIOBASEConnector struct {
	source domain.DataSource
	client *httpclient.Client
	logger *zap.Logger
}

// NewEXIOBASEConnector builds the connector for one sync run.
func NewEXIOBASEConnector(source domain.DataSource, deps Deps) (Connector, error) {
	return &EXIOBASEConnector{
		source: source,
		client: deps.Client,
		logger: deps.Logger.With(zap.String("connector", "exiobase")),
	}, nil
}

func (c *EXIOBASEConnector) Name() string { return EXIOBASESourceName }

func (c *EXIOBASEConnector) FetchRawData(ctx context.Context) ([]byte, error) {
	return c.client.Download(ctx, exiobaseArchiveURL, nil)
}

// ParseData extracts the matrix member from the archive and flattens it to
// one record per (stressor, region, product) cell that survives both
// whitelists. The matrix layout is: row 0 region codes, row 1 product
// names, column 0 stressor names.
func (c *EXIOBASEConnector) ParseData(raw []byte) ([]SourceRecord, error) {
	archive, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, &ParseError{Source: c.Name(), Err: fmt.Errorf("failed to open archive: %w", err)}
	}

	member, err := c.findMatrixMember(archive)
	if err != nil {
		return nil, err
	}

	reader, err := member.Open()
	if err != nil {
		return nil, &ParseError{Source: c.Name(), Sheet: member.Name, Err: err}
	}
	defer func() { _ = reader.Close() }()

	rows, err := readMatrix(reader)
	if err != nil {
		return nil, &ParseError{Source: c.Name(), Sheet: member.Name, Err: err}
	}
	if len(rows) < 3 {
		return nil, &ParseError{Source: c.Name(), Sheet: member.Name, Err: fmt.Errorf("matrix has no data rows")}
	}

	regions := rows[0]
	products := rows[1]

	// Resolve the column whitelist once; the matrix is wide.
	type column struct {
		index    int
		region   string
		product  string
		category string
	}
	var columns []column
	for i := 1; i < len(products) && i < len(regions); i++ {
		category, ok := matchProduct(products[i])
		if !ok {
			continue
		}
		columns = append(columns, column{
			index:    i,
			region:   strings.TrimSpace(regions[i]),
			product:  strings.TrimSpace(products[i]),
			category: category,
		})
	}

	var records []SourceRecord
	for rowIdx, row := range rows[2:] {
		if len(row) == 0 {
			continue
		}
		stressor := strings.TrimSpace(row[0])
		if !matchStressor(stressor) {
			continue
		}
		for _, col := range columns {
			if col.index >= len(row) {
				continue
			}
			records = append(records, SourceRecord{
				Sheet: member.Name,
				Row:   rowIdx + 3,
				Values: map[string]string{
					"stressor": stressor,
					"region":   col.region,
					"product":  col.product,
					"category": col.category,
					"value":    strings.TrimSpace(row[col.index]),
				},
			})
		}
	}

	c.logger.Info("parsed matrix",
		zap.String("member", member.Name),
		zap.Int("columns", len(columns)),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// TransformData aggregates the per-stressor cells into one CO2-equivalent
// factor per (region, product) pair using GWP100 multipliers, keeping the
// contributing stressors in metadata for traceability.
func (c *EXIOBASEConnector) TransformData(records []SourceRecord) ([]domain.EmissionFactor, error) {
	type aggregate struct {
		region    string
		product   string
		category  string
		total     float64
		stressors []string
	}

	aggregates := make(map[string]*aggregate)
	var order []string

	for _, record := range records {
		region := record.Values["region"]
		product := record.Values["product"]
		key := region + "|" + product

		agg, ok := aggregates[key]
		if !ok {
			agg = &aggregate{
				region:   region,
				product:  product,
				category: record.Values["category"],
			}
			aggregates[key] = agg
			order = append(order, key)
		}

		value, err := parseFactor(record.Values["value"])
		if err != nil {
			// An unparsable cell contributes nothing; the pair may still
			// aggregate to a valid factor from its other stressors.
			continue
		}
		stressor := record.Values["stressor"]
		agg.total += value * gwpFor(stressor)
		agg.stressors = append(agg.stressors, stressor)
	}

	sort.Strings(order)

	factors := make([]domain.EmissionFactor, 0, len(aggregates))
	for _, key := range order {
		agg := aggregates[key]

		factor := domain.NewEmissionFactor(c.source.ID, agg.product, agg.total, "EUR")
		factor.Category = agg.category
		factor.Scope = domain.Scope3
		factor.Geography = agg.region
		factor.ExternalID = fmt.Sprintf("exiobase_%s_%s", slugify(agg.region), slugify(agg.product))
		factor.Metadata["stressors"] = strings.Join(agg.stressors, "; ")
		factor.Metadata["stressor_count"] = strconv.Itoa(len(agg.stressors))
		factors = append(factors, factor)
	}

	return factors, nil
}

func (c *EXIOBASEConnector) findMatrixMember(archive *zip.Reader) (*zip.File, error) {
	for _, member := range archive.File {
		if strings.Contains(member.Name, matrixMemberSubstring) {
			return member, nil
		}
	}
	return nil, &ParseError{
		Source: c.Name(),
		Err:    fmt.Errorf("no archive member matching %q", matrixMemberSubstring),
	}
}

// readMatrix parses the tab-separated member. Rows are ragged, so field
// counts are not enforced.
func readMatrix(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read matrix: %w", err)
	}
	return rows, nil
}

// matchStressor keeps a row when its name matches the whitelist exactly, or
// as a substring in either direction when editions have renamed it.
func matchStressor(name string) bool {
	if name == "" {
		return false
	}
	for _, want := range stressorWhitelist {
		if name == want {
			return true
		}
	}
	lower := strings.ToLower(name)
	for _, want := range stressorWhitelist {
		wantLower := strings.ToLower(want)
		if strings.Contains(lower, wantLower) || strings.Contains(wantLower, lower) {
			return true
		}
	}
	return false
}

// matchProduct reports whether a product column survives the whitelist and
// which category it lands in.
func matchProduct(product string) (string, bool) {
	lower := strings.ToLower(product)
	for substring, category := range productWhitelist {
		if strings.Contains(lower, substring) {
			return category, true
		}
	}
	return "", false
}

// gwpFor resolves a stressor's GWP100 multiplier by gas token; unknown
// stressors are treated as already CO2-equivalent.
func gwpFor(stressor string) float64 {
	upper := strings.ToUpper(stressor)
	for gas, multiplier := range gwp100 {
		if strings.Contains(upper, gas) {
			return multiplier
		}
	}
	return 1
}
