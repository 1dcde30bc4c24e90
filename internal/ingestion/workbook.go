package ingestion

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

func openWorkbook(raw []byte) (*excelize.File, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	return f, nil
}

// findSheet matches a configured canonical sheet name against the workbook's
// sheet list with a case-insensitive substring, because published editions
// carry year suffixes ("Fuels 2024"). Returns the actual sheet name.
func findSheet(f *excelize.File, name string) (string, bool) {
	needle := strings.ToLower(name)
	for _, sheet := range f.GetSheetList() {
		if strings.Contains(strings.ToLower(sheet), needle) {
			return sheet, true
		}
	}
	return "", false
}

func rowIsEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// rowContains reports whether any cell contains needle, case-insensitively.
func rowContains(row []string, needle string) bool {
	needle = strings.ToLower(needle)
	for _, cell := range row {
		if strings.Contains(strings.ToLower(cell), needle) {
			return true
		}
	}
	return false
}

// zipRow pairs header names with row cells, trimming both. Cells beyond the
// header width are dropped; missing cells stay absent from the map.
func zipRow(headers []string, row []string) map[string]string {
	values := make(map[string]string, len(headers))
	for i, header := range headers {
		header = strings.TrimSpace(header)
		if header == "" || i >= len(row) {
			continue
		}
		values[header] = strings.TrimSpace(row[i])
	}
	return values
}

// lookupColumn finds a value by case-insensitive match against the record's
// column names, returning the matched header and value. An exact match wins
// outright; otherwise the shortest header containing the needle is chosen,
// so "Activity" beats "Activity notes" regardless of map order.
func lookupColumn(values map[string]string, name string) (string, string, bool) {
	needle := strings.ToLower(name)

	for header, value := range values {
		if strings.ToLower(header) == needle {
			return header, value, true
		}
	}

	var match string
	found := false
	for header := range values {
		if !strings.Contains(strings.ToLower(header), needle) {
			continue
		}
		if !found || len(header) < len(match) || (len(header) == len(match) && header < match) {
			match = header
			found = true
		}
	}
	if !found {
		return "", "", false
	}
	return match, values[match], true
}

// parseFactor parses a numeric cell, tolerating thousands separators.
func parseFactor(cell string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(cell), ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty value")
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("unable to parse %q as number", cell)
	}
	return value, nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = slugPattern.ReplaceAllString(value, "_")
	return strings.Trim(value, "_")
}

var perUnitPattern = regexp.MustCompile(`(?i)\bper\s+(.+?)\s*$`)

// extractUnit pulls the unit token out of a value-column name like
// "kg CO2e per kWh". The empty return tells the caller to fall back.
func extractUnit(columnName string) string {
	match := perUnitPattern.FindStringSubmatch(columnName)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

var yearPattern = regexp.MustCompile(`\b(20\d{2})\b`)

// extractYear finds a four-digit year in a sheet or file name, 0 when none.
func extractYear(name string) int {
	match := yearPattern.FindStringSubmatch(name)
	if match == nil {
		return 0
	}
	year, _ := strconv.Atoi(match[1])
	return year
}
