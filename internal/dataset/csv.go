package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"tariffsim/internal/etr"
	"tariffsim/internal/model"
)

var ErrMissingColumn = errors.New("dataset: missing column")

var productCodePattern = regexp.MustCompile(`^(\d{4,10})`)

// ReadTradeRecords parses one row per country x sector. Empty and "NA"-style
// cells become nil values.
func ReadTradeRecords(r io.Reader) ([]model.TradeRecord, error) {
	header, rows, err := readTable(r)
	if err != nil {
		return nil, err
	}
	if err := requireColumn(header, "iso3"); err != nil {
		if err := requireColumn(header, "iso2"); err != nil {
			return nil, err
		}
	}
	sectorKey := "sector"
	if _, ok := header[sectorKey]; !ok {
		sectorKey = "product"
	}
	if err := requireColumn(header, sectorKey); err != nil {
		return nil, err
	}

	records := make([]model.TradeRecord, 0, len(rows))
	for i, row := range rows {
		record := model.TradeRecord{
			ISO3:    strings.ToUpper(getCell(row, header, "iso3")),
			ISO2:    strings.ToUpper(getCell(row, header, "iso2")),
			Country: getCell(row, header, "country"),
			Sector:  getCell(row, header, sectorKey),
		}
		if record.Sector == "All products" {
			record.Sector = model.AllSectors
		}
		var err error
		if record.Exports, err = parseNullable(getCell(row, header, "exports")); err != nil {
			return nil, fmt.Errorf("row %d exports: %w", i+2, err)
		}
		if record.ETR, err = parseNullable(getCell(row, header, "etr")); err != nil {
			return nil, fmt.Errorf("row %d etr: %w", i+2, err)
		}
		if record.GDP, err = parseNullable(getCell(row, header, "gdp")); err != nil {
			return nil, fmt.Errorf("row %d gdp: %w", i+2, err)
		}
		if record.Population, err = parseNullable(getCell(row, header, "population")); err != nil {
			return nil, fmt.Errorf("row %d population: %w", i+2, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// ReadHistory parses yearly export values: year, iso3, country, value.
func ReadHistory(r io.Reader) ([]model.HistoryPoint, error) {
	header, rows, err := readTable(r)
	if err != nil {
		return nil, err
	}
	for _, column := range []string{"year", "iso3", "value"} {
		if err := requireColumn(header, column); err != nil {
			return nil, err
		}
	}

	points := make([]model.HistoryPoint, 0, len(rows))
	for i, row := range rows {
		year, err := strconv.Atoi(getCell(row, header, "year"))
		if err != nil {
			return nil, fmt.Errorf("row %d year: %w", i+2, err)
		}
		value, err := parseNullable(getCell(row, header, "value"))
		if err != nil {
			return nil, fmt.Errorf("row %d value: %w", i+2, err)
		}
		if value == nil {
			continue
		}
		partner := strings.ToUpper(getCell(row, header, "partner"))
		if partner == "" {
			partner = model.DefaultPartner
		}
		points = append(points, model.HistoryPoint{
			Provider: getCell(row, header, "provider"),
			ISO3:     strings.ToUpper(getCell(row, header, "iso3")),
			Partner:  partner,
			Country:  getCell(row, header, "country"),
			Year:     year,
			ValueUSD: *value,
		})
	}
	return points, nil
}

// ReadExportLines parses product-level exports. Besides the plain column
// names it accepts the USA Trade Online export headers.
func ReadExportLines(r io.Reader) ([]etr.ExportLine, error) {
	header, rows, err := readTable(r)
	if err != nil {
		return nil, err
	}
	codeKey := firstPresent(header, "product_code", "commodity")
	valueKey := firstPresent(header, "exports", "customs  value (cons) ($us)", "customs value (cons) ($us)")
	if codeKey == "" || valueKey == "" {
		return nil, fmt.Errorf("%w: product_code/exports", ErrMissingColumn)
	}

	lines := make([]etr.ExportLine, 0, len(rows))
	for i, row := range rows {
		match := productCodePattern.FindStringSubmatch(getCell(row, header, codeKey))
		if match == nil {
			continue
		}
		value, err := parseNullable(getCell(row, header, valueKey))
		if err != nil {
			return nil, fmt.Errorf("row %d exports: %w", i+2, err)
		}
		if value == nil {
			continue
		}
		lines = append(lines, etr.ExportLine{
			ISO3:        strings.ToUpper(getCell(row, header, "iso3")),
			Country:     getCell(row, header, "country"),
			ProductCode: match[1],
			Exports:     *value,
		})
	}
	return lines, nil
}

// ReadDenominators parses iso3, gdp, population.
func ReadDenominators(r io.Reader) (map[string]etr.Denominators, error) {
	header, rows, err := readTable(r)
	if err != nil {
		return nil, err
	}
	if err := requireColumn(header, "iso3"); err != nil {
		return nil, err
	}

	bases := make(map[string]etr.Denominators, len(rows))
	for i, row := range rows {
		gdp, err := parseNullable(getCell(row, header, "gdp"))
		if err != nil {
			return nil, fmt.Errorf("row %d gdp: %w", i+2, err)
		}
		population, err := parseNullable(getCell(row, header, "population"))
		if err != nil {
			return nil, fmt.Errorf("row %d population: %w", i+2, err)
		}
		bases[strings.ToUpper(getCell(row, header, "iso3"))] = etr.Denominators{GDP: gdp, Population: population}
	}
	return bases, nil
}

func readTable(r io.Reader) (map[string]int, [][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, errors.New("dataset: empty csv")
	}
	return normalizeHeader(records[0]), records[1:], nil
}

func normalizeHeader(header []string) map[string]int {
	result := make(map[string]int, len(header))
	for i, value := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(value, "\ufeff")))
		if key == "" {
			continue
		}
		result[key] = i
	}
	return result
}

func getCell(record []string, header map[string]int, key string) string {
	index, ok := header[key]
	if !ok || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

func requireColumn(header map[string]int, key string) error {
	if _, ok := header[key]; !ok {
		return fmt.Errorf("%w: %s", ErrMissingColumn, key)
	}
	return nil
}

func firstPresent(header map[string]int, keys ...string) string {
	for _, key := range keys {
		if _, ok := header[key]; ok {
			return key
		}
	}
	return ""
}

func parseNullable(value string) (*float64, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	switch strings.ToLower(value) {
	case "", "na", "n/a", "nan", "null", "none":
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}
	return model.Num(parsed), nil
}
