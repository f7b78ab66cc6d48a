// Copyright 2026 Peter Edge
//
// All rights reserved.

package taxctlrates

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bufdev/taxctl/internal/standard/xtime"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
)

const (
	// archiveDateColumn is the header of the publication date column.
	archiveDateColumn = "data"
	// archiveDateLayout is the layout of publication dates.
	archiveDateLayout = "20060102"
)

var (
	currencyColumnRegexp = regexp.MustCompile(`^(\d+)([A-Z]{3})$`)
	archiveDateRegexp    = regexp.MustCompile(`^\d{8}$`)
)

// ParseArchive parses a yearly archive in the NBP table A format.
//
// The archive is Windows-1250 encoded and semicolon-delimited. The first
// row is the header. Rows whose date cell is not a YYYYMMDD date (trailing
// descriptions, repeated headers) are skipped. Rates are divided by the
// column's unit count. If currencies is non-empty, only those columns are
// kept.
func ParseArchive(reader io.Reader, currencies []string) (Observations, error) {
	csvReader := csv.NewReader(charmap.Windows1250.NewDecoder().Reader(reader))
	csvReader.Comma = ';'
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true
	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading archive header: %w", err)
	}
	dateIndex := -1
	columns := make(map[int]archiveColumn)
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == archiveDateColumn {
			dateIndex = i
			continue
		}
		matches := currencyColumnRegexp.FindStringSubmatch(name)
		if matches == nil {
			continue
		}
		if len(currencies) > 0 && !slices.Contains(currencies, matches[2]) {
			continue
		}
		units, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil || units <= 0 {
			return nil, fmt.Errorf("invalid unit count in archive column %q", name)
		}
		columns[i] = archiveColumn{
			currency: matches[2],
			units:    decimal.NewFromInt(units),
		}
	}
	if dateIndex < 0 {
		return nil, fmt.Errorf("archive header has no %q column", archiveDateColumn)
	}
	observations := make(Observations)
	for {
		row, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive: %w", err)
		}
		if dateIndex >= len(row) {
			continue
		}
		dateValue := strings.TrimSpace(row[dateIndex])
		if !archiveDateRegexp.MatchString(dateValue) {
			continue
		}
		t, err := time.Parse(archiveDateLayout, dateValue)
		if err != nil {
			return nil, fmt.Errorf("parsing archive date %q: %w", dateValue, err)
		}
		date := xtime.TimeToDate(t)
		for i, column := range columns {
			if i >= len(row) {
				continue
			}
			value := strings.TrimSpace(row[i])
			if value == "" {
				continue
			}
			rate, err := decimal.NewFromString(strings.ReplaceAll(value, ",", "."))
			if err != nil {
				return nil, fmt.Errorf("parsing %s rate %q on %s: %w", column.currency, value, date, err)
			}
			rates, ok := observations[date]
			if !ok {
				rates = make(map[string]decimal.Decimal)
				observations[date] = rates
			}
			rates[column.currency] = rate.Div(column.units)
		}
	}
	return observations, nil
}

// FormatArchive serializes observations into the NBP table A format, with
// a unit count of one for every currency.
func FormatArchive(observations Observations) ([]byte, error) {
	currencySet := make(map[string]struct{})
	dates := make([]xtime.Date, 0, len(observations))
	for date, rates := range observations {
		dates = append(dates, date)
		for currency := range rates {
			currencySet[currency] = struct{}{}
		}
	}
	slices.SortFunc(dates, xtime.Date.Compare)
	currencies := make([]string, 0, len(currencySet))
	for currency := range currencySet {
		currencies = append(currencies, currency)
	}
	slices.Sort(currencies)

	var buffer bytes.Buffer
	csvWriter := csv.NewWriter(&buffer)
	csvWriter.Comma = ';'
	header := make([]string, 0, len(currencies)+1)
	header = append(header, archiveDateColumn)
	for _, currency := range currencies {
		header = append(header, "1"+currency)
	}
	if err := csvWriter.Write(header); err != nil {
		return nil, err
	}
	for _, date := range dates {
		row := make([]string, 0, len(currencies)+1)
		row = append(row, date.In(time.UTC).Format(archiveDateLayout))
		for _, currency := range currencies {
			rate, ok := observations[date][currency]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, strings.ReplaceAll(rate.String(), ".", ","))
		}
		if err := csvWriter.Write(row); err != nil {
			return nil, err
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return nil, err
	}
	return charmap.Windows1250.NewEncoder().Bytes(buffer.Bytes())
}

// *** PRIVATE ***

type archiveColumn struct {
	currency string
	units    decimal.Decimal
}
