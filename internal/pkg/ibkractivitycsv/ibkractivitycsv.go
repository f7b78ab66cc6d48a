// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ibkractivitycsv parses IBKR Activity Statement CSV files.
//
// An Activity Statement is many CSV tables concatenated into one file. The
// first cell of every row names its section and the second cell says what the
// row is: Header, Data, SubTotal, Total or Notes. A section may repeat its
// Header row with different columns, for example when Forex trades follow
// Stocks trades, so every Data row is read through the most recent Header of
// its section.
package ibkractivitycsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bufdev/taxctl/internal/standard/xtime"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	// AssetCategoryStocks is the asset category of stock trades.
	AssetCategoryStocks = "Stocks"
	// AssetCategoryOptions is the asset category of equity and index option trades.
	AssetCategoryOptions = "Equity and Index Options"
)

// ActivityStatement is the part of an Activity Statement needed for capital gains.
type ActivityStatement struct {
	AccountID    string
	BaseCurrency string
	// Trades are the Order rows of stock and option trades. Forex conversions
	// are left out.
	Trades           []Trade
	Dividends        []CashEntry
	WithholdingTaxes []CashEntry
	Interest         []CashEntry
	Instruments      []Instrument
}

// Trade is one order execution.
//
// Numbers are kept as text with thousands separators removed.
type Trade struct {
	AssetCategory string
	Symbol        string
	DateTime      time.Time
	Currency      string
	// Quantity is negative for sells.
	Quantity string
	Price    string
	// Commission is negative.
	Commission string
}

// CashEntry is a row of the Dividends, Withholding Tax or Interest section.
type CashEntry struct {
	Currency string
	Date     xtime.Date
	// Description of a dividend or withholding tax starts with the symbol,
	// e.g. "AAPL(US0378331005) Cash Dividend USD 0.24 per Share".
	Description string
	Amount      string
}

// Instrument is a row of the Financial Instrument Information section.
type Instrument struct {
	AssetCategory   string
	Symbol          string
	Description     string
	ListingExchange string
	Multiplier      string
}

// ParseFile parses the Activity Statement at filePath.
func ParseFile(filePath string) (_ *ActivityStatement, retErr error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer func() {
		retErr = errors.Join(retErr, file.Close())
	}()
	return Parse(file)
}

// Parse parses an Activity Statement. A leading byte order mark is ignored.
func Parse(reader io.Reader) (*ActivityStatement, error) {
	csvReader := csv.NewReader(transform.NewReader(reader, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true
	statement := &ActivityStatement{}
	headers := make(map[string]map[string]int)
	for lineNumber := 1; ; lineNumber++ {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			return statement, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading activity statement: %w", err)
		}
		if len(record) < 2 {
			continue
		}
		section, rowType := record[0], record[1]
		switch rowType {
		case "Header":
			columns := make(map[string]int, len(record)-2)
			for i, name := range record[2:] {
				// Unnamed columns are placeholders.
				if name != "" {
					columns[name] = i + 2
				}
			}
			headers[section] = columns
			continue
		case "Data":
		default:
			continue
		}
		r := row{record: record, columns: headers[section]}
		if err := statement.addRow(section, r); err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", lineNumber, section, err)
		}
	}
}

// DividendSymbol returns the symbol a dividend or withholding tax
// description refers to.
func DividendSymbol(description string) string {
	if symbol, _, ok := strings.Cut(description, "("); ok {
		return strings.TrimSpace(symbol)
	}
	symbol, _, _ := strings.Cut(description, " ")
	return symbol
}

// *** PRIVATE ***

// row is a Data row read through its section header.
type row struct {
	record  []string
	columns map[string]int
}

// get returns the named cell, or "" if the header has no such column.
func (r row) get(name string) string {
	i, ok := r.columns[name]
	if !ok || i >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[i])
}

// number returns the named cell without thousands separators.
func (r row) number(name string) string {
	return strings.ReplaceAll(r.get(name), ",", "")
}

func (s *ActivityStatement) addRow(section string, r row) error {
	switch section {
	case "Account Information":
		switch r.get("Field Name") {
		case "Account":
			s.AccountID = r.get("Field Value")
		case "Base Currency":
			s.BaseCurrency = r.get("Field Value")
		}
	case "Trades":
		return s.addTrade(r)
	case "Dividends":
		return appendCashEntry(&s.Dividends, r)
	case "Withholding Tax":
		return appendCashEntry(&s.WithholdingTaxes, r)
	case "Interest":
		return appendCashEntry(&s.Interest, r)
	case "Financial Instrument Information":
		s.Instruments = append(s.Instruments, Instrument{
			AssetCategory:   r.get("Asset Category"),
			Symbol:          r.get("Symbol"),
			Description:     r.get("Description"),
			ListingExchange: r.get("Listing Exch"),
			Multiplier:      r.get("Multiplier"),
		})
	}
	return nil
}

func (s *ActivityStatement) addTrade(r row) error {
	if r.get("DataDiscriminator") != "Order" {
		return nil
	}
	assetCategory := r.get("Asset Category")
	if assetCategory != AssetCategoryStocks && assetCategory != AssetCategoryOptions {
		return nil
	}
	symbol := r.get("Symbol")
	dateTime, err := time.Parse("2006-01-02, 15:04:05", r.get("Date/Time"))
	if err != nil {
		return fmt.Errorf("trade %s: %w", symbol, err)
	}
	s.Trades = append(s.Trades, Trade{
		AssetCategory: assetCategory,
		Symbol:        symbol,
		DateTime:      dateTime,
		Currency:      r.get("Currency"),
		Quantity:      r.number("Quantity"),
		Price:         r.number("T. Price"),
		Commission:    r.number("Comm/Fee"),
	})
	return nil
}

func appendCashEntry(entries *[]CashEntry, r row) error {
	currency := r.get("Currency")
	// Total rows carry "Total" or "Total in USD" in the currency column.
	if strings.HasPrefix(currency, "Total") {
		return nil
	}
	date, err := xtime.ParseDate(r.get("Date"))
	if err != nil {
		return err
	}
	*entries = append(*entries, CashEntry{
		Currency:    currency,
		Date:        date,
		Description: r.get("Description"),
		Amount:      r.number("Amount"),
	})
	return nil
}
