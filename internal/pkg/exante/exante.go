// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package exante parses Exante trade and transaction CSV exports.
//
// Exante exports come in more than one dialect: UTF-8 or UTF-16 with a byte
// order mark, and tab, semicolon, or comma delimited. The dialect is detected
// from the byte order mark and the header row. Columns are looked up by name.
package exante

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	// SideBuy is the side of a buy trade.
	SideBuy = "buy"
	// SideSell is the side of a sell trade.
	SideSell = "sell"

	// OperationTypeDividend is a dividend payment.
	OperationTypeDividend = "DIVIDEND"
	// OperationTypeTax is a tax withheld on a dividend.
	OperationTypeTax = "TAX"
	// OperationTypeCommission is a commission charge.
	OperationTypeCommission = "COMMISSION"
	// OperationTypeInterest is an interest charge or payment.
	OperationTypeInterest = "INTEREST"
)

var (
	// TradeColumns are the columns a trades export must have.
	TradeColumns = []string{"Time", "Account ID", "Side", "Symbol ID", "Type", "Price", "Currency", "Quantity"}
	// TransactionColumns are the columns a transactions export must have.
	TransactionColumns = []string{"Account ID", "Symbol ID", "Operation type", "When", "Sum", "Asset"}

	timeLayouts = []string{
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.000",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
)

// Trade is one row of a trades export.
type Trade struct {
	Time      time.Time
	AccountID string
	// Side is SideBuy or SideSell.
	Side string
	// SymbolID is TICKER.EXCHANGE, with an option suffix for options.
	SymbolID string
	// Type is the instrument type, e.g. STOCK or OPTION.
	Type     string
	Price    string
	Currency string
	// Quantity is unsigned.
	Quantity string
	// Commission is empty if the export has no commission column.
	Commission         string
	CommissionCurrency string
}

// Transaction is one row of a transactions export.
type Transaction struct {
	TransactionID string
	AccountID     string
	SymbolID      string
	OperationType string
	When          time.Time
	// Sum is signed, in Asset.
	Sum   string
	Asset string
}

// ReadHeader returns the header row of an export.
func ReadHeader(reader io.Reader) ([]string, error) {
	csvReader, err := newCSVReader(reader)
	if err != nil {
		return nil, err
	}
	header, err := csvReader.Read()
	if err != nil {
		return nil, err
	}
	return trimFields(header), nil
}

// HasColumns returns true if header contains every column.
func HasColumns(header []string, columns []string) bool {
	for _, column := range columns {
		if !slices.Contains(header, column) {
			return false
		}
	}
	return true
}

// ParseTradesFile parses the trades export at the file path.
func ParseTradesFile(filePath string) (_ []Trade, retErr error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer func() {
		retErr = errors.Join(retErr, file.Close())
	}()
	return ParseTrades(file)
}

// ParseTrades parses a trades export.
func ParseTrades(reader io.Reader) ([]Trade, error) {
	var trades []Trade
	if err := readRows(reader, TradeColumns, func(row func(string) string) error {
		timestamp, err := parseTime(row("Time"))
		if err != nil {
			return err
		}
		trades = append(trades, Trade{
			Time:               timestamp,
			AccountID:          row("Account ID"),
			Side:               row("Side"),
			SymbolID:           row("Symbol ID"),
			Type:               row("Type"),
			Price:              row("Price"),
			Currency:           row("Currency"),
			Quantity:           row("Quantity"),
			Commission:         row("Commission"),
			CommissionCurrency: row("Commission Currency"),
		})
		return nil
	}); err != nil {
		return nil, err
	}
	return trades, nil
}

// ParseTransactionsFile parses the transactions export at the file path.
func ParseTransactionsFile(filePath string) (_ []Transaction, retErr error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer func() {
		retErr = errors.Join(retErr, file.Close())
	}()
	return ParseTransactions(file)
}

// ParseTransactions parses a transactions export.
func ParseTransactions(reader io.Reader) ([]Transaction, error) {
	var transactions []Transaction
	if err := readRows(reader, TransactionColumns, func(row func(string) string) error {
		when, err := parseTime(row("When"))
		if err != nil {
			return err
		}
		transactions = append(transactions, Transaction{
			TransactionID: row("Transaction ID"),
			AccountID:     row("Account ID"),
			SymbolID:      row("Symbol ID"),
			OperationType: row("Operation type"),
			When:          when,
			Sum:           row("Sum"),
			Asset:         row("Asset"),
		})
		return nil
	}); err != nil {
		return nil, err
	}
	return transactions, nil
}

// *** PRIVATE ***

func readRows(reader io.Reader, requiredColumns []string, f func(row func(string) string) error) error {
	csvReader, err := newCSVReader(reader)
	if err != nil {
		return err
	}
	header, err := csvReader.Read()
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	header = trimFields(header)
	for _, column := range requiredColumns {
		if !slices.Contains(header, column) {
			return fmt.Errorf("missing column %q", column)
		}
	}
	lineNumber := 1
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			return nil
		}
		lineNumber++
		if err != nil {
			return fmt.Errorf("reading CSV: %w", err)
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		row := func(column string) string {
			index := slices.Index(header, column)
			if index < 0 || index >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[index])
		}
		if err := f(row); err != nil {
			return fmt.Errorf("line %d: %w", lineNumber, err)
		}
	}
}

// newCSVReader decodes the byte order mark and detects the delimiter.
func newCSVReader(reader io.Reader) (*csv.Reader, error) {
	data, err := io.ReadAll(transform.NewReader(reader, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	if err != nil {
		return nil, fmt.Errorf("decoding CSV: %w", err)
	}
	firstLine, _, _ := bytes.Cut(data, []byte("\n"))
	csvReader := csv.NewReader(bytes.NewReader(data))
	csvReader.Comma = detectDelimiter(firstLine)
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true
	return csvReader, nil
}

// detectDelimiter returns the most frequent candidate delimiter in the line.
func detectDelimiter(line []byte) rune {
	delimiter := ','
	maxCount := 0
	for _, candidate := range []rune{'\t', ';', ','} {
		if count := bytes.Count(line, []byte(string(candidate))); count > maxCount {
			delimiter = candidate
			maxCount = count
		}
	}
	return delimiter
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

func trimFields(fields []string) []string {
	trimmed := make([]string, len(fields))
	for i, field := range fields {
		trimmed[i] = strings.TrimSpace(field)
	}
	return trimmed
}
