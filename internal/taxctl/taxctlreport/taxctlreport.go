// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package taxctlreport turns broker exports into ledger trades, dividends, and costs.
//
// Each supported export format has one Report. A Report detects whether a file
// is in its format and processes it: trades go to the ledger, dividends and
// costs of the tax year go straight to the taxation.
package taxctlreport

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bufdev/taxctl/internal/standard/xtime"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlsplit"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltaxation"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltrade"
	"github.com/shopspring/decimal"
)

const (
	// TypeIBFlexQuery is an IBKR Flex Query XML statement.
	TypeIBFlexQuery = "ib_flex_query"
	// TypeIBActivityCSV is an IBKR Activity Statement CSV.
	TypeIBActivityCSV = "ib_activity_csv"
	// TypeExanteTrades is an Exante trades CSV export.
	TypeExanteTrades = "exante_trades"
	// TypeExanteTransactions is an Exante transactions CSV export.
	TypeExanteTransactions = "exante_transactions"
)

var (
	// ErrUnknownReportType is returned when no Report detects a file.
	ErrUnknownReportType = errors.New("unknown report type")
	// ErrAmbiguousReportType is returned when more than one Report detects a file.
	ErrAmbiguousReportType = errors.New("ambiguous report type")
)

// Ledger receives normalized trades.
type Ledger interface {
	AddRecord(record *taxctltrade.TradeRecord)
}

// Report is one broker export format.
type Report interface {
	// Type returns the report type name.
	Type() string
	// Detect returns true if the file is in this report's format.
	//
	// An error is returned only if the file cannot be read.
	Detect(filePath string) (bool, error)
	// Process adds the file's trades to the ledger, and its dividends and
	// costs within the taxation's tax year to the taxation.
	Process(ledger Ledger, taxation taxctltaxation.Taxation, filePath string) error
}

// Params configure the Reports.
type Params struct {
	// ExchangeCountries maps exchanges to countries. If nil, the default table is used.
	ExchangeCountries taxctltrade.ExchangeCountries
	// SplitAdjuster normalizes trades across stock splits. If nil, no splits are applied.
	SplitAdjuster *taxctlsplit.Adjuster
	// DividendCorrectionThreshold is the absolute gross amount below which a
	// dividend accrual is treated as a correction and skipped.
	DividendCorrectionThreshold decimal.Decimal
}

// NewReports returns all Reports.
func NewReports(logger *slog.Logger, params Params) ([]Report, error) {
	if params.ExchangeCountries == nil {
		params.ExchangeCountries = taxctltrade.DefaultExchangeCountries
	}
	if params.SplitAdjuster == nil {
		splitAdjuster, err := taxctlsplit.NewAdjuster(logger, nil)
		if err != nil {
			return nil, err
		}
		params.SplitAdjuster = splitAdjuster
	}
	return []Report{
		newIBFlexQueryReport(logger, params),
		newIBActivityCSVReport(logger, params),
		newExanteTradesReport(logger, params),
		newExanteTransactionsReport(logger, params),
	}, nil
}

// Types returns the type names of the Reports.
func Types(reports []Report) []string {
	types := make([]string, 0, len(reports))
	for _, report := range reports {
		types = append(types, report.Type())
	}
	return types
}

// Get returns the Report of the given type.
func Get(reports []Report, reportType string) (Report, error) {
	for _, report := range reports {
		if report.Type() == reportType {
			return report, nil
		}
	}
	return nil, fmt.Errorf("%w %q, expected one of %v", ErrUnknownReportType, reportType, Types(reports))
}

// Sniff returns the one Report that detects the file.
func Sniff(reports []Report, filePath string) (Report, error) {
	var detected []Report
	for _, report := range reports {
		ok, err := report.Detect(filePath)
		if err != nil {
			return nil, err
		}
		if ok {
			detected = append(detected, report)
		}
	}
	switch len(detected) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrUnknownReportType, filePath)
	case 1:
		return detected[0], nil
	default:
		return nil, fmt.Errorf("%w: %s matches %s", ErrAmbiguousReportType, filePath, strings.Join(Types(detected), ", "))
	}
}

// *** PRIVATE ***

// tradeParams holds the raw fields every adapter extracts from a trade row.
type tradeParams struct {
	symbol         string
	exchange       string
	account        string
	quantity       string
	price          string
	currency       string
	timestamp      time.Time
	side           taxctltrade.Side
	instrumentType taxctltrade.InstrumentType
	commission     string
}

// newTradeRecord parses the numeric fields, applies splits, and builds the record.
func newTradeRecord(params Params, tradeParams tradeParams) (*taxctltrade.TradeRecord, error) {
	quantity, err := parseQuantity(tradeParams.quantity)
	if err != nil {
		return nil, fmt.Errorf("trade %s: %w", tradeParams.symbol, err)
	}
	price, err := decimal.NewFromString(tradeParams.price)
	if err != nil {
		return nil, fmt.Errorf("trade %s: invalid price %q: %w", tradeParams.symbol, tradeParams.price, err)
	}
	commission := decimal.Zero
	if tradeParams.commission != "" {
		commission, err = decimal.NewFromString(tradeParams.commission)
		if err != nil {
			return nil, fmt.Errorf("trade %s: invalid commission %q: %w", tradeParams.symbol, tradeParams.commission, err)
		}
	}
	quantity, price, err = params.SplitAdjuster.Adjust(tradeParams.symbol, xtime.TimeToDate(tradeParams.timestamp), quantity, price)
	if err != nil {
		return nil, err
	}
	return taxctltrade.NewTradeRecord(params.ExchangeCountries, taxctltrade.TradeRecordParams{
		Symbol:         tradeParams.symbol,
		Exchange:       tradeParams.exchange,
		Account:        tradeParams.account,
		Quantity:       quantity,
		Price:          price,
		Currency:       tradeParams.currency,
		Timestamp:      tradeParams.timestamp,
		Side:           tradeParams.side,
		InstrumentType: tradeParams.instrumentType,
		Commission:     commission.Abs(),
	})
}

// parseQuantity parses an unsigned whole quantity. The sign is dropped.
func parseQuantity(s string) (int64, error) {
	quantity, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	if !quantity.IsInteger() {
		return 0, fmt.Errorf("fractional quantity %s is not supported", s)
	}
	return quantity.Abs().IntPart(), nil
}

// addDividendOrCost records a dividend, or a cost if the gross amount is not
// positive. A negative dividend is a payment in lieu on a short position.
func addDividendOrCost(taxation taxctltaxation.Taxation, dividend taxctltaxation.Dividend) error {
	if dividend.Value.IsPositive() {
		return taxation.AddDividend(dividend)
	}
	return taxation.AddCost(dividend.Currency, dividend.Value.Abs(), dividend.Date)
}

// dividendKey identifies one dividend payment for pairing and deduplication.
type dividendKey struct {
	symbol  string
	account string
	date    xtime.Date
}

// dividendAccumulator pairs dividends with their withholding tax in
// first-seen order.
type dividendAccumulator struct {
	// correctionThreshold is the absolute gross amount below which a
	// dividend is a correction entry.
	correctionThreshold decimal.Decimal
	keys                []dividendKey
	dividends           map[dividendKey]*dividendEntry
}

type dividendEntry struct {
	currency       string
	value          decimal.Decimal
	hasValue       bool
	withholdingTax decimal.Decimal
}

func newDividendAccumulator(correctionThreshold decimal.Decimal) *dividendAccumulator {
	return &dividendAccumulator{
		correctionThreshold: correctionThreshold,
		dividends:           make(map[dividendKey]*dividendEntry),
	}
}

func (d *dividendAccumulator) entry(key dividendKey) *dividendEntry {
	entry, ok := d.dividends[key]
	if !ok {
		entry = &dividendEntry{}
		d.dividends[key] = entry
		d.keys = append(d.keys, key)
	}
	return entry
}

func (d *dividendAccumulator) addValue(key dividendKey, currency string, value decimal.Decimal) {
	entry := d.entry(key)
	entry.currency = currency
	entry.value = entry.value.Add(value)
	entry.hasValue = true
}

func (d *dividendAccumulator) addWithholdingTax(key dividendKey, value decimal.Decimal) {
	entry := d.entry(key)
	entry.withholdingTax = entry.withholdingTax.Add(value)
}

// flush records every accumulated dividend. Withholding tax without a
// matching dividend, and dividends below the correction threshold, are
// logged and dropped.
func (d *dividendAccumulator) flush(logger *slog.Logger, taxation taxctltaxation.Taxation) error {
	for _, key := range d.keys {
		entry := d.dividends[key]
		if !entry.hasValue {
			logger.Warn("withholding tax without dividend, skipping", "symbol", key.symbol, "date", key.date.String(), "tax", entry.withholdingTax.String())
			continue
		}
		if entry.value.Abs().LessThan(d.correctionThreshold) {
			logger.Info("dividend correction below threshold, skipping", "symbol", key.symbol, "date", key.date.String(), "value", entry.value.String())
			continue
		}
		if err := addDividendOrCost(taxation, taxctltaxation.Dividend{
			Symbol:         key.symbol,
			Currency:       entry.currency,
			Value:          entry.value,
			Date:           key.date,
			WithholdingTax: entry.withholdingTax,
		}); err != nil {
			return err
		}
	}
	return nil
}

// addInterest records debit interest as a cost. Credit interest is income
// outside of capital gains and is logged and skipped.
func addInterest(logger *slog.Logger, taxation taxctltaxation.Taxation, currency string, value decimal.Decimal, date xtime.Date) error {
	if !value.IsNegative() {
		logger.Info("credit interest, skipping", "currency", currency, "value", value.String(), "date", date.String())
		return nil
	}
	return taxation.AddCost(currency, value, date)
}

// ibAccount normalizes an IBKR account id to its last five characters.
// Accounts migrated from Lynx keep only these characters across the move.
func ibAccount(accountID string) string {
	if len(accountID) > 5 {
		accountID = accountID[len(accountID)-5:]
	}
	return "IB" + accountID
}
