// Copyright 2026 Peter Edge
//
// All rights reserved.

package taxctlreport

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/bufdev/taxctl/internal/standard/xtime"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlsplit"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltaxation"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltrade"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSniff(t *testing.T) {
	t.Parallel()
	reports := newTestReports(t)
	for fileName, expectedType := range map[string]string{
		"flex.xml":                TypeIBFlexQuery,
		"activity.csv":            TypeIBActivityCSV,
		"exante_trades.csv":       TypeExanteTrades,
		"exante_transactions.csv": TypeExanteTransactions,
	} {
		report, err := Sniff(reports, testdataPath(fileName))
		require.NoError(t, err, fileName)
		require.Equal(t, expectedType, report.Type(), fileName)
	}
	_, err := Sniff(reports, testdataPath("unknown.csv"))
	require.ErrorIs(t, err, ErrUnknownReportType)
	_, err = Sniff(reports, testdataPath("ambiguous.csv"))
	require.ErrorIs(t, err, ErrAmbiguousReportType)
	_, err = Sniff(reports, testdataPath("missing.csv"))
	require.Error(t, err)
}

func TestGet(t *testing.T) {
	t.Parallel()
	reports := newTestReports(t)
	report, err := Get(reports, TypeExanteTrades)
	require.NoError(t, err)
	require.Equal(t, TypeExanteTrades, report.Type())
	_, err = Get(reports, "degiro")
	require.ErrorIs(t, err, ErrUnknownReportType)
	require.Equal(
		t,
		[]string{TypeIBFlexQuery, TypeIBActivityCSV, TypeExanteTrades, TypeExanteTransactions},
		Types(reports),
	)
}

func TestIBFlexQuery(t *testing.T) {
	t.Parallel()
	ledger, taxation := processTestReport(t, TypeIBFlexQuery, "flex.xml")
	require.Empty(
		t,
		cmp.Diff(
			[]tradeRow{
				{symbol: "AAPL", account: "IB34567", country: "US", side: taxctltrade.SideBuy, quantity: 10, price: "130.5", commission: "1"},
				{symbol: "AAPL", account: "IB34567", country: "US", side: taxctltrade.SideSell, quantity: 10, price: "150", commission: "1.2"},
			},
			ledger.rows(),
			cmp.AllowUnexported(tradeRow{}),
		),
	)
	require.Empty(
		t,
		cmp.Diff(
			[]costRow{
				{currency: "USD", value: "-0.35", date: "2023-02-10"},
				{currency: "PLN", value: "-21.4", date: "2023-12-31"},
			},
			taxation.costs,
			cmp.AllowUnexported(costRow{}),
		),
	)
	// The reversal is skipped.
	require.Empty(
		t,
		cmp.Diff(
			[]dividendRow{
				{symbol: "AAPL", currency: "USD", value: "2.3", date: "2023-02-16", withholdingTax: "-0.35"},
			},
			taxation.dividends,
			cmp.AllowUnexported(dividendRow{}),
		),
	)
}

func TestIBActivityCSV(t *testing.T) {
	t.Parallel()
	ledger, taxation := processTestReport(t, TypeIBActivityCSV, "activity.csv")
	require.Empty(
		t,
		cmp.Diff(
			[]tradeRow{
				{symbol: "AAPL", account: "IB54321", country: "US", side: taxctltrade.SideBuy, quantity: 100, price: "125.07", commission: "1"},
				{symbol: "AAPL", account: "IB54321", country: "US", side: taxctltrade.SideSell, quantity: 40, price: "147.92", commission: "1"},
				{symbol: "SAP", account: "IB54321", country: "DE", side: taxctltrade.SideBuy, quantity: 1200, price: "110.5", commission: "5"},
				{symbol: "SPY 20230317 400 C", account: "IB54321", country: "US", side: taxctltrade.SideSell, quantity: 2, price: "3.1", commission: "1.3", option: true},
			},
			ledger.rows(),
			cmp.AllowUnexported(tradeRow{}),
		),
	)
	// The KO adjustment is below the correction threshold.
	require.Empty(
		t,
		cmp.Diff(
			[]dividendRow{
				{symbol: "AAPL", currency: "USD", value: "23", date: "2023-02-16", withholdingTax: "-3.45"},
				{symbol: "SAP", currency: "EUR", value: "2460", date: "2023-05-17", withholdingTax: "0"},
			},
			taxation.dividends,
			cmp.AllowUnexported(dividendRow{}),
		),
	)
	// Credit interest is not a cost.
	require.Empty(
		t,
		cmp.Diff(
			[]costRow{
				{currency: "USD", value: "-4.12", date: "2023-03-03"},
			},
			taxation.costs,
			cmp.AllowUnexported(costRow{}),
		),
	)
}

func TestExanteTrades(t *testing.T) {
	t.Parallel()
	ledger, taxation := processTestReport(t, TypeExanteTrades, "exante_trades.csv")
	// Forex conversions are skipped and commissions come from transactions.
	require.Empty(
		t,
		cmp.Diff(
			[]tradeRow{
				{symbol: "AAPL.NASDAQ", account: "ABC1234.001", country: "US", side: taxctltrade.SideBuy, quantity: 10, price: "130.5", commission: "0"},
				{symbol: "AAPL.NASDAQ", account: "ABC1234.001", country: "US", side: taxctltrade.SideSell, quantity: 10, price: "150", commission: "0"},
			},
			ledger.rows(),
			cmp.AllowUnexported(tradeRow{}),
		),
	)
	require.Empty(t, taxation.costs)
	require.Empty(t, taxation.dividends)
}

func TestExanteTransactions(t *testing.T) {
	t.Parallel()
	ledger, taxation := processTestReport(t, TypeExanteTransactions, "exante_transactions.csv")
	require.Empty(t, ledger.records)
	require.Empty(
		t,
		cmp.Diff(
			[]dividendRow{
				{symbol: "AAPL.NASDAQ", currency: "USD", value: "2.3", date: "2023-02-16", withholdingTax: "-0.35"},
			},
			taxation.dividends,
			cmp.AllowUnexported(dividendRow{}),
		),
	)
	// Interest of 2022 is outside of the tax year.
	require.Empty(
		t,
		cmp.Diff(
			[]costRow{
				{currency: "USD", value: "-0.2", date: "2023-02-10"},
				{currency: "EUR", value: "-1.5", date: "2023-03-31"},
			},
			taxation.costs,
			cmp.AllowUnexported(costRow{}),
		),
	)
}

func TestDividendAccumulator(t *testing.T) {
	t.Parallel()
	taxation := newFakeTaxation(2023)
	dividends := newDividendAccumulator(decimal.RequireFromString("0.01"))
	date := xtime.Date{Year: 2023, Month: 3, Day: 1}
	// A correction entry below the threshold.
	dividends.addValue(dividendKey{symbol: "FIX", date: date}, "USD", decimal.RequireFromString("0.004"))
	dividends.addWithholdingTax(dividendKey{symbol: "ORPHAN", date: date}, decimal.RequireFromString("-1"))
	dividends.addValue(dividendKey{symbol: "KO", date: date}, "USD", decimal.RequireFromString("5"))
	dividends.addValue(dividendKey{symbol: "KO", date: date}, "USD", decimal.RequireFromString("5"))
	dividends.addWithholdingTax(dividendKey{symbol: "KO", date: date}, decimal.RequireFromString("-1.5"))
	// Payment in lieu of a dividend on a short position.
	dividends.addValue(dividendKey{symbol: "T", date: date}, "USD", decimal.RequireFromString("-2"))
	require.NoError(t, dividends.flush(slog.New(slog.DiscardHandler), taxation))
	require.Empty(
		t,
		cmp.Diff(
			[]dividendRow{
				{symbol: "KO", currency: "USD", value: "10", date: "2023-03-01", withholdingTax: "-1.5"},
			},
			taxation.dividends,
			cmp.AllowUnexported(dividendRow{}),
		),
	)
	require.Empty(
		t,
		cmp.Diff(
			[]costRow{
				{currency: "USD", value: "2", date: "2023-03-01"},
			},
			taxation.costs,
			cmp.AllowUnexported(costRow{}),
		),
	)
}

func TestNewTradeRecordSplit(t *testing.T) {
	t.Parallel()
	splitAdjuster, err := taxctlsplit.NewAdjuster(
		slog.New(slog.DiscardHandler),
		[]taxctlsplit.Split{
			{Symbol: "NVDA", Date: xtime.Date{Year: 2024, Month: time.June, Day: 7}, From: 10, To: 1},
		},
	)
	require.NoError(t, err)
	params := Params{
		ExchangeCountries: taxctltrade.DefaultExchangeCountries,
		SplitAdjuster:     splitAdjuster,
	}
	trade := tradeParams{
		symbol:         "NVDA",
		exchange:       "NASDAQ",
		account:        "IB54321",
		quantity:       "5",
		price:          "1200",
		currency:       "USD",
		timestamp:      time.Date(2024, time.June, 10, 15, 0, 0, 0, time.UTC),
		side:           taxctltrade.SideSell,
		instrumentType: taxctltrade.InstrumentTypeStock,
		commission:     "-1",
	}
	// Trades before the split are left alone.
	beforeSplit := trade
	beforeSplit.timestamp = time.Date(2024, time.June, 3, 15, 0, 0, 0, time.UTC)
	record, err := newTradeRecord(params, beforeSplit)
	require.NoError(t, err)
	require.Equal(t, int64(5), record.Quantity())
	require.True(t, decimal.RequireFromString("1200").Equal(record.Price()))
	// Trades after the split are converted to pre-split units.
	record, err = newTradeRecord(params, trade)
	require.NoError(t, err)
	require.Equal(t, int64(50), record.Quantity())
	require.True(t, decimal.RequireFromString("120").Equal(record.Price()))
	require.True(t, decimal.RequireFromString("1").Equal(record.Commission()))
	require.Equal(t, "US", record.Country())
}

func TestParseQuantity(t *testing.T) {
	t.Parallel()
	quantity, err := parseQuantity("-40")
	require.NoError(t, err)
	require.Equal(t, int64(40), quantity)
	_, err = parseQuantity("1.5")
	require.Error(t, err)
	_, err = parseQuantity("abc")
	require.Error(t, err)
}

func TestIBAccount(t *testing.T) {
	t.Parallel()
	require.Equal(t, "IB54321", ibAccount("U7654321"))
	require.Equal(t, "IB54321", ibAccount("LX54321"))
	require.Equal(t, "IB123", ibAccount("123"))
}

func TestExanteExchange(t *testing.T) {
	t.Parallel()
	require.Equal(t, "NASDAQ", exanteExchange("AAPL.NASDAQ"))
	require.Equal(t, "CBOE", exanteExchange("SPY.CBOE.17M2023.C400"))
	require.Equal(t, "", exanteExchange("AAPL"))
}

type tradeRow struct {
	symbol     string
	account    string
	country    string
	side       taxctltrade.Side
	quantity   int64
	price      string
	commission string
	option     bool
}

type dividendRow struct {
	symbol         string
	currency       string
	value          string
	date           string
	withholdingTax string
}

type costRow struct {
	currency string
	value    string
	date     string
}

type fakeLedger struct {
	records []*taxctltrade.TradeRecord
}

func (l *fakeLedger) AddRecord(record *taxctltrade.TradeRecord) {
	l.records = append(l.records, record)
}

func (l *fakeLedger) rows() []tradeRow {
	rows := make([]tradeRow, 0, len(l.records))
	for _, record := range l.records {
		rows = append(rows, tradeRow{
			symbol:     record.Symbol(),
			account:    record.Account(),
			country:    record.Country(),
			side:       record.Side(),
			quantity:   record.Quantity(),
			price:      record.Price().String(),
			commission: record.Commission().String(),
			option:     record.InstrumentType() == taxctltrade.InstrumentTypeOption,
		})
	}
	return rows
}

// fakeTaxation records what reports add to it.
type fakeTaxation struct {
	taxYear   int
	dividends []dividendRow
	costs     []costRow
}

func newFakeTaxation(taxYear int) *fakeTaxation {
	return &fakeTaxation{
		taxYear: taxYear,
	}
}

func (f *fakeTaxation) Method() string       { return "fake" }
func (f *fakeTaxation) TaxYear() int         { return f.taxYear }
func (f *fakeTaxation) BaseCurrency() string { return "PLN" }

func (f *fakeTaxation) Exchange(_ string, amount decimal.Decimal, _ xtime.Date) (decimal.Decimal, error) {
	return amount, nil
}

func (f *fakeTaxation) AddClosedTransaction(*taxctltrade.TradeRecord, *taxctltrade.TradeRecord) error {
	return nil
}

func (f *fakeTaxation) AddDividend(dividend taxctltaxation.Dividend) error {
	f.dividends = append(f.dividends, dividendRow{
		symbol:         dividend.Symbol,
		currency:       dividend.Currency,
		value:          dividend.Value.String(),
		date:           dividend.Date.String(),
		withholdingTax: dividend.WithholdingTax.String(),
	})
	return nil
}

func (f *fakeTaxation) AddCost(currency string, value decimal.Decimal, date xtime.Date) error {
	f.costs = append(f.costs, costRow{
		currency: currency,
		value:    value.String(),
		date:     date.String(),
	})
	return nil
}

func (f *fakeTaxation) Summary() *taxctltaxation.Summary {
	return &taxctltaxation.Summary{}
}

func processTestReport(t *testing.T, reportType string, fileName string) (*fakeLedger, *fakeTaxation) {
	report, err := Get(newTestReports(t), reportType)
	require.NoError(t, err)
	ledger := &fakeLedger{}
	taxation := newFakeTaxation(2023)
	require.NoError(t, report.Process(ledger, taxation, testdataPath(fileName)))
	return ledger, taxation
}

func newTestReports(t *testing.T) []Report {
	reports, err := NewReports(
		slog.New(slog.DiscardHandler),
		Params{
			DividendCorrectionThreshold: decimal.RequireFromString("0.01"),
		},
	)
	require.NoError(t, err)
	return reports
}

func testdataPath(fileName string) string {
	return filepath.Join("testdata", fileName)
}
