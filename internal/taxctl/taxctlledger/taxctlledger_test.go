// Copyright 2026 Peter Edge
//
// All rights reserved.

package taxctlledger

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/bufdev/taxctl/internal/taxctl/taxctltrade"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFullMatch(t *testing.T) {
	t.Parallel()
	taxation := &recordingTaxation{}
	ledger := NewLedger(slog.New(slog.DiscardHandler), taxation)
	ledger.AddRecord(newTrade(t, "ACC", "AAPL", taxctltrade.SideBuy, 100, "10.00", day(2023, 1, 10)))
	ledger.AddRecord(newTrade(t, "ACC", "AAPL", taxctltrade.SideSell, 100, "12.00", day(2023, 2, 10)))
	require.NoError(t, ledger.CalculateClosedPositions(2023))
	require.Equal(
		t,
		[]match{{open: "BUY 100 2023-01-10", close: "SELL 100 2023-02-10", quantity: 100}},
		taxation.matches(),
	)
	require.Empty(t, ledger.OutstandingPositions())
}

func TestTieBreakBuyOpens(t *testing.T) {
	t.Parallel()
	taxation := &recordingTaxation{}
	ledger := NewLedger(slog.New(slog.DiscardHandler), taxation)
	// The sell is inserted first to show that insertion order does not decide.
	ledger.AddRecord(newTrade(t, "ACC", "MSFT", taxctltrade.SideSell, 5, "300", day(2023, 6, 1)))
	ledger.AddRecord(newTrade(t, "ACC", "MSFT", taxctltrade.SideBuy, 5, "299", day(2023, 6, 1)))
	require.NoError(t, ledger.CalculateClosedPositions(2023))
	require.Len(t, taxation.calls, 1)
	require.Equal(t, taxctltrade.SideBuy, taxation.calls[0].open.Side())
	require.Equal(t, taxctltrade.SideSell, taxation.calls[0].close.Side())
}

func TestPartialShortCover(t *testing.T) {
	t.Parallel()
	taxation := &recordingTaxation{}
	ledger := NewLedger(slog.New(slog.DiscardHandler), taxation)
	ledger.AddRecord(newTrade(t, "ACC", "TSLA", taxctltrade.SideSell, 50, "20.00", day(2023, 3, 1)))
	ledger.AddRecord(newTrade(t, "ACC", "TSLA", taxctltrade.SideBuy, 30, "18.00", day(2023, 3, 15)))
	require.NoError(t, ledger.CalculateClosedPositions(2023))
	require.Equal(
		t,
		[]match{{open: "SELL 50 2023-03-01", close: "BUY 30 2023-03-15", quantity: 30}},
		taxation.matches(),
	)
	outstanding := ledger.OutstandingPositions()
	require.Len(t, outstanding, 1)
	require.Equal(t, int64(-20), outstanding[0].SignedQuantity())
	require.Equal(t, day(2023, 3, 1), outstanding[0].Timestamp())
}

func TestReversal(t *testing.T) {
	t.Parallel()
	taxation := &recordingTaxation{}
	ledger := NewLedger(slog.New(slog.DiscardHandler), taxation)
	ledger.AddRecord(newTrade(t, "ACC", "NVDA", taxctltrade.SideBuy, 10, "100", day(2023, 1, 2)))
	ledger.AddRecord(newTrade(t, "ACC", "NVDA", taxctltrade.SideSell, 25, "110", day(2023, 1, 3)))
	ledger.AddRecord(newTrade(t, "ACC", "NVDA", taxctltrade.SideBuy, 5, "90", day(2023, 1, 4)))
	require.NoError(t, ledger.CalculateClosedPositions(2023))
	// The excess 15 of the sell becomes a short that the later buy partially covers.
	require.Equal(
		t,
		[]match{
			{open: "BUY 10 2023-01-02", close: "SELL 25 2023-01-03", quantity: 10},
			{open: "SELL 15 2023-01-03", close: "BUY 5 2023-01-04", quantity: 5},
		},
		taxation.matches(),
	)
	outstanding := ledger.OutstandingPositions()
	require.Len(t, outstanding, 1)
	require.Equal(t, int64(-10), outstanding[0].SignedQuantity())
}

func TestCrossYearCarryForward(t *testing.T) {
	t.Parallel()
	taxation := &recordingTaxation{}
	ledger := NewLedger(slog.New(slog.DiscardHandler), taxation)
	ledger.AddRecord(newTrade(t, "ACC", "SAP", taxctltrade.SideBuy, 100, "100", day(2022, 5, 1)))
	ledger.AddRecord(newTrade(t, "ACC", "SAP", taxctltrade.SideSell, 40, "110", day(2022, 9, 1)))
	ledger.AddRecord(newTrade(t, "ACC", "SAP", taxctltrade.SideSell, 30, "120", day(2023, 2, 1)))

	require.NoError(t, ledger.CalculateClosedPositions(2022))
	require.Equal(
		t,
		[]match{{open: "BUY 100 2022-05-01", close: "SELL 40 2022-09-01", quantity: 40}},
		taxation.matches(),
	)
	require.Len(t, ledger.OutstandingPositions(), 1)
	require.Equal(t, int64(30), ledger.OutstandingPositions()[0].SignedQuantity())

	taxation.calls = nil
	require.NoError(t, ledger.CalculateClosedPositions(2023))
	// Only the 2023 closing leg is reported; the 2022 match is consumed silently.
	require.Equal(
		t,
		[]match{{open: "BUY 60 2022-05-01", close: "SELL 30 2023-02-01", quantity: 30}},
		taxation.matches(),
	)
	outstanding := ledger.OutstandingPositions()
	require.Len(t, outstanding, 1)
	require.Equal(t, int64(30), outstanding[0].SignedQuantity())
	require.Equal(t, day(2022, 5, 1), outstanding[0].Timestamp())
}

func TestRerunIsIdempotent(t *testing.T) {
	t.Parallel()
	taxation := &recordingTaxation{}
	ledger := NewLedger(slog.New(slog.DiscardHandler), taxation)
	ledger.AddRecord(newTrade(t, "ACC", "KO", taxctltrade.SideBuy, 10, "60", day(2023, 1, 2)))
	ledger.AddRecord(newTrade(t, "ACC", "KO", taxctltrade.SideSell, 4, "61", day(2023, 1, 3)))
	require.NoError(t, ledger.CalculateClosedPositions(2023))
	first := taxation.matches()
	firstOutstanding := ledger.OutstandingPositions()
	taxation.calls = nil
	require.NoError(t, ledger.CalculateClosedPositions(2023))
	require.Equal(t, first, taxation.matches())
	require.Equal(t, len(firstOutstanding), len(ledger.OutstandingPositions()))
	require.Equal(t, firstOutstanding[0].Quantity(), ledger.OutstandingPositions()[0].Quantity())
}

func TestGroupsOutsideTaxYearNotTaxed(t *testing.T) {
	t.Parallel()
	taxation := &recordingTaxation{}
	ledger := NewLedger(slog.New(slog.DiscardHandler), taxation)
	ledger.AddRecord(newTrade(t, "ACC", "OLD", taxctltrade.SideBuy, 10, "1", day(2021, 1, 2)))
	ledger.AddRecord(newTrade(t, "ACC", "OLD", taxctltrade.SideSell, 10, "2", day(2021, 1, 3)))
	ledger.AddRecord(newTrade(t, "ACC", "NEW", taxctltrade.SideBuy, 10, "1", day(2024, 1, 2)))
	require.NoError(t, ledger.CalculateClosedPositions(2023))
	require.Empty(t, taxation.calls)
	// The later lot is still open at the end of the data.
	outstanding := ledger.OutstandingPositions()
	require.Len(t, outstanding, 1)
	require.Equal(t, "NEW", outstanding[0].Symbol())
}

func TestHeldLotFromEarlierYearIsOutstanding(t *testing.T) {
	t.Parallel()
	taxation := &recordingTaxation{}
	ledger := NewLedger(slog.New(slog.DiscardHandler), taxation)
	ledger.AddRecord(newTrade(t, "ACC", "HELD", taxctltrade.SideBuy, 50, "10", day(2022, 3, 1)))
	ledger.AddRecord(newTrade(t, "ACC", "AAPL", taxctltrade.SideBuy, 10, "10", day(2023, 3, 1)))
	require.NoError(t, ledger.CalculateClosedPositions(2023))
	require.Empty(t, taxation.calls)
	quantities := make(map[string]int64)
	for _, record := range ledger.OutstandingPositions() {
		quantities[record.Symbol()] += record.SignedQuantity()
	}
	require.Equal(t, map[string]int64{"AAPL": 10, "HELD": 50}, quantities)
}

func TestPartialMatchesKeepCommission(t *testing.T) {
	t.Parallel()
	taxation := &recordingTaxation{}
	ledger := NewLedger(slog.New(slog.DiscardHandler), taxation)
	buy, err := taxctltrade.NewTradeRecord(nil, taxctltrade.TradeRecordParams{
		Symbol:         "A",
		Exchange:       "NASDAQ",
		Account:        "ACC",
		Quantity:       100,
		Price:          decimal.RequireFromString("10"),
		Currency:       "USD",
		Timestamp:      day(2023, 1, 2),
		Side:           taxctltrade.SideBuy,
		InstrumentType: taxctltrade.InstrumentTypeStock,
		Commission:     decimal.RequireFromString("10"),
	})
	require.NoError(t, err)
	ledger.AddRecord(buy)
	ledger.AddRecord(newTrade(t, "ACC", "A", taxctltrade.SideSell, 40, "11", day(2023, 1, 3)))
	ledger.AddRecord(newTrade(t, "ACC", "A", taxctltrade.SideSell, 60, "12", day(2023, 1, 4)))
	require.NoError(t, ledger.CalculateClosedPositions(2023))
	require.Equal(
		t,
		[]match{
			{open: "BUY 100 2023-01-02", close: "SELL 40 2023-01-03", quantity: 40},
			{open: "BUY 60 2023-01-02", close: "SELL 60 2023-01-04", quantity: 60},
		},
		taxation.matches(),
	)
	// The remainder of the buy carries the commission of the execution.
	for _, call := range taxation.calls {
		require.True(t, decimal.RequireFromString("10").Equal(call.open.Commission()), "got %s", call.open.Commission())
	}
	require.Empty(t, ledger.OutstandingPositions())
}

func TestAccountsDoNotNet(t *testing.T) {
	t.Parallel()
	taxation := &recordingTaxation{}
	ledger := NewLedger(slog.New(slog.DiscardHandler), taxation)
	ledger.AddRecord(newTrade(t, "ACC1", "AAPL", taxctltrade.SideBuy, 10, "100", day(2023, 1, 2)))
	ledger.AddRecord(newTrade(t, "ACC2", "AAPL", taxctltrade.SideSell, 10, "100", day(2023, 1, 3)))
	require.NoError(t, ledger.CalculateClosedPositions(2023))
	require.Empty(t, taxation.calls)
	outstanding := ledger.OutstandingPositions()
	require.Len(t, outstanding, 2)
	require.Equal(t, "ACC1", outstanding[0].Account())
	require.Equal(t, "ACC2", outstanding[1].Account())
	require.Equal(
		t,
		[]taxctltrade.MatchingKey{{Account: "ACC1", Symbol: "AAPL"}, {Account: "ACC2", Symbol: "AAPL"}},
		ledger.Keys(),
	)
}

func TestQuantityConservation(t *testing.T) {
	t.Parallel()
	taxation := &recordingTaxation{}
	ledger := NewLedger(slog.New(slog.DiscardHandler), taxation)
	sides := []taxctltrade.Side{
		taxctltrade.SideBuy, taxctltrade.SideBuy, taxctltrade.SideSell, taxctltrade.SideSell,
		taxctltrade.SideSell, taxctltrade.SideBuy, taxctltrade.SideSell, taxctltrade.SideBuy,
		taxctltrade.SideBuy, taxctltrade.SideSell,
	}
	quantities := []int64{7, 3, 12, 1, 9, 4, 2, 20, 5, 6}
	var inputBuys, inputSells int64
	for i, side := range sides {
		ledger.AddRecord(newTrade(t, "ACC", "X", side, quantities[i], "10", day(2023, 1, 1+i)))
		if side == taxctltrade.SideBuy {
			inputBuys += quantities[i]
		} else {
			inputSells += quantities[i]
		}
	}
	require.NoError(t, ledger.CalculateClosedPositions(2023))
	var closed int64
	for _, call := range taxation.calls {
		closed += min(call.open.Quantity(), call.close.Quantity())
	}
	var outstandingBuys, outstandingSells int64
	var sawBuy, sawSell bool
	for _, record := range ledger.OutstandingPositions() {
		if record.Side() == taxctltrade.SideBuy {
			outstandingBuys += record.Quantity()
			sawBuy = true
		} else {
			outstandingSells += record.Quantity()
			sawSell = true
		}
	}
	require.False(t, sawBuy && sawSell, "long and short residue at once")
	require.Equal(t, inputBuys, closed+outstandingBuys)
	require.Equal(t, inputSells, closed+outstandingSells)
}

func TestTaxationErrorPropagates(t *testing.T) {
	t.Parallel()
	errBoom := errors.New("boom")
	ledger := NewLedger(slog.New(slog.DiscardHandler), &recordingTaxation{err: errBoom})
	ledger.AddRecord(newTrade(t, "ACC", "AAPL", taxctltrade.SideBuy, 1, "1", day(2023, 1, 2)))
	ledger.AddRecord(newTrade(t, "ACC", "AAPL", taxctltrade.SideSell, 1, "2", day(2023, 1, 3)))
	require.ErrorIs(t, ledger.CalculateClosedPositions(2023), errBoom)
}

func TestEarliestYear(t *testing.T) {
	t.Parallel()
	ledger := NewLedger(slog.New(slog.DiscardHandler), &recordingTaxation{})
	_, ok := ledger.EarliestYear()
	require.False(t, ok)
	ledger.AddRecord(newTrade(t, "ACC", "A", taxctltrade.SideBuy, 1, "1", day(2023, 1, 2)))
	ledger.AddRecord(newTrade(t, "ACC", "B", taxctltrade.SideBuy, 1, "1", day(2020, 7, 2)))
	year, ok := ledger.EarliestYear()
	require.True(t, ok)
	require.Equal(t, 2020, year)
	require.Equal(t, 2, ledger.Len())
}

func TestRecordsAreNotModified(t *testing.T) {
	t.Parallel()
	ledger := NewLedger(slog.New(slog.DiscardHandler), &recordingTaxation{})
	buy := newTrade(t, "ACC", "A", taxctltrade.SideBuy, 10, "1", day(2023, 1, 2))
	sell := newTrade(t, "ACC", "A", taxctltrade.SideSell, 3, "1", day(2023, 1, 3))
	ledger.AddRecord(sell)
	ledger.AddRecord(buy)
	require.NoError(t, ledger.CalculateClosedPositions(2023))
	require.Equal(t, int64(10), buy.Quantity())
	require.Equal(t, int64(3), sell.Quantity())
	// Insertion order of the group is unchanged by sorting at match time.
	if diff := cmp.Diff(
		[]string{sell.String(), buy.String()},
		[]string{ledger.groups[buy.Key()][0].String(), ledger.groups[buy.Key()][1].String()},
	); diff != "" {
		t.Errorf("group order changed (-want +got):\n%s", diff)
	}
}

// *** PRIVATE ***

type closedCall struct {
	open  *taxctltrade.TradeRecord
	close *taxctltrade.TradeRecord
}

type match struct {
	open     string
	close    string
	quantity int64
}

type recordingTaxation struct {
	calls []closedCall
	err   error
}

func (r *recordingTaxation) AddClosedTransaction(openTrade *taxctltrade.TradeRecord, closeTrade *taxctltrade.TradeRecord) error {
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, closedCall{open: openTrade, close: closeTrade})
	return nil
}

func (r *recordingTaxation) matches() []match {
	matches := make([]match, 0, len(r.calls))
	for _, call := range r.calls {
		matches = append(matches, match{
			open:     describe(call.open),
			close:    describe(call.close),
			quantity: min(call.open.Quantity(), call.close.Quantity()),
		})
	}
	return matches
}

func describe(record *taxctltrade.TradeRecord) string {
	return record.Side().String() + " " + decimal.NewFromInt(record.Quantity()).String() + " " + record.Timestamp().Format("2006-01-02")
}

func newTrade(
	t *testing.T,
	account string,
	symbol string,
	side taxctltrade.Side,
	quantity int64,
	price string,
	timestamp time.Time,
) *taxctltrade.TradeRecord {
	t.Helper()
	record, err := taxctltrade.NewTradeRecord(nil, taxctltrade.TradeRecordParams{
		Symbol:         symbol,
		Exchange:       "NASDAQ",
		Account:        account,
		Quantity:       quantity,
		Price:          decimal.RequireFromString(price),
		Currency:       "USD",
		Timestamp:      timestamp,
		Side:           side,
		InstrumentType: taxctltrade.InstrumentTypeStock,
	})
	require.NoError(t, err)
	return record
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 12, 0, 0, 0, time.UTC)
}
