// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package taxctlledger provides FIFO position matching over normalized trades.
//
// Trades are grouped by (account, symbol) so each account's FIFO is independent.
// Within a group, trades are sorted by timestamp and matched oldest-first across
// both sides, so long positions, short positions, partial fills, and position
// reversals are all handled by the same loop. Every matched (open, close) pair
// whose closing leg falls in the requested tax year is handed to the Taxation.
package taxctlledger

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bufdev/taxctl/internal/taxctl/taxctltrade"
)

// ErrMatchingInvariant is returned when matching terminates in a state that
// cannot occur for a correct FIFO pass. It indicates a defect and is fatal.
var ErrMatchingInvariant = errors.New("matching invariant violated")

// Taxation receives matched trade pairs.
type Taxation interface {
	// AddClosedTransaction records the closure of openTrade by closeTrade.
	//
	// The closed quantity is min(openTrade.Quantity(), closeTrade.Quantity()).
	AddClosedTransaction(openTrade *taxctltrade.TradeRecord, closeTrade *taxctltrade.TradeRecord) error
}

// Ledger owns all trade records of a run, grouped by matching key.
//
// A Ledger is not safe for concurrent use.
type Ledger struct {
	logger   *slog.Logger
	taxation Taxation
	// groups maps a matching key to its records in insertion order.
	groups map[taxctltrade.MatchingKey][]*taxctltrade.TradeRecord
	// outstandingPositions holds the lots left open by the most recent pass.
	outstandingPositions []*taxctltrade.TradeRecord
}

// NewLedger returns a new Ledger that drives taxation for every closed pair.
func NewLedger(logger *slog.Logger, taxation Taxation) *Ledger {
	return &Ledger{
		logger:   logger,
		taxation: taxation,
		groups:   make(map[taxctltrade.MatchingKey][]*taxctltrade.TradeRecord),
	}
}

// AddRecord appends the record to the group of its matching key.
func (l *Ledger) AddRecord(record *taxctltrade.TradeRecord) {
	key := record.Key()
	l.groups[key] = append(l.groups[key], record)
}

// Keys returns the matching keys of the ledger, sorted by account then symbol.
func (l *Ledger) Keys() []taxctltrade.MatchingKey {
	keys := make([]taxctltrade.MatchingKey, 0, len(l.groups))
	for key := range l.groups {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, taxctltrade.MatchingKey.Compare)
	return keys
}

// Len returns the total number of records in the ledger.
func (l *Ledger) Len() int {
	var n int
	for _, records := range l.groups {
		n += len(records)
	}
	return n
}

// EarliestYear returns the calendar year of the oldest record, and false if the
// ledger is empty.
func (l *Ledger) EarliestYear() (int, bool) {
	var (
		earliest *taxctltrade.TradeRecord
		found    bool
	)
	for _, records := range l.groups {
		for _, record := range records {
			if !found || record.Timestamp().Before(earliest.Timestamp()) {
				earliest = record
				found = true
			}
		}
	}
	if !found {
		return 0, false
	}
	return earliest.Timestamp().Year(), true
}

// OutstandingPositions returns the lots left unmatched by the most recent
// CalculateClosedPositions pass, sorted by key then timestamp.
func (l *Ledger) OutstandingPositions() []*taxctltrade.TradeRecord {
	return slices.Clone(l.outstandingPositions)
}

// CalculateClosedPositions matches every group and reports each pair closed in
// taxYear to the Taxation.
//
// Groups whose whole history lies outside taxYear are still matched so that
// their open lots are carried into OutstandingPositions, but they produce no
// tax events. Re-running the pass is idempotent with respect to the records:
// they are never modified.
func (l *Ledger) CalculateClosedPositions(taxYear int) error {
	l.logger.Info("calculating closed positions", "tax_year", taxYear)
	l.outstandingPositions = nil
	for _, key := range l.Keys() {
		records := slices.Clone(l.groups[key])
		// Stable so that equal timestamps keep insertion order.
		slices.SortStableFunc(records, compareTimestamp)
		remaining, err := l.matchFIFO(key, records, taxYear)
		if err != nil {
			return err
		}
		l.outstandingPositions = append(l.outstandingPositions, remaining...)
	}
	l.logger.Info(
		"closed positions calculated",
		"tax_year", taxYear,
		"outstanding_positions", len(l.outstandingPositions),
	)
	if len(l.outstandingPositions) > 0 {
		l.logger.Debug("positions left for next tax year", "positions", formatRecords(l.outstandingPositions))
	}
	return nil
}

// *** PRIVATE ***

// sideStacks holds the unmatched trades of one side in reverse chronological
// order, so popping from the end yields the earliest remaining trade.
type sideStacks map[taxctltrade.Side][]*taxctltrade.TradeRecord

func (s sideStacks) push(record *taxctltrade.TradeRecord) {
	s[record.Side()] = append(s[record.Side()], record)
}

func (s sideStacks) pop(side taxctltrade.Side) (*taxctltrade.TradeRecord, bool) {
	stack := s[side]
	if len(stack) == 0 {
		return nil, false
	}
	record := stack[len(stack)-1]
	s[side] = stack[:len(stack)-1]
	return record, true
}

func (s sideStacks) peek(side taxctltrade.Side) (*taxctltrade.TradeRecord, bool) {
	stack := s[side]
	if len(stack) == 0 {
		return nil, false
	}
	return stack[len(stack)-1], true
}

// nextOpen pops the opening leg for the next match. The earlier of the two
// sides opens; on equal timestamps the buy side opens.
func (s sideStacks) nextOpen() (*taxctltrade.TradeRecord, bool) {
	buy, hasBuy := s.peek(taxctltrade.SideBuy)
	sell, hasSell := s.peek(taxctltrade.SideSell)
	switch {
	case !hasBuy && !hasSell:
		return nil, false
	case !hasBuy:
		return s.pop(taxctltrade.SideSell)
	case !hasSell:
		return s.pop(taxctltrade.SideBuy)
	case sell.Timestamp().Before(buy.Timestamp()):
		return s.pop(taxctltrade.SideSell)
	default:
		return s.pop(taxctltrade.SideBuy)
	}
}

// matchFIFO runs the matching state machine for one timestamp-sorted group and
// returns the records left open.
func (l *Ledger) matchFIFO(key taxctltrade.MatchingKey, records []*taxctltrade.TradeRecord, taxYear int) ([]*taxctltrade.TradeRecord, error) {
	l.logger.Debug("matching trades", "key", key.String(), "trades", formatRecords(records))
	stacks := make(sideStacks, 2)
	for i := len(records) - 1; i >= 0; i-- {
		stacks.push(records[i])
	}
	for {
		open, ok := stacks.nextOpen()
		if !ok {
			break
		}
		closing, ok := stacks.pop(open.Side().Opposite())
		if !ok {
			// Nothing left on the other side: the position stays open.
			stacks.push(open)
			break
		}
		closedQuantity := min(open.Quantity(), closing.Quantity())
		switch {
		case closing.Quantity() < open.Quantity():
			stacks.push(open.WithQuantity(open.Quantity() - closedQuantity))
		case closing.Quantity() > open.Quantity():
			// Reversal: the excess opens a position on the closing side.
			stacks.push(closing.WithQuantity(closing.Quantity() - closedQuantity))
		}
		l.logger.Debug(
			"matched trades",
			"open", open.String(),
			"close", closing.String(),
			"closed_quantity", closedQuantity,
		)
		if closing.Timestamp().Year() != taxYear {
			continue
		}
		if err := l.taxation.AddClosedTransaction(open, closing); err != nil {
			return nil, fmt.Errorf("closing %s: %w", key, err)
		}
	}
	buys := stacks[taxctltrade.SideBuy]
	sells := stacks[taxctltrade.SideSell]
	if len(buys) > 0 && len(sells) > 0 {
		return nil, fmt.Errorf("%w: %s has both long and short residue:%s", ErrMatchingInvariant, key, formatRecords(append(slices.Clone(buys), sells...)))
	}
	remaining := append(slices.Clone(buys), sells...)
	// Restore chronological order.
	slices.Reverse(remaining)
	if len(remaining) > 0 {
		var signedQuantity int64
		for _, record := range remaining {
			signedQuantity += record.SignedQuantity()
		}
		if signedQuantity == 0 {
			return nil, fmt.Errorf("%w: %s has a fully offsetting residue:%s", ErrMatchingInvariant, key, formatRecords(remaining))
		}
	}
	return remaining, nil
}

func compareTimestamp(a *taxctltrade.TradeRecord, b *taxctltrade.TradeRecord) int {
	return a.Timestamp().Compare(b.Timestamp())
}

func formatRecords(records []*taxctltrade.TradeRecord) string {
	var builder strings.Builder
	for _, record := range records {
		builder.WriteString("\n\t")
		builder.WriteString(record.String())
	}
	return builder.String()
}
