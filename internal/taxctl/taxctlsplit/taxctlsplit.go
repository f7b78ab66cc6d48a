// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package taxctlsplit normalizes trades across stock splits.
//
// Brokers report trades executed after a split in post-split units while the
// lots opened before it stay in pre-split units. The Adjuster converts
// post-split trades back so both sides of the FIFO match in the same units.
package taxctlsplit

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/bufdev/taxctl/internal/standard/xtime"
	"github.com/shopspring/decimal"
)

// Split is a stock split of symbol effective after Date.
//
// Quantities of later trades are multiplied by From/To and prices by To/From.
type Split struct {
	Symbol string
	Date   xtime.Date
	From   int64
	To     int64
}

// DefaultSplits are the splits applied when the configuration lists none.
var DefaultSplits = []Split{
	{Symbol: "REMX", Date: xtime.Date{Year: 2020, Month: 4, Day: 15}, From: 3, To: 1},
	{Symbol: "URNM", Date: xtime.Date{Year: 2022, Month: 12, Day: 21}, From: 1, To: 2},
}

// Adjuster applies splits to trades.
type Adjuster struct {
	logger *slog.Logger
	splits map[string][]Split
}

// NewAdjuster returns a new Adjuster.
func NewAdjuster(logger *slog.Logger, splits []Split) (*Adjuster, error) {
	splitsBySymbol := make(map[string][]Split)
	for _, split := range splits {
		if split.Symbol == "" {
			return nil, fmt.Errorf("split on %s has no symbol", split.Date)
		}
		if split.From <= 0 || split.To <= 0 {
			return nil, fmt.Errorf("split of %s on %s has invalid ratio %d:%d", split.Symbol, split.Date, split.From, split.To)
		}
		splitsBySymbol[split.Symbol] = append(splitsBySymbol[split.Symbol], split)
	}
	for _, symbolSplits := range splitsBySymbol {
		slices.SortFunc(symbolSplits, func(a Split, b Split) int {
			return a.Date.Compare(b.Date)
		})
	}
	return &Adjuster{
		logger: logger,
		splits: splitsBySymbol,
	}, nil
}

// Adjust returns the quantity and price of a trade of symbol on date with
// every split strictly before date applied.
//
// It is an error for a split to produce a fractional quantity.
func (a *Adjuster) Adjust(symbol string, date xtime.Date, quantity int64, price decimal.Decimal) (int64, decimal.Decimal, error) {
	for _, split := range a.splits[symbol] {
		if !date.After(split.Date) {
			continue
		}
		scaled := quantity * split.From
		if scaled%split.To != 0 {
			return 0, decimal.Decimal{}, fmt.Errorf("split %d:%d of %s on %s leaves a fractional quantity from %d", split.From, split.To, symbol, split.Date, quantity)
		}
		newQuantity := scaled / split.To
		newPrice := price.Mul(decimal.NewFromInt(split.To)).Div(decimal.NewFromInt(split.From))
		a.logger.Warn(
			"split adjusted",
			"symbol", symbol,
			"ratio", fmt.Sprintf("%d:%d", split.From, split.To),
			"quantity", fmt.Sprintf("%d -> %d", quantity, newQuantity),
			"price", fmt.Sprintf("%s -> %s", price, newPrice),
		)
		quantity, price = newQuantity, newPrice
	}
	return quantity, price, nil
}
