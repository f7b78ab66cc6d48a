// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package taxctlrates provides daily exchange rates to the base currency.
//
// Rates come from yearly archives in the NBP table A format. Archives are
// cached on disk, one file per source and year, and merged into an immutable
// Table that forward-fills days without a published rate (weekends and bank
// holidays) with the most recent earlier rate.
package taxctlrates

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bufdev/taxctl/internal/standard/xtime"
	"github.com/shopspring/decimal"
)

// ErrRateNotFound is returned when no rate is known for a currency and date.
var ErrRateNotFound = errors.New("exchange rate not found")

// Provider returns the rate of one unit of a currency in the base currency.
type Provider interface {
	// Rate returns the base currency value of one unit of the currency on the date.
	Rate(currency string, date xtime.Date) (decimal.Decimal, error)
}

// Observations are published rates keyed by date and then currency code.
type Observations map[xtime.Date]map[string]decimal.Decimal

// Merge copies all observations from other into o, overwriting on conflict.
func (o Observations) Merge(other Observations) {
	for date, rates := range other {
		existing, ok := o[date]
		if !ok {
			existing = make(map[string]decimal.Decimal, len(rates))
			o[date] = existing
		}
		for currency, rate := range rates {
			existing[currency] = rate
		}
	}
}

// Table is an immutable, forward-filled rate table.
type Table struct {
	first xtime.Date
	last  xtime.Date
	rates map[xtime.Date]map[string]decimal.Decimal
}

// NewTable builds a Table from published observations.
//
// Every date between the earliest and latest observation is filled. A
// currency missing on a date takes its most recent earlier rate.
func NewTable(observations Observations) (*Table, error) {
	if len(observations) == 0 {
		return nil, errors.New("no exchange rate observations")
	}
	dates := make([]xtime.Date, 0, len(observations))
	for date := range observations {
		dates = append(dates, date)
	}
	slices.SortFunc(dates, xtime.Date.Compare)
	first := dates[0]
	last := dates[len(dates)-1]
	rates := make(map[xtime.Date]map[string]decimal.Decimal, last.DaysSince(first)+1)
	current := make(map[string]decimal.Decimal)
	for date := first; date.EqualOrBefore(last); date = date.AddDays(1) {
		for currency, rate := range observations[date] {
			if !rate.IsPositive() {
				return nil, fmt.Errorf("non-positive rate %s for %s on %s", rate, currency, date)
			}
			current[currency] = rate
		}
		day := make(map[string]decimal.Decimal, len(current))
		for currency, rate := range current {
			day[currency] = rate
		}
		rates[date] = day
	}
	return &Table{
		first: first,
		last:  last,
		rates: rates,
	}, nil
}

// Rate implements Provider.
func (t *Table) Rate(currency string, date xtime.Date) (decimal.Decimal, error) {
	if date.Before(t.first) || date.After(t.last) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s on %s is outside %s to %s", ErrRateNotFound, currency, date, t.first, t.last)
	}
	rate, ok := t.rates[date][currency]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s on %s", ErrRateNotFound, currency, date)
	}
	return rate, nil
}

// First returns the earliest date covered by the table.
func (t *Table) First() xtime.Date {
	return t.first
}

// Last returns the latest date covered by the table.
func (t *Table) Last() xtime.Date {
	return t.last
}

// Currencies returns the sorted currency codes known on the latest date.
func (t *Table) Currencies() []string {
	currencies := make([]string, 0, len(t.rates[t.last]))
	for currency := range t.rates[t.last] {
		currencies = append(currencies, currency)
	}
	slices.Sort(currencies)
	return currencies
}
