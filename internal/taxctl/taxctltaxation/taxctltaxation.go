// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package taxctltaxation converts matched trades, dividends, and costs into
// base currency tax figures.
//
// A Taxation is built for exactly one tax year and one method. It is mutated
// only through its intake operations and read once through Summary at the end
// of a run.
package taxctltaxation

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bufdev/taxctl/internal/standard/xtime"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlrates"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltrade"
	"github.com/shopspring/decimal"
)

// MethodPolishNBPFIFO is the selector of the Polish NBP FIFO method.
const MethodPolishNBPFIFO = "PL_NBP_FIFO"

// ErrTaxYearMismatch is returned when an event falls outside the tax year.
var ErrTaxYearMismatch = errors.New("event outside of tax year")

// Dividend is a dividend payment, in the currency it was paid in.
type Dividend struct {
	Symbol   string
	Currency string
	// Value is the gross dividend.
	Value decimal.Decimal
	Date  xtime.Date
	// WithholdingTax is the tax withheld at source. The sign is ignored.
	WithholdingTax decimal.Decimal
}

// Taxation accumulates the tax figures of one tax year.
type Taxation interface {
	// Method returns the method selector.
	Method() string
	// TaxYear returns the tax year.
	TaxYear() int
	// BaseCurrency returns the currency all figures are expressed in.
	BaseCurrency() string
	// Exchange converts the amount to the base currency at the rate that
	// applies on the date.
	Exchange(currency string, amount decimal.Decimal, date xtime.Date) (decimal.Decimal, error)
	// AddClosedTransaction records the closure of openTrade by closeTrade.
	AddClosedTransaction(openTrade *taxctltrade.TradeRecord, closeTrade *taxctltrade.TradeRecord) error
	// AddDividend records a dividend.
	AddDividend(dividend Dividend) error
	// AddCost records a miscellaneous cost such as interest or a fee. The
	// sign of value is ignored.
	AddCost(currency string, value decimal.Decimal, date xtime.Date) error
	// Summary returns the figures accumulated so far.
	Summary() *Summary
}

// NewFunc builds a Taxation for a tax year.
type NewFunc func(logger *slog.Logger, taxYear int, provider taxctlrates.Provider) Taxation

// Methods are the known taxation methods by selector.
var Methods = map[string]NewFunc{
	MethodPolishNBPFIFO: func(logger *slog.Logger, taxYear int, provider taxctlrates.Provider) Taxation {
		return NewPolishNBPFIFO(logger, taxYear, provider)
	},
}

// baseCurrencies are the base currencies of the methods.
var baseCurrencies = map[string]string{
	MethodPolishNBPFIFO: polishBaseCurrency,
}

// MethodBaseCurrency returns the base currency of the method selector.
//
// Rate sources that publish rates against a chosen base need it before
// the Taxation exists.
func MethodBaseCurrency(method string) (string, error) {
	baseCurrency, ok := baseCurrencies[method]
	if !ok {
		return "", fmt.Errorf("unknown taxation method %q, expected one of %v", method, MethodNames())
	}
	return baseCurrency, nil
}

// MethodNames returns the sorted method selectors.
func MethodNames() []string {
	names := make([]string, 0, len(Methods))
	for name := range Methods {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewTaxation builds the Taxation for the method selector.
func NewTaxation(logger *slog.Logger, method string, taxYear int, provider taxctlrates.Provider) (Taxation, error) {
	newFunc, ok := Methods[method]
	if !ok {
		return nil, fmt.Errorf("unknown taxation method %q, expected one of %v", method, MethodNames())
	}
	return newFunc(logger, taxYear, provider), nil
}

// Summary is the structured result of a taxation run.
type Summary struct {
	Method       string `json:"method"`
	TaxYear      int    `json:"tax_year"`
	BaseCurrency string `json:"base_currency"`
	// TransactionIncome is the value of closing legs.
	TransactionIncome decimal.Decimal `json:"transaction_income"`
	// TransactionCost is the value of opening legs plus commissions.
	TransactionCost decimal.Decimal `json:"transaction_cost"`
	// Costs are miscellaneous costs such as interest and fees.
	Costs decimal.Decimal `json:"costs"`
	// TotalCost is TransactionCost plus Costs.
	TotalCost decimal.Decimal `json:"total_cost"`
	// Profit is TransactionIncome minus TotalCost.
	Profit decimal.Decimal `json:"profit"`
	// TransactionOwedTax is the tax owed on a positive Profit, in whole units.
	TransactionOwedTax decimal.Decimal `json:"transaction_owed_tax"`

	DividendValue          decimal.Decimal `json:"dividend_value"`
	DividendWithholdingTax decimal.Decimal `json:"dividend_withholding_tax"`
	DividendOwedTax        decimal.Decimal `json:"dividend_owed_tax"`

	// Positions are sorted by key.
	Positions []*PositionSummary `json:"positions"`
	// Countries are sorted by country code.
	Countries []*CountrySummary `json:"countries"`
}

// PositionSummary is the realized profit of one matching key.
type PositionSummary struct {
	Account string          `json:"account"`
	Symbol  string          `json:"symbol"`
	Profit  decimal.Decimal `json:"profit"`
}

// CountrySummary is the income and cost attributed to one country.
type CountrySummary struct {
	Country string          `json:"country"`
	Income  decimal.Decimal `json:"income"`
	Cost    decimal.Decimal `json:"cost"`
	Profit  decimal.Decimal `json:"profit"`
	// FormRequired is true when Profit is positive.
	FormRequired bool `json:"form_required"`
}

// *** PRIVATE ***

// accumulator holds the running totals shared by all methods.
type accumulator struct {
	transactionIncome      decimal.Decimal
	transactionCost        decimal.Decimal
	costs                  decimal.Decimal
	dividendValue          decimal.Decimal
	dividendWithholdingTax decimal.Decimal
	dividendOwedTax        decimal.Decimal
	positionProfits        map[taxctltrade.MatchingKey]decimal.Decimal
	countries              map[string]*countryTotals
}

type countryTotals struct {
	income decimal.Decimal
	cost   decimal.Decimal
}

func newAccumulator() *accumulator {
	return &accumulator{
		positionProfits: make(map[taxctltrade.MatchingKey]decimal.Decimal),
		countries:       make(map[string]*countryTotals),
	}
}

func (a *accumulator) country(country string) *countryTotals {
	totals, ok := a.countries[country]
	if !ok {
		totals = &countryTotals{}
		a.countries[country] = totals
	}
	return totals
}

func (a *accumulator) summary(method string, taxYear int, baseCurrency string, taxRate decimal.Decimal) *Summary {
	totalCost := a.transactionCost.Add(a.costs)
	profit := a.transactionIncome.Sub(totalCost)
	summary := &Summary{
		Method:                 method,
		TaxYear:                taxYear,
		BaseCurrency:           baseCurrency,
		TransactionIncome:      a.transactionIncome,
		TransactionCost:        a.transactionCost,
		Costs:                  a.costs,
		TotalCost:              totalCost,
		Profit:                 profit,
		TransactionOwedTax:     taxRate.Mul(decimal.Max(profit, decimal.Zero)).RoundBank(0),
		DividendValue:          a.dividendValue,
		DividendWithholdingTax: a.dividendWithholdingTax.RoundBank(2),
		DividendOwedTax:        a.dividendOwedTax.RoundBank(2),
	}
	keys := make([]taxctltrade.MatchingKey, 0, len(a.positionProfits))
	for key := range a.positionProfits {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, taxctltrade.MatchingKey.Compare)
	for _, key := range keys {
		summary.Positions = append(summary.Positions, &PositionSummary{
			Account: key.Account,
			Symbol:  key.Symbol,
			Profit:  a.positionProfits[key],
		})
	}
	countries := make([]string, 0, len(a.countries))
	for country := range a.countries {
		countries = append(countries, country)
	}
	slices.Sort(countries)
	for _, country := range countries {
		totals := a.countries[country]
		countryProfit := totals.income.Sub(totals.cost)
		summary.Countries = append(summary.Countries, &CountrySummary{
			Country:      country,
			Income:       totals.income,
			Cost:         totals.cost,
			Profit:       countryProfit,
			FormRequired: countryProfit.IsPositive(),
		})
	}
	return summary
}

func checkYear(taxYear int, year int, what string) error {
	if year != taxYear {
		return fmt.Errorf("%w: %s in %d, tax year is %d", ErrTaxYearMismatch, what, year, taxYear)
	}
	return nil
}
