// Copyright 2026 Peter Edge
//
// All rights reserved.

package taxctltaxation

import (
	"fmt"
	"log/slog"

	"github.com/bufdev/taxctl/internal/standard/xtime"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlrates"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltrade"
	"github.com/shopspring/decimal"
)

// polishBaseCurrency is the currency Polish tax is settled in.
const polishBaseCurrency = "PLN"

var (
	// polishTaxRate is the flat capital gains and dividend tax rate.
	polishTaxRate = decimal.RequireFromString("0.19")
	// treatyWithholdingPercent is the withholding rate that triggers the
	// treaty rule: dividends withheld at 30% owe a flat treatyOwedRate.
	treatyWithholdingPercent = decimal.NewFromInt(30)
	// treatyOwedRate is the owed rate under the treaty rule.
	treatyOwedRate = decimal.RequireFromString("0.04")
	hundred        = decimal.NewFromInt(100)
)

// PolishNBPFIFO taxes FIFO matched trades at NBP table A rates.
//
// Every conversion uses the rate published on the day before the event,
// rounded to two decimal places. Each leg of a closed pair is converted at
// its own trade date. Profit is taxed at 19%, rounded to whole PLN.
//
// PIT-ZG needs one form for every country with a positive profit. The
// country of a closed pair is the country of the opening leg's exchange.
type PolishNBPFIFO struct {
	logger   *slog.Logger
	taxYear  int
	provider taxctlrates.Provider
	totals   *accumulator
}

// NewPolishNBPFIFO returns a new PolishNBPFIFO for the tax year.
func NewPolishNBPFIFO(logger *slog.Logger, taxYear int, provider taxctlrates.Provider) *PolishNBPFIFO {
	return &PolishNBPFIFO{
		logger:   logger,
		taxYear:  taxYear,
		provider: provider,
		totals:   newAccumulator(),
	}
}

// Method implements Taxation.
func (p *PolishNBPFIFO) Method() string {
	return MethodPolishNBPFIFO
}

// TaxYear implements Taxation.
func (p *PolishNBPFIFO) TaxYear() int {
	return p.taxYear
}

// BaseCurrency implements Taxation.
func (p *PolishNBPFIFO) BaseCurrency() string {
	return polishBaseCurrency
}

// Exchange implements Taxation.
func (p *PolishNBPFIFO) Exchange(currency string, amount decimal.Decimal, date xtime.Date) (decimal.Decimal, error) {
	if currency == p.BaseCurrency() {
		return amount, nil
	}
	rate, err := p.provider.Rate(currency, date.AddDays(-1))
	if err != nil {
		return decimal.Decimal{}, err
	}
	return rate.Mul(amount).RoundBank(2), nil
}

// AddClosedTransaction implements Taxation.
func (p *PolishNBPFIFO) AddClosedTransaction(openTrade *taxctltrade.TradeRecord, closeTrade *taxctltrade.TradeRecord) error {
	if err := checkYear(p.taxYear, closeTrade.Timestamp().Year(), "closing trade "+closeTrade.String()); err != nil {
		return err
	}
	closedQuantity := min(openTrade.Quantity(), closeTrade.Quantity())
	openDate := xtime.TimeToDate(openTrade.Timestamp())
	closeDate := xtime.TimeToDate(closeTrade.Timestamp())
	valueOpen, err := p.Exchange(openTrade.Currency(), openTrade.Notional(closedQuantity), openDate)
	if err != nil {
		return err
	}
	valueClose, err := p.Exchange(closeTrade.Currency(), closeTrade.Notional(closedQuantity), closeDate)
	if err != nil {
		return err
	}
	// A short is opened by selling, so its cost is the buy that closes it.
	if openTrade.Side() == taxctltrade.SideSell {
		valueOpen, valueClose = valueClose, valueOpen
	}
	valueOpen = valueOpen.RoundBank(2)
	valueClose = valueClose.RoundBank(2)
	openCommission, err := p.Exchange(openTrade.Currency(), openTrade.Commission(), openDate)
	if err != nil {
		return err
	}
	closeCommission, err := p.Exchange(closeTrade.Currency(), closeTrade.Commission(), closeDate)
	if err != nil {
		return err
	}
	commissions := openCommission.RoundBank(2).Add(closeCommission.RoundBank(2))

	key := openTrade.Key()
	p.totals.positionProfits[key] = p.totals.positionProfits[key].Add(valueClose.Sub(valueOpen))
	country := p.totals.country(openTrade.Country())
	country.cost = country.cost.Add(valueOpen).Add(commissions)
	country.income = country.income.Add(valueClose)
	p.totals.transactionCost = p.totals.transactionCost.Add(valueOpen).Add(commissions)
	p.totals.transactionIncome = p.totals.transactionIncome.Add(valueClose)
	p.logger.Debug(
		"closed transaction",
		"key", key.String(),
		"quantity", closedQuantity,
		"open", valueOpen.String(),
		"close", valueClose.String(),
		"commissions", commissions.String(),
	)
	return nil
}

// AddDividend implements Taxation.
//
// Owed tax is 19% of the gross dividend minus the tax withheld at source.
// A dividend withheld at exactly 30% instead owes a flat 4% of the gross
// dividend.
func (p *PolishNBPFIFO) AddDividend(dividend Dividend) error {
	if err := checkYear(p.taxYear, dividend.Date.Year, "dividend "+dividend.Symbol); err != nil {
		return err
	}
	value, err := p.Exchange(dividend.Currency, dividend.Value, dividend.Date)
	if err != nil {
		return err
	}
	dividendIncome := value.RoundBank(0)
	modelTax := dividendIncome.Mul(polishTaxRate).RoundBank(2).Abs()
	withholdingTax, err := p.Exchange(dividend.Currency, dividend.WithholdingTax, dividend.Date)
	if err != nil {
		return err
	}
	paidTax := withholdingTax.RoundBank(2).Abs()
	owedTax := modelTax.Sub(paidTax)
	paidTaxPercent := decimal.Zero
	if !dividendIncome.IsZero() {
		paidTaxPercent = hundred.Mul(paidTax).Div(dividendIncome).RoundBank(0)
		if paidTaxPercent.Equal(treatyWithholdingPercent) {
			owedTax = treatyOwedRate.Mul(dividendIncome).RoundBank(2)
		}
	}
	p.logger.Info(
		"dividend",
		"date", dividend.Date.String(),
		"symbol", dividend.Symbol,
		"income", dividendIncome.String(),
		"value", fmt.Sprintf("%s %s", dividend.Value, dividend.Currency),
		"paid_tax", paidTax.String(),
		"paid_tax_percent", paidTaxPercent.String(),
		"model_tax", modelTax.String(),
	)
	p.totals.dividendValue = p.totals.dividendValue.Add(dividendIncome)
	p.totals.dividendWithholdingTax = p.totals.dividendWithholdingTax.Add(paidTax)
	p.totals.dividendOwedTax = p.totals.dividendOwedTax.Add(owedTax)
	return nil
}

// AddCost implements Taxation.
func (p *PolishNBPFIFO) AddCost(currency string, value decimal.Decimal, date xtime.Date) error {
	if err := checkYear(p.taxYear, date.Year, "cost"); err != nil {
		return err
	}
	cost, err := p.Exchange(currency, value.Abs(), date)
	if err != nil {
		return err
	}
	p.totals.costs = p.totals.costs.Add(cost.RoundBank(2))
	return nil
}

// Summary implements Taxation.
func (p *PolishNBPFIFO) Summary() *Summary {
	return p.totals.summary(p.Method(), p.taxYear, p.BaseCurrency(), polishTaxRate)
}
