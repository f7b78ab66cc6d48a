// Copyright 2026 Peter Edge
//
// All rights reserved.

package taxctlreport

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/bufdev/taxctl/internal/pkg/ibkractivitycsv"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltaxation"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltrade"
	"github.com/shopspring/decimal"
)

// activityStatementPrefix starts every Activity Statement.
const activityStatementPrefix = "Statement,Header"

type ibActivityCSVReport struct {
	logger *slog.Logger
	params Params
}

func newIBActivityCSVReport(logger *slog.Logger, params Params) *ibActivityCSVReport {
	return &ibActivityCSVReport{
		logger: logger,
		params: params,
	}
}

func (r *ibActivityCSVReport) Type() string {
	return TypeIBActivityCSV
}

func (r *ibActivityCSVReport) Detect(filePath string) (_ bool, retErr error) {
	file, err := os.Open(filePath)
	if err != nil {
		return false, err
	}
	defer func() {
		retErr = errors.Join(retErr, file.Close())
	}()
	line, err := bufio.NewReader(file).ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	line = strings.TrimPrefix(line, "\ufeff")
	return strings.HasPrefix(line, activityStatementPrefix), nil
}

func (r *ibActivityCSVReport) Process(ledger Ledger, taxation taxctltaxation.Taxation, filePath string) error {
	statement, err := ibkractivitycsv.ParseFile(filePath)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", filePath, err)
	}
	account := ibAccount(statement.AccountID)
	exchanges := make(map[string]string, len(statement.Instruments))
	for _, instrument := range statement.Instruments {
		exchanges[instrument.Symbol] = instrument.ListingExchange
	}
	for _, trade := range statement.Trades {
		instrumentType := taxctltrade.InstrumentTypeStock
		if trade.AssetCategory == ibkractivitycsv.AssetCategoryOptions {
			instrumentType = taxctltrade.InstrumentTypeOption
		}
		side := taxctltrade.SideBuy
		if strings.HasPrefix(trade.Quantity, "-") {
			side = taxctltrade.SideSell
		}
		exchange, ok := exchanges[trade.Symbol]
		if !ok {
			return fmt.Errorf("trade %s: %w: no instrument information", trade.Symbol, taxctltrade.ErrUnknownExchange)
		}
		record, err := newTradeRecord(r.params, tradeParams{
			symbol:         trade.Symbol,
			exchange:       exchange,
			account:        account,
			quantity:       trade.Quantity,
			price:          trade.Price,
			currency:       trade.Currency,
			timestamp:      trade.DateTime,
			side:           side,
			instrumentType: instrumentType,
			commission:     trade.Commission,
		})
		if err != nil {
			return err
		}
		ledger.AddRecord(record)
	}

	taxYear := taxation.TaxYear()
	dividends := newDividendAccumulator(r.params.DividendCorrectionThreshold)
	if err := forEachCashEntry(statement.Dividends, taxYear, func(entry ibkractivitycsv.CashEntry, value decimal.Decimal) error {
		dividends.addValue(activityDividendKey(account, entry), entry.Currency, value)
		return nil
	}); err != nil {
		return fmt.Errorf("dividend: %w", err)
	}
	if err := forEachCashEntry(statement.WithholdingTaxes, taxYear, func(entry ibkractivitycsv.CashEntry, value decimal.Decimal) error {
		dividends.addWithholdingTax(activityDividendKey(account, entry), value)
		return nil
	}); err != nil {
		return fmt.Errorf("withholding tax: %w", err)
	}
	if err := dividends.flush(r.logger, taxation); err != nil {
		return err
	}
	return forEachCashEntry(statement.Interest, taxYear, func(entry ibkractivitycsv.CashEntry, value decimal.Decimal) error {
		return addInterest(r.logger, taxation, entry.Currency, value, entry.Date)
	})
}

// *** PRIVATE ***

// forEachCashEntry calls f with the parsed amount of every entry dated in the tax year.
func forEachCashEntry(
	entries []ibkractivitycsv.CashEntry,
	taxYear int,
	f func(ibkractivitycsv.CashEntry, decimal.Decimal) error,
) error {
	for _, entry := range entries {
		if entry.Date.Year != taxYear {
			continue
		}
		value, err := decimal.NewFromString(entry.Amount)
		if err != nil {
			return fmt.Errorf("%q: invalid amount %q: %w", entry.Description, entry.Amount, err)
		}
		if err := f(entry, value); err != nil {
			return err
		}
	}
	return nil
}

func activityDividendKey(account string, entry ibkractivitycsv.CashEntry) dividendKey {
	return dividendKey{
		symbol:  ibkractivitycsv.DividendSymbol(entry.Description),
		account: account,
		date:    entry.Date,
	}
}
