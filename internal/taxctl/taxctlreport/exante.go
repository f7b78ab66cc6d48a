// Copyright 2026 Peter Edge
//
// All rights reserved.

package taxctlreport

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/bufdev/taxctl/internal/pkg/exante"
	"github.com/bufdev/taxctl/internal/standard/xtime"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltaxation"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltrade"
	"github.com/shopspring/decimal"
)

var exanteInstrumentTypes = map[string]taxctltrade.InstrumentType{
	"STOCK":  taxctltrade.InstrumentTypeStock,
	"OPTION": taxctltrade.InstrumentTypeOption,
}

type exanteTradesReport struct {
	logger *slog.Logger
	params Params
}

func newExanteTradesReport(logger *slog.Logger, params Params) *exanteTradesReport {
	return &exanteTradesReport{
		logger: logger,
		params: params,
	}
}

func (r *exanteTradesReport) Type() string {
	return TypeExanteTrades
}

func (r *exanteTradesReport) Detect(filePath string) (bool, error) {
	return detectExanteColumns(filePath, exante.TradeColumns)
}

// Process adds the trades of the export to the ledger.
//
// Commissions are charged through the transactions export, so trades are
// recorded without commission.
func (r *exanteTradesReport) Process(ledger Ledger, _ taxctltaxation.Taxation, filePath string) error {
	trades, err := exante.ParseTradesFile(filePath)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", filePath, err)
	}
	for _, trade := range trades {
		instrumentType, ok := exanteInstrumentTypes[trade.Type]
		if !ok {
			r.logger.Warn("unsupported instrument type, skipping", "type", trade.Type, "symbol", trade.SymbolID)
			continue
		}
		var side taxctltrade.Side
		switch trade.Side {
		case exante.SideBuy:
			side = taxctltrade.SideBuy
		case exante.SideSell:
			side = taxctltrade.SideSell
		default:
			return fmt.Errorf("trade %s: unknown side %q", trade.SymbolID, trade.Side)
		}
		record, err := newTradeRecord(r.params, tradeParams{
			symbol:         trade.SymbolID,
			exchange:       exanteExchange(trade.SymbolID),
			account:        trade.AccountID,
			quantity:       trade.Quantity,
			price:          trade.Price,
			currency:       trade.Currency,
			timestamp:      trade.Time,
			side:           side,
			instrumentType: instrumentType,
		})
		if err != nil {
			return err
		}
		ledger.AddRecord(record)
	}
	return nil
}

type exanteTransactionsReport struct {
	logger *slog.Logger
	params Params
}

func newExanteTransactionsReport(logger *slog.Logger, params Params) *exanteTransactionsReport {
	return &exanteTransactionsReport{
		logger: logger,
		params: params,
	}
}

func (r *exanteTransactionsReport) Type() string {
	return TypeExanteTransactions
}

func (r *exanteTransactionsReport) Detect(filePath string) (bool, error) {
	return detectExanteColumns(filePath, exante.TransactionColumns)
}

// Process adds the dividends, commissions, and interest of the export to
// the taxation. Trades in this export are ignored; they come from the
// trades export.
func (r *exanteTransactionsReport) Process(_ Ledger, taxation taxctltaxation.Taxation, filePath string) error {
	transactions, err := exante.ParseTransactionsFile(filePath)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", filePath, err)
	}
	dividends := newDividendAccumulator(r.params.DividendCorrectionThreshold)
	for _, transaction := range transactions {
		date := xtime.TimeToDate(transaction.When)
		if date.Year != taxation.TaxYear() {
			continue
		}
		switch transaction.OperationType {
		case exante.OperationTypeCommission, exante.OperationTypeInterest, exante.OperationTypeDividend, exante.OperationTypeTax:
		default:
			continue
		}
		value, err := decimal.NewFromString(transaction.Sum)
		if err != nil {
			return fmt.Errorf("transaction %s: invalid sum %q: %w", transaction.TransactionID, transaction.Sum, err)
		}
		key := dividendKey{symbol: transaction.SymbolID, account: transaction.AccountID, date: date}
		switch transaction.OperationType {
		case exante.OperationTypeCommission:
			if err := taxation.AddCost(transaction.Asset, value, date); err != nil {
				return err
			}
		case exante.OperationTypeInterest:
			if err := addInterest(r.logger, taxation, transaction.Asset, value, date); err != nil {
				return err
			}
		case exante.OperationTypeDividend:
			dividends.addValue(key, transaction.Asset, value)
		case exante.OperationTypeTax:
			dividends.addWithholdingTax(key, value)
		}
	}
	return dividends.flush(r.logger, taxation)
}

// exanteExchange returns the exchange of a TICKER.EXCHANGE[.SUFFIX] symbol.
func exanteExchange(symbolID string) string {
	parts := strings.Split(symbolID, ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func detectExanteColumns(filePath string, columns []string) (_ bool, retErr error) {
	file, err := os.Open(filePath)
	if err != nil {
		return false, err
	}
	defer func() {
		retErr = errors.Join(retErr, file.Close())
	}()
	header, err := exante.ReadHeader(file)
	if err != nil {
		// Not a CSV export.
		return false, nil
	}
	return exante.HasColumns(header, columns), nil
}
