// Copyright 2026 Peter Edge
//
// All rights reserved.

package taxctlreport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bufdev/taxctl/internal/pkg/ibkrflexquery"
	"github.com/bufdev/taxctl/internal/standard/xtime"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltaxation"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltrade"
	"github.com/shopspring/decimal"
)

// flexSniffSize is how many leading bytes are searched for the root element.
const flexSniffSize = 512

var (
	flexInstrumentTypes = map[string]taxctltrade.InstrumentType{
		"STK":   taxctltrade.InstrumentTypeStock,
		"OPT":   taxctltrade.InstrumentTypeOption,
		"FXCFD": taxctltrade.InstrumentTypeForex,
	}
	flexTimeLayouts = []string{
		"20060102;150405",
		"2006-01-02;15:04:05",
		"2006-01-02, 15:04:05",
		"20060102",
		"2006-01-02",
	}
)

type ibFlexQueryReport struct {
	logger *slog.Logger
	params Params
}

func newIBFlexQueryReport(logger *slog.Logger, params Params) *ibFlexQueryReport {
	return &ibFlexQueryReport{
		logger: logger,
		params: params,
	}
}

func (r *ibFlexQueryReport) Type() string {
	return TypeIBFlexQuery
}

func (r *ibFlexQueryReport) Detect(filePath string) (_ bool, retErr error) {
	file, err := os.Open(filePath)
	if err != nil {
		return false, err
	}
	defer func() {
		retErr = errors.Join(retErr, file.Close())
	}()
	head := make([]byte, flexSniffSize)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	return bytes.Contains(head[:n], []byte("<FlexQueryResponse")), nil
}

func (r *ibFlexQueryReport) Process(ledger Ledger, taxation taxctltaxation.Taxation, filePath string) error {
	statements, err := ibkrflexquery.ParseFile(filePath)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", filePath, err)
	}
	for _, statement := range statements {
		if err := r.processTrades(ledger, statement); err != nil {
			return err
		}
		if err := r.processCommissionsAndInterest(taxation, statement); err != nil {
			return err
		}
		if err := r.processDividends(taxation, statement); err != nil {
			return err
		}
	}
	return nil
}

func (r *ibFlexQueryReport) processTrades(ledger Ledger, statement ibkrflexquery.FlexStatement) error {
	for _, trade := range statement.Trades {
		instrumentType, ok := flexInstrumentTypes[trade.AssetCategory]
		if !ok {
			r.logger.Warn("unsupported instrument type, skipping", "asset_category", trade.AssetCategory, "symbol", trade.Symbol)
			continue
		}
		side, err := flexSide(trade.BuySell, trade.Quantity)
		if err != nil {
			return fmt.Errorf("trade %s: %w", trade.TradeID, err)
		}
		timestamp, err := parseFlexTime(trade.DateTime)
		if err != nil {
			return fmt.Errorf("trade %s: %w", trade.TradeID, err)
		}
		if trade.IBCommissionCurrency != "" && trade.IBCommissionCurrency != trade.Currency {
			return fmt.Errorf("trade %s: commission currency %s differs from trade currency %s", trade.TradeID, trade.IBCommissionCurrency, trade.Currency)
		}
		exchange := trade.ListingExchange
		if exchange == "" {
			exchange = trade.UnderlyingListingExchange
		}
		exchange, _, _ = strings.Cut(exchange, ".")
		accountID := trade.AccountID
		if accountID == "" {
			accountID = statement.AccountID
		}
		record, err := newTradeRecord(r.params, tradeParams{
			symbol:         trade.Symbol,
			exchange:       exchange,
			account:        ibAccount(accountID),
			quantity:       trade.Quantity,
			price:          trade.TradePrice,
			currency:       trade.Currency,
			timestamp:      timestamp,
			side:           side,
			instrumentType: instrumentType,
			commission:     trade.IBCommission,
		})
		if err != nil {
			return err
		}
		ledger.AddRecord(record)
	}
	return nil
}

func (r *ibFlexQueryReport) processCommissionsAndInterest(taxation taxctltaxation.Taxation, statement ibkrflexquery.FlexStatement) error {
	for _, detail := range statement.CommissionDetails {
		timestamp, err := parseFlexTime(detail.DateTime)
		if err != nil {
			return fmt.Errorf("commission detail of %s: %w", detail.Symbol, err)
		}
		date := xtime.TimeToDate(timestamp)
		if date.Year != taxation.TaxYear() {
			continue
		}
		value, err := decimal.NewFromString(detail.TotalCommission)
		if err != nil {
			return fmt.Errorf("commission detail of %s: invalid total commission %q: %w", detail.Symbol, detail.TotalCommission, err)
		}
		if err := taxation.AddCost(detail.Currency, value, date); err != nil {
			return err
		}
	}
	for _, accrual := range statement.InterestAccruals {
		if accrual.Currency != ibkrflexquery.BaseSummaryCurrency || accrual.AccrualReversal == "" {
			continue
		}
		timestamp, err := parseFlexTime(accrual.ToDate)
		if err != nil {
			return fmt.Errorf("interest accruals: %w", err)
		}
		date := xtime.TimeToDate(timestamp)
		if date.Year != taxation.TaxYear() {
			continue
		}
		value, err := decimal.NewFromString(accrual.AccrualReversal)
		if err != nil {
			return fmt.Errorf("interest accruals: invalid accrual reversal %q: %w", accrual.AccrualReversal, err)
		}
		// The summary row is in the account base currency, which must be the
		// taxation base currency.
		if err := taxation.AddCost(taxation.BaseCurrency(), value, date); err != nil {
			return err
		}
	}
	return nil
}

func (r *ibFlexQueryReport) processDividends(taxation taxctltaxation.Taxation, statement ibkrflexquery.FlexStatement) error {
	type recordedKey struct {
		symbol string
		value  string
		date   xtime.Date
	}
	recorded := make(map[recordedKey]struct{})
	for _, accrual := range statement.DividendAccruals {
		timestamp, err := parseFlexTime(accrual.PayDate)
		if err != nil {
			return fmt.Errorf("dividend of %s: %w", accrual.Symbol, err)
		}
		date := xtime.TimeToDate(timestamp)
		if date.Year != taxation.TaxYear() {
			continue
		}
		// Reversals cancel earlier postings and carry no payment.
		if accrual.Code != ibkrflexquery.DividendAccrualPosted {
			continue
		}
		value, err := decimal.NewFromString(accrual.GrossAmount)
		if err != nil {
			return fmt.Errorf("dividend of %s: invalid gross amount %q: %w", accrual.Symbol, accrual.GrossAmount, err)
		}
		tax := decimal.Zero
		if accrual.Tax != "" {
			tax, err = decimal.NewFromString(accrual.Tax)
			if err != nil {
				return fmt.Errorf("dividend of %s: invalid tax %q: %w", accrual.Symbol, accrual.Tax, err)
			}
		}
		if value.Abs().LessThan(r.params.DividendCorrectionThreshold) {
			r.logger.Info("dividend correction below threshold, skipping", "symbol", accrual.Symbol, "date", date.String(), "value", value.String())
			continue
		}
		// The same posting can be listed more than once.
		key := recordedKey{symbol: accrual.Symbol, value: value.Abs().String(), date: date}
		if _, ok := recorded[key]; ok {
			r.logger.Debug("dividend already recorded, skipping", "symbol", accrual.Symbol, "date", date.String(), "value", value.String())
			continue
		}
		recorded[key] = struct{}{}
		if err := addDividendOrCost(taxation, taxctltaxation.Dividend{
			Symbol:         accrual.Symbol,
			Currency:       accrual.Currency,
			Value:          value,
			Date:           date,
			WithholdingTax: tax,
		}); err != nil {
			return err
		}
	}
	return nil
}

// flexSide returns the side of a trade from the sign of its quantity.
//
// Cancellations are reported as "BUY (Ca.)" or "SELL (Ca.)" with the
// quantity sign reversed, so the sign and not buySell gives the direction.
func flexSide(buySell string, quantity string) (taxctltrade.Side, error) {
	value, err := decimal.NewFromString(quantity)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q: %w", quantity, err)
	}
	switch value.Sign() {
	case 1:
		return taxctltrade.SideBuy, nil
	case -1:
		return taxctltrade.SideSell, nil
	default:
		return 0, fmt.Errorf("zero quantity for %s", buySell)
	}
}

func parseFlexTime(s string) (time.Time, error) {
	for _, layout := range flexTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
