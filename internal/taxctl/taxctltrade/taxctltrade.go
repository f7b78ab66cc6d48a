// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package taxctltrade provides the normalized trade record that report adapters
// produce and the FIFO ledger consumes.
//
// A TradeRecord is immutable once constructed. Partial matching never edits a
// record in place; it derives a resized copy with WithQuantity.
package taxctltrade

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownExchange is returned when a trade's listing venue has no country mapping.
var ErrUnknownExchange = errors.New("unknown exchange")

// Side is the direction of a trade execution.
type Side int

const (
	// SideBuy is a buy execution.
	SideBuy Side = 1
	// SideSell is a sell execution.
	SideSell Side = -1
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	return -s
}

// String implements fmt.Stringer.
func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// InstrumentType is the kind of instrument traded.
type InstrumentType int

const (
	// InstrumentTypeStock is an equity or ETF share.
	InstrumentTypeStock InstrumentType = iota + 1
	// InstrumentTypeOption is an exchange-traded option contract.
	InstrumentTypeOption
	// InstrumentTypeCash is a cash instrument.
	InstrumentTypeCash
	// InstrumentTypeForex is a foreign exchange instrument (e.g. an FX CFD).
	InstrumentTypeForex
)

// optionContractSize is the number of underlying units per option contract.
const optionContractSize = 100

// Multiplier returns the contract size used to turn price*quantity into notional.
func (i InstrumentType) Multiplier() int64 {
	switch i {
	case InstrumentTypeOption:
		return optionContractSize
	case InstrumentTypeStock, InstrumentTypeCash, InstrumentTypeForex:
		return 1
	default:
		return 1
	}
}

// String implements fmt.Stringer.
func (i InstrumentType) String() string {
	switch i {
	case InstrumentTypeStock:
		return "STOCK"
	case InstrumentTypeOption:
		return "OPTION"
	case InstrumentTypeCash:
		return "CASH"
	case InstrumentTypeForex:
		return "FOREX"
	default:
		return fmt.Sprintf("InstrumentType(%d)", int(i))
	}
}

// MatchingKey identifies one FIFO matching group. Two accounts trading the
// same symbol never net against each other.
type MatchingKey struct {
	Account string
	Symbol  string
}

// String implements fmt.Stringer.
func (k MatchingKey) String() string {
	if k.Account == "" {
		return k.Symbol
	}
	return k.Symbol + "@" + k.Account
}

// Compare orders keys by account, then symbol.
func (k MatchingKey) Compare(other MatchingKey) int {
	if k.Account != other.Account {
		if k.Account < other.Account {
			return -1
		}
		return 1
	}
	switch {
	case k.Symbol < other.Symbol:
		return -1
	case k.Symbol > other.Symbol:
		return 1
	default:
		return 0
	}
}

// ExchangeCountries maps listing venue codes to ISO country codes.
type ExchangeCountries map[string]string

// DefaultExchangeCountries is the built-in venue table.
//
// LSE maps to GB, so London listings count toward the United Kingdom in the
// per-country breakdown. Earlier versions of this table mapped LSE to DE.
var DefaultExchangeCountries = ExchangeCountries{
	"ARCA":   "US",
	"NASDAQ": "US",
	"CBOE":   "US",
	"NYSE":   "US",
	"BATS":   "US",
	"XETRA":  "DE",
	"IBIS":   "DE",
	"LSE":    "GB",
	"SIX":    "CH",
	"SBF":    "FR",
	"BVME":   "IT",
	"WSE":    "PL",
	"MOEX":   "RU",
}

// NewExchangeCountries returns the default venue table merged with extra.
// Entries in extra override defaults.
func NewExchangeCountries(extra map[string]string) ExchangeCountries {
	exchangeCountries := make(ExchangeCountries, len(DefaultExchangeCountries)+len(extra))
	maps.Copy(exchangeCountries, DefaultExchangeCountries)
	maps.Copy(exchangeCountries, extra)
	return exchangeCountries
}

// Country returns the country for the exchange, or an error wrapping
// ErrUnknownExchange.
func (e ExchangeCountries) Country(exchange string) (string, error) {
	country, ok := e[exchange]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownExchange, exchange)
	}
	return country, nil
}

// TradeRecord is one buy or sell execution for one instrument, account, and time.
type TradeRecord struct {
	symbol         string
	exchange       string
	country        string
	account        string
	quantity       int64
	price          decimal.Decimal
	currency       string
	timestamp      time.Time
	side           Side
	instrumentType InstrumentType
	commission     decimal.Decimal
}

// TradeRecordParams are the inputs to NewTradeRecord.
type TradeRecordParams struct {
	// Symbol is the instrument identifier.
	Symbol string
	// Exchange is the listing venue code. It must resolve in ExchangeCountries.
	Exchange string
	// Account is the sub-account identifier.
	Account string
	// Quantity is the unsigned number of units. Direction is carried by Side.
	Quantity int64
	// Price is the per-unit price in Currency.
	Price decimal.Decimal
	// Currency is the trade currency code.
	Currency string
	// Timestamp is the execution time.
	Timestamp time.Time
	// Side is the trade direction.
	Side Side
	// InstrumentType is the kind of instrument.
	InstrumentType InstrumentType
	// Commission is the non-negative commission in Currency.
	Commission decimal.Decimal
}

// NewTradeRecord validates params and returns a new TradeRecord.
//
// An exchange missing from exchangeCountries is a hard error wrapping
// ErrUnknownExchange. If exchangeCountries is nil, DefaultExchangeCountries is used.
func NewTradeRecord(exchangeCountries ExchangeCountries, params TradeRecordParams) (*TradeRecord, error) {
	if exchangeCountries == nil {
		exchangeCountries = DefaultExchangeCountries
	}
	country, err := exchangeCountries.Country(params.Exchange)
	if err != nil {
		return nil, fmt.Errorf("trade %s: %w", params.Symbol, err)
	}
	if params.Quantity <= 0 {
		return nil, fmt.Errorf("trade %s: quantity must be positive, got %d", params.Symbol, params.Quantity)
	}
	if params.Commission.IsNegative() {
		return nil, fmt.Errorf("trade %s: commission must not be negative, got %s", params.Symbol, params.Commission)
	}
	switch params.Side {
	case SideBuy, SideSell:
	default:
		return nil, fmt.Errorf("trade %s: invalid side %d", params.Symbol, int(params.Side))
	}
	switch params.InstrumentType {
	case InstrumentTypeStock, InstrumentTypeOption, InstrumentTypeCash, InstrumentTypeForex:
	default:
		return nil, fmt.Errorf("trade %s: invalid instrument type %d", params.Symbol, int(params.InstrumentType))
	}
	return &TradeRecord{
		symbol:         params.Symbol,
		exchange:       params.Exchange,
		country:        country,
		account:        params.Account,
		quantity:       params.Quantity,
		price:          params.Price,
		currency:       params.Currency,
		timestamp:      params.Timestamp,
		side:           params.Side,
		instrumentType: params.InstrumentType,
		commission:     params.Commission,
	}, nil
}

// Symbol returns the instrument identifier.
func (t *TradeRecord) Symbol() string { return t.symbol }

// Exchange returns the listing venue code.
func (t *TradeRecord) Exchange() string { return t.exchange }

// Country returns the country code the exchange maps to.
func (t *TradeRecord) Country() string { return t.country }

// Account returns the sub-account identifier.
func (t *TradeRecord) Account() string { return t.account }

// Quantity returns the unsigned quantity.
func (t *TradeRecord) Quantity() int64 { return t.quantity }

// SignedQuantity returns the quantity with the side's sign applied.
func (t *TradeRecord) SignedQuantity() int64 { return int64(t.side) * t.quantity }

// Price returns the per-unit price.
func (t *TradeRecord) Price() decimal.Decimal { return t.price }

// Currency returns the trade currency code.
func (t *TradeRecord) Currency() string { return t.currency }

// Timestamp returns the execution time.
func (t *TradeRecord) Timestamp() time.Time { return t.timestamp }

// Side returns the trade direction.
func (t *TradeRecord) Side() Side { return t.side }

// InstrumentType returns the kind of instrument.
func (t *TradeRecord) InstrumentType() InstrumentType { return t.instrumentType }

// Multiplier returns the contract size for the instrument type.
func (t *TradeRecord) Multiplier() int64 { return t.instrumentType.Multiplier() }

// Commission returns the commission in the trade currency.
func (t *TradeRecord) Commission() decimal.Decimal { return t.commission }

// Key returns the matching key of the record.
func (t *TradeRecord) Key() MatchingKey {
	return MatchingKey{Account: t.account, Symbol: t.symbol}
}

// Notional returns price * quantity * multiplier for the given quantity.
func (t *TradeRecord) Notional(quantity int64) decimal.Decimal {
	return t.price.Mul(decimal.NewFromInt(quantity * t.Multiplier()))
}

// WithQuantity returns a copy of the record with the given quantity. All
// other fields, the commission included, are copied unchanged.
func (t *TradeRecord) WithQuantity(quantity int64) *TradeRecord {
	c := *t
	c.quantity = quantity
	return &c
}

// String implements fmt.Stringer.
func (t *TradeRecord) String() string {
	return fmt.Sprintf("<Trade: %s %s %dx%s>", t.timestamp.Format(time.RFC3339), t.Key(), t.SignedQuantity(), t.price)
}
