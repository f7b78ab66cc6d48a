// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package taxctlconfig provides configuration parsing and validation for taxctl.
//
// The configuration file is optional. Without one, rates come from NBP, the
// default exchange table and split table are used, and no Flex Query is
// configured.
package taxctlconfig

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/bufdev/taxctl/internal/standard/xos"
	"github.com/bufdev/taxctl/internal/standard/xtime"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlpath"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlrates"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlsplit"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltrade"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultRateCurrencies are the currencies fetched from sources that need
// an explicit list.
var DefaultRateCurrencies = []string{"CHF", "EUR", "GBP", "USD"}

// DefaultDividendCorrectionThreshold is the absolute gross amount below which
// a dividend accrual row is treated as a correction and skipped.
var DefaultDividendCorrectionThreshold = decimal.RequireFromString("0.01")

// configTemplate is the default configuration file template with comments.
// yaml.v3 does not preserve comments, so we hardcode the template string.
const configTemplate = `# The configuration file version.
#
# Required. The only current valid version is v1.
version: v1
# Exchange rate configuration.
#
# Optional.
rates:
  # The rate source, either nbp (NBP table A archives) or frankfurter
  # (ECB reference rates from frankfurter.dev).
  #
  # Optional. Defaults to nbp.
  source: nbp
  # The directory yearly rate archives are cached in.
  #
  # Optional. Defaults to cache/rates within the taxctl directory.
  # cache_dir: ~/.cache/taxctl/rates
  # The currencies to fetch from sources that need an explicit list.
  #
  # Optional. Defaults to CHF, EUR, GBP, and USD.
  # currencies: [CHF, EUR, GBP, USD]
# Additional exchange to country mappings, merged over the built-in table.
#
# Optional.
# exchanges:
#   - exchange: TSE
#     country: JP
# Stock splits. Trades after the date have their quantity multiplied by
# from/to and their price by to/from.
#
# Optional. Defaults to the built-in split table.
# splits:
#   - symbol: URNM
#     date: 2022-12-21
#     from: 1
#     to: 2
# Dividend accrual rows with an absolute gross amount below this value are
# treated as corrections and skipped.
#
# Optional. Defaults to 0.01.
# dividend_correction_threshold: "0.01"
# IBKR Flex Query configuration, used by "taxctl flexquery download".
#
# Optional. Create a Flex Query at https://www.interactivebrokers.com
# under Performance & Reports > Flex Queries. Include the Trades,
# Change in Dividend Accruals, Interest Accruals, and Unbundled Commission
# Details sections with all fields enabled.
#
# The Flex Web Service token must be set via the IBKR_TOKEN environment variable.
# ibkr:
#   query_id: ""
`

// ExternalConfig is the YAML-serializable configuration file structure.
type ExternalConfig struct {
	// Version is the configuration file version (must be "v1").
	Version string `yaml:"version"`
	// Rates holds the exchange rate configuration.
	Rates ExternalRatesConfig `yaml:"rates"`
	// Exchanges are additional exchange to country mappings.
	Exchanges []ExternalExchangeConfig `yaml:"exchanges"`
	// Splits are stock splits. If empty, the built-in table is used.
	Splits []ExternalSplitConfig `yaml:"splits"`
	// DividendCorrectionThreshold is a decimal string.
	DividendCorrectionThreshold string `yaml:"dividend_correction_threshold"`
	// IBKR holds the Interactive Brokers Flex Query configuration.
	IBKR ExternalIBKRConfig `yaml:"ibkr"`
}

// ExternalRatesConfig holds exchange rate configuration.
type ExternalRatesConfig struct {
	// Source is the rate source name.
	Source string `yaml:"source"`
	// CacheDir is the rate archive cache directory. A leading ~ is expanded.
	CacheDir string `yaml:"cache_dir"`
	// Currencies are the currencies to fetch.
	Currencies []string `yaml:"currencies"`
}

// ExternalExchangeConfig maps an exchange to a country.
type ExternalExchangeConfig struct {
	// Exchange is the exchange code (e.g., "TSE").
	Exchange string `yaml:"exchange"`
	// Country is the ISO country code (e.g., "JP").
	Country string `yaml:"country"`
}

// ExternalSplitConfig holds one stock split.
type ExternalSplitConfig struct {
	// Symbol is the ticker symbol.
	Symbol string `yaml:"symbol"`
	// Date is the split date in YYYY-MM-DD format.
	Date string `yaml:"date"`
	// From is the quantity multiplier numerator.
	From int64 `yaml:"from"`
	// To is the quantity multiplier denominator.
	To int64 `yaml:"to"`
}

// ExternalIBKRConfig holds IBKR-specific configuration.
type ExternalIBKRConfig struct {
	// QueryID is the Flex Query ID.
	QueryID string `yaml:"query_id"`
}

// Config is the validated runtime configuration derived from the config file.
type Config struct {
	// RateSource is the rate source name.
	RateSource string
	// RateCacheDirPath is the rate archive cache directory, or empty to use
	// the default.
	RateCacheDirPath string
	// RateCurrencies are the currencies to fetch.
	RateCurrencies []string
	// ExchangeCountries maps exchanges to countries.
	ExchangeCountries taxctltrade.ExchangeCountries
	// Splits are the stock splits to apply.
	Splits []taxctlsplit.Split
	// DividendCorrectionThreshold is the dividend correction threshold.
	DividendCorrectionThreshold decimal.Decimal
	// IBKRQueryID is the Flex Query ID, or empty if not configured.
	IBKRQueryID string
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		RateSource:                  taxctlrates.SourceNBP,
		RateCurrencies:              slices.Clone(DefaultRateCurrencies),
		ExchangeCountries:           taxctltrade.NewExchangeCountries(nil),
		Splits:                      slices.Clone(taxctlsplit.DefaultSplits),
		DividendCorrectionThreshold: DefaultDividendCorrectionThreshold,
	}
}

// NewConfig validates an ExternalConfig and returns a runtime Config.
func NewConfig(externalConfig ExternalConfig) (*Config, error) {
	if externalConfig.Version != "v1" {
		return nil, fmt.Errorf("unsupported config version %q, must be v1", externalConfig.Version)
	}
	config := DefaultConfig()
	if source := externalConfig.Rates.Source; source != "" {
		if !slices.Contains(taxctlrates.AllSources, source) {
			return nil, fmt.Errorf("rates.source must be one of %v, got %q", taxctlrates.AllSources, source)
		}
		config.RateSource = source
	}
	if cacheDir := externalConfig.Rates.CacheDir; cacheDir != "" {
		cacheDirPath, err := xos.ExpandHome(cacheDir)
		if err != nil {
			return nil, err
		}
		config.RateCacheDirPath = cacheDirPath
	}
	if len(externalConfig.Rates.Currencies) > 0 {
		currencies := make([]string, 0, len(externalConfig.Rates.Currencies))
		for _, currency := range externalConfig.Rates.Currencies {
			if err := validateCurrency(currency); err != nil {
				return nil, fmt.Errorf("rates.currencies: %w", err)
			}
			if slices.Contains(currencies, currency) {
				return nil, fmt.Errorf("rates.currencies: duplicate currency %q", currency)
			}
			currencies = append(currencies, currency)
		}
		config.RateCurrencies = currencies
	}
	// Build the extra exchange map, checking for duplicates.
	extraExchanges := make(map[string]string, len(externalConfig.Exchanges))
	for _, e := range externalConfig.Exchanges {
		if e.Exchange == "" {
			return nil, errors.New("exchange name is required")
		}
		if len(e.Country) != 2 || strings.ToUpper(e.Country) != e.Country {
			return nil, fmt.Errorf("exchange %q: country must be a two-letter upper case code, got %q", e.Exchange, e.Country)
		}
		if _, ok := extraExchanges[e.Exchange]; ok {
			return nil, fmt.Errorf("duplicate exchange %q", e.Exchange)
		}
		extraExchanges[e.Exchange] = e.Country
	}
	config.ExchangeCountries = taxctltrade.NewExchangeCountries(extraExchanges)
	if len(externalConfig.Splits) > 0 {
		splits := make([]taxctlsplit.Split, 0, len(externalConfig.Splits))
		for _, s := range externalConfig.Splits {
			if s.Symbol == "" {
				return nil, errors.New("split symbol is required")
			}
			date, err := xtime.ParseDate(s.Date)
			if err != nil {
				return nil, fmt.Errorf("split of %s: invalid date %q: %w", s.Symbol, s.Date, err)
			}
			if s.From <= 0 || s.To <= 0 {
				return nil, fmt.Errorf("split of %s: from and to must be positive, got %d:%d", s.Symbol, s.From, s.To)
			}
			splits = append(splits, taxctlsplit.Split{
				Symbol: s.Symbol,
				Date:   date,
				From:   s.From,
				To:     s.To,
			})
		}
		config.Splits = splits
	}
	if threshold := externalConfig.DividendCorrectionThreshold; threshold != "" {
		value, err := decimal.NewFromString(threshold)
		if err != nil {
			return nil, fmt.Errorf("dividend_correction_threshold: %w", err)
		}
		if value.IsNegative() {
			return nil, fmt.Errorf("dividend_correction_threshold must not be negative, got %s", value)
		}
		config.DividendCorrectionThreshold = value
	}
	config.IBKRQueryID = externalConfig.IBKR.QueryID
	return config, nil
}

// ReadConfig reads and validates the configuration file from the base directory.
// Returns a clear error message directing users to run "taxctl config init" if the file is missing.
func ReadConfig(dirPath string) (*Config, error) {
	filePath := taxctlpath.ConfigFilePath(dirPath)
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found at %s, run \"taxctl config init\" to create one", filePath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var externalConfig ExternalConfig
	if err := unmarshalYAMLStrict(data, &externalConfig); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
	}
	return NewConfig(externalConfig)
}

// ReadConfigOrDefault reads the configuration file from the base directory,
// returning DefaultConfig if the file does not exist.
func ReadConfigOrDefault(dirPath string) (*Config, error) {
	if _, err := os.Stat(taxctlpath.ConfigFilePath(dirPath)); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return ReadConfig(dirPath)
}

// InitConfig writes the documented configuration template to dirPath and
// returns the file path. The directory is created if needed. An existing file
// is an error unless overwrite is set.
func InitConfig(dirPath string, overwrite bool) (string, error) {
	filePath := taxctlpath.ConfigFilePath(dirPath)
	if _, err := os.Stat(filePath); err == nil && !overwrite {
		return "", fmt.Errorf("configuration file already exists: %s", filePath)
	}
	if err := xos.WriteFileAtomic(filePath, []byte(configTemplate), 0o644); err != nil {
		return "", fmt.Errorf("writing configuration file: %w", err)
	}
	return filePath, nil
}

// ValidateConfig reads and validates the configuration file from the base directory.
func ValidateConfig(dirPath string) error {
	_, err := ReadConfig(dirPath)
	return err
}

// *** PRIVATE ***

// validateCurrency checks the code against the ISO 4217 table.
func validateCurrency(code string) error {
	if money.GetCurrency(code) == nil {
		return fmt.Errorf("unknown currency code %q", code)
	}
	return nil
}

// unmarshalYAMLStrict unmarshals the data as YAML with strict field checking.
// If the data length is 0, this is a no-op.
func unmarshalYAMLStrict(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	yamlDecoder := yaml.NewDecoder(bytes.NewReader(data))
	// Reject unknown fields.
	yamlDecoder.KnownFields(true)
	if err := yamlDecoder.Decode(v); err != nil {
		return fmt.Errorf("could not unmarshal as YAML: %w", err)
	}
	return nil
}
