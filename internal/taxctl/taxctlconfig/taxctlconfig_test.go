// Copyright 2026 Peter Edge
//
// All rights reserved.

package taxctlconfig

import (
	"os"
	"testing"
	"time"

	"github.com/bufdev/taxctl/internal/standard/xtime"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlpath"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlrates"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlsplit"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestInitAndReadConfig(t *testing.T) {
	t.Parallel()
	dirPath := t.TempDir()
	filePath, err := InitConfig(dirPath, false)
	require.NoError(t, err)
	require.Equal(t, taxctlpath.ConfigFilePath(dirPath), filePath)
	_, err = InitConfig(dirPath, false)
	require.ErrorContains(t, err, "already exists")
	require.NoError(t, os.WriteFile(filePath, []byte("version: v2\n"), 0o644))
	require.Error(t, ValidateConfig(dirPath))
	_, err = InitConfig(dirPath, true)
	require.NoError(t, err)

	// The template is a valid config equal to the defaults.
	config, err := ReadConfig(dirPath)
	require.NoError(t, err)
	require.Equal(t, taxctlrates.SourceNBP, config.RateSource)
	require.Equal(t, DefaultRateCurrencies, config.RateCurrencies)
	require.Empty(t, cmp.Diff(taxctlsplit.DefaultSplits, config.Splits))
	require.True(t, DefaultDividendCorrectionThreshold.Equal(config.DividendCorrectionThreshold))
	require.NoError(t, ValidateConfig(dirPath))
}

func TestReadConfigMissing(t *testing.T) {
	t.Parallel()
	dirPath := t.TempDir()
	_, err := ReadConfig(dirPath)
	require.ErrorContains(t, err, "taxctl config init")
	config, err := ReadConfigOrDefault(dirPath)
	require.NoError(t, err)
	require.Equal(t, taxctlrates.SourceNBP, config.RateSource)
}

func TestReadConfigFull(t *testing.T) {
	t.Parallel()
	dirPath := t.TempDir()
	writeConfig(t, dirPath, `version: v1
rates:
  source: frankfurter
  cache_dir: /tmp/rates
  currencies: [USD, EUR]
exchanges:
  - exchange: TSE
    country: JP
splits:
  - symbol: NVDA
    date: 2024-06-07
    from: 10
    to: 1
dividend_correction_threshold: "0.5"
ibkr:
  query_id: "123456"
`)
	config, err := ReadConfig(dirPath)
	require.NoError(t, err)
	require.Equal(t, taxctlrates.SourceFrankfurter, config.RateSource)
	require.Equal(t, "/tmp/rates", config.RateCacheDirPath)
	require.Equal(t, []string{"USD", "EUR"}, config.RateCurrencies)
	country, err := config.ExchangeCountries.Country("TSE")
	require.NoError(t, err)
	require.Equal(t, "JP", country)
	country, err = config.ExchangeCountries.Country("NASDAQ")
	require.NoError(t, err)
	require.Equal(t, "US", country)
	require.Equal(
		t,
		[]taxctlsplit.Split{{Symbol: "NVDA", Date: xtime.Date{Year: 2024, Month: time.June, Day: 7}, From: 10, To: 1}},
		config.Splits,
	)
	require.True(t, decimal.RequireFromString("0.5").Equal(config.DividendCorrectionThreshold))
	require.Equal(t, "123456", config.IBKRQueryID)
}

func TestReadConfigInvalid(t *testing.T) {
	t.Parallel()
	for _, testCase := range []struct {
		name    string
		content string
	}{
		{name: "version", content: "version: v2\n"},
		{name: "unknown_field", content: "version: v1\nfoo: bar\n"},
		{name: "source", content: "version: v1\nrates:\n  source: ecb\n"},
		{name: "currency", content: "version: v1\nrates:\n  currencies: [XXY]\n"},
		{name: "duplicate_currency", content: "version: v1\nrates:\n  currencies: [USD, USD]\n"},
		{name: "country", content: "version: v1\nexchanges:\n  - exchange: TSE\n    country: japan\n"},
		{name: "duplicate_exchange", content: "version: v1\nexchanges:\n  - exchange: TSE\n    country: JP\n  - exchange: TSE\n    country: JP\n"},
		{name: "split_date", content: "version: v1\nsplits:\n  - symbol: X\n    date: 2024-13-01\n    from: 1\n    to: 2\n"},
		{name: "split_ratio", content: "version: v1\nsplits:\n  - symbol: X\n    date: 2024-01-01\n    from: 0\n    to: 2\n"},
		{name: "threshold", content: "version: v1\ndividend_correction_threshold: \"-1\"\n"},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			dirPath := t.TempDir()
			writeConfig(t, dirPath, testCase.content)
			_, err := ReadConfig(dirPath)
			require.Error(t, err)
		})
	}
}

func writeConfig(t *testing.T, dirPath string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(taxctlpath.ConfigFilePath(dirPath), []byte(content), 0o644))
}
