// Copyright 2026 Peter Edge
//
// All rights reserved.

package taxctlrates

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bufdev/taxctl/internal/pkg/frankfurter"
	"github.com/bufdev/taxctl/internal/standard/xtime"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseArchive(t *testing.T) {
	t.Parallel()
	file, err := os.Open(filepath.Join("testdata", "archiwum_tab_a_2023.csv"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Close() })
	observations, err := ParseArchive(file, nil)
	require.NoError(t, err)
	require.Len(t, observations, 3)
	requireRate(t, "4.3480", observations[date(2023, 1, 2)]["USD"])
	requireRate(t, "4.6863", observations[date(2023, 1, 3)]["EUR"])
	// 100HUF is divided by its unit count.
	requireRate(t, "0.011801", observations[date(2023, 1, 3)]["HUF"])
	_, ok := observations[date(2023, 1, 5)]["HUF"]
	require.False(t, ok)
}

func TestParseArchiveCurrencyFilter(t *testing.T) {
	t.Parallel()
	file, err := os.Open(filepath.Join("testdata", "archiwum_tab_a_2023.csv"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Close() })
	observations, err := ParseArchive(file, []string{"USD"})
	require.NoError(t, err)
	for _, rates := range observations {
		require.Len(t, rates, 1)
		_, ok := rates["USD"]
		require.True(t, ok)
	}
}

func TestFormatArchiveRoundTrip(t *testing.T) {
	t.Parallel()
	observations := Observations{
		date(2023, 1, 2): {"USD": decimal.RequireFromString("4.3839"), "EUR": decimal.RequireFromString("4.6539")},
		date(2023, 1, 3): {"USD": decimal.RequireFromString("4.4094")},
	}
	data, err := FormatArchive(observations)
	require.NoError(t, err)
	require.Equal(t, "data;1EUR;1USD\n20230102;4,6539;4,3839\n20230103;;4,4094\n", string(data))
}

func TestTableForwardFill(t *testing.T) {
	t.Parallel()
	table, err := NewTable(Observations{
		date(2023, 1, 5): {"USD": decimal.RequireFromString("4.30"), "EUR": decimal.RequireFromString("4.60")},
		date(2023, 1, 9): {"USD": decimal.RequireFromString("4.40")},
	})
	require.NoError(t, err)
	require.Equal(t, date(2023, 1, 5), table.First())
	require.Equal(t, date(2023, 1, 9), table.Last())
	require.Equal(t, []string{"EUR", "USD"}, table.Currencies())

	rate, err := table.Rate("USD", date(2023, 1, 7))
	require.NoError(t, err)
	requireRate(t, "4.30", rate)
	rate, err = table.Rate("USD", date(2023, 1, 9))
	require.NoError(t, err)
	requireRate(t, "4.40", rate)
	// EUR is not published on the 9th and carries the rate of the 5th.
	rate, err = table.Rate("EUR", date(2023, 1, 9))
	require.NoError(t, err)
	requireRate(t, "4.60", rate)

	_, err = table.Rate("USD", date(2023, 1, 4))
	require.ErrorIs(t, err, ErrRateNotFound)
	_, err = table.Rate("USD", date(2023, 1, 10))
	require.ErrorIs(t, err, ErrRateNotFound)
	_, err = table.Rate("CHF", date(2023, 1, 6))
	require.ErrorIs(t, err, ErrRateNotFound)
}

func TestTableInvalid(t *testing.T) {
	t.Parallel()
	_, err := NewTable(nil)
	require.Error(t, err)
	_, err = NewTable(Observations{date(2023, 1, 5): {"USD": decimal.Zero}})
	require.Error(t, err)
}

func TestCacheAndLoadTable(t *testing.T) {
	t.Parallel()
	source := &fakeSource{
		archives: map[int]string{
			2022: "data;1USD\n20221230;4,4018\n",
			2023: "data;1USD\n20230102;4,3480\n20230103;4,4094\n",
		},
	}
	dirPath := t.TempDir()
	cache := NewCache(slog.New(slog.DiscardHandler), dirPath, source)
	table, err := LoadTable(context.Background(), cache, 2022, 2023, []string{"USD"})
	require.NoError(t, err)
	// January 1st fills from December 30th.
	rate, err := table.Rate("USD", date(2023, 1, 1))
	require.NoError(t, err)
	requireRate(t, "4.4018", rate)
	require.FileExists(t, filepath.Join(dirPath, "fake_rates_2022.csv"))
	require.FileExists(t, filepath.Join(dirPath, "fake_rates_2023.csv"))
	require.Equal(t, 2, source.calls)

	// A second load reads from disk.
	_, err = LoadTable(context.Background(), cache, 2022, 2023, []string{"USD"})
	require.NoError(t, err)
	require.Equal(t, 2, source.calls)

	_, err = LoadTable(context.Background(), cache, 2024, 2023, nil)
	require.Error(t, err)
}

func TestLazyProvider(t *testing.T) {
	t.Parallel()
	source := &fakeSource{
		archives: map[int]string{
			2022: "data;1USD\n20221230;4,4018\n",
			2023: "data;1USD\n20230102;4,3480\n",
		},
	}
	cache := NewCache(slog.New(slog.DiscardHandler), t.TempDir(), source)
	provider := NewLazyProvider(context.Background(), cache, nil)
	require.Equal(t, 0, source.calls)
	rate, err := provider.Rate("USD", date(2023, 1, 2))
	require.NoError(t, err)
	requireRate(t, "4.3480", rate)
	require.Equal(t, 2, source.calls)
	rate, err = provider.Rate("USD", date(2022, 12, 31))
	require.NoError(t, err)
	requireRate(t, "4.4018", rate)
	// 2021 is attempted for the December lookup and is missing.
	require.Equal(t, 3, source.calls)
}

func TestNewSource(t *testing.T) {
	t.Parallel()
	source, err := NewSource(SourceNBP, "PLN", nil)
	require.NoError(t, err)
	require.Equal(t, SourceNBP, source.Name())
	source, err = NewSource(SourceFrankfurter, "PLN", []string{"USD"})
	require.NoError(t, err)
	require.Equal(t, SourceFrankfurter, source.Name())
	_, err = NewSource("ecb", "PLN", nil)
	require.Error(t, err)
}

func TestFrankfurterSource(t *testing.T) {
	t.Parallel()
	client := &fakeFrankfurterClient{
		rates: map[string][]frankfurter.DailyRate{
			"USD": {
				{Date: date(2023, 1, 2), Rate: decimal.RequireFromString("4.3839")},
				{Date: date(2023, 1, 3), Rate: decimal.RequireFromString("4.4018")},
			},
			"EUR": {
				{Date: date(2023, 1, 3), Rate: decimal.RequireFromString("4.6863")},
			},
		},
	}
	source := NewFrankfurterSource(client, "PLN", []string{"USD", "PLN", "EUR"})
	data, err := source.FetchYear(context.Background(), 2023)
	require.NoError(t, err)
	// The base currency is never requested.
	require.Equal(t, []string{"USD", "EUR"}, client.requested)
	observations, err := ParseArchive(bytes.NewReader(data), nil)
	require.NoError(t, err)
	require.Len(t, observations, 2)
	requireRate(t, "4.3839", observations[date(2023, 1, 2)]["USD"])
	requireRate(t, "4.6863", observations[date(2023, 1, 3)]["EUR"])
	_, err = source.FetchYear(context.Background(), 1998)
	require.ErrorContains(t, err, "no rates published for 1998")
}

type fakeFrankfurterClient struct {
	rates     map[string][]frankfurter.DailyRate
	requested []string
}

func (c *fakeFrankfurterClient) GetRates(_ context.Context, baseCurrency string, _ string, startDate xtime.Date, _ xtime.Date) ([]frankfurter.DailyRate, error) {
	if startDate.Year != 2023 {
		return nil, nil
	}
	c.requested = append(c.requested, baseCurrency)
	return c.rates[baseCurrency], nil
}

type fakeSource struct {
	archives map[int]string
	calls    int
}

func (s *fakeSource) Name() string {
	return "fake"
}

func (s *fakeSource) FetchYear(_ context.Context, year int) ([]byte, error) {
	s.calls++
	archive, ok := s.archives[year]
	if !ok {
		return []byte("data;1USD\n"), nil
	}
	return []byte(archive), nil
}

func date(year int, month int, day int) xtime.Date {
	return xtime.Date{Year: year, Month: time.Month(month), Day: day}
}

func requireRate(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(expected).Equal(actual), fmt.Sprintf("expected %s, got %s", expected, actual))
}
