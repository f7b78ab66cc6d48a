// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package taxctlcmd provides shared wiring for taxctl commands: the base
// directory flag, the rate cache, and the report parameters derived from
// the configuration.
package taxctlcmd

import (
	"errors"
	"log/slog"

	"buf.build/go/app/appext"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlconfig"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlpath"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlrates"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlreport"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlsplit"
)

const (
	// DirFlagName is the flag name for the taxctl base directory.
	DirFlagName = "dir"
	// DirFlagUsage is the usage of the base directory flag.
	DirFlagUsage = "The taxctl directory containing taxctl.yaml"

	// ibkrTokenEnvVar is the environment variable name for the IBKR Flex Web Service token.
	ibkrTokenEnvVar = "IBKR_TOKEN"
)

// NewRatesCache returns the rate archive cache for the configuration.
//
// The cache lives in the configured directory, or in cache/rates within
// the base directory. baseCurrency is the currency rates are quoted in.
func NewRatesCache(logger *slog.Logger, dirPath string, config *taxctlconfig.Config, baseCurrency string) (*taxctlrates.Cache, error) {
	source, err := taxctlrates.NewSource(config.RateSource, baseCurrency, config.RateCurrencies)
	if err != nil {
		return nil, err
	}
	cacheDirPath := config.RateCacheDirPath
	if cacheDirPath == "" {
		cacheDirPath = taxctlpath.CacheRatesDirPath(dirPath)
	}
	return taxctlrates.NewCache(logger, cacheDirPath, source), nil
}

// NewReportParams returns the report parameters for the configuration.
func NewReportParams(logger *slog.Logger, config *taxctlconfig.Config) (taxctlreport.Params, error) {
	splitAdjuster, err := taxctlsplit.NewAdjuster(logger, config.Splits)
	if err != nil {
		return taxctlreport.Params{}, err
	}
	return taxctlreport.Params{
		ExchangeCountries:           config.ExchangeCountries,
		SplitAdjuster:               splitAdjuster,
		DividendCorrectionThreshold: config.DividendCorrectionThreshold,
	}, nil
}

// IBKRToken returns the IBKR Flex Web Service token from the environment.
func IBKRToken(container appext.Container) (string, error) {
	ibkrToken := container.Env(ibkrTokenEnvVar)
	if ibkrToken == "" {
		return "", errors.New("IBKR_TOKEN environment variable is required, set it to your IBKR Flex Web Service token (see \"taxctl flexquery download --help\" for details)")
	}
	return ibkrToken, nil
}
