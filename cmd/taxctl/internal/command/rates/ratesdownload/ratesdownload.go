// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ratesdownload implements the "rates download" command.
package ratesdownload

import (
	"context"
	"fmt"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/taxctl/cmd/taxctl/internal/taxctlcmd"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlconfig"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltaxation"
	"github.com/spf13/pflag"
)

const (
	taxFlagName      = "tax"
	yearFlagName     = "year"
	fromYearFlagName = "from-year"
	refreshFlagName  = "refresh"
)

// NewCommand returns a new rates download command that fills the rate cache.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name,
		Short: "Download yearly exchange rate archives into the cache",
		Long: `Download yearly exchange rate archives into the cache.

A calculation needs the archives of every year with a trade, plus the year
before the first trade. Archives already cached are kept unless --refresh is
set; the archive of the current year should be refreshed as it grows.`,
		Args: appcmd.NoArgs,
		Run: builder.NewRunFunc(
			func(ctx context.Context, container appext.Container) error {
				return run(ctx, container, flags)
			},
		),
		BindFlags: flags.Bind,
	}
}

type flags struct {
	// Dir is the taxctl directory containing taxctl.yaml and the rate cache.
	Dir string
	// Tax is the taxation method the rates are for.
	Tax string
	// Year is the last year to download.
	Year int
	// FromYear is the first year to download, defaulting to Year.
	FromYear int
	// Refresh re-downloads archives that are already cached.
	Refresh bool
}

func newFlags() *flags {
	return &flags{}
}

// Bind registers the flag definitions with the given flag set.
func (f *flags) Bind(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.Dir, taxctlcmd.DirFlagName, ".", taxctlcmd.DirFlagUsage)
	flagSet.StringVar(&f.Tax, taxFlagName, taxctltaxation.MethodPolishNBPFIFO, "The taxation method the rates are for")
	flagSet.IntVar(&f.Year, yearFlagName, 0, "The last year to download")
	flagSet.IntVar(&f.FromYear, fromYearFlagName, 0, "The first year to download, defaults to --year")
	flagSet.BoolVar(&f.Refresh, refreshFlagName, false, "Re-download archives that are already cached")
}

func run(ctx context.Context, container appext.Container, flags *flags) error {
	if flags.Year <= 0 {
		return appcmd.NewInvalidArgumentErrorf("--%s is required", yearFlagName)
	}
	fromYear := flags.FromYear
	if fromYear == 0 {
		fromYear = flags.Year
	}
	if fromYear > flags.Year {
		return appcmd.NewInvalidArgumentErrorf("--%s %d is after --%s %d", fromYearFlagName, fromYear, yearFlagName, flags.Year)
	}
	baseCurrency, err := taxctltaxation.MethodBaseCurrency(flags.Tax)
	if err != nil {
		return appcmd.NewInvalidArgumentError(err.Error())
	}
	config, err := taxctlconfig.ReadConfigOrDefault(flags.Dir)
	if err != nil {
		return err
	}
	cache, err := taxctlcmd.NewRatesCache(container.Logger(), flags.Dir, config, baseCurrency)
	if err != nil {
		return err
	}
	for year := fromYear; year <= flags.Year; year++ {
		if flags.Refresh {
			_, err = cache.Refresh(ctx, year)
		} else {
			_, err = cache.Archive(ctx, year)
		}
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(container.Stdout(), cache.FilePath(year)); err != nil {
			return err
		}
	}
	return nil
}
