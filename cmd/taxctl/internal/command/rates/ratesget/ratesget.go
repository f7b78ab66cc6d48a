// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ratesget implements the "rates get" command.
package ratesget

import (
	"context"
	"fmt"
	"strings"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/taxctl/cmd/taxctl/internal/taxctlcmd"
	"github.com/bufdev/taxctl/internal/standard/xtime"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlconfig"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlrates"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltaxation"
	"github.com/spf13/pflag"
)

const (
	taxFlagName      = "tax"
	currencyFlagName = "currency"
	dateFlagName     = "date"
)

// NewCommand returns a new rates get command that prints the rate applied on a date.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name,
		Short: "Print the exchange rate applied to an event on a date",
		Long: `Print the exchange rate applied to an event on a date.

Events are converted at the rate of the day before. If no rate was published
that day, the last earlier rate applies.`,
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
	// Tax is the taxation method the rate is for.
	Tax string
	// Currency is the currency to convert from.
	Currency string
	// Date is the date of the event in YYYY-MM-DD format.
	Date string
}

func newFlags() *flags {
	return &flags{}
}

// Bind registers the flag definitions with the given flag set.
func (f *flags) Bind(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.Dir, taxctlcmd.DirFlagName, ".", taxctlcmd.DirFlagUsage)
	flagSet.StringVar(&f.Tax, taxFlagName, taxctltaxation.MethodPolishNBPFIFO, "The taxation method the rate is for")
	flagSet.StringVar(&f.Currency, currencyFlagName, "", "The currency to convert from, e.g. USD")
	flagSet.StringVar(&f.Date, dateFlagName, "", "The date of the event in YYYY-MM-DD format")
}

func run(ctx context.Context, container appext.Container, flags *flags) error {
	if flags.Currency == "" {
		return appcmd.NewInvalidArgumentErrorf("--%s is required", currencyFlagName)
	}
	date, err := xtime.ParseDate(flags.Date)
	if err != nil {
		return appcmd.NewInvalidArgumentErrorf("invalid --%s %q, expected YYYY-MM-DD format: %v", dateFlagName, flags.Date, err)
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
	currency := strings.ToUpper(flags.Currency)
	rateDate := date.AddDays(-1)
	rate, err := taxctlrates.NewLazyProvider(ctx, cache, []string{currency}).Rate(currency, rateDate)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(container.Stdout(), "%s\t1 %s = %s %s\n", rateDate.String(), currency, rate.String(), baseCurrency)
	return err
}
