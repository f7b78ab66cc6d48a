// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package calculate implements the "calculate" command.
package calculate

import (
	"context"
	"fmt"
	"strings"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/taxctl/cmd/taxctl/internal/taxctlcmd"
	"github.com/bufdev/taxctl/internal/pkg/cliio"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlcalc"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlconfig"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlrates"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlreport"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltaxation"
	"github.com/spf13/pflag"
)

const (
	taxFlagName        = "tax"
	yearFlagName       = "year"
	reportTypeFlagName = "report-type"
	formatFlagName     = "format"
)

// NewCommand returns a new calculate command.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name + " FILE...",
		Short: "Calculate the tax of a year from broker reports",
		Long: `Calculate the tax of a year from broker reports.

All trades in the reports are matched first in first out per account and
symbol. Trades closed in the tax year are taxed; trades of earlier years only
establish the open positions. Dividends and costs outside of the tax year are
ignored, so reports may span several years.

The report type of each file is detected unless --report-type is set.`,
		Args: appcmd.MinimumNArgs(1),
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
	// Tax is the taxation method.
	Tax string
	// Year is the tax year.
	Year int
	// ReportType forces the report type of every file.
	ReportType string
	// Format is the output format.
	Format string
}

func newFlags() *flags {
	return &flags{}
}

// Bind registers the flag definitions with the given flag set.
func (f *flags) Bind(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.Dir, taxctlcmd.DirFlagName, ".", taxctlcmd.DirFlagUsage)
	flagSet.StringVar(
		&f.Tax,
		taxFlagName,
		taxctltaxation.MethodPolishNBPFIFO,
		fmt.Sprintf("The taxation method (%s)", strings.Join(taxctltaxation.MethodNames(), ", ")),
	)
	flagSet.IntVar(&f.Year, yearFlagName, 0, "The tax year")
	flagSet.StringVar(
		&f.ReportType,
		reportTypeFlagName,
		"",
		fmt.Sprintf(
			"The report type of all files (%s), detected per file if not set",
			strings.Join(
				[]string{
					taxctlreport.TypeIBFlexQuery,
					taxctlreport.TypeIBActivityCSV,
					taxctlreport.TypeExanteTrades,
					taxctlreport.TypeExanteTransactions,
				},
				", ",
			),
		),
	)
	flagSet.StringVar(&f.Format, formatFlagName, "table", "Output format (table, csv, json, markdown)")
}

func run(ctx context.Context, container appext.Container, flags *flags) error {
	if flags.Year <= 0 {
		return appcmd.NewInvalidArgumentErrorf("--%s is required", yearFlagName)
	}
	format, err := cliio.ParseFormat(flags.Format)
	if err != nil {
		return appcmd.NewInvalidArgumentError(err.Error())
	}
	baseCurrency, err := taxctltaxation.MethodBaseCurrency(flags.Tax)
	if err != nil {
		return appcmd.NewInvalidArgumentError(err.Error())
	}
	logger := container.Logger()
	config, err := taxctlconfig.ReadConfigOrDefault(flags.Dir)
	if err != nil {
		return err
	}
	cache, err := taxctlcmd.NewRatesCache(logger, flags.Dir, config, baseCurrency)
	if err != nil {
		return err
	}
	reportParams, err := taxctlcmd.NewReportParams(logger, config)
	if err != nil {
		return err
	}
	filePaths := make([]string, 0, container.NumArgs())
	for i := range container.NumArgs() {
		filePaths = append(filePaths, container.Arg(i))
	}
	summary, outstandingPositions, err := taxctlcalc.Run(
		ctx,
		logger,
		taxctlcalc.RunParams{
			Method:       flags.Tax,
			TaxYear:      flags.Year,
			Provider:     taxctlrates.NewLazyProvider(ctx, cache, nil),
			ReportParams: reportParams,
			ReportType:   flags.ReportType,
			FilePaths:    filePaths,
		},
	)
	if err != nil {
		return err
	}
	return taxctlcalc.WriteResult(container.Stdout(), format, taxctlcalc.NewResult(summary, outstandingPositions))
}
