// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package configvalidate implements the "config validate" command.
package configvalidate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/taxctl/cmd/taxctl/internal/taxctlcmd"
	"github.com/bufdev/taxctl/internal/pkg/cliio"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlconfig"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlpath"
	"github.com/spf13/pflag"
)

// NewCommand returns a new config validate command.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name,
		Short: "Validate taxctl.yaml and print the effective settings",
		Long: `Validate taxctl.yaml in the taxctl directory.

On success the settings a calculation would run with are printed, with
defaults filled in for every entry the file leaves out.`,
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
	Dir string
}

func newFlags() *flags {
	return &flags{}
}

// Bind registers the flag definitions with the given flag set.
func (f *flags) Bind(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.Dir, taxctlcmd.DirFlagName, ".", taxctlcmd.DirFlagUsage)
}

func run(_ context.Context, container appext.Container, flags *flags) error {
	if flags.Dir == "" {
		return appcmd.NewInvalidArgumentErrorf("--%s is required", taxctlcmd.DirFlagName)
	}
	config, err := taxctlconfig.ReadConfig(flags.Dir)
	if err != nil {
		return err
	}
	rateCacheDirPath := config.RateCacheDirPath
	if rateCacheDirPath == "" {
		rateCacheDirPath = taxctlpath.CacheRatesDirPath(flags.Dir)
	}
	splits := make([]string, 0, len(config.Splits))
	for _, split := range config.Splits {
		splits = append(splits, fmt.Sprintf("%s@%s %d:%d", split.Symbol, split.Date, split.From, split.To))
	}
	queryID := config.IBKRQueryID
	if queryID == "" {
		queryID = "-"
	}
	return cliio.WriteTable(
		container.Stdout(),
		[]string{"SETTING", "VALUE"},
		[][]string{
			{"file", taxctlpath.ConfigFilePath(flags.Dir)},
			{"rates.source", config.RateSource},
			{"rates.cache_dir", rateCacheDirPath},
			{"rates.currencies", strings.Join(config.RateCurrencies, ",")},
			{"exchanges", strconv.Itoa(len(config.ExchangeCountries)) + " venues"},
			{"splits", strings.Join(splits, ",")},
			{"dividend_correction_threshold", config.DividendCorrectionThreshold.String()},
			{"ibkr.query_id", queryID},
		},
	)
}
