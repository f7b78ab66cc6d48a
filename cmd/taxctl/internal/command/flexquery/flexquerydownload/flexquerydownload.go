// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package flexquerydownload implements the "flexquery download" command.
package flexquerydownload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/taxctl/cmd/taxctl/internal/taxctlcmd"
	"github.com/bufdev/taxctl/internal/pkg/ibkrflexquery"
	"github.com/bufdev/taxctl/internal/standard/xos"
	"github.com/bufdev/taxctl/internal/standard/xtime"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlconfig"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlpath"
	"github.com/spf13/pflag"
)

const (
	outFlagName  = "out"
	fromFlagName = "from"
	toFlagName   = "to"
)

// NewCommand returns a new flexquery download command.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name,
		Short: "Download a Flex Query statement from the IBKR Flex Web Service",
		Long: `Download a Flex Query statement from the IBKR Flex Web Service.

The query is the ibkr.query_id entry of taxctl.yaml. The Flex Web Service
token must be set via the IBKR_TOKEN environment variable. Generate it in the
IBKR portal under Performance & Reports > Flex Queries > Flex Web Service.

Without --from and --to the period configured on the query is used. The
statement is written to reports/flex_query_<query_id>.xml within the taxctl
directory unless --out is set, and can be passed to "taxctl calculate".`,
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
	// Dir is the taxctl directory containing taxctl.yaml.
	Dir string
	// Out is the output file path.
	Out string
	// From is the start date (YYYYMMDD).
	From string
	// To is the end date (YYYYMMDD).
	To string
}

func newFlags() *flags {
	return &flags{}
}

// Bind registers the flag definitions with the given flag set.
func (f *flags) Bind(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.Dir, taxctlcmd.DirFlagName, ".", taxctlcmd.DirFlagUsage)
	flagSet.StringVar(&f.Out, outFlagName, "", "The output file path")
	flagSet.StringVar(&f.From, fromFlagName, "", "Start date (YYYYMMDD), requires --to")
	flagSet.StringVar(&f.To, toFlagName, "", "End date (YYYYMMDD), requires --from")
}

func run(ctx context.Context, container appext.Container, flags *flags) error {
	if (flags.From == "") != (flags.To == "") {
		return appcmd.NewInvalidArgumentErrorf("--%s and --%s must be set together", fromFlagName, toFlagName)
	}
	var fromDate, toDate xtime.Date
	if flags.From != "" {
		var err error
		fromDate, err = parseYYYYMMDD(flags.From)
		if err != nil {
			return appcmd.NewInvalidArgumentErrorf("invalid --%s date %q, expected YYYYMMDD format: %v", fromFlagName, flags.From, err)
		}
		toDate, err = parseYYYYMMDD(flags.To)
		if err != nil {
			return appcmd.NewInvalidArgumentErrorf("invalid --%s date %q, expected YYYYMMDD format: %v", toFlagName, flags.To, err)
		}
		if toDate.Before(fromDate) {
			return appcmd.NewInvalidArgumentErrorf("--%s %s is before --%s %s", toFlagName, toDate, fromFlagName, fromDate)
		}
	}
	config, err := taxctlconfig.ReadConfig(flags.Dir)
	if err != nil {
		return err
	}
	if config.IBKRQueryID == "" {
		return errors.New("ibkr.query_id is not set in taxctl.yaml")
	}
	ibkrToken, err := taxctlcmd.IBKRToken(container)
	if err != nil {
		return err
	}
	outFilePath := flags.Out
	if outFilePath == "" {
		outFilePath = taxctlpath.FlexQueryFilePath(flags.Dir, config.IBKRQueryID)
	}
	logger := container.Logger()
	client := ibkrflexquery.NewClient(logger)
	logger.Info("downloading flex query", "query_id", config.IBKRQueryID, "from", flags.From, "to", flags.To)
	data, err := client.Download(ctx, ibkrToken, config.IBKRQueryID, fromDate, toDate)
	if err != nil {
		return err
	}
	statements, err := ibkrflexquery.Parse(data)
	if err != nil {
		return err
	}
	if err := xos.WriteFileAtomic(outFilePath, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", outFilePath, err)
	}
	for _, statement := range statements {
		logger.Info(
			"flex statement",
			"account", statement.AccountID,
			"from", statement.FromDate,
			"to", statement.ToDate,
			"trades", len(statement.Trades),
			"dividend_accruals", len(statement.DividendAccruals),
		)
	}
	_, err = fmt.Fprintln(container.Stdout(), outFilePath)
	return err
}

// parseYYYYMMDD parses a date string in YYYYMMDD format into an xtime.Date.
func parseYYYYMMDD(s string) (xtime.Date, error) {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return xtime.Date{}, err
	}
	return xtime.TimeToDate(t), nil
}
