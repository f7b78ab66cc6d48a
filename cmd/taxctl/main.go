// Copyright 2026 Peter Edge
//
// All rights reserved.

package main

import (
	"context"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/taxctl/cmd/taxctl/internal/command/calculate"
	"github.com/bufdev/taxctl/cmd/taxctl/internal/command/config"
	"github.com/bufdev/taxctl/cmd/taxctl/internal/command/detect"
	"github.com/bufdev/taxctl/cmd/taxctl/internal/command/flexquery"
	"github.com/bufdev/taxctl/cmd/taxctl/internal/command/rates"
)

func main() {
	appcmd.Main(context.Background(), newRootCommand("taxctl"))
}

// newRootCommand creates the root taxctl command with all sub-commands.
func newRootCommand(name string) *appcmd.Command {
	builder := appext.NewBuilder(name)
	return &appcmd.Command{
		Use:   name,
		Short: "Calculate capital gains tax from broker reports",
		Long: `Calculate capital gains tax from broker reports.

Trades from IBKR and Exante exports are matched first in, first out per
account and symbol, converted to the base currency of the taxation method and
summarized together with dividends, withholding tax and costs.

A typical year:

  taxctl rates download --year 2023
  taxctl calculate --year 2023 reports/*.xml reports/*.csv`,
		BindPersistentFlags: builder.BindRoot,
		SubCommands: []*appcmd.Command{
			calculate.NewCommand("calculate", builder),
			config.NewCommand("config", builder),
			detect.NewCommand("detect", builder),
			flexquery.NewCommand("flexquery", builder),
			rates.NewCommand("rates", builder),
		},
	}
}
