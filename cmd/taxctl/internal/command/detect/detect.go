// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package detect implements the "detect" command.
package detect

import (
	"context"
	"fmt"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlcalc"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlreport"
)

// NewCommand returns a new detect command that prints the report type of files.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	return &appcmd.Command{
		Use:   name + " FILE...",
		Short: "Print the detected report type of each file",
		Args:  appcmd.MinimumNArgs(1),
		Run: builder.NewRunFunc(
			func(ctx context.Context, container appext.Container) error {
				return run(ctx, container)
			},
		),
	}
}

func run(_ context.Context, container appext.Container) error {
	filePaths := make([]string, 0, container.NumArgs())
	for i := range container.NumArgs() {
		filePaths = append(filePaths, container.Arg(i))
	}
	reportTypes, err := taxctlcalc.Detect(container.Logger(), taxctlreport.Params{}, filePaths)
	if err != nil {
		return err
	}
	for i, reportType := range reportTypes {
		if _, err := fmt.Fprintf(container.Stdout(), "%s\t%s\n", filePaths[i], reportType); err != nil {
			return err
		}
	}
	return nil
}
