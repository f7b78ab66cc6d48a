// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package rates implements the "rates" command group.
package rates

import (
	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/taxctl/cmd/taxctl/internal/command/rates/ratesdownload"
	"github.com/bufdev/taxctl/cmd/taxctl/internal/command/rates/ratesget"
)

// NewCommand returns a new rates command group.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	return &appcmd.Command{
		Use:   name,
		Short: "Manage cached exchange rates",
		SubCommands: []*appcmd.Command{
			ratesdownload.NewCommand("download", builder),
			ratesget.NewCommand("get", builder),
		},
	}
}
