// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package flexquery implements the "flexquery" command group.
package flexquery

import (
	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/taxctl/cmd/taxctl/internal/command/flexquery/flexquerydownload"
)

// NewCommand returns a new flexquery command group.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	return &appcmd.Command{
		Use:   name,
		Short: "Work with IBKR Flex Query statements",
		SubCommands: []*appcmd.Command{
			flexquerydownload.NewCommand("download", builder),
		},
	}
}
