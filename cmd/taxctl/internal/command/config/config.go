// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package config implements the "config" command group.
package config

import (
	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/taxctl/cmd/taxctl/internal/command/config/configedit"
	"github.com/bufdev/taxctl/cmd/taxctl/internal/command/config/configinit"
	"github.com/bufdev/taxctl/cmd/taxctl/internal/command/config/configvalidate"
)

// NewCommand returns a new config command group for taxctl.yaml.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	return &appcmd.Command{
		Use:   name,
		Short: "Create, edit, and validate taxctl.yaml",
		Long: `Create, edit, and validate taxctl.yaml.

The file lives in the taxctl directory selected with --dir. It chooses the
exchange rate source and cache, adds exchange to country mappings and stock
splits, sets the dividend correction threshold, and holds the IBKR Flex Query
id. The calculate command runs without it, using the defaults that
"config init" documents.`,
		SubCommands: []*appcmd.Command{
			configinit.NewCommand("init", builder),
			configedit.NewCommand("edit", builder),
			configvalidate.NewCommand("validate", builder),
		},
	}
}
