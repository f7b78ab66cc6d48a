// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package configinit implements the "config init" command.
package configinit

import (
	"context"
	"fmt"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/taxctl/cmd/taxctl/internal/taxctlcmd"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlconfig"
	"github.com/spf13/pflag"
)

const forceFlagName = "force"

// NewCommand returns a new config init command.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name,
		Short: "Write a documented taxctl.yaml template",
		Long: `Write a documented taxctl.yaml template to the taxctl directory.

Every entry of the template is optional, and the template as written behaves
the same as having no configuration file. The path of the written file is
printed.`,
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
	Dir   string
	Force bool
}

func newFlags() *flags {
	return &flags{}
}

// Bind registers the flag definitions with the given flag set.
func (f *flags) Bind(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.Dir, taxctlcmd.DirFlagName, ".", taxctlcmd.DirFlagUsage)
	flagSet.BoolVar(&f.Force, forceFlagName, false, "Replace an existing taxctl.yaml")
}

func run(_ context.Context, container appext.Container, flags *flags) error {
	filePath, err := taxctlconfig.InitConfig(flags.Dir, flags.Force)
	if err != nil {
		return err
	}
	container.Logger().Info("configuration written", "path", filePath, "replaced", flags.Force)
	_, err = fmt.Fprintln(container.Stdout(), filePath)
	return err
}
