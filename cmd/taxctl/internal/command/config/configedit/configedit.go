// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package configedit implements the "config edit" command.
package configedit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/taxctl/cmd/taxctl/internal/taxctlcmd"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlconfig"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlpath"
	"github.com/spf13/pflag"
)

// NewCommand returns a new config edit command that opens the configuration file in an editor.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name,
		Short: "Edit the configuration file in $EDITOR",
		Args:  appcmd.NoArgs,
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
}

func newFlags() *flags {
	return &flags{}
}

// Bind registers the flag definitions with the given flag set.
func (f *flags) Bind(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.Dir, taxctlcmd.DirFlagName, ".", taxctlcmd.DirFlagUsage)
}

func run(ctx context.Context, container appext.Container, flags *flags) error {
	configFilePath := taxctlpath.ConfigFilePath(flags.Dir)
	// Start from the template when there is nothing to edit yet.
	if _, err := os.Stat(configFilePath); errors.Is(err, fs.ErrNotExist) {
		if _, err := taxctlconfig.InitConfig(flags.Dir, false); err != nil {
			return err
		}
	}
	editor := container.Env("EDITOR")
	if editor == "" {
		return errors.New("EDITOR environment variable is not set")
	}
	cmd := exec.CommandContext(ctx, editor, configFilePath)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running editor: %w", err)
	}
	if err := taxctlconfig.ValidateConfig(flags.Dir); err != nil {
		return fmt.Errorf("%s is invalid, run \"taxctl config edit\" again to fix it: %w", configFilePath, err)
	}
	_, err := fmt.Fprintf(container.Stdout(), "%s\n", configFilePath)
	return err
}
