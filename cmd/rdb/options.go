package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"
)

func optionsCommand() *cli.Command {
	return &cli.Command{
		Name:   "options",
		Usage:  "print the effective options as JSON",
		Flags:  optionFlags(),
		Action: printOptions,
	}
}

func printOptions(ctx context.Context, cmd *cli.Command) error {
	if err := configureLogging(cmd); err != nil {
		return err
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	// fail on settings the database would reject
	if _, err := opts.dbOptions(false); err != nil {
		return err
	}

	out, err := json.MarshalIndent(opts, "", "\t")
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(out))
	return nil
}
