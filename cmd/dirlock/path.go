package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path [dir]",
		Short: "Print the lock file path for a directory",
		Long: `Prints the path of the lock file guarding a directory, for use by
scripts and other tools that share the lock. The directory must exist;
the lock file is not created.

Examples:
  dirlock path /srv/data      # /srv/data.lock`,
		Args: cobra.MaximumNArgs(1),
		RunE: runPath,
	}
}

func runPath(_ *cobra.Command, args []string) error {
	env, err := prepareCommand()
	if err != nil {
		return err
	}

	_, lockPath, err := env.service.LockPath(targetDirArg(args))
	if err != nil {
		return err
	}

	fmt.Println(lockPath)
	return nil
}
