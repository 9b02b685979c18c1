package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dirlock/pkg/usecase"
)

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [dir]",
		Short: "Report whether the directory lock is held",
		Long: `Reports whether some process currently holds the lock for a directory.

The check briefly takes the lock without waiting and releases it at once.
A missing lock file is reported as free and is not created.

Examples:
  dirlock status ./cache
  dirlock status          # Current directory`,
		Args: cobra.MaximumNArgs(1),
		RunE: runStatus,
	}
}

func runStatus(_ *cobra.Command, args []string) error {
	env, err := prepareCommand()
	if err != nil {
		return err
	}
	defer env.finish()

	execution, err := env.service.RunStatus(usecase.StatusRequest{
		TargetDir: targetDirArg(args),
	})
	if err != nil {
		return err
	}

	printCommandHeader("STATUS", execution.RootDir)

	state := "free"
	if execution.Held {
		state = "held"
	}
	exists := "no"
	if execution.LockFileExists {
		exists = "yes"
	}

	printSummary(
		fmt.Sprintf("Lock file:  %s", execution.LockPath),
		fmt.Sprintf("Exists:     %s", exists),
		fmt.Sprintf("State:      %s", state),
	)

	return nil
}
