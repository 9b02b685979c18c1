package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dirlock/pkg/progress"
	"dirlock/pkg/usecase"
)

var (
	shellMode bool
	workDir   string
	quiet     bool
)

func buildExecCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec [dir] -- command [args...]",
		Short: "Run a command while holding the directory lock",
		Long: `Runs a command with exclusive access to a directory:
  - Waits until no other holder has the lock
  - Runs the command with the working directory set inside the locked directory
  - Releases the lock when the command exits, whatever its status

The command sees DIRLOCK_DIR (the canonical directory) and DIRLOCK_LOCK_FILE
in its environment. dirlock exits with the command's exit status.

Examples:
  dirlock exec ./cache -- make                      # Lock ./cache, run make in it
  dirlock exec --workdir sub ./cache -- ls -l       # Run in ./cache/sub
  dirlock exec --shell ./cache -- 'echo hi > x'     # Run through the shell
  dirlock exec -- ./deploy.sh                       # Lock the current directory`,
		Args: cobra.MinimumNArgs(1),
		RunE: runExec,
	}

	cmd.Flags().BoolVar(&shellMode, "shell", false, "Run the command through the configured shell")
	cmd.Flags().StringVar(&workDir, "workdir", "", "Working directory relative to the locked directory")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the header and summary")

	return cmd
}

func splitExecArgs(argsLenAtDash int, args []string) (string, []string, error) {
	if argsLenAtDash < 0 {
		return "", nil, errors.New("missing -- before the command")
	}
	if argsLenAtDash > 1 {
		return "", nil, fmt.Errorf("expected at most one directory before --, got %d", argsLenAtDash)
	}

	command := args[argsLenAtDash:]
	if len(command) == 0 {
		return "", nil, errors.New("missing command after --")
	}

	return targetDirArg(args[:argsLenAtDash]), command, nil
}

func runExec(cmd *cobra.Command, args []string) error {
	targetDir, command, err := splitExecArgs(cmd.ArgsLenAtDash(), args)
	if err != nil {
		return err
	}

	env, err := prepareCommand()
	if err != nil {
		return err
	}
	defer env.finish()

	if !quiet {
		printCommandHeader("EXEC", targetDir)
	}

	var heartbeat *progress.Reporter
	if !quiet {
		heartbeat = progress.Start(os.Stderr, "Waiting for lock", env.settings.HeartbeatInterval)
	}
	execution, err := env.service.RunExec(usecase.ExecRequest{
		TargetDir: targetDir,
		WorkDir:   workDir,
		Command:   command,
		Shell:     shellMode,
		OnLocked: func(string) {
			heartbeat.Stop()
		},
	})
	heartbeat.Stop()
	if err != nil {
		return err
	}

	if !quiet {
		printSummary(
			fmt.Sprintf("Lock file:  %s", execution.LockPath),
			fmt.Sprintf("Work dir:   %s", execution.WorkDir),
			fmt.Sprintf("Waited:     %s", formatDuration(execution.WaitDuration)),
			fmt.Sprintf("Ran:        %s", formatDuration(execution.RunDuration)),
			fmt.Sprintf("Exit code:  %d", execution.ExitCode),
		)
	}

	switch {
	case execution.ExitCode == 0:
		return nil
	case execution.ExitCode < 0:
		// Killed by a signal.
		return &exitError{code: 1}
	default:
		return &exitError{code: execution.ExitCode}
	}
}
