// Package usecase provides application-level orchestration for CLI workflows.
package usecase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dirlock/pkg/dirlock"
	"dirlock/pkg/filelock"
	"dirlock/pkg/safepath"
)

// Environment variables set for commands run by RunExec.
const (
	EnvDir      = "DIRLOCK_DIR"
	EnvLockFile = "DIRLOCK_LOCK_FILE"
)

var (
	errNoCommand  = errors.New("no command given")
	errNoLockFile = errors.New("filesystem root has no lock file")
)

// Options configures a Service.
type Options struct {
	Logger   zerolog.Logger
	Observer dirlock.Observer
	Shell    string
	Stdin    io.Reader
	Stdout   io.Writer
	Stderr   io.Writer
}

// Service orchestrates command workflows without Cobra dependencies.
type Service struct {
	logger   zerolog.Logger
	observer dirlock.Observer
	shell    string
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
}

// New creates a use-case service. Nil streams default to the process's own.
func New(opts Options) *Service {
	s := &Service{
		logger:   opts.Logger.With().Str("component", "usecase").Logger(),
		observer: opts.Observer,
		shell:    opts.Shell,
		stdin:    opts.Stdin,
		stdout:   opts.Stdout,
		stderr:   opts.Stderr,
	}
	if s.stdin == nil {
		s.stdin = os.Stdin
	}
	if s.stdout == nil {
		s.stdout = os.Stdout
	}
	if s.stderr == nil {
		s.stderr = os.Stderr
	}

	return s
}

// ExecRequest contains inputs for the exec workflow.
type ExecRequest struct {
	TargetDir string
	// WorkDir is resolved inside the target directory; empty means its root.
	WorkDir string
	Command []string
	// Shell runs Command joined with spaces through the configured shell.
	Shell bool
	// OnLocked is called once both lock layers are held, before the command
	// starts.
	OnLocked func(rootDir string)
}

// ExecExecution contains exec workflow outputs.
type ExecExecution struct {
	RootDir      string
	LockPath     string
	WorkDir      string
	ExitCode     int
	WaitDuration time.Duration
	RunDuration  time.Duration
}

// RunExec runs a command while holding the directory lock. A command that
// runs and exits non-zero is reported through ExitCode, not as an error.
func (s *Service) RunExec(req ExecRequest) (ExecExecution, error) {
	if len(req.Command) == 0 {
		return ExecExecution{}, errNoCommand
	}

	d, err := dirlock.Open(req.TargetDir, s.dirOptions()...)
	if err != nil {
		return ExecExecution{}, fmt.Errorf("cannot lock directory: %w", err)
	}
	defer func() {
		if closeErr := d.Close(); closeErr != nil {
			s.logger.Warn().Err(closeErr).Str("dir", d.Path()).Msg("closing directory lock failed")
		}
	}()

	execution := ExecExecution{
		RootDir:  d.Path(),
		LockPath: d.LockPath(),
	}

	startTime := time.Now()
	exitCode, err := dirlock.Batch(d, func(root string) (int, error) {
		execution.WaitDuration = time.Since(startTime)
		if req.OnLocked != nil {
			req.OnLocked(root)
		}

		validator, err := safepath.New(root)
		if err != nil {
			return 0, fmt.Errorf("cannot create path validator: %w", err)
		}
		workDir, err := validator.ResolveDir(req.WorkDir)
		if err != nil {
			return 0, fmt.Errorf("working directory must stay within target directory: %w", err)
		}
		execution.WorkDir = workDir

		cmd := s.command(req)
		cmd.Dir = workDir
		cmd.Env = append(os.Environ(), EnvDir+"="+root, EnvLockFile+"="+execution.LockPath)
		cmd.Stdin = s.stdin
		cmd.Stdout = s.stdout
		cmd.Stderr = s.stderr

		runStart := time.Now()
		runErr := cmd.Run()
		execution.RunDuration = time.Since(runStart)

		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		if runErr != nil {
			return 0, fmt.Errorf("run command: %w", runErr)
		}

		return 0, nil
	})
	if err != nil {
		return execution, err
	}
	execution.ExitCode = exitCode

	s.logger.Info().
		Str("dir", execution.RootDir).
		Int("exit_code", exitCode).
		Dur("wait", execution.WaitDuration).
		Dur("run", execution.RunDuration).
		Msg("command finished")

	return execution, nil
}

func (s *Service) dirOptions() []dirlock.Option {
	opts := []dirlock.Option{dirlock.WithLogger(s.logger)}
	if s.observer != nil {
		opts = append(opts, dirlock.WithObserver(s.observer))
	}

	return opts
}

func (s *Service) command(req ExecRequest) *exec.Cmd {
	if !req.Shell {
		return exec.Command(req.Command[0], req.Command[1:]...)
	}

	script := strings.Join(req.Command, " ")
	switch strings.ToLower(strings.TrimSuffix(filepath.Base(s.shell), ".exe")) {
	case "cmd":
		return exec.Command(s.shell, "/C", script)
	default:
		return exec.Command(s.shell, "-c", script)
	}
}

// LockPath returns the canonical form of targetDir and the path of its lock
// file. Neither is created.
func (s *Service) LockPath(targetDir string) (rootDir, lockPath string, err error) {
	return resolveLockPath(targetDir)
}

func resolveLockPath(targetDir string) (string, string, error) {
	validator, err := safepath.New(targetDir)
	if err != nil {
		return "", "", fmt.Errorf("cannot lock directory: %w",
			&dirlock.NotDirectoryError{Path: targetDir, Err: err})
	}

	lockPath := dirlock.LockPath(validator.Root())
	if lockPath == "" {
		return "", "", fmt.Errorf("cannot lock directory %s: %w", validator.Root(), errNoLockFile)
	}

	return validator.Root(), lockPath, nil
}

// StatusRequest contains inputs for the status workflow.
type StatusRequest struct {
	TargetDir string
}

// StatusExecution contains status workflow outputs.
type StatusExecution struct {
	RootDir        string
	LockPath       string
	LockFileExists bool
	// Held reports whether some holder owned the lock when it was probed.
	Held bool
}

// RunStatus reports whether the directory lock is currently held. The probe
// takes and immediately releases the lock without blocking, and never
// creates a missing lock file.
func (s *Service) RunStatus(req StatusRequest) (StatusExecution, error) {
	rootDir, lockPath, err := resolveLockPath(req.TargetDir)
	if err != nil {
		return StatusExecution{}, err
	}

	execution := StatusExecution{
		RootDir:  rootDir,
		LockPath: lockPath,
	}

	if _, err := os.Stat(execution.LockPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return execution, nil
		}
		return StatusExecution{}, fmt.Errorf("cannot access lock file: %w", err)
	}
	execution.LockFileExists = true

	probe, err := filelock.Acquire(execution.LockPath)
	switch {
	case errors.Is(err, filelock.ErrLocked):
		execution.Held = true
	case err != nil:
		return StatusExecution{}, fmt.Errorf("cannot probe lock: %w", err)
	default:
		if closeErr := probe.Close(); closeErr != nil {
			return StatusExecution{}, fmt.Errorf("cannot release probe lock: %w", closeErr)
		}
	}

	s.logger.Debug().
		Str("dir", execution.RootDir).
		Bool("held", execution.Held).
		Msg("lock status probed")

	return execution, nil
}
