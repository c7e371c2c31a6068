// Package capture runs the catalog compiler and records its standard output.
//
// Standard output is written to a run-scoped file and is complete before Run
// returns; nothing downstream reads it while the compiler is still running.
// Standard error is passed through to the configured writer.
//
// A non-zero compiler exit is an operational outcome and is reported through
// Result.ExitCode, not as an error. Errors are reserved for a compiler that
// could not be started (ErrCodeCaptureProcess) or that exceeded its timeout
// (ErrCodeCaptureTimeout).
package capture

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/catalogsnap/catalogsnap/pkg/command"
	"github.com/catalogsnap/catalogsnap/pkg/defaults"
	cserrors "github.com/catalogsnap/catalogsnap/pkg/errors"
)

// Runner executes compiler commands.
type Runner struct {
	// Stderr receives the compiler's standard error. Defaults to os.Stderr.
	Stderr io.Writer

	// OutputDir holds raw output files. Defaults to the system temp dir.
	OutputDir string

	// Timeout bounds a run. Zero means no bound.
	Timeout time.Duration
}

// Result describes one finished compiler run.
type Result struct {
	// ExitCode is the compiler's exit status.
	ExitCode int

	// OutputPath is the file holding the compiler's standard output.
	OutputPath string

	// Duration is the wall time of the run.
	Duration time.Duration
}

// Succeeded reports whether the compiler exited with status zero.
func (r *Result) Succeeded() bool {
	return r.ExitCode == 0
}

// Open opens the raw output for reading.
func (r *Result) Open() (*os.File, error) {
	// #nosec G304 -- path was created by Run.
	return os.Open(r.OutputPath)
}

// Remove deletes the raw output file.
func (r *Result) Remove() error {
	if err := os.Remove(r.OutputPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove raw output %q: %w", r.OutputPath, err)
	}
	return nil
}

// Run executes cmd, writing its standard output to a new file.
// On error no output file is left behind.
func (r *Runner) Run(ctx context.Context, cmd *command.Command) (*Result, error) {
	if cmd == nil || cmd.Name == "" {
		return nil, cserrors.New(cserrors.ErrCodeInternal, "command is empty")
	}

	out, err := os.CreateTemp(r.OutputDir, "catalog-*.out")
	if err != nil {
		return nil, cserrors.Wrap(cserrors.ErrCodeCaptureProcess, "failed to create raw output file", err)
	}
	outPath := out.Name()
	keep := false
	defer func() {
		if !keep {
			_ = os.Remove(outPath)
		}
	}()
	defer func() {
		_ = out.Close()
	}()

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	stderr := r.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	// #nosec G204 -- the command is an argv list built from validated input, no shell is involved.
	proc := exec.CommandContext(runCtx, cmd.Name, cmd.Args...)
	proc.Stdout = out
	proc.Stderr = stderr
	proc.WaitDelay = defaults.CaptureWaitDelay
	setProcessGroup(proc)

	slog.Debug("starting compiler",
		slog.String("command", cmd.String()),
		slog.String("output", outPath),
		slog.Duration("timeout", r.Timeout),
	)

	start := time.Now()
	if err := proc.Start(); err != nil {
		return nil, cserrors.WrapWithContext(cserrors.ErrCodeCaptureProcess,
			fmt.Sprintf("failed to start %q", cmd.Name), err, map[string]any{"command": cmd.String()})
	}

	waitErr := proc.Wait()
	elapsed := time.Since(start)

	exitCode, err := r.exitStatus(ctx, runCtx, waitErr, cmd)
	if err != nil {
		return nil, err
	}

	if err := out.Sync(); err != nil {
		return nil, cserrors.Wrap(cserrors.ErrCodeCaptureProcess, "failed to sync raw output", err)
	}

	slog.Debug("compiler finished",
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", elapsed),
	)

	keep = true
	return &Result{
		ExitCode:   exitCode,
		OutputPath: outPath,
		Duration:   elapsed,
	}, nil
}

// exitStatus interprets the result of Wait. A compiler that exited on its own
// keeps its status even if the deadline passed while it was exiting; only a
// run that did not finish cleanly is blamed on the deadline or cancellation.
func (r *Runner) exitStatus(ctx, runCtx context.Context, waitErr error, cmd *command.Command) (int, error) {
	if waitErr == nil {
		return 0, nil
	}

	if ctxErr := runCtx.Err(); ctxErr != nil {
		if stderrors.Is(ctxErr, context.DeadlineExceeded) && ctx.Err() == nil {
			return 0, cserrors.WrapWithContext(cserrors.ErrCodeCaptureTimeout,
				fmt.Sprintf("compiler did not finish within %s", r.Timeout), ctxErr,
				map[string]any{"command": cmd.String()})
		}
		return 0, fmt.Errorf("compiler run canceled: %w", ctxErr)
	}

	var exitErr *exec.ExitError
	if !stderrors.As(waitErr, &exitErr) {
		return 0, cserrors.Wrap(cserrors.ErrCodeCaptureProcess, "failed to wait for compiler", waitErr)
	}
	return exitErr.ExitCode(), nil
}
