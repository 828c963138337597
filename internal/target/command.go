package target

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// CommandTarget runs test bundles through an external runner command. The
// runner receives the run description in its environment, writes one JSON
// result per line on stdout, and free-form log output on stderr.
type CommandTarget struct {
	command string
	args    []string
	logger  *slog.Logger
}

// CommandTargetOption configures a CommandTarget.
type CommandTargetOption func(*CommandTarget)

// WithCommandLogger sets the logger.
func WithCommandLogger(logger *slog.Logger) CommandTargetOption {
	return func(t *CommandTarget) { t.logger = logger }
}

// NewCommandTarget creates a target that shells out to command.
func NewCommandTarget(command string, args []string, opts ...CommandTargetOption) *CommandTarget {
	t := &CommandTarget{
		command: command,
		args:    args,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run executes the runner command for the spec, pumping stdout result lines
// and stderr log output into out until the process exits.
func (t *CommandTarget) Run(ctx context.Context, spec RunSpec, out Output) error {
	args := append(append([]string(nil), t.args...), spec.Arguments...)
	cmd := exec.CommandContext(ctx, t.command, args...)
	cmd.Dir = spec.WorkDir

	// Minimal environment; the run description travels in XCTEST_* vars.
	env := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"XCTEST_MODE=" + spec.Mode,
		"XCTEST_BUNDLE_PATH=" + spec.BundlePath,
		"XCTEST_RESULT_BUNDLE_PATH=" + ResultBundlePath(spec.WorkDir),
	}
	if spec.AppBundleID != "" {
		env = append(env, "XCTEST_APP_BUNDLE_ID="+spec.AppBundleID)
	}
	if len(spec.TestsToRun) > 0 {
		env = append(env, "XCTEST_TESTS_TO_RUN="+strings.Join(spec.TestsToRun, ","))
	}
	if len(spec.TestsToSkip) > 0 {
		env = append(env, "XCTEST_TESTS_TO_SKIP="+strings.Join(spec.TestsToSkip, ","))
	}
	for k, v := range spec.Environment {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start test runner: %w", err)
	}
	t.logger.Debug("test runner started", "command", t.command, "pid", cmd.Process.Pid)

	var g errgroup.Group
	g.Go(func() error {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			out.Result(append([]byte(nil), line...))
		}
		return scanner.Err()
	})
	g.Go(func() error {
		buf := make([]byte, 32*1024)
		for {
			n, err := stderr.Read(buf)
			if n > 0 {
				if _, werr := out.Write(buf[:n]); werr != nil {
					return werr
				}
			}
			if err != nil {
				return nil // pipe closed with the process
			}
		}
	})

	pumpErr := g.Wait()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return fmt.Errorf("test runner: %w", ctx.Err())
	}
	if waitErr != nil {
		return fmt.Errorf("test runner exited: %w", waitErr)
	}
	return pumpErr
}

// ResultBundlePath is where a runner is told to place the result bundle for
// a run rooted at workDir.
func ResultBundlePath(workDir string) string {
	return filepath.Join(workDir, "result.xcresult")
}
