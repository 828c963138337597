package xctest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/szaher/xcompanion/internal/session"
	"github.com/szaher/xcompanion/internal/target"
)

// MetaResultBundlePath is the session metadata key under which the runner
// records the path of a produced result bundle.
const MetaResultBundlePath = "result_bundle_path"

// Runner starts XCTest executions on a target. Its Start method is the
// session manager's StartFunc for xctest sessions.
type Runner struct {
	target  target.Target
	bundles target.BundleStorage
	scratch *target.TemporaryDirectory
	logger  *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates a runner bound to an execution target, bundle storage,
// and a scratch directory allocator.
func NewRunner(t target.Target, bundles target.BundleStorage, scratch *target.TemporaryDirectory, opts ...RunnerOption) *Runner {
	r := &Runner{
		target:  t,
		bundles: bundles,
		scratch: scratch,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start validates the request, resolves the bundle, and launches the run on
// its own goroutine. Validation and resolution failures are reported
// synchronously; everything after that surfaces through the recorder.
func (r *Runner) Start(ctx context.Context, rec *session.Recorder[Result], req RunRequest) (session.Operation, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrInvalidRequest, err)
	}
	bundlePath, err := r.bundles.PathForBundle(req.TestBundleID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrInvalidRequest, err)
	}
	workDir, err := r.scratch.New("run-")
	if err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	spec := target.RunSpec{
		Mode:        string(req.mode()),
		BundlePath:  bundlePath,
		AppBundleID: req.AppBundleID,
		TestsToRun:  req.TestsToRun,
		TestsToSkip: req.TestsToSkip,
		Environment: req.Environment,
		Arguments:   req.Arguments,
		WorkDir:     workDir,
	}

	// The run outlives the start request; only Cancel or the per-run
	// timeout stop it.
	base := context.WithoutCancel(ctx)
	var runCtx context.Context
	var cancel context.CancelFunc
	if req.TimeoutSec > 0 {
		runCtx, cancel = context.WithTimeout(base, time.Duration(req.TimeoutSec)*time.Second)
	} else {
		runCtx, cancel = context.WithCancel(base)
	}

	go r.run(runCtx, cancel, spec, rec)
	return &runOperation{cancel: cancel}, nil
}

func (r *Runner) run(ctx context.Context, cancel context.CancelFunc, spec target.RunSpec, rec *session.Recorder[Result]) {
	defer cancel()

	out := &recorderOutput{rec: rec, logger: r.logger}
	err := r.target.Run(ctx, spec, out)

	resultBundle := target.ResultBundlePath(spec.WorkDir)
	if _, statErr := os.Stat(resultBundle); statErr == nil {
		rec.SetMeta(MetaResultBundlePath, resultBundle)
	}
	rec.Complete(err)
}

// runOperation adapts the run context to the session Operation contract.
type runOperation struct {
	cancel context.CancelFunc
}

// Cancel signals the run to stop. The run goroutine observes the context,
// finishes, and completes the session on its own.
func (o *runOperation) Cancel(ctx context.Context) error {
	o.cancel()
	return nil
}

// recorderOutput translates target output into recorder calls.
type recorderOutput struct {
	rec    *session.Recorder[Result]
	logger *slog.Logger
}

func (o *recorderOutput) Result(line []byte) {
	var res Result
	if err := json.Unmarshal(line, &res); err != nil {
		o.logger.Warn("dropping malformed result line", "error", err)
		return
	}
	o.rec.AppendResults(res)
}

func (o *recorderOutput) Write(p []byte) (int, error) {
	return o.rec.Write(p)
}
