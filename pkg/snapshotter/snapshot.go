package snapshotter

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/catalogsnap/catalogsnap/pkg/capture"
	"github.com/catalogsnap/catalogsnap/pkg/catalog"
	"github.com/catalogsnap/catalogsnap/pkg/command"
	"github.com/catalogsnap/catalogsnap/pkg/diff"
	cserrors "github.com/catalogsnap/catalogsnap/pkg/errors"
	"github.com/catalogsnap/catalogsnap/pkg/header"
	"github.com/catalogsnap/catalogsnap/pkg/manifest"
	"github.com/catalogsnap/catalogsnap/pkg/request"
	"github.com/catalogsnap/catalogsnap/pkg/store"

	"golang.org/x/sync/errgroup"
)

// Result describes one capture.
type Result struct {
	header.Header `json:",inline" yaml:",inline"`

	Host string `json:"host" yaml:"host"`

	// Command is the compiler command line that was executed.
	Command string `json:"command,omitempty" yaml:"command,omitempty"`

	// ExitCode is the compiler's exit status.
	ExitCode int `json:"exitCode" yaml:"exitCode"`

	// Report is the comparison with the previous snapshot. Nil when nothing
	// was stored.
	Report *diff.Report `json:"report,omitempty" yaml:"report,omitempty"`

	CurrentPath   string `json:"currentPath,omitempty" yaml:"currentPath,omitempty"`
	RenderingPath string `json:"renderingPath,omitempty" yaml:"renderingPath,omitempty"`

	// RawOutputPath is set when the compiler output could not be parsed and
	// was kept for diagnosis.
	RawOutputPath string `json:"rawOutputPath,omitempty" yaml:"rawOutputPath,omitempty"`

	Promoted bool          `json:"promoted" yaml:"promoted"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

func newResult(host string, capturedAt time.Time, version string) *Result {
	h := header.New(
		header.WithType(Kind, FullAPIVersion),
		header.WithRunID(),
		header.WithCapturedAt(capturedAt),
		header.WithToolVersion(version),
	)
	return &Result{
		Header: *h,
		Host:   host,
	}
}

// String renders the result as text.
func (r *Result) String() string {
	var b strings.Builder
	switch {
	case r.RawOutputPath != "":
		fmt.Fprintf(&b, "%s: compiler output could not be parsed, kept at %s\n", r.Host, r.RawOutputPath)
	case r.ExitCode != 0:
		fmt.Fprintf(&b, "%s: compiler exited with status %d\n", r.Host, r.ExitCode)
	case r.Report != nil:
		b.WriteString(r.Report.String())
	}
	if r.Command != "" {
		fmt.Fprintf(&b, "command: %s\n", r.Command)
	}
	return b.String()
}

// CatalogSnapshotter captures catalogs and records them in a snapshot store.
type CatalogSnapshotter struct {
	// Stderr receives the compiler's standard error. If nil, os.Stderr is used.
	Stderr io.Writer

	// Output receives the rendering when the request has no store.
	// If nil, os.Stdout is used.
	Output io.Writer

	// ManifestDir holds ephemeral manifests. If empty, the system temp dir is used.
	ManifestDir string

	// OutputDir holds raw compiler output. If empty, the system temp dir is used.
	OutputDir string

	// StoreOptions are passed to every store the snapshotter opens.
	StoreOptions []store.Option

	// Now is the capture clock. If nil, time.Now is used.
	Now func() time.Time

	// Version is recorded in each result's metadata when set.
	Version string

	outMu sync.Mutex
}

// Capture validates req, runs the compiler and, when req has a store, writes
// the snapshot, compares it with the current one and promotes it.
//
// A compiler that exits non-zero is not an error: the status is returned in
// Result.ExitCode and the current snapshot is left untouched. When the output
// cannot be parsed the returned Result carries the raw output path alongside
// a MALFORMED_OUTPUT error.
func (c *CatalogSnapshotter) Capture(ctx context.Context, req *request.Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("starting catalog capture",
		slog.String("host", req.Host()),
		slog.String("source", string(command.ResolveSource(req))),
	)

	start := time.Now()
	defer func() {
		captureDuration.Observe(time.Since(start).Seconds())
	}()

	var st *store.Store
	if req.HasStore() {
		st = store.New(req.StoreDir(), c.StoreOptions...)
		if err := st.Init(); err != nil {
			captureTotal.WithLabelValues(statusError).Inc()
			return nil, err
		}
		unlock, err := st.Lock(ctx, req.Host())
		if err != nil {
			captureTotal.WithLabelValues(statusError).Inc()
			return nil, err
		}
		defer func() {
			if err := unlock(); err != nil {
				slog.Warn("failed to release store lock", slog.String("host", req.Host()), slog.String("error", err.Error()))
			}
		}()
	}

	var classManifest string
	if command.ResolveSource(req) == command.SourceClass {
		eph, err := manifest.Write(c.ManifestDir, req.Host(), req.ClassName())
		if err != nil {
			captureTotal.WithLabelValues(statusError).Inc()
			return nil, err
		}
		defer func() {
			if err := eph.Close(); err != nil {
				slog.Warn("failed to remove ephemeral manifest", slog.String("error", err.Error()))
			}
		}()
		classManifest = eph.Path()
	}

	cmd, err := command.Build(req, classManifest)
	if err != nil {
		captureTotal.WithLabelValues(statusError).Inc()
		return nil, err
	}

	if path, ok := cmd.Flag("--manifest"); ok {
		slog.Debug("compiling manifest", slog.String("host", req.Host()), slog.String("manifest", path))
	}

	result := newResult(req.Host(), c.now(), c.Version)
	result.Command = cmd.String()

	runner := &capture.Runner{
		Stderr:    c.Stderr,
		OutputDir: c.OutputDir,
		Timeout:   req.Timeout(),
	}
	run, err := runner.Run(ctx, cmd)
	if err != nil {
		captureTotal.WithLabelValues(failureStatus(err)).Inc()
		return nil, err
	}
	result.ExitCode = run.ExitCode
	result.Duration = run.Duration

	if !run.Succeeded() {
		captureTotal.WithLabelValues(statusCompilerFailed).Inc()
		slog.Warn("compiler failed, current snapshot left untouched",
			slog.String("host", req.Host()),
			slog.Int("exit_code", run.ExitCode),
		)
		if err := run.Remove(); err != nil {
			slog.Warn("failed to remove raw output", slog.String("error", err.Error()))
		}
		return result, nil
	}

	snap, err := c.parse(req.Host(), run)
	if err != nil {
		captureTotal.WithLabelValues(statusMalformed).Inc()
		result.RawOutputPath = run.OutputPath
		slog.Error("compiler output is not a catalog",
			slog.String("host", req.Host()),
			slog.String("raw_output", run.OutputPath),
			slog.String("error", err.Error()),
		)
		return result, cserrors.WrapWithContext(cserrors.ErrCodeMalformedOutput,
			"catalog not stored", err, map[string]any{"host": req.Host(), "raw_output": run.OutputPath})
	}
	if err := run.Remove(); err != nil {
		slog.Warn("failed to remove raw output", slog.String("error", err.Error()))
	}

	if st == nil {
		if err := c.print(snap); err != nil {
			captureTotal.WithLabelValues(statusError).Inc()
			return result, err
		}
		captureTotal.WithLabelValues(statusSuccess).Inc()
		return result, nil
	}

	if err := c.record(st, snap, result); err != nil {
		captureTotal.WithLabelValues(statusError).Inc()
		return result, err
	}

	captureTotal.WithLabelValues(statusSuccess).Inc()
	slog.Debug("catalog capture complete",
		slog.String("host", req.Host()),
		slog.String("outcome", string(result.Report.Outcome)),
		slog.Int("changes", len(result.Report.Changes)),
	)
	return result, nil
}

func (c *CatalogSnapshotter) parse(host string, run *capture.Result) (*catalog.Snapshot, error) {
	f, err := run.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open raw output: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return catalog.FromOutput(host, f, c.now())
}

// record writes snap as incoming, compares it with the current snapshot and
// promotes it. Promotion happens whatever the comparison finds.
func (c *CatalogSnapshotter) record(st *store.Store, snap *catalog.Snapshot, result *Result) error {
	written, err := st.WriteIncoming(snap)
	if err != nil {
		return err
	}
	result.RenderingPath = written.RenderingPath

	prev, err := st.Current(snap.Host)
	switch {
	case err == nil:
	case stderrors.Is(err, store.ErrNoSnapshot):
		prev = nil
	case cserrors.HasCode(err, cserrors.ErrCodeMalformedOutput):
		slog.Warn("current snapshot is unreadable, comparing against nothing",
			slog.String("host", snap.Host),
			slog.String("error", err.Error()),
		)
		prev = nil
	default:
		return err
	}

	result.Report = diff.Compare(prev, snap)
	catalogChanges.WithLabelValues(snap.Host).Set(float64(len(result.Report.Changes)))

	if err := st.Promote(snap.Host); err != nil {
		promotionTotal.WithLabelValues(statusError).Inc()
		return err
	}
	promotionTotal.WithLabelValues(statusSuccess).Inc()

	result.Promoted = true
	result.CurrentPath = st.CurrentPath(snap.Host)
	return nil
}

func (c *CatalogSnapshotter) print(snap *catalog.Snapshot) error {
	rendering, err := snap.Render()
	if err != nil {
		return cserrors.Wrap(cserrors.ErrCodeInternal, "failed to render snapshot", err)
	}

	out := c.Output
	if out == nil {
		out = os.Stdout
	}

	c.outMu.Lock()
	defer c.outMu.Unlock()
	if _, err := out.Write(rendering); err != nil {
		return fmt.Errorf("failed to write rendering: %w", err)
	}
	return nil
}

// failureStatus maps a capture error to its capture_total status label.
func failureStatus(err error) string {
	switch cserrors.CodeOf(err) {
	case cserrors.ErrCodeCaptureTimeout:
		return statusTimeout
	case cserrors.ErrCodeMalformedOutput:
		return statusMalformed
	default:
		return statusError
	}
}

func (c *CatalogSnapshotter) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// CaptureAll captures every request, at most limit at a time (no limit when
// limit is below one). A failed host does not stop the others; results are in
// request order and the returned error joins every failure.
func CaptureAll(ctx context.Context, s Snapshotter, reqs []*request.Request, limit int) ([]*Result, error) {
	results := make([]*Result, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, req := range reqs {
		g.Go(func() error {
			res, err := s.Capture(ctx, req)
			results[i] = res
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", req.Host(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, stderrors.Join(errs...)
}
