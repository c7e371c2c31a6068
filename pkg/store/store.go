// Package store keeps catalog snapshots on disk, per host.
//
// Layout under the store root:
//
//	json/<host>.json          current snapshot (canonical form)
//	json/<host>.json.tmp      incoming snapshot, not yet promoted
//	json/<host>.lock          advisory lock held during a capture
//	pretty/<host>.txt.<ts>    rendering of every capture, never overwritten
//
// The current snapshot is only ever replaced by renaming the incoming file
// over it, so a reader never sees a partially written current snapshot and
// a failed capture leaves the previous one in place.
package store

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/catalogsnap/catalogsnap/pkg/catalog"
	"github.com/catalogsnap/catalogsnap/pkg/defaults"
	cserrors "github.com/catalogsnap/catalogsnap/pkg/errors"
)

const (
	canonicalDirName = "json"
	prettyDirName    = "pretty"

	currentSuffix  = ".json"
	incomingSuffix = ".json.tmp"
	lockSuffix     = ".lock"
	prettyInfix    = ".txt."

	dirMode  = 0o755
	fileMode = 0o644

	defaultLockTimeout = defaults.LockTimeout

	// attempts at finding a free rendering timestamp before giving up
	maxRenderingAttempts = 1000
)

// ErrNoSnapshot is returned when a host has no current snapshot.
var ErrNoSnapshot = stderrors.New("no snapshot")

// Store is a snapshot store rooted at a directory.
type Store struct {
	root        string
	lockTimeout time.Duration
	lockRefresh time.Duration

	now    func() time.Time
	rename func(oldpath, newpath string) error
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout sets how long Lock waits for another capture of the same host.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithClock overrides the time source used for rendering timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a store rooted at root. Nothing is created until first use.
func New(root string, opts ...Option) *Store {
	s := &Store{
		root:        root,
		lockTimeout: defaultLockTimeout,
		lockRefresh: defaults.LockRefreshInterval,
		now:         time.Now,
		rename:      os.Rename,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the store root.
func (s *Store) Root() string { return s.root }

// CanonicalDir returns the directory holding canonical snapshots.
func (s *Store) CanonicalDir() string { return filepath.Join(s.root, canonicalDirName) }

// PrettyDir returns the directory holding renderings.
func (s *Store) PrettyDir() string { return filepath.Join(s.root, prettyDirName) }

// CurrentPath returns the current snapshot path for host.
func (s *Store) CurrentPath(host string) string {
	return filepath.Join(s.CanonicalDir(), host+currentSuffix)
}

// IncomingPath returns the incoming snapshot path for host.
func (s *Store) IncomingPath(host string) string {
	return filepath.Join(s.CanonicalDir(), host+incomingSuffix)
}

func (s *Store) lockPath(host string) string {
	return filepath.Join(s.CanonicalDir(), host+lockSuffix)
}

// Init creates the store directories. Existing directories are fine.
func (s *Store) Init() error {
	for _, dir := range []string{s.CanonicalDir(), s.PrettyDir()} {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return cserrors.WrapWithContext(cserrors.ErrCodeStore, "failed to create store directory", err,
				map[string]any{"path": dir})
		}
	}
	return nil
}

// Written describes the files produced by WriteIncoming.
type Written struct {
	// IncomingPath is the canonical snapshot awaiting promotion.
	IncomingPath string

	// RenderingPath is the human-readable rendering.
	RenderingPath string
}

// WriteIncoming stores snap as the incoming snapshot for its host and adds a
// new rendering to the host's history.
func (s *Store) WriteIncoming(snap *catalog.Snapshot) (*Written, error) {
	if snap == nil || snap.Host == "" {
		return nil, cserrors.New(cserrors.ErrCodeInternal, "snapshot without host")
	}
	if err := s.Init(); err != nil {
		return nil, err
	}

	incoming := s.IncomingPath(snap.Host)
	if err := writeFileAtomic(incoming, snap.Canonical(), fileMode, s.rename); err != nil {
		return nil, cserrors.WrapWithContext(cserrors.ErrCodeStore, "failed to write incoming snapshot", err,
			map[string]any{"host": snap.Host, "path": incoming})
	}

	rendering, err := snap.Render()
	if err != nil {
		return nil, cserrors.Wrap(cserrors.ErrCodeInternal, "failed to render snapshot", err)
	}

	prettyPath, err := s.writeRendering(snap.Host, rendering)
	if err != nil {
		return nil, err
	}

	slog.Debug("wrote incoming snapshot",
		slog.String("host", snap.Host),
		slog.String("incoming", incoming),
		slog.String("rendering", prettyPath),
	)

	return &Written{IncomingPath: incoming, RenderingPath: prettyPath}, nil
}

func (s *Store) writeRendering(host string, content []byte) (string, error) {
	ts := s.now()
	for attempt := 0; attempt < maxRenderingAttempts; attempt++ {
		path := filepath.Join(s.PrettyDir(), host+prettyInfix+formatTimestamp(ts))
		err := writeFileExclusive(path, content, fileMode)
		if err == nil {
			return path, nil
		}
		if !os.IsExist(err) {
			return "", cserrors.WrapWithContext(cserrors.ErrCodeStore, "failed to write rendering", err,
				map[string]any{"host": host, "path": path})
		}
		ts = ts.Add(time.Nanosecond)
	}
	return "", cserrors.New(cserrors.ErrCodeStore, fmt.Sprintf("no free rendering name for host %s", host))
}

// Promote makes the incoming snapshot for host the current one with a single
// rename. It succeeds when host has no current snapshot yet. On failure the
// incoming snapshot is left in place.
func (s *Store) Promote(host string) error {
	incoming := s.IncomingPath(host)
	current := s.CurrentPath(host)

	if _, err := os.Stat(incoming); err != nil {
		return cserrors.WrapWithContext(cserrors.ErrCodeStore, "no incoming snapshot to promote", err,
			map[string]any{"host": host, "path": incoming})
	}

	if err := s.rename(incoming, current); err != nil {
		return cserrors.WrapWithContext(cserrors.ErrCodeStore, "failed to promote incoming snapshot", err,
			map[string]any{"host": host, "incoming": incoming, "current": current})
	}
	syncDirectory(s.CanonicalDir())

	slog.Debug("promoted snapshot", slog.String("host", host), slog.String("path", current))
	return nil
}

// Current loads the current snapshot for host. It returns an error wrapping
// ErrNoSnapshot when there is none.
func (s *Store) Current(host string) (*catalog.Snapshot, error) {
	return Load(host, s.CurrentPath(host))
}

// Load reads a snapshot file: canonical, rendered, or raw compiler output.
// A missing file yields ErrNoSnapshot.
func Load(host, path string) (*catalog.Snapshot, error) {
	// #nosec G304 -- path is a store path or an explicit user-provided snapshot file.
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNoSnapshot)
		}
		return nil, cserrors.WrapWithContext(cserrors.ErrCodeStore, "failed to read snapshot", err,
			map[string]any{"path": path})
	}

	var modTime time.Time
	if info, statErr := os.Stat(path); statErr == nil {
		modTime = info.ModTime()
	}

	// Whole-file documents (canonical or rendered) parse directly; anything
	// else is treated as raw compiler output.
	doc := bytes.TrimSpace(data)
	if !json.Valid(doc) {
		if doc, err = catalog.LastLine(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", path, err)
		}
	}
	snap, err := catalog.Parse(host, doc, modTime)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	return snap, nil
}

// Hosts lists hosts that have a current snapshot, sorted.
func (s *Store) Hosts() ([]string, error) {
	entries, err := os.ReadDir(s.CanonicalDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, cserrors.Wrap(cserrors.ErrCodeStore, "failed to list snapshots", err)
	}

	var hosts []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, currentSuffix) {
			continue
		}
		hosts = append(hosts, strings.TrimSuffix(name, currentSuffix))
	}
	sort.Strings(hosts)
	return hosts, nil
}

// Rendering is one entry in a host's capture history.
type Rendering struct {
	Path       string    `json:"path" yaml:"path"`
	CapturedAt time.Time `json:"capturedAt" yaml:"capturedAt"`
}

// History lists the renderings stored for host, oldest first.
func (s *Store) History(host string) ([]Rendering, error) {
	pattern := filepath.Join(s.PrettyDir(), host+prettyInfix+"*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, cserrors.Wrap(cserrors.ErrCodeStore, "failed to list renderings", err)
	}

	prefix := host + prettyInfix
	history := make([]Rendering, 0, len(matches))
	for _, m := range matches {
		ts, ok := parseTimestamp(strings.TrimPrefix(filepath.Base(m), prefix))
		if !ok {
			continue
		}
		history = append(history, Rendering{Path: m, CapturedAt: ts})
	}

	sort.Slice(history, func(i, j int) bool {
		return history[i].CapturedAt.Before(history[j].CapturedAt)
	})
	return history, nil
}

// formatTimestamp renders t as "<unix seconds>.<nanoseconds>".
func formatTimestamp(t time.Time) string {
	return fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
}

func parseTimestamp(s string) (time.Time, bool) {
	secPart, nsecPart, ok := strings.Cut(s, ".")
	if !ok {
		return time.Time{}, false
	}
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	nsec, err := strconv.ParseInt(nsecPart, 10, 64)
	if err != nil || nsec < 0 || nsec >= int64(time.Second) {
		return time.Time{}, false
	}
	return time.Unix(sec, nsec), true
}
