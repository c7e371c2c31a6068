// Package manifest writes the throwaway site manifest used when a single class
// is compiled for a node instead of a manifest directory or class file.
package manifest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	cserrors "github.com/catalogsnap/catalogsnap/pkg/errors"
	"github.com/google/uuid"
)

var (
	// Puppet class names: lowercase segments separated by "::", optional top-scope prefix.
	classNamePattern = regexp.MustCompile(`^(::)?[a-z][a-z0-9_]*(::[a-z][a-z0-9_]*)*$`)

	// Node names end up unquoted in a node block, so anything that could close
	// the block or start a string is rejected.
	hostPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// ValidateClassName reports whether name can be used in an include statement.
func ValidateClassName(name string) error {
	if !classNamePattern.MatchString(name) {
		return fmt.Errorf("class name %q is not a valid puppet class name", name)
	}
	return nil
}

// ValidateHost reports whether host can be used as a node name.
func ValidateHost(host string) error {
	if !hostPattern.MatchString(host) {
		return fmt.Errorf("host %q is not a valid node name", host)
	}
	return nil
}

// Render returns the manifest text declaring a node block for host that includes class.
func Render(host, class string) string {
	return fmt.Sprintf("node %s {\n\tinclude %s\n}\n", host, class)
}

// Ephemeral is a manifest file that exists only for the duration of one capture.
type Ephemeral struct {
	path string
}

// Path returns the manifest location.
func (e *Ephemeral) Path() string {
	return e.path
}

// Close removes the manifest. It is safe to call more than once.
func (e *Ephemeral) Close() error {
	if e == nil || e.path == "" {
		return nil
	}
	if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove manifest %q: %w", e.path, err)
	}
	slog.Debug("removed ephemeral manifest", slog.String("path", e.path))
	e.path = ""
	return nil
}

// Write creates an ephemeral manifest for host including class inside dir
// (the system temp dir when dir is empty). The file name carries the process
// id and a random token so concurrent runs never share a manifest.
// Callers must Close the result.
func Write(dir, host, class string) (*Ephemeral, error) {
	if err := ValidateHost(host); err != nil {
		return nil, cserrors.Wrap(cserrors.ErrCodeValidation, "invalid manifest host", err)
	}
	if err := ValidateClassName(class); err != nil {
		return nil, cserrors.Wrap(cserrors.ErrCodeValidation, "invalid manifest class", err)
	}

	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}

	name := fmt.Sprintf("site.pp.%d.%s", os.Getpid(), uuid.NewString())
	path := filepath.Join(dir, name)

	// #nosec G304 -- path is built from a caller-provided directory and a generated name.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, cserrors.WrapWithContext(cserrors.ErrCodeManifestWrite,
			"failed to create ephemeral manifest", err, map[string]any{"path": path})
	}

	if _, err := f.WriteString(Render(host, class)); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, cserrors.WrapWithContext(cserrors.ErrCodeManifestWrite,
			"failed to write ephemeral manifest", err, map[string]any{"path": path})
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, cserrors.WrapWithContext(cserrors.ErrCodeManifestWrite,
			"failed to close ephemeral manifest", err, map[string]any{"path": path})
	}

	slog.Debug("wrote ephemeral manifest",
		slog.String("path", path),
		slog.String("host", host),
		slog.String("class", class),
	)

	return &Ephemeral{path: path}, nil
}
