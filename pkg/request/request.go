package request

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/catalogsnap/catalogsnap/pkg/defaults"
	cserrors "github.com/catalogsnap/catalogsnap/pkg/errors"
	"github.com/catalogsnap/catalogsnap/pkg/manifest"
)

const (
	// DefaultVarDir is the compiler var directory used when none is given.
	DefaultVarDir = "/var/puppet/"

	// DefaultCompiler is the compiler binary looked up on PATH.
	DefaultCompiler = "puppet"

	// DefaultTimeout bounds a single compiler run.
	DefaultTimeout = defaults.CaptureTimeout
)

// Request is the validated input of one catalog capture.
// It is immutable after creation; read it through its getters.
type Request struct {
	host          string
	className     string
	classListPath string
	manifestDir   string
	moduleDir     string
	varDir        string
	storeDir      string
	compiler      string
	timeout       time.Duration
}

// Option configures a Request.
type Option func(*Request)

// WithHost sets the node name the catalog is compiled for.
func WithHost(host string) Option {
	return func(r *Request) { r.host = strings.TrimSpace(host) }
}

// WithClassName requests an ad-hoc manifest that includes a single class.
func WithClassName(name string) Option {
	return func(r *Request) { r.className = strings.TrimSpace(name) }
}

// WithClassListPath sets a manifest file listing the classes to compile.
func WithClassListPath(path string) Option {
	return func(r *Request) { r.classListPath = path }
}

// WithManifestDir sets the manifest directory passed to the compiler.
func WithManifestDir(dir string) Option {
	return func(r *Request) { r.manifestDir = dir }
}

// WithModuleDir sets the modules path passed to the compiler.
func WithModuleDir(dir string) Option {
	return func(r *Request) { r.moduleDir = dir }
}

// WithVarDir sets the compiler var directory.
func WithVarDir(dir string) Option {
	return func(r *Request) { r.varDir = dir }
}

// WithStoreDir enables snapshot storage under dir.
func WithStoreDir(dir string) Option {
	return func(r *Request) { r.storeDir = dir }
}

// WithCompiler overrides the compiler binary.
func WithCompiler(bin string) Option {
	return func(r *Request) { r.compiler = bin }
}

// WithTimeout bounds the compiler run. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Request) { r.timeout = d }
}

// New returns a Request with defaults applied, then opts.
func New(opts ...Option) *Request {
	r := &Request{
		varDir:   DefaultVarDir,
		compiler: DefaultCompiler,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Host returns the target node name.
func (r *Request) Host() string { return r.host }

// ClassName returns the single class to compile, if any.
func (r *Request) ClassName() string { return r.className }

// ClassListPath returns the class list manifest, if any.
func (r *Request) ClassListPath() string { return r.classListPath }

// ManifestDir returns the manifest directory, if any.
func (r *Request) ManifestDir() string { return r.manifestDir }

// ModuleDir returns the modules path, if any.
func (r *Request) ModuleDir() string { return r.moduleDir }

// VarDir returns the compiler var directory.
func (r *Request) VarDir() string { return r.varDir }

// StoreDir returns the snapshot store root, if any.
func (r *Request) StoreDir() string { return r.storeDir }

// Compiler returns the compiler binary.
func (r *Request) Compiler() string { return r.compiler }

// Timeout returns the bound on a single compiler run.
func (r *Request) Timeout() time.Duration { return r.timeout }

// HasStore reports whether snapshots are persisted.
func (r *Request) HasStore() bool { return r.storeDir != "" }

// Validate checks every field and reports all problems at once.
// The returned error carries the problem list under the "problems" context key.
func (r *Request) Validate() error {
	var problems []string

	if r.varDir == "" || !isDir(r.varDir) {
		problems = append(problems, fmt.Sprintf("var dir %q does not exist", r.varDir))
	}

	if r.host == "" {
		problems = append(problems, "a host must be specified")
	} else if err := manifest.ValidateHost(r.host); err != nil {
		problems = append(problems, err.Error())
	}

	if r.storeDir != "" && !isDir(r.storeDir) {
		problems = append(problems, fmt.Sprintf("storage directory %q must exist", r.storeDir))
	}

	if r.moduleDir != "" && !isDir(r.moduleDir) {
		problems = append(problems, fmt.Sprintf("modules directory %q must exist", r.moduleDir))
	}

	if r.manifestDir != "" && !isDir(r.manifestDir) {
		problems = append(problems, fmt.Sprintf("manifests directory %q must exist", r.manifestDir))
	}

	if r.classListPath != "" && !isFile(r.classListPath) {
		problems = append(problems, fmt.Sprintf("classfile %q must exist", r.classListPath))
	}

	if r.className != "" {
		if err := manifest.ValidateClassName(r.className); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if r.className == "" && r.classListPath == "" && r.manifestDir == "" {
		problems = append(problems, "one of class, classfile or manifests must be specified")
	}

	if r.compiler == "" {
		problems = append(problems, "compiler binary must not be empty")
	}

	if r.timeout < 0 {
		problems = append(problems, fmt.Sprintf("timeout must not be negative, got %s", r.timeout))
	}

	if len(problems) == 0 {
		return nil
	}

	return cserrors.WrapWithContext(cserrors.ErrCodeValidation,
		fmt.Sprintf("invalid capture request: %s", strings.Join(problems, "; ")),
		nil, map[string]any{"problems": problems})
}

// Problems returns the individual validation problems carried by err.
func Problems(err error) []string {
	var se *cserrors.StructuredError
	if !stderrors.As(err, &se) || se.Code != cserrors.ErrCodeValidation {
		return nil
	}
	problems, _ := se.Context["problems"].([]string)
	return problems
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
