// Package command builds the catalog compiler invocation from a capture request.
//
// The command is kept as an ordered token list and handed to the process
// launcher as argv; it is joined and quoted only for display.
//
// # Manifest Source Precedence
//
// A request may name more than one manifest source. The first of the following
// that is set wins:
//
//  1. class name: an ephemeral manifest including the class is passed with
//     --manifest, and its directory with --manifestdir.
//  2. class list file: the file is passed with --manifest, and its directory
//     with --manifestdir.
//  3. manifest directory: passed with --manifestdir; no --manifest is given,
//     so the compiler uses the default site manifest in that directory.
//
// Exactly one --manifestdir is emitted.
package command

import (
	"path/filepath"
	"strings"

	cserrors "github.com/catalogsnap/catalogsnap/pkg/errors"
	"github.com/catalogsnap/catalogsnap/pkg/request"
)

// Source identifies which request field supplies the manifest.
type Source string

const (
	SourceNone        Source = ""
	SourceClass       Source = "class"
	SourceClassList   Source = "classfile"
	SourceManifestDir Source = "manifests"
)

// ResolveSource applies the manifest source precedence to req.
func ResolveSource(req *request.Request) Source {
	switch {
	case req.ClassName() != "":
		return SourceClass
	case req.ClassListPath() != "":
		return SourceClassList
	case req.ManifestDir() != "":
		return SourceManifestDir
	default:
		return SourceNone
	}
}

// Command is a compiler invocation.
type Command struct {
	// Name is the binary to execute.
	Name string

	// Args are the arguments, in order, without the binary.
	Args []string
}

// Argv returns the binary followed by its arguments.
func (c *Command) Argv() []string {
	argv := make([]string, 0, len(c.Args)+1)
	argv = append(argv, c.Name)
	return append(argv, c.Args...)
}

// String renders the command for display, quoting tokens where a shell would need it.
func (c *Command) String() string {
	argv := c.Argv()
	quoted := make([]string, len(argv))
	for i, tok := range argv {
		quoted[i] = quote(tok)
	}
	return strings.Join(quoted, " ")
}

// Flag returns the value following flag, and whether flag is present.
func (c *Command) Flag(flag string) (string, bool) {
	for i := 0; i < len(c.Args)-1; i++ {
		if c.Args[i] == flag {
			return c.Args[i+1], true
		}
	}
	return "", false
}

// Build assembles the compiler invocation for req. classManifest is the path of
// the ephemeral manifest and is required when the class source wins.
func Build(req *request.Request, classManifest string) (*Command, error) {
	args := []string{"master", "--color", "off", "--compile", req.Host()}

	args = append(args, "--vardir", req.VarDir())

	if req.ModuleDir() != "" {
		args = append(args, "--modulespath", req.ModuleDir())
	}

	switch ResolveSource(req) {
	case SourceClass:
		if classManifest == "" {
			return nil, cserrors.New(cserrors.ErrCodeInternal,
				"class manifest path is required when a class is requested")
		}
		args = append(args, "--manifestdir", filepath.Dir(classManifest), "--manifest", classManifest)
	case SourceClassList:
		args = append(args, "--manifestdir", filepath.Dir(req.ClassListPath()), "--manifest", req.ClassListPath())
	case SourceManifestDir:
		args = append(args, "--manifestdir", req.ManifestDir())
	case SourceNone:
		return nil, cserrors.New(cserrors.ErrCodeValidation, "no manifest source in request")
	}

	return &Command{
		Name: req.Compiler(),
		Args: args,
	}, nil
}

const safeChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_./:=,@%+"

func quote(tok string) string {
	if tok == "" {
		return "''"
	}
	if strings.Trim(tok, safeChars) == "" {
		return tok
	}
	return "'" + strings.ReplaceAll(tok, "'", `'\''`) + "'"
}
