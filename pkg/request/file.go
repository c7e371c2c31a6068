package request

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the on-disk form of a capture request. Any field left empty keeps
// the default (or a later option's value).
//
//	vardir: /var/puppet
//	store: /srv/catalogs
//	modules: /etc/puppet/modules
//	manifests: /etc/puppet/manifests
//	class: base
//	classfile: /etc/puppet/classes.pp
//	compiler: puppet
//	timeout: 5m
type File struct {
	VarDir    string `yaml:"vardir,omitempty" json:"vardir,omitempty"`
	StoreDir  string `yaml:"store,omitempty" json:"store,omitempty"`
	ModuleDir string `yaml:"modules,omitempty" json:"modules,omitempty"`
	ManDir    string `yaml:"manifests,omitempty" json:"manifests,omitempty"`
	Class     string `yaml:"class,omitempty" json:"class,omitempty"`
	ClassFile string `yaml:"classfile,omitempty" json:"classfile,omitempty"`
	Compiler  string `yaml:"compiler,omitempty" json:"compiler,omitempty"`
	Timeout   string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// LoadFile reads a YAML (or JSON) request file and returns it as options.
func LoadFile(path string) ([]Option, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file %q: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse request file %q: %w", path, err)
	}

	return f.Options()
}

// Options converts the non-empty fields of f to options.
func (f *File) Options() ([]Option, error) {
	var opts []Option
	if f.VarDir != "" {
		opts = append(opts, WithVarDir(f.VarDir))
	}
	if f.StoreDir != "" {
		opts = append(opts, WithStoreDir(f.StoreDir))
	}
	if f.ModuleDir != "" {
		opts = append(opts, WithModuleDir(f.ModuleDir))
	}
	if f.ManDir != "" {
		opts = append(opts, WithManifestDir(f.ManDir))
	}
	if f.Class != "" {
		opts = append(opts, WithClassName(f.Class))
	}
	if f.ClassFile != "" {
		opts = append(opts, WithClassListPath(f.ClassFile))
	}
	if f.Compiler != "" {
		opts = append(opts, WithCompiler(f.Compiler))
	}
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", f.Timeout, err)
		}
		opts = append(opts, WithTimeout(d))
	}
	return opts, nil
}
