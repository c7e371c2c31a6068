package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	cserrors "github.com/catalogsnap/catalogsnap/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateClassName(t *testing.T) {
	tests := []struct {
		name    string
		class   string
		wantErr bool
	}{
		{"simple", "base", false},
		{"namespaced", "profile::web", false},
		{"top scope", "::role::db", false},
		{"underscore and digits", "nginx_v2", false},
		{"empty", "", true},
		{"uppercase", "Base", true},
		{"leading digit", "1base", true},
		{"brace injection", "base }\nnode evil {", true},
		{"trailing separator", "profile::", true},
		{"space", "base web", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateClassName(tt.class)
			assert.Equal(t, tt.wantErr, err != nil, "ValidateClassName(%q) = %v", tt.class, err)
		})
	}
}

func TestValidateHost(t *testing.T) {
	tests := []struct {
		host    string
		wantErr bool
	}{
		{"web01", false},
		{"web01.example.com", false},
		{"db-2", false},
		{"", true},
		{"-web", true},
		{"web 01", true},
		{"web{01}", true},
		{`web"01`, true},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			err := ValidateHost(tt.host)
			assert.Equal(t, tt.wantErr, err != nil, "ValidateHost(%q) = %v", tt.host, err)
		})
	}
}

func TestRender(t *testing.T) {
	assert.Equal(t, "node web01 {\n\tinclude base\n}\n", Render("web01", "base"))
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()

	eph, err := Write(dir, "web01", "base")
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(eph.Path()))
	assert.True(t, strings.HasPrefix(filepath.Base(eph.Path()), "site.pp."))

	data, err := os.ReadFile(eph.Path())
	require.NoError(t, err)
	assert.Equal(t, Render("web01", "base"), string(data))

	require.NoError(t, eph.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "manifest should be removed on Close")

	// second close is a no-op
	assert.NoError(t, eph.Close())
}

func TestWrite_UniquePaths(t *testing.T) {
	dir := t.TempDir()

	first, err := Write(dir, "web01", "base")
	require.NoError(t, err)
	defer first.Close()

	second, err := Write(dir, "web01", "base")
	require.NoError(t, err)
	defer second.Close()

	assert.NotEqual(t, first.Path(), second.Path())
}

func TestWrite_UnwritableDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")

	eph, err := Write(dir, "web01", "base")
	require.Error(t, err)
	assert.Nil(t, eph)
	assert.True(t, cserrors.HasCode(err, cserrors.ErrCodeManifestWrite))
}

func TestWrite_InvalidInput(t *testing.T) {
	_, err := Write(t.TempDir(), "web01", "Bad Class")
	require.Error(t, err)
	assert.True(t, cserrors.HasCode(err, cserrors.ErrCodeValidation))

	_, err = Write(t.TempDir(), "web{01}", "base")
	require.Error(t, err)
	assert.True(t, cserrors.HasCode(err, cserrors.ErrCodeValidation))
}
