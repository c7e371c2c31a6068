package diff

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/catalogsnap/catalogsnap/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(t *testing.T, doc string) *catalog.Snapshot {
	t.Helper()
	s, err := catalog.Parse("web01", []byte(doc), time.Now())
	require.NoError(t, err)
	return s
}

func TestCompare_NoPrevious(t *testing.T) {
	r := Compare(nil, snap(t, `{"version":1}`))

	assert.Equal(t, OutcomeNoPrevious, r.Outcome)
	assert.Empty(t, r.Changes)
	assert.False(t, r.HasChanges())
	assert.Empty(t, r.PreviousDigest)
	assert.Equal(t, "web01: no previous snapshot\n", r.String())
}

func TestCompare_Identical(t *testing.T) {
	doc := `{"version":1,"classes":["base","ntp"],"resources":{"File[/etc/motd]":{"ensure":"file"}}}`
	// key order and number formatting do not matter
	reordered := `{"resources":{"File[/etc/motd]":{"ensure":"file"}},"classes":["base","ntp"],"version":1.0}`

	r := Compare(snap(t, doc), snap(t, reordered))

	assert.Equal(t, OutcomeUnchanged, r.Outcome)
	assert.Empty(t, r.Changes)
	assert.Equal(t, r.PreviousDigest, r.CurrentDigest)
}

func TestCompare_OneNestedScalar(t *testing.T) {
	prev := snap(t, `{"version":1,"resources":{"file":{"motd":{"mode":"0644","owner":"root"}}}}`)
	next := snap(t, `{"version":1,"resources":{"file":{"motd":{"mode":"0600","owner":"root"}}}}`)

	r := Compare(prev, next)

	require.Equal(t, OutcomeChanged, r.Outcome)
	require.Len(t, r.Changes, 1)
	c := r.Changes[0]
	assert.Equal(t, "resources.file.motd.mode", c.Path)
	assert.Equal(t, KindChanged, c.Kind)
	assert.Equal(t, "0644", c.Old)
	assert.Equal(t, "0600", c.New)
}

func TestCompare_LargeIntegerChange(t *testing.T) {
	r := Compare(snap(t, `{"serial":9007199254740992}`), snap(t, `{"serial":9007199254740993}`))

	require.Equal(t, OutcomeChanged, r.Outcome)
	require.Len(t, r.Changes, 1)
	assert.Equal(t, "~ serial: 9007199254740992 -> 9007199254740993", r.Changes[0].String())
}

func TestCompare_VersionBump(t *testing.T) {
	r := Compare(snap(t, `{"classes":["base"],"version":1}`), snap(t, `{"classes":["base"],"version":2}`))

	require.Len(t, r.Changes, 1)
	assert.Equal(t, json.Number("1"), r.Changes[0].Old)
	assert.Equal(t, json.Number("2"), r.Changes[0].New)
	assert.Contains(t, r.String(), "version: 1 -> 2")
	assert.Equal(t, "~ version: 1 -> 2", r.Changes[0].String())
}

func TestCompare_AddedRemovedChanged(t *testing.T) {
	prev := snap(t, `{"a":1,"b":{"c":true,"d":"x"},"list":[1,2,3],"gone":"bye"}`)
	next := snap(t, `{"a":1,"b":{"c":false,"e":"y"},"list":[1,3,2],"new":{"k":"v"}}`)

	r := Compare(prev, next)
	require.Equal(t, OutcomeChanged, r.Outcome)

	got := make(map[string]Kind, len(r.Changes))
	var paths []string
	for _, c := range r.Changes {
		got[c.Path] = c.Kind
		paths = append(paths, c.Path)
	}

	assert.Equal(t, map[string]Kind{
		"b.c":  KindChanged,
		"b.d":  KindRemoved,
		"b.e":  KindAdded,
		"gone": KindRemoved,
		"list": KindChanged,
		"new":  KindAdded,
	}, got)
	assert.Equal(t, []string{"b.c", "b.d", "b.e", "gone", "list", "new"}, paths, "changes are sorted by path")

	added, removed, changed := r.Counts()
	assert.Equal(t, 2, added)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, changed)
}

func TestCompare_TypeChange(t *testing.T) {
	r := Compare(snap(t, `{"a":{"b":1}}`), snap(t, `{"a":"flat"}`))

	require.Len(t, r.Changes, 1)
	assert.Equal(t, "a", r.Changes[0].Path)
	assert.Equal(t, KindChanged, r.Changes[0].Kind)
}

func TestReport_String(t *testing.T) {
	r := Compare(snap(t, `{"a":1,"gone":"x"}`), snap(t, `{"a":2,"new":"<y>"}`))

	lines := strings.Split(strings.TrimSpace(r.String()), "\n")
	assert.Equal(t, []string{
		"web01: 1 added, 1 removed, 1 changed",
		"~ a: 1 -> 2",
		"- gone: \"x\"",
		"+ new: \"<y>\"",
	}, lines)
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "a.b", joinPath([]string{"a", "b"}))
	assert.Equal(t, `resources."File[/etc/motd.conf]"`, joinPath([]string{"resources", "File[/etc/motd.conf]"}))
	assert.Equal(t, `a.""`, joinPath([]string{"a", ""}))
}
