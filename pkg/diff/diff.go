// Package diff compares two catalog snapshots.
//
// Mappings are compared key by key, recursively. Scalars and sequences are
// compared by value; a sequence that differs in any element is reported as a
// single change at the sequence's path.
//
// A missing previous snapshot is its own outcome (OutcomeNoPrevious), not an
// empty diff. The report is informational: it never decides whether a new
// snapshot is promoted.
package diff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/catalogsnap/catalogsnap/pkg/catalog"
	"github.com/google/go-cmp/cmp"
)

// Outcome summarizes a comparison.
type Outcome string

const (
	// OutcomeNoPrevious means there was nothing to compare against.
	OutcomeNoPrevious Outcome = "no-previous"

	// OutcomeUnchanged means both snapshots are equal.
	OutcomeUnchanged Outcome = "unchanged"

	// OutcomeChanged means at least one change was found.
	OutcomeChanged Outcome = "changed"
)

// Kind is the type of a single change.
type Kind string

const (
	KindAdded   Kind = "added"
	KindRemoved Kind = "removed"
	KindChanged Kind = "changed"
)

// Change is one difference between two snapshots.
type Change struct {
	// Path names the key, nested keys joined with ".".
	Path string `json:"path" yaml:"path"`

	Kind Kind `json:"kind" yaml:"kind"`
	Old  any  `json:"old,omitempty" yaml:"old,omitempty"`
	New  any  `json:"new,omitempty" yaml:"new,omitempty"`
}

// String renders the change on one line, e.g. "~ version: 1 -> 2".
func (c Change) String() string {
	switch c.Kind {
	case KindAdded:
		return fmt.Sprintf("+ %s: %s", c.Path, formatValue(c.New))
	case KindRemoved:
		return fmt.Sprintf("- %s: %s", c.Path, formatValue(c.Old))
	default:
		return fmt.Sprintf("~ %s: %s -> %s", c.Path, formatValue(c.Old), formatValue(c.New))
	}
}

// Report is the result of comparing two snapshots.
type Report struct {
	Host           string   `json:"host" yaml:"host"`
	Outcome        Outcome  `json:"outcome" yaml:"outcome"`
	PreviousDigest string   `json:"previousDigest,omitempty" yaml:"previousDigest,omitempty"`
	CurrentDigest  string   `json:"currentDigest" yaml:"currentDigest"`
	Changes        []Change `json:"changes,omitempty" yaml:"changes,omitempty"`
}

// HasChanges reports whether the comparison found differences.
func (r *Report) HasChanges() bool {
	return r.Outcome == OutcomeChanged
}

// Counts returns the number of added, removed and changed entries.
func (r *Report) Counts() (added, removed, changed int) {
	for _, c := range r.Changes {
		switch c.Kind {
		case KindAdded:
			added++
		case KindRemoved:
			removed++
		case KindChanged:
			changed++
		}
	}
	return added, removed, changed
}

// String renders the report as text, one change per line.
func (r *Report) String() string {
	var b strings.Builder
	switch r.Outcome {
	case OutcomeNoPrevious:
		fmt.Fprintf(&b, "%s: no previous snapshot\n", r.Host)
	case OutcomeUnchanged:
		fmt.Fprintf(&b, "%s: unchanged\n", r.Host)
	default:
		added, removed, changed := r.Counts()
		fmt.Fprintf(&b, "%s: %d added, %d removed, %d changed\n", r.Host, added, removed, changed)
		for _, c := range r.Changes {
			b.WriteString(c.String())
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Compare reports how next differs from prev. prev may be nil.
func Compare(prev, next *catalog.Snapshot) *Report {
	r := &Report{
		Host:          next.Host,
		CurrentDigest: next.Digest(),
	}

	if prev == nil {
		r.Outcome = OutcomeNoPrevious
		return r
	}
	r.PreviousDigest = prev.Digest()

	if prev.Digest() != "" && prev.Digest() == next.Digest() {
		r.Outcome = OutcomeUnchanged
		return r
	}

	r.Changes = Maps(prev.Data, next.Data)
	if len(r.Changes) == 0 {
		r.Outcome = OutcomeUnchanged
	} else {
		r.Outcome = OutcomeChanged
	}
	return r
}

// Maps compares two documents and returns their differences sorted by path.
func Maps(prev, next map[string]any) []Change {
	var changes []Change
	walk(nil, prev, next, &changes)
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Path < changes[j].Path
	})
	return changes
}

func walk(parent []string, prev, next map[string]any, out *[]Change) {
	for key, oldVal := range prev {
		keys := childKeys(parent, key)
		newVal, ok := next[key]
		if !ok {
			*out = append(*out, Change{Path: joinPath(keys), Kind: KindRemoved, Old: oldVal})
			continue
		}

		oldMap, oldIsMap := oldVal.(map[string]any)
		newMap, newIsMap := newVal.(map[string]any)
		if oldIsMap && newIsMap {
			walk(keys, oldMap, newMap, out)
			continue
		}

		if !cmp.Equal(oldVal, newVal) {
			*out = append(*out, Change{Path: joinPath(keys), Kind: KindChanged, Old: oldVal, New: newVal})
		}
	}

	for key, newVal := range next {
		if _, ok := prev[key]; ok {
			continue
		}
		keys := childKeys(parent, key)
		*out = append(*out, Change{Path: joinPath(keys), Kind: KindAdded, New: newVal})
	}
}

func childKeys(parent []string, key string) []string {
	keys := make([]string, len(parent), len(parent)+1)
	copy(keys, parent)
	return append(keys, key)
}

// joinPath joins keys with "."; keys that contain "." or are empty are quoted.
func joinPath(keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		if k == "" || strings.ContainsAny(k, `." `) {
			parts[i] = fmt.Sprintf("%q", k)
			continue
		}
		parts[i] = k
	}
	return strings.Join(parts, ".")
}

func formatValue(v any) string {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
