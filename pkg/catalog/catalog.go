// Package catalog turns raw compiler output into canonical catalog snapshots.
//
// The compiler may print any number of diagnostic lines before the catalog.
// The catalog is always the last non-empty line of its standard output
// (see LastLine); everything before it is ignored.
//
// A snapshot has two serialized forms:
//   - Canonical: RFC 8785 (JCS) bytes, used for storage and equality. JCS
//     numbers are IEEE-754 doubles, so a catalog holding a number a double
//     cannot represent exactly (integers beyond 2^53, for instance) is instead
//     stored as compact JSON with sorted keys and its numbers as written.
//   - Rendering: two-space indented JSON with sorted keys, for people.
//
// Both forms are derived only from the parsed document, so the same catalog
// always yields byte-identical output. Catalogs must be valid UTF-8.
package catalog

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	cserrors "github.com/catalogsnap/catalogsnap/pkg/errors"
	"github.com/gowebpki/jcs"
)

// Snapshot is one canonicalized catalog.
type Snapshot struct {
	// Host is the node the catalog was compiled for.
	Host string

	// CapturedAt is when the catalog was captured.
	CapturedAt time.Time

	// Data is the parsed document. Numbers are json.Number.
	Data map[string]any

	canonical []byte
	digest    string
}

// Canonical returns the RFC 8785 form of the catalog.
func (s *Snapshot) Canonical() []byte {
	return s.canonical
}

// Digest returns the hex sha256 of the canonical form.
func (s *Snapshot) Digest() string {
	return s.digest
}

// Render returns the human-readable form: indented JSON, sorted keys,
// trailing newline.
func (s *Snapshot) Render() ([]byte, error) {
	return Render(s.Data)
}

// Render serializes v as indented JSON with sorted map keys and no HTML escaping.
func Render(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to render catalog: %w", err)
	}
	return buf.Bytes(), nil
}

// LastLine returns the last line of r that is not blank, without its line
// terminator. It fails with ErrCodeMalformedOutput when there is none.
func LastLine(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	var last []byte
	for {
		line, err := br.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			last = append(last[:0], trimmed...)
		}
		if err != nil {
			if stderrors.Is(err, io.EOF) {
				break
			}
			return nil, cserrors.Wrap(cserrors.ErrCodeMalformedOutput, "failed to read compiler output", err)
		}
	}
	if last == nil {
		return nil, cserrors.New(cserrors.ErrCodeMalformedOutput, "compiler output is empty")
	}
	return last, nil
}

// Parse canonicalizes a single JSON document. The top level must be an object.
func Parse(host string, doc []byte, capturedAt time.Time) (*Snapshot, error) {
	doc = bytes.TrimSpace(doc)
	if !utf8.Valid(doc) {
		return nil, cserrors.WrapWithContext(cserrors.ErrCodeMalformedOutput,
			"catalog is not valid UTF-8", nil, map[string]any{"preview": preview(doc)})
	}
	if !json.Valid(doc) {
		return nil, cserrors.WrapWithContext(cserrors.ErrCodeMalformedOutput,
			"catalog is not valid JSON", nil, map[string]any{"preview": preview(doc)})
	}

	v, err := decode(doc)
	if err != nil {
		return nil, err
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, cserrors.New(cserrors.ErrCodeMalformedOutput,
			fmt.Sprintf("catalog must be a JSON object, got %s", kindOf(v)))
	}

	canonical, err := canonicalize(doc, v)
	if err != nil {
		return nil, err
	}

	// Data is read back from the canonical form so that both agree on
	// number spelling.
	v, err = decode(canonical)
	if err != nil {
		return nil, err
	}
	data := v.(map[string]any)

	sum := sha256.Sum256(canonical)
	return &Snapshot{
		Host:       host,
		CapturedAt: capturedAt,
		Data:       data,
		canonical:  canonical,
		digest:     hex.EncodeToString(sum[:]),
	}, nil
}

func decode(doc []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, cserrors.Wrap(cserrors.ErrCodeMalformedOutput, "failed to decode catalog", err)
	}
	return v, nil
}

// canonicalize returns the JCS form of doc when every number in v survives
// the trip through a double, and compact sorted JSON otherwise.
func canonicalize(doc []byte, v any) ([]byte, error) {
	if exactNumbers(v) {
		canonical, err := jcs.Transform(doc)
		if err != nil {
			return nil, cserrors.Wrap(cserrors.ErrCodeMalformedOutput, "failed to canonicalize catalog", err)
		}
		return canonical, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, cserrors.Wrap(cserrors.ErrCodeMalformedOutput, "failed to canonicalize catalog", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// exactNumbers reports whether every number in v equals the shortest double
// that JCS would print for it.
func exactNumbers(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		for _, e := range t {
			if !exactNumbers(e) {
				return false
			}
		}
	case []any:
		for _, e := range t {
			if !exactNumbers(e) {
				return false
			}
		}
	case json.Number:
		return exactDouble(string(t))
	}
	return true
}

func exactDouble(s string) bool {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false
	}
	if f == 0 {
		// avoids expanding huge negative exponents below
		mantissa, _, _ := strings.Cut(strings.ToLower(s), "e")
		return strings.Trim(mantissa, "+-.0") == ""
	}
	written, ok := new(big.Rat).SetString(s)
	if !ok {
		return false
	}
	shortest, ok := new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, 64))
	if !ok {
		return false
	}
	return written.Cmp(shortest) == 0
}

// FromOutput reads raw compiler output and canonicalizes its last non-empty line.
func FromOutput(host string, r io.Reader, capturedAt time.Time) (*Snapshot, error) {
	line, err := LastLine(r)
	if err != nil {
		return nil, err
	}
	return Parse(host, line, capturedAt)
}

func kindOf(v any) string {
	switch v.(type) {
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func preview(b []byte) string {
	const limit = 120
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
