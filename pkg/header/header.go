// Package header provides the Kind/APIVersion/Metadata header carried by
// catalogsnap documents.
package header

import (
	"time"

	"github.com/google/uuid"
)

// Metadata keys.
const (
	MetadataRunID      = "run-id"
	MetadataCapturedAt = "captured-at"
	MetadataVersion    = "catalogsnap-version"
)

// Header contains the type, schema version and metadata of a document.
type Header struct {
	Kind       string `json:"kind,omitempty" yaml:"kind,omitempty"`
	APIVersion string `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`

	// Metadata holds run-id, captured-at and tool version entries. Empty
	// values are never stored.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Option configures a Header.
type Option func(*Header)

// New returns a Header with opts applied.
func New(opts ...Option) *Header {
	h := &Header{Metadata: make(map[string]string)}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WithType sets the document kind and schema version together.
func WithType(kind, apiVersion string) Option {
	return func(h *Header) {
		h.Kind = kind
		h.APIVersion = apiVersion
	}
}

// WithMetadata records key=value. An empty value removes key.
func WithMetadata(key, value string) Option {
	return func(h *Header) {
		if value == "" {
			delete(h.Metadata, key)
			return
		}
		if h.Metadata == nil {
			h.Metadata = make(map[string]string)
		}
		h.Metadata[key] = value
	}
}

// WithRunID tags the document with a fresh random run id.
func WithRunID() Option {
	return WithMetadata(MetadataRunID, uuid.NewString())
}

// WithCapturedAt records t in UTC, RFC 3339, second precision.
func WithCapturedAt(t time.Time) Option {
	return WithMetadata(MetadataCapturedAt, t.UTC().Format(time.RFC3339))
}

// WithToolVersion records the catalogsnap version that produced the document.
func WithToolVersion(version string) Option {
	return WithMetadata(MetadataVersion, version)
}
