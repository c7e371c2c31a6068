package snapshotter

import (
	"context"

	"github.com/catalogsnap/catalogsnap/pkg/request"
)

// Snapshotter is the interface that wraps the Capture method.
// Capture compiles and records the catalog described by req.
type Snapshotter interface {
	Capture(ctx context.Context, req *request.Request) (*Result, error)
}
