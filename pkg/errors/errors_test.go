package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructuredError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *StructuredError
		want string
	}{
		{
			name: "without cause",
			err:  New(ErrCodeValidation, "host is required"),
			want: "VALIDATION_ERROR: host is required",
		},
		{
			name: "with cause",
			err:  Wrap(ErrCodeStore, "promote failed", fs.ErrPermission),
			want: "STORE_ERROR: promote failed: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestStructuredError_Unwrap(t *testing.T) {
	err := Wrap(ErrCodeCaptureProcess, "start compiler", fs.ErrNotExist)
	assert.True(t, stderrors.Is(err, fs.ErrNotExist))

	wrapped := fmt.Errorf("capture web01: %w", err)
	var se *StructuredError
	assert.True(t, stderrors.As(wrapped, &se))
	assert.Equal(t, ErrCodeCaptureProcess, se.Code)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeMalformedOutput, CodeOf(New(ErrCodeMalformedOutput, "bad")))
	assert.Equal(t, ErrorCode(""), CodeOf(stderrors.New("plain")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}

func TestHasCode(t *testing.T) {
	inner := New(ErrCodeCaptureTimeout, "deadline exceeded")
	outer := Wrap(ErrCodeInternal, "capture failed", fmt.Errorf("run: %w", inner))

	assert.True(t, HasCode(outer, ErrCodeInternal))
	assert.True(t, HasCode(outer, ErrCodeCaptureTimeout))
	assert.False(t, HasCode(outer, ErrCodeStore))
	assert.False(t, HasCode(stderrors.New("plain"), ErrCodeInternal))
}

func TestWrapWithContext(t *testing.T) {
	err := WrapWithContext(ErrCodeStore, "write incoming", fs.ErrPermission, map[string]any{"host": "web01"})
	assert.Equal(t, "web01", err.Context["host"])
	assert.ErrorIs(t, err, fs.ErrPermission)
}
