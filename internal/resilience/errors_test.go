package resilience

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "explicit", err: NewTransientError(errors.New("503"), 503), want: true},
		{name: "wrapped explicit", err: eris.Wrap(NewTransientError(errors.New("429"), 429), "pipelineapi: get status"), want: true},
		{name: "plain", err: errors.New("bad request"), want: false},
		{name: "conn reset", err: fmt.Errorf("read: %w", syscall.ECONNRESET), want: true},
		{name: "conn refused", err: fmt.Errorf("dial: %w", syscall.ECONNREFUSED), want: true},
		{name: "net timeout", err: fmt.Errorf("get: %w", timeoutErr{}), want: true},
		{name: "string pattern", err: errors.New("read tcp: i/o timeout"), want: true},
		{name: "canceled", err: eris.Wrap(context.Canceled, "stream"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 404, 409, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("upstream down")
	te := NewTransientError(inner, 502)

	assert.Equal(t, "upstream down", te.Error())
	assert.ErrorIs(t, te, inner)
	assert.Equal(t, 502, te.StatusCode)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "canceled", Classify(context.Canceled))
	assert.Equal(t, "transient", Classify(NewTransientError(errors.New("x"), 500)))
	assert.Equal(t, "permanent", Classify(errors.New("validation failed")))
}
