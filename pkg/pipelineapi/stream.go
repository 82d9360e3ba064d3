package pipelineapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/brandpulse/internal/model"
)

// Stream yields audit events in arrival order. Next returns io.EOF once the
// server closes the stream. Close may be called from any goroutine and
// unblocks a pending Next.
type Stream interface {
	Next() (model.StreamEvent, error)
	Close() error
}

func (c *httpClient) StreamAudit(ctx context.Context, subjectID string) (Stream, error) {
	u := c.baseURL + "/pipeline/" + url.PathEscape(subjectID) + "/domain-readiness/stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "pipelineapi: create stream request")
	}
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "pipelineapi: stream audit %s", subjectID)
	}
	c.authorize(req)
	req.Header.Set("Accept", "application/x-ndjson, text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "pipelineapi: stream audit %s", subjectID)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close() //nolint:errcheck
		return nil, eris.Wrapf(checkStatus(resp.StatusCode, data), "pipelineapi: stream audit %s", subjectID)
	}
	return NewEventStream(resp.Body), nil
}

// EventStream decodes newline-delimited JSON events. Server-sent-event
// framing ("data: {...}") is accepted too; comments, "event:"/"id:" lines
// and the "[DONE]" sentinel are skipped.
type EventStream struct {
	body   io.ReadCloser
	reader *bufio.Reader

	closeOnce sync.Once
	closeErr  error
}

// NewEventStream wraps body. The stream owns body and closes it on Close.
func NewEventStream(body io.ReadCloser) *EventStream {
	return &EventStream{body: body, reader: bufio.NewReaderSize(body, 64<<10)}
}

// Next returns the next event.
func (s *EventStream) Next() (model.StreamEvent, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		if len(line) > 0 {
			payload, ok := eventPayload(line)
			if ok {
				var ev model.StreamEvent
				if derr := json.Unmarshal(payload, &ev); derr != nil {
					return model.StreamEvent{}, eris.Wrap(derr, "pipelineapi: decode stream event")
				}
				return ev, nil
			}
		}
		if err != nil {
			if err == io.EOF {
				return model.StreamEvent{}, io.EOF
			}
			return model.StreamEvent{}, eris.Wrap(err, "pipelineapi: read stream")
		}
	}
}

// Close closes the underlying transport. Safe to call more than once.
func (s *EventStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

func eventPayload(line []byte) ([]byte, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] == ':' {
		return nil, false
	}
	if bytes.HasPrefix(line, []byte("event:")) || bytes.HasPrefix(line, []byte("id:")) || bytes.HasPrefix(line, []byte("retry:")) {
		return nil, false
	}
	if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
		line = bytes.TrimSpace(rest)
	}
	if len(line) == 0 || bytes.Equal(line, []byte("[DONE]")) {
		return nil, false
	}
	return line, true
}
