package pipelineapi

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/brandpulse/internal/model"
)

func TestEventStream_NDJSON(t *testing.T) {
	body := strings.Join([]string{
		`{"type":"progress","bucket":"technicalCrawlability","total":2,"completed":1,"tests":[{"name":"robots.txt","score":80}]}`,
		``,
		`{"type":"error","error":"lighthouse timeout"}`,
		`{"type":"final","result":{"overallScore":72}}`,
	}, "\n")

	s := NewEventStream(io.NopCloser(strings.NewReader(body)))

	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, model.EventProgress, ev.Type)
	assert.Equal(t, model.CategoryTechnicalCrawlability, ev.Bucket)
	require.Len(t, ev.Tests, 1)
	assert.Equal(t, 80.0, ev.Tests[0].Score)

	ev, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, model.EventError, ev.Type)
	assert.Equal(t, "lighthouse timeout", ev.Error)

	ev, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, model.EventFinal, ev.Type)
	require.NotNil(t, ev.Result)
	assert.Equal(t, 72, ev.Result.OverallScore)

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestEventStream_SSEFraming(t *testing.T) {
	body := ": keep-alive\n" +
		"event: progress\n" +
		"id: 1\n" +
		"data: {\"type\":\"progress\",\"bucket\":\"botAccess\",\"total\":1,\"completed\":1,\"botAccessStatus\":[{\"name\":\"GPTBot\",\"allowed\":true}]}\n\n" +
		"data: [DONE]\n\n"

	s := NewEventStream(io.NopCloser(strings.NewReader(body)))

	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, model.CategoryBotAccess, ev.Bucket)
	require.Len(t, ev.BotAccessStatus, 1)
	assert.True(t, ev.BotAccessStatus[0].Allowed)

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestEventStream_DecodeError(t *testing.T) {
	s := NewEventStream(io.NopCloser(strings.NewReader("{broken\n")))
	_, err := s.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode stream event")
}

type countingCloser struct {
	io.Reader
	closes int
}

func (c *countingCloser) Close() error {
	c.closes++
	return nil
}

func TestEventStream_CloseOnce(t *testing.T) {
	body := &countingCloser{Reader: strings.NewReader("")}
	s := NewEventStream(body)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, body.closes)
}

func TestStreamAudit(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pipeline/brand-1/domain-readiness/stream", r.URL.Path)
		assert.Contains(t, r.Header.Get("Accept"), "application/x-ndjson")
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"type":"progress","bucket":"contentQuality","total":3,"completed":1,"tests":[{"name":"headings","score":90}]}` + "\n")) //nolint:errcheck
		w.(http.Flusher).Flush()
		w.Write([]byte(`{"type":"final","result":{"overallScore":90}}` + "\n")) //nolint:errcheck
	})

	s, err := c.StreamAudit(context.Background(), "brand-1")
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, model.CategoryContentQuality, ev.Bucket)

	ev, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, model.EventFinal, ev.Type)
}

func TestStreamAudit_HTTPError(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"no audit running"}`)) //nolint:errcheck
	})

	_, err := c.StreamAudit(context.Background(), "brand-1")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
}
