package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/brandpulse/internal/audit"
	"github.com/sells-group/brandpulse/internal/model"
	"github.com/sells-group/brandpulse/internal/orchestrator"
	"github.com/sells-group/brandpulse/internal/poller"
	"github.com/sells-group/brandpulse/internal/resilience"
	"github.com/sells-group/brandpulse/pkg/pipelineapi"
)

// fakeBackend walks one subject through the pipeline: the audit trigger
// activates domain readiness, the stream completes it, and the
// recommendations trigger finishes the run.
type fakeBackend struct {
	mu     sync.Mutex
	snap   model.PipelineSnapshot
	audits atomic.Int32
	recs   atomic.Int32
	bypass atomic.Int32
}

func newFakeBackend() *fakeBackend {
	b := &fakeBackend{}
	b.snap.Stages.Collection.Status = model.StageStatusCompleted
	b.snap.Stages.Scoring.Status = model.StageStatusCompleted
	b.snap.Stages.DomainReadiness.Status = model.StageStatusPending
	b.snap.Stages.Recommendations.Status = model.StageStatusPending
	b.snap.Stages.Finalization.Status = model.StageStatusPending
	return b
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/pipeline/brand-1/status":
		b.mu.Lock()
		snap := b.snap
		b.mu.Unlock()
		json.NewEncoder(w).Encode(snap) //nolint:errcheck

	case r.Method == http.MethodPost && r.URL.Path == "/pipeline/brand-1/domain-readiness/audit":
		b.audits.Add(1)
		b.mu.Lock()
		b.snap.Stages.DomainReadiness.Status = model.StageStatusActive
		b.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)

	case r.Method == http.MethodGet && r.URL.Path == "/pipeline/brand-1/domain-readiness/stream":
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"type":"progress","bucket":"contentQuality","total":2,"tests":[{"name":"headings","score":80}]}`)
		fmt.Fprintln(w, `{"type":"final","result":{"overallScore":64,"scoreBreakdown":{"contentQuality":80}}}`)
		b.mu.Lock()
		b.snap.Stages.DomainReadiness.Status = model.StageStatusCompleted
		b.mu.Unlock()

	case r.Method == http.MethodPost && r.URL.Path == "/pipeline/recommendations/generate":
		b.recs.Add(1)
		b.mu.Lock()
		b.snap.Stages.Recommendations.Status = model.StageStatusCompleted
		b.snap.Stages.Finalization.Status = model.StageStatusCompleted
		b.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)

	case r.Method == http.MethodGet && r.URL.Path == "/pipeline/brand-1/results":
		if r.URL.Query().Get("refresh") == "true" {
			b.bypass.Add(1)
		}
		json.NewEncoder(w).Encode(model.Results{SubjectID: "brand-1", VisibilityScore: 42}) //nolint:errcheck

	case r.Method == http.MethodGet && r.URL.Path == "/data-updates":
		w.Write([]byte(`{"hasUpdates":false}`)) //nolint:errcheck

	default:
		http.NotFound(w, r)
	}
}

type memorySaver struct {
	mu    sync.Mutex
	saved []*model.AuditResult
}

func (m *memorySaver) SaveAudit(_ context.Context, subjectID string, r *model.AuditResult) (*model.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, r)
	return &model.AuditRecord{ID: fmt.Sprintf("rec-%d", len(m.saved)), SubjectID: subjectID, Result: r}, nil
}

func (m *memorySaver) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func newTestClient(t *testing.T, h http.Handler) pipelineapi.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return pipelineapi.NewClient(
		pipelineapi.WithBaseURL(srv.URL),
		pipelineapi.WithRetry(resilience.RetryConfig{MaxAttempts: 1}),
	)
}

func TestSession_DrivesPipelineToCompletion(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend)
	p := poller.New(client, poller.WithInterval(10*time.Millisecond))
	t.Cleanup(p.Close)

	saver := &memorySaver{}
	s := New("brand-1", client, p, WithStore(saver))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	require.Eventually(t, func() bool {
		u, ok := s.Progress()
		return ok && u.IsComplete
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return saver.count() == 1 }, time.Second, 5*time.Millisecond)

	v := s.Audit()
	assert.Equal(t, audit.StatusComplete, v.Status)
	assert.Equal(t, 64, v.OverallScore)
	assert.Equal(t, int32(1), backend.audits.Load())
	assert.Equal(t, int32(1), backend.recs.Load())
	assert.Equal(t, orchestrator.Triggered, s.Latch(model.StageDomainReadiness))
	assert.Equal(t, orchestrator.Triggered, s.Latch(model.StageRecommendations))

	res, err := s.Results(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42.0, res.VisibilityScore)
}

func TestSession_StartIsIdempotent(t *testing.T) {
	client := newTestClient(t, newFakeBackend())
	p := poller.New(client, poller.WithInterval(time.Hour))
	t.Cleanup(p.Close)

	s := New("brand-1", client, p)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 1, p.Subscribers("brand-1"))

	s.Stop()
	s.Stop()
	assert.Equal(t, 0, p.Subscribers("brand-1"))
}

func TestSession_StartCanceledContext(t *testing.T) {
	client := newTestClient(t, newFakeBackend())
	p := poller.New(client)
	t.Cleanup(p.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, New("brand-1", client, p).Start(ctx))
}

func TestSession_ManualAuditAndCancel(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /pipeline/brand-1/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"stages":{"collection":{"status":"active"}}}`)) //nolint:errcheck
	})
	mux.HandleFunc("GET /pipeline/brand-1/domain-readiness/stream", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"type":"progress","bucket":"aeoOptimization","total":3,"tests":[{"name":"faq","score":50}]}`)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})

	client := newTestClient(t, mux)
	t.Cleanup(func() { close(release) })
	p := poller.New(client, poller.WithInterval(time.Hour))
	t.Cleanup(p.Close)

	s := New("brand-1", client, p)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	s.StartAudit()
	require.Eventually(t, func() bool {
		v := s.Audit()
		return len(v.Categories) > 0 && v.Categories[4].Completed == 1
	}, 2*time.Second, 5*time.Millisecond)

	s.CancelAudit()
	assert.Equal(t, audit.StatusCancelled, s.Audit().Status)
}

func TestSession_CancelAfterCompletedAuditSavesOnce(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /pipeline/brand-1/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"stages":{"collection":{"status":"active"}}}`)) //nolint:errcheck
	})
	mux.HandleFunc("GET /pipeline/brand-1/domain-readiness/stream", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"type":"final","result":{"overallScore":64}}`)
	})
	mux.HandleFunc("GET /pipeline/brand-1/results", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"subjectId":"brand-1"}`)) //nolint:errcheck
	})

	client := newTestClient(t, mux)
	p := poller.New(client, poller.WithInterval(time.Hour))
	t.Cleanup(p.Close)

	saver := &memorySaver{}
	s := New("brand-1", client, p, WithStore(saver))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	s.StartAudit()
	require.Eventually(t, func() bool {
		return s.Audit().Status == audit.StatusComplete && saver.count() == 1
	}, 2*time.Second, 5*time.Millisecond)
	completed := s.Audit()

	s.CancelAudit()
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, saver.count())
	assert.Equal(t, completed.Token, s.Audit().Token)
	assert.Equal(t, audit.StatusComplete, s.Audit().Status)
}

func TestManager_GetCreatesOncePerSubject(t *testing.T) {
	client := newTestClient(t, newFakeBackend())
	p := poller.New(client, poller.WithInterval(time.Hour))
	t.Cleanup(p.Close)

	m := NewManager(context.Background(), client, p)
	t.Cleanup(m.Close)

	a, err := m.Get("brand-1")
	require.NoError(t, err)
	b, err := m.Get("brand-1")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = m.Get("brand-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"brand-1", "brand-2"}, m.Subjects())

	m.Stop("brand-1")
	_, ok := m.Lookup("brand-1")
	assert.False(t, ok)
	assert.Equal(t, 0, p.Subscribers("brand-1"))

	m.Close()
	assert.Empty(t, m.Subjects())
}
