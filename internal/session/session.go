// Package session wires the pipeline components for one subject: status
// polling drives stage triggers, a started audit is streamed into the
// aggregator, and computed results are served through the staleness cache.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/brandpulse/internal/audit"
	"github.com/sells-group/brandpulse/internal/model"
	"github.com/sells-group/brandpulse/internal/orchestrator"
	"github.com/sells-group/brandpulse/internal/poller"
	"github.com/sells-group/brandpulse/internal/staleness"
	"github.com/sells-group/brandpulse/pkg/pipelineapi"
)

// AuditSaver persists completed audits. store.Store satisfies it.
type AuditSaver interface {
	SaveAudit(ctx context.Context, subjectID string, result *model.AuditResult) (*model.AuditRecord, error)
}

// Option configures a Session.
type Option func(*Session)

// WithStore saves every completed audit to s.
func WithStore(s AuditSaver) Option {
	return func(ss *Session) {
		ss.store = s
	}
}

// WithStalenessIntervals sets the results check cadence while a run is in
// progress (active) and otherwise (idle).
func WithStalenessIntervals(active, idle time.Duration) Option {
	return func(ss *Session) {
		ss.activeInterval = active
		ss.idleInterval = idle
	}
}

// Session follows one subject through the pipeline.
type Session struct {
	subjectID      string
	client         pipelineapi.Client
	poller         *poller.Poller
	store          AuditSaver
	activeInterval time.Duration
	idleInterval   time.Duration
	log            *zap.Logger

	agg     *audit.Aggregator
	orch    *orchestrator.Orchestrator
	results *staleness.Cache[*model.Results]

	mu          sync.Mutex
	started     bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	savedToken  audit.Token
	wg          sync.WaitGroup
}

// New creates an unstarted Session for subjectID.
func New(subjectID string, client pipelineapi.Client, p *poller.Poller, opts ...Option) *Session {
	s := &Session{
		subjectID: subjectID,
		client:    client,
		poller:    p,
		agg:       audit.NewAggregator(),
		log:       zap.L().With(zap.String("component", "session"), zap.String("subject_id", subjectID)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.results = staleness.New(
		func(ctx context.Context, bypass bool) (*model.Results, error) {
			return client.GetResults(ctx, subjectID, bypass)
		},
		pipelineapi.UpdateChecker{Client: client},
		staleness.WithActiveInterval[*model.Results](s.activeInterval),
		staleness.WithIdleInterval[*model.Results](s.idleInterval),
		staleness.WithName[*model.Results](subjectID),
	)
	return s
}

// SubjectID returns the subject this session follows.
func (s *Session) SubjectID() string {
	return s.subjectID
}

// Start subscribes to status updates and starts the results checker.
// Calling Start on a running session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "session: start")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.orch = orchestrator.New(s.ctx, s.subjectID, s.client, orchestrator.WithOnTriggered(s.onTriggered))

	unsubscribeViews := s.agg.Subscribe(s.onView)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.results.Run(s.ctx)
	}()

	unsubscribePoll := s.poller.Subscribe(s.subjectID, s.onUpdate)
	s.unsubscribe = func() {
		unsubscribePoll()
		unsubscribeViews()
	}
	s.started = true
	s.log.Info("session: started")
	return nil
}

// Stop unsubscribes from status updates, cancels any running audit stream
// and waits for in-flight work.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	unsubscribe, cancel, orch := s.unsubscribe, s.cancel, s.orch
	s.mu.Unlock()

	unsubscribe()
	s.agg.Cancel()
	cancel()
	orch.Wait()
	s.wg.Wait()
	s.log.Info("session: stopped")
}

func (s *Session) onUpdate(u poller.Update) {
	s.results.SetActive(!u.IsComplete)
	s.orch.HandleUpdate(u)
}

func (s *Session) onTriggered(stage model.StageName, err error) {
	if err != nil {
		return
	}
	switch stage {
	case model.StageDomainReadiness:
		s.StartAudit()
	case model.StageRecommendations:
		s.results.Invalidate()
	}
}

// StartAudit begins a fresh audit stream, replacing any running one. It
// returns immediately; progress is visible through Audit.
func (s *Session) StartAudit() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		s.log.Warn("session: audit requested on stopped session")
		return
	}
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := s.agg.Run(ctx, s.subjectID, s.client.StreamAudit); err != nil {
			s.log.Warn("session: audit stream ended with error", zap.Error(err))
		}
	}()
}

// CancelAudit aborts the running audit stream, if any.
func (s *Session) CancelAudit() {
	s.agg.Cancel()
}

// onView saves each completed run exactly once.
func (s *Session) onView(v audit.View) {
	if v.Status != audit.StatusComplete || v.Result == nil || v.Token == "" {
		return
	}
	s.mu.Lock()
	if v.Token == s.savedToken {
		s.mu.Unlock()
		return
	}
	s.savedToken = v.Token
	ctx := s.ctx
	s.mu.Unlock()

	s.results.Invalidate()
	if s.store == nil {
		return
	}
	rec, err := s.store.SaveAudit(ctx, s.subjectID, v.Result)
	if err != nil {
		s.log.Error("session: save audit failed", zap.Error(err))
		return
	}
	s.log.Info("session: audit saved", zap.String("record_id", rec.ID), zap.Int("overall_score", v.Result.OverallScore))
}

// Progress returns the latest status update, if any.
func (s *Session) Progress() (poller.Update, bool) {
	return s.poller.Latest(s.subjectID)
}

// Audit returns the aggregator view of the current audit run.
func (s *Session) Audit() audit.View {
	return s.agg.View()
}

// Results returns computed results through the staleness cache.
func (s *Session) Results(ctx context.Context) (*model.Results, error) {
	r, err := s.results.Get(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "session: results for %s", s.subjectID)
	}
	return r, nil
}

// Latch returns the trigger latch state for stage.
func (s *Session) Latch(stage model.StageName) orchestrator.LatchState {
	s.mu.Lock()
	orch := s.orch
	s.mu.Unlock()
	if orch == nil {
		return orchestrator.NotTriggered
	}
	return orch.Latch(stage)
}
