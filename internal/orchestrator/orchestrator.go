// Package orchestrator advances the backend pipeline from poll snapshots:
// once scoring completes it starts the domain-readiness audit, and once the
// audit completes it starts recommendation generation.
package orchestrator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/brandpulse/internal/model"
	"github.com/sells-group/brandpulse/internal/poller"
	"github.com/sells-group/brandpulse/internal/resilience"
)

// Triggerer starts pipeline stages. Both calls are expected to be idempotent
// on the backend but the orchestrator does not rely on it.
type Triggerer interface {
	StartDomainAudit(ctx context.Context, subjectID string) error
	GenerateRecommendations(ctx context.Context, subjectID string) error
}

// transition is one guarded edge of the pipeline: when After is completed
// and Stage is still pending, fire starts Stage.
type transition struct {
	Stage model.StageName
	After model.StageName
	fire  func(ctx context.Context, subjectID string) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithOnTriggered registers a hook called after every trigger attempt with
// its outcome.
func WithOnTriggered(fn func(stage model.StageName, err error)) Option {
	return func(o *Orchestrator) {
		o.onTriggered = fn
	}
}

// Orchestrator evaluates guarded stage transitions for one subject.
type Orchestrator struct {
	ctx         context.Context
	triggerer   Triggerer
	transitions []transition
	onTriggered func(stage model.StageName, err error)
	log         *zap.Logger

	mu        sync.Mutex
	subjectID string
	latches   map[model.StageName]*Latch
	last      *model.PipelineSnapshot
	wg        sync.WaitGroup
}

// New creates an Orchestrator for subjectID. Trigger calls run under ctx.
func New(ctx context.Context, subjectID string, t Triggerer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		ctx:       ctx,
		triggerer: t,
		subjectID: subjectID,
		log:       zap.L().With(zap.String("component", "orchestrator")),
	}
	o.transitions = []transition{
		{Stage: model.StageDomainReadiness, After: model.StageScoring, fire: t.StartDomainAudit},
		{Stage: model.StageRecommendations, After: model.StageDomainReadiness, fire: t.GenerateRecommendations},
	}
	o.latches = o.newLatches()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) newLatches() map[model.StageName]*Latch {
	latches := make(map[model.StageName]*Latch, len(o.transitions))
	for _, tr := range o.transitions {
		latches[tr.Stage] = &Latch{}
	}
	return latches
}

// HandleUpdate adapts the orchestrator to a poller subscription. Updates
// for any subject other than the current one are ignored.
func (o *Orchestrator) HandleUpdate(u poller.Update) {
	o.observe(u.Snapshot, func(current string) bool { return current == u.SubjectID })
}

// Observe evaluates every transition against snap and fires those whose
// precondition holds and whose latch can be acquired. It never blocks on
// the trigger calls themselves.
func (o *Orchestrator) Observe(snap *model.PipelineSnapshot) {
	o.observe(snap, nil)
}

// observe evaluates snap when match accepts the current subject. The
// subject check and the latch lookup happen under the same lock.
func (o *Orchestrator) observe(snap *model.PipelineSnapshot, match func(current string) bool) {
	if snap == nil {
		return
	}

	o.mu.Lock()
	if match != nil && !match(o.subjectID) {
		o.mu.Unlock()
		return
	}
	if snap.Regressed(o.last) {
		o.log.Info("orchestrator: pipeline restarted, resetting latches",
			zap.String("subject_id", o.subjectID),
		)
		o.latches = o.newLatches()
	}
	o.last = snap
	subjectID := o.subjectID
	latches := o.latches
	o.mu.Unlock()

	for _, tr := range o.transitions {
		if snap.Status(tr.After) != model.StageStatusCompleted ||
			snap.Status(tr.Stage) != model.StageStatusPending {
			continue
		}
		latch := latches[tr.Stage]
		if !latch.TryAcquire() {
			continue
		}
		o.fire(subjectID, tr, latch)
	}
}

func (o *Orchestrator) fire(subjectID string, tr transition, latch *Latch) {
	log := o.log.With(
		zap.String("subject_id", subjectID),
		zap.String("stage", string(tr.Stage)),
		zap.Int("attempt", latch.Attempts()),
	)
	log.Info("orchestrator: triggering stage")

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		err := tr.fire(o.ctx, subjectID)
		if err != nil {
			latch.Fail()
			log.Warn("orchestrator: stage trigger failed, will retry on next snapshot",
				zap.String("error_type", resilience.Classify(err)),
				zap.Error(err),
			)
		} else {
			latch.Succeed()
			log.Info("orchestrator: stage triggered")
		}
		if o.onTriggered != nil {
			o.onTriggered(tr.Stage, err)
		}
	}()
}

// Latch returns the current latch state for stage.
func (o *Orchestrator) Latch(stage model.StageName) LatchState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if l, ok := o.latches[stage]; ok {
		return l.State()
	}
	return NotTriggered
}

// SubjectID returns the subject currently being orchestrated.
func (o *Orchestrator) SubjectID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.subjectID
}

// SetSubject switches to another subject and discards every latch.
// In-flight triggers for the old subject finish against their old latches.
func (o *Orchestrator) SetSubject(subjectID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if subjectID == o.subjectID {
		return
	}
	o.subjectID = subjectID
	o.latches = o.newLatches()
	o.last = nil
}

// Wait blocks until every in-flight trigger call has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
