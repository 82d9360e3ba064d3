// Package audit turns the domain-readiness audit stream into a live,
// cancellable score view.
package audit

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/brandpulse/internal/model"
	"github.com/sells-group/brandpulse/pkg/pipelineapi"
)

// Status is the lifecycle state of the current audit run.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusStreaming  Status = "streaming"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusIncomplete Status = "incomplete"
)

// Opener opens the audit stream for a subject. pipelineapi.Client.StreamAudit
// satisfies it.
type Opener func(ctx context.Context, subjectID string) (pipelineapi.Stream, error)

// StreamError is returned by Run when the stream reported an error event
// and ended without a final result.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "audit: stream error: " + e.Message
}

// CategoryView is one category in a View.
type CategoryView struct {
	Category  model.Category     `json:"category"`
	Weight    float64            `json:"weight"`
	Score     float64            `json:"score"`
	Completed int                `json:"completed"`
	Total     int                `json:"total"`
	Tests     []model.TestResult `json:"tests"`
}

// View is a consistent snapshot of the aggregator.
type View struct {
	Status          Status                 `json:"status"`
	Token           Token                  `json:"token,omitempty"`
	SubjectID       string                 `json:"subjectId,omitempty"`
	OverallScore    int                    `json:"overallScore"`
	Categories      []CategoryView         `json:"categories"`
	BotAccessStatus []model.BotAccessEntry `json:"botAccessStatus"`
	Error           string                 `json:"error,omitempty"`
	Result          *model.AuditResult     `json:"result,omitempty"`
	StartedAt       time.Time              `json:"startedAt,omitzero"`
	UpdatedAt       time.Time              `json:"updatedAt,omitzero"`
}

// Aggregator owns at most one audit run at a time. Starting a run
// invalidates the previous one; events carrying a stale token are dropped.
type Aggregator struct {
	log *zap.Logger
	now func() time.Time

	mu        sync.Mutex
	token     Token
	subjectID string
	status    Status
	acc       *Accumulator
	final     *model.AuditResult
	errMsg    string
	stream    pipelineapi.Stream
	cancel    context.CancelFunc
	started   time.Time
	updated   time.Time

	seq       uint64
	deliverMu sync.Mutex
	delivered uint64

	subsMu  sync.Mutex
	subs    map[int]func(View)
	nextSub int
}

// NewAggregator returns an idle aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		log:    zap.L().With(zap.String("component", "audit")),
		now:    time.Now,
		status: StatusIdle,
		acc:    NewAccumulator(),
		subs:   make(map[int]func(View)),
	}
}

// Begin starts a new run for subjectID: the current token is invalidated,
// its transport closed and its accumulator discarded.
func (a *Aggregator) Begin(subjectID string) Token {
	a.mu.Lock()
	a.invalidateLocked()
	a.token = newToken()
	a.subjectID = subjectID
	a.status = StatusStreaming
	a.acc = NewAccumulator()
	a.final = nil
	a.errMsg = ""
	a.started = a.now()
	a.updated = a.started
	token := a.token
	view, seq := a.viewLocked(), a.nextSeqLocked()
	a.mu.Unlock()

	a.notify(seq, view)
	return token
}

// Cancel aborts the current run. The transport is closed and the token
// invalidated under the same lock, so no further event is read or merged.
// A run that already finished is left as it is; after a final result only a
// leftover transport is released.
func (a *Aggregator) Cancel() {
	a.mu.Lock()
	if a.token == "" {
		a.mu.Unlock()
		return
	}
	if a.final != nil {
		a.closeTransportLocked()
		a.mu.Unlock()
		return
	}
	if a.status != StatusStreaming && a.cancel == nil && a.stream == nil {
		a.mu.Unlock()
		return
	}
	a.invalidateLocked()
	if a.status == StatusStreaming {
		a.status = StatusCancelled
	}
	a.updated = a.now()
	view, seq := a.viewLocked(), a.nextSeqLocked()
	a.mu.Unlock()

	a.log.Info("audit: run cancelled", zap.String("subject_id", view.SubjectID))
	a.notify(seq, view)
}

// invalidateLocked closes the transport of the current run and clears the
// token. Callers hold a.mu.
func (a *Aggregator) invalidateLocked() {
	a.closeTransportLocked()
	a.token = ""
}

func (a *Aggregator) closeTransportLocked() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.stream != nil {
		a.stream.Close() //nolint:errcheck
		a.stream = nil
	}
}

// Apply merges ev if token is current and no final result has arrived yet.
// It reports whether the aggregator state changed.
func (a *Aggregator) Apply(token Token, ev model.StreamEvent) bool {
	a.mu.Lock()
	if token == "" || token != a.token || a.final != nil {
		a.mu.Unlock()
		return false
	}

	switch ev.Type {
	case model.EventProgress:
		if !a.acc.Apply(ev) {
			a.mu.Unlock()
			a.log.Debug("audit: dropping progress event", zap.String("bucket", string(ev.Bucket)))
			return false
		}
	case model.EventError:
		a.errMsg = ev.Error
		if a.errMsg == "" {
			a.errMsg = "unknown stream error"
		}
		a.status = StatusFailed
	case model.EventFinal:
		if ev.Result == nil {
			a.mu.Unlock()
			a.log.Warn("audit: final event without result")
			return false
		}
		a.final = ev.Result
		a.acc = NewAccumulator()
		a.errMsg = ""
		a.status = StatusComplete
	default:
		a.mu.Unlock()
		return false
	}
	a.updated = a.now()
	view, seq := a.viewLocked(), a.nextSeqLocked()
	a.mu.Unlock()

	a.notify(seq, view)
	return true
}

// Run begins a new run for subjectID, opens its stream and applies events
// in order until the stream ends, a final result arrives, or the run is
// cancelled. Cancellation, whether through ctx, Cancel or a later Begin, is
// not an error.
func (a *Aggregator) Run(ctx context.Context, subjectID string, open Opener) error {
	log := a.log.With(zap.String("subject_id", subjectID))
	token := a.Begin(subjectID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !a.attach(token, cancel, nil) {
		return nil
	}

	stream, err := open(runCtx, subjectID)
	if err != nil {
		if runCtx.Err() != nil {
			a.cancelled(token)
			return nil
		}
		a.failed(token, err.Error())
		return eris.Wrapf(err, "audit: open stream for %s", subjectID)
	}
	defer stream.Close() //nolint:errcheck
	if !a.attach(token, cancel, stream) {
		return nil
	}
	log.Info("audit: stream opened", zap.String("token", string(token)))

	for {
		ev, err := stream.Next()
		if err != nil {
			if !a.current(token) {
				return nil
			}
			if runCtx.Err() != nil {
				a.cancelled(token)
				return nil
			}
			if errors.Is(err, io.EOF) {
				return a.ended(token)
			}
			a.failed(token, err.Error())
			return eris.Wrapf(err, "audit: read stream for %s", subjectID)
		}

		if !a.Apply(token, ev) && !a.current(token) {
			return nil
		}
		if ev.Type == model.EventFinal && ev.Result != nil {
			log.Info("audit: final result received", zap.Int("overall_score", ev.Result.OverallScore))
			a.detach(token)
			return nil
		}
	}
}

// attach records the transport of run token. It reports false when the run
// has already been superseded.
func (a *Aggregator) attach(token Token, cancel context.CancelFunc, stream pipelineapi.Stream) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != token {
		return false
	}
	a.cancel = cancel
	a.stream = stream
	return true
}

// detach forgets the transport of a finished run without invalidating its
// token, so the view keeps reporting it.
func (a *Aggregator) detach(token Token) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token == token {
		a.stream = nil
		a.cancel = nil
	}
}

func (a *Aggregator) current(token Token) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return token != "" && a.token == token
}

func (a *Aggregator) cancelled(token Token) {
	a.finish(token, StatusCancelled, "")
}

func (a *Aggregator) failed(token Token, msg string) {
	a.log.Warn("audit: stream failed", zap.String("error", msg))
	a.finish(token, StatusFailed, msg)
}

// ended handles a stream that closed without a final event.
func (a *Aggregator) ended(token Token) error {
	a.mu.Lock()
	msg := a.errMsg
	a.mu.Unlock()
	if msg != "" {
		a.finish(token, StatusFailed, msg)
		return &StreamError{Message: msg}
	}
	a.log.Warn("audit: stream ended without final result")
	a.finish(token, StatusIncomplete, "")
	return nil
}

func (a *Aggregator) finish(token Token, status Status, msg string) {
	a.mu.Lock()
	if a.token != token || a.final != nil {
		a.mu.Unlock()
		return
	}
	a.status = status
	if msg != "" {
		a.errMsg = msg
	}
	a.stream = nil
	a.cancel = nil
	a.updated = a.now()
	view, seq := a.viewLocked(), a.nextSeqLocked()
	a.mu.Unlock()

	a.notify(seq, view)
}

// View returns a consistent snapshot of the current run.
func (a *Aggregator) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewLocked()
}

func (a *Aggregator) viewLocked() View {
	v := View{
		Status:    a.status,
		Token:     a.token,
		SubjectID: a.subjectID,
		Error:     a.errMsg,
		StartedAt: a.started,
		UpdatedAt: a.updated,
	}
	if a.final != nil {
		return finalView(v, a.final)
	}

	v.OverallScore = a.acc.Overall()
	v.BotAccessStatus = a.acc.BotAccess()
	v.Categories = make([]CategoryView, 0, len(model.Categories))
	for _, c := range model.Categories {
		v.Categories = append(v.Categories, CategoryView{
			Category:  c,
			Weight:    c.Weight(),
			Score:     a.acc.CategoryScore(c),
			Completed: a.acc.Completed(c),
			Total:     a.acc.Total(c),
			Tests:     a.acc.Tests(c),
		})
	}
	return v
}

// finalView fills v exclusively from the final payload.
func finalView(v View, r *model.AuditResult) View {
	v.Result = r
	v.OverallScore = r.OverallScore
	v.BotAccessStatus = slices.Clone(r.BotAccessStatus)
	v.Categories = make([]CategoryView, 0, len(model.Categories))
	for _, c := range model.Categories {
		detail := r.DetailedResults[c]
		score, ok := r.ScoreBreakdown[c]
		if !ok {
			score = detail.Score
		}
		weight := detail.Weight
		if weight == 0 {
			weight = c.Weight()
		}
		v.Categories = append(v.Categories, CategoryView{
			Category:  c,
			Weight:    weight,
			Score:     score,
			Completed: len(detail.Tests),
			Total:     len(detail.Tests),
			Tests:     slices.Clone(detail.Tests),
		})
	}
	return v
}

// Subscribe registers fn to receive a View after every state change.
// Views are delivered one at a time in the order the changes happened,
// outside the state lock. fn may read View but must not start, apply to
// or cancel a run.
func (a *Aggregator) Subscribe(fn func(View)) func() {
	a.subsMu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = fn
	a.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.subsMu.Lock()
			delete(a.subs, id)
			a.subsMu.Unlock()
		})
	}
}

func (a *Aggregator) nextSeqLocked() uint64 {
	a.seq++
	return a.seq
}

// notify delivers v unless a newer view has already been delivered.
func (a *Aggregator) notify(seq uint64, v View) {
	a.deliverMu.Lock()
	defer a.deliverMu.Unlock()
	if seq <= a.delivered {
		return
	}
	a.delivered = seq

	a.subsMu.Lock()
	fns := make([]func(View), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.subsMu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
