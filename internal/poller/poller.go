// Package poller multiplexes pipeline status polling: one network poll loop
// per subject, fanned out to every subscriber of that subject.
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/brandpulse/internal/model"
)

const defaultInterval = 3 * time.Second

// DefaultTerminalStages are the stages that must be completed for a
// subject's round to count as finished.
var DefaultTerminalStages = []model.StageName{
	model.StageCollection,
	model.StageScoring,
	model.StageDomainReadiness,
	model.StageRecommendations,
}

// StatusFetcher fetches one PipelineSnapshot.
type StatusFetcher interface {
	GetStatus(ctx context.Context, subjectID string) (*model.PipelineSnapshot, error)
}

// Update is broadcast to subscribers on every successful tick.
type Update struct {
	SubjectID  string                  `json:"subjectId"`
	Snapshot   *model.PipelineSnapshot `json:"snapshot"`
	Percent    int                     `json:"percent"`
	IsComplete bool                    `json:"isComplete"`
	PolledAt   time.Time               `json:"polledAt"`
}

// Callback receives updates. Callbacks for one subject run sequentially on
// that subject's poll goroutine and may call Subscribe or unsubscribe.
type Callback func(Update)

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithTerminalStages overrides which stages decide completion.
func WithTerminalStages(stages ...model.StageName) Option {
	return func(p *Poller) {
		if len(stages) > 0 {
			p.terminal = stages
		}
	}
}

// WithLogger replaces the component logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.log = l
		}
	}
}

type subscription struct {
	cb     Callback
	active bool
}

type subjectState struct {
	subs   []*subscription
	cancel context.CancelFunc
	latest *Update
}

// Poller is the shared per-subject poll registry. Construct one and pass it
// to every consumer.
type Poller struct {
	fetcher  StatusFetcher
	interval time.Duration
	terminal []model.StageName
	log      *zap.Logger

	mu        sync.Mutex
	subjects  map[string]*subjectState
	completed map[string]Update
	closed    bool
	wg        sync.WaitGroup
}

// New creates a Poller.
func New(fetcher StatusFetcher, opts ...Option) *Poller {
	p := &Poller{
		fetcher:   fetcher,
		interval:  defaultInterval,
		terminal:  DefaultTerminalStages,
		log:       zap.L().With(zap.String("component", "poller")),
		subjects:  make(map[string]*subjectState),
		completed: make(map[string]Update),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe registers cb for subjectID and returns its unsubscribe func.
// The first subscriber starts the subject's poll loop. A subject whose round
// already completed answers immediately with a synthetic complete update
// and is not polled again until Reset.
func (p *Poller) Subscribe(subjectID string, cb Callback) (unsubscribe func()) {
	sub := &subscription{cb: cb, active: true}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return func() {}
	}
	st, ok := p.subjects[subjectID]
	if !ok {
		st = &subjectState{}
		p.subjects[subjectID] = st
	}
	st.subs = append(st.subs, sub)

	done, isDone := p.completed[subjectID]
	if !isDone && st.cancel == nil {
		p.startLocked(subjectID, st)
	}
	p.mu.Unlock()

	if isDone {
		cb(done)
	}

	var once sync.Once
	return func() {
		once.Do(func() { p.unsubscribe(subjectID, sub) })
	}
}

func (p *Poller) unsubscribe(subjectID string, sub *subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub.active = false
	st, ok := p.subjects[subjectID]
	if !ok {
		return
	}
	for i, s := range st.subs {
		if s == sub {
			st.subs = append(st.subs[:i:i], st.subs[i+1:]...)
			break
		}
	}
	if len(st.subs) > 0 {
		return
	}
	if st.cancel != nil {
		st.cancel()
	}
	delete(p.subjects, subjectID)
	p.log.Debug("poller: last subscriber left", zap.String("subject_id", subjectID))
}

// Reset forgets a subject's completion so the next Subscribe (or the current
// subscribers) polls again.
func (p *Poller) Reset(subjectID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.completed, subjectID)
	if st, ok := p.subjects[subjectID]; ok && st.cancel == nil && len(st.subs) > 0 && !p.closed {
		p.startLocked(subjectID, st)
	}
}

// Latest returns the most recent update for subjectID, if any.
func (p *Poller) Latest(subjectID string) (Update, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if u, ok := p.completed[subjectID]; ok {
		return u, true
	}
	if st, ok := p.subjects[subjectID]; ok && st.latest != nil {
		return *st.latest, true
	}
	return Update{}, false
}

// Subscribers returns the number of active subscribers for subjectID.
func (p *Poller) Subscribers(subjectID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.subjects[subjectID]; ok {
		return len(st.subs)
	}
	return 0
}

// Close stops every poll loop and waits for them to exit.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	for _, st := range p.subjects {
		if st.cancel != nil {
			st.cancel()
		}
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) startLocked(subjectID string, st *subjectState) {
	ctx, cancel := context.WithCancel(context.Background())
	st.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, subjectID, st)
	}()
	p.log.Debug("poller: started", zap.String("subject_id", subjectID), zap.Duration("interval", p.interval))
}

func (p *Poller) run(ctx context.Context, subjectID string, st *subjectState) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if p.tick(ctx, subjectID, st) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick fetches and broadcasts one snapshot. It returns true when the loop
// should stop.
func (p *Poller) tick(ctx context.Context, subjectID string, st *subjectState) bool {
	snap, err := p.fetcher.GetStatus(ctx, subjectID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		p.log.Warn("poller: status fetch failed",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		return false
	}

	u := Update{
		SubjectID:  subjectID,
		Snapshot:   snap,
		Percent:    snap.Percent(),
		IsComplete: snap.Completed(p.terminal...),
		PolledAt:   time.Now().UTC(),
	}

	p.mu.Lock()
	if ctx.Err() != nil {
		p.mu.Unlock()
		return true
	}
	st.latest = &u
	if u.IsComplete {
		p.completed[subjectID] = u
		st.cancel()
		st.cancel = nil
	}
	subs := make([]*subscription, len(st.subs))
	copy(subs, st.subs)
	p.mu.Unlock()

	p.broadcast(subs, u)

	if u.IsComplete {
		p.log.Info("poller: pipeline round complete", zap.String("subject_id", subjectID))
		return true
	}
	return false
}

func (p *Poller) broadcast(subs []*subscription, u Update) {
	for _, sub := range subs {
		p.mu.Lock()
		active := sub.active
		p.mu.Unlock()
		if active {
			sub.cb(u)
		}
	}
}
