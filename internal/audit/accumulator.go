package audit

import (
	"math"
	"slices"

	"github.com/sells-group/brandpulse/internal/model"
)

type categoryState struct {
	tests     []model.TestResult
	completed int
	total     int
	hasTotal  bool
}

// Accumulator merges progress events into per-category test lists and
// derives an approximate live score from them. It is not safe for
// concurrent use; the Aggregator serialises access.
type Accumulator struct {
	categories map[model.Category]*categoryState
	botAccess  []model.BotAccessEntry
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{categories: make(map[model.Category]*categoryState, len(model.Categories))}
}

// Apply merges one progress event. It reports false for events it cannot
// place: non-progress events and unknown categories.
func (a *Accumulator) Apply(ev model.StreamEvent) bool {
	if ev.Type != model.EventProgress || !ev.Bucket.Valid() {
		return false
	}

	st := a.categories[ev.Bucket]
	if st == nil {
		st = &categoryState{}
		a.categories[ev.Bucket] = st
	}

	if ev.Total != nil {
		st.total = max(*ev.Total, 0)
		st.hasTotal = true
	}
	st.tests = append(st.tests, ev.Tests...)

	if ev.Bucket == model.CategoryBotAccess && ev.BotAccessStatus != nil {
		a.botAccess = slices.Clone(ev.BotAccessStatus)
	}

	next := st.completed + len(ev.Tests)
	if ev.Completed > 0 {
		next = ev.Completed
	}
	st.completed = max(st.completed, next)
	if st.hasTotal {
		st.completed = min(st.completed, st.total)
	}
	return true
}

// CategoryScore is the mean score of the tests received so far for c, or
// 0 when none have arrived.
func (a *Accumulator) CategoryScore(c model.Category) float64 {
	st := a.categories[c]
	if st == nil || len(st.tests) == 0 {
		return 0
	}
	var sum float64
	for _, t := range st.tests {
		sum += t.Score
	}
	return sum / float64(len(st.tests))
}

// Overall is the weighted sum of category means, rounded to the nearest
// integer. Categories with no tests contribute 0.
func (a *Accumulator) Overall() int {
	var total float64
	for _, c := range model.Categories {
		total += a.CategoryScore(c) * c.Weight()
	}
	return int(math.Round(total))
}

// Completed returns the saturating completed counter for c.
func (a *Accumulator) Completed(c model.Category) int {
	if st := a.categories[c]; st != nil {
		return st.completed
	}
	return 0
}

// Total returns the last declared total for c, or 0 when none was declared.
func (a *Accumulator) Total(c model.Category) int {
	if st := a.categories[c]; st != nil {
		return st.total
	}
	return 0
}

// Tests returns a copy of the tests received for c.
func (a *Accumulator) Tests(c model.Category) []model.TestResult {
	if st := a.categories[c]; st != nil {
		return slices.Clone(st.tests)
	}
	return nil
}

// BotAccess returns a copy of the current bot access list.
func (a *Accumulator) BotAccess() []model.BotAccessEntry {
	return slices.Clone(a.botAccess)
}
