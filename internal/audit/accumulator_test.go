package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/brandpulse/internal/model"
)

func intPtr(n int) *int { return &n }

// progress builds a progress event. A negative total leaves it undeclared.
func progress(bucket model.Category, total, completed int, scores ...float64) model.StreamEvent {
	ev := model.StreamEvent{Type: model.EventProgress, Bucket: bucket, Completed: completed}
	if total >= 0 {
		ev.Total = intPtr(total)
	}
	for i, s := range scores {
		ev.Tests = append(ev.Tests, model.TestResult{Name: string(bucket) + "-" + string(rune('a'+i)), Score: s})
	}
	return ev
}

func TestAccumulator_MeanAndWeightedOverall(t *testing.T) {
	acc := NewAccumulator()
	assert.True(t, acc.Apply(progress(model.CategoryTechnicalCrawlability, 5, 0, 80)))
	assert.True(t, acc.Apply(progress(model.CategoryTechnicalCrawlability, 5, 0, 60)))

	assert.InDelta(t, 70.0, acc.CategoryScore(model.CategoryTechnicalCrawlability), 1e-9)
	assert.Equal(t, 0.0, acc.CategoryScore(model.CategoryContentQuality))
	assert.Equal(t, 10, acc.Overall())
	assert.Equal(t, 2, acc.Completed(model.CategoryTechnicalCrawlability))
	assert.Equal(t, 5, acc.Total(model.CategoryTechnicalCrawlability))
}

func TestAccumulator_OverallAcrossCategories(t *testing.T) {
	acc := NewAccumulator()
	for _, c := range model.Categories {
		acc.Apply(progress(c, 1, 1, 100))
	}
	assert.Equal(t, 100, acc.Overall())
}

func TestAccumulator_CompletedNeverExceedsTotal(t *testing.T) {
	tests := []struct {
		name   string
		events []model.StreamEvent
		want   int
	}{
		{
			name:   "more tests than total",
			events: []model.StreamEvent{progress(model.CategoryContentQuality, 2, 0, 10, 20, 30)},
			want:   2,
		},
		{
			name:   "reported counter past total",
			events: []model.StreamEvent{progress(model.CategoryContentQuality, 3, 9, 10)},
			want:   3,
		},
		{
			name: "reported counter going backwards",
			events: []model.StreamEvent{
				progress(model.CategoryContentQuality, 4, 3, 10),
				progress(model.CategoryContentQuality, 4, 1, 10),
			},
			want: 3,
		},
		{
			name: "total shrinks",
			events: []model.StreamEvent{
				progress(model.CategoryContentQuality, 10, 6),
				progress(model.CategoryContentQuality, 4, 0, 50),
			},
			want: 4,
		},
		{
			name: "total declared later",
			events: []model.StreamEvent{
				progress(model.CategoryContentQuality, -1, 0, 1, 2, 3),
				progress(model.CategoryContentQuality, 2, 0),
			},
			want: 2,
		},
		{
			name:   "declared zero total",
			events: []model.StreamEvent{progress(model.CategoryContentQuality, 0, 0, 10, 20)},
			want:   0,
		},
		{
			name:   "no total declared",
			events: []model.StreamEvent{progress(model.CategoryContentQuality, -1, 0, 10, 20)},
			want:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := NewAccumulator()
			for _, ev := range tt.events {
				acc.Apply(ev)
				if ev.Total != nil {
					total := acc.Total(model.CategoryContentQuality)
					assert.LessOrEqual(t, acc.Completed(model.CategoryContentQuality), total)
				}
			}
			assert.Equal(t, tt.want, acc.Completed(model.CategoryContentQuality))
		})
	}
}

func TestAccumulator_BotAccessReplacedWholesale(t *testing.T) {
	acc := NewAccumulator()
	acc.Apply(model.StreamEvent{
		Type:   model.EventProgress,
		Bucket: model.CategoryBotAccess,
		Total:  intPtr(3),
		BotAccessStatus: []model.BotAccessEntry{
			{Name: "GPTBot", Allowed: true},
			{Name: "ClaudeBot", Allowed: true},
		},
	})
	acc.Apply(model.StreamEvent{
		Type:            model.EventProgress,
		Bucket:          model.CategoryBotAccess,
		Total:           intPtr(3),
		Completed:       3,
		BotAccessStatus: []model.BotAccessEntry{{Name: "PerplexityBot", Allowed: false}},
	})

	assert.Equal(t, []model.BotAccessEntry{{Name: "PerplexityBot", Allowed: false}}, acc.BotAccess())
	assert.Equal(t, 3, acc.Completed(model.CategoryBotAccess))
}

func TestAccumulator_RejectsNonProgress(t *testing.T) {
	acc := NewAccumulator()
	assert.False(t, acc.Apply(model.StreamEvent{Type: model.EventError, Error: "x"}))
	assert.False(t, acc.Apply(progress("unknownBucket", 1, 1, 50)))
	assert.Equal(t, 0, acc.Overall())
}

func TestAccumulator_TestsAreCopied(t *testing.T) {
	acc := NewAccumulator()
	acc.Apply(progress(model.CategoryAEOOptimization, 2, 0, 40))

	got := acc.Tests(model.CategoryAEOOptimization)
	got[0].Score = 99
	assert.Equal(t, 40.0, acc.Tests(model.CategoryAEOOptimization)[0].Score)
	assert.Nil(t, acc.Tests(model.CategorySemanticStructure))
}
