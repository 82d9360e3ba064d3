package model

import "time"

// Category is one weighted section of the domain-readiness audit.
type Category string

const (
	CategoryTechnicalCrawlability Category = "technicalCrawlability"
	CategoryContentQuality        Category = "contentQuality"
	CategorySemanticStructure     Category = "semanticStructure"
	CategoryAccessibilityAndBrand Category = "accessibilityAndBrand"
	CategoryAEOOptimization       Category = "aeoOptimization"
	CategoryBotAccess             Category = "botAccess"
)

// Categories lists the audit categories in display order.
var Categories = []Category{
	CategoryTechnicalCrawlability,
	CategoryContentQuality,
	CategorySemanticStructure,
	CategoryAccessibilityAndBrand,
	CategoryAEOOptimization,
	CategoryBotAccess,
}

// CategoryWeights are the fixed composite-score weights. They sum to 1.0.
var CategoryWeights = map[Category]float64{
	CategoryTechnicalCrawlability: 0.15,
	CategoryContentQuality:        0.25,
	CategorySemanticStructure:     0.20,
	CategoryAccessibilityAndBrand: 0.15,
	CategoryAEOOptimization:       0.10,
	CategoryBotAccess:             0.15,
}

// Weight returns the fixed weight of c, or 0 for unknown categories.
func (c Category) Weight() float64 {
	return CategoryWeights[c]
}

// Valid reports whether c is one of the six audit categories.
func (c Category) Valid() bool {
	_, ok := CategoryWeights[c]
	return ok
}

// TestResult is a single audit check. Immutable once received.
type TestResult struct {
	Name    string  `json:"name" yaml:"name"`
	Score   float64 `json:"score" yaml:"score"`
	Status  string  `json:"status,omitempty" yaml:"status,omitempty"`
	Details string  `json:"details,omitempty" yaml:"details,omitempty"`
}

// BotAccessEntry reports whether one crawler is allowed by the site.
type BotAccessEntry struct {
	Name      string `json:"name" yaml:"name"`
	UserAgent string `json:"userAgent,omitempty" yaml:"user_agent,omitempty"`
	Allowed   bool   `json:"allowed" yaml:"allowed"`
}

// CategoryResult is the detailed outcome of one category.
type CategoryResult struct {
	Score           float64      `json:"score" yaml:"score"`
	Weight          float64      `json:"weight" yaml:"weight"`
	Tests           []TestResult `json:"tests" yaml:"tests"`
	Recommendations []string     `json:"recommendations,omitempty" yaml:"recommendations,omitempty"`
}

// AuditResult is the authoritative, fully-computed outcome of an audit run.
type AuditResult struct {
	OverallScore          int                         `json:"overallScore" yaml:"overall_score"`
	ScoreBreakdown        map[Category]float64        `json:"scoreBreakdown" yaml:"score_breakdown"`
	DetailedResults       map[Category]CategoryResult `json:"detailedResults" yaml:"detailed_results"`
	BotAccessStatus       []BotAccessEntry            `json:"botAccessStatus" yaml:"bot_access_status"`
	CriticalIssues        []string                    `json:"criticalIssues,omitempty" yaml:"critical_issues,omitempty"`
	ImprovementPriorities []string                    `json:"improvementPriorities,omitempty" yaml:"improvement_priorities,omitempty"`
}

// AuditRecord is a stored AuditResult.
type AuditRecord struct {
	ID        string       `json:"id" yaml:"id"`
	SubjectID string       `json:"subject_id" yaml:"subject_id"`
	Result    *AuditResult `json:"result" yaml:"result"`
	CreatedAt time.Time    `json:"created_at" yaml:"created_at"`
}

// Recommendation is one generated action item.
type Recommendation struct {
	Title    string `json:"title" yaml:"title"`
	Priority string `json:"priority,omitempty" yaml:"priority,omitempty"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	Detail   string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Results is the computed output read by dashboards through the
// staleness-checked cache.
type Results struct {
	SubjectID       string           `json:"subjectId" yaml:"subject_id"`
	VisibilityScore float64          `json:"visibilityScore" yaml:"visibility_score"`
	Audit           *AuditResult     `json:"audit,omitempty" yaml:"audit,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty" yaml:"recommendations,omitempty"`
	GeneratedAt     time.Time        `json:"generatedAt" yaml:"generated_at"`
}
