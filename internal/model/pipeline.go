package model

// StageName identifies one phase of the backend pipeline.
type StageName string

const (
	StageCollection      StageName = "collection"
	StageScoring         StageName = "scoring"
	StageDomainReadiness StageName = "domain_readiness"
	StageRecommendations StageName = "recommendations"
	StageFinalization    StageName = "finalization"
)

// Stages lists every pipeline stage in execution order.
var Stages = []StageName{
	StageCollection,
	StageScoring,
	StageDomainReadiness,
	StageRecommendations,
	StageFinalization,
}

// StageStatus is the observable state of a stage. Statuses only move forward
// within one pipeline run: pending -> active -> completed.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusActive    StageStatus = "active"
	StageStatusCompleted StageStatus = "completed"
)

// rank orders statuses so regressions can be detected. Unknown and empty
// values rank as pending.
func (s StageStatus) rank() int {
	switch s {
	case StageStatusActive:
		return 1
	case StageStatusCompleted:
		return 2
	default:
		return 0
	}
}

// Normalize maps empty or unrecognised values to pending.
func (s StageStatus) Normalize() StageStatus {
	switch s {
	case StageStatusActive, StageStatusCompleted:
		return s
	default:
		return StageStatusPending
	}
}

// StageProgress is the per-stage block of the status payload.
type StageProgress struct {
	Total     int         `json:"total,omitempty" yaml:"total,omitempty"`
	Completed int         `json:"completed,omitempty" yaml:"completed,omitempty"`
	Status    StageStatus `json:"status" yaml:"status"`
	LastRun   string      `json:"last_run,omitempty" yaml:"last_run,omitempty"`
}

// StageSet groups the five stage blocks of a snapshot.
type StageSet struct {
	Collection      StageProgress `json:"collection" yaml:"collection"`
	Scoring         StageProgress `json:"scoring" yaml:"scoring"`
	DomainReadiness StageProgress `json:"domain_readiness" yaml:"domain_readiness"`
	Recommendations StageProgress `json:"recommendations" yaml:"recommendations"`
	Finalization    StageProgress `json:"finalization" yaml:"finalization"`
}

// QueryProgress counts collection queries.
type QueryProgress struct {
	Total     int `json:"total" yaml:"total"`
	Completed int `json:"completed" yaml:"completed"`
}

// ScoringFlags reports which scoring passes have produced output.
type ScoringFlags struct {
	Positions  bool `json:"positions" yaml:"positions"`
	Sentiments bool `json:"sentiments" yaml:"sentiments"`
	Citations  bool `json:"citations" yaml:"citations"`
}

// PipelineSnapshot is one poll of GET /pipeline/{subjectId}/status.
type PipelineSnapshot struct {
	Stages           StageSet      `json:"stages" yaml:"stages"`
	Queries          QueryProgress `json:"queries" yaml:"queries"`
	Scoring          ScoringFlags  `json:"scoring" yaml:"scoring"`
	CurrentOperation string        `json:"currentOperation,omitempty" yaml:"current_operation,omitempty"`
}

// Stage returns the progress block for the named stage.
func (s *PipelineSnapshot) Stage(name StageName) StageProgress {
	switch name {
	case StageCollection:
		return s.Stages.Collection
	case StageScoring:
		return s.Stages.Scoring
	case StageDomainReadiness:
		return s.Stages.DomainReadiness
	case StageRecommendations:
		return s.Stages.Recommendations
	case StageFinalization:
		return s.Stages.Finalization
	default:
		return StageProgress{Status: StageStatusPending}
	}
}

// Status returns the normalised status of the named stage.
func (s *PipelineSnapshot) Status(name StageName) StageStatus {
	if s == nil {
		return StageStatusPending
	}
	return s.Stage(name).Status.Normalize()
}

// Completed reports whether every listed stage is completed.
func (s *PipelineSnapshot) Completed(stages ...StageName) bool {
	if s == nil || len(stages) == 0 {
		return false
	}
	for _, name := range stages {
		if s.Status(name) != StageStatusCompleted {
			return false
		}
	}
	return true
}

// Regressed reports whether any stage moved backwards relative to prev.
// Within one run statuses never regress, so a regression marks a new run.
func (s *PipelineSnapshot) Regressed(prev *PipelineSnapshot) bool {
	if s == nil || prev == nil {
		return false
	}
	for _, name := range Stages {
		if s.Status(name).rank() < prev.Status(name).rank() {
			return true
		}
	}
	return false
}

// Percent derives overall progress (0-100) from completed stages, with
// collection weighted by its query counter while it is active.
func (s *PipelineSnapshot) Percent() int {
	if s == nil {
		return 0
	}
	var done float64
	for _, name := range Stages {
		switch s.Status(name) {
		case StageStatusCompleted:
			done++
		case StageStatusActive:
			if name == StageCollection && s.Queries.Total > 0 {
				done += float64(min(s.Queries.Completed, s.Queries.Total)) / float64(s.Queries.Total)
			}
		}
	}
	return int(done / float64(len(Stages)) * 100)
}
