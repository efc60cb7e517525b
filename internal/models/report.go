package models

import "time"

// ScoreLevel is a qualitative band derived from the overall score
type ScoreLevel struct {
	Name           string  `json:"name" yaml:"name"`
	Recommendation string  `json:"recommendation" yaml:"recommendation"`
	MinScore       float64 `json:"min_score" yaml:"min_score"`
}

// InterviewerContribution is one interviewer's share of the overall score
type InterviewerContribution struct {
	Role          Role           `json:"role"`
	Score         float64        `json:"score"`
	Weight        float64        `json:"weight"`
	Contribution  float64        `json:"contribution"`
	Counted       bool           `json:"counted"`
	Origin        FeedbackOrigin `json:"origin"`
	DefaultReason DefaultReason  `json:"default_reason,omitempty"`
	Comment       string         `json:"comment,omitempty"`
}

// SkillGapResult compares demonstrated skills with a position profile
type SkillGapResult struct {
	Position            string   `json:"position"`
	MatchScore          float64  `json:"match_score"`
	Demonstrated        []string `json:"demonstrated"`
	MatchedRequired     []string `json:"matched_required"`
	ResumeOnly          []string `json:"resume_only"`
	Gaps                []string `json:"gaps"`
	MatchedPreferred    []string `json:"matched_preferred"`
	AdditionalStrengths []string `json:"additional_strengths"`
	MinExperienceYears  int      `json:"min_experience_years"`
}

// PriorityArea is a dimension that scored below the priority threshold
type PriorityArea struct {
	Dimension string  `json:"dimension"`
	Score     float64 `json:"score"`
}

// ImprovementPlan lists what the candidate should work on
type ImprovementPlan struct {
	PriorityAreas   []PriorityArea `json:"priority_areas"`
	Suggestions     []string       `json:"suggestions"`
	SkillsToDevelop []string       `json:"skills_to_develop"`
}

// AssessmentReport is the final, immutable result of an interview. A forced
// regeneration creates a new report with a higher Version.
type AssessmentReport struct {
	ID              string                    `json:"id"`
	SessionID       string                    `json:"session_id"`
	Version         int                       `json:"version"`
	OverallScore    float64                   `json:"overall_score"`
	Level           string                    `json:"level"`
	Recommendation  string                    `json:"recommendation"`
	DimensionScores map[string]float64        `json:"dimension_scores"`
	Contributions   []InterviewerContribution `json:"contributions"`
	SkillGap        SkillGapResult            `json:"skill_gap"`
	ImprovementPlan ImprovementPlan           `json:"improvement_plan"`
	Strengths       []string                  `json:"strengths"`
	Degraded        bool                      `json:"degraded"`
	GeneratedAt     time.Time                 `json:"generated_at"`
}
