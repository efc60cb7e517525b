package models

// PositionSkillProfile is read-only reference data describing what a
// position requires.
type PositionSkillProfile struct {
	Name               string   `json:"name" yaml:"name"`
	Required           []string `json:"required" yaml:"required"`
	Preferred          []string `json:"preferred" yaml:"preferred"`
	MinExperienceYears int      `json:"min_experience_years" yaml:"min_experience_years"`
}
