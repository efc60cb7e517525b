// Package policy holds the static scoring policy: interviewer and dimension
// weights, score bands, the skill vocabulary, position profiles and stage
// plans. A Table is immutable once built and is shared by every session
// without locking.
package policy

import (
	"sort"
	"strings"

	"github.com/terra-clan/interview-engine/internal/models"
)

// GenericPosition is the profile used for unknown positions
const GenericPosition = "generic"

// DefaultDifficulty is used when a session does not name a known difficulty
const DefaultDifficulty = "medium"

// Table is the scoring policy
type Table struct {
	roleWeights       map[models.Role]float64
	dimensionWeights  map[models.Role]map[string]float64
	levels            []models.ScoreLevel
	vocabulary        []string
	profiles          map[string]*models.PositionSkillProfile
	stagePlans        map[string][]models.Role
	neutralScore      float64
	priorityThreshold float64
	maxPriorityAreas  int
}

// RoleWeight returns the interviewer weight for a role
func (t *Table) RoleWeight(role models.Role) (float64, bool) {
	w, ok := t.roleWeights[role]
	return w, ok
}

// DimensionWeight returns the weight of a dimension within a role
func (t *Table) DimensionWeight(role models.Role, dimension string) (float64, bool) {
	dims, ok := t.dimensionWeights[role]
	if !ok {
		return 0, false
	}
	w, ok := dims[dimension]
	return w, ok
}

// Dimensions returns the scoring dimensions of a role in stable order
func (t *Table) Dimensions(role models.Role) []string {
	dims := t.dimensionWeights[role]
	names := make([]string, 0, len(dims))
	for name := range dims {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasRole reports whether the role is known to the policy
func (t *Table) HasRole(role models.Role) bool {
	_, ok := t.dimensionWeights[role]
	return ok
}

// LevelFor maps a 0-100 score to its band. Levels are checked from the
// highest threshold down and the first threshold <= score wins.
func (t *Table) LevelFor(score float64) models.ScoreLevel {
	for _, level := range t.levels {
		if score >= level.MinScore {
			return level
		}
	}
	return t.levels[len(t.levels)-1]
}

// Levels returns the score bands, highest first
func (t *Table) Levels() []models.ScoreLevel {
	return append([]models.ScoreLevel(nil), t.levels...)
}

// Vocabulary returns the known skill keywords
func (t *Table) Vocabulary() []string {
	return append([]string(nil), t.vocabulary...)
}

// Profile looks up a position profile by name, falling back to the generic
// profile for unknown positions.
func (t *Table) Profile(position string) *models.PositionSkillProfile {
	if p, ok := t.profiles[NormalizeName(position)]; ok {
		return p
	}
	return t.profiles[GenericPosition]
}

// LookupProfile finds a profile by normalized name without the generic
// fallback.
func (t *Table) LookupProfile(position string) (*models.PositionSkillProfile, bool) {
	p, ok := t.profiles[NormalizeName(position)]
	return p, ok
}

// Profiles returns all profiles sorted by name
func (t *Table) Profiles() []*models.PositionSkillProfile {
	out := make([]*models.PositionSkillProfile, 0, len(t.profiles))
	for _, p := range t.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// StagePlan returns a copy of the interviewer order for a difficulty
func (t *Table) StagePlan(difficulty string) []models.Role {
	plan, ok := t.stagePlans[strings.ToLower(strings.TrimSpace(difficulty))]
	if !ok {
		plan = t.stagePlans[DefaultDifficulty]
	}
	return append([]models.Role(nil), plan...)
}

// KnownDifficulty reports whether a stage plan exists for the difficulty
func (t *Table) KnownDifficulty(difficulty string) bool {
	_, ok := t.stagePlans[strings.ToLower(strings.TrimSpace(difficulty))]
	return ok
}

// NeutralScore is the 0-10 score used in default feedback records
func (t *Table) NeutralScore() float64 {
	return t.neutralScore
}

// PriorityThreshold is the 0-100 dimension average below which a dimension
// becomes a priority area.
func (t *Table) PriorityThreshold() float64 {
	return t.priorityThreshold
}

// MaxPriorityAreas caps the priority list in the improvement plan
func (t *Table) MaxPriorityAreas() int {
	return t.maxPriorityAreas
}

// NormalizeName canonicalizes position names for lookup
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}
