// Package skills finds skill keywords in interview transcripts and resumes
// and compares them against a position profile.
package skills

import (
	"math"
	"regexp"
	"strings"

	"github.com/terra-clan/interview-engine/internal/models"
)

// ResumeExtractor turns resume text into a set of skill names
type ResumeExtractor interface {
	ExtractSkills(text string) []string
}

type keyword struct {
	name    string
	pattern *regexp.Regexp
}

// Analyzer matches a fixed vocabulary. It is safe for concurrent use.
type Analyzer struct {
	keywords []keyword
}

// NewAnalyzer compiles one matcher per vocabulary entry. Entries are matched
// case-insensitively and only on word boundaries, so "java" does not match
// inside "javascript".
func NewAnalyzer(vocabulary []string) *Analyzer {
	a := &Analyzer{keywords: make([]keyword, 0, len(vocabulary))}
	seen := make(map[string]bool, len(vocabulary))
	for _, word := range vocabulary {
		word = normalizeSkill(word)
		if word == "" || seen[word] {
			continue
		}
		seen[word] = true
		a.keywords = append(a.keywords, keyword{
			name:    word,
			pattern: regexp.MustCompile(`(?i)(?:^|[^\pL\pN_])` + regexp.QuoteMeta(word) + `(?:$|[^\pL\pN_])`),
		})
	}
	return a
}

// ExtractDemonstrated scans candidate messages only and returns the skills
// found, deduplicated, in vocabulary order.
func (a *Analyzer) ExtractDemonstrated(transcript []*models.Message) []string {
	var b strings.Builder
	for _, msg := range transcript {
		if msg == nil || !msg.IsCandidate() {
			continue
		}
		b.WriteString(msg.Content)
		b.WriteByte('\n')
	}
	return a.ExtractFromText(b.String())
}

// ExtractFromText returns vocabulary skills that occur in text
func (a *Analyzer) ExtractFromText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{}
	}
	found := make([]string, 0)
	for _, kw := range a.keywords {
		if kw.pattern.MatchString(text) {
			found = append(found, kw.name)
		}
	}
	return found
}

// MatchProfile credits each required skill: full when demonstrated in the
// transcript, half when only on the resume, otherwise it is a gap.
func (a *Analyzer) MatchProfile(demonstrated, resume []string, profile *models.PositionSkillProfile) models.SkillGapResult {
	shown := toSet(demonstrated)
	onResume := toSet(resume)

	result := models.SkillGapResult{
		Demonstrated:        normalizeAll(demonstrated),
		MatchedRequired:     []string{},
		ResumeOnly:          []string{},
		Gaps:                []string{},
		MatchedPreferred:    []string{},
		AdditionalStrengths: []string{},
		MatchScore:          100,
	}
	if profile == nil {
		return result
	}
	result.Position = profile.Name
	result.MinExperienceYears = profile.MinExperienceYears

	required := make(map[string]bool, len(profile.Required))
	credit := 0.0
	for _, skill := range profile.Required {
		skill = normalizeSkill(skill)
		if skill == "" || required[skill] {
			continue
		}
		required[skill] = true
		switch {
		case shown[skill]:
			credit += 1
			result.MatchedRequired = append(result.MatchedRequired, skill)
		case onResume[skill]:
			credit += 0.5
			result.ResumeOnly = append(result.ResumeOnly, skill)
		default:
			result.Gaps = append(result.Gaps, skill)
		}
	}
	if len(required) > 0 {
		result.MatchScore = round1(credit / float64(len(required)) * 100)
	}

	for _, skill := range profile.Preferred {
		skill = normalizeSkill(skill)
		if shown[skill] || onResume[skill] {
			result.MatchedPreferred = append(result.MatchedPreferred, skill)
		}
	}
	for _, skill := range result.Demonstrated {
		if !required[skill] {
			result.AdditionalStrengths = append(result.AdditionalStrengths, skill)
		}
	}

	return result
}

// KeywordExtractor is the ResumeExtractor used when no richer parser is
// configured. It reuses the transcript vocabulary.
type KeywordExtractor struct {
	analyzer *Analyzer
}

// NewKeywordExtractor creates a resume extractor over the analyzer vocabulary
func NewKeywordExtractor(a *Analyzer) *KeywordExtractor {
	return &KeywordExtractor{analyzer: a}
}

// ExtractSkills implements ResumeExtractor
func (e *KeywordExtractor) ExtractSkills(text string) []string {
	return e.analyzer.ExtractFromText(text)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func normalizeSkill(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func normalizeAll(skills []string) []string {
	out := make([]string, 0, len(skills))
	seen := make(map[string]bool, len(skills))
	for _, s := range skills {
		s = normalizeSkill(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func toSet(skills []string) map[string]bool {
	set := make(map[string]bool, len(skills))
	for _, s := range skills {
		set[normalizeSkill(s)] = true
	}
	return set
}
