package policy

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/interview-engine/internal/models"
)

// Loader accumulates policy overrides from YAML on top of the built-in
// defaults and produces an immutable Table.
type Loader struct {
	mu sync.RWMutex

	roleWeights      map[models.Role]float64
	dimensionWeights map[models.Role]map[string]float64
	levels           []models.ScoreLevel
	vocabulary       []string
	profiles         map[string]*models.PositionSkillProfile
	stagePlans       map[string][]models.Role

	neutralScore      float64
	priorityThreshold float64
	maxPriorityAreas  int
}

// NewLoader creates a loader seeded with the built-in policy
func NewLoader() *Loader {
	l := &Loader{
		roleWeights:       defaultRoleWeights(),
		dimensionWeights:  defaultDimensionWeights(),
		levels:            defaultLevels(),
		vocabulary:        defaultVocabulary(),
		profiles:          make(map[string]*models.PositionSkillProfile),
		stagePlans:        defaultStagePlans(),
		neutralScore:      5,
		priorityThreshold: 70,
		maxPriorityAreas:  3,
	}
	for _, p := range defaultProfiles() {
		l.profiles[NormalizeName(p.Name)] = p
	}
	return l
}

// Default builds the table from built-in data only
func Default() *Table {
	t, err := NewLoader().Build()
	if err != nil {
		panic(fmt.Sprintf("built-in policy is invalid: %v", err))
	}
	return t
}

// LoadFromDir applies scoring.yaml (if present) and every profile under
// positions/ from dir. Missing files are not an error.
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading policy from directory", "dir", dir)

	for _, name := range []string{"scoring.yaml", "scoring.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := l.LoadScoringFile(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, "positions", pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}

	loaded := 0
	for _, file := range files {
		if err := l.LoadProfileFromFile(file); err != nil {
			slog.Warn("failed to load position profile", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("position profiles loaded", "count", loaded, "total_files", len(files))
	return nil
}

// LoadScoringFile merges weights, levels, vocabulary and stage plans
func (l *Loader) LoadScoringFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var sf scoringFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for role, w := range sf.RoleWeights {
		l.roleWeights[models.Role(role)] = w
	}
	for role, dims := range sf.DimensionWeights {
		copied := make(map[string]float64, len(dims))
		for name, w := range dims {
			copied[name] = w
		}
		l.dimensionWeights[models.Role(role)] = copied
	}
	if len(sf.Levels) > 0 {
		l.levels = append([]models.ScoreLevel(nil), sf.Levels...)
	}
	if len(sf.Vocabulary) > 0 {
		l.vocabulary = append([]string(nil), sf.Vocabulary...)
	}
	for difficulty, roles := range sf.StagePlans {
		plan := make([]models.Role, 0, len(roles))
		for _, r := range roles {
			plan = append(plan, models.Role(r))
		}
		l.stagePlans[strings.ToLower(difficulty)] = plan
	}
	if sf.NeutralScore != nil {
		l.neutralScore = *sf.NeutralScore
	}
	if sf.PriorityThreshold != nil {
		l.priorityThreshold = *sf.PriorityThreshold
	}
	if sf.MaxPriorityAreas != nil {
		l.maxPriorityAreas = *sf.MaxPriorityAreas
	}

	slog.Info("scoring policy loaded", "file", path)
	return nil
}

// LoadProfileFromFile loads a single position profile
func (l *Loader) LoadProfileFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var p models.PositionSkillProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if p.Name == "" {
		base := filepath.Base(path)
		p.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if len(p.Required) == 0 && len(p.Preferred) == 0 {
		return fmt.Errorf("profile %q lists no skills", p.Name)
	}

	l.Add(&p)
	slog.Info("position profile loaded", "name", p.Name, "required", len(p.Required))
	return nil
}

// Add programmatically registers a profile
func (l *Loader) Add(p *models.PositionSkillProfile) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.profiles[NormalizeName(p.Name)] = p
}

// Build validates the accumulated policy and returns an immutable Table
func (l *Loader) Build() (*Table, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.levels) == 0 {
		return nil, errors.New("at least one score level is required")
	}
	levels := append([]models.ScoreLevel(nil), l.levels...)
	sort.SliceStable(levels, func(i, j int) bool { return levels[i].MinScore > levels[j].MinScore })

	for role, dims := range l.dimensionWeights {
		if len(dims) == 0 {
			return nil, fmt.Errorf("role %s has no dimensions", role)
		}
		for name, w := range dims {
			if w < 0 {
				return nil, fmt.Errorf("role %s dimension %s has negative weight", role, name)
			}
		}
	}

	for difficulty, plan := range l.stagePlans {
		if len(plan) == 0 {
			return nil, fmt.Errorf("stage plan %q is empty", difficulty)
		}
		for _, role := range plan {
			if _, ok := l.dimensionWeights[role]; !ok {
				return nil, fmt.Errorf("stage plan %q references unknown role %s", difficulty, role)
			}
			if w, ok := l.roleWeights[role]; !ok || w <= 0 {
				return nil, fmt.Errorf("stage plan %q role %s has no positive weight", difficulty, role)
			}
		}
	}
	if _, ok := l.stagePlans[DefaultDifficulty]; !ok {
		return nil, fmt.Errorf("stage plan %q is required", DefaultDifficulty)
	}
	if _, ok := l.profiles[GenericPosition]; !ok {
		return nil, fmt.Errorf("profile %q is required", GenericPosition)
	}

	t := &Table{
		roleWeights:       make(map[models.Role]float64, len(l.roleWeights)),
		dimensionWeights:  make(map[models.Role]map[string]float64, len(l.dimensionWeights)),
		levels:            levels,
		vocabulary:        normalizeVocabulary(l.vocabulary),
		profiles:          make(map[string]*models.PositionSkillProfile, len(l.profiles)),
		stagePlans:        make(map[string][]models.Role, len(l.stagePlans)),
		neutralScore:      l.neutralScore,
		priorityThreshold: l.priorityThreshold,
		maxPriorityAreas:  l.maxPriorityAreas,
	}
	for role, w := range l.roleWeights {
		t.roleWeights[role] = w
	}
	for role, dims := range l.dimensionWeights {
		copied := make(map[string]float64, len(dims))
		for name, w := range dims {
			copied[name] = w
		}
		t.dimensionWeights[role] = copied
	}
	for key, p := range l.profiles {
		copied := *p
		copied.Required = append([]string(nil), p.Required...)
		copied.Preferred = append([]string(nil), p.Preferred...)
		t.profiles[key] = &copied
	}
	for difficulty, plan := range l.stagePlans {
		t.stagePlans[difficulty] = append([]models.Role(nil), plan...)
	}

	return t, nil
}

func normalizeVocabulary(words []string) []string {
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// --- YAML file structs ---

// scoringFile represents the YAML structure of scoring.yaml
type scoringFile struct {
	RoleWeights       map[string]float64            `yaml:"role_weights"`
	DimensionWeights  map[string]map[string]float64 `yaml:"dimension_weights"`
	Levels            []models.ScoreLevel           `yaml:"levels"`
	Vocabulary        []string                      `yaml:"vocabulary"`
	StagePlans        map[string][]string           `yaml:"stage_plans"`
	NeutralScore      *float64                      `yaml:"neutral_score"`
	PriorityThreshold *float64                      `yaml:"priority_threshold"`
	MaxPriorityAreas  *int                          `yaml:"max_priority_areas"`
}
