package policy

import "github.com/terra-clan/interview-engine/internal/models"

func defaultRoleWeights() map[models.Role]float64 {
	return map[models.Role]float64{
		models.RoleTechnical:  0.35,
		models.RoleBehavioral: 0.20,
		models.RoleHR:         0.15,
		models.RoleProduct:    0.15,
		models.RoleSenior:     0.15,
	}
}

func defaultDimensionWeights() map[models.Role]map[string]float64 {
	return map[models.Role]map[string]float64{
		models.RoleTechnical: {
			"technical_knowledge": 0.4,
			"problem_solving":     0.3,
			"code_quality":        0.2,
			"communication":       0.1,
		},
		models.RoleBehavioral: {
			"teamwork":      0.3,
			"communication": 0.3,
			"adaptability":  0.2,
			"leadership":    0.2,
		},
		models.RoleHR: {
			"culture_fit":   0.4,
			"motivation":    0.3,
			"communication": 0.3,
		},
		models.RoleProduct: {
			"product_sense":  0.4,
			"user_empathy":   0.3,
			"prioritization": 0.3,
		},
		models.RoleSenior: {
			"system_design":      0.4,
			"leadership":         0.3,
			"strategic_thinking": 0.3,
		},
	}
}

func defaultLevels() []models.ScoreLevel {
	return []models.ScoreLevel{
		{Name: "Outstanding", Recommendation: "Strong Hire", MinScore: 90},
		{Name: "Good", Recommendation: "Hire", MinScore: 80},
		{Name: "Average", Recommendation: "Borderline", MinScore: 70},
		{Name: "Below Average", Recommendation: "No Hire", MinScore: 60},
		{Name: "Poor", Recommendation: "Strong No Hire", MinScore: 0},
	}
}

func defaultStagePlans() map[string][]models.Role {
	return map[string][]models.Role{
		"easy":   {models.RoleTechnical, models.RoleBehavioral, models.RoleHR},
		"medium": {models.RoleTechnical, models.RoleBehavioral, models.RoleHR, models.RoleProduct},
		"hard":   {models.RoleTechnical, models.RoleBehavioral, models.RoleHR, models.RoleProduct, models.RoleSenior},
	}
}

func defaultVocabulary() []string {
	return []string{
		"python", "java", "javascript", "typescript", "golang", "c++", "c#", "rust", "kotlin", "swift",
		"sql", "nosql", "postgresql", "mysql", "mongodb", "redis", "kafka", "rabbitmq",
		"react", "vue", "angular", "node.js", "html", "css",
		"docker", "kubernetes", "aws", "gcp", "azure", "terraform", "ci/cd", "git", "linux",
		"rest api", "restful", "graphql", "grpc", "microservices", "system design", "distributed systems",
		"machine learning", "deep learning", "data analysis", "statistics", "pandas", "tensorflow", "pytorch",
		"testing", "unit testing", "tdd", "agile", "scrum",
		"leadership", "mentoring", "communication", "teamwork", "problem solving",
		"product management", "user research", "a/b testing", "roadmap", "stakeholder management",
	}
}

func defaultProfiles() []*models.PositionSkillProfile {
	return []*models.PositionSkillProfile{
		{
			Name:               GenericPosition,
			Required:           []string{"communication", "problem solving", "teamwork"},
			Preferred:          []string{"git", "testing", "agile"},
			MinExperienceYears: 0,
		},
		{
			Name:               "software engineer",
			Required:           []string{"python", "sql", "git", "system design"},
			Preferred:          []string{"docker", "aws", "testing", "microservices"},
			MinExperienceYears: 2,
		},
		{
			Name:               "backend developer",
			Required:           []string{"sql", "rest api", "microservices", "docker"},
			Preferred:          []string{"golang", "kafka", "redis", "kubernetes"},
			MinExperienceYears: 2,
		},
		{
			Name:               "frontend developer",
			Required:           []string{"javascript", "react", "html", "css"},
			Preferred:          []string{"typescript", "testing", "graphql"},
			MinExperienceYears: 1,
		},
		{
			Name:               "data scientist",
			Required:           []string{"python", "machine learning", "statistics", "sql"},
			Preferred:          []string{"pandas", "tensorflow", "pytorch", "data analysis"},
			MinExperienceYears: 2,
		},
		{
			Name:               "devops engineer",
			Required:           []string{"docker", "kubernetes", "ci/cd", "linux"},
			Preferred:          []string{"terraform", "aws", "gcp"},
			MinExperienceYears: 3,
		},
		{
			Name:               "product manager",
			Required:           []string{"product management", "user research", "roadmap", "stakeholder management"},
			Preferred:          []string{"a/b testing", "data analysis", "agile"},
			MinExperienceYears: 3,
		},
	}
}
