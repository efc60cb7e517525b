package generator

import "github.com/terra-clan/interview-engine/internal/models"

// Persona describes how an interviewer role behaves
type Persona struct {
	Title string
	Focus string
}

var personas = map[models.Role]Persona{
	models.RoleTechnical: {
		Title: "Technical Interviewer",
		Focus: "technical knowledge, problem solving, code quality and clear explanations of engineering trade-offs",
	},
	models.RoleBehavioral: {
		Title: "Behavioral Interviewer",
		Focus: "teamwork, communication, adaptability and leadership shown through concrete past situations",
	},
	models.RoleHR: {
		Title: "HR Interviewer",
		Focus: "culture fit, motivation and career goals",
	},
	models.RoleProduct: {
		Title: "Product Interviewer",
		Focus: "product sense, user empathy and prioritization",
	},
	models.RoleSenior: {
		Title: "Senior Engineering Leader",
		Focus: "system design, technical leadership and strategic thinking",
	},
}

// PersonaFor returns the persona of a role. Unknown roles get a generic one.
func PersonaFor(role models.Role) Persona {
	if p, ok := personas[role]; ok {
		return p
	}
	return Persona{Title: "Interviewer", Focus: "the candidate's overall fit for the position"}
}

var fallbackReplies = map[models.Role]string{
	models.RoleTechnical:  "Thanks, that's helpful. Could you walk me through how you would approach a technical problem you found challenging recently?",
	models.RoleBehavioral: "Thank you for sharing. Can you tell me about a time you had to work through a disagreement within your team?",
	models.RoleHR:         "Thanks. What motivates you about this position, and what are you looking for in your next team?",
	models.RoleProduct:    "Got it. How would you decide what to build first if you had more ideas than time?",
	models.RoleSenior:     "Thanks. How would you design a system like the one you just described to handle ten times the load?",
}

// FallbackReply is the templated interviewer message used when generation
// fails or times out. It keeps the conversation moving.
func FallbackReply(role models.Role) string {
	if text, ok := fallbackReplies[role]; ok {
		return text
	}
	return "Thank you. Could you tell me a bit more about that?"
}

// FallbackOpening is the templated first question of a stage
func FallbackOpening(role models.Role) string {
	p := PersonaFor(role)
	return "Hello, I'm your " + p.Title + ". I'd like to focus on " + p.Focus + ". To start, could you briefly introduce yourself and your most relevant experience?"
}

// StageTranscript returns the messages of the latest stage owned by role,
// which starts after the last system message announcing that role.
func StageTranscript(role models.Role, transcript []*models.Message) []*models.Message {
	start := 0
	for i := len(transcript) - 1; i >= 0; i-- {
		msg := transcript[i]
		if msg.Sender == models.SenderSystem && msg.Role == role {
			start = i + 1
			break
		}
	}
	return transcript[start:]
}
