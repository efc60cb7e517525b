// Package scripted is an offline response generator. It asks questions from
// a fixed bank and scores answers with simple heuristics, so the engine runs
// without an LLM.
package scripted

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/terra-clan/interview-engine/internal/generator"
	"github.com/terra-clan/interview-engine/internal/models"
	"github.com/terra-clan/interview-engine/internal/policy"
)

const providerName = "scripted"

var questionBank = map[models.Role][]string{
	models.RoleTechnical: {
		"Tell me about a system you built recently. What was the hardest technical problem?",
		"How did you test it, and how did you know it was working in production?",
		"If traffic grew tenfold tomorrow, what would break first and how would you fix it?",
		"Walk me through how you debug a performance regression.",
	},
	models.RoleBehavioral: {
		"Describe a time you disagreed with a teammate. How did you resolve it?",
		"Tell me about a project that did not go as planned. What did you learn?",
		"How do you keep stakeholders informed when priorities change?",
		"Give an example of when you helped someone on your team grow.",
	},
	models.RoleHR: {
		"What attracted you to this position?",
		"What kind of team culture helps you do your best work?",
		"Where would you like to be in three years?",
		"What are you looking for in your next manager?",
	},
	models.RoleProduct: {
		"Pick a product you use daily. What would you change and why?",
		"How would you decide between two features with equal estimated impact?",
		"How do you find out what users actually need?",
		"Tell me about a time data changed your mind about a product decision.",
	},
	models.RoleSenior: {
		"Design a notification service for ten million users. Where do you start?",
		"How do you set technical direction for a team that disagrees with you?",
		"What technical debt would you pay down first in a fast-growing codebase?",
		"How do you balance long-term architecture against short-term delivery?",
	},
}

// Generator is the scripted implementation of generator.ResponseGenerator
type Generator struct {
	table   *policy.Table
	latency time.Duration
}

// Option configures a Generator
type Option func(*Generator)

// WithLatency makes every call wait d before answering, honoring ctx
func WithLatency(d time.Duration) Option {
	return func(g *Generator) {
		g.latency = d
	}
}

// New creates a scripted generator scoring against table's dimensions
func New(table *policy.Table, opts ...Option) *Generator {
	g := &Generator{table: table}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateReply asks the next unasked question of the role's bank
func (g *Generator) GenerateReply(ctx context.Context, role models.Role, transcript []*models.Message) (string, error) {
	if err := g.wait(ctx); err != nil {
		return "", generator.Wrap(providerName, generator.OpReply, role, err)
	}

	stage := generator.StageTranscript(role, transcript)
	asked := 0
	for _, msg := range stage {
		if msg.Sender == models.SenderInterviewer && msg.Role == role {
			asked++
		}
	}

	bank := questionBank[role]
	if len(bank) == 0 {
		return generator.FallbackReply(role), nil
	}
	question := bank[asked%len(bank)]
	if asked == 0 {
		persona := generator.PersonaFor(role)
		return fmt.Sprintf("Hi, I'm your %s. %s", persona.Title, question), nil
	}
	return question, nil
}

// GenerateFeedback scores every role dimension from how much the candidate
// said during the stage.
func (g *Generator) GenerateFeedback(ctx context.Context, role models.Role, transcript []*models.Message) (*generator.Feedback, error) {
	if err := g.wait(ctx); err != nil {
		return nil, generator.Wrap(providerName, generator.OpFeedback, role, err)
	}

	answers, words := 0, 0
	for _, msg := range generator.StageTranscript(role, transcript) {
		if !msg.IsCandidate() {
			continue
		}
		answers++
		words += len(strings.Fields(msg.Content))
	}

	score := 2.0
	if answers > 0 {
		avg := float64(words) / float64(answers)
		score = 4 + math.Min(avg/10, 5)
	}
	score = math.Round(score*10) / 10

	fb := &generator.Feedback{Scores: make(map[string]float64)}
	for _, dim := range g.table.Dimensions(role) {
		fb.Scores[dim] = score
	}

	persona := generator.PersonaFor(role)
	switch {
	case answers == 0:
		fb.Improvements = []string{"Answer the interviewer's questions so your experience can be assessed."}
		fb.Comment = fmt.Sprintf("The candidate did not answer during the %s stage.", persona.Title)
	case score >= 7:
		fb.Strengths = []string{"Gives detailed, well-developed answers."}
		fb.Improvements = []string{"Keep answers focused on the question asked."}
		fb.Comment = fmt.Sprintf("Strong, detailed conversation on %s.", persona.Focus)
	default:
		fb.Strengths = []string{"Engaged with every question."}
		fb.Improvements = []string{"Support answers with concrete examples and outcomes."}
		fb.Comment = fmt.Sprintf("Answers on %s were brief and could use more depth.", persona.Focus)
	}
	return fb, nil
}

func (g *Generator) wait(ctx context.Context) error {
	if g.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(g.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
