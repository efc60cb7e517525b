// Package gemini implements the response generator on Google Gemini
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	_ "embed"

	"google.golang.org/genai"

	"github.com/terra-clan/interview-engine/internal/generator"
	"github.com/terra-clan/interview-engine/internal/models"
	"github.com/terra-clan/interview-engine/internal/policy"
)

const (
	providerName = "gemini"
	defaultModel = "gemini-2.5-flash"
)

//go:embed reply_prompt.md
var replyPrompt string

//go:embed feedback_prompt.md
var feedbackPrompt string

// Generator asks Gemini for interviewer replies and feedback
type Generator struct {
	client *genai.Client
	model  string
	table  *policy.Table
}

// New creates a Generator backed by the Gemini API
func New(ctx context.Context, apiKey, model string, table *policy.Table) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return NewWithClient(client, model, table), nil
}

// NewWithClient wraps an existing genai client
func NewWithClient(client *genai.Client, model string, table *policy.Table) *Generator {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	return &Generator{client: client, model: model, table: table}
}

// Model returns the configured model name
func (g *Generator) Model() string {
	return g.model
}

// GenerateReply implements generator.ResponseGenerator
func (g *Generator) GenerateReply(ctx context.Context, role models.Role, transcript []*models.Message) (string, error) {
	prompt := g.render(replyPrompt, role, transcript)

	text, err := g.generate(ctx, prompt, nil)
	if err != nil {
		return "", generator.Wrap(providerName, generator.OpReply, role, err)
	}
	return text, nil
}

// GenerateFeedback implements generator.ResponseGenerator
func (g *Generator) GenerateFeedback(ctx context.Context, role models.Role, transcript []*models.Message) (*generator.Feedback, error) {
	prompt := g.render(feedbackPrompt, role, transcript)
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	raw, err := g.generate(ctx, prompt, cfg)
	if err != nil {
		return nil, generator.Wrap(providerName, generator.OpFeedback, role, err)
	}

	fb, err := parseFeedback(raw)
	if err != nil {
		slog.Debug("unparseable gemini feedback", "role", role, "response_length", len(raw))
		return nil, generator.Wrap(providerName, generator.OpFeedback, role, err)
	}
	return fb, nil
}

func (g *Generator) render(template string, role models.Role, transcript []*models.Message) string {
	persona := generator.PersonaFor(role)
	dims := ""
	if g.table != nil {
		dims = strings.Join(g.table.Dimensions(role), ", ")
	}

	r := strings.NewReplacer(
		"{{TITLE}}", persona.Title,
		"{{FOCUS}}", persona.Focus,
		"{{DIMENSIONS}}", dims,
		"{{TRANSCRIPT}}", formatTranscript(transcript),
	)
	return r.Replace(template)
}

func (g *Generator) generate(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error) {
	if g == nil || g.client == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("generate content: %w", ctxErr)
		}
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}
	return output, nil
}

func formatTranscript(transcript []*models.Message) string {
	if len(transcript) == 0 {
		return "(no messages yet)"
	}
	var b strings.Builder
	for _, msg := range transcript {
		switch msg.Sender {
		case models.SenderCandidate:
			b.WriteString("Candidate: ")
		case models.SenderInterviewer:
			b.WriteString(generator.PersonaFor(msg.Role).Title + ": ")
		default:
			b.WriteString("[system] ")
		}
		b.WriteString(strings.TrimSpace(msg.Content))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func parseFeedback(raw string) (*generator.Feedback, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini feedback: %w", err)
	}

	fb := &generator.Feedback{
		Scores:       make(map[string]float64),
		Strengths:    coerceStrings(data["strengths"]),
		Improvements: coerceStrings(data["improvements"]),
		Comment:      coerceString(data["comment"]),
	}
	if scores, ok := data["scores"].(map[string]any); ok {
		for dim, v := range scores {
			fb.Scores[dim] = coerceFloat(v)
		}
	}
	return fb, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		raw = raw[start : end+1]
	}
	return raw
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func coerceStrings(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := coerceString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(val); s != "" {
			return []string{s}
		}
	}
	return nil
}
