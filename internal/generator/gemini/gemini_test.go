package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/terra-clan/interview-engine/internal/generator"
	"github.com/terra-clan/interview-engine/internal/models"
	"github.com/terra-clan/interview-engine/internal/policy"
)

func newStubGenerator(t *testing.T, handler http.HandlerFunc) *Generator {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     "test",
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: server.Client(),
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    server.URL,
			APIVersion: "v1beta",
		},
	})
	require.NoError(t, err)

	return NewWithClient(client, "test-model", policy.Default())
}

func textResponse(w http.ResponseWriter, text string) {
	resp := map[string]any{
		"candidates": []map[string]any{
			{
				"content": map[string]any{
					"parts": []map[string]any{
						{"text": text},
					},
				},
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

var sampleTranscript = []*models.Message{
	{Sequence: 1, Sender: models.SenderSystem, Role: models.RoleTechnical, Content: "Interview started for backend developer"},
	{Sequence: 2, Sender: models.SenderInterviewer, Role: models.RoleTechnical, Content: "Tell me about a service you built."},
	{Sequence: 3, Sender: models.SenderCandidate, Content: "I built a payments API in Go with PostgreSQL."},
}

func TestGenerateReply(t *testing.T) {
	var prompt string
	g := newStubGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/test-model:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		prompt = string(body)
		textResponse(w, "  How did you handle idempotency?  ")
	})

	reply, err := g.GenerateReply(context.Background(), models.RoleTechnical, sampleTranscript)
	require.NoError(t, err)
	assert.Equal(t, "How did you handle idempotency?", reply)
	assert.Contains(t, prompt, "Technical Interviewer")
	assert.Contains(t, prompt, "payments API")
}

func TestGenerateFeedbackParsesFencedJSON(t *testing.T) {
	g := newStubGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		textResponse(w, "```json\n{\"scores\": {\"technical_knowledge\": 8, \"problem_solving\": \"7.5\"}, \"strengths\": [\"clear\"], \"improvements\": \"testing\", \"comment\": \"solid\"}\n```")
	})

	fb, err := g.GenerateFeedback(context.Background(), models.RoleTechnical, sampleTranscript)
	require.NoError(t, err)
	assert.Equal(t, 8.0, fb.Scores["technical_knowledge"])
	assert.Equal(t, 7.5, fb.Scores["problem_solving"])
	assert.Equal(t, []string{"clear"}, fb.Strengths)
	assert.Equal(t, []string{"testing"}, fb.Improvements)
	assert.Equal(t, "solid", fb.Comment)
}

func TestGenerateFeedbackInvalidJSON(t *testing.T) {
	g := newStubGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		textResponse(w, "I think they did great!")
	})

	_, err := g.GenerateFeedback(context.Background(), models.RoleHR, sampleTranscript)
	require.Error(t, err)

	var genErr *generator.Error
	assert.True(t, errors.As(err, &genErr))
}

func TestGenerateReplyUpstreamError(t *testing.T) {
	g := newStubGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	_, err := g.GenerateReply(context.Background(), models.RoleHR, sampleTranscript)
	require.Error(t, err)
	assert.NotErrorIs(t, err, generator.ErrTimeout)
}

func TestGenerateReplyTimeout(t *testing.T) {
	g := newStubGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		textResponse(w, "too late")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := g.GenerateReply(ctx, models.RoleTechnical, sampleTranscript)
	assert.ErrorIs(t, err, generator.ErrTimeout)
}

func TestGenerateReplyEmpty(t *testing.T) {
	g := newStubGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		textResponse(w, "")
	})

	_, err := g.GenerateReply(context.Background(), models.RoleTechnical, sampleTranscript)
	assert.Error(t, err)
}

func TestFormatTranscript(t *testing.T) {
	out := formatTranscript(sampleTranscript)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "[system] "))
	assert.True(t, strings.HasPrefix(lines[1], "Technical Interviewer: "))
	assert.True(t, strings.HasPrefix(lines[2], "Candidate: "))
	assert.Equal(t, "(no messages yet)", formatTranscript(nil))
}
