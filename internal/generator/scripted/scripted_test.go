package scripted

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/interview-engine/internal/generator"
	"github.com/terra-clan/interview-engine/internal/models"
	"github.com/terra-clan/interview-engine/internal/policy"
)

func TestGenerateReplyWalksQuestionBank(t *testing.T) {
	g := New(policy.Default())
	ctx := context.Background()

	transcript := []*models.Message{
		{Sender: models.SenderSystem, Role: models.RoleHR, Content: "HR stage"},
	}

	first, err := g.GenerateReply(ctx, models.RoleHR, transcript)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "Hi, I'm your HR Interviewer."))

	transcript = append(transcript,
		&models.Message{Sender: models.SenderInterviewer, Role: models.RoleHR, Content: first},
		&models.Message{Sender: models.SenderCandidate, Content: "I like the mission."},
	)
	second, err := g.GenerateReply(ctx, models.RoleHR, transcript)
	require.NoError(t, err)
	assert.Equal(t, questionBank[models.RoleHR][1], second)
}

func TestGenerateFeedbackScoresRoleDimensions(t *testing.T) {
	table := policy.Default()
	g := New(table)

	long := strings.Repeat("word ", 50)
	transcript := []*models.Message{
		{Sender: models.SenderSystem, Role: models.RoleTechnical},
		{Sender: models.SenderInterviewer, Role: models.RoleTechnical, Content: "q"},
		{Sender: models.SenderCandidate, Content: long},
	}

	fb, err := g.GenerateFeedback(context.Background(), models.RoleTechnical, transcript)
	require.NoError(t, err)
	assert.Len(t, fb.Scores, len(table.Dimensions(models.RoleTechnical)))
	for _, score := range fb.Scores {
		assert.Equal(t, 9.0, score)
	}
	assert.NotEmpty(t, fb.Strengths)
}

func TestGenerateFeedbackWithoutAnswers(t *testing.T) {
	g := New(policy.Default())

	fb, err := g.GenerateFeedback(context.Background(), models.RoleProduct, nil)
	require.NoError(t, err)
	for _, score := range fb.Scores {
		assert.Equal(t, 2.0, score)
	}
	assert.Empty(t, fb.Strengths)
}

func TestLatencyHonorsDeadline(t *testing.T) {
	g := New(policy.Default(), WithLatency(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.GenerateReply(ctx, models.RoleTechnical, nil)
	assert.ErrorIs(t, err, generator.ErrTimeout)
}
