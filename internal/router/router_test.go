package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/interview-engine/internal/assessment"
	"github.com/terra-clan/interview-engine/internal/config"
	"github.com/terra-clan/interview-engine/internal/feedback"
	"github.com/terra-clan/interview-engine/internal/generator/scripted"
	"github.com/terra-clan/interview-engine/internal/interview"
	"github.com/terra-clan/interview-engine/internal/models"
	"github.com/terra-clan/interview-engine/internal/policy"
	"github.com/terra-clan/interview-engine/internal/skills"
	"github.com/terra-clan/interview-engine/internal/storage"
)

func newOrchestrator(t *testing.T, maxTurns int) *interview.Orchestrator {
	t.Helper()

	table := policy.Default()
	repo := storage.NewMemoryRepository()
	analyzer := skills.NewAnalyzer(table.Vocabulary())
	normalizer := feedback.NewNormalizer(table)
	aggregator := assessment.NewAggregator(table, analyzer, normalizer, repo)

	cfg := config.InterviewConfig{
		MaxTurnsPerStage: maxTurns,
		ReplyTimeout:     2 * time.Second,
		FeedbackTimeout:  2 * time.Second,
	}
	return interview.NewOrchestrator(cfg, table, scripted.New(table), normalizer, aggregator,
		skills.NewKeywordExtractor(analyzer), repo)
}

func createSession(t *testing.T, r *Router) *models.Session {
	t.Helper()
	session, _, err := r.Create(context.Background(), models.CreateSessionRequest{
		Position: "Backend Developer",
		Roles:    []models.Role{models.RoleTechnical, models.RoleBehavioral},
	}, "")
	require.NoError(t, err)
	return session
}

// receive reads n messages or fails after a timeout
func receive(t *testing.T, sub *Subscription, n int) []*models.Message {
	t.Helper()
	out := make([]*models.Message, 0, n)
	timeout := time.After(3 * time.Second)
	for len(out) < n {
		select {
		case m, ok := <-sub.Messages():
			if !ok {
				t.Fatalf("subscription closed after %d of %d messages: %v", len(out), n, sub.Err())
			}
			out = append(out, m)
		case <-timeout:
			t.Fatalf("received %d of %d messages", len(out), n)
		}
	}
	return out
}

func sequences(messages []*models.Message) []int64 {
	out := make([]int64, len(messages))
	for i, m := range messages {
		out[i] = m.Sequence
	}
	return out
}

func TestSubscribeReplaysThenStreamsLive(t *testing.T) {
	r := New(newOrchestrator(t, 3), DefaultBuffer)
	ctx := context.Background()
	session := createSession(t, r)

	sub, err := r.Subscribe(ctx, session.ID, 0)
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, []int64{1, 2}, sequences(receive(t, sub, 2)))

	_, err = r.Submit(ctx, session.ID, "I use Golang daily.")
	require.NoError(t, err)

	live := receive(t, sub, 2)
	assert.Equal(t, []int64{3, 4}, sequences(live))
	assert.Equal(t, models.SenderCandidate, live[0].Sender)
	assert.Equal(t, models.SenderInterviewer, live[1].Sender)
	assert.Equal(t, int64(4), sub.LastSequence())
}

func TestSubscribeResumesAfterSequence(t *testing.T) {
	r := New(newOrchestrator(t, 3), DefaultBuffer)
	ctx := context.Background()
	session := createSession(t, r)

	_, err := r.Submit(ctx, session.ID, "first answer")
	require.NoError(t, err)

	sub, err := r.Subscribe(ctx, session.ID, 2)
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, []int64{3, 4}, sequences(receive(t, sub, 2)))
}

func TestSubscribeUnknownSession(t *testing.T) {
	r := New(newOrchestrator(t, 3), DefaultBuffer)

	_, err := r.Subscribe(context.Background(), uuid.New().String(), 0)
	assert.ErrorIs(t, err, interview.ErrSessionNotFound)
	assert.Equal(t, 0, r.Hub().Topics())
}

func TestConcurrentSubmitsArriveInOrder(t *testing.T) {
	r := New(newOrchestrator(t, 100), DefaultBuffer)
	ctx := context.Background()
	session := createSession(t, r)

	sub, err := r.Subscribe(ctx, session.ID, 2)
	require.NoError(t, err)
	defer sub.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Submit(ctx, session.ID, "concurrent answer")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got := receive(t, sub, 20)
	for i, m := range got {
		assert.Equal(t, int64(i+3), m.Sequence)
	}
	for i := 0; i < len(got); i += 2 {
		assert.Equal(t, models.SenderCandidate, got[i].Sender)
		assert.Equal(t, models.SenderInterviewer, got[i+1].Sender)
	}
	assert.Equal(t, 0, r.tokens.size())
}

func TestSubmitWaitsForToken(t *testing.T) {
	r := New(newOrchestrator(t, 3), DefaultBuffer)
	session := createSession(t, r)

	release, err := r.tokens.acquire(context.Background(), session.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = r.Submit(ctx, session.ID, "are you there?")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	assert.Equal(t, 0, r.tokens.size())

	_, err = r.Submit(context.Background(), session.ID, "now it works")
	assert.NoError(t, err)
}

func TestEndAndCancelBroadcast(t *testing.T) {
	r := New(newOrchestrator(t, 3), DefaultBuffer)
	ctx := context.Background()

	ended := createSession(t, r)
	sub, err := r.Subscribe(ctx, ended.ID, 2)
	require.NoError(t, err)
	defer sub.Close()

	report, err := r.End(ctx, ended.ID)
	require.NoError(t, err)
	require.NotNil(t, report)
	msg := receive(t, sub, 1)[0]
	assert.Equal(t, models.SenderSystem, msg.Sender)
	assert.Equal(t, int64(3), msg.Sequence)

	cancelled := createSession(t, r)
	sub2, err := r.Subscribe(ctx, cancelled.ID, 2)
	require.NoError(t, err)
	defer sub2.Close()

	_, err = r.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)
	msg = receive(t, sub2, 1)[0]
	assert.Equal(t, "Interview cancelled.", msg.Content)

	_, err = r.Submit(ctx, cancelled.ID, "hello?")
	assert.ErrorIs(t, err, interview.ErrSessionNotActive)
}

func TestPublishBackfillsGaps(t *testing.T) {
	orch := newOrchestrator(t, 3)
	r := New(orch, DefaultBuffer)
	ctx := context.Background()
	session := createSession(t, r)

	sub, err := r.Subscribe(ctx, session.ID, 2)
	require.NoError(t, err)
	defer sub.Close()

	// Stored without a broadcast, then announced out of order
	turn, err := orch.ProcessMessage(ctx, session.ID, "quiet answer")
	require.NoError(t, err)
	r.Hub().Publish(ctx, session.ID, []*models.Message{turn.Reply})
	r.Hub().Publish(ctx, session.ID, []*models.Message{turn.Candidate})

	assert.Equal(t, []int64{3, 4}, sequences(receive(t, sub, 2)))

	select {
	case m := <-sub.Messages():
		t.Fatalf("unexpected duplicate %d", m.Sequence)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLaggingSubscriberIsClosed(t *testing.T) {
	r := New(newOrchestrator(t, 3), 1)
	ctx := context.Background()
	session := createSession(t, r)

	slow, err := r.Subscribe(ctx, session.ID, 0)
	require.NoError(t, err)

	// History fills the replay capacity, leaving one live slot
	_, err = r.Submit(ctx, session.ID, "first answer")
	require.NoError(t, err)

	select {
	case <-slow.Done():
	case <-time.After(time.Second):
		t.Fatal("lagging subscriber was not closed")
	}
	assert.ErrorIs(t, slow.Err(), ErrSubscriberLagged)
	assert.Equal(t, 0, r.Hub().Subscribers(session.ID))

	// Buffered messages stay readable until the closed channel drains
	drained := 0
	for range slow.Messages() {
		drained++
	}
	assert.Equal(t, 3, drained)
	assert.Equal(t, int64(3), slow.LastSequence())
}

func TestCloseDetachesOnlyThatSubscriber(t *testing.T) {
	r := New(newOrchestrator(t, 3), DefaultBuffer)
	ctx := context.Background()
	session := createSession(t, r)

	a, err := r.Subscribe(ctx, session.ID, 2)
	require.NoError(t, err)
	b, err := r.Subscribe(ctx, session.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Hub().Subscribers(session.ID))

	a.Close()
	assert.Equal(t, 1, r.Hub().Subscribers(session.ID))
	assert.NoError(t, a.Err())

	_, err = r.Submit(ctx, session.ID, "still streaming")
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, sequences(receive(t, b, 2)))

	b.Close()
	assert.Equal(t, 0, r.Hub().Topics())
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	r := New(newOrchestrator(t, 3), DefaultBuffer)
	session := createSession(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := r.Subscribe(ctx, session.ID, 2)
	require.NoError(t, err)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription outlived its context")
	}
	assert.Eventually(t, func() bool { return r.Hub().Topics() == 0 }, time.Second, 10*time.Millisecond)
}

func TestRedisRelayDeliversAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Two instances over one shared store
	orch := newOrchestrator(t, 3)
	local := New(orch, DefaultBuffer)
	remote := New(orch, DefaultBuffer)

	clientA := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clientB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer clientA.Close()
	defer clientB.Close()

	relayA := NewRedisRelay(clientA, local.Hub())
	relayB := NewRedisRelay(clientB, remote.Hub())
	require.NoError(t, relayA.Start(ctx))
	require.NoError(t, relayB.Start(ctx))
	defer relayA.Close()
	defer relayB.Close()
	local.UseRelay(relayA)
	remote.UseRelay(relayB)

	session := createSession(t, local)

	sub, err := remote.Subscribe(ctx, session.ID, 2)
	require.NoError(t, err)
	defer sub.Close()

	_, err = local.Submit(ctx, session.ID, "I deployed it on Kubernetes.")
	require.NoError(t, err)

	got := receive(t, sub, 2)
	assert.Equal(t, []int64{3, 4}, sequences(got))
	assert.Equal(t, "I deployed it on Kubernetes.", got[0].Content)
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "interview:session:abc", Channel("abc"))
}
