package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/interview-engine/internal/assessment"
	"github.com/terra-clan/interview-engine/internal/config"
	"github.com/terra-clan/interview-engine/internal/feedback"
	"github.com/terra-clan/interview-engine/internal/generator/scripted"
	"github.com/terra-clan/interview-engine/internal/health"
	"github.com/terra-clan/interview-engine/internal/interview"
	"github.com/terra-clan/interview-engine/internal/models"
	"github.com/terra-clan/interview-engine/internal/policy"
	"github.com/terra-clan/interview-engine/internal/router"
	"github.com/terra-clan/interview-engine/internal/skills"
	"github.com/terra-clan/interview-engine/internal/storage"
)

const (
	adminKey    = "admin-key-0123456789"
	readerKey   = "reader-key-0123456789"
	inactiveKey = "inactive-key-0123456789"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

type fixture struct {
	server *Server
	checks *health.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	table := policy.Default()
	repo := storage.NewMemoryRepository()
	repo.AddClient(&models.ApiClient{Name: "admin", ApiKey: adminKey, IsActive: true, Permissions: []string{"sessions:*", "reports:*", "positions:read"}})
	repo.AddClient(&models.ApiClient{Name: "reader", ApiKey: readerKey, IsActive: true, Permissions: []string{"sessions:read"}})
	repo.AddClient(&models.ApiClient{Name: "gone", ApiKey: inactiveKey, IsActive: false, Permissions: []string{"*"}})

	analyzer := skills.NewAnalyzer(table.Vocabulary())
	normalizer := feedback.NewNormalizer(table)
	aggregator := assessment.NewAggregator(table, analyzer, normalizer, repo)
	orch := interview.NewOrchestrator(config.InterviewConfig{
		MaxTurnsPerStage: 3,
		ReplyTimeout:     2 * time.Second,
		FeedbackTimeout:  2 * time.Second,
	}, table, scripted.New(table), normalizer, aggregator, skills.NewKeywordExtractor(analyzer), repo)

	checks := health.NewRegistry(time.Second)
	checks.Register("database", health.CheckFunc(repo.Ping))

	srv := NewServer(config.ServerConfig{WriteTimeout: 5 * time.Second}, router.New(orch, router.DefaultBuffer),
		orch, table, checks, repo, "bootstrap-secret")
	return &fixture{server: srv, checks: checks}
}

func (f *fixture) do(t *testing.T, method, path, key string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func (f *fixture) createSession(t *testing.T, req models.CreateSessionRequest) models.CreateSessionResponse {
	t.Helper()
	rec, env := f.do(t, http.MethodPost, "/api/v1/sessions", adminKey, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp models.CreateSessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	return resp
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestReady(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	f.checks.Register("redis", health.CheckFunc(func(ctx context.Context) error {
		return errors.New("connection refused")
	}))
	rec, env := f.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", env.Error.Code)
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		key  string
		code string
	}{
		{"missing key", "", "missing_api_key"},
		{"unknown key", "nope-nope-nope", "invalid_api_key"},
		{"inactive client", inactiveKey, "client_inactive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := f.do(t, http.MethodGet, "/api/v1/sessions", tt.key, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestAuthenticationAlternativeHeaders(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("X-API-Key", readerKey)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sessions?api_key=bootstrap-secret", nil)
	rec = httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPermissionDenied(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, "/api/v1/sessions", readerKey, models.CreateSessionRequest{Position: "Backend Developer"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "permission_denied", env.Error.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/positions", readerKey, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateSessionValidation(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, "/api/v1/sessions", adminKey, models.CreateSessionRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)

	rec, env = f.do(t, http.MethodPost, "/api/v1/sessions", adminKey, models.CreateSessionRequest{
		Position:   "Backend Developer",
		Difficulty: "legendary",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader("{not json"))
	req.Header.Set("Authorization", adminKey)
	raw := httptest.NewRecorder()
	f.server.Router().ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestInterviewLifecycle(t *testing.T) {
	f := newFixture(t)

	created := f.createSession(t, models.CreateSessionRequest{
		Position:         "Backend Developer",
		ResumeText:       "Five years of Go and PostgreSQL.",
		Roles:            []models.Role{models.RoleTechnical, models.RoleBehavioral},
		MaxTurnsPerStage: 1,
	})
	require.Len(t, created.Messages, 2)
	assert.Equal(t, "admin", created.Session.CreatedBy)
	id := created.Session.ID

	// One turn finishes the technical stage
	rec, env := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", adminKey,
		models.SubmitMessageRequest{Content: "I build services in Golang with Docker."})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var turn models.TurnResponse
	require.NoError(t, json.Unmarshal(env.Data, &turn))
	require.GreaterOrEqual(t, len(turn.Messages), 3)
	assert.Equal(t, models.SenderCandidate, turn.Messages[0].Sender)
	assert.Equal(t, models.SenderInterviewer, turn.Messages[1].Sender)
	assert.Equal(t, 1, turn.Session.StageIndex)

	rec, env = f.do(t, http.MethodGet, "/api/v1/sessions/"+id, readerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status models.SessionStatusView
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, models.RoleBehavioral, status.ActiveRole)

	rec, env = f.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/messages?after=2", readerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var transcript models.MessageListResponse
	require.NoError(t, json.Unmarshal(env.Data, &transcript))
	assert.Equal(t, int64(3), transcript.Messages[0].Sequence)
	assert.Equal(t, status.MessageCount-2, int64(transcript.Total))

	// Report is not available while the interview runs
	rec, env = f.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/report", adminKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "report_not_found", env.Error.Code)

	rec, env = f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/end", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report models.AssessmentReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, id, report.SessionID)
	assert.Equal(t, 1, report.Version)

	rec, env = f.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/report", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched models.AssessmentReport
	require.NoError(t, json.Unmarshal(env.Data, &fetched))
	assert.Equal(t, report.ID, fetched.ID)

	rec, env = f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/report/regenerate", adminKey, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var regenerated models.AssessmentReport
	require.NoError(t, json.Unmarshal(env.Data, &regenerated))
	assert.Equal(t, 2, regenerated.Version)

	// Terminal sessions reject further work
	rec, env = f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", adminKey,
		models.SubmitMessageRequest{Content: "one more thing"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "session_not_active", env.Error.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/cancel", adminKey, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdvanceAndCancel(t *testing.T) {
	f := newFixture(t)
	created := f.createSession(t, models.CreateSessionRequest{
		Position: "Backend Developer",
		Roles:    []models.Role{models.RoleTechnical, models.RoleHR},
	})
	id := created.Session.ID

	rec, env := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/advance", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var advanced models.TransitionResponse
	require.NoError(t, json.Unmarshal(env.Data, &advanced))
	assert.Equal(t, models.RoleTechnical, advanced.From)
	assert.Equal(t, models.RoleHR, advanced.To)

	rec, env = f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/cancel", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cancelled models.TransitionResponse
	require.NoError(t, json.Unmarshal(env.Data, &cancelled))
	assert.Equal(t, models.SessionCancelled, cancelled.Session.Status)
	assert.Nil(t, cancelled.Report)

	rec, env = f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/report/regenerate", adminKey, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "session_not_completed", env.Error.Code)
}

func TestSessionErrors(t *testing.T) {
	f := newFixture(t)
	created := f.createSession(t, models.CreateSessionRequest{Position: "Backend Developer"})
	id := created.Session.ID

	rec, env := f.do(t, http.MethodGet, "/api/v1/sessions/not-a-uuid", readerKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Code)

	rec, env = f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", adminKey,
		models.SubmitMessageRequest{Content: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/messages?after=-1", readerKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSessions(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, models.CreateSessionRequest{Position: "Backend Developer"})
	f.createSession(t, models.CreateSessionRequest{Position: "Data Scientist"})

	rec, env := f.do(t, http.MethodGet, "/api/v1/sessions?position=Data%20Scientist", readerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list models.SessionListResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "Data Scientist", list.Sessions[0].Position)
}

func TestPositions(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/api/v1/positions", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list models.PositionListResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.NotZero(t, list.Total)

	rec, env = f.do(t, http.MethodGet, "/api/v1/positions/Backend-Developer", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile models.PositionSkillProfile
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, "backend developer", profile.Name)
	assert.NotEmpty(t, profile.Required)

	rec, env = f.do(t, http.MethodGet, "/api/v1/positions/underwater-basket-weaver", adminKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestStreamReplaysAndAcceptsSubmissions(t *testing.T) {
	f := newFixture(t)
	created := f.createSession(t, models.CreateSessionRequest{
		Position: "Backend Developer",
		Roles:    []models.Role{models.RoleTechnical, models.RoleBehavioral},
	})

	ts := httptest.NewServer(f.server.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/" + created.Session.ID + "/stream?api_key=" + adminKey
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() models.StreamEvent {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var ev models.StreamEvent
		require.NoError(t, conn.ReadJSON(&ev))
		return ev
	}

	assert.Equal(t, models.StreamConnected, read().Type)
	for _, seq := range []int64{1, 2} {
		ev := read()
		require.Equal(t, models.StreamMessage, ev.Type)
		assert.Equal(t, seq, ev.Message.Sequence)
	}

	require.NoError(t, conn.WriteJSON(models.StreamEvent{Type: models.StreamSubmit, Data: "I like Kubernetes."}))
	candidate := read()
	require.Equal(t, models.StreamMessage, candidate.Type)
	assert.Equal(t, models.SenderCandidate, candidate.Message.Sender)
	assert.Equal(t, int64(3), candidate.Message.Sequence)
	reply := read()
	assert.Equal(t, models.SenderInterviewer, reply.Message.Sender)

	require.NoError(t, conn.WriteJSON(models.StreamEvent{Type: models.StreamSubmit, Data: ""}))
	ev := read()
	assert.Equal(t, models.StreamError, ev.Type)
	assert.Equal(t, "empty_message", ev.Data)
}

func TestStreamUnknownSession(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.server.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/7d0b6f0e-3c1b-4a5e-9a53-3f2f0f3f9e11/stream?api_key=" + adminKey
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRespondSessionErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{interview.ErrSessionNotFound, http.StatusNotFound, "not_found"},
		{interview.ErrSessionNotActive, http.StatusConflict, "session_not_active"},
		{interview.ErrStageChanged, http.StatusConflict, "stage_changed"},
		{interview.ErrReportNotFound, http.StatusNotFound, "report_not_found"},
		{context.DeadlineExceeded, http.StatusServiceUnavailable, "session_busy"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondSessionError(rec, tt.err, "process message", "s-1")

			var env envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}

	assert.Equal(t, "stage_changed", streamErrorCode(interview.ErrStageChanged))
}
