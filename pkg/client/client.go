package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/interview-engine/internal/models"
)

// Client is a Go SDK for interview-engine API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout. Turns wait on response generation, so
// keep it above the server reply timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithDialer sets the WebSocket dialer used by Stream
func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = dialer
	}
}

// NewClient creates a new interview-engine client
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		dialer: websocket.DefaultDialer,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is an error envelope returned by the server
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.Code, e.Message)
}

// ListOptions contains options for listing sessions
type ListOptions struct {
	Status   models.SessionStatus
	Position string
	Limit    int
	Offset   int
}

// CreateSession starts a new interview
func (c *Client) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.CreateSessionResponse, error) {
	var out models.CreateSessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession retrieves the progress of a session
func (c *Client) GetSession(ctx context.Context, id string) (*models.SessionStatusView, error) {
	var out models.SessionStatusView
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions retrieves a page of sessions
func (c *Client) ListSessions(ctx context.Context, opts ListOptions) ([]*models.Session, error) {
	query := url.Values{}
	if opts.Status != "" {
		query.Set("status", string(opts.Status))
	}
	if opts.Position != "" {
		query.Set("position", opts.Position)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}

	path := "/api/v1/sessions"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var out models.SessionListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// Transcript retrieves the messages after the given sequence number
func (c *Client) Transcript(ctx context.Context, id string, after int64) ([]*models.Message, error) {
	path := fmt.Sprintf("/api/v1/sessions/%s/messages", url.PathEscape(id))
	if after > 0 {
		path += "?after=" + strconv.FormatInt(after, 10)
	}

	var out models.MessageListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SendMessage submits a candidate message and waits for the interviewer reply
func (c *Client) SendMessage(ctx context.Context, id, content string) (*models.TurnResponse, error) {
	var out models.TurnResponse
	path := fmt.Sprintf("/api/v1/sessions/%s/messages", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPost, path, models.SubmitMessageRequest{Content: content}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdvanceStage hands the interview to the next interviewer
func (c *Client) AdvanceStage(ctx context.Context, id string) (*models.TransitionResponse, error) {
	var out models.TransitionResponse
	path := fmt.Sprintf("/api/v1/sessions/%s/advance", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EndSession completes the interview and returns its report
func (c *Client) EndSession(ctx context.Context, id string) (*models.AssessmentReport, error) {
	var out models.AssessmentReport
	path := fmt.Sprintf("/api/v1/sessions/%s/end", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelSession aborts the interview without a report
func (c *Client) CancelSession(ctx context.Context, id string) (*models.TransitionResponse, error) {
	var out models.TransitionResponse
	path := fmt.Sprintf("/api/v1/sessions/%s/cancel", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReport retrieves the current report of a completed session
func (c *Client) GetReport(ctx context.Context, id string) (*models.AssessmentReport, error) {
	var out models.AssessmentReport
	path := fmt.Sprintf("/api/v1/sessions/%s/report", url.PathEscape(id))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RegenerateReport forces a new report version
func (c *Client) RegenerateReport(ctx context.Context, id string) (*models.AssessmentReport, error) {
	var out models.AssessmentReport
	path := fmt.Sprintf("/api/v1/sessions/%s/report/regenerate", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPositions retrieves all position skill profiles
func (c *Client) ListPositions(ctx context.Context) ([]*models.PositionSkillProfile, error) {
	var out models.PositionListResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/positions", nil, &out); err != nil {
		return nil, err
	}
	return out.Positions, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Stream is a live connection to a session transcript
type Stream struct {
	conn *websocket.Conn
}

// Stream connects to the session WebSocket, replaying messages after the
// given sequence number before live ones.
func (c *Client) Stream(ctx context.Context, id string, after int64) (*Stream, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + fmt.Sprintf("/api/v1/sessions/%s/stream", url.PathEscape(id))
	if after > 0 {
		u.RawQuery = "after=" + strconv.FormatInt(after, 10)
	}

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
		return nil, fmt.Errorf("failed to connect stream: %w", err)
	}
	return &Stream{conn: conn}, nil
}

// Next blocks until the next frame arrives
func (s *Stream) Next() (*models.StreamEvent, error) {
	var event models.StreamEvent
	if err := s.conn.ReadJSON(&event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Submit sends a candidate message over the stream. Its messages arrive as
// regular frames.
func (s *Stream) Submit(content string) error {
	return s.conn.WriteJSON(models.StreamEvent{Type: models.StreamSubmit, Data: content})
}

// Close closes the stream
func (s *Stream) Close() error {
	return s.conn.Close()
}

// do performs an HTTP request and decodes the envelope data into out
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if out == nil || len(result.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErr.Code = "unreadable_response"
		apiErr.Message = err.Error()
		return apiErr
	}

	var result struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil || result.Error == nil {
		apiErr.Code = "http_error"
		apiErr.Message = string(respBody)
		return apiErr
	}

	apiErr.Code = result.Error.Code
	apiErr.Message = result.Error.Message
	return apiErr
}
