package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"intervox/internal/domain"
)

const maxErrorBody = 512

// Config controls the chat backend client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the interview backend over JSON POSTs.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "http://127.0.0.1:5000"
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Response       *string `json:"response"`
	Role           string  `json:"role"`
	QuestionNumber int     `json:"question_number"`
	TotalQuestions int     `json:"total_questions"`
}

type resetRequest struct {
	SessionID string `json:"session_id"`
}

// SendUserMessage posts one user turn and returns the assistant reply. It
// never retries.
func (c *Client) SendUserMessage(ctx context.Context, text string, sessionID string) (domain.Reply, error) {
	body, err := c.post(ctx, "/api/chat", chatRequest{Message: text, SessionID: sessionID})
	if err != nil {
		return domain.Reply{}, err
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return domain.Reply{}, &ProtocolError{Reason: "malformed JSON", Err: err}
	}
	if decoded.Response == nil || strings.TrimSpace(*decoded.Response) == "" {
		return domain.Reply{}, &ProtocolError{Reason: "missing response field"}
	}

	return domain.Reply{
		AssistantText:  *decoded.Response,
		Role:           decoded.Role,
		QuestionNumber: decoded.QuestionNumber,
		TotalQuestions: decoded.TotalQuestions,
	}, nil
}

// ResetSession asks the backend to forget sessionID. The response body is
// ignored.
func (c *Client) ResetSession(ctx context.Context, sessionID string) error {
	_, err := c.post(ctx, "/api/reset", resetRequest{SessionID: sessionID})
	return err
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, &NetworkError{Op: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: path, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := strings.TrimSpace(string(body))
		if len(detail) > maxErrorBody {
			detail = detail[:maxErrorBody]
		}
		return nil, &NetworkError{Op: path, StatusCode: resp.StatusCode, Body: detail}
	}
	return body, nil
}
