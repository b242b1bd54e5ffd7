package problinxsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Problinx HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Problem represents the API problem model.
type Problem struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Difficulty    string   `json:"difficulty"`
	Status        string   `json:"status"`
	Reward        *int     `json:"reward,omitempty"`
	Deadline      string   `json:"deadline,omitempty"`
	DeadlineLabel string   `json:"deadline_label,omitempty"`
	Tags          []string `json:"tags"`
	Requirements  []string `json:"requirements"`
	Submissions   int      `json:"submissions"`
	Views         int      `json:"views"`
	CreatedAt     string   `json:"created_at"`
}

// ProblemPage wraps a board listing.
type ProblemPage struct {
	Items    []Problem `json:"items"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

// ListFilters narrow a board listing. Zero values mean "all".
type ListFilters struct {
	Category string
	Reward   string
	Deadline string
	Query    string
	Sort     string
	Page     int
}

// User is the profile returned by auth endpoints.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	IsPartner   bool   `json:"is_partner"`
}

// Auth is a token plus the authenticated profile.
type Auth struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Solution represents a solution proposal.
type Solution struct {
	ID          string `json:"id"`
	ProblemID   string `json:"problem_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// BotReply is a chat response.
type BotReply struct {
	Text        string   `json:"text"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SignUp registers an account and stores the returned token on the client.
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (Auth, error) {
	body := map[string]any{
		"email":        email,
		"password":     password,
		"display_name": displayName,
	}
	var resp Auth
	if err := c.do(ctx, http.MethodPost, "auth/signup", body, &resp); err != nil {
		return Auth{}, err
	}
	c.BearerToken = resp.Token
	return resp, nil
}

// Login signs in and stores the returned token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (Auth, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}
	var resp Auth
	if err := c.do(ctx, http.MethodPost, "auth/login", body, &resp); err != nil {
		return Auth{}, err
	}
	c.BearerToken = resp.Token
	return resp, nil
}

// ListProblems fetches one board page.
func (c *Client) ListProblems(ctx context.Context, f ListFilters) (ProblemPage, error) {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Reward != "" {
		q.Set("reward", f.Reward)
	}
	if f.Deadline != "" {
		q.Set("deadline", f.Deadline)
	}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Sort != "" {
		q.Set("sort", f.Sort)
	}
	if f.Page > 0 {
		q.Set("page", fmt.Sprintf("%d", f.Page))
	}
	endpoint := "problems"
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var resp ProblemPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetProblem fetches a problem by id.
func (c *Client) GetProblem(ctx context.Context, id string) (Problem, error) {
	var resp Problem
	err := c.do(ctx, http.MethodGet, "problems/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CreateProblem posts a new problem. Deadline is RFC 3339.
func (c *Client) CreateProblem(ctx context.Context, body map[string]any) (Problem, error) {
	var resp Problem
	err := c.do(ctx, http.MethodPost, "problems", body, &resp)
	return resp, err
}

// RecordView bumps a problem's view counter.
func (c *Client) RecordView(ctx context.Context, problemID string) error {
	return c.do(ctx, http.MethodPost, "problems/"+url.PathEscape(problemID)+"/views", nil, nil)
}

// SubmitSolution proposes a solution for a problem.
func (c *Client) SubmitSolution(ctx context.Context, problemID, title, description string) (Solution, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
	}
	var resp Solution
	endpoint := "problems/" + url.PathEscape(problemID) + "/solutions"
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// SendChatMessage sends one chat turn with optional prior user texts.
func (c *Client) SendChatMessage(ctx context.Context, text string, history []string) (BotReply, error) {
	body := map[string]any{
		"text":    text,
		"history": history,
	}
	var resp BotReply
	err := c.do(ctx, http.MethodPost, "chat/messages", body, &resp)
	return resp, err
}

// QuickReplies fetches the chat quick reply shortcuts.
func (c *Client) QuickReplies(ctx context.Context) ([]string, error) {
	var resp []string
	err := c.do(ctx, http.MethodGet, "chat/quick-replies", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
