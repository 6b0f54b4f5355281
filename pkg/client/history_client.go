// Package client talks to the OpenGPT HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/choraleia/opengpt/pkg/history"
	"github.com/choraleia/opengpt/pkg/models"
)

// HistoryClient is a historycache.Remote over HTTP, authenticated with the
// session token as a cookie.
type HistoryClient struct {
	baseURL    string
	cookieName string
	token      string
	http       *http.Client
}

func NewHistoryClient(baseURL string) *HistoryClient {
	return &HistoryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		cookieName: "token",
		http:       &http.Client{Timeout: 30 * time.Second},
	}
}

// SetToken uses an existing session token.
func (c *HistoryClient) SetToken(token string) {
	c.token = token
}

// SetCookieName overrides the session cookie name.
func (c *HistoryClient) SetCookieName(name string) {
	c.cookieName = name
}

// ErrNoSession is returned by Login when the server set no session cookie.
var ErrNoSession = errors.New("login response carried no session cookie")

// Login signs in and keeps the session cookie's token for later calls.
func (c *HistoryClient) Login(ctx context.Context, email, password string) (*models.User, error) {
	var (
		resp  models.LoginResponse
		token string
	)
	err := c.doWith(ctx, http.MethodPost, "/api/users/login", models.LoginRequest{Email: email, Password: password}, &resp,
		func(r *http.Response) {
			for _, ck := range r.Cookies() {
				if ck.Name == c.cookieName && ck.Value != "" {
					token = ck.Value
				}
			}
		})
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNoSession
	}
	c.token = token
	return &resp.User, nil
}

func (c *HistoryClient) List(ctx context.Context) ([]models.Chat, error) {
	var resp models.ChatListResponse
	if err := c.do(ctx, http.MethodGet, "/api/chat/history", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

func (c *HistoryClient) Get(ctx context.Context, chatID string) (*models.Chat, error) {
	var resp models.ChatResponse
	if err := c.do(ctx, http.MethodGet, "/api/chat/history/"+url.PathEscape(chatID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chat, nil
}

func (c *HistoryClient) Upsert(ctx context.Context, chatID, title string, messages []models.Message) (*models.Chat, error) {
	if messages == nil {
		messages = []models.Message{}
	}
	var resp models.ChatResponse
	req := models.UpsertChatRequest{ChatID: chatID, Title: title, Messages: messages}
	if err := c.do(ctx, http.MethodPost, "/api/chat/history", req, &resp); err != nil {
		return nil, err
	}
	return resp.Chat, nil
}

func (c *HistoryClient) Delete(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodDelete, "/api/chat/history?chatId="+url.QueryEscape(chatID), nil, nil)
}

// StatusError is a non-2xx response that maps to no history sentinel.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *HistoryClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	return c.doWith(ctx, method, path, body, out, nil)
}

// doWith is do with a hook that sees successful responses before decoding.
func (c *HistoryClient) doWith(ctx context.Context, method, path string, body, out interface{}, onResponse func(*http.Response)) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: c.token})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var msg struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&msg)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return history.ErrNotFound
		case http.StatusUnauthorized:
			return history.ErrUnauthorized
		}
		text := msg.Message
		if text == "" {
			text = msg.Error
		}
		return &StatusError{Status: resp.StatusCode, Message: text}
	}

	if onResponse != nil {
		onResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
