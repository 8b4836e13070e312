// Package claudeai talks to the claude.ai web API using a browser session key.
package claudeai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/ai-gateway/chat-gateway/internal/provider"
)

// Name is the active-provider identifier of this variant.
const Name = "claude.ai"

// SessionKeyPrefix is the prefix every claude.ai session key starts with.
const SessionKeyPrefix = "sk-ant"

// DefaultBaseURL is the public claude.ai endpoint.
const DefaultBaseURL = "https://claude.ai"

const maxErrorBody = 64 * 1024

// maxErrorMessage bounds how much of an upstream error body Error reports.
const maxErrorMessage = 256

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, truncate(e.Body, maxErrorMessage))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "") + "..."
}

// Options configures a Provider.
type Options struct {
	BaseURL    string
	SessionKey string
	// Timezone is sent with every completion request.
	Timezone   string
	HTTPClient *http.Client
}

type Provider struct {
	baseURL    string
	sessionKey string
	timezone   string
	client     *http.Client
}

func New(opts Options) *Provider {
	p := &Provider{
		baseURL:    opts.BaseURL,
		sessionKey: opts.SessionKey,
		timezone:   opts.Timezone,
		client:     opts.HTTPClient,
	}
	if p.baseURL == "" {
		p.baseURL = DefaultBaseURL
	}
	if p.timezone == "" {
		p.timezone = "UTC"
	}
	if p.client == nil {
		p.client = http.DefaultClient
	}
	return p
}

func (p *Provider) ListConversations(ctx context.Context, orgID string) ([]provider.Conversation, error) {
	var out []provider.Conversation
	path := fmt.Sprintf("/api/organizations/%s/chat_conversations", url.PathEscape(orgID))
	if err := p.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Provider) GetConversation(ctx context.Context, orgID, chatID string) (*provider.Conversation, error) {
	var out provider.Conversation
	path := fmt.Sprintf("/api/organizations/%s/chat_conversations/%s?rendering_mode=raw",
		url.PathEscape(orgID), url.PathEscape(chatID))
	if err := p.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type createRequest struct {
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	ProjectUUID string `json:"project_uuid,omitempty"`
}

func (p *Provider) CreateConversation(ctx context.Context, orgID, projectID string) (*provider.CreatedChat, error) {
	req := createRequest{UUID: uuid.NewString(), Name: "", ProjectUUID: projectID}
	var raw json.RawMessage
	path := fmt.Sprintf("/api/organizations/%s/chat_conversations", url.PathEscape(orgID))
	if err := p.do(ctx, http.MethodPost, path, req, &raw); err != nil {
		return nil, err
	}

	var head struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, xerrors.Errorf("decode created conversation: %w", err)
	}
	if head.UUID == "" {
		head.UUID = req.UUID
	}
	return &provider.CreatedChat{UUID: head.UUID, Raw: raw}, nil
}

type completionRequest struct {
	Prompt      string   `json:"prompt"`
	Timezone    string   `json:"timezone"`
	Attachments []string `json:"attachments"`
	Files       []string `json:"files"`
}

type completionEvent struct {
	Completion *string          `json:"completion"`
	Error      *json.RawMessage `json:"error"`
}

func (p *Provider) SendMessage(ctx context.Context, orgID, chatID, text string) (iter.Seq[provider.Event], error) {
	path := fmt.Sprintf("/api/organizations/%s/chat_conversations/%s/completion",
		url.PathEscape(orgID), url.PathEscape(chatID))
	body := completionRequest{
		Prompt:      text,
		Timezone:    p.timezone,
		Attachments: []string{},
		Files:       []string{},
	}
	resp, err := p.send(ctx, http.MethodPost, path, body, "text/event-stream")
	if err != nil {
		return nil, err
	}

	return func(yield func(provider.Event) bool) {
		defer resp.Body.Close()
		scanner := newSSEScanner(resp.Body)
		for {
			payload, err := scanner.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(provider.Failure(err.Error()))
				return
			}

			var ev completionEvent
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				// Non-JSON keepalive payloads carry nothing.
				continue
			}
			if ev.Error != nil {
				yield(provider.Failure(errorMessage(*ev.Error)))
				return
			}
			if ev.Completion != nil {
				if !yield(provider.Completion(*ev.Completion)) {
					return
				}
			}
		}
	}, nil
}

// errorMessage flattens the upstream error field, which is either a string or
// an object with a message.
func errorMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

func (p *Provider) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := p.send(ctx, method, path, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return xerrors.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// send performs the request and returns the open response for 2xx statuses.
// On any other status the body is read and closed.
func (p *Provider) send(ctx context.Context, method, path string, body any, accept string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, xerrors.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, xerrors.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	req.AddCookie(&http.Cookie{Name: "sessionKey", Value: p.sessionKey})

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(msg)),
		}
	}
	return resp, nil
}
