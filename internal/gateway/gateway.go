// Package gateway mediates chat operations between HTTP requests, the
// credential store and the active provider.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"strings"
	"time"

	"cdr.dev/slog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ai-gateway/chat-gateway/internal/credstore"
	"github.com/ai-gateway/chat-gateway/internal/guardrails"
	"github.com/ai-gateway/chat-gateway/internal/metrics"
	"github.com/ai-gateway/chat-gateway/internal/observability"
	"github.com/ai-gateway/chat-gateway/internal/provider"
	"github.com/ai-gateway/chat-gateway/internal/provider/claudeai"
	"github.com/ai-gateway/chat-gateway/internal/routing"
)

// SessionKeyLifetime is how long a stored session key stays valid after login.
const SessionKeyLifetime = 30 * 24 * time.Hour

// UnnamedChat is the display name of chats the provider returns without one.
const UnnamedChat = "Unnamed"

type Options struct {
	Store  credstore.Store
	Router *routing.Router
	// LoginProvider is the provider login stores credentials for.
	// Defaults to claude.ai.
	LoginProvider string
	Guardrails    *guardrails.Guardrails
	Logger        slog.Logger
	Metrics       *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

type Gateway struct {
	store         credstore.Store
	router        *routing.Router
	loginProvider string
	guards        *guardrails.Guardrails
	log           slog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

func New(opts Options) *Gateway {
	g := &Gateway{
		store:         opts.Store,
		router:        opts.Router,
		loginProvider: opts.LoginProvider,
		guards:        opts.Guardrails,
		log:           opts.Logger,
		metrics:       opts.Metrics,
		now:           opts.Now,
	}
	if g.loginProvider == "" {
		g.loginProvider = claudeai.Name
	}
	if g.guards == nil {
		g.guards = guardrails.New(map[string]string{claudeai.Name: claudeai.SessionKeyPrefix})
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

type LoginResult struct {
	Provider string `json:"provider"`
	Expires  string `json:"expires"`
}

type ChatSummary struct {
	UUID        string  `json:"uuid"`
	Name        string  `json:"name"`
	ProjectName *string `json:"project_name"`
	ProjectID   *string `json:"project_id"`
	UpdatedAt   string  `json:"updated_at"`
}

type Message struct {
	UUID      string `json:"uuid"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

type ChatDetail struct {
	UUID     string    `json:"uuid"`
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
}

// NewChatReply is the result of creating a chat and sending its first message.
type NewChatReply struct {
	ChatID   string `json:"chat_id"`
	Message  string `json:"message"`
	Response string `json:"response"`
}

type Reply struct {
	Message  string `json:"message"`
	Response string `json:"response"`
}

// Login validates sessionKey and stores it for the login provider, replacing
// any earlier key.
func (g *Gateway) Login(ctx context.Context, sessionKey string) (*LoginResult, error) {
	var res *LoginResult
	err := g.run(ctx, "login", func(ctx context.Context) error {
		if err := g.guards.CheckSessionKey(g.loginProvider, sessionKey); err != nil {
			return &ValidationError{Message: err.Error()}
		}
		expires := g.now().Add(SessionKeyLifetime)
		if err := g.store.SetSessionKey(g.loginProvider, sessionKey, expires); err != nil {
			return err
		}
		g.log.Info(ctx, "session key stored",
			slog.F("provider", g.loginProvider),
			slog.F("expires", expires))
		res = &LoginResult{Provider: g.loginProvider, Expires: expires.Format(time.RFC3339)}
		return nil
	})
	return res, err
}

// ListChats returns every chat of the active organization in provider order.
func (g *Gateway) ListChats(ctx context.Context) ([]ChatSummary, error) {
	var res []ChatSummary
	err := g.run(ctx, "list_chats", func(ctx context.Context) error {
		s, err := g.resolve(ctx, false)
		if err != nil {
			return err
		}
		chats, err := s.Provider.ListConversations(ctx, s.OrganizationID)
		if err != nil {
			return &ProviderError{Op: "list conversations", Err: err}
		}
		res = make([]ChatSummary, 0, len(chats))
		for _, c := range chats {
			res = append(res, summarize(c))
		}
		return nil
	})
	return res, err
}

// CreateChat creates a chat in the active project and returns the provider's
// record untouched.
func (g *Gateway) CreateChat(ctx context.Context) (json.RawMessage, error) {
	var res json.RawMessage
	err := g.run(ctx, "create_chat", func(ctx context.Context) error {
		s, err := g.resolve(ctx, true)
		if err != nil {
			return err
		}
		created, err := s.Provider.CreateConversation(ctx, s.OrganizationID, s.ProjectID)
		if err != nil {
			return &ProviderError{Op: "create conversation", Err: err}
		}
		trace.SpanFromContext(ctx).SetAttributes(observability.AttrChatID.String(created.UUID))
		res = created.Raw
		return nil
	})
	return res, err
}

// NewChatMessage creates a chat in projectID and sends message to it. The
// project comes from the caller, not from the active selection.
func (g *Gateway) NewChatMessage(ctx context.Context, message, projectID string) (*NewChatReply, error) {
	var res *NewChatReply
	err := g.run(ctx, "new_chat_message", func(ctx context.Context) error {
		if name, ok := guardrails.Required(
			guardrails.Field{Name: "message", Value: message},
			guardrails.Field{Name: "project_id", Value: projectID},
		); !ok {
			return &ValidationError{Message: name + " is required"}
		}
		s, err := g.resolve(ctx, false)
		if err != nil {
			return err
		}
		created, err := s.Provider.CreateConversation(ctx, s.OrganizationID, projectID)
		if err != nil {
			return &ProviderError{Op: "create conversation", Err: err}
		}
		trace.SpanFromContext(ctx).SetAttributes(observability.AttrChatID.String(created.UUID))

		response, err := g.send(ctx, s, created.UUID, message)
		if err != nil {
			return err
		}
		res = &NewChatReply{ChatID: created.UUID, Message: message, Response: response}
		return nil
	})
	return res, err
}

// SendMessage sends message to an existing chat. It requires an active project.
func (g *Gateway) SendMessage(ctx context.Context, chatID, message string) (*Reply, error) {
	var res *Reply
	err := g.run(ctx, "send_message", func(ctx context.Context) error {
		if name, ok := guardrails.Required(guardrails.Field{Name: "message", Value: message}); !ok {
			return &ValidationError{Message: name + " is required"}
		}
		s, err := g.resolve(ctx, true)
		if err != nil {
			return err
		}
		trace.SpanFromContext(ctx).SetAttributes(observability.AttrChatID.String(chatID))

		response, err := g.send(ctx, s, chatID, message)
		if err != nil {
			return err
		}
		res = &Reply{Message: message, Response: response}
		return nil
	})
	return res, err
}

// GetChat returns one chat with its messages in provider order.
func (g *Gateway) GetChat(ctx context.Context, chatID string) (*ChatDetail, error) {
	var res *ChatDetail
	err := g.run(ctx, "get_chat", func(ctx context.Context) error {
		s, err := g.resolve(ctx, false)
		if err != nil {
			return err
		}
		trace.SpanFromContext(ctx).SetAttributes(observability.AttrChatID.String(chatID))
		c, err := s.Provider.GetConversation(ctx, s.OrganizationID, chatID)
		if err != nil {
			return &ProviderError{Op: "get conversation", Err: err}
		}
		res = detail(c)
		return nil
	})
	return res, err
}

func (g *Gateway) resolve(ctx context.Context, requireProject bool) (*Session, error) {
	s, err := Resolve(g.store, g.router, g.now(), requireProject)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(observability.AttrProvider.String(s.ProviderName))
	return s, nil
}

func (g *Gateway) send(ctx context.Context, s *Session, chatID, message string) (string, error) {
	stream, err := s.Provider.SendMessage(ctx, s.OrganizationID, chatID, message)
	if err != nil {
		return "", &ProviderError{Op: "send message", Err: err}
	}
	return g.collect(ctx, stream)
}

// collect folds stream into the full completion text. The first error event
// ends the fold and the text gathered so far is dropped.
func (g *Gateway) collect(ctx context.Context, stream iter.Seq[provider.Event]) (string, error) {
	var sb strings.Builder
	fragments := 0
	for ev := range stream {
		switch ev.Kind {
		case provider.EventCompletion:
			sb.WriteString(ev.Text)
			fragments++
			g.metrics.Fragment(len(ev.Text))
		case provider.EventError:
			return "", &ProviderError{Op: "stream", Err: errors.New(ev.Text)}
		}
	}
	trace.SpanFromContext(ctx).SetAttributes(observability.AttrFragments.Int(fragments))
	return sb.String(), nil
}

// run wraps one operation in a span and records its outcome.
func (g *Gateway) run(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := observability.Tracer().Start(ctx, "gateway."+op,
		trace.WithAttributes(observability.AttrOperation.String(op)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.log.Warn(ctx, "operation failed",
			slog.F("operation", op),
			slog.Error(err))
	}
	g.metrics.Operation(op, status, time.Since(start))
	return err
}

func summarize(c provider.Conversation) ChatSummary {
	s := ChatSummary{
		UUID:      c.UUID,
		Name:      nameOf(c.Name),
		UpdatedAt: c.UpdatedAt,
	}
	if c.Project != nil && *c.Project != (provider.Project{}) {
		name, id := c.Project.Name, c.Project.UUID
		s.ProjectName = &name
		s.ProjectID = &id
	}
	return s
}

func detail(c *provider.Conversation) *ChatDetail {
	d := &ChatDetail{
		UUID:     c.UUID,
		Name:     nameOf(c.Name),
		Messages: make([]Message, 0, len(c.ChatMessages)),
	}
	for _, m := range c.ChatMessages {
		d.Messages = append(d.Messages, Message{
			UUID:      m.UUID,
			Sender:    m.Sender,
			Text:      m.Text,
			CreatedAt: m.CreatedAt,
		})
	}
	return d
}

func nameOf(name *string) string {
	if name == nil {
		return UnnamedChat
	}
	return *name
}
