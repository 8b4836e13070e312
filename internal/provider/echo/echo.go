package echo

import (
	"context"
	"encoding/json"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/ai-gateway/chat-gateway/internal/provider"
)

// Name is the active-provider identifier of the echo variant.
const Name = "echo"

// Provider keeps conversations in memory and answers every message by
// echoing it back word by word.
type Provider struct {
	mu    sync.Mutex
	chats map[string][]*conversation
	now   func() time.Time
}

type conversation struct {
	provider.Conversation
	orgID string
}

func New() *Provider {
	return &Provider{
		chats: make(map[string][]*conversation),
		now:   time.Now,
	}
}

func (p *Provider) ListConversations(_ context.Context, orgID string) ([]provider.Conversation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]provider.Conversation, 0, len(p.chats[orgID]))
	for _, c := range p.chats[orgID] {
		summary := c.Conversation
		summary.ChatMessages = nil
		out = append(out, summary)
	}
	return out, nil
}

func (p *Provider) GetConversation(_ context.Context, orgID, chatID string) (*provider.Conversation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.find(orgID, chatID)
	if !ok {
		return nil, xerrors.Errorf("conversation %q not found", chatID)
	}
	cp := c.Conversation
	cp.ChatMessages = append([]provider.ChatMessage(nil), c.ChatMessages...)
	return &cp, nil
}

func (p *Provider) CreateConversation(_ context.Context, orgID, projectID string) (*provider.CreatedChat, error) {
	name := ""
	c := &conversation{
		Conversation: provider.Conversation{
			UUID:      uuid.NewString(),
			Name:      &name,
			UpdatedAt: p.timestamp(),
		},
		orgID: orgID,
	}
	if projectID != "" {
		c.Project = &provider.Project{UUID: projectID}
	}

	raw, err := json.Marshal(c.Conversation)
	if err != nil {
		return nil, xerrors.Errorf("marshal conversation: %w", err)
	}

	p.mu.Lock()
	p.chats[orgID] = append(p.chats[orgID], c)
	p.mu.Unlock()
	return &provider.CreatedChat{UUID: c.UUID, Raw: raw}, nil
}

func (p *Provider) SendMessage(_ context.Context, orgID, chatID, text string) (iter.Seq[provider.Event], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.find(orgID, chatID)
	if !ok {
		return nil, xerrors.Errorf("conversation %q not found", chatID)
	}

	reply := "Echo: " + text
	ts := p.timestamp()
	c.ChatMessages = append(c.ChatMessages,
		provider.ChatMessage{UUID: uuid.NewString(), Sender: "human", Text: text, CreatedAt: ts},
		provider.ChatMessage{UUID: uuid.NewString(), Sender: "assistant", Text: reply, CreatedAt: ts},
	)
	c.UpdatedAt = ts

	return func(yield func(provider.Event) bool) {
		words := strings.SplitAfter(reply, " ")
		for _, w := range words {
			if !yield(provider.Completion(w)) {
				return
			}
		}
	}, nil
}

func (p *Provider) find(orgID, chatID string) (*conversation, bool) {
	for _, c := range p.chats[orgID] {
		if c.UUID == chatID {
			return c, true
		}
	}
	return nil, false
}

func (p *Provider) timestamp() string {
	return p.now().UTC().Format(time.RFC3339Nano)
}
