package routing

import (
	"testing"

	"github.com/ai-gateway/chat-gateway/internal/provider"
	"github.com/ai-gateway/chat-gateway/internal/provider/echo"
)

func TestRouterProvider(t *testing.T) {
	r := New()
	var gotKey string
	r.Register(echo.Name, func(sessionKey string) provider.Provider {
		gotKey = sessionKey
		return echo.New()
	})

	p, ok := r.ProviderFor(echo.Name, "sk-ant-x")
	if !ok || p == nil {
		t.Fatalf("expected provider")
	}
	if gotKey != "sk-ant-x" {
		t.Fatalf("expected session key to reach factory, got %q", gotKey)
	}
	if _, ok := r.ProviderFor("missing", ""); ok {
		t.Fatalf("expected no provider for unknown name")
	}
}

func TestRouterProviders(t *testing.T) {
	r := New()
	r.Register("zeta", func(string) provider.Provider { return echo.New() })
	r.Register("alpha", func(string) provider.Provider { return echo.New() })

	got := r.Providers()
	if len(got) != 2 || got[0] != "alpha" || got[1] != "zeta" {
		t.Fatalf("unexpected providers %v", got)
	}
}
