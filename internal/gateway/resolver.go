package gateway

import (
	"fmt"
	"time"

	"github.com/ai-gateway/chat-gateway/internal/credstore"
	"github.com/ai-gateway/chat-gateway/internal/provider"
	"github.com/ai-gateway/chat-gateway/internal/routing"
)

// Session is an authorized provider together with the selection it was
// resolved against.
type Session struct {
	Provider       provider.Provider
	ProviderName   string
	OrganizationID string
	// ProjectID is the active project, empty when none is selected.
	ProjectID string
}

// Resolve validates the local state in store and builds the active provider
// from router. It makes no network calls.
func Resolve(store credstore.Store, router *routing.Router, now time.Time, requireProject bool) (*Session, error) {
	name, _ := store.Get(credstore.KeyActiveProvider)
	if name == "" {
		return nil, &ConfigurationError{Message: "No active provider set. Please select a provider."}
	}

	sk, ok := store.SessionKey(name)
	if !ok || sk.Key == "" {
		return nil, &ConfigurationError{Message: fmt.Sprintf("No session key found for %s. Please log in.", name)}
	}
	if sk.Expired(now) {
		return nil, &ConfigurationError{Message: fmt.Sprintf("Session key for %s has expired. Please log in again.", name)}
	}

	orgID, _ := store.Get(credstore.KeyActiveOrganizationID)
	if orgID == "" {
		return nil, &ConfigurationError{Message: "No active organization set. Please select an organization."}
	}

	projectID, _ := store.Get(credstore.KeyActiveProjectID)
	if requireProject && projectID == "" {
		return nil, &ConfigurationError{Message: "No active project set. Please select or create a project."}
	}

	p, ok := router.ProviderFor(name, sk.Key)
	if !ok {
		return nil, &ConfigurationError{Message: fmt.Sprintf("Unsupported provider %q.", name)}
	}
	return &Session{
		Provider:       p,
		ProviderName:   name,
		OrganizationID: orgID,
		ProjectID:      projectID,
	}, nil
}
