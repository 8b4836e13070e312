// Package credstore holds the active selection and per-provider session keys.
package credstore

import (
	"sync"
	"time"
)

// Well-known keys of the active selection.
const (
	KeyActiveProvider       = "active_provider"
	KeyActiveOrganizationID = "active_organization_id"
	KeyActiveProjectID      = "active_project_id"
)

// SessionKey is a provider credential with its expiry.
type SessionKey struct {
	Provider  string    `yaml:"provider"`
	Key       string    `yaml:"key"`
	ExpiresAt time.Time `yaml:"expires_at"`
}

// Expired reports whether the key is no longer valid at now.
func (s SessionKey) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store is the configuration context every gateway operation reads from.
type Store interface {
	// Get returns a value, preferring local over global scope.
	Get(key string) (string, bool)
	// Set writes a value to the local scope when local is true, global otherwise.
	Set(key, value string, local bool) error
	// SetSessionKey replaces the stored credential for provider.
	SetSessionKey(provider, key string, expiresAt time.Time) error
	SessionKey(provider string) (SessionKey, bool)
}

// document is the persisted shape shared by the in-memory and file stores.
type document struct {
	Values      map[string]string     `yaml:"values,omitempty"`
	SessionKeys map[string]SessionKey `yaml:"session_keys,omitempty"`
}

func (d document) clone() document {
	out := document{}
	if d.Values != nil {
		out.Values = make(map[string]string, len(d.Values))
		for k, v := range d.Values {
			out.Values[k] = v
		}
	}
	if d.SessionKeys != nil {
		out.SessionKeys = make(map[string]SessionKey, len(d.SessionKeys))
		for k, v := range d.SessionKeys {
			out.SessionKeys[k] = v
		}
	}
	return out
}

// Memory is a Store that lives only for the process.
type Memory struct {
	mu     sync.RWMutex
	global document
	local  document
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(&m.local, &m.global, key)
}

func (m *Memory) Set(key, value string, local bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if local {
		setValue(&m.local, key, value)
	} else {
		setValue(&m.global, key, value)
	}
	return nil
}

func (m *Memory) SetSessionKey(provider, key string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	setSessionKey(&m.global, provider, key, expiresAt)
	return nil
}

func (m *Memory) SessionKey(provider string) (SessionKey, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sk, ok := m.global.SessionKeys[provider]
	return sk, ok
}

func lookup(local, global *document, key string) (string, bool) {
	if v, ok := local.Values[key]; ok {
		return v, true
	}
	v, ok := global.Values[key]
	return v, ok
}

func setValue(d *document, key, value string) {
	if d.Values == nil {
		d.Values = make(map[string]string)
	}
	d.Values[key] = value
}

func setSessionKey(d *document, provider, key string, expiresAt time.Time) {
	if d.SessionKeys == nil {
		d.SessionKeys = make(map[string]SessionKey)
	}
	d.SessionKeys[provider] = SessionKey{Provider: provider, Key: key, ExpiresAt: expiresAt}
}
