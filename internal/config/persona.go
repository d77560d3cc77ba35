package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Persona is one character definition loaded from a YAML document.
type Persona struct {
	ID       string          `yaml:"id"`
	Name     string          `yaml:"name"`
	Prompts  PersonaPrompts  `yaml:"prompts"`
	Behavior PersonaBehavior `yaml:"behavior"`
}

type PersonaPrompts struct {
	System   string `yaml:"system"`
	RolePlay string `yaml:"role_play"`
}

type PersonaBehavior struct {
	Emoji bool `yaml:"emoji"`
}

// SystemPrompt returns the effective system prompt: the role-play
// override when present, the plain system prompt otherwise.
func (p *Persona) SystemPrompt() string {
	if p.Prompts.RolePlay != "" {
		return p.Prompts.RolePlay
	}
	return p.Prompts.System
}

// DefaultPersona is used when no persona id is given and no default is
// configured.
func DefaultPersona() *Persona {
	return &Persona{
		ID:   "default",
		Name: "Kaiwa",
		Prompts: PersonaPrompts{
			System: "You are a helpful, concise conversational assistant.",
		},
	}
}

type cachedPersona struct {
	persona *Persona
	modTime time.Time
}

// PersonaStore loads persona documents from a directory, caching each
// by file modification time so edits show up without a restart.
type PersonaStore struct {
	dir       string
	defaultID string

	mu    sync.Mutex
	cache map[string]cachedPersona
}

// NewPersonaStore creates a store over a persona directory.
func NewPersonaStore(dir, defaultID string) *PersonaStore {
	return &PersonaStore{
		dir:       dir,
		defaultID: defaultID,
		cache:     make(map[string]cachedPersona),
	}
}

// Get returns the persona for an id. An empty id resolves to the
// configured default, and an empty default to the built-in persona.
func (s *PersonaStore) Get(id string) (*Persona, error) {
	if id == "" {
		id = s.defaultID
	}
	if id == "" {
		return DefaultPersona(), nil
	}

	path := filepath.Join(s.dir, id+".yaml")
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("persona %q: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[id]; ok && cached.modTime.Equal(info.ModTime()) {
		return cached.persona, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona %q: %w", id, err)
	}

	var persona Persona
	if err := yaml.Unmarshal(data, &persona); err != nil {
		return nil, fmt.Errorf("persona %q: parse: %w", id, err)
	}
	if persona.ID == "" {
		persona.ID = id
	}

	s.cache[id] = cachedPersona{persona: &persona, modTime: info.ModTime()}
	return &persona, nil
}

// Invalidate drops the cache; the next Get re-reads from disk.
func (s *PersonaStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cachedPersona)
}
