// Package tools implements the tool dispatch layer: a typed registry
// built from string-based configuration, and a runner that invokes
// local functions or remote tool servers.
package tools

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Kind distinguishes how a registered tool is executed.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// Func is a locally executed tool implementation.
type Func func(ctx context.Context, input map[string]any) (string, error)

// ServerConfig is a remote tool server endpoint.
type ServerConfig struct {
	URL   string
	Token string
}

// Spec is one tool entry as it appears in configuration. Local entries
// name a catalog locator; remote entries name a server.
type Spec struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	Locator     string `yaml:"locator"`
	Description string `yaml:"description"`
	Server      string `yaml:"server"`
}

// GroupConfig is a named group of tool specs sharing an enable flag and
// a default server.
type GroupConfig struct {
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`
	Server  string `yaml:"server"`
	Tools   []Spec `yaml:"tools"`
}

// Directory is the full tool configuration.
type Directory struct {
	VoiceEnabled bool                    `yaml:"voice_enabled"`
	Servers      map[string]ServerConfig `yaml:"servers"`
	Groups       []GroupConfig           `yaml:"groups"`
}

// Entry is a fully resolved tool ready for invocation.
type Entry struct {
	Name        string
	Kind        Kind
	Description string
	Local       Func
	Server      ServerConfig
}

// Registry holds resolved tool entries. Load swaps the whole table
// atomically, so a reload never exposes a half-built directory.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]Entry),
		logger:  logger,
	}
}

// Load rebuilds the registry from configuration. The previous contents
// are discarded first; entries that fail to resolve are logged and
// skipped without aborting the load.
func (r *Registry) Load(dir Directory, catalog map[string]Func) {
	next := make(map[string]Entry)

	for _, group := range dir.Groups {
		if !group.Enabled {
			r.logger.Debug("tool group disabled", slog.String("group", group.Name))
			continue
		}

		for _, spec := range group.Tools {
			// Voice tools are filtered before resolution so a broken
			// locator behind the flag never even logs.
			if strings.HasPrefix(spec.Name, "tts_") && !dir.VoiceEnabled {
				continue
			}

			entry, ok := r.resolve(group, spec, dir.Servers, catalog)
			if !ok {
				continue
			}
			next[entry.Name] = entry
		}
	}

	r.mu.Lock()
	r.entries = next
	r.mu.Unlock()

	r.logger.Info("tool registry loaded", slog.Int("tools", len(next)))
}

func (r *Registry) resolve(group GroupConfig, spec Spec, servers map[string]ServerConfig, catalog map[string]Func) (Entry, bool) {
	switch Kind(spec.Kind) {
	case KindLocal:
		fn, ok := catalog[spec.Locator]
		if !ok {
			r.logger.Warn("unknown tool locator, skipping",
				slog.String("tool", spec.Name),
				slog.String("locator", spec.Locator))
			return Entry{}, false
		}
		return Entry{
			Name:        spec.Name,
			Kind:        KindLocal,
			Description: spec.Description,
			Local:       fn,
		}, true

	case KindRemote:
		serverName := spec.Server
		if serverName == "" {
			serverName = group.Server
		}
		server, ok := servers[serverName]
		if !ok || server.URL == "" {
			r.logger.Warn("unknown tool server, skipping",
				slog.String("tool", spec.Name),
				slog.String("server", serverName))
			return Entry{}, false
		}
		return Entry{
			Name:        spec.Name,
			Kind:        KindRemote,
			Description: spec.Description,
			Server:      server,
		}, true

	default:
		r.logger.Warn("unknown tool kind, skipping",
			slog.String("tool", spec.Name),
			slog.String("kind", spec.Kind))
		return Entry{}, false
	}
}

// Get returns a resolved entry by name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	return entry, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
