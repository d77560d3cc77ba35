// Package vector implements a flat cosine-similarity index persisted as
// a JSON file next to the database.
package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kaiwa-ai/kaiwa/internal/memory/embeddings"
)

// ErrDimensionMismatch is returned when a persisted index was built with
// a different embedding model than the one now configured.
var ErrDimensionMismatch = errors.New("vector: embedding dimension mismatch")

const probeText = "dimension probe"

type entry struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
}

type indexFile struct {
	Dimension int     `json:"dimension"`
	Entries   []entry `json:"entries"`
}

// Index is a brute-force cosine index. Every Add embeds the text, appends
// the vector, and writes the file through, so a crash loses at most the
// in-flight entry.
type Index struct {
	provider embeddings.Provider
	path     string
	logger   *slog.Logger

	mu      sync.RWMutex
	dim     int
	entries []entry
}

// New probes the provider for its actual embedding dimension, then loads
// the persisted index if one exists. A persisted index built with a
// different dimension is rejected rather than silently re-embedded.
func New(ctx context.Context, provider embeddings.Provider, path string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}

	probe, err := provider.Embed(ctx, probeText)
	if err != nil {
		return nil, fmt.Errorf("vector: probe embedding dimension: %w", err)
	}
	if len(probe) == 0 {
		return nil, errors.New("vector: provider returned empty probe embedding")
	}

	ix := &Index{
		provider: provider,
		path:     path,
		logger:   logger,
		dim:      len(probe),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Fresh index.
	case err != nil:
		return nil, fmt.Errorf("vector: read index: %w", err)
	default:
		var file indexFile
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("vector: decode index: %w", err)
		}
		if file.Dimension != ix.dim {
			return nil, fmt.Errorf("%w: index has %d, provider %q produces %d",
				ErrDimensionMismatch, file.Dimension, provider.Name(), ix.dim)
		}
		ix.entries = file.Entries
	}

	logger.Debug("vector index ready",
		slog.String("path", path),
		slog.Int("dimension", ix.dim),
		slog.Int("entries", len(ix.entries)))
	return ix, nil
}

// Dimension returns the probed embedding dimension.
func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Add embeds the text and appends it under the given ID.
func (ix *Index) Add(ctx context.Context, id, text string) error {
	vector, err := ix.provider.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("vector: embed: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(vector) != ix.dim {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vector), ix.dim)
	}

	ix.entries = append(ix.entries, entry{ID: id, Vector: vector})
	if err := ix.saveLocked(); err != nil {
		// The entry stays queryable in memory even if the write failed.
		return fmt.Errorf("vector: persist index: %w", err)
	}
	return nil
}

// Search embeds the query and returns up to topK entry IDs ranked by
// cosine similarity, best first.
func (ix *Index) Search(ctx context.Context, query string, topK int) ([]string, error) {
	if topK <= 0 {
		return nil, nil
	}

	vector, err := ix.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vector: embed query: %w", err)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(vector) != ix.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vector), ix.dim)
	}

	type scored struct {
		id    string
		score float64
	}
	ranked := make([]scored, 0, len(ix.entries))
	for _, e := range ix.entries {
		ranked = append(ranked, scored{id: e.ID, score: cosine(vector, e.Vector)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if topK > len(ranked) {
		topK = len(ranked)
	}
	ids := make([]string, topK)
	for i := 0; i < topK; i++ {
		ids[i] = ranked[i].id
	}
	return ids, nil
}

func (ix *Index) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(ix.path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(indexFile{Dimension: ix.dim, Entries: ix.entries})
	if err != nil {
		return err
	}
	tmp := ix.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, ix.path)
}

func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
