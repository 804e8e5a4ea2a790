package vectorindex

import (
	"fmt"

	"github.com/kfsearch/kfsearch/internal/kferrors"
)

// Registry holds one loaded FlatIndex per model tag. It is built once at
// startup and never mutated afterward; the embedding index is immutable
// for the lifetime of the process.
type Registry struct {
	indexes map[ModelTag]*FlatIndex
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{indexes: make(map[ModelTag]*FlatIndex)}
}

// Load reads the index file for tag, validates its dimension against dim
// and its row count against wantN (the id-to-asset map's size), and adds
// it to the registry. Any mismatch is fatal: BadIndexFile, DimMismatch, or
// SizeMismatch.
func (r *Registry) Load(tag ModelTag, path string, dim, wantN int) error {
	idx, err := Load(path, dim)
	if err != nil {
		return err
	}
	if idx.Len() != wantN {
		return kferrors.SizeMismatch(
			fmt.Sprintf("%s: index for %s has %d rows, id map has %d entries", path, tag, idx.Len(), wantN), nil)
	}
	r.indexes[tag] = idx
	return nil
}

// Set installs an already-built index directly, bypassing file loading.
// Used by tests and by offline tooling that builds indexes in memory.
func (r *Registry) Set(tag ModelTag, idx *FlatIndex) {
	r.indexes[tag] = idx
}

// Get returns the loaded index for tag, or ModelUnavailable if it was
// never loaded (the backend for that model is not configured).
func (r *Registry) Get(tag ModelTag) (*FlatIndex, error) {
	idx, ok := r.indexes[tag]
	if !ok {
		return nil, kferrors.ModelUnavailable(fmt.Sprintf("no index loaded for model %s", tag), nil)
	}
	return idx, nil
}

// Tags returns the model tags with a loaded index, in declaration order.
func (r *Registry) Tags() []ModelTag {
	var tags []ModelTag
	for _, t := range AllModelTags {
		if _, ok := r.indexes[t]; ok {
			tags = append(tags, t)
		}
	}
	return tags
}

// Close closes every loaded index.
func (r *Registry) Close() error {
	for _, idx := range r.indexes {
		_ = idx.Close()
	}
	return nil
}
