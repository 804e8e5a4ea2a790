package queryenc

import (
	"fmt"

	"github.com/kfsearch/kfsearch/internal/kferrors"
	"github.com/kfsearch/kfsearch/internal/vectorindex"
)

// Registry holds one Encoder per configured model. Models are declared
// statically at startup; a request for a tag with no registered encoder
// fails with ModelUnavailable rather than falling back to another model.
type Registry struct {
	encoders map[vectorindex.ModelTag]Encoder
}

// NewRegistry builds a registry from a fixed set of encoders.
func NewRegistry(encoders ...Encoder) *Registry {
	r := &Registry{encoders: make(map[vectorindex.ModelTag]Encoder, len(encoders))}
	for _, e := range encoders {
		r.encoders[e.Tag()] = e
	}
	return r
}

// Get returns the encoder for tag, or ModelUnavailable if none is
// registered.
func (r *Registry) Get(tag vectorindex.ModelTag) (Encoder, error) {
	e, ok := r.encoders[tag]
	if !ok {
		return nil, kferrors.ModelUnavailable(fmt.Sprintf("no encoder registered for model %s", tag), nil)
	}
	return e, nil
}

// Tags returns the model tags with a registered encoder.
func (r *Registry) Tags() []vectorindex.ModelTag {
	var tags []vectorindex.ModelTag
	for _, t := range vectorindex.AllModelTags {
		if _, ok := r.encoders[t]; ok {
			tags = append(tags, t)
		}
	}
	return tags
}
