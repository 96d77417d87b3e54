package registry

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// Entry binds a handler capability to its descriptor.
type Entry struct {
	domain.HandlerDescriptor
	Handler ports.Handler
}

// Registry is the immutable name -> handler table used for dispatch.
// It is built once at start-up and safe for concurrent use because it is never mutated.
type Registry struct {
	classifier     ports.Classifier
	classifierName string
	handlers       map[string]ports.Handler
	descriptors    []domain.HandlerDescriptor
	unreachable    []string
}

// Option configures the Registry.
type Option func(*Registry)

// WithClassifierName sets the name recorded on the classifier's history entries (default: "Router").
func WithClassifierName(name string) Option {
	return func(r *Registry) {
		r.classifierName = name
	}
}

// New builds a registry and validates its invariants:
// exactly one classifier, unique non-empty names and a classifier domain
// that only names registered handlers.
func New(classifier ports.Classifier, entries []Entry, opts ...Option) (*Registry, error) {
	if classifier == nil {
		return nil, fmt.Errorf("registry: classifier is required")
	}

	r := &Registry{
		classifier:     classifier,
		classifierName: "Router",
		handlers:       make(map[string]ports.Handler, len(entries)),
		descriptors:    make([]domain.HandlerDescriptor, 0, len(entries)),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("registry: handler name cannot be empty")
		}
		if name == r.classifierName {
			return nil, fmt.Errorf("registry: handler %q collides with the classifier name", name)
		}
		if e.Handler == nil {
			return nil, fmt.Errorf("registry: handler %q has no capability", name)
		}
		if _, dup := r.handlers[name]; dup {
			return nil, fmt.Errorf("registry: duplicate handler %q", name)
		}
		r.handlers[name] = e.Handler
		r.descriptors = append(r.descriptors, domain.HandlerDescriptor{Name: name, Description: e.Description})
	}

	classifierDomain := classifier.Domain()
	if len(classifierDomain) == 0 {
		return nil, fmt.Errorf("%w: classifier domain is empty", domain.ErrDomainMismatch)
	}
	for _, name := range classifierDomain {
		if _, ok := r.handlers[name]; !ok {
			return nil, fmt.Errorf("%w: %q is not registered", domain.ErrDomainMismatch, name)
		}
	}
	for _, d := range r.descriptors {
		if !slices.Contains(classifierDomain, d.Name) {
			r.unreachable = append(r.unreachable, d.Name)
		}
	}

	return r, nil
}

// Classifier returns the entry-point handler.
func (r *Registry) Classifier() ports.Classifier {
	return r.classifier
}

// ClassifierName is the name recorded on classification history entries.
func (r *Registry) ClassifierName() string {
	return r.classifierName
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (ports.Handler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrHandlerNotFound, name)
	}
	return h, nil
}

// Descriptors returns the registered handlers in registration order.
func (r *Registry) Descriptors() []domain.HandlerDescriptor {
	return slices.Clone(r.descriptors)
}

// Unreachable lists registered handlers the classifier can never select.
func (r *Registry) Unreachable() []string {
	return slices.Clone(r.unreachable)
}

// ValidateClassification checks a raw classifier value against the enumerated domain.
// Values outside the domain are schema violations, never coerced.
func ValidateClassification(allowed []string, raw string) (domain.ClassificationResult, error) {
	value := strings.TrimSpace(raw)
	if !slices.Contains(allowed, value) {
		return domain.ClassificationResult{Raw: raw},
			fmt.Errorf("%w: %q not in %v", domain.ErrClassificationSchema, value, allowed)
	}
	return domain.ClassificationResult{Handler: value, Raw: raw}, nil
}
