package symbols

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/agusespa/codecrate/internal/types"
	"github.com/warpfork/go-errcat"
)

// Variant is the role a backend plays for a file.
type Variant int

const (
	VariantNone Variant = iota
	VariantPrimary
	VariantSecondary
)

func (v Variant) String() string {
	switch v {
	case VariantPrimary:
		return "primary"
	case VariantSecondary:
		return "secondary"
	default:
		return "none"
	}
}

// Policy selects which backends are active.
type Policy string

const (
	PolicyAuto       Policy = "auto"
	PolicyTreeSitter Policy = "tree-sitter"
	PolicyNone       Policy = "none"
	PolicyPython     Policy = "python"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyAuto, nil
	case PolicyAuto, PolicyTreeSitter, PolicyNone, PolicyPython:
		return p, nil
	default:
		return "", errcat.Errorf(types.ErrUsage, "unknown symbol backend %q (want auto, tree-sitter, none or python)", s)
	}
}

// SecondaryEnabled reports whether index-only backends run under this policy.
func (p Policy) SecondaryEnabled() bool {
	return p == PolicyAuto || p == PolicyTreeSitter
}

type Registry struct {
	primary   map[string]Backend
	secondary map[string]Backend
	backends  []Backend
}

// NewRegistry registers the Python primary backend and, when the policy allows
// it, the secondary index backends.
func NewRegistry(policy Policy) (*Registry, error) {
	registry := &Registry{
		primary:   make(map[string]Backend),
		secondary: make(map[string]Backend),
	}

	pythonBackend, err := NewPythonBackend()
	if err != nil {
		return nil, fmt.Errorf("failed to create Python backend: %w", err)
	}
	registry.RegisterBackend(pythonBackend, VariantPrimary)

	if !policy.SecondaryEnabled() {
		return registry, nil
	}

	constructors := []func() (*IndexBackend, error){
		NewGoBackend,
		NewJavaBackend,
		NewTypeScriptBackend,
		NewTSXBackend,
		NewCBackend,
	}
	for _, newBackend := range constructors {
		backend, err := newBackend()
		if err != nil {
			registry.Close()
			return nil, err
		}
		registry.RegisterBackend(backend, VariantSecondary)
	}

	return registry, nil
}

func (r *Registry) RegisterBackend(backend Backend, variant Variant) {
	target := r.secondary
	if variant == VariantPrimary {
		target = r.primary
	}
	for _, ext := range backend.SupportedExtensions() {
		target[strings.ToLower(ext)] = backend
	}
	r.backends = append(r.backends, backend)
}

// Resolve returns the backend responsible for filePath and its role.
func (r *Registry) Resolve(filePath string) (Backend, Variant) {
	ext := strings.ToLower(filepath.Ext(filePath))
	if backend, ok := r.primary[ext]; ok {
		return backend, VariantPrimary
	}
	if backend, ok := r.secondary[ext]; ok {
		return backend, VariantSecondary
	}
	return nil, VariantNone
}

func (r *Registry) Close() {
	for _, backend := range r.backends {
		backend.Close()
	}
	r.backends = nil
}
