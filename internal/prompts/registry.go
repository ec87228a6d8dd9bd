// Package prompts stores the per-stage instruction templates sent ahead of the articles.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"PerspectiveLens/internal/ports"
)

//go:embed templates
var defaults embed.FS

// Registry keeps a mapping from (model kind, stage name) to template text.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]string
}

var _ ports.TemplateLoader = (*Registry)(nil)

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{templates: map[string]string{}}
}

// Default returns a registry preloaded with the embedded templates.
func Default() (*Registry, error) {
	r := NewRegistry()
	sub, err := fs.Sub(defaults, "templates")
	if err != nil {
		return nil, err
	}
	if err := r.LoadFS(sub); err != nil {
		return nil, fmt.Errorf("load embedded templates: %w", err)
	}
	return r, nil
}

// Register adds or replaces a template.
func (r *Registry) Register(kind, stage, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.templates == nil {
		r.templates = map[string]string{}
	}
	r.templates[templateKey(kind, stage)] = strings.TrimSpace(text)
}

// Load returns the template for kind and stage or an error if it is absent.
func (r *Registry) Load(kind, stage string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if text, ok := r.templates[templateKey(kind, stage)]; ok {
		return text, nil
	}
	return "", fmt.Errorf("template %s/%s is not registered", kind, stage)
}

// LoadFS registers every <kind>/<stage>.txt file found in fsys.
func (r *Registry) LoadFS(fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".txt" {
			return nil
		}
		kind := path.Dir(p)
		if kind == "." {
			return nil
		}
		raw, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		r.Register(path.Base(kind), strings.TrimSuffix(path.Base(p), ".txt"), string(raw))
		return nil
	})
}

// LoadDir overrides templates from a directory on disk. A missing directory is ignored.
func (r *Registry) LoadDir(dir string) error {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(filepath.Clean(dir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("templates path %s is not a directory", dir)
	}
	return r.LoadFS(os.DirFS(dir))
}

func templateKey(kind, stage string) string {
	return strings.ToLower(kind) + "/" + strings.ToLower(stage)
}
