// internal/registry/registry.go
//
// Package registry is the process-wide Tag Registry (spec §4.6): a
// tag_path -> *tag.Tag map, loaded once from declarations at startup and
// consulted by the Batch Engine, the scheduler and the sync-lane API
// handlers for the rest of the process's life.
package registry

import (
	"log"
	"strings"
	"sync"

	"s7gateway/internal/monitor"
	"s7gateway/internal/tag"
)

// Registry is the ordered-acquisition root: Registry -> Tag -> Session, per
// spec §9's note replacing reentrant locks with a fixed lock order. It is
// guarded by an RWMutex; readers take RLock, Create takes Lock.
type Registry struct {
	pool *monitor.Pool

	mu   sync.RWMutex
	tags map[string]*tag.Tag
}

// New creates an empty registry backed by pool for every tag's edge monitor.
func New(pool *monitor.Pool) *Registry {
	return &Registry{pool: pool, tags: make(map[string]*tag.Tag)}
}

// Create builds a Tag from decl and installs it under its tag_path. A
// duplicate tag_path overwrites the previous entry with a warning, per
// spec §4.6.
func (r *Registry) Create(decl tag.Declaration) (*tag.Tag, error) {
	t, err := tag.New(decl, r.pool)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.tags[decl.TagPath]; exists {
		log.Printf("registry: tag_path %q já existia e foi sobrescrita", decl.TagPath)
	}
	r.tags[decl.TagPath] = t
	r.mu.Unlock()

	return t, nil
}

// Get returns the tag at tagPath, or false if unknown (spec §7's
// UnknownTag case).
func (r *Registry) Get(tagPath string) (*tag.Tag, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tags[tagPath]
	return t, ok
}

// All returns every registered tag. The slice is a snapshot copy, taken
// under the lock and released immediately, per spec §5's "traversals copy
// the keys/values to release the lock quickly".
func (r *Registry) All() []*tag.Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*tag.Tag, 0, len(r.tags))
	for _, t := range r.tags {
		out = append(out, t)
	}
	return out
}

// ByDB returns every tag declared against data block dbNumber.
func (r *Registry) ByDB(dbNumber int) []*tag.Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*tag.Tag
	for _, t := range r.tags {
		if t.Decl.DBNumber == dbNumber {
			out = append(out, t)
		}
	}
	return out
}

// ByPLC returns every tag declared against the named PLC, used at startup
// to split one flat declaration list across each PLC's own session and
// batch engine.
func (r *Registry) ByPLC(name string) []*tag.Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*tag.Tag
	for _, t := range r.tags {
		if t.Decl.PLC == name {
			out = append(out, t)
		}
	}
	return out
}

// ByGroupPrefix returns every tag whose Group starts with prefix.
func (r *Registry) ByGroupPrefix(prefix string) []*tag.Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*tag.Tag
	for _, t := range r.tags {
		if strings.HasPrefix(t.Decl.Group, prefix) {
			out = append(out, t)
		}
	}
	return out
}
