// Package registry owns the active manifest snapshot. Readers take the
// current snapshot at call start and keep using it for the whole call;
// a reload builds and validates a complete replacement before swapping
// it in, so no reader ever observes a half-updated manifest.
package registry

import (
	"sort"
	"sync/atomic"

	"github.com/lgc202/ai-kit/llm"
	"github.com/lgc202/ai-kit/manifest"
)

// Registry is an atomic holder for one published *manifest.Manifest.
// The snapshot it hands out is shared read-only; callers must not
// mutate it.
type Registry struct {
	snap atomic.Pointer[manifest.Manifest]
}

// New publishes m as the initial snapshot.
func New(m *manifest.Manifest) (*Registry, error) {
	if m == nil {
		return nil, llm.NewError("", llm.ErrKindConfig, "registry: nil manifest")
	}
	r := &Registry{}
	r.snap.Store(m)
	return r, nil
}

// Load reads, validates, and publishes the manifest at path.
func Load(path string) (*Registry, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	return New(m)
}

// Default publishes the built-in manifest.
func Default() (*Registry, error) {
	m, err := manifest.Default()
	if err != nil {
		return nil, err
	}
	return New(m)
}

// Current returns the published snapshot. In-flight work should call it
// once and hold the result rather than re-reading per step.
func (r *Registry) Current() *manifest.Manifest {
	return r.snap.Load()
}

// Replace publishes m as the new snapshot. The swap is all-or-nothing:
// a nil manifest is rejected and the old snapshot stays active.
func (r *Registry) Replace(m *manifest.Manifest) error {
	if m == nil {
		return llm.NewError("", llm.ErrKindConfig, "registry: nil manifest")
	}
	r.snap.Store(m)
	return nil
}

// ReloadFile loads and validates the manifest at path and publishes it.
// On any load or validation error the previous snapshot stays active.
func (r *Registry) ReloadFile(path string) error {
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	return r.Replace(m)
}

// Model looks up a catalog model by id in the current snapshot.
func (r *Registry) Model(id string) (*manifest.Model, bool) {
	m, ok := r.Current().Models[id]
	return m, ok
}

// Provider looks up a provider spec by id in the current snapshot.
func (r *Registry) Provider(id string) (*manifest.Provider, bool) {
	p, ok := r.Current().Providers[id]
	return p, ok
}

// Models returns every catalog model id, sorted. All statuses are
// included; serving surfaces filter disabled models themselves.
func (r *Registry) Models() []string {
	return sortedIDs(r.Current().Models)
}

// Providers returns every provider id, sorted.
func (r *Registry) Providers() []string {
	return sortedIDs(r.Current().Providers)
}

// ModelsFor returns the catalog model ids served by one provider,
// sorted, excluding disabled entries. It mirrors what the provider's
// ListModels reports.
func (r *Registry) ModelsFor(provider string) []string {
	models := r.Current().Models
	out := make([]string, 0, len(models))
	for id, m := range models {
		if m.Provider != provider || m.Status == manifest.StatusDisabled {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
