package provider

import (
	"context"
	"fmt"
	"sort"

	"github.com/waabox/pipedeck/internal/domain"
)

// Registry maps provider names (the prefix of a job reference, e.g. "github")
// to BuildAdapter implementations. It is itself a BuildAdapter that dispatches
// each call on the job's provider.
type Registry struct {
	adapters map[string]domain.BuildAdapter
}

// Ensure Registry implements BuildAdapter.
var _ domain.BuildAdapter = (*Registry)(nil)

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]domain.BuildAdapter)}
}

// Register associates a provider name with an adapter, replacing any previous one.
func (r *Registry) Register(name string, a domain.BuildAdapter) {
	r.adapters[name] = a
}

// Has reports whether an adapter is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.adapters[name]
	return ok
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the adapter registered under name.
// Returns an error wrapping domain.ErrUnknownProvider if there is none.
func (r *Registry) Lookup(name string) (domain.BuildAdapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", domain.ErrUnknownProvider, name)
	}
	return a, nil
}

// Check returns an error for the first job of def whose provider is not registered.
func (r *Registry) Check(def domain.PipelineDefinition) error {
	for _, stage := range def.Stages {
		for _, job := range stage.Jobs {
			if !r.Has(job.Provider) {
				return fmt.Errorf("stage %s, job %s: %w %q", stage.Name, job.Name, domain.ErrUnknownProvider, job.Provider)
			}
		}
	}
	return nil
}

func (r *Registry) Submit(ctx context.Context, tmpl domain.JobTemplate) (domain.JobHandle, error) {
	a, err := r.Lookup(tmpl.Provider)
	if err != nil {
		return domain.JobHandle{}, err
	}
	return a.Submit(ctx, tmpl)
}

func (r *Registry) Poll(ctx context.Context, h domain.JobHandle) (domain.JobUpdate, error) {
	a, err := r.Lookup(h.Provider)
	if err != nil {
		return domain.JobUpdate{}, err
	}
	return a.Poll(ctx, h)
}

func (r *Registry) Cancel(ctx context.Context, h domain.JobHandle) error {
	a, err := r.Lookup(h.Provider)
	if err != nil {
		return err
	}
	return a.Cancel(ctx, h)
}
