package metric

import (
	"context"
	"fmt"
	"sync"
)

// StaticProvider serves values set in memory. Used for demos, manual
// overrides and tests.
type StaticProvider struct {
	mu     sync.RWMutex
	values map[string]any
	errs   map[string]error
}

// NewStaticProvider creates a provider seeded with values
func NewStaticProvider(values map[string]any) *StaticProvider {
	p := &StaticProvider{
		values: make(map[string]any, len(values)),
		errs:   make(map[string]error),
	}
	for k, v := range values {
		p.values[k] = v
	}
	return p
}

// Set stores a value and clears any failure for key
func (p *StaticProvider) Set(key string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
	delete(p.errs, key)
}

// Fail makes subsequent fetches of key return err
func (p *StaticProvider) Fail(key string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[key] = err
}

// Value returns a fetcher for key
func (p *StaticProvider) Value(key string) Fetcher {
	return func(ctx context.Context) (any, error) {
		p.mu.RLock()
		defer p.mu.RUnlock()
		if err, ok := p.errs[key]; ok {
			return nil, err
		}
		v, ok := p.values[key]
		if !ok {
			return nil, fmt.Errorf("no value for %s", key)
		}
		return v, nil
	}
}
