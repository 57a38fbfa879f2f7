package strategy

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/spf13/cast"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

// Params are the raw strategy parameters of a config file.
type Params map[string]string

func (p Params) String(key, def string) string {
	if v, ok := p[key]; ok && v != "" {
		return v
	}
	return def
}

func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return def, nil
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("param %q: %w: %w", key, err, common.ErrConfiguration)
	}
	return i, nil
}

func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return def, nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, fmt.Errorf("param %q: %w: %w", key, err, common.ErrConfiguration)
	}
	return b, nil
}

func (p Params) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return def, nil
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return 0, fmt.Errorf("param %q: %w: %w", key, err, common.ErrConfiguration)
	}
	return d, nil
}

func (p Params) Point(key string, def fixed.Point) (fixed.Point, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return def, nil
	}
	pt, err := fixed.Parse(v)
	if err != nil {
		return fixed.Zero, fmt.Errorf("param %q: %w: %w", key, err, common.ErrConfiguration)
	}
	return pt, nil
}

type Factory func(params Params) (Strategy, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a named strategy. Registering a name twice panics.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("strategy %q already registered", name))
	}
	registry[name] = factory
}

func New(name string, params map[string]string) (Strategy, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q: %w", name, common.ErrConfiguration)
	}
	s, err := factory(Params(params))
	if err != nil {
		return nil, fmt.Errorf("strategy %q: %w", name, err)
	}
	return s, nil
}

func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return slices.Sorted(maps.Keys(registry))
}
