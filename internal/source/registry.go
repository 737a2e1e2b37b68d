package source

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

var (
	ErrDuplicateSource = errors.New("duplicate source name")
	ErrUnknownSource   = errors.New("unknown source")
	ErrUnknownType     = errors.New("unknown source type")
)

// Spec is the configuration of one source entry.
type Spec struct {
	Name    string        `mapstructure:"name"`
	Type    string        `mapstructure:"type"`
	Delay   time.Duration `mapstructure:"delay"`
	Enabled *bool         `mapstructure:"enabled"`
	// Options holds the adapter specific keys.
	Options map[string]any `mapstructure:",remain"`
}

// IsEnabled treats a missing enabled key as true.
func (s Spec) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Deps are handed to every factory.
type Deps struct {
	HTTP   HTTPClient
	Logger *zap.Logger
	// UserAgent overrides the default for every source that does not set its own.
	UserAgent string
}

// Client returns an HTTP client for the named source.
func (d Deps) Client(name string) *Client {
	c := NewClient(name, d.HTTP, d.Logger)
	if d.UserAgent != "" {
		c.UserAgent = d.UserAgent
	}
	return c
}

// Factory builds a Source of one type from its spec.
type Factory func(spec Spec, deps Deps) (Source, error)

// Registry maps source names to implementations. It is filled once at
// startup and only read afterwards.
type Registry struct {
	sources map[string]Source
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds s under its name.
func (r *Registry) Register(s Source) error {
	name := strings.TrimSpace(s.Name())
	if name == "" {
		return errors.New("source name is required")
	}
	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSource, name)
	}
	r.sources[name] = s
	r.order = append(r.order, name)
	return nil
}

// Get returns the source registered under name.
func (r *Registry) Get(name string) (Source, bool) {
	s, ok := r.sources[name]
	return s, ok
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Select resolves names to sources. No names selects everything.
func (r *Registry) Select(names ...string) ([]Source, error) {
	if len(names) == 0 {
		names = r.order
	}

	out := make([]Source, 0, len(names))
	for _, name := range names {
		s, ok := r.sources[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
		}
		out = append(out, s)
	}
	return out, nil
}

// Build creates and registers a source for every enabled spec.
func Build(specs []Spec, factories map[string]Factory, deps Deps) (*Registry, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := NewRegistry()
	for _, spec := range specs {
		if !spec.IsEnabled() {
			deps.Logger.Info("source disabled", zap.String("source", spec.Name))
			continue
		}

		factory, ok := factories[strings.ToLower(strings.TrimSpace(spec.Type))]
		if !ok {
			return nil, fmt.Errorf("%w %q for source %s", ErrUnknownType, spec.Type, spec.Name)
		}

		s, err := factory(spec, deps)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", spec.Name, err)
		}

		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DecodeOptions decodes adapter specific options into target. Unknown keys are an error.
func DecodeOptions(options map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}
