package plugin

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/haje01/swak/buffer"
	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/formatter"
)

// Factory creates a plugin from its chain arguments.
type Factory func(args []string) (Plugin, error)

// BufferFactory creates a buffer configuration from its chain arguments.
type BufferFactory func(args []string) (buffer.Config, error)

// FormatterFactory creates a formatter from its chain arguments.
type FormatterFactory func(args []string) (formatter.Formatter, error)

// Registration describes one plugin type. Name carries the chain prefix,
// e.g. "i.counter".
type Registration struct {
	Name        string
	Kind        Kind
	Description string
	Factory     Factory
	// Usage describes the chain arguments. Optional.
	Usage func() string
}

// BufferRegistration describes one buffer type, named "b.<name>".
type BufferRegistration struct {
	Name        string
	Description string
	Factory     BufferFactory
	Usage       func() string
}

// FormatterRegistration describes one formatter type, named "f.<name>".
type FormatterRegistration struct {
	Name        string
	Description string
	Factory     FormatterFactory
	Usage       func() string
}

// Info is the listing entry of any registered name. Usage is only filled
// by Describe.
type Info struct {
	Name        string
	Description string
	Usage       string
}

const (
	BufferPrefix    = "b."
	FormatterPrefix = "f."
)

// Registry maps chain names to constructors. It is filled at program start
// and queried while chains are built.
type Registry struct {
	mu         sync.RWMutex
	plugins    map[string]*Registration
	buffers    map[string]BufferRegistration
	formatters map[string]FormatterRegistration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins:    make(map[string]*Registration),
		buffers:    make(map[string]BufferRegistration),
		formatters: make(map[string]FormatterRegistration),
	}
}

// Register adds a plugin type. The name must start with the kind's prefix.
func (r *Registry) Register(reg Registration) error {
	if reg.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "factory function validation")
	}
	if err := checkName(reg.Name, reg.Kind.Prefix()); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exists(reg.Name) {
		return duplicate(reg.Name)
	}
	r.plugins[reg.Name] = &reg
	return nil
}

// RegisterBuffer adds a buffer type.
func (r *Registry) RegisterBuffer(reg BufferRegistration) error {
	if reg.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterBuffer", "factory function validation")
	}
	if err := checkName(reg.Name, BufferPrefix); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exists(reg.Name) {
		return duplicate(reg.Name)
	}
	r.buffers[reg.Name] = reg
	return nil
}

// RegisterFormatter adds a formatter type.
func (r *Registry) RegisterFormatter(reg FormatterRegistration) error {
	if reg.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFormatter", "factory function validation")
	}
	if err := checkName(reg.Name, FormatterPrefix); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exists(reg.Name) {
		return duplicate(reg.Name)
	}
	r.formatters[reg.Name] = reg
	return nil
}

// Create instantiates the plugin registered under name.
func (r *Registry) Create(name string, args []string) (Plugin, error) {
	r.mu.RLock()
	reg, ok := r.plugins[name]
	r.mu.RUnlock()
	if !ok {
		return nil, unknown(name)
	}

	p, err := reg.Factory(args)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Registry", "Create", "create "+name)
	}
	return p, nil
}

// CreateBuffer builds the buffer configuration registered under name.
func (r *Registry) CreateBuffer(name string, args []string) (buffer.Config, error) {
	r.mu.RLock()
	reg, ok := r.buffers[name]
	r.mu.RUnlock()
	if !ok {
		return buffer.Config{}, unknown(name)
	}

	cfg, err := reg.Factory(args)
	if err != nil {
		return buffer.Config{}, errors.WrapInvalid(err, "Registry", "CreateBuffer", "create "+name)
	}
	return cfg, nil
}

// CreateFormatter builds the formatter registered under name.
func (r *Registry) CreateFormatter(name string, args []string) (formatter.Formatter, error) {
	r.mu.RLock()
	reg, ok := r.formatters[name]
	r.mu.RUnlock()
	if !ok {
		return nil, unknown(name)
	}

	f, err := reg.Factory(args)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Registry", "CreateFormatter", "create "+name)
	}
	return f, nil
}

// List returns every registered name with its description, sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.plugins)+len(r.buffers)+len(r.formatters))
	for name, reg := range r.plugins {
		infos = append(infos, Info{Name: name, Description: reg.Description})
	}
	for name, reg := range r.buffers {
		infos = append(infos, Info{Name: name, Description: reg.Description})
	}
	for name, reg := range r.formatters {
		infos = append(infos, Info{Name: name, Description: reg.Description})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Describe returns the listing entry of name with its argument usage.
func (r *Registry) Describe(name string) (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		info  Info
		usage func() string
	)
	if reg, ok := r.plugins[name]; ok {
		info, usage = Info{Name: name, Description: reg.Description}, reg.Usage
	} else if reg, ok := r.buffers[name]; ok {
		info, usage = Info{Name: name, Description: reg.Description}, reg.Usage
	} else if reg, ok := r.formatters[name]; ok {
		info, usage = Info{Name: name, Description: reg.Description}, reg.Usage
	} else {
		return Info{}, unknown(name)
	}
	if usage != nil {
		info.Usage = usage()
	}
	return info, nil
}

func (r *Registry) exists(name string) bool {
	_, p := r.plugins[name]
	_, b := r.buffers[name]
	_, f := r.formatters[name]
	return p || b || f
}

func checkName(name, prefix string) error {
	if prefix == "" || !strings.HasPrefix(name, prefix) || len(name) == len(prefix) {
		return errors.WrapInvalid(fmt.Errorf("%w: name %q needs prefix %q", errors.ErrInvalidConfig, name, prefix),
			"Registry", "Register", "name validation")
	}
	return nil
}

func duplicate(name string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %q is already registered", errors.ErrInvalidConfig, name),
		"Registry", "Register", "duplicate check")
}

func unknown(name string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownPlugin, name), "Registry", "Create", "lookup")
}
