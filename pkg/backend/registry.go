package backend

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/leapstack-labs/pawseed/pkg/core"
)

// Factory builds a backend from the string options of backend.options.
type Factory func(opts map[string]string, logger *slog.Logger) (Backend, error)

// Registration describes one numerical backend implementation.
type Registration struct {
	Name string
	// Summary is a one-line description shown by the version command.
	Summary string
	Factory Factory
}

var backends = struct {
	sync.RWMutex
	byName map[string]Registration
}{byName: make(map[string]Registration)}

// Register makes a backend available under r.Name. Implementations call
// it from init. It panics on an empty name, a nil factory or a name that
// is already taken, since all three are programming errors.
func Register(r Registration) {
	if r.Name == "" || r.Factory == nil {
		panic("backend: Register needs a name and a factory")
	}
	backends.Lock()
	defer backends.Unlock()
	if _, dup := backends.byName[r.Name]; dup {
		panic(fmt.Sprintf("backend: %q registered twice", r.Name))
	}
	backends.byName[r.Name] = r
}

// Lookup returns the registration of name.
func Lookup(name string) (Registration, bool) {
	backends.RLock()
	defer backends.RUnlock()
	r, ok := backends.byName[name]
	return r, ok
}

// Registered returns every registration ordered by name.
func Registered() []Registration {
	backends.RLock()
	out := make([]Registration, 0, len(backends.byName))
	for _, r := range backends.byName {
		out = append(out, r)
	}
	backends.RUnlock()
	slices.SortFunc(out, func(a, b Registration) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Names returns the registered backend names in order.
func Names() []string {
	regs := Registered()
	names := make([]string, len(regs))
	for i, r := range regs {
		names[i] = r.Name
	}
	return names
}

// New builds the backend selected by cfg.Type. A nil logger discards.
func New(cfg core.BackendConfig, logger *slog.Logger) (Backend, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("backend type not specified")
	}
	r, ok := Lookup(cfg.Type)
	if !ok {
		return nil, &UnknownBackendError{Type: cfg.Type, Available: Names()}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b, err := r.Factory(cfg.Options, logger.With(slog.String("backend", r.Name)))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", r.Name, err)
	}
	return b, nil
}

// UnknownBackendError is returned by New for a name nothing registered.
type UnknownBackendError struct {
	Type      string
	Available []string
}

func (e *UnknownBackendError) Error() string {
	available := "none"
	if len(e.Available) > 0 {
		available = strings.Join(e.Available, ", ")
	}
	return fmt.Sprintf("unknown backend type %q (registered: %s); set backend.type in pawseed.yaml or pass --backend", e.Type, available)
}
