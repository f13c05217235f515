package projlist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/pawseed/pkg/backend"
	"github.com/leapstack-labs/pawseed/pkg/core"
)

// List is a backend projector list with its label table. A List is
// reference counted: Build returns it with one reference, Retain adds
// one, and the backend memory is freed when the last reference is
// released.
type List struct {
	backend backend.Backend
	handle  backend.Handle
	labels  *LabelTable
	logger  *slog.Logger

	mu   sync.Mutex
	refs int
}

// Build labels every element of the regions and builds the backend
// projector list for them.
func Build(ctx context.Context, b backend.Backend, gridEncut float64, logger *slog.Logger, regions ...*core.CoreRegion) (*List, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	labels := NewLabelTable(regions...)
	if labels.Len() == 0 {
		return nil, fmt.Errorf("cannot build a projector list without elements")
	}

	h, err := b.BuildProjectorList(ctx, backend.ProjectorTable{
		Pseudos:   labels.Pseudos(),
		GridEncut: gridEncut,
	})
	if err != nil {
		return nil, &core.BackendError{Op: "BuildProjectorList", Err: err}
	}

	logger.Debug("built projector list",
		slog.Any("elements", labels.Elements()),
		slog.Float64("grid_encut", gridEncut))

	return &List{backend: b, handle: h, labels: labels, logger: logger, refs: 1}, nil
}

// Handle returns the backend handle.
func (l *List) Handle() backend.Handle {
	return l.handle
}

// Labels returns the label table.
func (l *List) Labels() *LabelTable {
	return l.labels
}

// NumElements returns the number of labelled elements.
func (l *List) NumElements() int {
	return l.labels.Len()
}

// Retain adds a reference and returns l.
func (l *List) Retain() *List {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refs++
	return l
}

// Release drops a reference, freeing the backend list when none remain.
// Releasing a freed list is an error.
func (l *List) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refs <= 0 {
		return &core.SessionStateError{Op: "release projector list", State: "released", Required: "live"}
	}
	l.refs--
	if l.refs > 0 {
		return nil
	}
	l.logger.Debug("freeing projector list", slog.Int("elements", l.labels.Len()))
	if err := l.backend.FreeProjectorList(l.handle, l.labels.Len()); err != nil {
		return &core.BackendError{Op: "FreeProjectorList", Err: err}
	}
	return nil
}

// Refs returns the current reference count.
func (l *List) Refs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refs
}
