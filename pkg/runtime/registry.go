package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownMethod is returned for a method the registry does not hold.
var ErrUnknownMethod = errors.New("unknown method")

// Method is the shape of every generated contract method.
type Method func(ctx context.Context, st *State, args Args) (Result, error)

// Registry maps ABI function names to their implementations. Generated servers
// build it once, at compile time.
type Registry map[string]Method

// Names returns the registered method names in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named method.
func (r Registry) Invoke(ctx context.Context, name string, st *State, args Args) (Result, error) {
	m, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, name)
	}
	if args == nil {
		args = Args{}
	}
	return m(ctx, st, args)
}
