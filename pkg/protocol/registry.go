package protocol

import (
	"fmt"
	"sync/atomic"
)

// Toggles answers whether a protocol is currently enabled.
type Toggles interface {
	Enabled(id ID) bool
}

// Registry is a set of enabled protocols backed by an atomic bitmask. It is
// safe for concurrent use.
type Registry struct {
	mask atomic.Uint64
}

var allMask = uint64(1)<<uint(Count) - 1

// NewRegistry returns a registry with every protocol enabled.
func NewRegistry() *Registry {
	r := &Registry{}
	r.mask.Store(allMask)
	return r
}

// NewRegistryOf returns a registry with only the listed protocols enabled.
func NewRegistryOf(ids ...ID) (*Registry, error) {
	r := &Registry{}
	for _, id := range ids {
		if err := r.SetEnabled(id, true); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Enabled(id ID) bool {
	if !id.Valid() {
		return false
	}
	return r.mask.Load()&(1<<uint(id)) != 0
}

func (r *Registry) SetEnabled(id ID, enabled bool) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownProtocol, id)
	}
	bit := uint64(1) << uint(id)
	for {
		old := r.mask.Load()
		next := old &^ bit
		if enabled {
			next = old | bit
		}
		if r.mask.CompareAndSwap(old, next) {
			return nil
		}
	}
}

func (r *Registry) EnableAll() {
	r.mask.Store(allMask)
}

func (r *Registry) DisableAll() {
	r.mask.Store(0)
}

// Only enables id and disables everything else.
func (r *Registry) Only(id ID) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownProtocol, id)
	}
	r.mask.Store(1 << uint(id))
	return nil
}

// Mask returns the raw bitmask, bit n set meaning protocol n is enabled.
func (r *Registry) Mask() uint64 {
	return r.mask.Load()
}

// List returns the IDs enabled in r in ascending order.
func (r *Registry) List() []ID {
	var ret []ID
	mask := r.mask.Load()
	for i := 0; i < Count; i++ {
		if mask&(1<<uint(i)) != 0 {
			ret = append(ret, ID(i))
		}
	}
	return ret
}

// Both is enabled only when every member is enabled.
type Both []Toggles

func (b Both) Enabled(id ID) bool {
	for _, t := range b {
		if !t.Enabled(id) {
			return false
		}
	}
	return true
}

var (
	rx = NewRegistry()
	tx = NewRegistry()
)

// Rx is the process-wide receive registry.
func Rx() *Registry { return rx }

// Tx is the process-wide transmit registry.
func Tx() *Registry { return tx }
