// Package review owns the state of one beat review: the loaded recording,
// its predictions, the view state and the single open editor. Hosts drive a
// Session and render what it reports.
package review

import (
	"errors"
	"fmt"

	"github.com/ViVse/ecg-v2/ecg"
)

var (
	ErrMissingCallback = errors.New("editing enabled without an update callback")
	ErrEditingDisabled = errors.New("editing is disabled")
)

// Capabilities states what the host allows.
type Capabilities struct {
	Editing bool `json:"editing" yaml:"editing"`
}

// UpdateFunc receives each confirmed override. How it is persisted or
// redistributed is up to the host.
type UpdateFunc func(ecg.Override) error

// Bridge hands confirmed overrides to the host callback.
type Bridge struct {
	caps   Capabilities
	update UpdateFunc
}

// NewBridge pairs the capability flag with its callback. A nil callback is
// allowed only when editing is off.
func NewBridge(caps Capabilities, update UpdateFunc) (*Bridge, error) {
	if caps.Editing && update == nil {
		return nil, ErrMissingCallback
	}
	return &Bridge{caps: caps, update: update}, nil
}

// Editing reports whether edit affordances are shown.
func (b *Bridge) Editing() bool {
	return b != nil && b.caps.Editing
}

// Emit validates o and invokes the callback once.
func (b *Bridge) Emit(o ecg.Override) error {
	if !b.Editing() {
		return ErrEditingDisabled
	}
	if err := o.Validate(); err != nil {
		return fmt.Errorf("invalid override for beat %s: %w", o.ID, err)
	}
	if err := b.update(o); err != nil {
		return fmt.Errorf("update prediction %s: %w", o.ID, err)
	}
	return nil
}
