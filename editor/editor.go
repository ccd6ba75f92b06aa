// Package editor implements the modal flow a clinician uses to override the
// classification of a single beat.
package editor

import (
	"errors"
	"fmt"

	"github.com/ViVse/ecg-v2/ecg"
)

var (
	ErrAggregateRow   = errors.New("the Overall row cannot be edited")
	ErrSelectorHidden = errors.New("class selector is hidden while the beat is marked normal")
	ErrIncomplete     = errors.New("an anomalous beat needs a class before saving")
	ErrClosed         = errors.New("editor is closed")
)

// Emitter receives the override of a confirmed save.
type Emitter interface {
	Emit(o ecg.Override) error
}

// Dialog copy shown by hosts.
const (
	Title        = "Change prediction"
	Description  = "If you disagree with system prediction, you can provide your own classification."
	AnomalyLabel = "Is anomaly?"
	ClassLabel   = "Anomaly class"
	ClassHint    = "Select a class"
	SaveLabel    = "Save"
)

// Editor is the local state of one open edit dialog.
type Editor struct {
	id            string
	original      ecg.Prediction
	isAnomaly     bool
	selectedClass ecg.AnomalyClass
	open          bool
}

// Open starts an edit of pred. The aggregate row is rejected.
func Open(pred ecg.Prediction) (*Editor, error) {
	if pred.IsAggregate() {
		return nil, ErrAggregateRow
	}
	return &Editor{
		id:        pred.ID,
		original:  pred,
		isAnomaly: !pred.IsNormal,
		open:      true,
	}, nil
}

// ID returns the beat id under edit.
func (e *Editor) ID() string { return e.id }

// Original returns the prediction the dialog was opened with.
func (e *Editor) Original() ecg.Prediction { return e.original }

// IsOpen reports whether the dialog is still shown.
func (e *Editor) IsOpen() bool { return e.open }

// IsAnomaly returns the anomaly checkbox.
func (e *Editor) IsAnomaly() bool { return e.isAnomaly }

// SelectedClass returns the chosen class, empty when none.
func (e *Editor) SelectedClass() ecg.AnomalyClass { return e.selectedClass }

// SetAnomaly sets the anomaly checkbox. Turning it off hides the selector
// and lifts the class requirement; the last choice is remembered.
func (e *Editor) SetAnomaly(v bool) {
	if !e.open {
		return
	}
	e.isAnomaly = v
}

// ToggleAnomaly flips the anomaly checkbox.
func (e *Editor) ToggleAnomaly() { e.SetAnomaly(!e.isAnomaly) }

// ClassSelectorVisible reports whether the class selector is shown.
func (e *Editor) ClassSelectorVisible() bool { return e.isAnomaly }

// SelectClass picks an anomaly class.
func (e *Editor) SelectClass(c ecg.AnomalyClass) error {
	if !e.open {
		return ErrClosed
	}
	if !e.isAnomaly {
		return ErrSelectorHidden
	}
	if !c.Valid() {
		return fmt.Errorf("unknown anomaly class %q", c)
	}
	e.selectedClass = c
	return nil
}

// CanSave is false exactly when the beat is marked anomalous without a class.
func (e *Editor) CanSave() bool {
	return e.open && !(e.isAnomaly && e.selectedClass == "")
}

// Override returns the record a save would emit.
func (e *Editor) Override() ecg.Override {
	o := ecg.Override{ID: e.id, IsNormal: !e.isAnomaly}
	if e.isAnomaly {
		o.Classification = e.selectedClass
	}
	return o
}

// Confirm emits the override once and closes the dialog. The dialog stays
// open if the emitter rejects the record.
func (e *Editor) Confirm(out Emitter) (ecg.Override, error) {
	if !e.open {
		return ecg.Override{}, ErrClosed
	}
	if !e.CanSave() {
		return ecg.Override{}, ErrIncomplete
	}
	o := e.Override()
	if err := out.Emit(o); err != nil {
		return ecg.Override{}, err
	}
	e.open = false
	return o, nil
}

// Cancel closes the dialog and discards local edits.
func (e *Editor) Cancel() {
	e.open = false
	e.isAnomaly = !e.original.IsNormal
	e.selectedClass = ""
}
