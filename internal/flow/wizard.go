package flow

import "github.com/livreo/livreo/internal/models"

// WizardField is one ordered step of a field-collection wizard.
type WizardField struct {
	Step   models.Step
	Key    string // draft field key the answer is stored under
	Prompt string
}

// Wizard is a canonical ordered list of collection steps, so the contextual
// back command can be computed as "previous index, else exit wizard".
type Wizard struct {
	Fields []WizardField
}

// Index returns the position of step in the wizard, or -1.
func (w *Wizard) Index(step models.Step) int {
	for i, f := range w.Fields {
		if f.Step == step {
			return i
		}
	}
	return -1
}

// Field returns the wizard field for step, or nil.
func (w *Wizard) Field(step models.Step) *WizardField {
	if i := w.Index(step); i >= 0 {
		return &w.Fields[i]
	}
	return nil
}

// First returns the wizard's first field.
func (w *Wizard) First() *WizardField {
	if len(w.Fields) == 0 {
		return nil
	}
	return &w.Fields[0]
}

// Back returns the field preceding step. ok is false at the first field,
// meaning back exits the wizard.
func (w *Wizard) Back(step models.Step) (*WizardField, bool) {
	i := w.Index(step)
	if i <= 0 {
		return nil, false
	}
	return &w.Fields[i-1], true
}

// Next returns the field following step. ok is false at the last field,
// meaning the wizard's collection phase is complete.
func (w *Wizard) Next(step models.Step) (*WizardField, bool) {
	i := w.Index(step)
	if i < 0 || i+1 >= len(w.Fields) {
		return nil, false
	}
	return &w.Fields[i+1], true
}
