package dispatch

import "fmt"

// PanicError wraps a recovered skill panic so the dispatch error path and
// the ops notifier see a normal error value.
type PanicError struct {
	// Skill is the name of the skill that panicked.
	Skill string

	// Value is the recovered panic value.
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("skill %s panicked: %v", e.Skill, e.Value)
}
