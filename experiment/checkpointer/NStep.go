package checkpointer

import ts "github.com/samuelfneumann/goppo/timestep"

// nStep implements checkpointing every N experiment steps. Steps are
// counted across episodes: timestep numbers are episode relative and
// reset on environment resets, so the checkpointer keeps its own
// cumulative count of the Checkpoint calls it has seen, one per
// environment step.
type nStep struct {
	interval int
	steps    int      // cumulative experiment steps seen
	object   Saveable // Object to save

	// filename returns the string path to save the object at.
	//
	// If each checkpoint should be saved at a separate path with
	// each path having an incremented number as a suffix (e.g.
	// file1.bin, file2.bin, ..., fileK.bin), then simply use the
	// static function FilenameEnumerator, which will return a function
	// that will enumerate filenames.
	filename func() string
}

// NewNStep returns a checkpointer that checkpoints every n steps.
func NewNStep(n int, object Saveable,
	filename func() string) Checkpointer {
	return &nStep{
		interval: n,
		object:   object,
		filename: filename,
	}
}

// Checkpoint saves the Checkpointer's tracked object every interval
// calls by calling the object's Save() method
func (n *nStep) Checkpoint(t ts.TimeStep) error {
	n.steps++
	if n.steps%n.interval != 0 {
		return nil
	}
	return n.object.Save(n.filename())
}
