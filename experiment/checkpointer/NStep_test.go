package checkpointer

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	ts "github.com/samuelfneumann/goppo/timestep"
)

// recordingSaver records the paths it is asked to save at
type recordingSaver struct {
	paths []string
}

func (r *recordingSaver) Save(path string) error {
	r.paths = append(r.paths, path)
	return nil
}

// TestNStepCountsExperimentSteps checks that checkpoints fire on
// cumulative experiment steps even though timestep numbers are
// episode relative and reset at every environment reset.
func TestNStepCountsExperimentSteps(t *testing.T) {
	saver := &recordingSaver{}
	c := NewNStep(500, saver, FilenameEnumerator(0, "checkpoint", ".bin"))

	// 6 episodes of 200 steps: no episode-relative timestep number
	// ever reaches the interval, but 1200 cumulative steps should
	// produce checkpoints at steps 500 and 1000
	obs := mat.NewVecDense(1, nil)
	for episode := 0; episode < 6; episode++ {
		for number := 1; number <= 200; number++ {
			step := ts.New(ts.Mid, 0.0, 1.0, obs, number)
			if err := c.Checkpoint(step); err != nil {
				t.Fatalf("could not checkpoint: %v", err)
			}
		}
	}

	want := []string{"checkpoint1.bin", "checkpoint2.bin"}
	if len(saver.paths) != len(want) {
		t.Fatalf("incorrect number of checkpoints \n\twant(%v)\n\thave(%v)",
			len(want), len(saver.paths))
	}
	for i := range want {
		if saver.paths[i] != want[i] {
			t.Errorf("incorrect checkpoint path \n\twant(%v)\n\thave(%v)",
				want[i], saver.paths[i])
		}
	}
}

// TestNStepNoCheckpointBeforeInterval checks that nothing is saved
// before the first interval elapses.
func TestNStepNoCheckpointBeforeInterval(t *testing.T) {
	saver := &recordingSaver{}
	c := NewNStep(100, saver, FilenameEnumerator(0, "checkpoint", ""))

	obs := mat.NewVecDense(1, nil)
	for number := 1; number <= 99; number++ {
		step := ts.New(ts.Mid, 0.0, 1.0, obs, number)
		if err := c.Checkpoint(step); err != nil {
			t.Fatalf("could not checkpoint: %v", err)
		}
	}

	if len(saver.paths) != 0 {
		t.Errorf("checkpointed before the interval elapsed \n\twant(0)"+
			"\n\thave(%v)", len(saver.paths))
	}
}
