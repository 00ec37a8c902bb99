package trackers

import (
	"encoding/gob"
	"fmt"
	"log"
	"os"

	ts "github.com/samuelfneumann/goppo/timestep"
)

// Return tracks the episodic returns seen during an experiment. Each
// time an episode ends, the accumulated return of that episode is
// recorded; Save then persists the recorded returns to disk.
//
// An episode must finish for its return to be recorded: if the final
// episode of an experiment is cut off by the experiment's step limit
// before the episode ends, its partial return is discarded.
type Return struct {
	lastTimeStep   int
	currentReturn  float64
	episodeReturns []float64
	filename       string
}

// NewReturn creates and returns a new *Return Tracker which saves
// data at filename
func NewReturn(filename string) Tracker {
	return &Return{
		lastTimeStep: -1,
		filename:     filename,
	}
}

// Track accumulates the reward of the argument timestep into the
// current episode's return. On the last timestep of an episode, the
// accumulated return is recorded and accumulation restarts for the
// next episode.
//
// Track panics if called with non-sequential timesteps.
func (r *Return) Track(step ts.TimeStep) {
	if r.lastTimeStep+1 != step.Number {
		panic(fmt.Sprintf("track: non-sequential timesteps: timestep "+
			"%v --> timestep %v", r.lastTimeStep, step.Number))
	}

	r.currentReturn += step.Reward
	if !step.Last() {
		r.lastTimeStep = step.Number
		return
	}

	// Episode ended, record its return and restart accumulation
	r.episodeReturns = append(r.episodeReturns, r.currentReturn)
	r.currentReturn = 0.0
	r.lastTimeStep = -1
}

// Save persists the recorded episodic returns to disk
func (r *Return) Save() {
	file, err := os.Create(r.filename)
	if err != nil {
		log.Fatalf("save: could not open save file: %v", err)
	}
	defer file.Close()

	en := gob.NewEncoder(file)
	if err := en.Encode(r.episodeReturns); err != nil {
		log.Fatalf("save: could not encode return data: %v", err)
	}
}
